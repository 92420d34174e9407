package adaptor

import (
	"net/http"

	"hotel-booking/internal/usecase"
	"hotel-booking/pkg/utils"

	"go.uber.org/zap"
)

type AdminHandler struct {
	service usecase.BookingService
	log     *zap.Logger
}

func NewAdminHandler(service usecase.BookingService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{
		service: service,
		log:     log.With(zap.String("handler", "admin")),
	}
}

// requireAdmin rejects requests that did not pass the admin key check.
func (h *AdminHandler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	role, ok := utils.GetRoleFromContext(r.Context())
	if !ok || role != utils.RoleAdmin {
		h.log.Warn("Admin route reached without admin role", zap.String("path", r.URL.Path))
		utils.ResponseForbidden(w, "Admin access required")
		return false
	}
	return true
}

// CancelBooking handles PUT /api/admin/bookings/{id}/cancel (admin only)
func (h *AdminHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	bookingID, ok := bookingIDParam(w, r)
	if !ok {
		return
	}

	booking, err := h.service.AdminCancelBooking(r.Context(), bookingID)
	if err != nil {
		handleServiceError(h.log, w, err, "admin cancel booking")
		return
	}

	h.log.Info("Booking cancelled by admin", zap.String("booking_id", bookingID.String()))
	utils.ResponseSuccess(w, "success", booking)
}

// ExpireStalePending handles POST /api/admin/bookings/expire (admin only)
func (h *AdminHandler) ExpireStalePending(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	result, err := h.service.ExpireStalePending(r.Context())
	if err != nil {
		handleServiceError(h.log, w, err, "expire stale bookings")
		return
	}

	utils.ResponseSuccess(w, "success", result)
}
