package adaptor

import (
	"net/http"

	"hotel-booking/internal/dto/request"
	"hotel-booking/internal/usecase"
	"hotel-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type AvailabilityHandler struct {
	service usecase.AvailabilityService
	log     *zap.Logger
}

func NewAvailabilityHandler(service usecase.AvailabilityService, log *zap.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{
		service: service,
		log:     log.With(zap.String("handler", "availability")),
	}
}

// CheckAvailability handles GET /api/hotels/{hotelId}/room-types/{roomTypeId}/availability (public)
func (h *AvailabilityHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	req := request.AvailabilityRequest{
		HotelID:    chi.URLParam(r, "hotelId"),
		RoomTypeID: chi.URLParam(r, "roomTypeId"),
		CheckIn:    query.Get("check_in"),
		CheckOut:   query.Get("check_out"),
		Adults:     utils.ParseInt(query.Get("adults"), 1),
		Children:   utils.ParseNonNegativeInt(query.Get("children"), 0),
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	availability, err := h.service.CheckAvailability(r.Context(), &req)
	if err != nil {
		handleServiceError(h.log, w, err, "check availability")
		return
	}

	utils.ResponseSuccess(w, "success", availability)
}
