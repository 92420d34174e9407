package adaptor

import (
	"net/http"

	"hotel-booking/internal/usecase"
	"hotel-booking/pkg/apperror"
	"hotel-booking/pkg/utils"

	"go.uber.org/zap"
)

type Handler struct {
	Availability *AvailabilityHandler
	Booking      *BookingHandler
	Webhook      *WebhookHandler
	Admin        *AdminHandler
}

func NewHandler(service *usecase.Service, log *zap.Logger) *Handler {
	return &Handler{
		Availability: NewAvailabilityHandler(service.Availability, log),
		Booking:      NewBookingHandler(service.Booking, log),
		Webhook:      NewWebhookHandler(service.Payment, log),
		Admin:        NewAdminHandler(service.Booking, log),
	}
}

// handleServiceError maps an error kind to its HTTP status. Messages of
// infrastructure failures never reach the client.
func handleServiceError(log *zap.Logger, w http.ResponseWriter, err error, operation string) {
	switch apperror.KindOf(err) {
	case apperror.KindNotFound:
		log.Warn(operation+" failed - not found",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseNotFound(w, apperror.Message(err, "Not found"))

	case apperror.KindValidation:
		log.Warn(operation+" validation failed",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseBadRequest(w, apperror.Message(err, "Invalid request"), nil)

	case apperror.KindIllegalState:
		log.Warn(operation+" failed - invalid state",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseConflict(w, apperror.Message(err, "Conflict"))

	case apperror.KindConflict:
		log.Warn(operation+" failed - concurrent update",
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseConflict(w, apperror.Message(err, "Conflict"))

	default:
		log.Error("Failed to "+operation,
			zap.Error(err),
			zap.String("operation", operation))
		utils.ResponseInternalError(w, "Internal server error")
	}
}
