package adaptor

import (
	"io"
	"net/http"

	"hotel-booking/internal/usecase"
	"hotel-booking/pkg/utils"

	"go.uber.org/zap"
)

const (
	// Stripe caps event payloads well below this.
	maxWebhookBody = 1 << 20

	StripeSignatureHeader = "Stripe-Signature"
)

type WebhookHandler struct {
	service usecase.PaymentService
	log     *zap.Logger
}

func NewWebhookHandler(service usecase.PaymentService, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		service: service,
		log:     log.With(zap.String("handler", "webhook")),
	}
}

// PaymentWebhook handles POST /webhooks/payment (signature verified)
//
// The provider redelivers anything that is not 2xx. Already-handled events
// and events for other flows are acknowledged; unknown bookings, conflicts
// and infrastructure failures are not.
func (h *WebhookHandler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	signature := r.Header.Get(StripeSignatureHeader)
	if signature == "" {
		utils.ResponseBadRequest(w, "Missing signature", nil)
		return
	}

	if err := h.service.HandleWebhook(r.Context(), payload, signature); err != nil {
		handleServiceError(h.log, w, err, "process payment webhook")
		return
	}

	utils.ResponseSuccess(w, "received", nil)
}
