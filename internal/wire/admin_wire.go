package wire

import (
	"hotel-booking/internal/adaptor"
	"hotel-booking/pkg/middleware"
	"hotel-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wireWebhook(r chi.Router, webhookHandler *adaptor.WebhookHandler) {
	// POST /webhooks/payment - Provider notifications, authenticated by signature
	r.Post("/webhooks/payment", webhookHandler.PaymentWebhook)
}

func wireAdmin(
	r chi.Router,
	adminHandler *adaptor.AdminHandler,
	config *utils.Config,
	log *zap.Logger,
) {
	// ==================== ADMIN ROUTES ====================
	r.Route("/api/admin/bookings", func(r chi.Router) {
		r.Use(middleware.AdminKey(config.Admin.APIKeyHash, log))

		// PUT /api/admin/bookings/{id}/cancel - Cancel any booking
		r.Put("/{id}/cancel", adminHandler.CancelBooking)

		// POST /api/admin/bookings/expire - Run the stale booking reaper now
		r.Post("/expire", adminHandler.ExpireStalePending)
	})
}
