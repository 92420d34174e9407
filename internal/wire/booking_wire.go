package wire

import (
	"net/http"

	"hotel-booking/internal/adaptor"
	"hotel-booking/pkg/middleware"
	"hotel-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wireBooking(
	r chi.Router,
	bookingHandler *adaptor.BookingHandler,
	store middleware.IdempotencyStore,
	config *utils.Config,
	log *zap.Logger,
) {
	idempotent := func(next http.Handler) http.Handler { return next }
	if store != nil {
		idempotent = middleware.Idempotency(store, config.Redis.IdempotencyTTL, log)
	}

	// ==================== PROTECTED ROUTES ====================
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireUser(log))

		// POST /api/bookings/initiate - Reserve a room and open a payment intent
		r.With(idempotent).Post("/api/bookings/initiate", bookingHandler.InitiateBooking)

		// POST /api/bookings - Reserve a room, payment requested later
		r.With(idempotent).Post("/api/bookings", bookingHandler.CreateBooking)

		// GET /api/user/bookings - Caller's booking history
		r.Get("/api/user/bookings", bookingHandler.GetUserBookings)

		r.Route("/api/bookings/{id}", func(r chi.Router) {
			r.Get("/", bookingHandler.GetBooking)

			// POST /api/bookings/{id}/payment-intent - Retry the payment step
			r.Post("/payment-intent", bookingHandler.CreatePaymentIntent)

			// POST /api/bookings/{id}/cancel - Guest cancellation
			r.Post("/cancel", bookingHandler.CancelBooking)
		})
	})
}
