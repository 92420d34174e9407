package wire

import (
	"hotel-booking/internal/adaptor"

	"github.com/go-chi/chi/v5"
)

func wireAvailability(r chi.Router, availabilityHandler *adaptor.AvailabilityHandler) {
	// ==================== PUBLIC ROUTES ====================
	// GET /api/hotels/{hotelId}/room-types/{roomTypeId}/availability?check_in=2026-11-02&check_out=2026-11-04&adults=2
	r.Get("/api/hotels/{hotelId}/room-types/{roomTypeId}/availability", availabilityHandler.CheckAvailability)
}
