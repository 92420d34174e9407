package response

import (
	"time"

	"hotel-booking/internal/data/entity"
)

type BookingResponse struct {
	ID              string               `json:"id"`
	RoomID          string               `json:"room_id"`
	UserID          string               `json:"user_id"`
	CheckIn         string               `json:"check_in"`
	CheckOut        string               `json:"check_out"`
	Nights          int                  `json:"nights"`
	TotalPrice      int64                `json:"total_price"`
	Currency        string               `json:"currency"`
	Status          entity.BookingStatus `json:"status"`
	GuestName       string               `json:"guest_name"`
	SpecialRequests *string              `json:"special_requests,omitempty"`
	PaymentIntentID *string              `json:"payment_intent_id,omitempty"`
	IsReviewed      bool                 `json:"is_reviewed"`
	Document        *DocumentResponse    `json:"document,omitempty"`
	Payment         *PaymentResponse     `json:"payment,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

type DocumentResponse struct {
	URL    *string `json:"url,omitempty"`
	Failed bool    `json:"failed"`
	Error  *string `json:"error,omitempty"`
}

type PaymentResponse struct {
	ID                string               `json:"id"`
	Amount            int64                `json:"amount"`
	Currency          string               `json:"currency"`
	ProviderReference string               `json:"provider_reference"`
	PaymentMethod     string               `json:"payment_method"`
	Status            entity.PaymentStatus `json:"status"`
	CreatedAt         time.Time            `json:"created_at"`
}

// InitiateBookingResponse carries the handle the client needs to complete
// payment with the provider.
type InitiateBookingResponse struct {
	BookingID       string               `json:"booking_id"`
	Status          entity.BookingStatus `json:"status"`
	TotalPrice      int64                `json:"total_price"`
	Currency        string               `json:"currency"`
	PaymentIntentID string               `json:"payment_intent_id"`
	ClientSecret    string               `json:"client_secret"`
}

type AvailabilityResponse struct {
	HotelID       string   `json:"hotel_id"`
	RoomTypeID    string   `json:"room_type_id"`
	CheckIn       string   `json:"check_in"`
	CheckOut      string   `json:"check_out"`
	Nights        int      `json:"nights"`
	PricePerNight int64    `json:"price_per_night"`
	TotalPrice    int64    `json:"total_price"`
	Available     int      `json:"available"`
	RoomIDs       []string `json:"room_ids"`
}

type ExpireResponse struct {
	Expired int `json:"expired"`
	Skipped int `json:"skipped"`
}

func BookingToResponse(b *entity.Booking) BookingResponse {
	resp := BookingResponse{
		ID:              b.ID.String(),
		RoomID:          b.RoomID.String(),
		UserID:          b.UserID.String(),
		CheckIn:         b.CheckInDate.Format(entity.DateLayout),
		CheckOut:        b.CheckOutDate.Format(entity.DateLayout),
		Nights:          b.Nights(),
		TotalPrice:      b.TotalPrice,
		Currency:        b.Currency,
		Status:          b.Status(),
		GuestName:       b.GuestName,
		SpecialRequests: b.SpecialRequests,
		PaymentIntentID: b.PaymentIntentID,
		IsReviewed:      b.IsReviewed,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}

	if b.PdfURL != nil || b.PdfFailed {
		resp.Document = &DocumentResponse{URL: b.PdfURL, Failed: b.PdfFailed, Error: b.PdfError}
	}

	return resp
}

func PaymentToResponse(p *entity.Payment) *PaymentResponse {
	return &PaymentResponse{
		ID:                p.ID.String(),
		Amount:            p.Amount,
		Currency:          p.Currency,
		ProviderReference: p.ProviderReference,
		PaymentMethod:     p.PaymentMethod,
		Status:            p.Status,
		CreatedAt:         p.CreatedAt,
	}
}

// BookingPage is a guest's booking history, newest first.
type BookingPage struct {
	Bookings []BookingResponse `json:"bookings"`
	Meta     PageMeta          `json:"meta"`
}
