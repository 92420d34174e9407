package entity

import (
	"strings"
	"time"

	"hotel-booking/pkg/apperror"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusPendingPayment BookingStatus = "pending_payment"
	BookingStatusConfirmed      BookingStatus = "confirmed"
	BookingStatusCancelled      BookingStatus = "cancelled"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPendingPayment, BookingStatusConfirmed, BookingStatusCancelled:
		return true
	}
	return false
}

// CancellationCutover is how far ahead of check-in a confirmed booking can
// still be cancelled.
const CancellationCutover = 48 * time.Hour

// Booking is the reservation aggregate. Status only moves through Confirm and
// Cancel; there is no way to set it directly.
type Booking struct {
	Base
	RoomID          uuid.UUID  `db:"room_id"`
	UserID          uuid.UUID  `db:"user_id"`
	CheckInDate     time.Time  `db:"check_in_date"`
	CheckOutDate    time.Time  `db:"check_out_date"`
	TotalPrice      int64      `db:"total_price"`
	Currency        string     `db:"currency"`
	GuestName       string     `db:"guest_name"`
	SpecialRequests *string    `db:"special_requests"`
	PaymentID       *uuid.UUID `db:"payment_id"`
	PaymentIntentID *string    `db:"payment_intent_id"`
	IsReviewed      bool       `db:"is_reviewed"`
	PdfURL          *string    `db:"pdf_url"`
	PdfFailed       bool       `db:"pdf_failed"`
	PdfError        *string    `db:"pdf_error"`

	status BookingStatus
}

type NewBookingParams struct {
	RoomID          uuid.UUID
	UserID          uuid.UUID
	Stay            DateRange
	TotalPrice      int64
	Currency        string
	GuestName       string
	SpecialRequests *string
}

// NewBooking creates a PendingPayment booking. The check-in date may not lie
// before the UTC date of now.
func NewBooking(p NewBookingParams, now time.Time) (*Booking, error) {
	if p.RoomID == uuid.Nil {
		return nil, apperror.Validation("room is required")
	}
	if p.UserID == uuid.Nil {
		return nil, apperror.Validation("user is required")
	}

	stay, err := NewDateRange(p.Stay.CheckIn, p.Stay.CheckOut)
	if err != nil {
		return nil, err
	}
	if stay.CheckIn.Before(DateOf(now)) {
		return nil, apperror.Validation("check-in date cannot be in the past")
	}
	if p.TotalPrice <= 0 {
		return nil, apperror.Validation("total price must be positive")
	}

	guestName := strings.TrimSpace(p.GuestName)
	if guestName == "" {
		return nil, apperror.Validation("guest name is required")
	}

	var requests *string
	if p.SpecialRequests != nil {
		if s := strings.TrimSpace(*p.SpecialRequests); s != "" {
			requests = &s
		}
	}

	return &Booking{
		Base:            newBase(now),
		RoomID:          p.RoomID,
		UserID:          p.UserID,
		CheckInDate:     stay.CheckIn,
		CheckOutDate:    stay.CheckOut,
		TotalPrice:      p.TotalPrice,
		Currency:        strings.ToLower(p.Currency),
		GuestName:       guestName,
		SpecialRequests: requests,
		status:          BookingStatusPendingPayment,
	}, nil
}

// RestoreBooking rebuilds a booking loaded from storage.
func RestoreBooking(b Booking, status BookingStatus) *Booking {
	b.status = status
	return &b
}

func (b *Booking) Status() BookingStatus {
	return b.status
}

func (b *Booking) Stay() DateRange {
	return DateRange{CheckIn: b.CheckInDate, CheckOut: b.CheckOutDate}
}

func (b *Booking) Nights() int {
	return b.Stay().Nights()
}

// Confirm moves a PendingPayment booking to Confirmed. Any other state is
// rejected, including a booking that is already confirmed.
func (b *Booking) Confirm(paymentID uuid.UUID, now time.Time) error {
	if b.status != BookingStatusPendingPayment {
		return apperror.IllegalState("cannot confirm a booking in status %s", b.status)
	}
	if paymentID == uuid.Nil {
		return apperror.Validation("payment is required to confirm a booking")
	}

	b.status = BookingStatusConfirmed
	b.PaymentID = &paymentID
	b.UpdatedAt = now
	return nil
}

// Cancel is always legal while payment is pending. A confirmed booking can be
// cancelled only while check-in is more than CancellationCutover away.
func (b *Booking) Cancel(now time.Time) error {
	switch b.status {
	case BookingStatusPendingPayment:
	case BookingStatusConfirmed:
		if b.CheckInDate.Sub(now) <= CancellationCutover {
			return apperror.IllegalState("cannot cancel inside the cutover window")
		}
	default:
		return apperror.IllegalState("cannot cancel a booking in status %s", b.status)
	}

	b.status = BookingStatusCancelled
	b.UpdatedAt = now
	return nil
}

// AttachPaymentIntent records the provider intent created for this booking.
func (b *Booking) AttachPaymentIntent(intentID string, now time.Time) error {
	if b.status != BookingStatusPendingPayment {
		return apperror.IllegalState("cannot attach a payment intent to a booking in status %s", b.status)
	}
	b.PaymentIntentID = &intentID
	b.UpdatedAt = now
	return nil
}

// MarkAsReviewed is idempotent.
func (b *Booking) MarkAsReviewed(now time.Time) {
	if b.IsReviewed {
		return
	}
	b.IsReviewed = true
	b.UpdatedAt = now
}

// RecordDocument and RecordDocumentFailure track the confirmation PDF. They
// never touch the booking status.
func (b *Booking) RecordDocument(url string, now time.Time) {
	b.PdfURL = &url
	b.PdfFailed = false
	b.PdfError = nil
	b.UpdatedAt = now
}

func (b *Booking) RecordDocumentFailure(reason string, now time.Time) {
	b.PdfFailed = true
	b.PdfError = &reason
	b.UpdatedAt = now
}

func (b *Booking) BelongsTo(userID uuid.UUID) bool {
	return b.UserID == userID
}
