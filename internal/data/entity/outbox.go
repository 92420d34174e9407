package entity

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Routing keys of the notifications this service publishes.
const (
	EventBookingConfirmed     = "booking.confirmed"
	EventBookingPaymentFailed = "booking.payment_failed"
	EventBookingExpired       = "booking.expired"
	EventBookingCancelled     = "booking.cancelled"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

type OutboxEvent struct {
	ID            uuid.UUID    `db:"id"`
	AggregateID   uuid.UUID    `db:"aggregate_id"`
	EventType     string       `db:"event_type"`
	Payload       []byte       `db:"payload"`
	Status        OutboxStatus `db:"status"`
	Attempts      int          `db:"attempts"`
	LastError     *string      `db:"last_error"`
	NextAttemptAt time.Time    `db:"next_attempt_at"`
	CreatedAt     time.Time    `db:"created_at"`
	PublishedAt   *time.Time   `db:"published_at"`
}

// BookingNotification is the message body consumers of booking events receive.
type BookingNotification struct {
	EventID    uuid.UUID     `json:"event_id"`
	BookingID  uuid.UUID     `json:"booking_id"`
	UserID     uuid.UUID     `json:"user_id"`
	Status     BookingStatus `json:"status"`
	GuestName  string        `json:"guest_name"`
	CheckIn    string        `json:"check_in"`
	CheckOut   string        `json:"check_out"`
	TotalPrice int64         `json:"total_price"`
	Currency   string        `json:"currency"`
	Reason     string        `json:"reason,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// NewBookingEvent snapshots b into a pending outbox row.
func NewBookingEvent(eventType string, b *Booking, reason string, now time.Time) (*OutboxEvent, error) {
	id := uuid.New()
	payload, err := json.Marshal(BookingNotification{
		EventID:    id,
		BookingID:  b.ID,
		UserID:     b.UserID,
		Status:     b.Status(),
		GuestName:  b.GuestName,
		CheckIn:    b.CheckInDate.Format(DateLayout),
		CheckOut:   b.CheckOutDate.Format(DateLayout),
		TotalPrice: b.TotalPrice,
		Currency:   b.Currency,
		Reason:     reason,
		OccurredAt: now,
	})
	if err != nil {
		return nil, err
	}

	return &OutboxEvent{
		ID:            id,
		AggregateID:   b.ID,
		EventType:     eventType,
		Payload:       payload,
		Status:        OutboxStatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}, nil
}
