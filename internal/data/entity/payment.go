package entity

import (
	"strings"
	"time"

	"hotel-booking/pkg/apperror"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentStatusSucceeded PaymentStatus = "succeeded"
)

// Payment is created exactly once per booking, when the provider reports a
// successful charge.
type Payment struct {
	Base
	BookingID         uuid.UUID     `db:"booking_id"`
	Amount            int64         `db:"amount"`
	Currency          string        `db:"currency"`
	ProviderReference string        `db:"provider_reference"`
	PaymentMethod     string        `db:"payment_method"`
	Status            PaymentStatus `db:"status"`
}

func NewPayment(bookingID uuid.UUID, amount int64, currency, providerReference, method string, now time.Time) (*Payment, error) {
	if providerReference == "" {
		return nil, apperror.Validation("payment provider reference is required")
	}
	if amount <= 0 {
		return nil, apperror.Validation("payment amount must be positive")
	}
	if method == "" {
		method = "unknown"
	}

	return &Payment{
		Base:              newBase(now),
		BookingID:         bookingID,
		Amount:            amount,
		Currency:          strings.ToLower(currency),
		ProviderReference: providerReference,
		PaymentMethod:     method,
		Status:            PaymentStatusSucceeded,
	}, nil
}
