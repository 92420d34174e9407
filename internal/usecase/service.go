package usecase

import (
	"hotel-booking/internal/data/repository"
	"hotel-booking/pkg/payment"
	"hotel-booking/pkg/utils"

	"go.uber.org/zap"
)

// Provider is the payment provider surface the services depend on.
type Provider interface {
	PaymentGateway
	EventParser
}

var _ Provider = (*payment.StripeGateway)(nil)

type Service struct {
	Availability AvailabilityService
	Booking      BookingService
	Payment      PaymentService
}

func NewService(repo *repository.Repository, provider Provider, notifier EventNotifier, config *utils.Config, log *zap.Logger) *Service {
	return &Service{
		Availability: NewAvailabilityService(repo, log),
		Booking:      NewBookingService(repo, provider, notifier, config, log),
		Payment:      NewPaymentService(repo, provider, provider, notifier, log),
	}
}
