package usecase

import (
	"context"
	"errors"
	"time"

	"hotel-booking/internal/data/entity"
	"hotel-booking/internal/data/repository"
	"hotel-booking/pkg/apperror"
	"hotel-booking/pkg/payment"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type EventParser interface {
	ParseEvent(payload []byte, signatureHeader string) (*payment.Event, error)
}

// PaymentService reconciles bookings with provider notifications. Delivery
// is at-least-once and unordered, so every handler re-reads the persisted
// booking under a row lock and acts only on PendingPayment.
type PaymentService interface {
	HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error
	ProcessEvent(ctx context.Context, evt *payment.Event) error
}

type paymentService struct {
	repo     *repository.Repository
	gateway  PaymentGateway
	parser   EventParser
	notifier EventNotifier
	log      *zap.Logger
	now      func() time.Time
}

func NewPaymentService(repo *repository.Repository, gateway PaymentGateway, parser EventParser, notifier EventNotifier, log *zap.Logger) PaymentService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &paymentService{
		repo:     repo,
		gateway:  gateway,
		parser:   parser,
		notifier: notifier,
		log:      log.With(zap.String("service", "payment")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *paymentService) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	evt, err := s.parser.ParseEvent(payload, signatureHeader)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			s.log.Warn("Rejected webhook with invalid signature", zap.Error(err))
			return apperror.Validation("invalid webhook signature")
		}
		s.log.Warn("Rejected malformed webhook", zap.Error(err))
		return apperror.Validation("malformed webhook payload")
	}

	return s.ProcessEvent(ctx, evt)
}

func (s *paymentService) ProcessEvent(ctx context.Context, evt *payment.Event) (err error) {
	ctx, span := startSpan(ctx, "PaymentService.ProcessEvent",
		attribute.String("event.id", evt.ID),
		attribute.String("event.type", evt.Type),
		attribute.String("booking.id", evt.BookingID.String()),
	)
	defer func() { endSpan(span, err) }()

	switch evt.Type {
	case payment.EventPaymentSucceeded:
		return s.reconcile(ctx, evt, s.confirm)
	case payment.EventPaymentFailed:
		return s.reconcile(ctx, evt, s.fail)
	default:
		s.log.Info("Ignoring payment event", zap.String("event_id", evt.ID), zap.String("type", evt.Type))
		return nil
	}
}

type transition func(ctx context.Context, tx *repository.Repository, b *entity.Booking, evt *payment.Event) error

func (s *paymentService) reconcile(ctx context.Context, evt *payment.Event, apply transition) error {
	applied := false

	err := s.repo.Tx.WithinTx(ctx, readCommitted, func(tx *repository.Repository) error {
		b, err := tx.Booking.FindByIDForUpdate(ctx, evt.BookingID)
		if err != nil {
			return err
		}
		if b == nil {
			return apperror.NotFound("booking %s not found", evt.BookingID)
		}

		if b.Status() != entity.BookingStatusPendingPayment {
			s.logAlreadyHandled(b, evt)
			return nil
		}

		if err := apply(ctx, tx, b, evt); err != nil {
			return err
		}
		applied = true
		return nil
	})

	if apperror.Is(err, apperror.KindIllegalState) {
		s.log.Info("Payment event already handled",
			zap.String("event_id", evt.ID),
			zap.String("booking_id", evt.BookingID.String()),
			zap.Error(err),
		)
		return nil
	}
	if apperror.Is(err, apperror.KindNotFound) {
		s.log.Warn("Payment event for unknown booking",
			zap.String("event_id", evt.ID),
			zap.String("booking_id", evt.BookingID.String()),
		)
		return err
	}
	if err != nil {
		s.log.Error("Failed to reconcile payment event",
			zap.String("event_id", evt.ID),
			zap.String("booking_id", evt.BookingID.String()),
			zap.Error(err),
		)
		return toAppError(err, "reconcile payment event")
	}

	if !applied {
		return nil
	}
	s.notifier.Notify()

	// A failed attempt leaves the intent open for another card; close it so a
	// late success cannot charge for a released room.
	if evt.Type == payment.EventPaymentFailed {
		s.voidIntent(ctx, evt)
	}
	return nil
}

func (s *paymentService) voidIntent(ctx context.Context, evt *payment.Event) {
	if s.gateway == nil || evt.IntentID == "" {
		return
	}
	if err := s.gateway.CancelPaymentIntent(ctx, evt.IntentID); err != nil {
		s.log.Error("Failed to void payment intent after failed payment",
			zap.String("booking_id", evt.BookingID.String()),
			zap.String("intent_id", evt.IntentID),
			zap.Error(err),
		)
	}
}

func (s *paymentService) confirm(ctx context.Context, tx *repository.Repository, b *entity.Booking, evt *payment.Event) error {
	now := s.now()

	if evt.Amount != b.TotalPrice {
		s.log.Warn("Payment amount differs from booking total",
			zap.String("booking_id", b.ID.String()),
			zap.Int64("expected", b.TotalPrice),
			zap.Int64("received", evt.Amount),
		)
	}

	p, err := entity.NewPayment(b.ID, evt.Amount, evt.Currency, evt.IntentID, evt.Method, now)
	if err != nil {
		return err
	}
	if err := b.Confirm(p.ID, now); err != nil {
		return err
	}

	if err := tx.Payment.Create(ctx, p); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return apperror.New(apperror.KindConflict, "payment already recorded", err)
		}
		return err
	}
	if err := tx.Booking.Update(ctx, b); err != nil {
		return err
	}

	evtRow, err := entity.NewBookingEvent(entity.EventBookingConfirmed, b, "", now)
	if err != nil {
		return err
	}
	if err := tx.Outbox.Create(ctx, evtRow); err != nil {
		return err
	}

	s.log.Info("Booking confirmed",
		zap.String("booking_id", b.ID.String()),
		zap.String("payment_id", p.ID.String()),
		zap.String("intent_id", evt.IntentID),
	)
	return nil
}

func (s *paymentService) fail(ctx context.Context, tx *repository.Repository, b *entity.Booking, evt *payment.Event) error {
	now := s.now()

	if err := b.Cancel(now); err != nil {
		return err
	}
	if err := tx.Booking.Update(ctx, b); err != nil {
		return err
	}

	evtRow, err := entity.NewBookingEvent(entity.EventBookingPaymentFailed, b, evt.FailureReason, now)
	if err != nil {
		return err
	}
	if err := tx.Outbox.Create(ctx, evtRow); err != nil {
		return err
	}

	s.log.Info("Booking cancelled after failed payment",
		zap.String("booking_id", b.ID.String()),
		zap.String("intent_id", evt.IntentID),
		zap.String("reason", evt.FailureReason),
	)
	return nil
}

func (s *paymentService) logAlreadyHandled(b *entity.Booking, evt *payment.Event) {
	fields := []zap.Field{
		zap.String("event_id", evt.ID),
		zap.String("type", evt.Type),
		zap.String("booking_id", b.ID.String()),
		zap.String("status", string(b.Status())),
	}

	// Money was taken for a booking that no longer holds the room.
	if evt.Type == payment.EventPaymentSucceeded && b.Status() == entity.BookingStatusCancelled {
		s.log.Error("Payment succeeded for a cancelled booking, refund required", fields...)
		return
	}
	// A second intent was charged for a booking that is already paid.
	if evt.Type == payment.EventPaymentSucceeded && b.Status() == entity.BookingStatusConfirmed &&
		b.PaymentIntentID != nil && *b.PaymentIntentID != evt.IntentID {
		s.log.Error("Duplicate payment for a confirmed booking, refund required",
			append(fields, zap.String("intent_id", evt.IntentID), zap.String("booking_intent_id", *b.PaymentIntentID))...)
		return
	}
	s.log.Info("Payment event already handled", fields...)
}
