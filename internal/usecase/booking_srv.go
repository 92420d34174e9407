package usecase

import (
	"context"
	"errors"
	"time"

	"hotel-booking/internal/data/entity"
	"hotel-booking/internal/data/repository"
	"hotel-booking/internal/dto/request"
	"hotel-booking/internal/dto/response"
	"hotel-booking/pkg/apperror"
	"hotel-booking/pkg/database"
	"hotel-booking/pkg/payment"
	"hotel-booking/pkg/utils"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	serializable  = pgx.TxOptions{IsoLevel: pgx.Serializable}
	readCommitted = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
)

const defaultReaperBatch = 50

type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, amount int64, currency string, bookingID uuid.UUID) (*payment.Intent, error)
	CancelPaymentIntent(ctx context.Context, intentID string) error
}

// EventNotifier is poked after a commit that wrote outbox events.
type EventNotifier interface {
	Notify()
}

type noopNotifier struct{}

func (noopNotifier) Notify() {}

type BookingService interface {
	// Guest endpoints
	InitiateBooking(ctx context.Context, userID uuid.UUID, req *request.InitiateBookingRequest) (*response.InitiateBookingResponse, error)
	CreateBooking(ctx context.Context, userID uuid.UUID, req *request.InitiateBookingRequest) (*response.BookingResponse, error)
	CreatePaymentIntent(ctx context.Context, userID, bookingID uuid.UUID) (*response.InitiateBookingResponse, error)
	GetBookingByID(ctx context.Context, userID, bookingID uuid.UUID) (*response.BookingResponse, error)
	GetUserBookings(ctx context.Context, userID uuid.UUID, req *request.PaginatedRequest) (*response.BookingPage, error)
	CancelBooking(ctx context.Context, userID, bookingID uuid.UUID) (*response.BookingResponse, error)

	// Operations
	AdminCancelBooking(ctx context.Context, bookingID uuid.UUID) (*response.BookingResponse, error)
	ExpireStalePending(ctx context.Context) (*response.ExpireResponse, error)

	// Collaborator callbacks
	MarkAsReviewed(ctx context.Context, bookingID uuid.UUID) error
	RecordDocumentStatus(ctx context.Context, bookingID uuid.UUID, url, failure string) error
}

type bookingService struct {
	repo     *repository.Repository
	gateway  PaymentGateway
	notifier EventNotifier
	config   utils.BookingConfig
	currency string
	log      *zap.Logger
	now      func() time.Time
}

func NewBookingService(repo *repository.Repository, gateway PaymentGateway, notifier EventNotifier, config *utils.Config, log *zap.Logger) BookingService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &bookingService{
		repo:     repo,
		gateway:  gateway,
		notifier: notifier,
		config:   config.Booking,
		currency: config.Payment.Currency,
		log:      log.With(zap.String("service", "booking")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *bookingService) InitiateBooking(ctx context.Context, userID uuid.UUID, req *request.InitiateBookingRequest) (resp *response.InitiateBookingResponse, err error) {
	ctx, span := startSpan(ctx, "BookingService.InitiateBooking", attribute.String("user.id", userID.String()))
	defer func() { endSpan(span, err) }()

	booking, err := s.reserve(ctx, userID, req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("booking.id", booking.ID.String()))

	return s.requestPayment(ctx, booking)
}

func (s *bookingService) CreateBooking(ctx context.Context, userID uuid.UUID, req *request.InitiateBookingRequest) (*response.BookingResponse, error) {
	booking, err := s.reserve(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	resp := response.BookingToResponse(booking)
	return &resp, nil
}

// reserve validates the request, then picks and books a free room in one
// serializable transaction. The overlap constraint on bookings backs this up
// if two transactions still pick the same room.
func (s *bookingService) reserve(ctx context.Context, userID uuid.UUID, req *request.InitiateBookingRequest) (*entity.Booking, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		s.log.Warn("Booking request validation failed", zap.Any("errors", errs))
		return nil, apperror.Validation("validation failed: %s", utils.FormatValidationErrors(errs))
	}

	hotelID := uuid.MustParse(req.HotelID)
	roomTypeID := uuid.MustParse(req.RoomTypeID)

	stay, err := parseStay(req.CheckIn, req.CheckOut)
	if err != nil {
		return nil, err
	}

	var booking *entity.Booking
	err = s.repo.Tx.WithinTx(ctx, serializable, func(tx *repository.Repository) error {
		_, roomType, err := loadRoomType(ctx, tx, hotelID, roomTypeID)
		if err != nil {
			return err
		}

		if !roomType.Accommodates(req.Adults, req.Children) {
			return capacityError(roomType)
		}

		rooms, err := findAvailableRooms(ctx, tx, hotelID, roomTypeID, stay)
		if err != nil {
			return err
		}
		if len(rooms) == 0 {
			return errNoLongerAvailable()
		}

		b, err := entity.NewBooking(entity.NewBookingParams{
			RoomID:          rooms[0],
			UserID:          userID,
			Stay:            stay,
			TotalPrice:      roomType.PriceFor(stay),
			Currency:        s.currency,
			GuestName:       req.GuestName,
			SpecialRequests: req.SpecialRequests,
		}, s.now())
		if err != nil {
			return err
		}

		if err := tx.Booking.Create(ctx, b); err != nil {
			if errors.Is(err, repository.ErrBookingOverlap) {
				return errNoLongerAvailable()
			}
			return err
		}

		booking = b
		return nil
	})
	if err != nil {
		return nil, toAppError(err, "reserve room")
	}

	s.log.Info("Booking reserved",
		zap.String("booking_id", booking.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("room_id", booking.RoomID.String()),
		zap.String("stay", booking.Stay().String()),
		zap.Int64("total_price", booking.TotalPrice),
	)

	return booking, nil
}

// requestPayment creates the provider intent for a committed booking. A
// failure here leaves the booking pending; the guest can retry, and the
// reaper expires it otherwise.
func (s *bookingService) requestPayment(ctx context.Context, booking *entity.Booking) (*response.InitiateBookingResponse, error) {
	intent, err := s.gateway.CreatePaymentIntent(ctx, booking.TotalPrice, booking.Currency, booking.ID)
	if err != nil {
		s.log.Error("Failed to create payment intent, booking left pending",
			zap.String("booking_id", booking.ID.String()),
			zap.Error(err),
		)
		return nil, apperror.Infrastructure("create payment intent", err)
	}

	err = s.repo.Tx.WithinTx(ctx, readCommitted, func(tx *repository.Repository) error {
		b, err := tx.Booking.FindByIDForUpdate(ctx, booking.ID)
		if err != nil {
			return err
		}
		if b == nil {
			return apperror.NotFound("booking %s not found", booking.ID)
		}
		if err := b.AttachPaymentIntent(intent.ID, s.now()); err != nil {
			return err
		}
		return tx.Booking.Update(ctx, b)
	})
	if err != nil {
		return nil, toAppError(err, "attach payment intent")
	}

	return &response.InitiateBookingResponse{
		BookingID:       booking.ID.String(),
		Status:          entity.BookingStatusPendingPayment,
		TotalPrice:      booking.TotalPrice,
		Currency:        booking.Currency,
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
	}, nil
}

func (s *bookingService) CreatePaymentIntent(ctx context.Context, userID, bookingID uuid.UUID) (*response.InitiateBookingResponse, error) {
	booking, err := s.ownBooking(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}

	if booking.Status() != entity.BookingStatusPendingPayment {
		return nil, apperror.IllegalState("booking is %s, payment can only be requested while pending", booking.Status())
	}

	return s.requestPayment(ctx, booking)
}

func (s *bookingService) GetBookingByID(ctx context.Context, userID, bookingID uuid.UUID) (*response.BookingResponse, error) {
	booking, err := s.ownBooking(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}

	resp := response.BookingToResponse(booking)

	if booking.PaymentID != nil {
		p, err := s.repo.Payment.FindByBookingID(ctx, booking.ID)
		if err != nil {
			return nil, apperror.Infrastructure("load payment", err)
		}
		if p != nil {
			resp.Payment = response.PaymentToResponse(p)
		}
	}

	return &resp, nil
}

func (s *bookingService) GetUserBookings(ctx context.Context, userID uuid.UUID, req *request.PaginatedRequest) (*response.BookingPage, error) {
	limit := req.Limit()
	offset := req.Offset()

	bookings, err := s.repo.Booking.FindByUserID(ctx, userID, limit, offset)
	if err != nil {
		s.log.Error("Failed to get user bookings",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		return nil, apperror.Infrastructure("load bookings", err)
	}

	total, err := s.repo.Booking.CountByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.Infrastructure("count bookings", err)
	}

	page := &response.BookingPage{
		Bookings: make([]response.BookingResponse, len(bookings)),
		Meta:     response.NewPageMeta(req.CurrentPage(), limit, total),
	}
	for i, b := range bookings {
		page.Bookings[i] = response.BookingToResponse(b)
	}
	return page, nil
}

func (s *bookingService) CancelBooking(ctx context.Context, userID, bookingID uuid.UUID) (*response.BookingResponse, error) {
	return s.cancel(ctx, bookingID, &userID, "guest")
}

func (s *bookingService) AdminCancelBooking(ctx context.Context, bookingID uuid.UUID) (*response.BookingResponse, error) {
	return s.cancel(ctx, bookingID, nil, "admin")
}

func (s *bookingService) cancel(ctx context.Context, bookingID uuid.UUID, owner *uuid.UUID, actor string) (*response.BookingResponse, error) {
	var cancelled *entity.Booking
	var intentToVoid *string

	err := s.repo.Tx.WithinTx(ctx, readCommitted, func(tx *repository.Repository) error {
		b, err := tx.Booking.FindByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b == nil || (owner != nil && !b.BelongsTo(*owner)) {
			return apperror.NotFound("booking %s not found", bookingID)
		}

		wasPending := b.Status() == entity.BookingStatusPendingPayment
		if err := b.Cancel(s.now()); err != nil {
			return err
		}
		if err := tx.Booking.Update(ctx, b); err != nil {
			return err
		}

		evt, err := entity.NewBookingEvent(entity.EventBookingCancelled, b, "cancelled by "+actor, s.now())
		if err != nil {
			return err
		}
		if err := tx.Outbox.Create(ctx, evt); err != nil {
			return err
		}

		if wasPending && b.PaymentIntentID != nil {
			intentToVoid = b.PaymentIntentID
		}
		cancelled = b
		return nil
	})
	if err != nil {
		return nil, toAppError(err, "cancel booking")
	}

	s.notifier.Notify()

	s.log.Info("Booking cancelled",
		zap.String("booking_id", bookingID.String()),
		zap.String("actor", actor),
	)

	if intentToVoid != nil {
		if err := s.gateway.CancelPaymentIntent(ctx, *intentToVoid); err != nil {
			s.log.Error("Failed to void payment intent of cancelled booking",
				zap.String("booking_id", bookingID.String()),
				zap.String("intent_id", *intentToVoid),
				zap.Error(err),
			)
		}
	}

	resp := response.BookingToResponse(cancelled)
	return &resp, nil
}

// ExpireStalePending cancels bookings whose payment never completed. The
// provider intent is voided first; if that fails the booking is left alone,
// since a success notification may still be on its way.
func (s *bookingService) ExpireStalePending(ctx context.Context) (result *response.ExpireResponse, err error) {
	ctx, span := startSpan(ctx, "BookingService.ExpireStalePending")
	defer func() { endSpan(span, err) }()

	batch := s.config.ReaperBatch
	if batch <= 0 {
		batch = defaultReaperBatch
	}
	cutoff := s.now().Add(-s.config.PendingTTL)

	candidates, err := s.repo.Booking.FindStalePending(ctx, cutoff, batch)
	if err != nil {
		return nil, apperror.Infrastructure("load stale bookings", err)
	}

	result = &response.ExpireResponse{}
	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}

		if c.PaymentIntentID != nil {
			if err := s.gateway.CancelPaymentIntent(ctx, *c.PaymentIntentID); err != nil {
				s.log.Warn("Could not void payment intent, leaving booking pending",
					zap.String("booking_id", c.ID.String()),
					zap.String("intent_id", *c.PaymentIntentID),
					zap.Error(err),
				)
				result.Skipped++
				continue
			}
		}

		expired, err := s.expireOne(ctx, c.ID)
		if err != nil {
			s.log.Error("Failed to expire booking", zap.String("booking_id", c.ID.String()), zap.Error(err))
			result.Skipped++
			continue
		}
		if expired {
			result.Expired++
		} else {
			result.Skipped++
		}
	}

	if result.Expired > 0 {
		s.notifier.Notify()
		s.log.Info("Expired stale bookings", zap.Int("expired", result.Expired), zap.Int("skipped", result.Skipped))
	}

	span.SetAttributes(attribute.Int("bookings.expired", result.Expired))
	return result, nil
}

func (s *bookingService) expireOne(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	expired := false
	err := s.repo.Tx.WithinTx(ctx, readCommitted, func(tx *repository.Repository) error {
		b, err := tx.Booking.FindByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b == nil || b.Status() != entity.BookingStatusPendingPayment {
			return nil
		}

		if err := b.Cancel(s.now()); err != nil {
			return err
		}
		if err := tx.Booking.Update(ctx, b); err != nil {
			return err
		}

		evt, err := entity.NewBookingEvent(entity.EventBookingExpired, b, "payment not completed within "+s.config.PendingTTL.String(), s.now())
		if err != nil {
			return err
		}
		if err := tx.Outbox.Create(ctx, evt); err != nil {
			return err
		}

		expired = true
		return nil
	})
	return expired, err
}

func (s *bookingService) MarkAsReviewed(ctx context.Context, bookingID uuid.UUID) error {
	return s.mutate(ctx, bookingID, func(b *entity.Booking) {
		b.MarkAsReviewed(s.now())
	})
}

// RecordDocumentStatus stores the outcome of confirmation document
// generation. A non-empty failure takes precedence over url.
func (s *bookingService) RecordDocumentStatus(ctx context.Context, bookingID uuid.UUID, url, failure string) error {
	return s.mutate(ctx, bookingID, func(b *entity.Booking) {
		if failure != "" {
			b.RecordDocumentFailure(failure, s.now())
			return
		}
		b.RecordDocument(url, s.now())
	})
}

func (s *bookingService) mutate(ctx context.Context, bookingID uuid.UUID, apply func(b *entity.Booking)) error {
	err := s.repo.Tx.WithinTx(ctx, readCommitted, func(tx *repository.Repository) error {
		b, err := tx.Booking.FindByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b == nil {
			return apperror.NotFound("booking %s not found", bookingID)
		}
		apply(b)
		return tx.Booking.Update(ctx, b)
	})
	if err != nil {
		return toAppError(err, "update booking")
	}
	return nil
}

func (s *bookingService) ownBooking(ctx context.Context, userID, bookingID uuid.UUID) (*entity.Booking, error) {
	booking, err := s.repo.Booking.FindByID(ctx, bookingID)
	if err != nil {
		return nil, apperror.Infrastructure("load booking", err)
	}
	if booking == nil || !booking.BelongsTo(userID) {
		return nil, apperror.NotFound("booking %s not found", bookingID)
	}
	return booking, nil
}

func errNoLongerAvailable() error {
	return apperror.Validation("the requested room type is no longer available for these dates")
}

// toAppError turns serialization failures that outlived the transactor's
// retries into a retryable conflict and passes classified errors through.
// Anything else is an infrastructure failure.
func toAppError(err error, op string) error {
	if database.IsRetryable(err) {
		return apperror.New(apperror.KindConflict, "the request collided with a concurrent update, please retry", err)
	}
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.Infrastructure(op, err)
}
