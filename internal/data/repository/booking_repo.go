package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hotel-booking/internal/data/entity"
	"hotel-booking/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type BookingRepository interface {
	Create(ctx context.Context, booking *entity.Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Booking, error)
	FindByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Booking, error)
	CountByUserID(ctx context.Context, userID uuid.UUID) (int64, error)
	Update(ctx context.Context, booking *entity.Booking) error

	// FindOverlapping returns the non-cancelled bookings of the given rooms
	// that share at least one night with stay.
	FindOverlapping(ctx context.Context, roomIDs []uuid.UUID, stay entity.DateRange) ([]*entity.Booking, error)
	FindStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*entity.Booking, error)
}

type bookingRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewBookingRepository(db database.Querier, log *zap.Logger) BookingRepository {
	return &bookingRepository{
		db:  db,
		log: log.With(zap.String("repository", "booking")),
	}
}

const bookingColumns = `
	id, room_id, user_id, check_in_date, check_out_date, status, total_price, currency,
	guest_name, special_requests, payment_id, payment_intent_id, is_reviewed,
	pdf_url, pdf_failed, pdf_error, created_at, updated_at`

func scanBooking(row scanner) (*entity.Booking, error) {
	var b entity.Booking
	var status entity.BookingStatus
	err := row.Scan(
		&b.ID,
		&b.RoomID,
		&b.UserID,
		&b.CheckInDate,
		&b.CheckOutDate,
		&status,
		&b.TotalPrice,
		&b.Currency,
		&b.GuestName,
		&b.SpecialRequests,
		&b.PaymentID,
		&b.PaymentIntentID,
		&b.IsReviewed,
		&b.PdfURL,
		&b.PdfFailed,
		&b.PdfError,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, fmt.Errorf("unknown booking status %q", status)
	}
	return entity.RestoreBooking(b, status), nil
}

func (r *bookingRepository) Create(ctx context.Context, booking *entity.Booking) error {
	query := `
		INSERT INTO bookings (id, room_id, user_id, check_in_date, check_out_date, status, total_price, currency,
			guest_name, special_requests, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.Exec(ctx, query,
		booking.ID,
		booking.RoomID,
		booking.UserID,
		booking.CheckInDate,
		booking.CheckOutDate,
		booking.Status(),
		booking.TotalPrice,
		booking.Currency,
		booking.GuestName,
		booking.SpecialRequests,
		booking.CreatedAt,
		booking.UpdatedAt,
	)

	if database.PgErrorCode(err) == database.CodeExclusionViolation {
		r.log.Warn("Booking rejected by overlap constraint",
			zap.String("room_id", booking.RoomID.String()),
			zap.String("stay", booking.Stay().String()),
		)
		return ErrBookingOverlap
	}
	if err != nil {
		r.log.Error("Failed to create booking",
			zap.Error(err),
			zap.String("booking_id", booking.ID.String()),
			zap.String("user_id", booking.UserID.String()),
		)
		return fmt.Errorf("create booking %s: %w", booking.ID.String(), err)
	}

	return nil
}

func (r *bookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	return r.findOne(ctx, `SELECT`+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

// FindByIDForUpdate locks the row until the enclosing transaction ends, so
// concurrent deliveries of the same event are applied one after the other.
func (r *bookingRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	return r.findOne(ctx, `SELECT`+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
}

func (r *bookingRepository) findOne(ctx context.Context, query string, id uuid.UUID) (*entity.Booking, error) {
	booking, err := scanBooking(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find booking by ID",
			zap.Error(err),
			zap.String("booking_id", id.String()),
		)
		return nil, fmt.Errorf("find booking by ID %s: %w", id.String(), err)
	}

	return booking, nil
}

func (r *bookingRepository) FindByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Booking, error) {
	query := `SELECT` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		r.log.Error("Failed to find bookings by user ID",
			zap.Error(err),
			zap.String("user_id", userID.String()),
			zap.Int("limit", limit),
			zap.Int("offset", offset),
		)
		return nil, fmt.Errorf("find bookings by user ID %s: %w", userID.String(), err)
	}

	return r.collect(rows)
}

func (r *bookingRepository) CountByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM bookings WHERE user_id = $1`

	var count int64
	err := r.db.QueryRow(ctx, query, userID).Scan(&count)
	if err != nil {
		r.log.Error("Failed to count bookings by user ID",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		return 0, fmt.Errorf("count bookings by user ID %s: %w", userID.String(), err)
	}

	return count, nil
}

func (r *bookingRepository) FindOverlapping(ctx context.Context, roomIDs []uuid.UUID, stay entity.DateRange) ([]*entity.Booking, error) {
	if len(roomIDs) == 0 {
		return nil, nil
	}

	query := `SELECT` + bookingColumns + `
		FROM bookings
		WHERE room_id = ANY($1)
		  AND status <> 'cancelled'
		  AND check_in_date < $3
		  AND $2 < check_out_date
	`

	rows, err := r.db.Query(ctx, query, roomIDs, stay.CheckIn, stay.CheckOut)
	if err != nil {
		r.log.Error("Failed to find overlapping bookings",
			zap.Error(err),
			zap.Int("rooms", len(roomIDs)),
			zap.String("stay", stay.String()),
		)
		return nil, fmt.Errorf("find overlapping bookings: %w", err)
	}

	return r.collect(rows)
}

// FindStalePending returns the oldest PendingPayment bookings created before
// the cutoff. It takes no locks; callers re-read each row under lock before
// acting on it.
func (r *bookingRepository) FindStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*entity.Booking, error) {
	query := `SELECT` + bookingColumns + `
		FROM bookings
		WHERE status = 'pending_payment' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, createdBefore, limit)
	if err != nil {
		r.log.Error("Failed to find stale pending bookings", zap.Error(err))
		return nil, fmt.Errorf("find stale pending bookings: %w", err)
	}

	return r.collect(rows)
}

func (r *bookingRepository) collect(rows pgx.Rows) ([]*entity.Booking, error) {
	defer rows.Close()

	var bookings []*entity.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			r.log.Error("Failed to scan booking row", zap.Error(err))
			return nil, fmt.Errorf("scan booking row: %w", err)
		}
		bookings = append(bookings, booking)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate booking rows: %w", err)
	}

	return bookings, nil
}

// Update persists the mutable state of the aggregate. Dates, room and price
// are fixed at creation.
func (r *bookingRepository) Update(ctx context.Context, booking *entity.Booking) error {
	query := `
		UPDATE bookings
		SET status = $2, payment_id = $3, payment_intent_id = $4, is_reviewed = $5,
		    pdf_url = $6, pdf_failed = $7, pdf_error = $8, updated_at = $9
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query,
		booking.ID,
		booking.Status(),
		booking.PaymentID,
		booking.PaymentIntentID,
		booking.IsReviewed,
		booking.PdfURL,
		booking.PdfFailed,
		booking.PdfError,
		booking.UpdatedAt,
	)

	if err != nil {
		r.log.Error("Failed to update booking",
			zap.Error(err),
			zap.String("booking_id", booking.ID.String()),
		)
		return fmt.Errorf("update booking %s: %w", booking.ID.String(), err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("update booking %s: %w", booking.ID.String(), pgx.ErrNoRows)
	}

	return nil
}
