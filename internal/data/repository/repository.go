package repository

import (
	"context"
	"errors"
	"fmt"

	"hotel-booking/pkg/database"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var (
	// ErrBookingOverlap is returned when the database refuses a booking that
	// would intersect another active booking of the same room.
	ErrBookingOverlap = errors.New("booking overlaps an existing reservation")
	ErrDuplicate      = errors.New("duplicate record")
)

const maxTxAttempts = 3

type Repository struct {
	Hotel    HotelRepository
	RoomType RoomTypeRepository
	Room     RoomRepository
	Booking  BookingRepository
	Payment  PaymentRepository
	Outbox   OutboxRepository

	Tx Transactor
}

// Transactor runs fn as one unit of work. The Repository handed to fn is
// bound to the transaction; nothing fn wrote survives if it returns an error.
type Transactor interface {
	WithinTx(ctx context.Context, opts pgx.TxOptions, fn func(tx *Repository) error) error
}

func NewRepository(db database.PgxIface, log *zap.Logger) *Repository {
	repo := newRepositories(db, log)
	repo.Tx = &pgTransactor{db: db, log: log.With(zap.String("repository", "tx"))}
	return repo
}

func newRepositories(q database.Querier, log *zap.Logger) *Repository {
	return &Repository{
		Hotel:    NewHotelRepository(q, log),
		RoomType: NewRoomTypeRepository(q, log),
		Room:     NewRoomRepository(q, log),
		Booking:  NewBookingRepository(q, log),
		Payment:  NewPaymentRepository(q, log),
		Outbox:   NewOutboxRepository(q, log),
	}
}

type pgTransactor struct {
	db  database.PgxIface
	log *zap.Logger
}

// WithinTx retries the whole unit of work when Postgres aborts it with a
// serialization failure or deadlock.
func (t *pgTransactor) WithinTx(ctx context.Context, opts pgx.TxOptions, fn func(tx *Repository) error) error {
	for attempt := 1; ; attempt++ {
		err := t.run(ctx, opts, fn)
		if err == nil || !database.IsRetryable(err) || attempt == maxTxAttempts {
			return err
		}
		if ctx.Err() != nil {
			return err
		}

		t.log.Warn("Retrying transaction",
			zap.Int("attempt", attempt),
			zap.String("sqlstate", database.PgErrorCode(err)),
		)
	}
}

func (t *pgTransactor) run(ctx context.Context, opts pgx.TxOptions, fn func(tx *Repository) error) error {
	tx, err := t.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		// no-op after a successful commit
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	repo := newRepositories(tx, t.log)
	repo.Tx = nestedTransactor{repo: repo}

	if err := fn(repo); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// nestedTransactor joins the enclosing transaction.
type nestedTransactor struct {
	repo *Repository
}

func (n nestedTransactor) WithinTx(_ context.Context, _ pgx.TxOptions, fn func(tx *Repository) error) error {
	return fn(n.repo)
}

type scanner interface {
	Scan(dest ...any) error
}
