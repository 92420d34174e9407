package repository

import (
	"context"
	"fmt"
	"time"

	"hotel-booking/internal/data/entity"
	"hotel-booking/pkg/database"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OutboxRepository interface {
	Create(ctx context.Context, event *entity.OutboxEvent) error
	// FetchDue claims pending events whose next attempt is due. Must run
	// inside a transaction; rows claimed by another relay are skipped.
	FetchDue(ctx context.Context, now time.Time, limit int) ([]*entity.OutboxEvent, error)
	MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkRetry(ctx context.Context, id uuid.UUID, attempts int, nextAttemptAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string) error
}

type outboxRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewOutboxRepository(db database.Querier, log *zap.Logger) OutboxRepository {
	return &outboxRepository{
		db:  db,
		log: log.With(zap.String("repository", "outbox")),
	}
}

func (r *outboxRepository) Create(ctx context.Context, event *entity.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (id, aggregate_id, event_type, payload, status, attempts, next_attempt_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Exec(ctx, query,
		event.ID,
		event.AggregateID,
		event.EventType,
		event.Payload,
		event.Status,
		event.Attempts,
		event.NextAttemptAt,
		event.CreatedAt,
	)

	if err != nil {
		r.log.Error("Failed to create outbox event",
			zap.Error(err),
			zap.String("event_type", event.EventType),
			zap.String("aggregate_id", event.AggregateID.String()),
		)
		return fmt.Errorf("create outbox event %s: %w", event.EventType, err)
	}

	return nil
}

func (r *outboxRepository) FetchDue(ctx context.Context, now time.Time, limit int) ([]*entity.OutboxEvent, error) {
	query := `
		SELECT id, aggregate_id, event_type, payload, status, attempts, last_error, next_attempt_at, created_at, published_at
		FROM outbox_events
		WHERE status = 'pending' AND next_attempt_at <= $1
		ORDER BY created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`

	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		r.log.Error("Failed to fetch due outbox events", zap.Error(err))
		return nil, fmt.Errorf("fetch due outbox events: %w", err)
	}
	defer rows.Close()

	var events []*entity.OutboxEvent
	for rows.Next() {
		var e entity.OutboxEvent
		err := rows.Scan(
			&e.ID,
			&e.AggregateID,
			&e.EventType,
			&e.Payload,
			&e.Status,
			&e.Attempts,
			&e.LastError,
			&e.NextAttemptAt,
			&e.CreatedAt,
			&e.PublishedAt,
		)
		if err != nil {
			r.log.Error("Failed to scan outbox row", zap.Error(err))
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}

	return events, nil
}

func (r *outboxRepository) MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE outbox_events SET status = 'published', published_at = $2, attempts = attempts + 1 WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("mark outbox event %s published: %w", id.String(), err)
	}
	return nil
}

func (r *outboxRepository) MarkRetry(ctx context.Context, id uuid.UUID, attempts int, nextAttemptAt time.Time, lastError string) error {
	query := `UPDATE outbox_events SET attempts = $2, next_attempt_at = $3, last_error = $4 WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, id, attempts, nextAttemptAt, lastError); err != nil {
		return fmt.Errorf("reschedule outbox event %s: %w", id.String(), err)
	}
	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string) error {
	query := `UPDATE outbox_events SET status = 'failed', attempts = $2, last_error = $3 WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, id, attempts, lastError); err != nil {
		return fmt.Errorf("mark outbox event %s failed: %w", id.String(), err)
	}
	return nil
}
