package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hotel-booking/internal/data/repository"
	"hotel-booking/pkg/mq"
	"hotel-booking/pkg/tracing"
	"hotel-booking/pkg/utils"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	defaultRelayInterval = 5 * time.Second
	defaultRelayBatch    = 25
	defaultMaxAttempts   = 10

	retryBaseDelay = 2 * time.Second
	retryMaxDelay  = 10 * time.Minute
	publishTimeout = 5 * time.Second
)

type Publisher interface {
	Publish(ctx context.Context, key, messageID string, body []byte) error
}

// OutboxRelay moves committed outbox rows to the broker. Rows are claimed
// with SKIP LOCKED so several replicas can run a relay side by side.
type OutboxRelay struct {
	repo        *repository.Repository
	publisher   Publisher
	interval    time.Duration
	batch       int
	maxAttempts int
	wake        chan struct{}
	log         *zap.Logger
	now         func() time.Time
}

func NewOutboxRelay(repo *repository.Repository, publisher Publisher, config utils.OutboxConfig, log *zap.Logger) *OutboxRelay {
	r := &OutboxRelay{
		repo:        repo,
		publisher:   publisher,
		interval:    config.Interval,
		batch:       config.BatchSize,
		maxAttempts: config.MaxAttempts,
		wake:        make(chan struct{}, 1),
		log:         log.With(zap.String("worker", "outbox_relay")),
		now:         func() time.Time { return time.Now().UTC() },
	}
	if r.interval <= 0 {
		r.interval = defaultRelayInterval
	}
	if r.batch <= 0 {
		r.batch = defaultRelayBatch
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	return r
}

// Notify wakes the relay without waiting for the next tick. It never blocks.
func (r *OutboxRelay) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run flushes on every tick and wake-up until ctx is done.
func (r *OutboxRelay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("Outbox relay started", zap.Duration("interval", r.interval), zap.Int("batch", r.batch))

	for {
		select {
		case <-ctx.Done():
			r.log.Info("Outbox relay stopped")
			return
		case <-ticker.C:
		case <-r.wake:
		}

		_, err := r.Flush(ctx)
		switch {
		case err == nil, ctx.Err() != nil:
		case errors.Is(err, mq.ErrUnavailable):
			r.log.Warn("Broker unavailable, outbox events held", zap.Error(err))
		default:
			r.log.Error("Outbox flush failed", zap.Error(err))
		}
	}
}

// Flush publishes due events until a batch comes back short. It returns the
// number of events published.
func (r *OutboxRelay) Flush(ctx context.Context) (int, error) {
	total := 0
	for {
		published, claimed, err := r.flushBatch(ctx)
		total += published
		if err != nil {
			return total, err
		}
		if claimed < r.batch || ctx.Err() != nil {
			return total, nil
		}
	}
}

func (r *OutboxRelay) flushBatch(ctx context.Context) (published, claimed int, err error) {
	ctx, span := tracing.Tracer().Start(ctx, "OutboxRelay.Flush")
	defer func() {
		span.SetAttributes(attribute.Int("outbox.claimed", claimed), attribute.Int("outbox.published", published))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var unavailable error

	err = r.repo.Tx.WithinTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx *repository.Repository) error {
		published, claimed, unavailable = 0, 0, nil

		events, err := tx.Outbox.FetchDue(ctx, r.now(), r.batch)
		if err != nil {
			return err
		}
		claimed = len(events)

		for _, evt := range events {
			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			pubErr := r.publisher.Publish(pubCtx, evt.EventType, evt.ID.String(), evt.Payload)
			cancel()

			if pubErr == nil {
				if err := tx.Outbox.MarkPublished(ctx, evt.ID, r.now()); err != nil {
					return err
				}
				published++
				continue
			}

			// A lost connection says nothing about the event. Stop here and
			// leave the rest for the next flush without spending attempts.
			if errors.Is(pubErr, mq.ErrUnavailable) {
				unavailable = pubErr
				return nil
			}

			attempts := evt.Attempts + 1
			if attempts >= r.maxAttempts {
				r.log.Error("Giving up on outbox event",
					zap.String("event_id", evt.ID.String()),
					zap.String("event_type", evt.EventType),
					zap.String("aggregate_id", evt.AggregateID.String()),
					zap.Int("attempts", attempts),
					zap.Error(pubErr),
				)
				if err := tx.Outbox.MarkFailed(ctx, evt.ID, attempts, pubErr.Error()); err != nil {
					return err
				}
				continue
			}

			next := r.now().Add(retryDelay(attempts))
			r.log.Warn("Outbox publish failed, will retry",
				zap.String("event_id", evt.ID.String()),
				zap.String("event_type", evt.EventType),
				zap.Int("attempts", attempts),
				zap.Time("next_attempt_at", next),
				zap.Error(pubErr),
			)
			if err := tx.Outbox.MarkRetry(ctx, evt.ID, attempts, next, pubErr.Error()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, claimed, err
	}

	if published > 0 {
		r.log.Debug("Outbox events published", zap.Int("count", published))
	}
	if unavailable != nil {
		return published, claimed, fmt.Errorf("flush outbox: %w", unavailable)
	}
	return published, claimed, nil
}

func retryDelay(attempts int) time.Duration {
	return backoff(retryBaseDelay, retryMaxDelay, attempts)
}
