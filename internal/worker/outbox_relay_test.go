package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"hotel-booking/internal/data/entity"
	"hotel-booking/internal/data/repository"
	"hotel-booking/pkg/mq"
	"hotel-booking/pkg/utils"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap/zaptest"
)

var relayNow = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

type fakeOutbox struct {
	mu     sync.Mutex
	events []*entity.OutboxEvent
}

func (o *fakeOutbox) add(eventType string) *entity.OutboxEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	evt := &entity.OutboxEvent{
		ID:            uuid.New(),
		AggregateID:   uuid.New(),
		EventType:     eventType,
		Payload:       []byte(`{}`),
		Status:        entity.OutboxStatusPending,
		NextAttemptAt: relayNow,
		CreatedAt:     relayNow,
	}
	o.events = append(o.events, evt)
	return evt
}

func (o *fakeOutbox) get(id uuid.UUID) entity.OutboxEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, e := range o.events {
		if e.ID == id {
			return *e
		}
	}
	return entity.OutboxEvent{}
}

func (o *fakeOutbox) Create(_ context.Context, e *entity.OutboxEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
	return nil
}

func (o *fakeOutbox) FetchDue(_ context.Context, now time.Time, limit int) ([]*entity.OutboxEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var due []*entity.OutboxEvent
	for _, e := range o.events {
		if e.Status == entity.OutboxStatusPending && !e.NextAttemptAt.After(now) && len(due) < limit {
			copied := *e
			due = append(due, &copied)
		}
	}
	return due, nil
}

func (o *fakeOutbox) update(id uuid.UUID, apply func(e *entity.OutboxEvent)) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, e := range o.events {
		if e.ID == id {
			apply(e)
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (o *fakeOutbox) MarkPublished(_ context.Context, id uuid.UUID, at time.Time) error {
	return o.update(id, func(e *entity.OutboxEvent) {
		e.Status = entity.OutboxStatusPublished
		e.PublishedAt = &at
	})
}

func (o *fakeOutbox) MarkRetry(_ context.Context, id uuid.UUID, attempts int, next time.Time, lastError string) error {
	return o.update(id, func(e *entity.OutboxEvent) {
		e.Attempts = attempts
		e.NextAttemptAt = next
		e.LastError = &lastError
	})
}

func (o *fakeOutbox) MarkFailed(_ context.Context, id uuid.UUID, attempts int, lastError string) error {
	return o.update(id, func(e *entity.OutboxEvent) {
		e.Status = entity.OutboxStatusFailed
		e.Attempts = attempts
		e.LastError = &lastError
	})
}

type passthroughTx struct{ repo *repository.Repository }

func (p passthroughTx) WithinTx(ctx context.Context, _ pgx.TxOptions, fn func(tx *repository.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(p.repo)
}

type fakePublisher struct {
	mu   sync.Mutex
	err  error
	sent []string
}

func (p *fakePublisher) Publish(_ context.Context, key, messageID string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, key+"/"+messageID)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

func newTestRelay(t *testing.T, config utils.OutboxConfig) (*OutboxRelay, *fakeOutbox, *fakePublisher) {
	t.Helper()
	outbox := &fakeOutbox{}
	repo := &repository.Repository{Outbox: outbox}
	repo.Tx = passthroughTx{repo: repo}
	pub := &fakePublisher{}

	relay := NewOutboxRelay(repo, pub, config, zaptest.NewLogger(t))
	relay.now = func() time.Time { return relayNow }
	return relay, outbox, pub
}

func TestFlushPublishesDueEvents(t *testing.T) {
	relay, outbox, pub := newTestRelay(t, utils.OutboxConfig{BatchSize: 2, MaxAttempts: 3})

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		ids = append(ids, outbox.add(entity.EventBookingConfirmed).ID)
	}

	n, err := relay.Flush(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 || pub.count() != 5 {
		t.Fatalf("published %d (broker saw %d), want 5", n, pub.count())
	}
	for _, id := range ids {
		if got := outbox.get(id); got.Status != entity.OutboxStatusPublished || got.PublishedAt == nil {
			t.Fatalf("event %s not marked published", id)
		}
	}

	// Nothing left to do.
	if n, _ := relay.Flush(context.Background()); n != 0 {
		t.Fatalf("second flush published %d", n)
	}
}

func TestFlushSchedulesRetryWithBackoff(t *testing.T) {
	relay, outbox, pub := newTestRelay(t, utils.OutboxConfig{BatchSize: 10, MaxAttempts: 3})
	pub.err = errors.New("connection refused")
	evt := outbox.add(entity.EventBookingPaymentFailed)

	if _, err := relay.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}

	got := outbox.get(evt.ID)
	if got.Status != entity.OutboxStatusPending || got.Attempts != 1 {
		t.Fatalf("status=%s attempts=%d", got.Status, got.Attempts)
	}
	if !got.NextAttemptAt.Equal(relayNow.Add(retryBaseDelay)) {
		t.Fatalf("next attempt at %s", got.NextAttemptAt)
	}
	if got.LastError == nil || *got.LastError != "connection refused" {
		t.Fatal("last error not recorded")
	}
}

func TestFlushGivesUpAfterMaxAttempts(t *testing.T) {
	relay, outbox, pub := newTestRelay(t, utils.OutboxConfig{BatchSize: 10, MaxAttempts: 3})
	pub.err = errors.New("channel closed")
	evt := outbox.add(entity.EventBookingExpired)

	for i := 0; i < 3; i++ {
		relay.now = func() time.Time { return relayNow.Add(time.Hour * time.Duration(i+1)) }
		if _, err := relay.Flush(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	got := outbox.get(evt.ID)
	if got.Status != entity.OutboxStatusFailed || got.Attempts != 3 {
		t.Fatalf("status=%s attempts=%d, want failed after 3", got.Status, got.Attempts)
	}
}

func TestFlushHoldsEventsWhileBrokerUnavailable(t *testing.T) {
	relay, outbox, pub := newTestRelay(t, utils.OutboxConfig{BatchSize: 10, MaxAttempts: 3})
	pub.err = fmt.Errorf("publish booking.confirmed: %w: channel closed", mq.ErrUnavailable)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		ids = append(ids, outbox.add(entity.EventBookingConfirmed).ID)
	}

	// Far more outage flushes than the attempt budget.
	for i := 0; i < 10; i++ {
		n, err := relay.Flush(context.Background())
		if !errors.Is(err, mq.ErrUnavailable) {
			t.Fatalf("flush error = %v, want broker unavailable", err)
		}
		if n != 0 {
			t.Fatalf("published %d during outage", n)
		}
	}
	for _, id := range ids {
		if got := outbox.get(id); got.Status != entity.OutboxStatusPending || got.Attempts != 0 {
			t.Fatalf("event %s: status=%s attempts=%d, want untouched", id, got.Status, got.Attempts)
		}
	}

	// The broker comes back.
	pub.mu.Lock()
	pub.err = nil
	pub.mu.Unlock()

	n, err := relay.Flush(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("published %d after recovery, want 3", n)
	}
}

func TestRetryDelay(t *testing.T) {
	cases := map[int]time.Duration{
		1:  2 * time.Second,
		2:  4 * time.Second,
		5:  32 * time.Second,
		20: retryMaxDelay,
	}
	for attempts, want := range cases {
		if got := retryDelay(attempts); got != want {
			t.Errorf("retryDelay(%d) = %s, want %s", attempts, got, want)
		}
	}
}

func TestNotifyWakesRelay(t *testing.T) {
	relay, outbox, pub := newTestRelay(t, utils.OutboxConfig{Interval: time.Hour})

	// Notify never blocks, even with nobody listening.
	relay.Notify()
	relay.Notify()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(done)
	}()

	outbox.add(entity.EventBookingConfirmed)
	relay.Notify()

	deadline := time.After(5 * time.Second)
	for pub.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("relay did not publish after Notify")
		case <-time.After(10 * time.Millisecond):
			relay.Notify()
		}
	}

	cancel()
	<-done
}
