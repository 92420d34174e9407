package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hotel-booking/pkg/apperror"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Routing keys published by the document and review services.
const (
	KeyDocumentGenerated = "document.generated"
	KeyDocumentFailed    = "document.failed"
	KeyReviewSubmitted   = "review.submitted"
)

var CollaboratorKeys = []string{KeyDocumentGenerated, KeyDocumentFailed, KeyReviewSubmitted}

var errMalformed = errors.New("malformed message")

const (
	defaultRequeueDelay = 2 * time.Second
	restartBaseDelay    = time.Second
	restartMaxDelay     = 30 * time.Second
)

type DeliverySource interface {
	Deliveries(ctx context.Context) (<-chan amqp.Delivery, error)
}

type CollaboratorRecorder interface {
	RecordDocumentStatus(ctx context.Context, bookingID uuid.UUID, url, failure string) error
	MarkAsReviewed(ctx context.Context, bookingID uuid.UUID) error
}

type documentMessage struct {
	BookingID string `json:"booking_id"`
	URL       string `json:"url"`
	Error     string `json:"error"`
}

type reviewMessage struct {
	BookingID string `json:"booking_id"`
}

// CollaboratorConsumer applies side-channel updates from the document and
// review services. None of them touch booking status.
type CollaboratorConsumer struct {
	source       DeliverySource
	recorder     CollaboratorRecorder
	requeueDelay time.Duration
	restartBase  time.Duration
	restartMax   time.Duration
	log          *zap.Logger
}

func NewCollaboratorConsumer(source DeliverySource, recorder CollaboratorRecorder, log *zap.Logger) *CollaboratorConsumer {
	return &CollaboratorConsumer{
		source:       source,
		recorder:     recorder,
		requeueDelay: defaultRequeueDelay,
		restartBase:  restartBaseDelay,
		restartMax:   restartMaxDelay,
		log:          log.With(zap.String("worker", "collaborator_consumer")),
	}
}

// Run consumes until ctx is done. A closed delivery channel or a failed
// subscription is retried with backoff. Malformed messages and messages
// about unknown bookings are dropped; anything else that fails is requeued.
func (c *CollaboratorConsumer) Run(ctx context.Context) {
	failures := 0
	for {
		subscribed, err := c.consume(ctx)
		if ctx.Err() != nil {
			c.log.Info("Collaborator consumer stopped")
			return
		}

		if subscribed {
			failures = 0
		}
		failures++
		delay := backoff(c.restartBase, c.restartMax, failures)

		if err != nil {
			c.log.Warn("Could not subscribe, retrying", zap.Error(err), zap.Duration("retry_in", delay))
		} else {
			c.log.Warn("Delivery channel closed, resubscribing", zap.Duration("retry_in", delay))
		}
		if !sleep(ctx, delay) {
			c.log.Info("Collaborator consumer stopped")
			return
		}
	}
}

// consume drains one subscription. It reports whether the subscription was
// established at all.
func (c *CollaboratorConsumer) consume(ctx context.Context) (bool, error) {
	msgs, err := c.source.Deliveries(ctx)
	if err != nil {
		return false, fmt.Errorf("consume: %w", err)
	}

	c.log.Info("Collaborator consumer subscribed")

	for {
		select {
		case <-ctx.Done():
			return true, nil
		case d, ok := <-msgs:
			if !ok {
				return true, nil
			}
			c.dispatch(ctx, d)
		}
	}
}

func (c *CollaboratorConsumer) dispatch(ctx context.Context, d amqp.Delivery) {
	err := c.handle(ctx, d.RoutingKey, d.Body)

	fields := []zap.Field{
		zap.String("routing_key", d.RoutingKey),
		zap.String("message_id", d.MessageId),
	}

	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, errMalformed), apperror.Is(err, apperror.KindNotFound), apperror.Is(err, apperror.KindValidation):
		c.log.Warn("Dropping collaborator message", append(fields, zap.Error(err))...)
		_ = d.Nack(false, false)
	default:
		// Requeued messages go back to the head of the queue; hold off so an
		// outage does not spin on the same delivery.
		c.log.Error("Collaborator message failed, requeueing",
			append(fields, zap.Error(err), zap.Duration("delay", c.requeueDelay))...)
		sleep(ctx, c.requeueDelay)
		_ = d.Nack(false, true)
	}
}

func (c *CollaboratorConsumer) handle(ctx context.Context, key string, body []byte) error {
	switch key {
	case KeyDocumentGenerated, KeyDocumentFailed:
		var msg documentMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("%w: %v", errMalformed, err)
		}
		bookingID, err := parseBookingID(msg.BookingID)
		if err != nil {
			return err
		}

		if key == KeyDocumentGenerated {
			if msg.URL == "" {
				return fmt.Errorf("%w: missing url", errMalformed)
			}
			return c.recorder.RecordDocumentStatus(ctx, bookingID, msg.URL, "")
		}

		failure := msg.Error
		if failure == "" {
			failure = "document generation failed"
		}
		return c.recorder.RecordDocumentStatus(ctx, bookingID, "", failure)

	case KeyReviewSubmitted:
		var msg reviewMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("%w: %v", errMalformed, err)
		}
		bookingID, err := parseBookingID(msg.BookingID)
		if err != nil {
			return err
		}
		return c.recorder.MarkAsReviewed(ctx, bookingID)

	default:
		c.log.Debug("Ignoring message", zap.String("routing_key", key))
		return nil
	}
}

func parseBookingID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: booking_id %q", errMalformed, raw)
	}
	return id, nil
}
