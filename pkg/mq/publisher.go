package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var (
	ErrNotAcked = errors.New("broker did not ack message")

	// ErrUnavailable marks failures of the connection rather than of the
	// message. Callers should retry the same message later.
	ErrUnavailable = errors.New("broker unavailable")
)

// Publisher publishes to a durable topic exchange with publisher confirms
// enabled, so Publish returns only once the broker has taken the message.
// A dropped connection is redialed on the next Publish.
type Publisher struct {
	mu       sync.Mutex
	url      string
	exchange string
	conn     *amqp.Connection
	ch       *amqp.Channel
	closed   bool
	log      *zap.Logger
}

func NewPublisher(url, exchange string, log *zap.Logger) (*Publisher, error) {
	p := &Publisher{
		url:      url,
		exchange: exchange,
		log:      log.With(zap.String("component", "mq_publisher")),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

// connect dials and opens a confirm-mode channel. p.mu must be held.
func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("enable confirms: %w", err)
	}

	p.conn, p.ch = conn, ch
	watchClose(conn, p.log)
	return nil
}

// channel returns a live channel, redialing if the broker dropped the last
// one. p.mu must be held.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.closed {
		return nil, fmt.Errorf("%w: publisher closed", ErrUnavailable)
	}
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	closeQuietly(p.ch, p.conn)
	p.ch, p.conn = nil, nil
	if err := p.connect(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	p.log.Info("Reconnected to broker")
	return p.ch, nil
}

// Publish sends an already-encoded JSON body. messageID is carried so
// consumers can drop redeliveries.
func (p *Publisher) Publish(ctx context.Context, key, messageID string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Body:         body,
	})
	if err != nil {
		if errors.Is(err, amqp.ErrClosed) || ch.IsClosed() {
			return fmt.Errorf("publish %s: %w: %v", key, ErrUnavailable, err)
		}
		return fmt.Errorf("publish %s: %w", key, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm %s: %w", key, err)
	}
	if !acked {
		// Confirms are nacked wholesale when the channel dies mid-flight.
		if ch.IsClosed() {
			return fmt.Errorf("publish %s: %w: channel closed before confirm", key, ErrUnavailable)
		}
		return fmt.Errorf("publish %s: %w", key, ErrNotAcked)
	}

	p.log.Debug("message published", zap.String("routing_key", key), zap.String("message_id", messageID))
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// watchClose logs the broker's reason when a connection goes away. The
// channel is closed without an error on a clean Close.
func watchClose(conn *amqp.Connection, log *zap.Logger) {
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if reason, ok := <-closed; ok && reason != nil {
			log.Warn("Broker connection lost",
				zap.Int("code", reason.Code),
				zap.String("reason", reason.Reason),
				zap.Bool("server", reason.Server),
			)
		}
	}()
}

func closeQuietly(ch *amqp.Channel, conn *amqp.Connection) {
	if ch != nil {
		_ = ch.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
}
