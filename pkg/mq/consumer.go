package mq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Consumer reads from a durable queue bound to a set of routing keys. Each
// call to Deliveries redials first if the previous connection was lost, so
// a restarted consume loop picks up where the broker left off.
type Consumer struct {
	mu       sync.Mutex
	url      string
	exchange string
	queue    string
	keys     []string
	prefetch int
	conn     *amqp.Connection
	ch       *amqp.Channel
	closed   bool
	log      *zap.Logger
}

// NewConsumer declares a durable queue bound to each routing key on the
// topic exchange.
func NewConsumer(url, exchange, queue string, keys []string, prefetch int, log *zap.Logger) (*Consumer, error) {
	c := &Consumer{
		url:      url,
		exchange: exchange,
		queue:    queue,
		keys:     keys,
		prefetch: prefetch,
		log:      log.With(zap.String("component", "mq_consumer")),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

// connect dials and re-declares the topology. c.mu must be held.
func (c *Consumer) connect() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	fail := func(step string, err error) error {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("%s: %w", step, err)
	}
	if err := ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		return fail("declare exchange", err)
	}
	q, err := ch.QueueDeclare(c.queue, true, false, false, false, nil)
	if err != nil {
		return fail("declare queue", err)
	}
	for _, rk := range c.keys {
		if err := ch.QueueBind(q.Name, rk, c.exchange, false, nil); err != nil {
			return fail("bind "+rk, err)
		}
	}
	if c.prefetch > 0 {
		if err := ch.Qos(c.prefetch, 0, false); err != nil {
			return fail("set qos", err)
		}
	}

	c.conn, c.ch, c.queue = conn, ch, q.Name
	watchClose(conn, c.log)
	return nil
}

// Deliveries starts a consumer on the queue. The returned channel closes
// when ctx is done or the connection drops.
func (c *Consumer) Deliveries(ctx context.Context) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("%w: consumer closed", ErrUnavailable)
	}
	if c.ch == nil || c.ch.IsClosed() {
		closeQuietly(c.ch, c.conn)
		c.ch, c.conn = nil, nil
		if err := c.connect(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		c.log.Info("Reconnected to broker", zap.String("queue", c.queue))
	}

	return c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
}

func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
