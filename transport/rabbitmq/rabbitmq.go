// Package rabbitmq carries saga commands and replies over RabbitMQ queues using
// github.com/rabbitmq/amqp091-go.
//
// Messages are published to an exchange (the default exchange unless
// configured) with the destination as the routing key, so on the default
// exchange the destination names the queue.
package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AshkanYarmoradi/go-tram"
	"github.com/AshkanYarmoradi/go-tram/transport"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Scheme is the destination scheme used with transport.Router.
const Scheme = "rabbitmq"

// Channel is the subset of *amqp.Channel used by this package.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// Ensure interface compliance at compile time
var (
	_ tram.MessageProducer = (*Producer)(nil)
	_ transport.Consumer   = (*Consumer)(nil)
	_ Channel              = (*amqp.Channel)(nil)
)

// Dial opens a connection and a channel on it.
func Dial(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq: failed to connect: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq: failed to open channel: %w", err)
	}
	return conn, ch, nil
}

// Producer publishes messages on a channel.
type Producer struct {
	channel       Channel
	exchange      string
	declareQueues bool

	mu       sync.Mutex
	declared map[string]bool
}

// Option configures a Producer.
type Option func(*Producer)

// WithExchange publishes to exchange instead of the default exchange.
func WithExchange(exchange string) Option {
	return func(p *Producer) {
		p.exchange = exchange
	}
}

// WithQueueDeclaration declares a durable queue named after each destination
// before the first publish to it.
func WithQueueDeclaration() Option {
	return func(p *Producer) {
		p.declareQueues = true
	}
}

// NewProducer creates a Producer publishing on ch.
func NewProducer(ch Channel, opts ...Option) *Producer {
	p := &Producer{
		channel:  ch,
		declared: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Send publishes msg with destination as the routing key.
func (p *Producer) Send(ctx context.Context, destination string, msg *tram.Message) error {
	if destination == "" {
		return fmt.Errorf("rabbitmq: missing routing key")
	}
	if err := p.declare(destination); err != nil {
		return err
	}

	if err := p.channel.PublishWithContext(ctx, p.exchange, destination, false, false, ToPublishing(msg)); err != nil {
		return fmt.Errorf("rabbitmq: failed to publish to %s: %w", destination, err)
	}
	return nil
}

func (p *Producer) declare(queue string) error {
	if !p.declareQueues {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.declared[queue] {
		return nil
	}
	if _, err := p.channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: failed to declare queue %s: %w", queue, err)
	}
	p.declared[queue] = true
	return nil
}

// ToPublishing converts a message into an AMQP publishing.
func ToPublishing(msg *tram.Message) amqp.Publishing {
	headers := make(amqp.Table, len(msg.Headers))
	for k, v := range msg.Headers {
		headers[k] = v
	}
	return amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID(),
		Timestamp:    time.Now(),
		Body:         msg.Payload,
	}
}

// FromDelivery converts an AMQP delivery into a message. Non-string header
// values are formatted with fmt.
func FromDelivery(d amqp.Delivery) *tram.Message {
	headers := make(map[string]string, len(d.Headers))
	for k, v := range d.Headers {
		switch value := v.(type) {
		case string:
			headers[k] = value
		case []byte:
			headers[k] = string(value)
		default:
			headers[k] = fmt.Sprint(value)
		}
	}
	if _, ok := headers[tram.HeaderID]; !ok && d.MessageId != "" {
		headers[tram.HeaderID] = d.MessageId
	}
	return tram.NewMessage(d.Body, headers)
}

// Consumer consumes one queue. Handled deliveries are acked; deliveries the
// handler rejects are nacked without requeue so the broker can dead-letter them.
type Consumer struct {
	channel  Channel
	queue    string
	tag      string
	prefetch int
	logger   tram.Logger
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithPrefetchCount sets the channel QoS prefetch count.
func WithPrefetchCount(count int) ConsumerOption {
	return func(c *Consumer) {
		c.prefetch = count
	}
}

// WithConsumerTag sets the consumer tag.
func WithConsumerTag(tag string) ConsumerOption {
	return func(c *Consumer) {
		c.tag = tag
	}
}

// WithLogger sets the consumer logger.
func WithLogger(logger tram.Logger) ConsumerOption {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// NewConsumer creates a Consumer for queue on ch.
func NewConsumer(ch Channel, queue string, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		channel:  ch,
		queue:    queue,
		prefetch: 10,
		logger:   tram.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run declares the queue and consumes until ctx is cancelled or the delivery
// channel closes.
func (c *Consumer) Run(ctx context.Context, handler tram.MessageHandler) error {
	if _, err := c.channel.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: failed to declare queue %s: %w", c.queue, err)
	}
	if err := c.channel.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("rabbitmq: failed to set QoS: %w", err)
	}

	deliveries, err := c.channel.Consume(c.queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: failed to consume %s: %w", c.queue, err)
	}

	c.logger.Info("Consuming queue", "queue", c.queue, "prefetch", c.prefetch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				c.logger.Warn("Delivery channel closed", "queue", c.queue)
				return nil
			}
			c.handle(ctx, d, handler)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, handler tram.MessageHandler) {
	msg := FromDelivery(d)

	if err := handler.HandleMessage(ctx, msg); err != nil {
		c.logger.Error("Failed to handle message", "queue", c.queue, "messageID", msg.ID(), "error", err)
		if nackErr := d.Nack(false, false); nackErr != nil {
			c.logger.Error("Failed to nack message", "queue", c.queue, "error", nackErr)
		}
		return
	}

	if err := d.Ack(false); err != nil {
		c.logger.Error("Failed to ack message", "queue", c.queue, "error", err)
	}
}

// Ping opens and closes a connection to url.
func Ping(url string) error {
	conn, err := amqp.Dial(url)
	if err != nil {
		return fmt.Errorf("rabbitmq: failed to connect: %w", err)
	}
	return conn.Close()
}
