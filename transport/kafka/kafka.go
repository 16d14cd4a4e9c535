// Package kafka carries saga commands and replies over Kafka topics using
// github.com/segmentio/kafka-go.
//
// The destination of a message is the topic name. Message headers travel as
// Kafka record headers and the record key is the PARTITION_ID header, falling
// back to the message ID.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AshkanYarmoradi/go-tram"
	"github.com/AshkanYarmoradi/go-tram/transport"
	kafkago "github.com/segmentio/kafka-go"
)

// Scheme is the destination scheme used with transport.Router.
const Scheme = "kafka"

// Writer is the subset of *kafkago.Writer used by the Producer.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Reader is the subset of *kafkago.Reader used by the Consumer.
type Reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Ensure interface compliance at compile time
var (
	_ tram.MessageProducer = (*Producer)(nil)
	_ transport.Consumer   = (*Consumer)(nil)
	_ Writer               = (*kafkago.Writer)(nil)
	_ Reader               = (*kafkago.Reader)(nil)
)

// Producer sends messages to Kafka, one writer per topic.
type Producer struct {
	brokers      []string
	balancer     kafkago.Balancer
	batchTimeout time.Duration
	transport    kafkago.RoundTripper
	newWriter    func(topic string) Writer

	mu      sync.RWMutex
	writers map[string]Writer
}

// Option configures a Producer.
type Option func(*Producer)

// WithBrokers sets the Kafka broker addresses.
func WithBrokers(brokers ...string) Option {
	return func(p *Producer) {
		p.brokers = brokers
	}
}

// WithBalancer sets the partition balancer.
func WithBalancer(balancer kafkago.Balancer) Option {
	return func(p *Producer) {
		p.balancer = balancer
	}
}

// WithBatchTimeout sets the writer batch timeout.
func WithBatchTimeout(d time.Duration) Option {
	return func(p *Producer) {
		p.batchTimeout = d
	}
}

// WithTransport sets the round tripper used by the writers, for example a
// *kafkago.Transport carrying TLS or SASL settings.
func WithTransport(rt kafkago.RoundTripper) Option {
	return func(p *Producer) {
		p.transport = rt
	}
}

// WithWriterFactory replaces the function creating a writer for a topic.
func WithWriterFactory(factory func(topic string) Writer) Option {
	return func(p *Producer) {
		p.newWriter = factory
	}
}

// NewProducer creates a Producer.
func NewProducer(opts ...Option) *Producer {
	p := &Producer{
		brokers:      []string{"localhost:9092"},
		balancer:     &kafkago.Hash{},
		batchTimeout: 10 * time.Millisecond,
		writers:      make(map[string]Writer),
	}
	p.newWriter = p.kafkaWriter

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Send writes msg to the topic named by destination.
func (p *Producer) Send(ctx context.Context, destination string, msg *tram.Message) error {
	if destination == "" {
		return errors.New("kafka: missing topic")
	}

	if err := p.writer(destination).WriteMessages(ctx, ToKafka(msg)); err != nil {
		return fmt.Errorf("kafka: failed to write to topic %s: %w", destination, err)
	}
	return nil
}

// Close closes all writers, returning the joined errors.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka: failed to close writer for %s: %w", topic, err))
		}
		delete(p.writers, topic)
	}
	return errors.Join(errs...)
}

func (p *Producer) writer(topic string) Writer {
	p.mu.RLock()
	if w, ok := p.writers[topic]; ok {
		p.mu.RUnlock()
		return w
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check after acquiring write lock
	if w, ok := p.writers[topic]; ok {
		return w
	}

	w := p.newWriter(topic)
	p.writers[topic] = w
	return w
}

func (p *Producer) kafkaWriter(topic string) Writer {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(p.brokers...),
		Topic:                  topic,
		Balancer:               p.balancer,
		BatchTimeout:           p.batchTimeout,
		Transport:              p.transport,
		AllowAutoTopicCreation: true,
	}
}

// ToKafka converts a message into a Kafka record.
func ToKafka(msg *tram.Message) kafkago.Message {
	key := msg.Header(tram.HeaderPartitionID)
	if key == "" {
		key = msg.ID()
	}

	record := kafkago.Message{
		Key:     []byte(key),
		Value:   msg.Payload,
		Headers: make([]kafkago.Header, 0, len(msg.Headers)),
	}
	for k, v := range msg.Headers {
		record.Headers = append(record.Headers, kafkago.Header{Key: k, Value: []byte(v)})
	}
	return record
}

// FromKafka converts a Kafka record into a message. Later duplicate headers win.
func FromKafka(record kafkago.Message) *tram.Message {
	headers := make(map[string]string, len(record.Headers))
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	return tram.NewMessage(record.Value, headers)
}

// Consumer reads one topic through a consumer group and hands each record to
// a MessageHandler. Records are committed after handling, including records the
// handler rejected, so a poison message cannot stall the partition.
type Consumer struct {
	reader Reader
	logger tram.Logger
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithLogger sets the consumer logger.
func WithLogger(logger tram.Logger) ConsumerOption {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// WithReader replaces the underlying reader.
func WithReader(reader Reader) ConsumerOption {
	return func(c *Consumer) {
		c.reader = reader
	}
}

// NewConsumer creates a Consumer for topic in consumer group groupID.
func NewConsumer(brokers []string, groupID, topic string, opts ...ConsumerOption) *Consumer {
	c := &Consumer{logger: tram.NopLogger()}
	for _, opt := range opts {
		opt(c)
	}
	if c.reader == nil {
		c.reader = kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:  brokers,
			GroupID:  groupID,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6,
			MaxWait:  500 * time.Millisecond,
		})
	}
	return c
}

// Run consumes until ctx is cancelled, which is not reported as an error.
func (c *Consumer) Run(ctx context.Context, handler tram.MessageHandler) error {
	for {
		record, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka: fetch failed: %w", err)
		}

		msg := FromKafka(record)
		if err := handler.HandleMessage(ctx, msg); err != nil {
			c.logger.Error("Failed to handle message",
				"topic", record.Topic, "offset", record.Offset, "messageID", msg.ID(), "error", err)
		}

		if err := c.reader.CommitMessages(ctx, record); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka: commit failed: %w", err)
		}
	}
}

// Close closes the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Ping dials the brokers in turn and returns nil once one accepts a connection.
func Ping(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return errors.New("kafka: no brokers")
	}

	var errs []error
	for _, broker := range brokers {
		conn, err := kafkago.DialContext(ctx, "tcp", broker)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("kafka: no broker reachable: %w", errors.Join(errs...))
}
