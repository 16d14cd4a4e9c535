package tram

import (
	"context"
	"fmt"
	"time"

	"github.com/AshkanYarmoradi/go-tram/adapters"
)

// Outbox types re-exported from the adapters package.
type (
	// OutboxMessage is a message waiting in the outbox.
	OutboxMessage = adapters.OutboxMessage

	// OutboxStore persists outbox messages.
	OutboxStore = adapters.OutboxStore

	// OutboxStatus is the delivery state of an outbox message.
	OutboxStatus = adapters.OutboxStatus
)

// Outbox status constants.
const (
	OutboxPending    = adapters.OutboxPending
	OutboxProcessing = adapters.OutboxProcessing
	OutboxCompleted  = adapters.OutboxCompleted
	OutboxFailed     = adapters.OutboxFailed
	OutboxDeadLetter = adapters.OutboxDeadLetter
)

// OutboxMetrics records outbox relay measurements.
type OutboxMetrics interface {
	RecordRelayed(destination string, success bool)
	RecordDeadLettered(count int64)
	RecordBatchDuration(duration time.Duration)
}

type noopOutboxMetrics struct{}

func (noopOutboxMetrics) RecordRelayed(destination string, success bool) {}
func (noopOutboxMetrics) RecordDeadLettered(count int64)                 {}
func (noopOutboxMetrics) RecordBatchDuration(duration time.Duration)     {}

// ToOutboxMessage copies msg into an outbox record bound for destination.
// The record ID is the message ID; an empty one is filled in by the store.
func ToOutboxMessage(destination string, msg *Message) *OutboxMessage {
	headers := make(map[string]string, len(msg.Headers))
	for k, v := range msg.Headers {
		headers[k] = v
	}
	return &OutboxMessage{
		ID:          msg.ID(),
		Destination: destination,
		Headers:     headers,
		Payload:     append([]byte(nil), msg.Payload...),
	}
}

// FromOutboxMessage rebuilds the message held by an outbox record.
func FromOutboxMessage(om *OutboxMessage) *Message {
	msg := NewMessage(om.Payload, om.Headers)
	if msg.ID() == "" {
		msg.SetHeader(HeaderID, om.ID)
	}
	return msg
}

// OutboxProducer is a MessageProducer that schedules messages in an
// OutboxStore. An OutboxRelay later hands them to the real transport.
type OutboxProducer struct {
	store       OutboxStore
	maxAttempts int
}

// OutboxProducerOption configures an OutboxProducer.
type OutboxProducerOption func(*OutboxProducer)

// WithOutboxMaxAttempts limits delivery attempts for messages from this producer.
func WithOutboxMaxAttempts(n int) OutboxProducerOption {
	return func(p *OutboxProducer) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// NewOutboxProducer creates an OutboxProducer writing to store.
func NewOutboxProducer(store OutboxStore, opts ...OutboxProducerOption) *OutboxProducer {
	p := &OutboxProducer{store: store}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Send schedules msg. When msg has no ID it receives the one assigned by the store.
func (p *OutboxProducer) Send(ctx context.Context, destination string, msg *Message) error {
	om := ToOutboxMessage(destination, msg)
	om.MaxAttempts = p.maxAttempts

	if err := p.store.Schedule(ctx, []*OutboxMessage{om}); err != nil {
		return fmt.Errorf("tram: failed to schedule outbox message for %s: %w", destination, err)
	}
	if msg.ID() == "" {
		msg.SetHeader(HeaderID, om.ID)
	}
	return nil
}
