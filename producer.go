package tram

import (
	"context"
	"fmt"
	"time"
)

// MessageProducer sends a message to a destination.
// Implementations assign the message ID header before the message leaves the
// process, so that after Send returns msg.ID() names the sent message.
type MessageProducer interface {
	Send(ctx context.Context, destination string, msg *Message) error
}

// MessageProducerFunc adapts a function to MessageProducer.
type MessageProducerFunc func(ctx context.Context, destination string, msg *Message) error

// Send calls f.
func (f MessageProducerFunc) Send(ctx context.Context, destination string, msg *Message) error {
	return f(ctx, destination, msg)
}

// MessageHandler consumes an inbound message.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *Message) error
}

// MessageHandlerFunc adapts a function to MessageHandler.
type MessageHandlerFunc func(ctx context.Context, msg *Message) error

// HandleMessage calls f.
func (f MessageHandlerFunc) HandleMessage(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}

// idAssigningProducer stamps outgoing messages before delegating.
type idAssigningProducer struct {
	next MessageProducer
	ids  IDGenerator
	now  func() time.Time
}

// WithMessageIDs wraps a transport producer so every message gets an ID,
// DESTINATION and DATE header before it is sent.
func WithMessageIDs(next MessageProducer, ids IDGenerator) MessageProducer {
	if ids == nil {
		ids = NewUUIDGenerator()
	}
	return &idAssigningProducer{next: next, ids: ids, now: time.Now}
}

func (p *idAssigningProducer) Send(ctx context.Context, destination string, msg *Message) error {
	msg.SetHeader(HeaderID, p.ids.GenerateID())
	msg.SetHeader(HeaderDestination, destination)
	msg.SetHeader(HeaderDate, p.now().UTC().Format(time.RFC1123))
	return p.next.Send(ctx, destination, msg)
}

// CommandProducer turns command payloads into command messages.
type CommandProducer struct {
	producer   MessageProducer
	serializer Serializer
	channels   ChannelMapping
}

// NewCommandProducer creates a CommandProducer.
// A nil serializer defaults to JSON and a nil mapping passes channels through.
func NewCommandProducer(producer MessageProducer, serializer Serializer, channels ChannelMapping) *CommandProducer {
	if serializer == nil {
		serializer = NewJSONSerializer()
	}
	if channels == nil {
		channels = identityMapping{}
	}
	return &CommandProducer{
		producer:   producer,
		serializer: serializer,
		channels:   channels,
	}
}

// Send serializes cmd and sends it to channel. It returns the ID of the sent message.
func (p *CommandProducer) Send(ctx context.Context, channel, resource string, cmd interface{}, replyTo string, headers map[string]string) (string, error) {
	if err := validate(cmd); err != nil {
		return "", err
	}

	payload, err := p.serializer.Serialize(cmd)
	if err != nil {
		return "", err
	}

	msg := NewMessageBuilder().
		WithPayload(payload).
		WithExtraHeaders("", headers).
		WithHeader(HeaderCommandType, TypeName(cmd)).
		WithHeader(HeaderCommandDestination, channel).
		WithHeader(HeaderCommandReplyTo, replyTo).
		Build()
	if resource != "" {
		msg.SetHeader(HeaderCommandResource, resource)
	}

	destination := p.channels.Transform(channel)
	if err := p.producer.Send(ctx, destination, msg); err != nil {
		return "", fmt.Errorf("tram: failed to send %s to %s: %w", TypeName(cmd), destination, err)
	}
	return msg.ID(), nil
}
