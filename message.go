package tram

import (
	"strings"
)

// Message header names. The strings match the Eventuate Tram wire vocabulary so
// that sagas can exchange commands and replies with services written against it.
const (
	HeaderID          = "ID"
	HeaderDestination = "DESTINATION"
	HeaderDate        = "DATE"
	HeaderPartitionID = "PARTITION_ID"

	// CommandHeaderPrefix prefixes every header that describes a command.
	CommandHeaderPrefix = "command_"

	HeaderCommandType        = CommandHeaderPrefix + "type"
	HeaderCommandResource    = CommandHeaderPrefix + "resource"
	HeaderCommandDestination = CommandHeaderPrefix + "_destination"
	HeaderCommandReplyTo     = CommandHeaderPrefix + "reply_to"

	HeaderSagaType = CommandHeaderPrefix + "saga_type"
	HeaderSagaID   = CommandHeaderPrefix + "saga_id"

	// CommandReplyPrefix replaces CommandHeaderPrefix on correlation headers echoed in a reply.
	CommandReplyPrefix = "commandreply_"

	HeaderReplyType        = "reply_type"
	HeaderReplyOutcome     = "reply_outcome-type"
	HeaderInReplyTo        = "reply_to_message_id"
	HeaderReplySagaType    = CommandReplyPrefix + "saga_type"
	HeaderReplySagaID      = CommandReplyPrefix + "saga_id"
	HeaderReplyCommandType = CommandReplyPrefix + "type"
)

// Message is a payload plus string headers, the unit carried by every transport.
type Message struct {
	Payload []byte            `json:"payload"`
	Headers map[string]string `json:"headers"`
}

// NewMessage creates a message with the given payload and a copy of headers.
func NewMessage(payload []byte, headers map[string]string) *Message {
	m := &Message{
		Payload: payload,
		Headers: make(map[string]string, len(headers)),
	}
	for k, v := range headers {
		m.Headers[k] = v
	}
	return m
}

// ID returns the message ID header, or empty string when unset.
func (m *Message) ID() string {
	return m.Header(HeaderID)
}

// Header returns the value of a header, or empty string when unset.
func (m *Message) Header(name string) string {
	if m.Headers == nil {
		return ""
	}
	return m.Headers[name]
}

// HasHeader reports whether the header is set.
func (m *Message) HasHeader(name string) bool {
	_, ok := m.Headers[name]
	return ok
}

// RequiredHeader returns the value of a header or a *MissingHeaderError.
func (m *Message) RequiredHeader(name string) (string, error) {
	v, ok := m.Headers[name]
	if !ok {
		return "", NewMissingHeaderError(name, m.ID())
	}
	return v, nil
}

// SetHeader sets a header value.
func (m *Message) SetHeader(name, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	m.Headers[name] = value
}

// RemoveHeader deletes a header.
func (m *Message) RemoveHeader(name string) {
	delete(m.Headers, name)
}

// Copy returns a deep copy of the message.
func (m *Message) Copy() *Message {
	if m == nil {
		return nil
	}
	c := NewMessage(nil, m.Headers)
	if m.Payload != nil {
		c.Payload = make([]byte, len(m.Payload))
		copy(c.Payload, m.Payload)
	}
	return c
}

// String returns a short description for logs.
func (m *Message) String() string {
	var b strings.Builder
	b.WriteString("Message{")
	b.WriteString("id=")
	b.WriteString(m.ID())
	if t := m.Header(HeaderCommandType); t != "" {
		b.WriteString(" command=")
		b.WriteString(t)
	}
	if t := m.Header(HeaderReplyType); t != "" {
		b.WriteString(" reply=")
		b.WriteString(t)
	}
	b.WriteString("}")
	return b.String()
}

// MessageBuilder assembles a Message.
type MessageBuilder struct {
	payload []byte
	headers map[string]string
}

// NewMessageBuilder creates an empty builder.
func NewMessageBuilder() *MessageBuilder {
	return &MessageBuilder{headers: make(map[string]string)}
}

// MessageBuilderFrom starts a builder from an existing message.
func MessageBuilderFrom(m *Message) *MessageBuilder {
	c := m.Copy()
	return &MessageBuilder{payload: c.Payload, headers: c.Headers}
}

// WithPayload sets the payload.
func (b *MessageBuilder) WithPayload(payload []byte) *MessageBuilder {
	b.payload = payload
	return b
}

// WithHeader sets a single header.
func (b *MessageBuilder) WithHeader(name, value string) *MessageBuilder {
	b.headers[name] = value
	return b
}

// WithExtraHeaders sets every entry of headers, each name prefixed by prefix.
func (b *MessageBuilder) WithExtraHeaders(prefix string, headers map[string]string) *MessageBuilder {
	for k, v := range headers {
		b.headers[prefix+k] = v
	}
	return b
}

// Build returns the assembled message. The builder may be reused.
func (b *MessageBuilder) Build() *Message {
	return NewMessage(b.payload, b.headers)
}
