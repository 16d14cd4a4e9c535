package sagatest

import (
	"context"
	"sync"

	"github.com/AshkanYarmoradi/go-tram"
)

// Ensure interface compliance at compile time
var _ tram.MessageProducer = (*CaptureSink)(nil)

// CapturedMessage is a message recorded by a CaptureSink.
type CapturedMessage struct {
	Destination string
	Message     *tram.Message
}

// CaptureSink is a MessageProducer that records messages instead of sending them.
type CaptureSink struct {
	mu       sync.Mutex
	ids      tram.IDGenerator
	messages []CapturedMessage
}

// NewCaptureSink creates an empty sink that assigns message IDs from ids.
func NewCaptureSink(ids tram.IDGenerator) *CaptureSink {
	if ids == nil {
		ids = tram.NewUUIDGenerator()
	}
	return &CaptureSink{ids: ids}
}

// Send assigns msg a fresh ID and records a copy of it.
func (s *CaptureSink) Send(ctx context.Context, destination string, msg *tram.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.SetHeader(tram.HeaderID, s.ids.GenerateID())
	s.messages = append(s.messages, CapturedMessage{
		Destination: destination,
		Message:     msg.Copy(),
	})
	return nil
}

// Messages returns the captured messages in send order.
func (s *CaptureSink) Messages() []CapturedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]CapturedMessage, len(s.messages))
	for i, m := range s.messages {
		out[i] = CapturedMessage{Destination: m.Destination, Message: m.Message.Copy()}
	}
	return out
}

// Len returns the number of captured messages.
func (s *CaptureSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Last returns the most recently captured message. ok is false when the sink is empty.
func (s *CaptureSink) Last() (msg CapturedMessage, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.messages) == 0 {
		return CapturedMessage{}, false
	}
	last := s.messages[len(s.messages)-1]
	return CapturedMessage{Destination: last.Destination, Message: last.Message.Copy()}, true
}

// Clear discards all captured messages.
func (s *CaptureSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}
