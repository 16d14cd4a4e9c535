package testutil

import (
	"context"
	"strconv"
	"sync"

	"github.com/AshkanYarmoradi/go-tram"
)

// SentMessage is a message recorded by MockProducer.
type SentMessage struct {
	Destination string
	Message     *tram.Message
}

// MockProducer is a tram.MessageProducer that records sends.
// Messages without an ID get msg-1, msg-2, ...
type MockProducer struct {
	mu      sync.Mutex
	SendErr error
	Sent    []SentMessage
	next    int
}

// Send implements tram.MessageProducer.
func (p *MockProducer) Send(ctx context.Context, destination string, msg *tram.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.SendErr != nil {
		return p.SendErr
	}
	if msg.ID() == "" {
		p.next++
		msg.SetHeader(tram.HeaderID, "msg-"+strconv.Itoa(p.next))
	}
	p.Sent = append(p.Sent, SentMessage{Destination: destination, Message: msg.Copy()})
	return nil
}

// Count returns the number of recorded sends.
func (p *MockProducer) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Sent)
}

// Last returns the most recent send. It panics when nothing was sent.
func (p *MockProducer) Last() SentMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Sent[len(p.Sent)-1]
}

// MockHandler is a tram.MessageHandler that records handled messages.
type MockHandler struct {
	mu        sync.Mutex
	HandleErr error
	Handled   []*tram.Message
}

// HandleMessage implements tram.MessageHandler.
func (h *MockHandler) HandleMessage(ctx context.Context, msg *tram.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.Handled = append(h.Handled, msg.Copy())
	return h.HandleErr
}

// Count returns the number of handled messages.
func (h *MockHandler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.Handled)
}
