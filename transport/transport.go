// Package transport routes outbound saga messages to broker-specific producers.
//
// Destinations may carry a scheme, as in "kafka:orders" or "rabbitmq:billing".
// A Router strips the scheme and hands the remainder to the producer registered
// for it. Destinations without a scheme go to the default producer.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/AshkanYarmoradi/go-tram"
)

// ErrNoRoute indicates no producer is registered for a destination's scheme.
var ErrNoRoute = errors.New("tram/transport: no producer for destination")

// Consumer reads messages from a broker and feeds them to a handler until ctx is done.
type Consumer interface {
	Run(ctx context.Context, handler tram.MessageHandler) error
}

// Ensure interface compliance at compile time
var _ tram.MessageProducer = (*Router)(nil)

// Router is a MessageProducer that dispatches on the destination scheme.
type Router struct {
	mu        sync.RWMutex
	producers map[string]tram.MessageProducer
	fallback  tram.MessageProducer
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRoute registers producer for destinations starting with scheme + ":".
func WithRoute(scheme string, producer tram.MessageProducer) RouterOption {
	return func(r *Router) {
		r.producers[scheme] = producer
	}
}

// WithDefault sets the producer for destinations without a registered scheme.
func WithDefault(producer tram.MessageProducer) RouterOption {
	return func(r *Router) {
		r.fallback = producer
	}
}

// NewRouter creates a Router.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{producers: make(map[string]tram.MessageProducer)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces the producer for scheme.
func (r *Router) Register(scheme string, producer tram.MessageProducer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.producers[scheme] = producer
}

// Send routes msg by the scheme of destination. The scheme is removed from the
// destination handed to the selected producer.
func (r *Router) Send(ctx context.Context, destination string, msg *tram.Message) error {
	scheme, rest := Split(destination)

	r.mu.RLock()
	producer, ok := r.producers[scheme]
	fallback := r.fallback
	r.mu.RUnlock()

	if ok {
		if rest == "" {
			return fmt.Errorf("tram/transport: invalid destination %q: missing name", destination)
		}
		return producer.Send(ctx, rest, msg)
	}
	if fallback != nil {
		return fallback.Send(ctx, destination, msg)
	}
	return fmt.Errorf("%w: %s", ErrNoRoute, destination)
}

// Split separates "scheme:name" into its parts. A destination without a colon
// has an empty scheme.
func Split(destination string) (scheme, name string) {
	idx := strings.Index(destination, ":")
	if idx < 0 {
		return "", destination
	}
	return destination[:idx], destination[idx+1:]
}
