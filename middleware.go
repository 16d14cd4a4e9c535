package tram

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// HandlerMiddleware decorates a MessageHandler.
type HandlerMiddleware func(next MessageHandler) MessageHandler

// ChainHandler wraps h with middlewares. The first middleware is the outermost.
func ChainHandler(h MessageHandler, middlewares ...HandlerMiddleware) MessageHandler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// PanicError is returned by RecoveryMiddleware when a handler panics.
type PanicError struct {
	MessageID string
	Value     interface{}
	Stack     string
}

// Error returns the error message.
func (e *PanicError) Error() string {
	return fmt.Sprintf("tram: handler panicked on message %s: %v", e.MessageID, e.Value)
}

// RecoveryMiddleware turns handler panics into *PanicError.
func RecoveryMiddleware() HandlerMiddleware {
	return func(next MessageHandler) MessageHandler {
		return MessageHandlerFunc(func(ctx context.Context, msg *Message) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &PanicError{MessageID: msg.ID(), Value: r, Stack: string(debug.Stack())}
				}
			}()
			return next.HandleMessage(ctx, msg)
		})
	}
}

// LoggingMiddleware logs every message and its outcome.
func LoggingMiddleware(logger Logger) HandlerMiddleware {
	return func(next MessageHandler) MessageHandler {
		return MessageHandlerFunc(func(ctx context.Context, msg *Message) error {
			start := time.Now()
			kind, name := describe(msg)
			logger.Debug("Handling message", "messageID", msg.ID(), kind, name)

			err := next.HandleMessage(ctx, msg)
			if err != nil {
				logger.Error("Message handling failed",
					"messageID", msg.ID(), kind, name, "duration", time.Since(start), "error", err)
				return err
			}
			logger.Debug("Message handled", "messageID", msg.ID(), kind, name, "duration", time.Since(start))
			return nil
		})
	}
}

// describe names a message by its command or reply type.
func describe(msg *Message) (string, string) {
	if t := msg.Header(HeaderCommandType); t != "" {
		return "commandType", t
	}
	if t := msg.Header(HeaderReplyType); t != "" {
		return "replyType", t
	}
	return "destination", msg.Header(HeaderDestination)
}

// TimeoutMiddleware bounds each HandleMessage call.
func TimeoutMiddleware(timeout time.Duration) HandlerMiddleware {
	return func(next MessageHandler) MessageHandler {
		return MessageHandlerFunc(func(ctx context.Context, msg *Message) error {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next.HandleMessage(ctx, msg)
		})
	}
}

// RetryConfig configures RetryMiddleware.
type RetryConfig struct {
	// MaxAttempts includes the first attempt.
	MaxAttempts int

	InitialDelay time.Duration
	MaxDelay     time.Duration

	// Multiplier grows the delay after each failed attempt.
	Multiplier float64

	// ShouldRetry filters retryable errors. Nil retries everything.
	ShouldRetry func(err error) bool
}

// DefaultRetryConfig returns three attempts with exponential backoff from 100ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryMiddleware retries failed handling in-process before the error
// reaches the transport.
func RetryMiddleware(config RetryConfig) HandlerMiddleware {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 5 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 1.0
	}

	return func(next MessageHandler) MessageHandler {
		return MessageHandlerFunc(func(ctx context.Context, msg *Message) error {
			delay := config.InitialDelay
			var err error
			for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
				if err = next.HandleMessage(ctx, msg); err == nil {
					return nil
				}
				if attempt == config.MaxAttempts {
					break
				}
				if config.ShouldRetry != nil && !config.ShouldRetry(err) {
					break
				}

				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}

				delay = time.Duration(float64(delay) * config.Multiplier)
				if delay > config.MaxDelay {
					delay = config.MaxDelay
				}
			}
			return err
		})
	}
}

// ConditionalMiddleware applies middleware only to messages matching condition.
func ConditionalMiddleware(condition func(*Message) bool, middleware HandlerMiddleware) HandlerMiddleware {
	return func(next MessageHandler) MessageHandler {
		wrapped := middleware(next)
		return MessageHandlerFunc(func(ctx context.Context, msg *Message) error {
			if condition(msg) {
				return wrapped.HandleMessage(ctx, msg)
			}
			return next.HandleMessage(ctx, msg)
		})
	}
}

type sagaIDKey struct{}

// SagaIDFromContext returns the saga ID stored by SagaContextMiddleware.
func SagaIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sagaIDKey{}).(string); ok {
		return v
	}
	return ""
}

// SagaContextMiddleware puts the saga ID of a command or reply into the
// context, so participant handlers can log or look it up.
func SagaContextMiddleware() HandlerMiddleware {
	return func(next MessageHandler) MessageHandler {
		return MessageHandlerFunc(func(ctx context.Context, msg *Message) error {
			id := msg.Header(HeaderSagaID)
			if id == "" {
				id = msg.Header(HeaderReplySagaID)
			}
			if id != "" {
				ctx = context.WithValue(ctx, sagaIDKey{}, id)
			}
			return next.HandleMessage(ctx, msg)
		})
	}
}
