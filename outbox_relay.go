package tram

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// ErrRelayRunning is returned by Run when the relay is already running.
var ErrRelayRunning = errors.New("tram: outbox relay is already running")

// RelayOption configures an OutboxRelay.
type RelayOption func(*OutboxRelay)

// WithRelayBatchSize sets how many messages one batch claims.
func WithRelayBatchSize(n int) RelayOption {
	return func(r *OutboxRelay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithRelayPollInterval sets the delay between batches.
func WithRelayPollInterval(d time.Duration) RelayOption {
	return func(r *OutboxRelay) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithRelayMaxAttempts sets how often a message is tried before it is dead-lettered.
func WithRelayMaxAttempts(n int) RelayOption {
	return func(r *OutboxRelay) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithRelayMaintenanceInterval sets how often failed messages are retried or dead-lettered.
func WithRelayMaintenanceInterval(d time.Duration) RelayOption {
	return func(r *OutboxRelay) {
		if d > 0 {
			r.maintenanceInterval = d
		}
	}
}

// WithRelayCleanupAge sets how long delivered messages are kept.
func WithRelayCleanupAge(d time.Duration) RelayOption {
	return func(r *OutboxRelay) {
		if d > 0 {
			r.cleanupAge = d
		}
	}
}

// WithRelayLogger sets the relay logger.
func WithRelayLogger(logger Logger) RelayOption {
	return func(r *OutboxRelay) {
		r.logger = logger
	}
}

// WithRelayMetrics sets the relay metrics.
func WithRelayMetrics(metrics OutboxMetrics) RelayOption {
	return func(r *OutboxRelay) {
		r.metrics = metrics
	}
}

// OutboxRelay moves messages from an OutboxStore to a transport producer.
// The producer should be the bare transport: message IDs were assigned when
// the messages were scheduled and must survive the relay.
type OutboxRelay struct {
	store    OutboxStore
	producer MessageProducer
	logger   Logger
	metrics  OutboxMetrics

	batchSize           int
	pollInterval        time.Duration
	maxAttempts         int
	maintenanceInterval time.Duration
	cleanupAge          time.Duration

	running atomic.Bool
}

// NewOutboxRelay creates a relay from store to producer.
func NewOutboxRelay(store OutboxStore, producer MessageProducer, opts ...RelayOption) *OutboxRelay {
	r := &OutboxRelay{
		store:               store,
		producer:            producer,
		logger:              NopLogger(),
		metrics:             noopOutboxMetrics{},
		batchSize:           100,
		pollInterval:        time.Second,
		maxAttempts:         5,
		maintenanceInterval: 5 * time.Second,
		cleanupAge:          7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RelayBatch claims one batch and sends it. It returns how many messages were
// delivered. Send failures are recorded on the messages, not returned.
func (r *OutboxRelay) RelayBatch(ctx context.Context) (int, error) {
	start := time.Now()

	messages, err := r.store.FetchPending(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("tram: failed to fetch pending outbox messages: %w", err)
	}
	if len(messages) == 0 {
		return 0, nil
	}

	delivered := make([]string, 0, len(messages))
	for _, om := range messages {
		if err := r.producer.Send(ctx, om.Destination, FromOutboxMessage(om)); err != nil {
			r.logger.Warn("Outbox delivery failed",
				"messageID", om.ID, "destination", om.Destination, "attempt", om.Attempts, "error", err)
			if markErr := r.store.MarkFailed(ctx, om.ID, err); markErr != nil {
				r.logger.Error("Failed to mark outbox message as failed", "messageID", om.ID, "error", markErr)
			}
			r.metrics.RecordRelayed(om.Destination, false)
			continue
		}
		delivered = append(delivered, om.ID)
		r.metrics.RecordRelayed(om.Destination, true)
	}

	if err := r.store.MarkCompleted(ctx, delivered); err != nil {
		return len(delivered), fmt.Errorf("tram: failed to mark outbox messages as completed: %w", err)
	}
	r.metrics.RecordBatchDuration(time.Since(start))
	return len(delivered), nil
}

// Drain relays batches until the outbox has nothing due.
func (r *OutboxRelay) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.RelayBatch(ctx)
		total += n
		if err != nil || n == 0 {
			return total, err
		}
	}
}

// Maintain retries failed messages that have attempts left, dead-letters
// the rest and removes delivered messages older than the cleanup age.
func (r *OutboxRelay) Maintain(ctx context.Context) error {
	retried, err := r.store.RetryFailed(ctx, r.maxAttempts)
	if err != nil {
		return fmt.Errorf("tram: failed to retry outbox messages: %w", err)
	}
	if retried > 0 {
		r.logger.Info("Retrying outbox messages", "count", retried)
	}

	dead, err := r.store.MoveToDeadLetter(ctx, r.maxAttempts)
	if err != nil {
		return fmt.Errorf("tram: failed to dead-letter outbox messages: %w", err)
	}
	if dead > 0 {
		r.logger.Warn("Outbox messages moved to dead letter", "count", dead)
		r.metrics.RecordDeadLettered(dead)
	}

	cleaned, err := r.store.Cleanup(ctx, r.cleanupAge)
	if err != nil {
		return fmt.Errorf("tram: failed to clean up outbox: %w", err)
	}
	if cleaned > 0 {
		r.logger.Debug("Removed delivered outbox messages", "count", cleaned)
	}
	return nil
}

// Run relays and maintains the outbox until ctx is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrRelayRunning
	}
	defer r.running.Store(false)

	r.logger.Info("Outbox relay started", "batchSize", r.batchSize, "pollInterval", r.pollInterval)
	defer r.logger.Info("Outbox relay stopped")

	poll := time.NewTicker(r.pollInterval)
	defer poll.Stop()
	maintain := time.NewTicker(r.maintenanceInterval)
	defer maintain.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-poll.C:
			if _, err := r.Drain(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("Outbox relay batch failed", "error", err)
			}
		case <-maintain.C:
			if err := r.Maintain(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("Outbox maintenance failed", "error", err)
			}
		}
	}
}

// IsRunning reports whether Run is active.
func (r *OutboxRelay) IsRunning() bool {
	return r.running.Load()
}
