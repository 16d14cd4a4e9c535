package memory

import (
	"context"
	"sync"
	"time"

	"github.com/AshkanYarmoradi/go-tram/adapters"
)

var _ adapters.ReceivedMessageStore = (*ReceivedMessageStore)(nil)

type receivedKey struct {
	subscriberID string
	messageID    string
}

// ReceivedMessageStore is an in-memory adapters.ReceivedMessageStore.
// Records are lost on restart, so it only protects a single process.
type ReceivedMessageStore struct {
	mu       sync.RWMutex
	received map[receivedKey]time.Time
	now      func() time.Time

	cleanupInterval time.Duration
	maxAge          time.Duration
	stopCleanup     chan struct{}
	closeOnce       sync.Once
}

// ReceivedOption configures a ReceivedMessageStore.
type ReceivedOption func(*ReceivedMessageStore)

// WithCleanupInterval enables periodic removal of records older than the
// max age. Zero disables it.
func WithCleanupInterval(interval time.Duration) ReceivedOption {
	return func(s *ReceivedMessageStore) {
		s.cleanupInterval = interval
	}
}

// WithMaxAge sets how long records survive periodic cleanup.
func WithMaxAge(maxAge time.Duration) ReceivedOption {
	return func(s *ReceivedMessageStore) {
		s.maxAge = maxAge
	}
}

// NewReceivedMessageStore creates an empty store.
func NewReceivedMessageStore(opts ...ReceivedOption) *ReceivedMessageStore {
	s := &ReceivedMessageStore{
		received:    make(map[receivedKey]time.Time),
		now:         time.Now,
		maxAge:      24 * time.Hour,
		stopCleanup: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cleanupInterval > 0 {
		go s.cleanupLoop()
	}
	return s
}

func (s *ReceivedMessageStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.Cleanup(context.Background(), s.maxAge)
		case <-s.stopCleanup:
			return
		}
	}
}

// MarkReceived records the pair and reports whether it was new.
func (s *ReceivedMessageStore) MarkReceived(ctx context.Context, subscriberID, messageID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if messageID == "" {
		return false, adapters.ErrEmptyMessageID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := receivedKey{subscriberID, messageID}
	if _, seen := s.received[key]; seen {
		return false, nil
	}
	s.received[key] = s.now()
	return true, nil
}

// Forget removes the record for the pair.
func (s *ReceivedMessageStore) Forget(ctx context.Context, subscriberID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.received, receivedKey{subscriberID, messageID})
	return nil
}

// Cleanup removes records older than olderThan.
func (s *ReceivedMessageStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-olderThan)
	var count int64
	for key, at := range s.received {
		if at.Before(cutoff) {
			delete(s.received, key)
			count++
		}
	}
	return count, nil
}

// Len returns the number of records.
func (s *ReceivedMessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.received)
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (s *ReceivedMessageStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}
