package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AshkanYarmoradi/go-tram/adapters"
)

var _ adapters.OutboxStore = (*OutboxStore)(nil)

// defaultMaxAttempts applies to messages scheduled without MaxAttempts.
const defaultMaxAttempts = 5

// OutboxStore is an in-memory adapters.OutboxStore for tests and single-process setups.
type OutboxStore struct {
	mu       sync.RWMutex
	messages map[string]*adapters.OutboxMessage
	ids      adapters.IDGenerator
	now      func() time.Time
}

// NewOutboxStore creates an empty OutboxStore.
func NewOutboxStore() *OutboxStore {
	return &OutboxStore{
		messages: make(map[string]*adapters.OutboxMessage),
		ids:      uuidGenerator{},
		now:      time.Now,
	}
}

// Schedule stores messages as pending.
func (s *OutboxStore) Schedule(ctx context.Context, messages []*adapters.OutboxMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, msg := range messages {
		if msg.ID == "" {
			msg.ID = s.ids.GenerateID()
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}
		if msg.ScheduledAt.IsZero() {
			msg.ScheduledAt = now
		}
		if msg.MaxAttempts == 0 {
			msg.MaxAttempts = defaultMaxAttempts
		}
		msg.Status = adapters.OutboxPending
		s.messages[msg.ID] = adapters.CopyOutboxMessage(msg)
	}
	return nil
}

// FetchPending claims up to limit due messages, oldest schedule first.
func (s *OutboxStore) FetchPending(ctx context.Context, limit int) ([]*adapters.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var pending []*adapters.OutboxMessage
	for _, msg := range s.messages {
		if msg.Status == adapters.OutboxPending && !msg.ScheduledAt.After(now) {
			pending = append(pending, msg)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].ScheduledAt.Equal(pending[j].ScheduledAt) {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		}
		return pending[i].ScheduledAt.Before(pending[j].ScheduledAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	claimed := make([]*adapters.OutboxMessage, len(pending))
	for i, msg := range pending {
		msg.Status = adapters.OutboxProcessing
		msg.Attempts++
		at := now
		msg.LastAttemptAt = &at
		claimed[i] = adapters.CopyOutboxMessage(msg)
	}
	return claimed, nil
}

// MarkCompleted marks messages as delivered. Unknown IDs are ignored.
func (s *OutboxStore) MarkCompleted(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, id := range ids {
		if msg, ok := s.messages[id]; ok {
			msg.Status = adapters.OutboxCompleted
			at := now
			msg.ProcessedAt = &at
		}
	}
	return nil
}

// MarkFailed records a failed attempt.
func (s *OutboxStore) MarkFailed(ctx context.Context, id string, lastErr error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return adapters.ErrOutboxMessageNotFound
	}
	msg.Status = adapters.OutboxFailed
	if lastErr != nil {
		msg.LastError = lastErr.Error()
	}
	return nil
}

// RetryFailed returns failed messages with attempts left to pending.
func (s *OutboxStore) RetryFailed(ctx context.Context, maxAttempts int) (int64, error) {
	return s.transition(ctx, func(msg *adapters.OutboxMessage) bool {
		return msg.Attempts < limitFor(msg, maxAttempts)
	}, adapters.OutboxPending)
}

// MoveToDeadLetter parks failed messages without attempts left.
func (s *OutboxStore) MoveToDeadLetter(ctx context.Context, maxAttempts int) (int64, error) {
	return s.transition(ctx, func(msg *adapters.OutboxMessage) bool {
		return msg.Attempts >= limitFor(msg, maxAttempts)
	}, adapters.OutboxDeadLetter)
}

// limitFor prefers the message's own attempt limit over the relay-wide one.
func limitFor(msg *adapters.OutboxMessage, maxAttempts int) int {
	if msg.MaxAttempts > 0 && msg.MaxAttempts < maxAttempts {
		return msg.MaxAttempts
	}
	return maxAttempts
}

func (s *OutboxStore) transition(ctx context.Context, match func(*adapters.OutboxMessage) bool, to adapters.OutboxStatus) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, msg := range s.messages {
		if msg.Status == adapters.OutboxFailed && match(msg) {
			msg.Status = to
			count++
		}
	}
	return count, nil
}

// DeadLetters returns up to limit dead-lettered messages, oldest first.
func (s *OutboxStore) DeadLetters(ctx context.Context, limit int) ([]*adapters.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*adapters.OutboxMessage
	for _, msg := range s.messages {
		if msg.Status == adapters.OutboxDeadLetter {
			result = append(result, adapters.CopyOutboxMessage(msg))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Cleanup removes completed messages processed before now minus olderThan.
func (s *OutboxStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-olderThan)
	var count int64
	for id, msg := range s.messages {
		if msg.Status == adapters.OutboxCompleted && msg.ProcessedAt != nil && msg.ProcessedAt.Before(cutoff) {
			delete(s.messages, id)
			count++
		}
	}
	return count, nil
}

// Get returns a copy of the message with id.
func (s *OutboxStore) Get(id string) (*adapters.OutboxMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[id]
	return adapters.CopyOutboxMessage(msg), ok
}

// Count returns the number of stored messages.
func (s *OutboxStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// CountByStatus returns message counts per status.
func (s *OutboxStore) CountByStatus() map[adapters.OutboxStatus]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[adapters.OutboxStatus]int)
	for _, msg := range s.messages {
		counts[msg.Status]++
	}
	return counts
}
