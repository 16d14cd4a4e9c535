package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AshkanYarmoradi/go-tram/adapters"
)

// Ensure interface compliance at compile time
var _ adapters.SagaInstanceRepository = (*SagaInstanceRepository)(nil)

type uuidGenerator struct{}

func (uuidGenerator) GenerateID() string {
	return uuid.NewString()
}

type instanceKey struct {
	sagaType string
	sagaID   string
}

// Option configures a SagaInstanceRepository.
type Option func(*SagaInstanceRepository)

// WithIDGenerator sets the generator used to assign saga IDs on Save.
func WithIDGenerator(ids adapters.IDGenerator) Option {
	return func(r *SagaInstanceRepository) {
		r.ids = ids
	}
}

// SagaInstanceRepository provides an in-memory implementation of adapters.SagaInstanceRepository.
// This is primarily intended for testing and development purposes.
type SagaInstanceRepository struct {
	mu        sync.RWMutex
	instances map[instanceKey]*adapters.SagaInstance
	ids       adapters.IDGenerator
	closed    bool
}

// NewSagaInstanceRepository creates a new in-memory SagaInstanceRepository.
func NewSagaInstanceRepository(opts ...Option) *SagaInstanceRepository {
	r := &SagaInstanceRepository{
		instances: make(map[instanceKey]*adapters.SagaInstance),
		ids:       uuidGenerator{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Save stores a new saga instance, assigning an ID when it has none.
func (r *SagaInstanceRepository) Save(ctx context.Context, instance *adapters.SagaInstance) error {
	if instance == nil {
		return adapters.ErrNilInstance
	}
	if instance.SagaType == "" {
		return adapters.ErrEmptySagaType
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.check(ctx); err != nil {
		return err
	}

	if instance.ID == "" {
		instance.ID = r.ids.GenerateID()
	}

	key := instanceKey{instance.SagaType, instance.ID}
	if existing, exists := r.instances[key]; exists {
		return adapters.NewConcurrencyError(instance.ID, 0, existing.Version)
	}

	now := time.Now()
	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}
	instance.UpdatedAt = now
	instance.Version = 1

	r.instances[key] = adapters.CopySagaInstance(instance)
	return nil
}

// Find retrieves a saga instance by type and ID.
func (r *SagaInstanceRepository) Find(ctx context.Context, sagaType, sagaID string) (*adapters.SagaInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.check(ctx); err != nil {
		return nil, err
	}

	instance, exists := r.instances[instanceKey{sagaType, sagaID}]
	if !exists {
		return nil, &adapters.SagaInstanceNotFoundError{SagaType: sagaType, SagaID: sagaID}
	}
	return adapters.CopySagaInstance(instance), nil
}

// Update replaces a stored saga instance.
// Uses optimistic concurrency control based on the Version field.
func (r *SagaInstanceRepository) Update(ctx context.Context, instance *adapters.SagaInstance) error {
	if err := adapters.ValidateForUpdate(instance); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.check(ctx); err != nil {
		return err
	}

	key := instanceKey{instance.SagaType, instance.ID}
	existing, exists := r.instances[key]
	if !exists {
		return &adapters.SagaInstanceNotFoundError{SagaType: instance.SagaType, SagaID: instance.ID}
	}
	if instance.Version != existing.Version {
		return adapters.NewConcurrencyError(instance.ID, instance.Version, existing.Version)
	}

	instance.Version = existing.Version + 1
	instance.UpdatedAt = time.Now()
	r.instances[key] = adapters.CopySagaInstance(instance)
	return nil
}

// FindByType returns all instances of sagaType ordered by creation time.
func (r *SagaInstanceRepository) FindByType(ctx context.Context, sagaType string) ([]*adapters.SagaInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.check(ctx); err != nil {
		return nil, err
	}

	var result []*adapters.SagaInstance
	for key, instance := range r.instances {
		if key.sagaType == sagaType {
			result = append(result, adapters.CopySagaInstance(instance))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// Ping reports whether the repository is open.
func (r *SagaInstanceRepository) Ping(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.check(ctx)
}

// Close marks the repository closed. Further operations fail with ErrRepositoryClosed.
func (r *SagaInstanceRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Clear removes all instances (useful for testing).
func (r *SagaInstanceRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances = make(map[instanceKey]*adapters.SagaInstance)
}

// Count returns the total number of instances stored.
func (r *SagaInstanceRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances)
}

// check must be called with the lock held.
func (r *SagaInstanceRepository) check(ctx context.Context) error {
	if r.closed {
		return adapters.ErrRepositoryClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return nil
}
