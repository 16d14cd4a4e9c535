package sagatest

import (
	"context"
	"sync"

	"github.com/AshkanYarmoradi/go-tram"
	"github.com/AshkanYarmoradi/go-tram/adapters"
)

// Ensure interface compliance at compile time
var _ tram.SagaInstanceRepository = (*SingleSlotRepository)(nil)

// SingleSlotRepository is a SagaInstanceRepository holding at most one instance.
// A harness drives exactly one saga, so Find ignores the requested type and ID
// and returns whatever was stored last.
type SingleSlotRepository struct {
	mu       sync.Mutex
	ids      tram.IDGenerator
	instance *tram.SagaInstance
}

// NewSingleSlotRepository creates an empty repository that assigns IDs from ids.
func NewSingleSlotRepository(ids tram.IDGenerator) *SingleSlotRepository {
	if ids == nil {
		ids = tram.NewUUIDGenerator()
	}
	return &SingleSlotRepository{ids: ids}
}

// Save assigns a fresh ID to instance and stores it, replacing any previous record.
func (r *SingleSlotRepository) Save(ctx context.Context, instance *tram.SagaInstance) error {
	if instance == nil {
		return tram.ErrNilInstance
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	instance.ID = r.ids.GenerateID()
	r.instance = adapters.CopySagaInstance(instance)
	return nil
}

// Find returns a copy of the stored instance, or ErrSagaInstanceNotFound when empty.
func (r *SingleSlotRepository) Find(ctx context.Context, sagaType, sagaID string) (*tram.SagaInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.instance == nil {
		return nil, &tram.SagaInstanceNotFoundError{SagaType: sagaType, SagaID: sagaID}
	}
	return adapters.CopySagaInstance(r.instance), nil
}

// Update replaces the stored instance.
func (r *SingleSlotRepository) Update(ctx context.Context, instance *tram.SagaInstance) error {
	if instance == nil {
		return tram.ErrNilInstance
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.instance = adapters.CopySagaInstance(instance)
	return nil
}

// Instance returns a copy of the stored instance, or nil.
func (r *SingleSlotRepository) Instance() *tram.SagaInstance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return adapters.CopySagaInstance(r.instance)
}
