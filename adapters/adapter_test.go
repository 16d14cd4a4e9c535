package adapters

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelErrors(t *testing.T) {
	errs := []error{
		ErrSagaInstanceNotFound,
		ErrConcurrencyConflict,
		ErrNilInstance,
		ErrEmptySagaID,
		ErrEmptySagaType,
		ErrRepositoryClosed,
		ErrOutboxMessageNotFound,
		ErrEmptyMessageID,
	}
	for i, a := range errs {
		assert.Contains(t, a.Error(), "tram: ")
		for j, b := range errs {
			if i != j {
				assert.NotErrorIs(t, a, b)
			}
		}
	}
}

func TestSagaInstanceNotFoundError(t *testing.T) {
	err := &SagaInstanceNotFoundError{SagaType: "CreateOrderSaga", SagaID: "s-1"}

	assert.Equal(t, "tram: saga instance not found: CreateOrderSaga/s-1", err.Error())
	assert.ErrorIs(t, err, ErrSagaInstanceNotFound)
	assert.ErrorIs(t, fmt.Errorf("find: %w", err), ErrSagaInstanceNotFound)
	assert.Equal(t, ErrSagaInstanceNotFound, errors.Unwrap(err))

	var target *SagaInstanceNotFoundError
	assert.ErrorAs(t, fmt.Errorf("find: %w", err), &target)
	assert.Equal(t, "s-1", target.SagaID)
}

func TestOutboxStatus(t *testing.T) {
	tests := []struct {
		status OutboxStatus
		name   string
	}{
		{OutboxPending, "pending"},
		{OutboxProcessing, "processing"},
		{OutboxCompleted, "completed"},
		{OutboxFailed, "failed"},
		{OutboxDeadLetter, "dead_letter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.status.String())
			parsed, ok := ParseOutboxStatus(tt.name)
			assert.True(t, ok)
			assert.Equal(t, tt.status, parsed)
		})
	}

	assert.Equal(t, "unknown", OutboxStatus(42).String())
	_, ok := ParseOutboxStatus("unknown")
	assert.False(t, ok)
}
