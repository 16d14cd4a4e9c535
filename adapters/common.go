package adapters

import (
	"fmt"
)

// ConcurrencyError provides details about a concurrency conflict.
// It is returned when an Update carries a stale version.
type ConcurrencyError struct {
	SagaID          string
	ExpectedVersion int64
	ActualVersion   int64
}

// NewConcurrencyError creates a new ConcurrencyError.
func NewConcurrencyError(sagaID string, expected, actual int64) *ConcurrencyError {
	return &ConcurrencyError{
		SagaID:          sagaID,
		ExpectedVersion: expected,
		ActualVersion:   actual,
	}
}

// Error implements the error interface.
func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("tram: concurrency conflict on saga %q: expected version %d, got %d",
		e.SagaID, e.ExpectedVersion, e.ActualVersion)
}

// Is implements errors.Is compatibility.
// Returns true when compared with ErrConcurrencyConflict.
func (e *ConcurrencyError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

// CopySagaInstance creates a deep copy of a SagaInstance.
// Repositories hand out copies so callers cannot mutate stored records.
func CopySagaInstance(instance *SagaInstance) *SagaInstance {
	if instance == nil {
		return nil
	}
	copied := *instance
	if instance.SerializedData.Data != nil {
		copied.SerializedData.Data = make([]byte, len(instance.SerializedData.Data))
		copy(copied.SerializedData.Data, instance.SerializedData.Data)
	}
	return &copied
}

// ValidateForUpdate checks the fields every Update requires.
func ValidateForUpdate(instance *SagaInstance) error {
	if instance == nil {
		return ErrNilInstance
	}
	if instance.SagaType == "" {
		return ErrEmptySagaType
	}
	if instance.ID == "" {
		return ErrEmptySagaID
	}
	return nil
}

// CopyOutboxMessage creates a deep copy of an OutboxMessage.
func CopyOutboxMessage(msg *OutboxMessage) *OutboxMessage {
	if msg == nil {
		return nil
	}
	copied := *msg
	if msg.Payload != nil {
		copied.Payload = append([]byte(nil), msg.Payload...)
	}
	if msg.Headers != nil {
		copied.Headers = make(map[string]string, len(msg.Headers))
		for k, v := range msg.Headers {
			copied.Headers[k] = v
		}
	}
	if msg.LastAttemptAt != nil {
		t := *msg.LastAttemptAt
		copied.LastAttemptAt = &t
	}
	if msg.ProcessedAt != nil {
		t := *msg.ProcessedAt
		copied.ProcessedAt = &t
	}
	return &copied
}
