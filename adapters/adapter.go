// Package adapters provides the storage-level types and interfaces for saga
// instance persistence backends.
package adapters

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for repository implementations.
// Repositories should return these (or errors that match via errors.Is)
// to enable consistent error handling across different backends.
var (
	// ErrSagaInstanceNotFound indicates the requested saga instance does not exist.
	ErrSagaInstanceNotFound = errors.New("tram: saga instance not found")

	// ErrConcurrencyConflict is returned when an optimistic concurrency check fails.
	ErrConcurrencyConflict = errors.New("tram: concurrency conflict")

	// ErrNilInstance indicates a nil saga instance was passed.
	ErrNilInstance = errors.New("tram: nil saga instance")

	// ErrEmptySagaID is returned when an instance without an ID is updated.
	ErrEmptySagaID = errors.New("tram: saga ID is required")

	// ErrEmptySagaType is returned when an instance without a saga type is stored.
	ErrEmptySagaType = errors.New("tram: saga type is required")

	// ErrRepositoryClosed is returned when operations are attempted on a closed repository.
	ErrRepositoryClosed = errors.New("tram: repository is closed")

	// ErrOutboxMessageNotFound indicates the outbox message does not exist.
	ErrOutboxMessageNotFound = errors.New("tram: outbox message not found")

	// ErrEmptyMessageID is returned when a received message has no ID.
	ErrEmptyMessageID = errors.New("tram: message ID is required")
)

// IDGenerator produces unique string identifiers for messages and saga instances.
type IDGenerator interface {
	// GenerateID returns a new identifier, unique within the running process.
	GenerateID() string
}

// SerializedSagaData is the persisted form of a saga's data.
type SerializedSagaData struct {
	// Type is the logical type name of the saga data.
	Type string `json:"type"`

	// Data is the serialized payload.
	Data []byte `json:"data"`
}

// SagaInstance is the persisted record of one running (or finished) saga.
type SagaInstance struct {
	// ID is the unique saga instance identifier, assigned on first save.
	ID string `json:"id"`

	// SagaType is the type of saga this instance belongs to.
	SagaType string `json:"sagaType"`

	// StateName is the encoded execution state of the saga.
	StateName string `json:"stateName"`

	// LastRequestID is the message ID of the last command sent by the saga.
	LastRequestID string `json:"lastRequestId,omitempty"`

	// SerializedData holds the saga's data.
	SerializedData SerializedSagaData `json:"serializedData"`

	// EndState is true once the saga has finished, successfully or not.
	EndState bool `json:"endState"`

	// Compensating is true while the saga is rolling back.
	Compensating bool `json:"compensating"`

	// Failed is true when a compensation failed and the saga could not roll back.
	Failed bool `json:"failed"`

	// CreatedAt is when the instance was first saved.
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt is when the instance was last written.
	UpdatedAt time.Time `json:"updatedAt"`

	// Version for optimistic concurrency control.
	Version int64 `json:"version"`
}

// SagaInstanceRepository persists saga instances.
type SagaInstanceRepository interface {
	// Save stores a new instance. When instance.ID is empty a fresh ID is
	// generated and written back to the instance.
	Save(ctx context.Context, instance *SagaInstance) error

	// Find loads the instance identified by (sagaType, sagaID).
	// Returns ErrSagaInstanceNotFound if it does not exist.
	Find(ctx context.Context, sagaType, sagaID string) (*SagaInstance, error)

	// Update replaces a previously saved instance.
	Update(ctx context.Context, instance *SagaInstance) error
}

// HealthChecker provides health check capabilities.
type HealthChecker interface {
	// Ping checks if the repository can reach its backend.
	Ping(ctx context.Context) error
}

// SchemaProvider exposes the DDL a repository needs.
type SchemaProvider interface {
	// SchemaSQL returns the statements that create the repository's tables.
	SchemaSQL() string
}

// SagaInstanceNotFoundError provides detailed information about a missing saga instance.
type SagaInstanceNotFoundError struct {
	SagaType string
	SagaID   string
}

// Error returns the error message.
func (e *SagaInstanceNotFoundError) Error() string {
	return "tram: saga instance not found: " + e.SagaType + "/" + e.SagaID
}

// Is reports whether this error matches the target error.
func (e *SagaInstanceNotFoundError) Is(target error) bool {
	return target == ErrSagaInstanceNotFound
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *SagaInstanceNotFoundError) Unwrap() error {
	return ErrSagaInstanceNotFound
}

// ReceivedMessageStore remembers which messages a subscriber has handled.
// Participants use it to drop redelivered commands.
type ReceivedMessageStore interface {
	// MarkReceived records (subscriberID, messageID) and reports whether the
	// pair was new. A false result means the message was seen before.
	MarkReceived(ctx context.Context, subscriberID, messageID string) (bool, error)

	// Forget removes a record so the message can be handled again.
	Forget(ctx context.Context, subscriberID, messageID string) error

	// Cleanup removes records older than olderThan.
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// OutboxStatus is the delivery state of an outbox message.
type OutboxStatus int

const (
	// OutboxPending messages wait for the relay.
	OutboxPending OutboxStatus = iota
	// OutboxProcessing messages were claimed by a relay.
	OutboxProcessing
	// OutboxCompleted messages were handed to the transport.
	OutboxCompleted
	// OutboxFailed messages failed their last attempt and may be retried.
	OutboxFailed
	// OutboxDeadLetter messages exhausted their attempts.
	OutboxDeadLetter
)

// String returns the lower-case status name stored by SQL backends.
func (s OutboxStatus) String() string {
	switch s {
	case OutboxPending:
		return "pending"
	case OutboxProcessing:
		return "processing"
	case OutboxCompleted:
		return "completed"
	case OutboxFailed:
		return "failed"
	case OutboxDeadLetter:
		return "dead_letter"
	default:
		return "unknown"
	}
}

// ParseOutboxStatus is the inverse of OutboxStatus.String.
func ParseOutboxStatus(s string) (OutboxStatus, bool) {
	for st := OutboxPending; st <= OutboxDeadLetter; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}

// OutboxMessage is a message waiting in the outbox for delivery.
type OutboxMessage struct {
	ID          string
	Destination string
	Headers     map[string]string
	Payload     []byte

	Status      OutboxStatus
	Attempts    int
	MaxAttempts int
	LastError   string

	ScheduledAt   time.Time
	CreatedAt     time.Time
	LastAttemptAt *time.Time
	ProcessedAt   *time.Time
}

// OutboxStore holds outgoing messages until a relay hands them to a transport.
type OutboxStore interface {
	// Schedule stores messages as pending. Empty IDs are generated and written back.
	Schedule(ctx context.Context, messages []*OutboxMessage) error

	// FetchPending claims up to limit due pending messages, oldest first,
	// moving them to OutboxProcessing and counting the attempt.
	FetchPending(ctx context.Context, limit int) ([]*OutboxMessage, error)

	// MarkCompleted marks messages as delivered.
	MarkCompleted(ctx context.Context, ids []string) error

	// MarkFailed records a failed attempt.
	MarkFailed(ctx context.Context, id string, lastErr error) error

	// RetryFailed returns failed messages below maxAttempts to pending.
	RetryFailed(ctx context.Context, maxAttempts int) (int64, error)

	// MoveToDeadLetter parks failed messages that reached maxAttempts.
	MoveToDeadLetter(ctx context.Context, maxAttempts int) (int64, error)

	// Cleanup removes completed messages processed more than olderThan ago.
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}
