package tram

import (
	"errors"
	"fmt"

	"github.com/AshkanYarmoradi/go-tram/adapters"
)

// Sentinel errors for common error conditions.
// Use errors.Is() to check for these errors.
// Repository errors are aliases to the adapters package errors.
var (
	// ErrSagaInstanceNotFound indicates the requested saga instance does not exist.
	ErrSagaInstanceNotFound = adapters.ErrSagaInstanceNotFound

	// ErrConcurrencyConflict indicates an optimistic concurrency violation.
	ErrConcurrencyConflict = adapters.ErrConcurrencyConflict

	// ErrNilInstance indicates a nil saga instance was passed.
	ErrNilInstance = adapters.ErrNilInstance

	// ErrMissingHeader indicates a required message header is absent.
	ErrMissingHeader = errors.New("tram: missing header")

	// ErrSerializationFailed indicates payload serialization/deserialization failed.
	ErrSerializationFailed = errors.New("tram: serialization failed")

	// ErrNilCommand indicates a nil command was passed.
	ErrNilCommand = errors.New("tram: nil command")

	// ErrValidationFailed indicates command validation failed.
	ErrValidationFailed = errors.New("tram: validation failed")

	// Saga related errors

	// ErrEmptySagaDefinition indicates a saga definition was built without steps.
	ErrEmptySagaDefinition = errors.New("tram: saga definition has no steps")

	// ErrUnexpectedReply indicates a reply that does not answer the saga's last command.
	ErrUnexpectedReply = errors.New("tram: unexpected reply")

	// ErrCompensationFailed indicates a compensating command was answered with a failure.
	ErrCompensationFailed = errors.New("tram: compensation failed")

	// ErrSagaEnded indicates a reply arrived for a saga that already finished.
	ErrSagaEnded = errors.New("tram: saga already ended")

	// ErrNoProducer indicates a saga manager was used without a message producer.
	ErrNoProducer = errors.New("tram: message producer is required")

	// ErrNoRepository indicates a saga manager was used without a repository.
	ErrNoRepository = errors.New("tram: saga instance repository is required")

	// ErrHandlerNotFound indicates no handler is registered for a command type.
	ErrHandlerNotFound = errors.New("tram: handler not found")
)

// ConcurrencyError is the repository concurrency error.
type ConcurrencyError = adapters.ConcurrencyError

// SagaInstanceNotFoundError is the repository not-found error.
type SagaInstanceNotFoundError = adapters.SagaInstanceNotFoundError

// MissingHeaderError provides detailed information about an absent header.
type MissingHeaderError struct {
	Header    string
	MessageID string
}

// Error returns the error message.
func (e *MissingHeaderError) Error() string {
	if e.MessageID == "" {
		return fmt.Sprintf("tram: missing header %q", e.Header)
	}
	return fmt.Sprintf("tram: missing header %q in message %s", e.Header, e.MessageID)
}

// Is reports whether this error matches the target error.
func (e *MissingHeaderError) Is(target error) bool {
	return target == ErrMissingHeader
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *MissingHeaderError) Unwrap() error {
	return ErrMissingHeader
}

// NewMissingHeaderError creates a new MissingHeaderError.
func NewMissingHeaderError(header, messageID string) *MissingHeaderError {
	return &MissingHeaderError{Header: header, MessageID: messageID}
}

// SerializationError provides detailed information about a serialization failure.
type SerializationError struct {
	TypeName  string
	Operation string // "serialize" or "deserialize"
	Cause     error
}

// Error returns the error message.
func (e *SerializationError) Error() string {
	return fmt.Sprintf("tram: failed to %s type %q: %v",
		e.Operation, e.TypeName, e.Cause)
}

// Is reports whether this error matches the target error.
func (e *SerializationError) Is(target error) bool {
	return target == ErrSerializationFailed
}

// Unwrap returns the underlying cause.
func (e *SerializationError) Unwrap() error {
	return e.Cause
}

// NewSerializationError creates a new SerializationError.
func NewSerializationError(typeName, operation string, cause error) *SerializationError {
	return &SerializationError{
		TypeName:  typeName,
		Operation: operation,
		Cause:     cause,
	}
}

// ValidationError provides detailed information about a command validation failure.
type ValidationError struct {
	CommandType string
	Cause       error
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("tram: validation failed for %s: %v", e.CommandType, e.Cause)
}

// Is reports whether this error matches the target error.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// Unwrap returns the underlying cause.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// SagaFailedError describes a saga that could not make progress.
type SagaFailedError struct {
	SagaType string
	SagaID   string
	Step     int
	Cause    error
}

// Error returns the error message.
func (e *SagaFailedError) Error() string {
	return fmt.Sprintf("tram: saga %s/%s failed at step %d: %v", e.SagaType, e.SagaID, e.Step, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *SagaFailedError) Unwrap() error {
	return e.Cause
}

// HandlerNotFoundError names the command type nobody handles.
type HandlerNotFoundError struct {
	CommandType string
}

// Error returns the error message.
func (e *HandlerNotFoundError) Error() string {
	return fmt.Sprintf("tram: no handler registered for command %q", e.CommandType)
}

// Is reports whether this error matches the target error.
func (e *HandlerNotFoundError) Is(target error) bool {
	return target == ErrHandlerNotFound
}
