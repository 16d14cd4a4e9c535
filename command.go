package tram

import (
	"reflect"
)

// Command is implemented by command payloads that name themselves.
// Any struct can be sent as a command; types that do not implement Command
// are named after their Go struct name (see TypeName).
type Command interface {
	// CommandType returns the type identifier for this command (e.g., "CreateOrder").
	CommandType() string
}

// NamedReply is implemented by reply payloads that name themselves.
type NamedReply interface {
	// ReplyType returns the type identifier for this reply (e.g., "OrderApproved").
	ReplyType() string
}

// Validator is implemented by commands that check themselves before being sent.
type Validator interface {
	Validate() error
}

// ReplyOutcome is the outcome a participant reports for a command.
type ReplyOutcome string

// Reply outcomes.
const (
	ReplyOutcomeSuccess ReplyOutcome = "SUCCESS"
	ReplyOutcomeFailure ReplyOutcome = "FAILURE"
)

// String returns the wire form of the outcome.
func (o ReplyOutcome) String() string {
	return string(o)
}

// Success is the generic payload of a successful reply.
type Success struct{}

// Failure is the generic payload of a failed reply.
type Failure struct{}

// TypeName returns the logical type name of a command or reply payload.
// It prefers CommandType or ReplyType and falls back to the struct name.
// Pointers are dereferenced. Returns empty string for nil.
func TypeName(v interface{}) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case Command:
		return t.CommandType()
	case NamedReply:
		return t.ReplyType()
	}

	rt := reflect.TypeOf(v)
	for rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	return rt.Name()
}

// validate runs Validator when the command implements it.
func validate(cmd interface{}) error {
	if cmd == nil {
		return ErrNilCommand
	}
	if v, ok := cmd.(Validator); ok {
		if err := v.Validate(); err != nil {
			return &ValidationError{CommandType: TypeName(cmd), Cause: err}
		}
	}
	return nil
}
