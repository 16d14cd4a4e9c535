package tram

import (
	"context"
	"fmt"
)

// CommandWithDestination is a command a saga step sends to a participant.
type CommandWithDestination struct {
	// Channel is the logical channel the participant listens on.
	Channel string

	// Resource optionally names the resource the command acts on (e.g. "/orders/42").
	Resource string

	// Command is the payload. Its TypeName becomes the command_type header.
	Command interface{}

	// ExtraHeaders are copied onto the command message.
	ExtraHeaders map[string]string
}

// CommandTo builds a CommandWithDestination for channel.
func CommandTo(channel string, cmd interface{}) CommandWithDestination {
	return CommandWithDestination{Channel: channel, Command: cmd}
}

// WithResource returns a copy with Resource set.
func (c CommandWithDestination) WithResource(resource string) CommandWithDestination {
	c.Resource = resource
	return c
}

// WithHeader returns a copy with an extra header set.
func (c CommandWithDestination) WithHeader(name, value string) CommandWithDestination {
	headers := make(map[string]string, len(c.ExtraHeaders)+1)
	for k, v := range c.ExtraHeaders {
		headers[k] = v
	}
	headers[name] = value
	c.ExtraHeaders = headers
	return c
}

// SagaReply is a reply message as seen by saga reply handlers.
type SagaReply struct {
	Message *Message

	serializer Serializer
}

// NewSagaReply wraps msg. A nil serializer defaults to JSON.
func NewSagaReply(msg *Message, serializer Serializer) *SagaReply {
	if serializer == nil {
		serializer = NewJSONSerializer()
	}
	return &SagaReply{Message: msg, serializer: serializer}
}

// Type returns the reply_type header.
func (r *SagaReply) Type() string {
	return r.Message.Header(HeaderReplyType)
}

// Outcome returns the reply outcome.
func (r *SagaReply) Outcome() ReplyOutcome {
	return ReplyOutcome(r.Message.Header(HeaderReplyOutcome))
}

// IsSuccess reports whether the participant succeeded.
func (r *SagaReply) IsSuccess() bool {
	return r.Outcome() == ReplyOutcomeSuccess
}

// Decode deserializes the reply payload into target.
func (r *SagaReply) Decode(target interface{}) error {
	return r.serializer.DeserializeInto(r.Message.Payload, target)
}

// ReplyHandler updates saga data from a participant reply.
type ReplyHandler[D any] func(ctx context.Context, data *D, reply *SagaReply) error

// HandleReply adapts a handler that takes a decoded reply payload of type R.
func HandleReply[D, R any](fn func(ctx context.Context, data *D, reply R) error) ReplyHandler[D] {
	return func(ctx context.Context, data *D, reply *SagaReply) error {
		var payload R
		if err := reply.Decode(&payload); err != nil {
			return err
		}
		return fn(ctx, data, payload)
	}
}

// sagaStep is one step of a saga definition. A step either runs a local
// action or sends a command to a participant, and may be compensated either way.
type sagaStep[D any] struct {
	local func(ctx context.Context, data *D) error

	participant   func(data *D) CommandWithDestination
	participantIf func(data *D) bool

	compensation      func(data *D) CommandWithDestination
	compensationIf    func(data *D) bool
	localCompensation func(ctx context.Context, data *D) error

	replyHandlers map[string]ReplyHandler[D]
}

func (s *sagaStep[D]) hasAction() bool {
	return s.local != nil || s.participant != nil
}

// SagaDefinitionBuilder assembles a SagaDefinition step by step.
//
//	def, err := tram.NewSagaDefinition[OrderData]("CreateOrderSaga").
//	    Step().
//	        InvokeParticipant(reserveCredit).
//	        WithCompensation(releaseCredit).
//	    Step().
//	        InvokeLocal(approveOrder).
//	    Build()
type SagaDefinitionBuilder[D any] struct {
	sagaType string
	steps    []*sagaStep[D]
	err      error
}

// NewSagaDefinition starts a definition for the named saga type.
func NewSagaDefinition[D any](sagaType string) *SagaDefinitionBuilder[D] {
	return &SagaDefinitionBuilder[D]{sagaType: sagaType}
}

// Step starts a new step.
func (b *SagaDefinitionBuilder[D]) Step() *SagaDefinitionBuilder[D] {
	b.steps = append(b.steps, &sagaStep[D]{replyHandlers: make(map[string]ReplyHandler[D])})
	return b
}

func (b *SagaDefinitionBuilder[D]) current() *sagaStep[D] {
	if len(b.steps) == 0 {
		b.Step()
	}
	return b.steps[len(b.steps)-1]
}

func (b *SagaDefinitionBuilder[D]) setAction(step *sagaStep[D]) bool {
	if step.hasAction() {
		if b.err == nil {
			b.err = fmt.Errorf("tram: saga %s step %d already has an action", b.sagaType, len(b.steps)-1)
		}
		return false
	}
	return true
}

// InvokeLocal makes the current step run fn in-process.
func (b *SagaDefinitionBuilder[D]) InvokeLocal(fn func(ctx context.Context, data *D) error) *SagaDefinitionBuilder[D] {
	step := b.current()
	if b.setAction(step) {
		step.local = fn
	}
	return b
}

// InvokeParticipant makes the current step send the command fn returns.
func (b *SagaDefinitionBuilder[D]) InvokeParticipant(fn func(data *D) CommandWithDestination) *SagaDefinitionBuilder[D] {
	return b.InvokeParticipantIf(nil, fn)
}

// InvokeParticipantIf is InvokeParticipant, skipped when pred returns false.
func (b *SagaDefinitionBuilder[D]) InvokeParticipantIf(pred func(data *D) bool, fn func(data *D) CommandWithDestination) *SagaDefinitionBuilder[D] {
	step := b.current()
	if b.setAction(step) {
		step.participant = fn
		step.participantIf = pred
	}
	return b
}

// WithCompensation makes the current step send the command fn returns when rolling back.
func (b *SagaDefinitionBuilder[D]) WithCompensation(fn func(data *D) CommandWithDestination) *SagaDefinitionBuilder[D] {
	return b.WithCompensationIf(nil, fn)
}

// WithCompensationIf is WithCompensation, skipped when pred returns false.
func (b *SagaDefinitionBuilder[D]) WithCompensationIf(pred func(data *D) bool, fn func(data *D) CommandWithDestination) *SagaDefinitionBuilder[D] {
	step := b.current()
	step.compensation = fn
	step.compensationIf = pred
	return b
}

// WithLocalCompensation makes the current step run fn in-process when rolling back.
func (b *SagaDefinitionBuilder[D]) WithLocalCompensation(fn func(ctx context.Context, data *D) error) *SagaDefinitionBuilder[D] {
	b.current().localCompensation = fn
	return b
}

// OnReply registers a handler for replies of replyType to the current step's command.
func (b *SagaDefinitionBuilder[D]) OnReply(replyType string, handler ReplyHandler[D]) *SagaDefinitionBuilder[D] {
	b.current().replyHandlers[replyType] = handler
	return b
}

// Build validates and returns the definition.
func (b *SagaDefinitionBuilder[D]) Build() (*SagaDefinition[D], error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.sagaType == "" {
		return nil, fmt.Errorf("tram: saga type is required")
	}
	if len(b.steps) == 0 {
		return nil, ErrEmptySagaDefinition
	}
	for i, step := range b.steps {
		if !step.hasAction() && step.compensation == nil && step.localCompensation == nil {
			return nil, fmt.Errorf("tram: saga %s step %d has no action", b.sagaType, i)
		}
	}
	steps := make([]*sagaStep[D], len(b.steps))
	copy(steps, b.steps)
	return &SagaDefinition[D]{sagaType: b.sagaType, steps: steps}, nil
}

// MustBuild is Build that panics on error. Intended for package-level definitions.
func (b *SagaDefinitionBuilder[D]) MustBuild() *SagaDefinition[D] {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}

// SagaDefinition is an immutable, ordered list of saga steps.
type SagaDefinition[D any] struct {
	sagaType string
	steps    []*sagaStep[D]
}

// SagaType returns the saga type name.
func (d *SagaDefinition[D]) SagaType() string {
	return d.sagaType
}

// StepCount returns the number of steps.
func (d *SagaDefinition[D]) StepCount() int {
	return len(d.steps)
}
