package tram

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// CommandMessage is a command received by a participant.
type CommandMessage struct {
	Message *Message

	serializer Serializer
}

// NewCommandMessage wraps msg. A nil serializer defaults to JSON.
func NewCommandMessage(msg *Message, serializer Serializer) *CommandMessage {
	if serializer == nil {
		serializer = NewJSONSerializer()
	}
	return &CommandMessage{Message: msg, serializer: serializer}
}

// Type returns the command_type header.
func (c *CommandMessage) Type() string {
	return c.Message.Header(HeaderCommandType)
}

// Resource returns the command_resource header.
func (c *CommandMessage) Resource() string {
	return c.Message.Header(HeaderCommandResource)
}

// ReplyTo returns the channel the reply must be sent to.
func (c *CommandMessage) ReplyTo() string {
	return c.Message.Header(HeaderCommandReplyTo)
}

// Decode deserializes the command payload into target.
func (c *CommandMessage) Decode(target interface{}) error {
	return c.serializer.DeserializeInto(c.Message.Payload, target)
}

// Reply is a participant's answer to a command.
type Reply struct {
	Outcome ReplyOutcome
	Payload interface{}
}

// SuccessWith returns a SUCCESS reply carrying payload.
func SuccessWith(payload interface{}) Reply {
	return Reply{Outcome: ReplyOutcomeSuccess, Payload: payload}
}

// FailureWith returns a FAILURE reply carrying payload.
func FailureWith(payload interface{}) Reply {
	return Reply{Outcome: ReplyOutcomeFailure, Payload: payload}
}

// CommandHandler handles one command type on the participant side.
// A returned error means no reply is sent and the command may be redelivered;
// business failures are FAILURE replies, not errors.
type CommandHandler interface {
	CommandType() string
	Handle(ctx context.Context, cmd *CommandMessage) (Reply, error)
}

// CommandHandlerFunc adapts a function to CommandHandler.
type CommandHandlerFunc struct {
	cmdType string
	fn      func(ctx context.Context, cmd *CommandMessage) (Reply, error)
}

// NewCommandHandlerFunc creates a CommandHandlerFunc.
func NewCommandHandlerFunc(cmdType string, fn func(ctx context.Context, cmd *CommandMessage) (Reply, error)) *CommandHandlerFunc {
	return &CommandHandlerFunc{
		cmdType: cmdType,
		fn:      fn,
	}
}

// CommandType returns the command type this handler processes.
func (h *CommandHandlerFunc) CommandType() string {
	return h.cmdType
}

// Handle processes the command.
func (h *CommandHandlerFunc) Handle(ctx context.Context, cmd *CommandMessage) (Reply, error) {
	return h.fn(ctx, cmd)
}

// GenericHandler decodes the payload into C before calling its function.
type GenericHandler[C any] struct {
	handler func(ctx context.Context, cmd C) (Reply, error)
	cmdType string
}

// NewGenericHandler creates a handler for the command type named by TypeName of C.
func NewGenericHandler[C any](handler func(ctx context.Context, cmd C) (Reply, error)) *GenericHandler[C] {
	var zero C
	return &GenericHandler[C]{
		handler: handler,
		cmdType: TypeName(zero),
	}
}

// CommandType returns the command type this handler processes.
func (h *GenericHandler[C]) CommandType() string {
	return h.cmdType
}

// Handle decodes the command and calls the typed function.
func (h *GenericHandler[C]) Handle(ctx context.Context, cmd *CommandMessage) (Reply, error) {
	var typed C
	if err := cmd.Decode(&typed); err != nil {
		return Reply{}, err
	}
	return h.handler(ctx, typed)
}

// HandlerRegistry manages command handler registration and lookup.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]CommandHandler
}

// NewHandlerRegistry creates a new HandlerRegistry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string]CommandHandler),
	}
}

// Register adds a handler, replacing any handler for the same type.
func (r *HandlerRegistry) Register(handler CommandHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[handler.CommandType()] = handler
}

// RegisterFunc registers a handler function for a command type.
func (r *HandlerRegistry) RegisterFunc(cmdType string, fn func(ctx context.Context, cmd *CommandMessage) (Reply, error)) {
	r.Register(NewCommandHandlerFunc(cmdType, fn))
}

// Get returns the handler for a command type, or nil.
func (r *HandlerRegistry) Get(cmdType string) CommandHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[cmdType]
}

// Has returns true if a handler is registered for the command type.
func (r *HandlerRegistry) Has(cmdType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[cmdType]
	return ok
}

// CommandTypes returns the registered command types, sorted.
func (r *HandlerRegistry) CommandTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// RegisterGenericHandler registers a typed handler for C.
func RegisterGenericHandler[C any](registry *HandlerRegistry, handler func(ctx context.Context, cmd C) (Reply, error)) {
	registry.Register(NewGenericHandler(handler))
}

// Ensure interface compliance at compile time
var _ MessageHandler = (*CommandDispatcher)(nil)

// CommandDispatcher is the participant's MessageHandler: it routes each command
// to its handler and sends the reply to the command's reply-to channel.
type CommandDispatcher struct {
	registry   *HandlerRegistry
	producer   MessageProducer
	serializer Serializer
	logger     Logger

	received     ReceivedMessageStore
	subscriberID string
	handle       MessageHandler
}

// DispatcherOption configures a CommandDispatcher.
type DispatcherOption func(*CommandDispatcher)

// WithDispatcherSerializer sets the serializer for commands and replies.
func WithDispatcherSerializer(serializer Serializer) DispatcherOption {
	return func(d *CommandDispatcher) {
		d.serializer = serializer
	}
}

// WithDispatcherLogger sets the dispatcher logger.
func WithDispatcherLogger(logger Logger) DispatcherOption {
	return func(d *CommandDispatcher) {
		d.logger = logger
	}
}

// NewCommandDispatcher creates a dispatcher sending replies through producer.
func NewCommandDispatcher(registry *HandlerRegistry, producer MessageProducer, opts ...DispatcherOption) *CommandDispatcher {
	d := &CommandDispatcher{
		registry:   registry,
		producer:   producer,
		serializer: NewJSONSerializer(),
		logger:     NopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.handle = MessageHandlerFunc(d.dispatch)
	if d.received != nil {
		d.handle = NewDuplicateDetectingHandler(d.handle, d.received, d.subscriberID, d.logger)
	}
	return d
}

// HandleMessage dispatches a command message and sends its reply.
func (d *CommandDispatcher) HandleMessage(ctx context.Context, msg *Message) error {
	return d.handle.HandleMessage(ctx, msg)
}

func (d *CommandDispatcher) dispatch(ctx context.Context, msg *Message) error {
	cmdType, err := msg.RequiredHeader(HeaderCommandType)
	if err != nil {
		return err
	}
	replyTo, err := msg.RequiredHeader(HeaderCommandReplyTo)
	if err != nil {
		return err
	}

	handler := d.registry.Get(cmdType)
	if handler == nil {
		return &HandlerNotFoundError{CommandType: cmdType}
	}

	reply, err := handler.Handle(ctx, NewCommandMessage(msg, d.serializer))
	if err != nil {
		d.logger.Error("Command handler failed", "commandType", cmdType, "messageID", msg.ID(), "error", err)
		return fmt.Errorf("tram: handling %s: %w", cmdType, err)
	}
	if reply.Outcome == "" {
		reply.Outcome = ReplyOutcomeSuccess
	}

	replyMsg, err := NewReplyMessage(msg, reply.Outcome, reply.Payload, d.serializer)
	if err != nil {
		return err
	}
	if err := d.producer.Send(ctx, replyTo, replyMsg); err != nil {
		return fmt.Errorf("tram: failed to send reply to %s: %w", replyTo, err)
	}

	d.logger.Debug("Command handled", "commandType", cmdType, "outcome", reply.Outcome, "replyTo", replyTo)
	return nil
}
