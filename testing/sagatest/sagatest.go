// Package sagatest drives a single saga through its command/reply exchange
// without a broker or a database.
//
// The harness wires a tram.SagaManager to a SingleSlotRepository and a
// CaptureSink. Outbound commands are captured, asserted, and answered with
// synthesized replies that are fed straight back into the manager:
//
//	sagatest.Given[OrderData](t).
//		Saga(CreateOrderSaga(), OrderData{OrderID: "42"}).
//		Expect().Command(CreateOrder{}).To("order-channel").
//		AndGiven().SuccessReply().
//		Expect().Command(ShipOrder{}).To("shipping-channel")
package sagatest

import (
	"context"
	"testing"

	"github.com/AshkanYarmoradi/go-tram"
)

// TB is an alias for testing.TB to enable easier mocking in tests.
type TB = testing.TB

type config struct {
	ctx        context.Context
	ids        tram.IDGenerator
	serializer tram.Serializer
	logger     tram.Logger
}

// Option configures a SagaTest.
type Option func(*config)

// WithIDGenerator sets the generator used for saga IDs and message IDs.
func WithIDGenerator(ids tram.IDGenerator) Option {
	return func(c *config) {
		c.ids = ids
	}
}

// WithSerializer sets the serializer for saga data and reply payloads.
func WithSerializer(serializer tram.Serializer) Option {
	return func(c *config) {
		c.serializer = serializer
	}
}

// WithContext sets the context passed to the saga manager.
func WithContext(ctx context.Context) Option {
	return func(c *config) {
		c.ctx = ctx
	}
}

// WithLogger sets the logger handed to the saga manager.
func WithLogger(logger tram.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// SagaTest is a fluent harness for one saga instance.
type SagaTest[D any] struct {
	t          TB
	ctx        context.Context
	ids        tram.IDGenerator
	serializer tram.Serializer
	logger     tram.Logger
	repo       *SingleSlotRepository
	sink       *CaptureSink
	manager    *tram.SagaManager[D]
	sagaID     string

	expected    interface{}
	hasExpected bool
	sentCommand *CapturedMessage
}

// Given creates a harness for sagas carrying data of type D.
func Given[D any](t TB, opts ...Option) *SagaTest[D] {
	t.Helper()

	cfg := &config{
		ctx:        context.Background(),
		ids:        tram.NewUUIDGenerator(),
		serializer: tram.NewJSONSerializer(),
		logger:     tram.NopLogger(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &SagaTest[D]{
		t:          t,
		ctx:        cfg.ctx,
		ids:        cfg.ids,
		serializer: cfg.serializer,
		logger:     cfg.logger,
		repo:       NewSingleSlotRepository(cfg.ids),
		sink:       NewCaptureSink(cfg.ids),
	}
}

// Saga starts definition with data. Any error starting the saga is fatal.
func (s *SagaTest[D]) Saga(definition *tram.SagaDefinition[D], data D) *SagaTest[D] {
	s.t.Helper()

	manager, err := tram.NewSagaManager(definition,
		tram.WithSagaRepository(s.repo),
		tram.WithSagaProducer(s.sink),
		tram.WithSagaSerializer(s.serializer),
		tram.WithSagaLogger(s.logger),
	)
	if err != nil {
		s.t.Fatalf("Failed to create saga manager: %v", err)
	}
	s.manager = manager

	instance, err := manager.Create(s.ctx, &data)
	if err != nil {
		s.t.Fatalf("Failed to start saga %s: %v", definition.SagaType(), err)
	}
	s.sagaID = instance.ID
	return s
}

// Expect returns the receiver.
func (s *SagaTest[D]) Expect() *SagaTest[D] {
	return s
}

// AndGiven returns the receiver.
func (s *SagaTest[D]) AndGiven() *SagaTest[D] {
	return s
}

// Command records the command expected to be sent next. It is checked by To.
func (s *SagaTest[D]) Command(expected interface{}) *SagaTest[D] {
	s.expected = expected
	s.hasExpected = true
	return s
}

// To asserts that exactly one command was sent, to channel, with the type
// recorded by Command. The command becomes the target of the next reply and
// the sink is cleared.
func (s *SagaTest[D]) To(channel string) *SagaTest[D] {
	s.t.Helper()

	if !s.hasExpected {
		s.t.Fatalf("To(%q) called without a preceding Command()", channel)
	}

	messages := s.sink.Messages()
	if len(messages) != 1 {
		s.t.Fatalf("Expected exactly 1 command to be sent, got %d: %v", len(messages), describe(messages))
	}
	sent := messages[0]

	if sent.Destination != channel {
		s.t.Fatalf("Expected command to be sent to %q, got %q", channel, sent.Destination)
	}

	expectedType := tram.TypeName(s.expected)
	if actualType := sent.Message.Header(tram.HeaderCommandType); actualType != expectedType {
		s.t.Fatalf("Expected command of type %q, got %q", expectedType, actualType)
	}

	s.sentCommand = &sent
	s.expected = nil
	s.hasExpected = false
	s.sink.Clear()
	return s
}

// ExpectNoCommand asserts that nothing was sent since the last To.
func (s *SagaTest[D]) ExpectNoCommand() *SagaTest[D] {
	s.t.Helper()

	if messages := s.sink.Messages(); len(messages) > 0 {
		s.t.Errorf("Expected no commands, got %d: %v", len(messages), describe(messages))
	}
	return s
}

// SuccessReply answers the last asserted command with a Success reply.
func (s *SagaTest[D]) SuccessReply() *SagaTest[D] {
	s.t.Helper()
	return s.reply(tram.ReplyOutcomeSuccess, tram.Success{})
}

// SuccessReplyWith answers the last asserted command with a successful payload.
func (s *SagaTest[D]) SuccessReplyWith(payload interface{}) *SagaTest[D] {
	s.t.Helper()
	return s.reply(tram.ReplyOutcomeSuccess, payload)
}

// FailureReply answers the last asserted command with a Failure reply.
func (s *SagaTest[D]) FailureReply() *SagaTest[D] {
	s.t.Helper()
	return s.reply(tram.ReplyOutcomeFailure, tram.Failure{})
}

// FailureReplyWith answers the last asserted command with a failed payload.
func (s *SagaTest[D]) FailureReplyWith(payload interface{}) *SagaTest[D] {
	s.t.Helper()
	return s.reply(tram.ReplyOutcomeFailure, payload)
}

func (s *SagaTest[D]) reply(outcome tram.ReplyOutcome, payload interface{}) *SagaTest[D] {
	s.t.Helper()

	if s.manager == nil {
		s.t.Fatalf("Cannot send %s reply: no saga started", outcome)
	}
	if s.sentCommand == nil {
		s.t.Fatalf("Cannot send %s reply: no command has been asserted with To()", outcome)
	}

	msg, err := tram.NewReplyMessage(s.sentCommand.Message, outcome, payload, s.serializer)
	if err != nil {
		s.t.Fatalf("Failed to build %s reply: %v", outcome, err)
	}
	msg.SetHeader(tram.HeaderID, s.ids.GenerateID())

	if err := s.manager.HandleMessage(s.ctx, msg); err != nil {
		s.t.Fatalf("Saga failed to handle %s reply to %s: %v", outcome, s.sentCommand.Message, err)
	}
	return s
}

// ExpectCompletedSuccessfully asserts that the saga ended without compensating.
func (s *SagaTest[D]) ExpectCompletedSuccessfully() *SagaTest[D] {
	s.t.Helper()

	instance := s.requireInstance()
	if !instance.EndState || instance.Compensating {
		s.t.Errorf("Expected saga to complete successfully, got endState=%v compensating=%v",
			instance.EndState, instance.Compensating)
	}
	return s
}

// ExpectRolledBack asserts that the saga ended after compensating and that
// every compensation succeeded.
func (s *SagaTest[D]) ExpectRolledBack() *SagaTest[D] {
	s.t.Helper()

	instance := s.requireInstance()
	if !instance.EndState || !instance.Compensating || instance.Failed {
		s.t.Errorf("Expected saga to be rolled back, got endState=%v compensating=%v failed=%v",
			instance.EndState, instance.Compensating, instance.Failed)
	}
	return s
}

// ExpectSagaData hands the current saga data to check.
func (s *SagaTest[D]) ExpectSagaData(check func(t TB, data D)) *SagaTest[D] {
	s.t.Helper()

	s.requireInstance()
	found, err := tram.FindWithData[D](s.ctx, s.repo, s.serializer, s.manager.SagaType(), s.sagaID)
	if err != nil {
		s.t.Fatalf("Failed to load saga data: %v", err)
	}
	check(s.t, *found.Data)
	return s
}

// Instance returns a copy of the stored saga instance.
func (s *SagaTest[D]) Instance() *tram.SagaInstance {
	return s.repo.Instance()
}

// Sink returns the capture sink.
func (s *SagaTest[D]) Sink() *CaptureSink {
	return s.sink
}

// Repository returns the single-slot repository.
func (s *SagaTest[D]) Repository() *SingleSlotRepository {
	return s.repo
}

// LastCommand returns the command most recently asserted with To, or nil.
func (s *SagaTest[D]) LastCommand() *tram.Message {
	if s.sentCommand == nil {
		return nil
	}
	return s.sentCommand.Message.Copy()
}

func (s *SagaTest[D]) requireInstance() *tram.SagaInstance {
	s.t.Helper()

	instance := s.repo.Instance()
	if instance == nil {
		s.t.Fatalf("No saga instance: call Saga() first")
	}
	return instance
}

func describe(messages []CapturedMessage) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.Destination + ":" + m.Message.Header(tram.HeaderCommandType)
	}
	return out
}
