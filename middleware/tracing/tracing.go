// Package tracing provides OpenTelemetry integration for go-tram.
//
// Producers, reply handlers and saga instance repositories can be wrapped so
// that every command sent, reply handled and instance persisted produces a span.
// The producer wrapper injects the W3C trace context into message headers and
// the handler wrapper extracts it, so a saga's spans join the participant's trace.
//
//	tp := sdktrace.NewTracerProvider(...)
//	otel.SetTracerProvider(tp)
//
//	tracer := tracing.NewTracer()
//	producer := tracing.NewProducerMiddleware(kafkaProducer, tracer)
//	manager, err := tram.NewSagaManager(def,
//		tram.WithSagaProducer(producer),
//		tram.WithSagaRepository(tracing.NewRepositoryMiddleware(repo, tracer)),
//		...)
//	router.Handle(manager.ReplyChannel(), tracing.NewHandlerMiddleware(manager, tracer))
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/AshkanYarmoradi/go-tram"
)

const (
	// TracerName is the name of the tram tracer.
	TracerName = "github.com/AshkanYarmoradi/go-tram"

	// DefaultServiceName is the default service name for spans.
	DefaultServiceName = "tram"
)

// Tracer wraps OpenTelemetry tracer for tram operations.
type Tracer struct {
	tracer      trace.Tracer
	propagator  propagation.TextMapPropagator
	serviceName string
}

// TracerOption configures a Tracer.
type TracerOption func(*Tracer)

// WithTracerProvider sets a custom TracerProvider.
func WithTracerProvider(tp trace.TracerProvider) TracerOption {
	return func(t *Tracer) {
		t.tracer = tp.Tracer(TracerName)
	}
}

// WithServiceName sets the service name for spans.
func WithServiceName(name string) TracerOption {
	return func(t *Tracer) {
		t.serviceName = name
	}
}

// WithPropagator sets the propagator used to carry trace context in message headers.
func WithPropagator(p propagation.TextMapPropagator) TracerOption {
	return func(t *Tracer) {
		t.propagator = p
	}
}

// NewTracer creates a new Tracer with the global TracerProvider and
// a W3C trace context propagator.
func NewTracer(opts ...TracerOption) *Tracer {
	t := &Tracer{
		tracer:      otel.Tracer(TracerName),
		propagator:  propagation.TraceContext{},
		serviceName: DefaultServiceName,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// Tracer returns the underlying OpenTelemetry tracer.
func (t *Tracer) Tracer() trace.Tracer {
	return t.tracer
}

// ServiceName returns the configured service name.
func (t *Tracer) ServiceName() string {
	return t.serviceName
}

// Inject writes the trace context of ctx into msg headers.
func (t *Tracer) Inject(ctx context.Context, msg *tram.Message) {
	if msg.Headers == nil {
		msg.Headers = make(map[string]string)
	}
	t.propagator.Inject(ctx, propagation.MapCarrier(msg.Headers))
}

// Extract returns ctx carrying the trace context found in msg headers.
func (t *Tracer) Extract(ctx context.Context, msg *tram.Message) context.Context {
	return t.propagator.Extract(ctx, propagation.MapCarrier(msg.Headers))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// =============================================================================
// Producer Middleware
// =============================================================================

// Ensure interface compliance at compile time
var _ tram.MessageProducer = (*ProducerMiddleware)(nil)

// ProducerMiddleware wraps a MessageProducer with tracing.
type ProducerMiddleware struct {
	producer tram.MessageProducer
	tracer   *Tracer
}

// NewProducerMiddleware wraps producer with tracing.
func NewProducerMiddleware(producer tram.MessageProducer, tracer *Tracer) *ProducerMiddleware {
	return &ProducerMiddleware{producer: producer, tracer: tracer}
}

// Send sends msg inside a producer span and propagates the span context in its headers.
func (m *ProducerMiddleware) Send(ctx context.Context, destination string, msg *tram.Message) error {
	ctx, span := m.tracer.StartSpan(ctx, "send "+destination,
		trace.WithSpanKind(trace.SpanKindProducer),
	)
	defer span.End()

	span.SetAttributes(
		attribute.String("tram.service", m.tracer.serviceName),
		attribute.String("messaging.destination.name", destination),
	)
	setMessageAttributes(span, msg, tram.HeaderCommandType, "tram.command.type")
	setMessageAttributes(span, msg, tram.HeaderSagaType, "tram.saga.type")
	setMessageAttributes(span, msg, tram.HeaderSagaID, "tram.saga.id")
	setMessageAttributes(span, msg, tram.HeaderReplyType, "tram.reply.type")

	m.tracer.Inject(ctx, msg)

	err := m.producer.Send(ctx, destination, msg)
	if err == nil {
		span.SetAttributes(attribute.String("messaging.message.id", msg.ID()))
	}
	finish(span, err)
	return err
}

// =============================================================================
// Handler Middleware
// =============================================================================

// Ensure interface compliance at compile time
var _ tram.MessageHandler = (*HandlerMiddleware)(nil)

// HandlerMiddleware wraps a MessageHandler with tracing.
type HandlerMiddleware struct {
	handler tram.MessageHandler
	tracer  *Tracer
}

// NewHandlerMiddleware wraps handler with tracing.
func NewHandlerMiddleware(handler tram.MessageHandler, tracer *Tracer) *HandlerMiddleware {
	return &HandlerMiddleware{handler: handler, tracer: tracer}
}

// HandleMessage handles msg inside a consumer span parented by the sender's trace context.
func (m *HandlerMiddleware) HandleMessage(ctx context.Context, msg *tram.Message) error {
	ctx = m.tracer.Extract(ctx, msg)

	name := "handle"
	if replyType := msg.Header(tram.HeaderReplyType); replyType != "" {
		name = "handle reply " + replyType
	} else if commandType := msg.Header(tram.HeaderCommandType); commandType != "" {
		name = "handle command " + commandType
	}

	ctx, span := m.tracer.StartSpan(ctx, name,
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	span.SetAttributes(
		attribute.String("tram.service", m.tracer.serviceName),
		attribute.String("messaging.message.id", msg.ID()),
	)
	setMessageAttributes(span, msg, tram.HeaderReplyOutcome, "tram.reply.outcome")
	setMessageAttributes(span, msg, tram.HeaderReplySagaType, "tram.saga.type")
	setMessageAttributes(span, msg, tram.HeaderReplySagaID, "tram.saga.id")

	err := m.handler.HandleMessage(ctx, msg)
	finish(span, err)
	return err
}

func setMessageAttributes(span trace.Span, msg *tram.Message, header, key string) {
	if v := msg.Header(header); v != "" {
		span.SetAttributes(attribute.String(key, v))
	}
}

// =============================================================================
// Repository Middleware
// =============================================================================

// Ensure interface compliance at compile time
var _ tram.SagaInstanceRepository = (*RepositoryMiddleware)(nil)

// RepositoryMiddleware wraps a SagaInstanceRepository with tracing.
type RepositoryMiddleware struct {
	repo   tram.SagaInstanceRepository
	tracer *Tracer
}

// NewRepositoryMiddleware wraps repo with tracing.
func NewRepositoryMiddleware(repo tram.SagaInstanceRepository, tracer *Tracer) *RepositoryMiddleware {
	return &RepositoryMiddleware{repo: repo, tracer: tracer}
}

func (m *RepositoryMiddleware) start(ctx context.Context, op, sagaType string) (context.Context, trace.Span) {
	ctx, span := m.tracer.StartSpan(ctx, "saga_instance."+op,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("tram.service", m.tracer.serviceName),
		attribute.String("tram.saga.type", sagaType),
	)
	return ctx, span
}

// Save persists a new instance with tracing.
func (m *RepositoryMiddleware) Save(ctx context.Context, instance *tram.SagaInstance) error {
	var sagaType string
	if instance != nil {
		sagaType = instance.SagaType
	}
	ctx, span := m.start(ctx, "save", sagaType)
	defer span.End()

	err := m.repo.Save(ctx, instance)
	if err == nil {
		span.SetAttributes(attribute.String("tram.saga.id", instance.ID))
	}
	finish(span, err)
	return err
}

// Find loads an instance with tracing.
func (m *RepositoryMiddleware) Find(ctx context.Context, sagaType, sagaID string) (*tram.SagaInstance, error) {
	ctx, span := m.start(ctx, "find", sagaType)
	defer span.End()
	span.SetAttributes(attribute.String("tram.saga.id", sagaID))

	instance, err := m.repo.Find(ctx, sagaType, sagaID)
	finish(span, err)
	return instance, err
}

// Update persists instance changes with tracing.
func (m *RepositoryMiddleware) Update(ctx context.Context, instance *tram.SagaInstance) error {
	var sagaType, sagaID string
	if instance != nil {
		sagaType, sagaID = instance.SagaType, instance.ID
	}
	ctx, span := m.start(ctx, "update", sagaType)
	defer span.End()
	span.SetAttributes(attribute.String("tram.saga.id", sagaID))

	err := m.repo.Update(ctx, instance)
	if err == nil {
		span.SetAttributes(
			attribute.Bool("tram.saga.end_state", instance.EndState),
			attribute.Bool("tram.saga.compensating", instance.Compensating),
		)
	}
	finish(span, err)
	return err
}

// =============================================================================
// Span Helpers
// =============================================================================

// SpanFromContext returns the current span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, opts ...trace.EventOption) {
	trace.SpanFromContext(ctx).AddEvent(name, opts...)
}

// SetError sets an error on the current span.
func SetError(ctx context.Context, err error) {
	finish(trace.SpanFromContext(ctx), err)
}

// SetAttributes sets attributes on the current span.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}
