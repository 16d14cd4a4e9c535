// Package metrics provides Prometheus metrics integration for go-tram.
//
// Metrics implements tram.SagaMetrics, so a saga manager reports saga
// lifecycle, reply handling and command dispatch directly. Producers and
// message handlers can additionally be wrapped to measure transport traffic.
//
//	m := metrics.New(metrics.WithMetricsServiceName("order-service"))
//	prometheus.MustRegister(m.Collectors()...)
//
//	manager, err := tram.NewSagaManager(def,
//		tram.WithSagaMetrics(m),
//		tram.WithSagaProducer(m.WrapProducer(kafkaProducer)),
//		...)
//	router.Handle(manager.ReplyChannel(), m.WrapHandler("order-replies", manager))
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AshkanYarmoradi/go-tram"
)

// Ensure interface compliance at compile time
var (
	_ tram.SagaMetrics   = (*Metrics)(nil)
	_ tram.OutboxMetrics = (*Metrics)(nil)
)

// Default metric labels.
const (
	LabelService      = "service"
	LabelSagaType     = "saga_type"
	LabelCommandType  = "command_type"
	LabelReplyType    = "reply_type"
	LabelReplyOutcome = "reply_outcome"
	LabelOutcome      = "outcome"
	LabelDestination  = "destination"
	LabelHandler      = "handler"
	LabelStatus       = "status"
	LabelErrorType    = "error_type"
)

// Status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Saga outcome values.
const (
	OutcomeCompleted   = "completed"
	OutcomeCompensated = "compensated"
)

// Metrics holds all Prometheus metrics for tram.
type Metrics struct {
	namespace   string
	subsystem   string
	serviceName string

	// Saga metrics
	sagasStartedTotal   *prometheus.CounterVec
	sagasEndedTotal     *prometheus.CounterVec
	sagasActive         *prometheus.GaugeVec
	repliesHandledTotal *prometheus.CounterVec
	replyDuration       *prometheus.HistogramVec
	commandsSentTotal   *prometheus.CounterVec

	// Transport metrics
	messagesSentTotal    *prometheus.CounterVec
	sendDuration         *prometheus.HistogramVec
	messagesHandledTotal *prometheus.CounterVec
	handleDuration       *prometheus.HistogramVec
	messagesInFlight     *prometheus.GaugeVec

	// Outbox relay metrics
	outboxRelayedTotal      *prometheus.CounterVec
	outboxDeadLetteredTotal *prometheus.CounterVec
	outboxBatchDuration     *prometheus.HistogramVec

	// Error metrics
	errorsTotal *prometheus.CounterVec
}

// MetricsOption configures Metrics.
type MetricsOption func(*Metrics)

// WithNamespace sets the Prometheus namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(m *Metrics) {
		m.namespace = namespace
	}
}

// WithSubsystem sets the Prometheus subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(m *Metrics) {
		m.subsystem = subsystem
	}
}

// WithMetricsServiceName sets the service name label.
func WithMetricsServiceName(name string) MetricsOption {
	return func(m *Metrics) {
		m.serviceName = name
	}
}

// New creates a new Metrics instance with default settings.
func New(opts ...MetricsOption) *Metrics {
	m := &Metrics{
		namespace:   "tram",
		serviceName: "unknown",
	}
	for _, opt := range opts {
		opt(m)
	}

	m.initMetrics()
	return m
}

func (m *Metrics) counter(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, append([]string{LabelService}, labels...))
}

func (m *Metrics) histogram(name, help string, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   prometheus.DefBuckets,
	}, append([]string{LabelService}, labels...))
}

func (m *Metrics) gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, append([]string{LabelService}, labels...))
}

func (m *Metrics) initMetrics() {
	m.sagasStartedTotal = m.counter("sagas_started_total", "Total number of sagas started.", LabelSagaType)
	m.sagasEndedTotal = m.counter("sagas_ended_total", "Total number of sagas that reached an end state.", LabelSagaType, LabelOutcome)
	m.sagasActive = m.gauge("sagas_active", "Number of sagas started and not yet ended by this process.", LabelSagaType)
	m.repliesHandledTotal = m.counter("replies_handled_total", "Total number of saga replies handled.",
		LabelSagaType, LabelReplyType, LabelReplyOutcome, LabelStatus)
	m.replyDuration = m.histogram("reply_duration_seconds", "Duration of saga reply handling in seconds.", LabelSagaType)
	m.commandsSentTotal = m.counter("commands_sent_total", "Total number of commands sent by sagas.", LabelSagaType, LabelCommandType)

	m.messagesSentTotal = m.counter("messages_sent_total", "Total number of messages sent.", LabelDestination, LabelStatus)
	m.sendDuration = m.histogram("send_duration_seconds", "Duration of message sends in seconds.", LabelDestination)
	m.messagesHandledTotal = m.counter("messages_handled_total", "Total number of inbound messages handled.", LabelHandler, LabelStatus)
	m.handleDuration = m.histogram("handle_duration_seconds", "Duration of inbound message handling in seconds.", LabelHandler)
	m.messagesInFlight = m.gauge("messages_in_flight", "Number of inbound messages currently being handled.", LabelHandler)

	m.outboxRelayedTotal = m.counter("outbox_relayed_total", "Total number of outbox delivery attempts.", LabelDestination, LabelStatus)
	m.outboxDeadLetteredTotal = m.counter("outbox_dead_lettered_total", "Total number of outbox messages moved to dead letter.")
	m.outboxBatchDuration = m.histogram("outbox_batch_duration_seconds", "Duration of outbox relay batches in seconds.")

	m.errorsTotal = m.counter("errors_total", "Total number of errors by type.", LabelErrorType)
}

// Collectors returns all Prometheus collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.sagasStartedTotal,
		m.sagasEndedTotal,
		m.sagasActive,
		m.repliesHandledTotal,
		m.replyDuration,
		m.commandsSentTotal,
		m.messagesSentTotal,
		m.sendDuration,
		m.messagesHandledTotal,
		m.handleDuration,
		m.messagesInFlight,
		m.outboxRelayedTotal,
		m.outboxDeadLetteredTotal,
		m.outboxBatchDuration,
		m.errorsTotal,
	}
}

// MustRegister registers all collectors with the default registry.
// Panics if registration fails.
func (m *Metrics) MustRegister() {
	prometheus.MustRegister(m.Collectors()...)
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(registry prometheus.Registerer) error {
	for _, collector := range m.Collectors() {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// tram.SagaMetrics
// =============================================================================

// RecordSagaStarted implements tram.SagaMetrics.
func (m *Metrics) RecordSagaStarted(sagaType string) {
	m.sagasStartedTotal.WithLabelValues(m.serviceName, sagaType).Inc()
	m.sagasActive.WithLabelValues(m.serviceName, sagaType).Inc()
}

// RecordSagaEnded implements tram.SagaMetrics.
func (m *Metrics) RecordSagaEnded(sagaType string, compensated bool) {
	outcome := OutcomeCompleted
	if compensated {
		outcome = OutcomeCompensated
	}
	m.sagasEndedTotal.WithLabelValues(m.serviceName, sagaType, outcome).Inc()
	m.sagasActive.WithLabelValues(m.serviceName, sagaType).Dec()
}

// RecordReplyHandled implements tram.SagaMetrics.
func (m *Metrics) RecordReplyHandled(sagaType, replyType string, outcome tram.ReplyOutcome, duration time.Duration, err error) {
	m.replyDuration.WithLabelValues(m.serviceName, sagaType).Observe(duration.Seconds())

	status := StatusSuccess
	if err != nil {
		status = StatusError
		m.recordError(err)
	}
	m.repliesHandledTotal.WithLabelValues(m.serviceName, sagaType, replyType, outcome.String(), status).Inc()
}

// RecordCommandSent implements tram.SagaMetrics.
func (m *Metrics) RecordCommandSent(sagaType, commandType string) {
	m.commandsSentTotal.WithLabelValues(m.serviceName, sagaType, commandType).Inc()
}

// RecordError records a custom error.
func (m *Metrics) RecordError(errorType string) {
	m.errorsTotal.WithLabelValues(m.serviceName, errorType).Inc()
}

func (m *Metrics) recordError(err error) {
	m.RecordError(ErrorType(err))
}

// ErrorType classifies err into a low-cardinality label value.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, tram.ErrConcurrencyConflict):
		return "concurrency_conflict"
	case errors.Is(err, tram.ErrSagaInstanceNotFound):
		return "saga_not_found"
	case errors.Is(err, tram.ErrUnexpectedReply):
		return "unexpected_reply"
	case errors.Is(err, tram.ErrSagaEnded):
		return "saga_ended"
	case errors.Is(err, tram.ErrCompensationFailed):
		return "compensation_failed"
	case errors.Is(err, tram.ErrMissingHeader):
		return "missing_header"
	case errors.Is(err, tram.ErrSerializationFailed):
		return "serialization_error"
	case errors.Is(err, tram.ErrValidationFailed):
		return "validation_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "context_error"
	default:
		return "unknown"
	}
}

// =============================================================================
// Producer Middleware
// =============================================================================

// Ensure interface compliance at compile time
var _ tram.MessageProducer = (*ProducerMiddleware)(nil)

// ProducerMiddleware wraps a MessageProducer with metrics.
type ProducerMiddleware struct {
	producer tram.MessageProducer
	metrics  *Metrics
}

// WrapProducer wraps producer with send metrics.
func (m *Metrics) WrapProducer(producer tram.MessageProducer) *ProducerMiddleware {
	return &ProducerMiddleware{producer: producer, metrics: m}
}

// Send sends msg and records its outcome and duration.
func (pm *ProducerMiddleware) Send(ctx context.Context, destination string, msg *tram.Message) error {
	start := time.Now()
	err := pm.producer.Send(ctx, destination, msg)
	pm.metrics.sendDuration.WithLabelValues(pm.metrics.serviceName, destination).Observe(time.Since(start).Seconds())

	status := StatusSuccess
	if err != nil {
		status = StatusError
		pm.metrics.RecordError("send_error")
	}
	pm.metrics.messagesSentTotal.WithLabelValues(pm.metrics.serviceName, destination, status).Inc()
	return err
}

// =============================================================================
// Handler Middleware
// =============================================================================

// Ensure interface compliance at compile time
var _ tram.MessageHandler = (*HandlerMiddleware)(nil)

// HandlerMiddleware wraps a MessageHandler with metrics.
type HandlerMiddleware struct {
	name    string
	handler tram.MessageHandler
	metrics *Metrics
}

// WrapHandler wraps handler with metrics labelled name.
func (m *Metrics) WrapHandler(name string, handler tram.MessageHandler) *HandlerMiddleware {
	return &HandlerMiddleware{name: name, handler: handler, metrics: m}
}

// HandleMessage handles msg and records its outcome, duration and in-flight count.
func (hm *HandlerMiddleware) HandleMessage(ctx context.Context, msg *tram.Message) error {
	inFlight := hm.metrics.messagesInFlight.WithLabelValues(hm.metrics.serviceName, hm.name)
	inFlight.Inc()
	defer inFlight.Dec()

	start := time.Now()
	err := hm.handler.HandleMessage(ctx, msg)
	hm.metrics.handleDuration.WithLabelValues(hm.metrics.serviceName, hm.name).Observe(time.Since(start).Seconds())

	status := StatusSuccess
	if err != nil {
		status = StatusError
		hm.metrics.recordError(err)
	}
	hm.metrics.messagesHandledTotal.WithLabelValues(hm.metrics.serviceName, hm.name, status).Inc()
	return err
}

// =============================================================================
// Getters for testing
// =============================================================================

// SagasStartedTotal returns the sagas started counter.
func (m *Metrics) SagasStartedTotal() *prometheus.CounterVec { return m.sagasStartedTotal }

// SagasEndedTotal returns the sagas ended counter.
func (m *Metrics) SagasEndedTotal() *prometheus.CounterVec { return m.sagasEndedTotal }

// SagasActive returns the active sagas gauge.
func (m *Metrics) SagasActive() *prometheus.GaugeVec { return m.sagasActive }

// RepliesHandledTotal returns the replies handled counter.
func (m *Metrics) RepliesHandledTotal() *prometheus.CounterVec { return m.repliesHandledTotal }

// CommandsSentTotal returns the commands sent counter.
func (m *Metrics) CommandsSentTotal() *prometheus.CounterVec { return m.commandsSentTotal }

// MessagesSentTotal returns the messages sent counter.
func (m *Metrics) MessagesSentTotal() *prometheus.CounterVec { return m.messagesSentTotal }

// MessagesHandledTotal returns the messages handled counter.
func (m *Metrics) MessagesHandledTotal() *prometheus.CounterVec { return m.messagesHandledTotal }

// ErrorsTotal returns the errors counter.
func (m *Metrics) ErrorsTotal() *prometheus.CounterVec { return m.errorsTotal }

// OutboxRelayedTotal returns the outbox delivery counter.
func (m *Metrics) OutboxRelayedTotal() *prometheus.CounterVec { return m.outboxRelayedTotal }

// OutboxDeadLetteredTotal returns the dead letter counter.
func (m *Metrics) OutboxDeadLetteredTotal() *prometheus.CounterVec { return m.outboxDeadLetteredTotal }

// =============================================================================
// tram.OutboxMetrics
// =============================================================================

// RecordRelayed counts one outbox delivery attempt.
func (m *Metrics) RecordRelayed(destination string, success bool) {
	status := StatusSuccess
	if !success {
		status = StatusError
		m.errorsTotal.WithLabelValues(m.serviceName, "outbox_relay").Inc()
	}
	m.outboxRelayedTotal.WithLabelValues(m.serviceName, destination, status).Inc()
}

// RecordDeadLettered counts messages moved to dead letter.
func (m *Metrics) RecordDeadLettered(count int64) {
	m.outboxDeadLetteredTotal.WithLabelValues(m.serviceName).Add(float64(count))
}

// RecordBatchDuration observes one relay batch.
func (m *Metrics) RecordBatchDuration(duration time.Duration) {
	m.outboxBatchDuration.WithLabelValues(m.serviceName).Observe(duration.Seconds())
}
