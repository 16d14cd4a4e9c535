package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-tram"
	"github.com/AshkanYarmoradi/go-tram/testing/sagatest"
	tramtest "github.com/AshkanYarmoradi/go-tram/testing/testutil"
)

// =============================================================================
// Metrics Tests
// =============================================================================

func TestNew(t *testing.T) {
	t.Run("creates metrics with defaults", func(t *testing.T) {
		m := New()

		assert.Equal(t, "tram", m.namespace)
		assert.Equal(t, "unknown", m.serviceName)
	})

	t.Run("with custom options", func(t *testing.T) {
		m := New(
			WithNamespace("custom"),
			WithSubsystem("sagas"),
			WithMetricsServiceName("order-service"),
		)

		assert.Equal(t, "custom", m.namespace)
		assert.Equal(t, "sagas", m.subsystem)
		assert.Equal(t, "order-service", m.serviceName)
	})
}

func TestMetrics_Register(t *testing.T) {
	t.Run("registers with custom registry", func(t *testing.T) {
		m := New()
		registry := prometheus.NewRegistry()

		require.NoError(t, m.Register(registry))
		assert.Len(t, m.Collectors(), 15)
	})

	t.Run("fails on duplicate registration", func(t *testing.T) {
		m := New()
		registry := prometheus.NewRegistry()
		require.NoError(t, m.Register(registry))

		assert.Error(t, New().Register(registry))
	})
}

// =============================================================================
// SagaMetrics Tests
// =============================================================================

func TestMetrics_SagaLifecycle(t *testing.T) {
	m := New(WithMetricsServiceName("test"))

	m.RecordSagaStarted("S")
	m.RecordSagaStarted("S")
	m.RecordCommandSent("S", "CreateOrder")
	m.RecordSagaEnded("S", false)
	m.RecordSagaEnded("S", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SagasStartedTotal().WithLabelValues("test", "S")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SagasActive().WithLabelValues("test", "S")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SagasEndedTotal().WithLabelValues("test", "S", OutcomeCompleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SagasEndedTotal().WithLabelValues("test", "S", OutcomeCompensated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsSentTotal().WithLabelValues("test", "S", "CreateOrder")))
}

func TestMetrics_RecordReplyHandled(t *testing.T) {
	m := New(WithMetricsServiceName("test"))

	m.RecordReplyHandled("S", "Success", tram.ReplyOutcomeSuccess, time.Millisecond, nil)
	m.RecordReplyHandled("S", "Success", tram.ReplyOutcomeSuccess, time.Millisecond,
		fmt.Errorf("wrapped: %w", tram.ErrUnexpectedReply))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RepliesHandledTotal().WithLabelValues("test", "S", "Success", "SUCCESS", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RepliesHandledTotal().WithLabelValues("test", "S", "Success", "SUCCESS", StatusError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal().WithLabelValues("test", "unexpected_reply")))
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{nil, ""},
		{tram.ErrConcurrencyConflict, "concurrency_conflict"},
		{&tram.SagaInstanceNotFoundError{SagaType: "S", SagaID: "1"}, "saga_not_found"},
		{tram.ErrUnexpectedReply, "unexpected_reply"},
		{fmt.Errorf("x: %w", tram.ErrSagaEnded), "saga_ended"},
		{tram.ErrCompensationFailed, "compensation_failed"},
		{tram.NewMissingHeaderError(tram.HeaderReplySagaID, "m-1"), "missing_header"},
		{tram.NewSerializationError("T", "serialize", errors.New("bad")), "serialization_error"},
		{tram.ErrValidationFailed, "validation_error"},
		{context.DeadlineExceeded, "context_error"},
		{errors.New("other"), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, ErrorType(tt.err))
		})
	}
}

func TestMetrics_Outbox(t *testing.T) {
	m := New(WithMetricsServiceName("test"))

	m.RecordRelayed("customer-service", true)
	m.RecordRelayed("customer-service", false)
	m.RecordDeadLettered(3)
	m.RecordBatchDuration(10 * time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxRelayedTotal().WithLabelValues("test", "customer-service", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxRelayedTotal().WithLabelValues("test", "customer-service", StatusError)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.OutboxDeadLetteredTotal().WithLabelValues("test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal().WithLabelValues("test", "outbox_relay")))
}

// =============================================================================
// Middleware Tests
// =============================================================================

func TestProducerMiddleware(t *testing.T) {
	m := New(WithMetricsServiceName("test"))
	producer := &tramtest.MockProducer{}
	wrapped := m.WrapProducer(producer)
	ctx := context.Background()

	require.NoError(t, wrapped.Send(ctx, "order-channel", tram.NewMessage(nil, nil)))
	producer.SendErr = errors.New("down")
	require.Error(t, wrapped.Send(ctx, "order-channel", tram.NewMessage(nil, nil)))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesSentTotal().WithLabelValues("test", "order-channel", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesSentTotal().WithLabelValues("test", "order-channel", StatusError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal().WithLabelValues("test", "send_error")))
}

func TestHandlerMiddleware(t *testing.T) {
	m := New(WithMetricsServiceName("test"))
	var inFlightDuring float64
	handler := tram.MessageHandlerFunc(func(ctx context.Context, msg *tram.Message) error {
		inFlightDuring = testutil.ToFloat64(m.messagesInFlight.WithLabelValues("test", "replies"))
		if msg.Header("fail") != "" {
			return tram.ErrSagaEnded
		}
		return nil
	})
	wrapped := m.WrapHandler("replies", handler)
	ctx := context.Background()

	require.NoError(t, wrapped.HandleMessage(ctx, tram.NewMessage(nil, nil)))
	assert.Equal(t, 1.0, inFlightDuring)
	require.Error(t, wrapped.HandleMessage(ctx, tram.NewMessage(nil, map[string]string{"fail": "1"})))

	assert.Equal(t, 0.0, testutil.ToFloat64(m.messagesInFlight.WithLabelValues("test", "replies")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesHandledTotal().WithLabelValues("test", "replies", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesHandledTotal().WithLabelValues("test", "replies", StatusError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal().WithLabelValues("test", "saga_ended")))
}

func TestMetrics_WithSagaManager(t *testing.T) {
	m := New(WithMetricsServiceName("orders"))
	producer := &tramtest.MockProducer{}
	manager, err := tram.NewSagaManager(tramtest.CreateOrderSaga(),
		tram.WithSagaRepository(sagatest.NewSingleSlotRepository(nil)),
		tram.WithSagaProducer(m.WrapProducer(producer)),
		tram.WithSagaMetrics(m),
	)
	require.NoError(t, err)
	handler := m.WrapHandler("order-replies", manager)
	ctx := context.Background()

	data := tramtest.NewOrderSagaData("42")
	_, err = manager.Create(ctx, &data)
	require.NoError(t, err)

	reply, err := tram.WithFailure(producer.Last().Message, nil, nil)
	require.NoError(t, err)
	reply.SetHeader(tram.HeaderID, "r-1")
	require.NoError(t, handler.HandleMessage(ctx, reply))

	saga := tramtest.CreateOrderSagaType
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SagasStartedTotal().WithLabelValues("orders", saga)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsSentTotal().WithLabelValues("orders", saga, "CreateOrder")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SagasEndedTotal().WithLabelValues("orders", saga, OutcomeCompensated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RepliesHandledTotal().WithLabelValues("orders", saga, "Failure", "FAILURE", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesSentTotal().WithLabelValues("orders", tramtest.OrderChannel, StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesHandledTotal().WithLabelValues("orders", "order-replies", StatusSuccess)))
}
