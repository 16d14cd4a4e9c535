package tram

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageProducerFunc(t *testing.T) {
	var got string
	p := MessageProducerFunc(func(ctx context.Context, destination string, msg *Message) error {
		got = destination
		return nil
	})

	require.NoError(t, p.Send(context.Background(), "d", &Message{}))
	assert.Equal(t, "d", got)
}

func TestMessageHandlerFunc(t *testing.T) {
	called := false
	h := MessageHandlerFunc(func(ctx context.Context, msg *Message) error {
		called = true
		return nil
	})

	require.NoError(t, h.HandleMessage(context.Background(), &Message{}))
	assert.True(t, called)
}

func TestWithMessageIDs(t *testing.T) {
	var captured *Message
	next := MessageProducerFunc(func(ctx context.Context, destination string, msg *Message) error {
		captured = msg
		return nil
	})

	p := WithMessageIDs(next, IDGeneratorFunc(func() string { return "id-1" })).(*idAssigningProducer)
	p.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	msg := NewMessage(nil, nil)
	require.NoError(t, p.Send(context.Background(), "orders", msg))

	assert.Same(t, msg, captured)
	assert.Equal(t, "id-1", msg.ID())
	assert.Equal(t, "orders", msg.Header(HeaderDestination))
	assert.Equal(t, "Fri, 02 Jan 2026 03:04:05 UTC", msg.Header(HeaderDate))
}

func TestWithMessageIDs_DefaultGenerator(t *testing.T) {
	msg := NewMessage(nil, nil)
	p := WithMessageIDs(MessageProducerFunc(func(ctx context.Context, d string, m *Message) error { return nil }), nil)

	require.NoError(t, p.Send(context.Background(), "x", msg))
	assert.NotEmpty(t, msg.ID())
}

func TestCommandProducer_Send(t *testing.T) {
	producer := newTestProducer()
	mapping := NewChannelMapping(map[string]string{"customer-service": "prod.customer"})
	cp := NewCommandProducer(producer, nil, mapping)

	id, err := cp.Send(context.Background(), "customer-service", "/customers/c-1",
		reserveCredit{CustomerID: "c-1"}, "saga-reply", map[string]string{HeaderSagaID: "s-1"})

	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)

	sent := producer.last()
	assert.Equal(t, "prod.customer", sent.destination)
	assert.Equal(t, "reserveCredit", sent.msg.Header(HeaderCommandType))
	assert.Equal(t, "customer-service", sent.msg.Header(HeaderCommandDestination))
	assert.Equal(t, "/customers/c-1", sent.msg.Header(HeaderCommandResource))
	assert.Equal(t, "saga-reply", sent.msg.Header(HeaderCommandReplyTo))
	assert.Equal(t, "s-1", sent.msg.Header(HeaderSagaID))
	assert.JSONEq(t, `{"customerId":"c-1"}`, string(sent.msg.Payload))
}

func TestCommandProducer_Errors(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		producer := newTestProducer()
		cp := NewCommandProducer(producer, nil, nil)

		_, err := cp.Send(context.Background(), "c", "", validatedCommand{}, "r", nil)

		assert.ErrorIs(t, err, ErrValidationFailed)
		assert.Equal(t, 0, producer.count())
	})

	t.Run("nil command", func(t *testing.T) {
		cp := NewCommandProducer(newTestProducer(), nil, nil)
		_, err := cp.Send(context.Background(), "c", "", nil, "r", nil)
		assert.ErrorIs(t, err, ErrNilCommand)
	})

	t.Run("transport failure", func(t *testing.T) {
		producer := newTestProducer()
		producer.sendErr = errors.New("broker down")
		cp := NewCommandProducer(producer, nil, nil)

		_, err := cp.Send(context.Background(), "c", "", reserveCredit{}, "r", nil)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "broker down")
	})
}

func TestNewReplyMessage(t *testing.T) {
	command := NewMessage(nil, map[string]string{
		HeaderID:          "cmd-9",
		HeaderCommandType: "createTicket",
		HeaderSagaType:    "CreateOrderSaga",
		HeaderSagaID:      "saga-1",
	})

	t.Run("success with payload", func(t *testing.T) {
		reply, err := WithSuccess(command, ticketCreated{TicketID: "t-1"}, nil)
		require.NoError(t, err)

		assert.Equal(t, "SUCCESS", reply.Header(HeaderReplyOutcome))
		assert.Equal(t, "TicketCreated", reply.Header(HeaderReplyType))
		assert.Equal(t, "cmd-9", reply.Header(HeaderInReplyTo))
		assert.Equal(t, "saga-1", reply.Header(HeaderReplySagaID))
		assert.Equal(t, "CreateOrderSaga", reply.Header(HeaderReplySagaType))
		assert.JSONEq(t, `{"ticketId":"t-1"}`, string(reply.Payload))
		assert.Empty(t, reply.ID())
	})

	t.Run("failure defaults payload", func(t *testing.T) {
		reply, err := WithFailure(command, nil, nil)
		require.NoError(t, err)

		assert.Equal(t, "FAILURE", reply.Header(HeaderReplyOutcome))
		assert.Equal(t, "Failure", reply.Header(HeaderReplyType))
		assert.JSONEq(t, `{}`, string(reply.Payload))
	})

	t.Run("success defaults payload", func(t *testing.T) {
		reply, err := NewReplyMessage(command, ReplyOutcomeSuccess, nil, NewJSONSerializer())
		require.NoError(t, err)
		assert.Equal(t, "Success", reply.Header(HeaderReplyType))
	})

	t.Run("nil command", func(t *testing.T) {
		_, err := NewReplyMessage(nil, ReplyOutcomeSuccess, nil, nil)
		assert.Error(t, err)
	})
}
