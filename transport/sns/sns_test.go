package sns

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/AshkanYarmoradi/go-tram"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSNSClient implements SNSClient for testing.
type mockSNSClient struct {
	publishCalls []*sns.PublishInput
	publishErr   error
}

func (m *mockSNSClient) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.publishCalls = append(m.publishCalls, params)
	if m.publishErr != nil {
		return nil, m.publishErr
	}
	return &sns.PublishOutput{MessageId: stringPtr("sns-123")}, nil
}

const prefix = "arn:aws:sns:us-east-1:123456789012:"

func TestProducer_Send(t *testing.T) {
	mock := &mockSNSClient{}
	p := NewProducer(mock, WithTopicPrefix(prefix))

	msg := tram.NewMessage([]byte(`{"orderId":"42"}`), map[string]string{
		tram.HeaderID:          "msg-1",
		tram.HeaderCommandType: "CreateOrder",
	})
	require.NoError(t, p.Send(context.Background(), "order-channel", msg))

	require.Len(t, mock.publishCalls, 1)
	call := mock.publishCalls[0]
	assert.Equal(t, prefix+"order-channel", *call.TopicArn)
	assert.Equal(t, `{"orderId":"42"}`, *call.Message)
	assert.Equal(t, "CreateOrder", *call.MessageAttributes[tram.HeaderCommandType].StringValue)
	assert.Equal(t, "String", *call.MessageAttributes[tram.HeaderID].DataType)
	assert.Nil(t, call.MessageGroupId)
}

func TestProducer_Send_Envelope(t *testing.T) {
	mock := &mockSNSClient{}
	p := NewProducer(mock, WithTopicPrefix(prefix))

	headers := make(map[string]string)
	for i := 0; i <= MaxAttributes; i++ {
		headers[fmt.Sprintf("h%d", i)] = "v"
	}
	require.NoError(t, p.Send(context.Background(), "replies", tram.NewMessage([]byte(`{"a":1}`), headers)))

	call := mock.publishCalls[0]
	require.Len(t, call.MessageAttributes, 1)

	attrs := map[string]string{EnvelopeAttribute: *call.MessageAttributes[EnvelopeAttribute].StringValue}
	decoded, err := Decode(*call.Message, attrs)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), decoded.Payload)
	assert.Equal(t, headers, decoded.Headers)
}

func TestProducer_Send_FIFO(t *testing.T) {
	mock := &mockSNSClient{}
	p := NewProducer(mock, WithTopicPrefix(prefix))

	msg := tram.NewMessage(nil, map[string]string{
		tram.HeaderID:          "msg-1",
		tram.HeaderPartitionID: "order-42",
	})
	require.NoError(t, p.Send(context.Background(), "orders.fifo", msg))

	call := mock.publishCalls[0]
	assert.Equal(t, "order-42", *call.MessageGroupId)
	assert.Equal(t, "msg-1", *call.MessageDeduplicationId)

	p = NewProducer(mock, WithMessageGroupID("sagas"))
	require.NoError(t, p.Send(context.Background(), "orders", tram.NewMessage(nil, nil)))
	assert.Equal(t, "sagas", *mock.publishCalls[1].MessageGroupId)
	assert.Nil(t, mock.publishCalls[1].MessageDeduplicationId)
}

func TestProducer_Send_Errors(t *testing.T) {
	err := NewProducer(nil).Send(context.Background(), "orders", tram.NewMessage(nil, nil))
	assert.ErrorIs(t, err, ErrNoClient)

	mock := &mockSNSClient{publishErr: errors.New("throttled")}
	p := NewProducer(mock)

	err = p.Send(context.Background(), "", tram.NewMessage(nil, nil))
	assert.EqualError(t, err, "sns: missing topic")

	err = p.Send(context.Background(), "orders", tram.NewMessage(nil, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestDecode(t *testing.T) {
	msg, err := Decode(`{"x":1}`, map[string]string{tram.HeaderID: "m-1"})
	require.NoError(t, err)
	assert.Equal(t, "m-1", msg.ID())

	_, err = Decode("not json", map[string]string{EnvelopeAttribute: "true"})
	assert.Error(t, err)
}
