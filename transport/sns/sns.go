// Package sns publishes saga commands and replies to AWS SNS topics.
//
// A destination maps to the topic ARN <prefix><destination>. Headers travel as
// string message attributes. SNS allows at most ten attributes per message, so
// a message with more headers is sent as a JSON envelope carrying both the
// payload and the headers, flagged by the EnvelopeAttribute attribute.
package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/AshkanYarmoradi/go-tram"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// Scheme is the destination scheme used with transport.Router.
const Scheme = "sns"

// MaxAttributes is the SNS limit on message attributes.
const MaxAttributes = 10

// EnvelopeAttribute marks a message whose body is a JSON-encoded tram.Message.
const EnvelopeAttribute = "tram-envelope"

// ErrNoClient indicates the producer was built without an SNS client.
var ErrNoClient = errors.New("sns: client not configured")

// SNSClient defines the subset of the SNS API used by the producer.
type SNSClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Ensure interface compliance at compile time
var _ tram.MessageProducer = (*Producer)(nil)

// Producer publishes messages to SNS topics.
type Producer struct {
	client         SNSClient
	topicPrefix    string
	messageGroupID string
}

// Option configures a Producer.
type Option func(*Producer)

// WithTopicPrefix sets the string prepended to a destination to form the topic
// ARN, e.g. "arn:aws:sns:eu-west-1:123456789012:".
func WithTopicPrefix(prefix string) Option {
	return func(p *Producer) {
		p.topicPrefix = prefix
	}
}

// WithMessageGroupID sets the default message group ID for FIFO topics.
func WithMessageGroupID(groupID string) Option {
	return func(p *Producer) {
		p.messageGroupID = groupID
	}
}

// NewProducer creates a Producer using client.
func NewProducer(client SNSClient, opts ...Option) *Producer {
	p := &Producer{client: client}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// TopicARN returns the topic ARN for destination.
func (p *Producer) TopicARN(destination string) string {
	return p.topicPrefix + destination
}

// Send publishes msg to the topic for destination.
func (p *Producer) Send(ctx context.Context, destination string, msg *tram.Message) error {
	if p.client == nil {
		return ErrNoClient
	}
	if destination == "" {
		return fmt.Errorf("sns: missing topic")
	}

	input, err := p.publishInput(p.TopicARN(destination), msg)
	if err != nil {
		return err
	}

	if _, err := p.client.Publish(ctx, input); err != nil {
		return fmt.Errorf("sns: failed to publish to %s: %w", *input.TopicArn, err)
	}
	return nil
}

func (p *Producer) publishInput(topicARN string, msg *tram.Message) (*sns.PublishInput, error) {
	input := &sns.PublishInput{
		TopicArn:          stringPtr(topicARN),
		MessageAttributes: make(map[string]types.MessageAttributeValue),
	}

	if len(msg.Headers) <= MaxAttributes {
		input.Message = stringPtr(string(msg.Payload))
		for k, v := range msg.Headers {
			input.MessageAttributes[k] = stringAttribute(v)
		}
	} else {
		body, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("sns: failed to encode envelope: %w", err)
		}
		input.Message = stringPtr(string(body))
		input.MessageAttributes[EnvelopeAttribute] = stringAttribute("true")
	}

	if strings.HasSuffix(topicARN, ".fifo") || p.messageGroupID != "" {
		group := msg.Header(tram.HeaderPartitionID)
		if group == "" {
			group = p.messageGroupID
		}
		if group != "" {
			input.MessageGroupId = stringPtr(group)
		}
		if id := msg.ID(); id != "" {
			input.MessageDeduplicationId = stringPtr(id)
		}
	}

	return input, nil
}

// Decode rebuilds a message from an SNS notification body and its attributes,
// as delivered to an SQS queue or HTTP subscriber with raw delivery enabled.
func Decode(body string, attributes map[string]string) (*tram.Message, error) {
	if attributes[EnvelopeAttribute] == "true" {
		var msg tram.Message
		if err := json.Unmarshal([]byte(body), &msg); err != nil {
			return nil, fmt.Errorf("sns: failed to decode envelope: %w", err)
		}
		return tram.NewMessage(msg.Payload, msg.Headers), nil
	}
	return tram.NewMessage([]byte(body), attributes), nil
}

func stringAttribute(v string) types.MessageAttributeValue {
	return types.MessageAttributeValue{
		DataType:    stringPtr("String"),
		StringValue: stringPtr(v),
	}
}

func stringPtr(s string) *string {
	return &s
}
