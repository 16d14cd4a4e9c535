package tram

import "fmt"

// NewReplyMessage builds the reply a participant sends for command.
// The payload is serialized, the outcome and reply type are recorded, and the
// command's correlation headers are echoed so the reply can be routed back
// to the saga that sent the command. The reply has no ID until it is sent.
func NewReplyMessage(command *Message, outcome ReplyOutcome, reply interface{}, serializer Serializer) (*Message, error) {
	if command == nil {
		return nil, fmt.Errorf("tram: cannot reply to a nil command")
	}
	if reply == nil {
		if outcome == ReplyOutcomeFailure {
			reply = Failure{}
		} else {
			reply = Success{}
		}
	}
	if serializer == nil {
		serializer = NewJSONSerializer()
	}

	payload, err := serializer.Serialize(reply)
	if err != nil {
		return nil, err
	}

	return NewMessageBuilder().
		WithPayload(payload).
		WithHeader(HeaderReplyOutcome, outcome.String()).
		WithHeader(HeaderReplyType, TypeName(reply)).
		WithExtraHeaders("", CorrelationHeaders(command.Headers)).
		Build(), nil
}

// WithSuccess builds a SUCCESS reply for command.
func WithSuccess(command *Message, reply interface{}, serializer Serializer) (*Message, error) {
	return NewReplyMessage(command, ReplyOutcomeSuccess, reply, serializer)
}

// WithFailure builds a FAILURE reply for command.
func WithFailure(command *Message, reply interface{}, serializer Serializer) (*Message, error) {
	return NewReplyMessage(command, ReplyOutcomeFailure, reply, serializer)
}
