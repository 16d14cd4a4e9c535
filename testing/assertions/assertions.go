// Package assertions provides assertions over the messages a saga or a
// participant sent: their types, headers and decoded payloads, plus a diff
// that shows which messages were missing, extra or different.
package assertions

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/AshkanYarmoradi/go-tram"
)

// TB is an alias for testing.TB interface to allow mocking in tests
type TB = testing.TB

// TypeOf returns the command type or the reply type of msg.
func TypeOf(msg *tram.Message) string {
	if t := msg.Header(tram.HeaderCommandType); t != "" {
		return t
	}
	return msg.Header(tram.HeaderReplyType)
}

// AssertMessageTypes checks that msgs carry the command or reply types in order.
func AssertMessageTypes(t TB, msgs []*tram.Message, types ...string) {
	t.Helper()

	if len(msgs) != len(types) {
		t.Fatalf("Expected %d messages, got %d", len(types), len(msgs))
	}

	for i, expected := range types {
		if actual := TypeOf(msgs[i]); actual != expected {
			t.Errorf("Message %d: expected type %s, got %s", i, expected, actual)
		}
	}
}

// AssertMessageCount checks the number of messages.
func AssertMessageCount(t TB, msgs []*tram.Message, expected int) {
	t.Helper()

	if len(msgs) != expected {
		t.Errorf("Expected %d messages, got %d", expected, len(msgs))
	}
}

// AssertNoMessages checks that nothing was sent.
func AssertNoMessages(t TB, msgs []*tram.Message) {
	t.Helper()

	if len(msgs) > 0 {
		t.Errorf("Expected no messages, got %d: %v", len(msgs), msgs)
	}
}

// AssertHeader checks a single header value.
func AssertHeader(t TB, msg *tram.Message, name, expected string) {
	t.Helper()

	if !msg.HasHeader(name) {
		t.Errorf("%v: header %s is missing", msg, name)
		return
	}
	if actual := msg.Header(name); actual != expected {
		t.Errorf("%v: header %s is %q, expected %q", msg, name, actual, expected)
	}
}

// AssertPayload decodes the payload of msg with serializer and compares it
// with expected.
func AssertPayload[T any](t TB, serializer tram.Serializer, msg *tram.Message, expected T) {
	t.Helper()

	var actual T
	if err := serializer.DeserializeInto(msg.Payload, &actual); err != nil {
		t.Fatalf("%v: cannot decode payload into %T: %v", msg, actual, err)
	}
	if !reflect.DeepEqual(expected, actual) {
		t.Errorf("%v: payload mismatch:\nExpected: %+v\nActual: %+v", msg, expected, actual)
	}
}

// MessageDiff is one difference between expected and actual messages.
type MessageDiff struct {
	Index    int
	Expected *tram.Message
	Actual   *tram.Message
	Type     DiffType
	// Detail names what differs for DiffMismatch.
	Detail string
}

// DiffType represents the type of difference.
type DiffType int

const (
	// DiffMissing indicates an expected message was not sent.
	DiffMissing DiffType = iota
	// DiffExtra indicates an unexpected message was sent.
	DiffExtra
	// DiffMismatch indicates headers or payload did not match.
	DiffMismatch
)

// String returns a human-readable representation of the diff type.
func (d DiffType) String() string {
	switch d {
	case DiffMissing:
		return "missing"
	case DiffExtra:
		return "extra"
	case DiffMismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

// DiffMessages compares messages pairwise. Only the headers present on the
// expected message are compared, so generated IDs can be left out.
func DiffMessages(expected, actual []*tram.Message) []MessageDiff {
	var diffs []MessageDiff

	n := len(expected)
	if len(actual) > n {
		n = len(actual)
	}

	for i := 0; i < n; i++ {
		switch {
		case i >= len(expected):
			diffs = append(diffs, MessageDiff{Index: i, Actual: actual[i], Type: DiffExtra})
		case i >= len(actual):
			diffs = append(diffs, MessageDiff{Index: i, Expected: expected[i], Type: DiffMissing})
		default:
			if detail := compare(expected[i], actual[i]); detail != "" {
				diffs = append(diffs, MessageDiff{
					Index:    i,
					Expected: expected[i],
					Actual:   actual[i],
					Type:     DiffMismatch,
					Detail:   detail,
				})
			}
		}
	}

	return diffs
}

func compare(expected, actual *tram.Message) string {
	var mismatches []string
	for name, want := range expected.Headers {
		if got, ok := actual.Headers[name]; !ok || got != want {
			mismatches = append(mismatches, fmt.Sprintf("header %s: %q != %q", name, want, got))
		}
	}
	if expected.Payload != nil && string(expected.Payload) != string(actual.Payload) {
		mismatches = append(mismatches, fmt.Sprintf("payload: %s != %s", expected.Payload, actual.Payload))
	}
	return strings.Join(mismatches, "; ")
}

// FormatDiffs formats message diffs as a human-readable string.
func FormatDiffs(diffs []MessageDiff) string {
	if len(diffs) == 0 {
		return "no differences"
	}

	var buf strings.Builder
	buf.WriteString("Message differences:\n")
	for _, diff := range diffs {
		fmt.Fprintf(&buf, "  Message %d (%s):", diff.Index, diff.Type)
		switch diff.Type {
		case DiffExtra:
			fmt.Fprintf(&buf, " + %v\n", diff.Actual)
		case DiffMissing:
			fmt.Fprintf(&buf, " - %v\n", diff.Expected)
		case DiffMismatch:
			fmt.Fprintf(&buf, " %s\n", diff.Detail)
		}
	}
	return buf.String()
}

// AssertMessagesEqual fails with a diff when the messages differ.
func AssertMessagesEqual(t TB, expected, actual []*tram.Message) {
	t.Helper()

	if diffs := DiffMessages(expected, actual); len(diffs) > 0 {
		t.Error(FormatDiffs(diffs))
	}
}

// MessageMatcher selects messages.
type MessageMatcher func(*tram.Message) bool

// MatchType matches messages by command or reply type.
func MatchType(typeName string) MessageMatcher {
	return func(msg *tram.Message) bool {
		return TypeOf(msg) == typeName
	}
}

// MatchHeader matches messages whose header name equals value.
func MatchHeader(name, value string) MessageMatcher {
	return func(msg *tram.Message) bool {
		return msg.HasHeader(name) && msg.Header(name) == value
	}
}

// AssertAnyMatch checks that at least one message matches.
func AssertAnyMatch(t TB, msgs []*tram.Message, matcher MessageMatcher) {
	t.Helper()

	if CountMatches(msgs, matcher) == 0 {
		t.Errorf("No message matched among %v", msgs)
	}
}

// AssertNoneMatch checks that no message matches.
func AssertNoneMatch(t TB, msgs []*tram.Message, matcher MessageMatcher) {
	t.Helper()

	if n := CountMatches(msgs, matcher); n > 0 {
		t.Errorf("Expected no matching messages, got %d", n)
	}
}

// CountMatches counts the messages that match.
func CountMatches(msgs []*tram.Message, matcher MessageMatcher) int {
	return len(Filter(msgs, matcher))
}

// Filter returns the messages that match.
func Filter(msgs []*tram.Message, matcher MessageMatcher) []*tram.Message {
	var out []*tram.Message
	for _, msg := range msgs {
		if matcher(msg) {
			out = append(out, msg)
		}
	}
	return out
}
