// Package protobuf provides a Protocol Buffers serializer for go-tram messages.
//
// Commands and replies that implement proto.Message are encoded in the
// protobuf wire format. Everything else, including saga data and the generic
// Success and Failure replies, goes through a fallback serializer (JSON by default),
// so a saga can mix protobuf participants with plain Go state.
//
//	s := protobuf.NewSerializer()
//	s.MustRegister("ShipmentScheduled", &pb.ShipmentScheduled{})
//
//	manager, err := tram.NewSagaManager(def, tram.WithSagaSerializer(s), ...)
package protobuf

import (
	"errors"
	"reflect"

	"github.com/AshkanYarmoradi/go-tram"
	"google.golang.org/protobuf/proto"
)

// Ensure interface compliance at compile time
var (
	_ tram.Serializer        = (*Serializer)(nil)
	_ tram.TypedDeserializer = (*Serializer)(nil)
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrNotProtoMessage indicates a registered type does not implement proto.Message.
	ErrNotProtoMessage = errors.New("tram/protobuf: type must implement proto.Message")

	// ErrTypeNotRegistered indicates Deserialize was asked for an unknown type.
	ErrTypeNotRegistered = errors.New("tram/protobuf: type not registered")
)

var protoMessageType = reflect.TypeOf((*proto.Message)(nil)).Elem()

// =============================================================================
// Serializer
// =============================================================================

// SerializerOption configures the Serializer.
type SerializerOption func(*Serializer)

// WithFallback sets the serializer used for values that are not proto messages.
func WithFallback(fallback tram.Serializer) SerializerOption {
	return func(s *Serializer) {
		if fallback != nil {
			s.fallback = fallback
		}
	}
}

// Serializer implements tram.Serializer using Protocol Buffers.
type Serializer struct {
	registry *tram.TypeRegistry
	fallback tram.Serializer
}

// NewSerializer creates a serializer with an empty registry and a JSON fallback.
func NewSerializer(opts ...SerializerOption) *Serializer {
	s := &Serializer{
		registry: tram.NewTypeRegistry(),
		fallback: tram.NewJSONSerializer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a proto message type under typeName.
func (s *Serializer) Register(typeName string, example interface{}) error {
	t := reflect.TypeOf(example)
	if t == nil || !isProtoType(t) {
		return tram.NewSerializationError(typeName, "register", ErrNotProtoMessage)
	}
	s.registry.Register(typeName, example)
	return nil
}

// RegisterAll registers examples under their logical type names.
func (s *Serializer) RegisterAll(examples ...interface{}) error {
	for _, example := range examples {
		if err := s.Register(tram.TypeName(example), example); err != nil {
			return err
		}
	}
	return nil
}

// MustRegister registers a type and panics on error.
func (s *Serializer) MustRegister(typeName string, example interface{}) {
	if err := s.Register(typeName, example); err != nil {
		panic(err)
	}
}

// Registry returns the underlying type registry.
func (s *Serializer) Registry() *tram.TypeRegistry {
	return s.registry
}

// Serialize encodes proto messages in wire format and delegates anything else.
func (s *Serializer) Serialize(v interface{}) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return s.fallback.Serialize(v)
	}

	data, err := proto.Marshal(msg)
	if err != nil {
		return nil, tram.NewSerializationError(tram.TypeName(v), "serialize", err)
	}
	return data, nil
}

// DeserializeInto decodes data into target. target may be a proto message or
// a pointer to a proto message pointer, which is allocated when nil.
func (s *Serializer) DeserializeInto(data []byte, target interface{}) error {
	msg, ok := protoTarget(target)
	if !ok {
		return s.fallback.DeserializeInto(data, target)
	}

	if err := proto.Unmarshal(data, msg); err != nil {
		return tram.NewSerializationError(tram.TypeName(target), "deserialize", err)
	}
	return nil
}

// Deserialize returns a pointer to a new message of the type registered as typeName.
// Empty data is valid and yields a zero message.
func (s *Serializer) Deserialize(data []byte, typeName string) (interface{}, error) {
	t, ok := s.registry.Lookup(typeName)
	if !ok {
		return nil, tram.NewSerializationError(typeName, "deserialize", ErrTypeNotRegistered)
	}

	msg, ok := reflect.New(t).Interface().(proto.Message)
	if !ok {
		return nil, tram.NewSerializationError(typeName, "deserialize", ErrNotProtoMessage)
	}
	if err := proto.Unmarshal(data, msg); err != nil {
		return nil, tram.NewSerializationError(typeName, "deserialize", err)
	}
	return msg, nil
}

func isProtoType(t reflect.Type) bool {
	if t.Implements(protoMessageType) {
		return true
	}
	return t.Kind() != reflect.Ptr && reflect.PointerTo(t).Implements(protoMessageType)
}

func protoTarget(target interface{}) (proto.Message, bool) {
	if msg, ok := target.(proto.Message); ok {
		return msg, true
	}

	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return nil, false
	}
	elem := v.Elem()
	if elem.Kind() != reflect.Ptr || !elem.Type().Implements(protoMessageType) {
		return nil, false
	}
	if elem.IsNil() {
		elem.Set(reflect.New(elem.Type().Elem()))
	}
	return elem.Interface().(proto.Message), true
}
