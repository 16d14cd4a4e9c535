// Package msgpack provides a MessagePack serializer for go-tram.
//
// MessagePack produces smaller payloads than JSON and is a drop-in choice
// for command, reply and saga data encoding on high-throughput channels.
//
//	serializer := msgpack.NewSerializer()
//	serializer.RegisterAll(OrderShipped{})
//
//	manager, err := tram.NewSagaManager(def,
//		tram.WithSagaSerializer(serializer),
//		...)
package msgpack

import (
	"fmt"
	"reflect"

	"github.com/AshkanYarmoradi/go-tram"
	"github.com/vmihailenco/msgpack/v5"
)

// Ensure interface compliance at compile time
var (
	_ tram.Serializer        = (*Serializer)(nil)
	_ tram.TypedDeserializer = (*Serializer)(nil)
)

// Serializer is a MessagePack implementation of tram.Serializer.
type Serializer struct {
	registry *tram.TypeRegistry
}

// SerializerOption configures a Serializer.
type SerializerOption func(*Serializer)

// WithTypeRegistry shares registry with the serializer.
func WithTypeRegistry(registry *tram.TypeRegistry) SerializerOption {
	return func(s *Serializer) {
		if registry != nil {
			s.registry = registry
		}
	}
}

// NewSerializer creates a Serializer with an empty registry.
func NewSerializer(opts ...SerializerOption) *Serializer {
	s := &Serializer{registry: tram.NewTypeRegistry()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register maps typeName to the Go type of example.
func (s *Serializer) Register(typeName string, example interface{}) {
	s.registry.Register(typeName, example)
}

// RegisterAll registers examples under their logical type names.
func (s *Serializer) RegisterAll(examples ...interface{}) {
	s.registry.RegisterAll(examples...)
}

// Registry returns the underlying type registry.
func (s *Serializer) Registry() *tram.TypeRegistry {
	return s.registry
}

// Serialize converts v to MessagePack bytes.
func (s *Serializer) Serialize(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, tram.NewSerializationError("nil", "serialize", fmt.Errorf("value cannot be nil"))
	}

	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, tram.NewSerializationError(tram.TypeName(v), "serialize", err)
	}
	return data, nil
}

// DeserializeInto decodes MessagePack bytes into target.
func (s *Serializer) DeserializeInto(data []byte, target interface{}) error {
	if len(data) == 0 {
		return tram.NewSerializationError(tram.TypeName(target), "deserialize", fmt.Errorf("data cannot be empty"))
	}
	if err := msgpack.Unmarshal(data, target); err != nil {
		return tram.NewSerializationError(tram.TypeName(target), "deserialize", err)
	}
	return nil
}

// Deserialize returns a value of the type registered as typeName.
// Unregistered names decode to map[string]interface{}.
func (s *Serializer) Deserialize(data []byte, typeName string) (interface{}, error) {
	if len(data) == 0 {
		return nil, tram.NewSerializationError(typeName, "deserialize", fmt.Errorf("data cannot be empty"))
	}

	t, ok := s.registry.Lookup(typeName)
	if !ok {
		var result map[string]interface{}
		if err := msgpack.Unmarshal(data, &result); err != nil {
			return nil, tram.NewSerializationError(typeName, "deserialize", err)
		}
		return result, nil
	}

	ptr := reflect.New(t)
	if err := msgpack.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, tram.NewSerializationError(typeName, "deserialize", err)
	}
	return ptr.Elem().Interface(), nil
}
