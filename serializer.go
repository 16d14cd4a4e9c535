package tram

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// Serializer encodes command, reply and saga data payloads.
type Serializer interface {
	// Serialize converts a value to bytes.
	Serialize(v interface{}) ([]byte, error)

	// DeserializeInto decodes data into target, which must be a pointer.
	DeserializeInto(data []byte, target interface{}) error
}

// TypedDeserializer is implemented by serializers that can materialize
// a registered type from its logical name.
type TypedDeserializer interface {
	Deserialize(data []byte, typeName string) (interface{}, error)
}

// TypeRegistry maps logical type names to Go types.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewTypeRegistry creates a new empty TypeRegistry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		types: make(map[string]reflect.Type),
	}
}

// Register adds a mapping from typeName to the Go type of the example.
func (r *TypeRegistry) Register(typeName string, example interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := reflect.TypeOf(example)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.types[typeName] = t
}

// RegisterAll registers examples under their TypeName.
func (r *TypeRegistry) RegisterAll(examples ...interface{}) {
	for _, example := range examples {
		r.Register(TypeName(example), example)
	}
}

// Lookup returns the Go type for the given name.
func (r *TypeRegistry) Lookup(typeName string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.types[typeName]
	return t, ok
}

// RegisteredTypes returns all registered type names.
func (r *TypeRegistry) RegisteredTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.types))
	for t := range r.types {
		types = append(types, t)
	}
	return types
}

// Count returns the number of registered types.
func (r *TypeRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

// JSONSerializer is the default Serializer implementation using JSON encoding.
type JSONSerializer struct {
	registry *TypeRegistry
}

// NewJSONSerializer creates a new JSONSerializer with an empty registry.
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{
		registry: NewTypeRegistry(),
	}
}

// NewJSONSerializerWithRegistry creates a new JSONSerializer with the given registry.
func NewJSONSerializerWithRegistry(registry *TypeRegistry) *JSONSerializer {
	if registry == nil {
		registry = NewTypeRegistry()
	}
	return &JSONSerializer{registry: registry}
}

// Register adds a type to the serializer's registry.
func (s *JSONSerializer) Register(typeName string, example interface{}) {
	s.registry.Register(typeName, example)
}

// RegisterAll registers examples under their TypeName.
func (s *JSONSerializer) RegisterAll(examples ...interface{}) {
	s.registry.RegisterAll(examples...)
}

// Registry returns the underlying TypeRegistry.
func (s *JSONSerializer) Registry() *TypeRegistry {
	return s.registry
}

// Serialize converts a value to JSON bytes.
func (s *JSONSerializer) Serialize(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, NewSerializationError("nil", "serialize", fmt.Errorf("value cannot be nil"))
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, NewSerializationError(TypeName(v), "serialize", err)
	}
	return data, nil
}

// DeserializeInto decodes JSON bytes into target.
func (s *JSONSerializer) DeserializeInto(data []byte, target interface{}) error {
	if len(data) == 0 {
		return NewSerializationError(TypeName(target), "deserialize", fmt.Errorf("data cannot be empty"))
	}
	if err := json.Unmarshal(data, target); err != nil {
		return NewSerializationError(TypeName(target), "deserialize", err)
	}
	return nil
}

// Deserialize converts JSON bytes to a value of the registered type.
// Unregistered names decode to map[string]interface{}.
func (s *JSONSerializer) Deserialize(data []byte, typeName string) (interface{}, error) {
	if len(data) == 0 {
		return nil, NewSerializationError(typeName, "deserialize", fmt.Errorf("data cannot be empty"))
	}

	t, ok := s.registry.Lookup(typeName)
	if !ok {
		var result map[string]interface{}
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, NewSerializationError(typeName, "deserialize", err)
		}
		return result, nil
	}

	ptr := reflect.New(t)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, NewSerializationError(typeName, "deserialize", err)
	}
	return ptr.Elem().Interface(), nil
}
