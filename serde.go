package tram

import (
	"context"
	"fmt"
)

// SerializeSagaData encodes saga data for storage in a SagaInstance.
func SerializeSagaData(serializer Serializer, data interface{}) (SerializedSagaData, error) {
	if data == nil {
		return SerializedSagaData{}, NewSerializationError("nil", "serialize", fmt.Errorf("saga data cannot be nil"))
	}
	b, err := serializer.Serialize(data)
	if err != nil {
		return SerializedSagaData{}, err
	}
	return SerializedSagaData{Type: TypeName(data), Data: b}, nil
}

// DeserializeSagaData decodes the saga data stored in a SagaInstance.
func DeserializeSagaData[D any](serializer Serializer, sd SerializedSagaData) (*D, error) {
	data := new(D)
	if len(sd.Data) == 0 {
		return data, nil
	}
	if err := serializer.DeserializeInto(sd.Data, data); err != nil {
		return nil, err
	}
	return data, nil
}

// SagaInstanceWithData pairs a stored instance with its decoded data.
type SagaInstanceWithData[D any] struct {
	Instance *SagaInstance
	Data     *D
}

// FindWithData loads an instance and decodes its data.
func FindWithData[D any](ctx context.Context, repo SagaInstanceRepository, serializer Serializer, sagaType, sagaID string) (*SagaInstanceWithData[D], error) {
	instance, err := repo.Find(ctx, sagaType, sagaID)
	if err != nil {
		return nil, err
	}
	data, err := DeserializeSagaData[D](serializer, instance.SerializedData)
	if err != nil {
		return nil, fmt.Errorf("tram: failed to decode data of saga %s/%s: %w", sagaType, sagaID, err)
	}
	return &SagaInstanceWithData[D]{Instance: instance, Data: data}, nil
}
