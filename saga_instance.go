package tram

import "github.com/AshkanYarmoradi/go-tram/adapters"

// SagaInstance is the persisted record of a saga.
type SagaInstance = adapters.SagaInstance

// SerializedSagaData is the persisted form of saga data.
type SerializedSagaData = adapters.SerializedSagaData

// SagaInstanceRepository persists saga instances.
type SagaInstanceRepository = adapters.SagaInstanceRepository
