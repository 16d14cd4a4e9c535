package adapters

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrencyError(t *testing.T) {
	err := NewConcurrencyError("s-1", 2, 3)

	assert.Equal(t, `tram: concurrency conflict on saga "s-1": expected version 2, got 3`, err.Error())
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.NotErrorIs(t, err, ErrSagaInstanceNotFound)
	assert.Equal(t, int64(2), err.ExpectedVersion)
	assert.Equal(t, int64(3), err.ActualVersion)
}

func TestCopySagaInstance(t *testing.T) {
	assert.Nil(t, CopySagaInstance(nil))

	original := &SagaInstance{
		ID:             "s-1",
		SagaType:       "CreateOrderSaga",
		StateName:      "1.false",
		SerializedData: SerializedSagaData{Type: "Data", Data: []byte(`{"a":1}`)},
		Version:        4,
	}
	copied := CopySagaInstance(original)
	require.NotSame(t, original, copied)
	assert.Equal(t, original, copied)

	copied.SerializedData.Data[0] = 'X'
	copied.StateName = "2.false"
	assert.Equal(t, `{"a":1}`, string(original.SerializedData.Data))
	assert.Equal(t, "1.false", original.StateName)

	empty := CopySagaInstance(&SagaInstance{ID: "s-2"})
	assert.Nil(t, empty.SerializedData.Data)
}

func TestValidateForUpdate(t *testing.T) {
	tests := []struct {
		name     string
		instance *SagaInstance
		err      error
	}{
		{"nil", nil, ErrNilInstance},
		{"no type", &SagaInstance{ID: "s-1"}, ErrEmptySagaType},
		{"no id", &SagaInstance{SagaType: "CreateOrderSaga"}, ErrEmptySagaID},
		{"valid", &SagaInstance{ID: "s-1", SagaType: "CreateOrderSaga"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateForUpdate(tt.instance)
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestCopyOutboxMessage(t *testing.T) {
	assert.Nil(t, CopyOutboxMessage(nil))

	attempted := time.Now()
	original := &OutboxMessage{
		ID:            "m-1",
		Destination:   "customer-service",
		Headers:       map[string]string{"ID": "m-1"},
		Payload:       []byte("{}"),
		Status:        OutboxFailed,
		Attempts:      2,
		LastAttemptAt: &attempted,
	}
	copied := CopyOutboxMessage(original)
	assert.Equal(t, original, copied)

	copied.Headers["ID"] = "changed"
	copied.Payload[0] = '['
	*copied.LastAttemptAt = attempted.Add(time.Hour)

	assert.Equal(t, "m-1", original.Headers["ID"])
	assert.Equal(t, "{}", string(original.Payload))
	assert.True(t, original.LastAttemptAt.Equal(attempted))
	assert.Nil(t, copied.ProcessedAt)
}
