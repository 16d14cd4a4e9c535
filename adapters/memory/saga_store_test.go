package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/AshkanYarmoradi/go-tram/adapters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterIDs struct{ n int }

func (c *counterIDs) GenerateID() string {
	c.n++
	return fmt.Sprintf("saga-%d", c.n)
}

func newInstance() *adapters.SagaInstance {
	return &adapters.SagaInstance{
		SagaType:  "CreateOrderSaga",
		StateName: `{"currentlyExecuting":0}`,
		SerializedData: adapters.SerializedSagaData{
			Type: "CreateOrderData",
			Data: []byte(`{"orderId":"42"}`),
		},
	}
}

func TestNewSagaInstanceRepository(t *testing.T) {
	repo := NewSagaInstanceRepository()

	assert.NotNil(t, repo)
	assert.Equal(t, 0, repo.Count())
}

func TestSagaInstanceRepository_Save_AssignsID(t *testing.T) {
	repo := NewSagaInstanceRepository(WithIDGenerator(&counterIDs{}))
	ctx := context.Background()

	instance := newInstance()
	err := repo.Save(ctx, instance)

	require.NoError(t, err)
	assert.Equal(t, "saga-1", instance.ID)
	assert.Equal(t, int64(1), instance.Version)
	assert.False(t, instance.CreatedAt.IsZero())
	assert.Equal(t, 1, repo.Count())
}

func TestSagaInstanceRepository_Save_DefaultIDGenerator(t *testing.T) {
	repo := NewSagaInstanceRepository()
	ctx := context.Background()

	a, b := newInstance(), newInstance()
	require.NoError(t, repo.Save(ctx, a))
	require.NoError(t, repo.Save(ctx, b))

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestSagaInstanceRepository_Save_Errors(t *testing.T) {
	repo := NewSagaInstanceRepository()
	ctx := context.Background()

	t.Run("nil instance", func(t *testing.T) {
		assert.ErrorIs(t, repo.Save(ctx, nil), adapters.ErrNilInstance)
	})

	t.Run("missing saga type", func(t *testing.T) {
		assert.ErrorIs(t, repo.Save(ctx, &adapters.SagaInstance{}), adapters.ErrEmptySagaType)
	})

	t.Run("duplicate ID", func(t *testing.T) {
		first := newInstance()
		first.ID = "dup"
		require.NoError(t, repo.Save(ctx, first))

		second := newInstance()
		second.ID = "dup"
		assert.ErrorIs(t, repo.Save(ctx, second), adapters.ErrConcurrencyConflict)
	})
}

func TestSagaInstanceRepository_Find(t *testing.T) {
	repo := NewSagaInstanceRepository()
	ctx := context.Background()

	instance := newInstance()
	require.NoError(t, repo.Save(ctx, instance))

	t.Run("found", func(t *testing.T) {
		found, err := repo.Find(ctx, "CreateOrderSaga", instance.ID)
		require.NoError(t, err)
		assert.Equal(t, instance.ID, found.ID)
		assert.Equal(t, instance.SerializedData, found.SerializedData)
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := repo.Find(ctx, "OtherSaga", instance.ID)
		assert.ErrorIs(t, err, adapters.ErrSagaInstanceNotFound)

		var notFound *adapters.SagaInstanceNotFoundError
		require.True(t, errors.As(err, &notFound))
		assert.Equal(t, "OtherSaga", notFound.SagaType)
	})

	t.Run("returns a copy", func(t *testing.T) {
		found, err := repo.Find(ctx, "CreateOrderSaga", instance.ID)
		require.NoError(t, err)
		found.SerializedData.Data[0] = 'X'
		found.EndState = true

		again, err := repo.Find(ctx, "CreateOrderSaga", instance.ID)
		require.NoError(t, err)
		assert.Equal(t, `{"orderId":"42"}`, string(again.SerializedData.Data))
		assert.False(t, again.EndState)
	})
}

func TestSagaInstanceRepository_Update(t *testing.T) {
	repo := NewSagaInstanceRepository()
	ctx := context.Background()

	instance := newInstance()
	require.NoError(t, repo.Save(ctx, instance))

	instance.EndState = true
	instance.LastRequestID = "msg-7"
	require.NoError(t, repo.Update(ctx, instance))
	assert.Equal(t, int64(2), instance.Version)

	found, err := repo.Find(ctx, instance.SagaType, instance.ID)
	require.NoError(t, err)
	assert.True(t, found.EndState)
	assert.Equal(t, "msg-7", found.LastRequestID)
}

func TestSagaInstanceRepository_Update_ConcurrencyConflict(t *testing.T) {
	repo := NewSagaInstanceRepository()
	ctx := context.Background()

	instance := newInstance()
	require.NoError(t, repo.Save(ctx, instance))

	stale, err := repo.Find(ctx, instance.SagaType, instance.ID)
	require.NoError(t, err)

	require.NoError(t, repo.Update(ctx, instance))

	err = repo.Update(ctx, stale)
	assert.ErrorIs(t, err, adapters.ErrConcurrencyConflict)

	var conflict *adapters.ConcurrencyError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, int64(1), conflict.ExpectedVersion)
	assert.Equal(t, int64(2), conflict.ActualVersion)
}

func TestSagaInstanceRepository_Update_Errors(t *testing.T) {
	repo := NewSagaInstanceRepository()
	ctx := context.Background()

	assert.ErrorIs(t, repo.Update(ctx, nil), adapters.ErrNilInstance)
	assert.ErrorIs(t, repo.Update(ctx, &adapters.SagaInstance{SagaType: "S"}), adapters.ErrEmptySagaID)
	assert.ErrorIs(t, repo.Update(ctx, &adapters.SagaInstance{SagaType: "S", ID: "missing"}), adapters.ErrSagaInstanceNotFound)
}

func TestSagaInstanceRepository_FindByType(t *testing.T) {
	repo := NewSagaInstanceRepository(WithIDGenerator(&counterIDs{}))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Save(ctx, newInstance()))
	}
	other := newInstance()
	other.SagaType = "CancelOrderSaga"
	require.NoError(t, repo.Save(ctx, other))

	found, err := repo.FindByType(ctx, "CreateOrderSaga")
	require.NoError(t, err)
	assert.Len(t, found, 3)
}

func TestSagaInstanceRepository_Closed(t *testing.T) {
	repo := NewSagaInstanceRepository()
	ctx := context.Background()

	require.NoError(t, repo.Ping(ctx))
	require.NoError(t, repo.Close())

	assert.ErrorIs(t, repo.Ping(ctx), adapters.ErrRepositoryClosed)
	assert.ErrorIs(t, repo.Save(ctx, newInstance()), adapters.ErrRepositoryClosed)
	_, err := repo.Find(ctx, "CreateOrderSaga", "x")
	assert.ErrorIs(t, err, adapters.ErrRepositoryClosed)
}

func TestSagaInstanceRepository_CancelledContext(t *testing.T) {
	repo := NewSagaInstanceRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, repo.Save(ctx, newInstance()), context.Canceled)
}

func TestSagaInstanceRepository_Clear(t *testing.T) {
	repo := NewSagaInstanceRepository()
	require.NoError(t, repo.Save(context.Background(), newInstance()))

	repo.Clear()

	assert.Equal(t, 0, repo.Count())
}
