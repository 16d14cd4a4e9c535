package msgpack

import (
	"testing"

	"github.com/AshkanYarmoradi/go-tram"
	"github.com/AshkanYarmoradi/go-tram/testing/sagatest"
	"github.com/AshkanYarmoradi/go-tram/testing/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reserveCredit struct {
	CustomerID string  `msgpack:"customer_id"`
	Amount     float64 `msgpack:"amount"`
}

type creditReserved struct {
	ReservationID string            `msgpack:"reservation_id"`
	Limits        map[string]int    `msgpack:"limits"`
	Tags          []string          `msgpack:"tags"`
	Nested        *creditReservedAt `msgpack:"nested"`
}

type creditReservedAt struct {
	Region string `msgpack:"region"`
}

func (creditReserved) ReplyType() string { return "CreditReserved" }

func TestSerializer_Registry(t *testing.T) {
	s := NewSerializer()
	assert.Equal(t, 0, s.Registry().Count())

	s.Register("ReserveCredit", &reserveCredit{})
	s.RegisterAll(creditReserved{})

	_, ok := s.Registry().Lookup("ReserveCredit")
	assert.True(t, ok)
	_, ok = s.Registry().Lookup("CreditReserved")
	assert.True(t, ok)
}

func TestSerializer_SharedRegistry(t *testing.T) {
	registry := tram.NewTypeRegistry()
	registry.RegisterAll(creditReserved{})

	s := NewSerializer(WithTypeRegistry(registry), WithTypeRegistry(nil))

	assert.Same(t, registry, s.Registry())
}

func TestSerializer_RoundTrip(t *testing.T) {
	s := NewSerializer()
	in := creditReserved{
		ReservationID: "r-1",
		Limits:        map[string]int{"daily": 100},
		Tags:          []string{"vip"},
		Nested:        &creditReservedAt{Region: "eu"},
	}

	data, err := s.Serialize(in)
	require.NoError(t, err)

	var out creditReserved
	require.NoError(t, s.DeserializeInto(data, &out))
	assert.Equal(t, in, out)
}

func TestSerializer_Deserialize(t *testing.T) {
	s := NewSerializer()
	s.RegisterAll(reserveCredit{})
	data, err := s.Serialize(reserveCredit{CustomerID: "c-1", Amount: 10})
	require.NoError(t, err)

	t.Run("registered type", func(t *testing.T) {
		v, err := s.Deserialize(data, "reserveCredit")
		require.NoError(t, err)
		assert.Equal(t, reserveCredit{CustomerID: "c-1", Amount: 10}, v)
	})

	t.Run("unregistered type falls back to map", func(t *testing.T) {
		v, err := s.Deserialize(data, "Unknown")
		require.NoError(t, err)
		m, ok := v.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "c-1", m["customer_id"])
	})
}

func TestSerializer_Errors(t *testing.T) {
	s := NewSerializer()
	s.RegisterAll(reserveCredit{})

	_, err := s.Serialize(nil)
	assert.ErrorIs(t, err, tram.ErrSerializationFailed)

	_, err = s.Serialize(make(chan int))
	assert.ErrorIs(t, err, tram.ErrSerializationFailed)

	var target reserveCredit
	assert.ErrorIs(t, s.DeserializeInto(nil, &target), tram.ErrSerializationFailed)
	assert.ErrorIs(t, s.DeserializeInto([]byte{0xc1}, &target), tram.ErrSerializationFailed)

	_, err = s.Deserialize(nil, "reserveCredit")
	assert.ErrorIs(t, err, tram.ErrSerializationFailed)
	_, err = s.Deserialize([]byte{0xc1}, "reserveCredit")
	assert.ErrorIs(t, err, tram.ErrSerializationFailed)
	_, err = s.Deserialize([]byte{0xc1}, "Unknown")
	assert.ErrorIs(t, err, tram.ErrSerializationFailed)
}

func TestSerializer_DrivesSaga(t *testing.T) {
	sagatest.Given[testutil.OrderSagaData](t, sagatest.WithSerializer(NewSerializer())).
		Saga(testutil.CreateOrderSaga(), testutil.NewOrderSagaData("42")).
		Expect().Command(testutil.CreateOrder{}).To(testutil.OrderChannel).
		AndGiven().SuccessReply().
		Expect().Command(testutil.ShipOrder{}).To(testutil.ShippingChannel).
		AndGiven().SuccessReplyWith(testutil.OrderShipped{TrackingNumber: "TRK-9"}).
		ExpectCompletedSuccessfully().
		ExpectSagaData(func(t sagatest.TB, data testutil.OrderSagaData) {
			assert.Equal(t, "TRK-9", data.TrackingNumber)
		})
}
