package sagatest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/AshkanYarmoradi/go-tram"
	"github.com/AshkanYarmoradi/go-tram/testing/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shippingRejected struct {
	Reason string `json:"reason"`
}

// =============================================================================
// Scenarios
// =============================================================================

func TestSagaTest_CreateThenShip(t *testing.T) {
	Given[testutil.OrderSagaData](t).
		Saga(testutil.CreateOrderSaga(), testutil.NewOrderSagaData("42")).
		Expect().Command(testutil.CreateOrder{}).To(testutil.OrderChannel).
		AndGiven().SuccessReply().
		Expect().Command(testutil.ShipOrder{}).To(testutil.ShippingChannel)
}

func TestSagaTest_RunsToCompletion(t *testing.T) {
	Given[testutil.OrderSagaData](t).
		Saga(testutil.CreateOrderSaga(), testutil.NewOrderSagaData("42")).
		Expect().Command(testutil.CreateOrder{}).To(testutil.OrderChannel).
		AndGiven().SuccessReply().
		Expect().Command(testutil.ShipOrder{}).To(testutil.ShippingChannel).
		AndGiven().SuccessReplyWith(testutil.OrderShipped{TrackingNumber: "TRK-1"}).
		ExpectNoCommand().
		ExpectCompletedSuccessfully().
		ExpectSagaData(func(t TB, data testutil.OrderSagaData) {
			assert.Equal(t, testutil.OrderStatusCompleted, data.Status)
			assert.Equal(t, "TRK-1", data.TrackingNumber)
		})
}

func TestSagaTest_FailureAfterCreateRollsBack(t *testing.T) {
	Given[testutil.OrderSagaData](t).
		Saga(testutil.CreateOrderSaga(), testutil.NewOrderSagaData("42")).
		Expect().Command(testutil.CreateOrder{}).To(testutil.OrderChannel).
		AndGiven().FailureReply().
		ExpectNoCommand().
		ExpectRolledBack().
		ExpectSagaData(func(t TB, data testutil.OrderSagaData) {
			assert.Equal(t, testutil.OrderStatusCancelled, data.Status)
		})
}

func TestSagaTest_ShippingFailureCompensates(t *testing.T) {
	Given[testutil.OrderSagaData](t).
		Saga(testutil.CreateOrderSaga(), testutil.NewOrderSagaData("42")).
		Expect().Command(testutil.CreateOrder{}).To(testutil.OrderChannel).
		AndGiven().SuccessReply().
		Expect().Command(testutil.ShipOrder{}).To(testutil.ShippingChannel).
		AndGiven().FailureReplyWith(shippingRejected{Reason: "no courier"}).
		Expect().Command(testutil.CancelOrder{}).To(testutil.OrderChannel).
		AndGiven().SuccessReply().
		ExpectNoCommand().
		ExpectRolledBack()
}

func TestSagaTest_DeterministicIDs(t *testing.T) {
	st := Given[testutil.OrderSagaData](t, WithIDGenerator(SequenceIDs("id"))).
		Saga(testutil.CreateOrderSaga(), testutil.NewOrderSagaData("42"))

	instance := st.Instance()
	require.NotNil(t, instance)
	assert.Equal(t, "id-1", instance.ID)
	assert.Equal(t, "id-2", instance.LastRequestID)

	st.Expect().Command(testutil.CreateOrder{}).To(testutil.OrderChannel)
	assert.Equal(t, "id-2", st.LastCommand().ID())
	assert.Equal(t, "id-1", st.LastCommand().Header(tram.HeaderSagaID))
}

func TestSagaTest_WithOptions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := Given[testutil.OrderSagaData](t,
		WithContext(ctx),
		WithSerializer(tram.NewJSONSerializer()),
		WithLogger(tram.NopLogger()),
	).Saga(testutil.CreateOrderSaga(), testutil.NewOrderSagaData("42"))

	assert.Equal(t, 1, st.Sink().Len())
	assert.NotNil(t, st.Repository().Instance())
}

// =============================================================================
// Correlation round-trip
// =============================================================================

func TestSagaTest_ReplyCarriesCorrelationHeaders(t *testing.T) {
	st := Given[testutil.OrderSagaData](t).
		Saga(testutil.CreateOrderSaga(), testutil.NewOrderSagaData("42")).
		Expect().Command(testutil.CreateOrder{}).To(testutil.OrderChannel)

	command := st.LastCommand()
	reply, err := tram.NewReplyMessage(command, tram.ReplyOutcomeSuccess, tram.Success{}, nil)
	require.NoError(t, err)

	checked := 0
	for key, value := range command.Headers {
		if !strings.HasPrefix(key, tram.CommandHeaderPrefix) {
			continue
		}
		checked++
		assert.Equal(t, value, reply.Header(tram.InReply(key)), "header %s", key)
	}
	assert.GreaterOrEqual(t, checked, 4)
	assert.Equal(t, command.ID(), reply.Header(tram.HeaderInReplyTo))
}

// =============================================================================
// Failure reporting
// =============================================================================

func TestSagaTest_ToTwiceFails(t *testing.T) {
	mt := testutil.RunWithMockT(func(m *testutil.MockT) {
		Given[testutil.OrderSagaData](m).
			Saga(testutil.CreateOrderSaga(), testutil.NewOrderSagaData("42")).
			Expect().Command(testutil.CreateOrder{}).To(testutil.OrderChannel).
			Expect().Command(testutil.CreateOrder{}).To(testutil.OrderChannel)
	})

	assert.True(t, mt.Fatal_)
	assert.Contains(t, mt.Message, "Expected exactly 1 command to be sent, got 0")
}

func TestSagaTest_WrongChannelFails(t *testing.T) {
	mt := testutil.RunWithMockT(func(m *testutil.MockT) {
		Given[testutil.OrderSagaData](m).
			Saga(testutil.CreateOrderSaga(), testutil.NewOrderSagaData("42")).
			Expect().Command(testutil.CreateOrder{}).To(testutil.ShippingChannel)
	})

	assert.True(t, mt.Fatal_)
	assert.Contains(t, mt.Message, `"shipping-channel"`)
	assert.Contains(t, mt.Message, `"order-channel"`)
}

func TestSagaTest_WrongCommandTypeFails(t *testing.T) {
	mt := testutil.RunWithMockT(func(m *testutil.MockT) {
		Given[testutil.OrderSagaData](m).
			Saga(testutil.CreateOrderSaga(), testutil.NewOrderSagaData("42")).
			Expect().Command(testutil.ShipOrder{}).To(testutil.OrderChannel)
	})

	assert.True(t, mt.Fatal_)
	assert.Contains(t, mt.Message, `Expected command of type "ShipOrder", got "CreateOrder"`)
}

func TestSagaTest_ToWithoutCommandFails(t *testing.T) {
	mt := testutil.RunWithMockT(func(m *testutil.MockT) {
		Given[testutil.OrderSagaData](m).
			Saga(testutil.CreateOrderSaga(), testutil.NewOrderSagaData("42")).
			Expect().To(testutil.OrderChannel)
	})

	assert.True(t, mt.Fatal_)
	assert.Contains(t, mt.Message, "without a preceding Command()")
}

func TestSagaTest_ReplyWithoutAssertedCommandFails(t *testing.T) {
	mt := testutil.RunWithMockT(func(m *testutil.MockT) {
		Given[testutil.OrderSagaData](m).
			Saga(testutil.CreateOrderSaga(), testutil.NewOrderSagaData("42")).
			SuccessReply()
	})

	assert.True(t, mt.Fatal_)
	assert.Contains(t, mt.Message, "no command has been asserted")
}

func TestSagaTest_ReplyBeforeSagaFails(t *testing.T) {
	mt := testutil.RunWithMockT(func(m *testutil.MockT) {
		Given[testutil.OrderSagaData](m).FailureReply()
	})

	assert.True(t, mt.Fatal_)
	assert.Contains(t, mt.Message, "no saga started")
}

func TestSagaTest_StartFailureIsFatal(t *testing.T) {
	mt := testutil.RunWithMockT(func(m *testutil.MockT) {
		Given[testutil.OrderSagaData](m).
			Saga(testutil.CreateOrderSaga(), testutil.NewOrderSagaData(""))
	})

	assert.True(t, mt.Fatal_)
	assert.Contains(t, mt.Message, "Failed to start saga CreateOrderSaga")
}

func TestSagaTest_ReplyHandlerErrorIsFatal(t *testing.T) {
	def := tram.NewSagaDefinition[testutil.OrderSagaData]("Fragile").
		InvokeParticipant(func(d *testutil.OrderSagaData) tram.CommandWithDestination {
			return tram.CommandTo(testutil.ShippingChannel, testutil.ShipOrder{OrderID: d.OrderID})
		}).
		OnReply("OrderShipped", func(ctx context.Context, d *testutil.OrderSagaData, r *tram.SagaReply) error {
			return errors.New("tracking service down")
		}).
		MustBuild()

	mt := testutil.RunWithMockT(func(m *testutil.MockT) {
		Given[testutil.OrderSagaData](m).
			Saga(def, testutil.NewOrderSagaData("42")).
			Expect().Command(testutil.ShipOrder{}).To(testutil.ShippingChannel).
			AndGiven().SuccessReplyWith(testutil.OrderShipped{TrackingNumber: "T"})
	})

	assert.True(t, mt.Fatal_)
	assert.Contains(t, mt.Message, "tracking service down")
}

func TestSagaTest_UnexpectedCommandReported(t *testing.T) {
	mt := testutil.RunWithMockT(func(m *testutil.MockT) {
		Given[testutil.OrderSagaData](m).
			Saga(testutil.CreateOrderSaga(), testutil.NewOrderSagaData("42")).
			ExpectNoCommand()
	})

	assert.True(t, mt.Failed())
	assert.False(t, mt.Fatal_)
	assert.Contains(t, mt.Message, "order-channel:CreateOrder")
}

func TestSagaTest_OutcomeAssertionsReportState(t *testing.T) {
	mt := testutil.RunWithMockT(func(m *testutil.MockT) {
		Given[testutil.OrderSagaData](m).
			Saga(testutil.CreateOrderSaga(), testutil.NewOrderSagaData("42")).
			ExpectCompletedSuccessfully().
			ExpectRolledBack()
	})

	assert.False(t, mt.Fatal_)
	require.Len(t, mt.Messages, 2)
	assert.Contains(t, mt.Messages[0], "complete successfully")
	assert.Contains(t, mt.Messages[1], "rolled back")
}

func TestSagaTest_RolledBackRejectsFailedCompensation(t *testing.T) {
	var st *SagaTest[testutil.OrderSagaData]
	mt := testutil.RunWithMockT(func(m *testutil.MockT) {
		st = Given[testutil.OrderSagaData](m)
		st.Saga(testutil.CreateOrderSaga(), testutil.NewOrderSagaData("42")).
			Expect().Command(testutil.CreateOrder{}).To(testutil.OrderChannel).
			AndGiven().SuccessReply().
			Expect().Command(testutil.ShipOrder{}).To(testutil.ShippingChannel).
			AndGiven().FailureReply().
			Expect().Command(testutil.CancelOrder{}).To(testutil.OrderChannel).
			AndGiven().FailureReply()
	})

	require.True(t, mt.Fatal_, "a failed compensation is reported by the reply")
	assert.Contains(t, mt.Message, "compensation failed")

	instance := st.Instance()
	assert.True(t, instance.EndState)
	assert.True(t, instance.Compensating)
	assert.True(t, instance.Failed)

	st.ExpectRolledBack()
	assert.Contains(t, mt.Message, "failed=true")
}

func TestSagaTest_AssertionsWithoutSagaFail(t *testing.T) {
	mt := testutil.RunWithMockT(func(m *testutil.MockT) {
		Given[testutil.OrderSagaData](m).ExpectSagaData(func(t TB, data testutil.OrderSagaData) {})
	})

	assert.True(t, mt.Fatal_)
	assert.Contains(t, mt.Message, "call Saga() first")
}
