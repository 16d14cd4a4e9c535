package testutil

import (
	"context"
	"errors"

	"github.com/AshkanYarmoradi/go-tram"
)

// =============================================================================
// Order saga commands and replies
// =============================================================================

// Channels used by the order saga fixture.
const (
	OrderChannel    = "order-channel"
	ShippingChannel = "shipping-channel"
)

// CreateOrder asks the order service to create an order.
type CreateOrder struct {
	OrderID    string  `json:"orderId"`
	CustomerID string  `json:"customerId"`
	Amount     float64 `json:"amount"`
}

// Validate implements tram.Validator.
func (c CreateOrder) Validate() error {
	if c.OrderID == "" {
		return errors.New("orderId is required")
	}
	return nil
}

// CancelOrder undoes CreateOrder.
type CancelOrder struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

// ShipOrder asks the shipping service to ship an order.
type ShipOrder struct {
	OrderID string `json:"orderId"`
}

// OrderShipped is the successful reply to ShipOrder.
type OrderShipped struct {
	TrackingNumber string `json:"trackingNumber"`
}

// ReplyType implements tram.NamedReply.
func (OrderShipped) ReplyType() string { return "OrderShipped" }

// =============================================================================
// Order saga
// =============================================================================

// Order saga states recorded in OrderSagaData.Status.
const (
	OrderStatusPending   = "PENDING"
	OrderStatusCompleted = "COMPLETED"
	OrderStatusCancelled = "CANCELLED"
)

// OrderSagaData is the data carried by the order saga.
type OrderSagaData struct {
	OrderID        string  `json:"orderId"`
	CustomerID     string  `json:"customerId"`
	Amount         float64 `json:"amount"`
	TrackingNumber string  `json:"trackingNumber,omitempty"`
	Status         string  `json:"status"`
}

// CreateOrderSagaType is the saga type of CreateOrderSaga.
const CreateOrderSagaType = "CreateOrderSaga"

// CreateOrderSaga returns a three step saga:
//
//  1. CreateOrder to OrderChannel, compensated by CancelOrder
//  2. ShipOrder to ShippingChannel, recording the OrderShipped tracking number
//  3. mark the order COMPLETED
//
// Rolling back past step 1 marks the order CANCELLED.
func CreateOrderSaga() *tram.SagaDefinition[OrderSagaData] {
	return tram.NewSagaDefinition[OrderSagaData](CreateOrderSagaType).
		Step().
		WithLocalCompensation(func(ctx context.Context, d *OrderSagaData) error {
			d.Status = OrderStatusCancelled
			return nil
		}).
		Step().
		InvokeParticipant(func(d *OrderSagaData) tram.CommandWithDestination {
			return tram.CommandTo(OrderChannel, CreateOrder{OrderID: d.OrderID, CustomerID: d.CustomerID, Amount: d.Amount})
		}).
		WithCompensation(func(d *OrderSagaData) tram.CommandWithDestination {
			return tram.CommandTo(OrderChannel, CancelOrder{OrderID: d.OrderID, Reason: "shipping failed"})
		}).
		Step().
		InvokeParticipant(func(d *OrderSagaData) tram.CommandWithDestination {
			return tram.CommandTo(ShippingChannel, ShipOrder{OrderID: d.OrderID})
		}).
		OnReply("OrderShipped", tram.HandleReply(func(ctx context.Context, d *OrderSagaData, r OrderShipped) error {
			d.TrackingNumber = r.TrackingNumber
			return nil
		})).
		Step().
		InvokeLocal(func(ctx context.Context, d *OrderSagaData) error {
			d.Status = OrderStatusCompleted
			return nil
		}).
		MustBuild()
}

// NewOrderSagaData returns pending saga data for orderID.
func NewOrderSagaData(orderID string) OrderSagaData {
	return OrderSagaData{
		OrderID:    orderID,
		CustomerID: "customer-1",
		Amount:     99.95,
		Status:     OrderStatusPending,
	}
}
