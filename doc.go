// Package tram provides command/reply saga orchestration for Go services.
//
// A saga is a sequence of steps. Each step either runs a local action or sends a
// command to a participant service and waits for its reply. When a participant
// replies with a failure, the saga walks back through the completed steps and
// sends their compensating commands.
//
// Message headers follow the Eventuate Tram conventions, so a tram saga can
// orchestrate participants written against Eventuate Tram and vice versa.
//
// # Defining a Saga
//
//	type CreateOrderData struct {
//	    OrderID    string `json:"orderId"`
//	    CustomerID string `json:"customerId"`
//	}
//
//	def, err := tram.NewSagaDefinition[CreateOrderData]("CreateOrderSaga").
//	    Step().
//	        WithCompensation(func(d *CreateOrderData) tram.CommandWithDestination {
//	            return tram.CommandTo("order-service", RejectOrder{OrderID: d.OrderID})
//	        }).
//	    Step().
//	        InvokeParticipant(func(d *CreateOrderData) tram.CommandWithDestination {
//	            return tram.CommandTo("customer-service", ReserveCredit{CustomerID: d.CustomerID})
//	        }).
//	    Step().
//	        InvokeParticipant(func(d *CreateOrderData) tram.CommandWithDestination {
//	            return tram.CommandTo("order-service", ApproveOrder{OrderID: d.OrderID})
//	        }).
//	    Build()
//
// # Running a Saga
//
// A SagaManager persists instances in a SagaInstanceRepository and sends
// commands through a MessageProducer:
//
//	manager, err := tram.NewSagaManager(def,
//	    tram.WithSagaRepository(memory.NewSagaInstanceRepository()),
//	    tram.WithSagaProducer(producer),
//	    tram.WithSagaIDGenerator(tram.NewUUIDGenerator()),
//	)
//	instance, err := manager.Create(ctx, &CreateOrderData{OrderID: "42"})
//
// Replies are fed back through manager.HandleMessage, usually by a transport
// consumer subscribed to manager.ReplyChannel().
//
// # Testing a Saga
//
// Package testing/sagatest drives a SagaManager synchronously inside a test:
//
//	sagatest.Given[CreateOrderData](t).
//	    Saga(def, CreateOrderData{OrderID: "42"}).
//	    Expect().Command(ReserveCredit{}).To("customer-service").
//	    AndGiven().SuccessReply().
//	    Expect().Command(ApproveOrder{}).To("order-service")
package tram

// Version returns the library version.
func Version() string {
	return "0.4.0"
}
