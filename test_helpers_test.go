package tram

// test_helpers_test.go contains shared test doubles and utilities for tram package tests.

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// =============================================================================
// Shared Test Logger
// =============================================================================

// testLogger is a shared test implementation of Logger.
type testLogger struct {
	mu        sync.Mutex
	debugLogs []string
	infoLogs  []string
	warnLogs  []string
	errorLogs []string
}

func newTestLogger() *testLogger {
	return &testLogger{}
}

func (l *testLogger) Debug(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugLogs = append(l.debugLogs, msg)
}

func (l *testLogger) Info(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infoLogs = append(l.infoLogs, msg)
}

func (l *testLogger) Warn(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnLogs = append(l.warnLogs, msg)
}

func (l *testLogger) Error(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorLogs = append(l.errorLogs, msg)
}

// =============================================================================
// Shared Test Producer
// =============================================================================

type sentMessage struct {
	destination string
	msg         *Message
}

// testProducer records sent messages and assigns sequential IDs.
type testProducer struct {
	mu      sync.Mutex
	sent    []sentMessage
	next    int
	sendErr error
}

func newTestProducer() *testProducer {
	return &testProducer{}
}

func (p *testProducer) Send(ctx context.Context, destination string, msg *Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return p.sendErr
	}
	p.next++
	msg.SetHeader(HeaderID, fmt.Sprintf("msg-%d", p.next))
	p.sent = append(p.sent, sentMessage{destination: destination, msg: msg.Copy()})
	return nil
}

func (p *testProducer) last() sentMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent[len(p.sent)-1]
}

func (p *testProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

// =============================================================================
// Shared Test Metrics
// =============================================================================

type testSagaMetrics struct {
	mu          sync.Mutex
	started     int
	ended       int
	compensated int
	replies     int
	commands    []string
}

func (m *testSagaMetrics) RecordSagaStarted(sagaType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
}

func (m *testSagaMetrics) RecordSagaEnded(sagaType string, compensated bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ended++
	if compensated {
		m.compensated++
	}
}

func (m *testSagaMetrics) RecordReplyHandled(sagaType, replyType string, outcome ReplyOutcome, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies++
}

func (m *testSagaMetrics) RecordCommandSent(sagaType, commandType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, commandType)
}

// =============================================================================
// Shared Saga Fixtures
// =============================================================================

type orderData struct {
	OrderID    string `json:"orderId"`
	CustomerID string `json:"customerId"`
	Approved   bool   `json:"approved"`
	Rejected   bool   `json:"rejected"`
	TicketID   string `json:"ticketId,omitempty"`
}

type reserveCredit struct {
	CustomerID string `json:"customerId"`
}

type createTicket struct {
	OrderID string `json:"orderId"`
}

type cancelTicket struct {
	OrderID string `json:"orderId"`
}

type approveOrder struct {
	OrderID string `json:"orderId"`
}

func (approveOrder) CommandType() string { return "ApproveOrder" }

type ticketCreated struct {
	TicketID string `json:"ticketId"`
}

func (ticketCreated) ReplyType() string { return "TicketCreated" }

// newOrderSaga builds:
//
//	0: compensation reject (local)
//	1: reserveCredit -> customer-service
//	2: createTicket -> kitchen-service, compensated by cancelTicket
//	3: approve (local)
func newOrderSaga() *SagaDefinition[orderData] {
	return NewSagaDefinition[orderData]("CreateOrderSaga").
		Step().
		WithLocalCompensation(func(ctx context.Context, d *orderData) error {
			d.Rejected = true
			return nil
		}).
		Step().
		InvokeParticipant(func(d *orderData) CommandWithDestination {
			return CommandTo("customer-service", reserveCredit{CustomerID: d.CustomerID})
		}).
		Step().
		InvokeParticipant(func(d *orderData) CommandWithDestination {
			return CommandTo("kitchen-service", createTicket{OrderID: d.OrderID})
		}).
		OnReply("TicketCreated", HandleReply(func(ctx context.Context, d *orderData, r ticketCreated) error {
			d.TicketID = r.TicketID
			return nil
		})).
		WithCompensation(func(d *orderData) CommandWithDestination {
			return CommandTo("kitchen-service", cancelTicket{OrderID: d.OrderID})
		}).
		Step().
		InvokeLocal(func(ctx context.Context, d *orderData) error {
			d.Approved = true
			return nil
		}).
		MustBuild()
}

func replyTo(cmd *Message, outcome ReplyOutcome, payload interface{}) *Message {
	reply, err := NewReplyMessage(cmd, outcome, payload, nil)
	if err != nil {
		panic(err)
	}
	reply.SetHeader(HeaderID, "reply-"+cmd.ID())
	return reply
}
