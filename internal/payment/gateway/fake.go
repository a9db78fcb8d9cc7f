package gateway

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory gateway for tests and local development. Orders get
// sequential IDs; payments are recorded by the test to simulate gateway
// state.
type Fake struct {
	mu       sync.Mutex
	orders   map[string]Order
	payments map[string][]Payment
	nextID   int

	// CreateOrderErr and FetchPaymentsErr, when set, are returned verbatim.
	CreateOrderErr   error
	FetchPaymentsErr error
	fetchCalls       int
}

func NewFake() *Fake {
	return &Fake{
		orders:   make(map[string]Order),
		payments: make(map[string][]Payment),
	}
}

func (f *Fake) CreateOrder(_ context.Context, in CreateOrderInput) (Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateOrderErr != nil {
		return Order{}, f.CreateOrderErr
	}
	f.nextID++
	order := Order{
		ID:       fmt.Sprintf("order_fake%04d", f.nextID),
		Amount:   in.Amount,
		Currency: in.Currency,
		Receipt:  in.Receipt,
	}
	f.orders[order.ID] = order
	return order, nil
}

func (f *Fake) FetchPayments(_ context.Context, orderID string) ([]Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.FetchPaymentsErr != nil {
		return nil, f.FetchPaymentsErr
	}
	return append([]Payment(nil), f.payments[orderID]...), nil
}

// RecordPayment attaches a payment attempt to an order.
func (f *Fake) RecordPayment(orderID string, p Payment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.OrderID = orderID
	f.payments[orderID] = append(f.payments[orderID], p)
}

// FetchCalls reports how many times FetchPayments ran.
func (f *Fake) FetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}
