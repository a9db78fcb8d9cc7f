// Package gateway defines the payment gateway port. The gateway owns orders
// and payment attempts; this system only creates orders and asks what
// happened to them.
package gateway

import "context"

// PaymentStatusCaptured is the gateway's terminal success status for a
// payment attempt.
const PaymentStatusCaptured = "captured"

// Order is a gateway-side order created for one registration.
type Order struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
}

// Payment is one attempt against an order.
type Payment struct {
	ID      string
	OrderID string
	Status  string
}

// Captured reports whether the attempt ended in captured funds.
func (p Payment) Captured() bool {
	return p.Status == PaymentStatusCaptured
}

// CreateOrderInput carries what the gateway needs to open an order. Notes
// travel back on webhooks, which is how a webhook finds its registration.
type CreateOrderInput struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// Gateway is the external payment service port.
type Gateway interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (Order, error)
	// FetchPayments lists every payment attempt recorded against the order.
	FetchPayments(ctx context.Context, orderID string) ([]Payment, error)
}
