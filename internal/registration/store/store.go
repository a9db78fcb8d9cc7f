// Package store persists registrations. Implementations must provide the two
// atomic primitives the payment state machine relies on: a conditional
// mark-paid write guarded on the stored payment status, and a uniqueness
// constraint on receipt numbers.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"examreg/internal/registration/models"
)

// PaidUpdate is the full terminal transition written in one conditional
// update: lifecycle completed, payment paid, gateway references, the recoded
// identifier, and the receipt number if the row has none yet.
type PaidUpdate struct {
	// RegistrationID, when non-empty, replaces the stored identifier (status
	// segment recoded to completed). Empty means leave it alone, which is the
	// fail-open path when the stored identifier did not decode.
	RegistrationID string
	// ReceiptNo is written only when the stored row has no receipt yet.
	ReceiptNo string
	PaymentID string
	OrderID   string
	Signature string
	Now       time.Time
}

// Query selects, orders and pages a listing.
type Query struct {
	Class    string
	ExamDate string
	Status   string
	// Search matches name, parent mobile, school or email, case-insensitive.
	Search   string
	SortBy   string
	SortDesc bool
	Page     int
	Limit    int
}

// Store is the registration persistence port.
//
// Error contract: FindBy*/Update/Delete return sentinel.ErrNotFound for
// missing rows; Create and MarkPaid return sentinel.ErrConflict on a receipt
// number collision; MarkPaid returns sentinel.ErrInvalidState when the
// conditional write finds the row already terminal, paid or waived (the
// caller lost the race, or the target was never payable, and should re-read).
type Store interface {
	Create(ctx context.Context, r *models.Registration) error
	FindByKey(ctx context.Context, key uuid.UUID) (*models.Registration, error)
	FindByOrderID(ctx context.Context, orderID string) (*models.Registration, error)
	// Update writes the editable fields. The state-machine fields (status,
	// registration identifier, receipt number, signature) are MarkPaid's to
	// write and are never touched here, and payment status is never written
	// over a paid row; a caller holding a read that a concurrent paid
	// transition has made stale cannot revert that transition.
	Update(ctx context.Context, r *models.Registration) error
	Delete(ctx context.Context, key uuid.UUID) error
	List(ctx context.Context, q Query) ([]*models.Registration, int, error)
	DistinctExamDates(ctx context.Context) ([]string, error)
	// ListPendingWithOrders returns unpaid registrations that have a gateway
	// order attached, for the admin reconciliation sweep.
	ListPendingWithOrders(ctx context.Context) ([]*models.Registration, error)

	// MarkPaid performs the single atomic conditional update of the terminal
	// transition, guarded on the stored payment status not already being
	// terminal. Returns the updated registration on success.
	MarkPaid(ctx context.Context, key uuid.UUID, upd PaidUpdate) (*models.Registration, error)

	// ClearReceiptNumbers removes every assigned receipt number and returns
	// how many rows were touched. Administrative recovery only, paired with a
	// counter reset.
	ClearReceiptNumbers(ctx context.Context) (int64, error)
}
