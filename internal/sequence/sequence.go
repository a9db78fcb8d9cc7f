// Package sequence issues monotonically increasing integers from named
// counters backed by shared storage. Counter values feed registration
// identifiers and receipt numbers, so uniqueness matters and contiguity does
// not: a burned value from a failed attempt is acceptable, a duplicate never is.
package sequence

import (
	"context"
	"errors"

	"examreg/pkg/derrors"
	"examreg/pkg/sentinel"
)

// Well-known counter names.
const (
	CounterRegistrationID = "registrationId"
	CounterReceiptNumber  = "receiptNumber"
)

// Store is a named-counter backend. Next must be a single atomic
// increment-and-return against storage - never read-then-write - and must
// implicitly create an absent counter at 0 so the first issued value is 1.
type Store interface {
	Next(ctx context.Context, name string) (int64, error)
	// Current reads without incrementing; 0 when the counter is absent.
	Current(ctx context.Context, name string) (int64, error)
	// Reset forces the counter to value. Administrative recovery only.
	Reset(ctx context.Context, name string, value int64) error
}

const maxRetries = 3

// Allocator wraps a Store with bounded retries on transient contention.
type Allocator struct {
	store Store
}

func NewAllocator(store Store) *Allocator {
	return &Allocator{store: store}
}

// Next issues the next value of the named counter. After maxRetries transient
// failures it surfaces an allocation-failed error; callers must not fall back
// to a non-atomic scheme.
func (a *Allocator) Next(ctx context.Context, name string) (int64, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		v, err := a.store.Next(ctx, name)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, sentinel.ErrUnavailable) {
			return 0, derrors.Wrap(err, derrors.CodeAllocationFailed, "sequence allocation failed")
		}
		lastErr = err
	}
	return 0, derrors.Wrap(lastErr, derrors.CodeAllocationFailed, "sequence allocation retries exhausted")
}

// Current returns the counter's current value without incrementing.
func (a *Allocator) Current(ctx context.Context, name string) (int64, error) {
	v, err := a.store.Current(ctx, name)
	if err != nil {
		return 0, derrors.Wrap(err, derrors.CodeUnavailable, "sequence read failed")
	}
	return v, nil
}

// Reset sets the counter to value.
func (a *Allocator) Reset(ctx context.Context, name string, value int64) error {
	if err := a.store.Reset(ctx, name, value); err != nil {
		return derrors.Wrap(err, derrors.CodeUnavailable, "sequence reset failed")
	}
	return nil
}
