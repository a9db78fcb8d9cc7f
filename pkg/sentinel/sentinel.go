package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record does not exist in store
// - ErrConflict: a uniqueness constraint (receipt number) was violated
// - ErrInvalidState: record in wrong state for the requested write, e.g. a
//   conditional mark-paid lost the race because the row is already paid
// - ErrUnavailable: storage temporarily unavailable, caller may retry
//
// For validation errors (bad input, missing fields), use pkg/derrors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
