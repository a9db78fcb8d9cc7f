// Package derrors defines the coded domain errors services return to transport.
//
// Stores return pkg/sentinel errors; services translate them into coded errors
// here so handlers can map codes to HTTP statuses without inspecting storage
// details. Codes are stable strings and part of the admin API surface.
package derrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	// CodeBadRequest marks input the caller can correct and resubmit.
	CodeBadRequest Code = "bad_request"
	// CodeNotFound marks a missing registration or order reference.
	CodeNotFound Code = "not_found"
	// CodeUnauthorized marks a missing or invalid admin principal.
	CodeUnauthorized Code = "unauthorized"
	// CodeInvalidSignature marks a failed payment signature check. Security
	// relevant: always logged, never retried.
	CodeInvalidSignature Code = "invalid_signature"
	// CodeMalformedIdentifier marks a registration identifier that does not
	// parse. Some callers treat this as a fallback trigger rather than fatal.
	CodeMalformedIdentifier Code = "malformed_identifier"
	// CodeAllocationFailed marks sequence allocation that exhausted its retries.
	CodeAllocationFailed Code = "allocation_failed"
	// CodeReconciliationFailed marks a reconciliation that exhausted its
	// receipt-collision retries.
	CodeReconciliationFailed Code = "reconciliation_failed"
	// CodeConflict marks a uniqueness or state conflict.
	CodeConflict Code = "conflict"
	// CodeUnavailable marks a transient upstream failure the caller may retry.
	CodeUnavailable Code = "unavailable"
	// CodeInternal marks everything else. Description is not exposed on the wire.
	CodeInternal Code = "internal_error"
)

// Error is a domain error with a classification code.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. A nil err yields nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or CodeInternal if none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the message carried by err, or an empty string.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
