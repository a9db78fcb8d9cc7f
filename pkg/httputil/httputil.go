// Package httputil writes JSON responses and maps domain error codes to HTTP
// statuses so handlers stay thin.
package httputil

import (
	"encoding/json"
	"net/http"

	"examreg/pkg/derrors"
)

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a coded error as JSON. Internal errors omit the
// description so storage details never leak to clients.
func WriteError(w http.ResponseWriter, err error) {
	code := derrors.CodeOf(err)
	body := errorBody{Error: string(code)}
	if code != derrors.CodeInternal {
		body.ErrorDescription = derrors.MessageOf(err)
	}
	WriteJSON(w, StatusOf(code), body)
}

// StatusOf maps a domain error code to an HTTP status.
func StatusOf(code derrors.Code) int {
	switch code {
	case derrors.CodeBadRequest, derrors.CodeInvalidSignature, derrors.CodeMalformedIdentifier:
		return http.StatusBadRequest
	case derrors.CodeNotFound:
		return http.StatusNotFound
	case derrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case derrors.CodeConflict:
		return http.StatusConflict
	case derrors.CodeUnavailable, derrors.CodeAllocationFailed, derrors.CodeReconciliationFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
