// Package rest provides the authenticated HTTP gateway for the STAR backend:
// request construction against the tabular REST endpoint, response
// normalization, error classification, and a small fluent query builder.
package rest

import (
	"errors"
	"fmt"
	"net/http"
)

// noRowsCode is the backend's "zero rows for a required single row" marker.
const noRowsCode = "PGRST116"

// Sentinel errors. Use errors.Is(err, rest.ErrNotFound) to check.
var (
	// ErrAuthRequired means an authenticated call was attempted with no
	// usable session. Surfaced immediately, never retried.
	ErrAuthRequired = errors.New("rest: authentication required")

	// ErrNoRows means a required-single-row query matched zero rows
	// (marker PGRST116). Distinct from ErrNotFound so callers can tell
	// "row legitimately absent" from "endpoint missing".
	ErrNoRows = fmt.Errorf("rest: no rows (%s)", noRowsCode)

	ErrBadRequest   = errors.New("rest: bad request")
	ErrUnauthorized = errors.New("rest: unauthorized")
	ErrForbidden    = errors.New("rest: forbidden")
	ErrNotFound     = errors.New("rest: not found")
	ErrConflict     = errors.New("rest: conflict")
	ErrServerError  = errors.New("rest: server error")
)

// RequestError wraps a sentinel error with the HTTP status code and the
// best-effort message text extracted from the response body.
type RequestError struct {
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("rest: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}
