package api

import (
	"errors"
	"fmt"
)

// ErrEndpointNotAllowed is returned when a caller names an endpoint
// outside the allow-list. This is a programmer error: it should surface in
// development and tests, never be swallowed.
var ErrEndpointNotAllowed = errors.New("api: endpoint not allowed")

// NotAllowedError carries the rejected path alongside the sentinel.
type NotAllowedError struct {
	Path string
}

// Error returns the error message.
func (e *NotAllowedError) Error() string {
	return fmt.Sprintf("api: endpoint not allowed: %s", e.Path)
}

// Unwrap returns ErrEndpointNotAllowed for errors.Is checks.
func (e *NotAllowedError) Unwrap() error {
	return ErrEndpointNotAllowed
}

// StatusError is returned by DoJSON for any non-2xx response. Payload is
// the best-effort parsed JSON body, or nil when the body is not JSON.
type StatusError struct {
	Status  int
	Payload any
}

// Error returns the error message.
func (e *StatusError) Error() string {
	return fmt.Sprintf("api: request failed with status %d", e.Status)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}
