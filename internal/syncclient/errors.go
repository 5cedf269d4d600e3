package syncclient

import (
	"fmt"

	"github.com/tphakala/evalsync/internal/errors"
)

// ErrNotConfigured is returned when the registry target is disabled or has
// no endpoint.
var ErrNotConfigured = errors.NewStd("remote registry not configured")

// StatusError is a non-2xx answer from the registry.
type StatusError struct {
	Code   int
	Status string // reason phrase, e.g. "Service Unavailable"
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote registry error: %d %s", e.Code, e.Status)
}

// ErrorCategory implements errors.CategorizedError.
func (e *StatusError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryHTTP
}

// Temporary reports whether a retry has a chance of succeeding.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == 408 || e.Code == 429
}

// TransportError is a failure to complete the exchange at all.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "remote registry unreachable: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// ErrorCategory implements errors.CategorizedError.
func (e *TransportError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryNetwork
}
