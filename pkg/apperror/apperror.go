package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the workflow core. Handlers map them onto HTTP
// statuses; services wrap them with context via fmt.Errorf("...: %w", ...).
var (
	// ErrNotFound — unknown request/approval/vehicle/driver/user id.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState — the operation is not legal for the entity's current
	// status (e.g. assigning resources to a non-approved request).
	ErrInvalidState = errors.New("invalid state")
	// ErrMissingReason — a rejection or cancellation without a reason.
	ErrMissingReason = errors.New("missing reason")
	// ErrConflict — double-booking a resource or opening a duplicate
	// pending approval of the same kind.
	ErrConflict = errors.New("conflict")
)

// NotFound wraps ErrNotFound with a formatted message.
func NotFound(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// InvalidState wraps ErrInvalidState with a formatted message.
func InvalidState(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrInvalidState)...)
}

// MissingReason wraps ErrMissingReason with a formatted message.
func MissingReason(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrMissingReason)...)
}

// Conflict wraps ErrConflict with a formatted message.
func Conflict(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrConflict)...)
}

// Status returns the HTTP status code the error maps to. Anything outside
// the taxonomy is treated as an internal error.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrMissingReason):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
