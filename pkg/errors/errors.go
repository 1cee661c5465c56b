package errors

import (
	"errors"
	"fmt"
)

// Sentinels shared by stores, services and the API layer.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrValidation      = errors.New("validation error")
	ErrUnavailable     = errors.New("service unavailable")
	ErrQuotaExceeded   = errors.New("quota exceeded")
	ErrInvalidPhone    = errors.New("invalid phone number")
	ErrSlotUnavailable = errors.New("no concurrency slot available")
)

// Invalidf returns a validation error carrying the formatted reason.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Unavailable reports whether err means a backend could not serve the
// request right now and the caller may try again later.
func Unavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrSlotUnavailable)
}
