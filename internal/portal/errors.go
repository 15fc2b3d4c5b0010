package portal

import (
	"errors"
	"fmt"

	"github.com/radiusdt/partner-portal/internal/storage"
)

var (
	// ErrNotFound covers both missing entities and entities owned by another
	// tenant.
	ErrNotFound = errors.New("not found")
	// ErrValidation wraps bad client input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict is returned when a unique field is already taken.
	ErrConflict = errors.New("already exists")
	// ErrProviderUnavailable is returned when a mutation needs the provider
	// and the provider call failed.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrReportNotReady is returned when downloading a report that is still
	// generating or failed.
	ErrReportNotReady = errors.New("report not ready")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// storageError translates repository sentinels into service sentinels.
func storageError(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, storage.ErrConflict):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
