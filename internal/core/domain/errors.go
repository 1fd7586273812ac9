package domain

import (
	"errors"
	"fmt"
)

// =============================================================================
// Validation Errors
// =============================================================================

var (
	// ErrValidation is the parent of every input validation failure.
	// Retrying cannot fix these, so callers treat them as fatal.
	ErrValidation = errors.New("validation failed")

	ErrInvalidDomain      = fmt.Errorf("%w: invalid domain", ErrValidation)
	ErrInvalidLabel       = fmt.Errorf("%w: invalid subdomain label", ErrValidation)
	ErrInvalidIdentity    = fmt.Errorf("%w: invalid admin identity", ErrValidation)
	ErrInvalidName        = fmt.Errorf("%w: invalid installation name", ErrValidation)
	ErrInvalidTimezone    = fmt.Errorf("%w: invalid timezone", ErrValidation)
	ErrUnknownComponent   = fmt.Errorf("%w: unknown component", ErrValidation)
	ErrInvalidDisposition = fmt.Errorf("%w: invalid disposition", ErrValidation)
)

// ValidationError describes which input failed validation and why.
type ValidationError struct {
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, value, message string, err error) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
		Err:     err,
	}
}

// IsValidationError reports whether err is (or wraps) a validation failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}
