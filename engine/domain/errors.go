package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the engine.
var (
	ErrEmptyBatch         = errors.New("empty record batch")
	ErrMissingField       = errors.New("missing required field")
	ErrFieldTooLong       = errors.New("field exceeds maximum length")
	ErrEmptyPrompt        = errors.New("empty prompt")
	ErrNotConnected       = errors.New("vector backend not connected")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrUnsupportedFormat  = errors.New("unsupported document format")
)

// ValidationError wraps a sentinel with the offending record and field.
type ValidationError struct {
	Index   int
	Field   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: record %d: %s: %s", e.Index, e.Field, e.Wrapped)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(index int, field string, wrapped error) *ValidationError {
	return &ValidationError{Index: index, Field: field, Wrapped: wrapped}
}
