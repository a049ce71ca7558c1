package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an item id does not exist in the store
	ErrNotFound = errors.New("item not found")

	// ErrValidationFailed is returned when a request carries values that must not be stored
	ErrValidationFailed = errors.New("validation failed")

	// ErrExtractionFailed is returned when no line items could be produced from a document
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrUnreadableDocument is an extraction failure caused by the document itself
	ErrUnreadableDocument = fmt.Errorf("%w: unreadable document", ErrExtractionFailed)

	// ErrCredentialRejected is an extraction failure caused by the AI service refusing the key
	ErrCredentialRejected = fmt.Errorf("%w: credential rejected", ErrExtractionFailed)

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")
)

// ValidationError names the offending field. It unwraps to ErrValidationFailed.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidationFailed, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}
