// Package apperr holds the error taxonomy shared by the store, the intake
// pipeline and the HTTP surface.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrStorageUnavailable means the storage engine could not be opened.
	// Persistence features are lost; the rest of the app keeps running.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrConstraintViolation means a unique field collided with an existing record.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrNotFound means an update target does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidURL means an ingestion input is not an absolute URL.
	ErrInvalidURL = errors.New("invalid url")

	// ErrInvalidInput means a request value failed validation.
	ErrInvalidInput = errors.New("invalid input")
)

// ConstraintError describes which unique field collided.
type ConstraintError struct {
	Collection string
	Field      string
	Value      string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%s: %s.%s %q already exists", ErrConstraintViolation, e.Collection, e.Field, e.Value)
}

// Unwrap lets errors.Is match ErrConstraintViolation.
func (e *ConstraintError) Unwrap() error {
	return ErrConstraintViolation
}
