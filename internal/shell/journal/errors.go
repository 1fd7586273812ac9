// Package journal keeps the history of installation runs in SQLite.
package journal

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a run is not in the journal.
	ErrNotFound = errors.New("run not found")

	// ErrDuplicateID is returned when a run is recorded twice.
	ErrDuplicateID = errors.New("run with this ID already exists")

	// ErrConnectionFailed is returned when the database cannot be opened.
	ErrConnectionFailed = errors.New("journal connection failed")

	// ErrMigrationFailed is returned when the schema cannot be brought up to date.
	ErrMigrationFailed = errors.New("journal migration failed")

	// ErrInvalidData is returned when a stored row cannot be decoded.
	ErrInvalidData = errors.New("invalid journal data")

	// ErrTxFailed is returned when a transaction cannot be committed.
	ErrTxFailed = errors.New("transaction failed")
)

// StoreError wraps journal errors with context.
type StoreError struct {
	Op      string
	Entity  string
	ID      string
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %s", e.Op, e.Entity, e.ID, e.Message)
	}
	if e.Entity != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Entity, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(op, entity, id, message string, err error) *StoreError {
	return &StoreError{
		Op:      op,
		Entity:  entity,
		ID:      id,
		Message: message,
		Err:     err,
	}
}
