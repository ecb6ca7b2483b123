// Package idempotency deduplicates handler invocations. It derives a stable
// key from selected event data, claims the key in a conditional-write
// key-value store before the handler runs, and persists the handler's result
// so a retry with the same payload returns the stored response instead of
// executing again.
//
// The backend's conditional write is the only cross-process synchronization
// primitive: many instances may race to claim the same key, and exactly one
// wins. The optional local cache is a read shortcut, never an authority.
package idempotency

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to callers. Match with errors.Is.
var (
	// ErrItemAlreadyExists is returned by a Backend when the conditional put
	// is rejected because an unexpired record already holds the key.
	ErrItemAlreadyExists = errors.New("idempotency record already exists")

	// ErrItemNotFound is returned when no record exists for a key.
	ErrItemNotFound = errors.New("idempotency record not found")

	// ErrAlreadyInProgress signals that another execution holds the key and
	// has not finished. Callers may retry after a delay.
	ErrAlreadyInProgress = errors.New("execution already in progress with this idempotency key")

	// ErrValidation signals that a request shares an idempotency key with a
	// stored record but carries a different payload. This is a key-design
	// defect, never transient: do not retry.
	ErrValidation = errors.New("payload does not match stored idempotency record")

	// ErrInconsistentState signals that the record changed between the failed
	// claim and the follow-up read (e.g. it expired in between). The handler
	// wrapper retries once before surfacing it.
	ErrInconsistentState = errors.New("inconsistent idempotency record state")

	// ErrNoIdempotencyKey is returned when the configured event key query
	// finds nothing to hash and the store is configured to treat that as an
	// error.
	ErrNoIdempotencyKey = errors.New("no data found to create an idempotency key")
)

// PersistenceError wraps a backend failure with the operation that caused it.
// Backend errors propagate immediately; retry policy belongs to the caller or
// the backend client.
type PersistenceError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("idempotency persistence layer: %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying backend error for errors.Is/As.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// persistErr wraps err unless it is one of the package sentinels, which pass
// through untouched so callers can match them directly.
func persistErr(op string, err error) error {
	if errors.Is(err, ErrItemAlreadyExists) || errors.Is(err, ErrItemNotFound) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
