package idempotency

import (
	"encoding/json"
	"time"
)

// Status is the persisted lifecycle state of a record.
type Status string

// Persisted status values. Expiry is not a stored status: a record whose
// ExpiryTimestamp has passed is treated as expired at read time regardless of
// what the backend still holds.
const (
	StatusInProgress Status = "INPROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusExpired    Status = "EXPIRED"
)

// Record is one idempotency entry: the claim on a key, and later the stored
// result of the execution that held it.
type Record struct {
	// IdempotencyKey is the derived "{scope}#{hash}" identifier.
	IdempotencyKey string

	// Status is the persisted state, INPROGRESS or COMPLETED.
	Status Status

	// ResponseData is the canonical-JSON serialized handler result. Empty
	// while the execution is in progress.
	ResponseData json.RawMessage

	// ExpiryTimestamp is the epoch second after which the record no longer
	// counts as existing. Zero means no expiry.
	ExpiryTimestamp int64

	// PayloadHash is the optional validation hash of a secondary payload
	// subset, used to detect two distinct requests colliding on one key.
	PayloadHash string
}

// IsExpired reports whether the record's expiry has passed at the given time.
func (r *Record) IsExpired(now time.Time) bool {
	return r.ExpiryTimestamp != 0 && now.Unix() > r.ExpiryTimestamp
}

// EffectiveStatus resolves the implicit EXPIRED state: an expired record
// reports StatusExpired no matter what was persisted.
func (r *Record) EffectiveStatus(now time.Time) Status {
	if r.IsExpired(now) {
		return StatusExpired
	}
	return r.Status
}
