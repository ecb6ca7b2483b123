package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/julianobarbosa/lambdakit/internal/jsonutil"
	"github.com/julianobarbosa/lambdakit/internal/logger"
)

// HandlerFunc is the unit of work being deduplicated. It receives the decoded
// event document and returns the result that will be serialized and stored.
type HandlerFunc func(ctx context.Context, event any) (any, error)

// maxClaimAttempts bounds the claim/inspect loop. Two attempts cover the one
// legitimate race: the record that rejected our claim expired or was deleted
// before we could read it.
const maxClaimAttempts = 2

// Idempotent wraps handler executions with the full record lifecycle.
type Idempotent struct {
	store *Store
}

// New builds a handler wrapper around a configured store.
func New(store *Store) *Idempotent {
	if store == nil {
		panic("idempotency: store cannot be nil")
	}
	return &Idempotent{store: store}
}

// Process runs fn exactly once per derived idempotency key.
//
// The first caller claims the key and executes fn; its serialized result is
// returned and persisted. While that execution is running, concurrent calls
// with the same key fail with ErrAlreadyInProgress. After it completes, calls
// with the same key return the stored response without running fn. If fn
// fails, the claim is released so the caller can retry cleanly.
//
// rawEvent must be valid JSON; it is decoded once and the same document is
// used for key derivation, payload validation and the handler itself.
func (i *Idempotent) Process(ctx context.Context, rawEvent []byte, fn HandlerFunc) (json.RawMessage, error) {
	event, err := jsonutil.Decode(rawEvent)
	if err != nil {
		return nil, fmt.Errorf("idempotency: decode event: %w", err)
	}

	log := logger.FromContext(ctx)

	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		claimErr := i.store.SaveInProgress(ctx, event)
		if claimErr == nil {
			return i.runHandler(ctx, event, fn)
		}
		if !errors.Is(claimErr, ErrItemAlreadyExists) {
			return nil, claimErr
		}

		// Someone holds (or held) the key. Inspect the record to decide.
		record, getErr := i.store.GetRecord(ctx, event)
		if getErr != nil {
			if errors.Is(getErr, ErrItemNotFound) {
				// The blocking record vanished between claim and read.
				// Claim again.
				log.Debug("idempotency record disappeared after rejected claim, retrying")
				continue
			}
			return nil, getErr
		}

		switch record.EffectiveStatus(i.store.cfg.now()) {
		case StatusExpired:
			// The record aged out between claim and read. Claim again.
			log.Debug("idempotency record expired after rejected claim, retrying",
				slog.String("key", record.IdempotencyKey))
			continue

		case StatusInProgress:
			return nil, fmt.Errorf("%w: key=%s", ErrAlreadyInProgress, record.IdempotencyKey)

		case StatusCompleted:
			log.Debug("returning stored idempotent response",
				slog.String("key", record.IdempotencyKey))
			return record.ResponseData, nil
		}
	}

	return nil, ErrInconsistentState
}

// runHandler executes fn under a held claim: success persists the result,
// failure releases the claim before the handler error propagates.
func (i *Idempotent) runHandler(ctx context.Context, event any, fn HandlerFunc) (json.RawMessage, error) {
	result, err := fn(ctx, event)
	if err != nil {
		if delErr := i.store.DeleteRecord(ctx, event); delErr != nil {
			logger.FromContext(ctx).Error("failed to release idempotency record after handler error",
				slog.Any("error", delErr))
		}
		return nil, err
	}

	serialized, err := jsonutil.Canonical(result)
	if err != nil {
		return nil, fmt.Errorf("idempotency: serialize response: %w", err)
	}

	if err := i.store.SaveSuccess(ctx, event, serialized); err != nil {
		return nil, err
	}
	return serialized, nil
}
