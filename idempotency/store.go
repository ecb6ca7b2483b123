package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/julianobarbosa/lambdakit/internal/logger"
	"github.com/julianobarbosa/lambdakit/internal/pathquery"
)

// Backend is the persistence contract the state machine runs on. Any store
// with atomic conditional writes and per-item expiry can implement it.
type Backend interface {
	// PutRecord stores record only if the key is free: no record exists, or
	// the existing one is past its expiry. A rejected condition returns an
	// error matching ErrItemAlreadyExists.
	PutRecord(ctx context.Context, record *Record) error

	// GetRecord fetches the record for key, or an error matching
	// ErrItemNotFound.
	GetRecord(ctx context.Context, key string) (*Record, error)

	// UpdateRecord overwrites the record for record.IdempotencyKey
	// unconditionally. Used to move a claimed key to COMPLETED.
	UpdateRecord(ctx context.Context, record *Record) error

	// DeleteRecord removes the record for key. Deleting an absent key is not
	// an error.
	DeleteRecord(ctx context.Context, key string) error
}

// Store drives the idempotency record lifecycle on top of a Backend:
// INPROGRESS on claim, COMPLETED on success, implicit EXPIRED by timestamp.
type Store struct {
	backend Backend
	cfg     config

	// extractKey selects the hashed event subset; keySource names its origin
	// for error messages. extractPayload is nil when payload validation is
	// not configured.
	extractKey     Extractor
	keySource      string
	extractPayload Extractor

	cache *recordCache
}

// NewStore wires a Backend with the given options. It fails when a configured
// path expression does not compile.
func NewStore(backend Backend, opts ...Option) (*Store, error) {
	if backend == nil {
		panic("idempotency: backend cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	extractKey := cfg.eventKeyFn
	keySource := "custom extractor"
	if extractKey == nil {
		query, err := pathquery.Compile(cfg.eventKeyExpr)
		if err != nil {
			return nil, fmt.Errorf("idempotency: event key query: %w", err)
		}
		extractKey = query.Search
		keySource = query.String()
	}

	extractPayload := cfg.payloadFn
	if extractPayload == nil && cfg.payloadExpr != "" {
		query, err := pathquery.Compile(cfg.payloadExpr)
		if err != nil {
			return nil, fmt.Errorf("idempotency: payload validation query: %w", err)
		}
		extractPayload = query.Search
	}

	store := &Store{
		backend:        backend,
		cfg:            cfg,
		extractKey:     extractKey,
		keySource:      keySource,
		extractPayload: extractPayload,
	}

	if cfg.useLocalCache {
		cache, err := newRecordCache(cfg.localCacheMaxItems)
		if err != nil {
			return nil, fmt.Errorf("idempotency: local cache: %w", err)
		}
		store.cache = cache
	}

	return store, nil
}

// SaveInProgress claims the key derived from event. It fails with
// ErrItemAlreadyExists when another unexpired execution holds the key.
// The backend's conditional write decides; the local cache is consulted only
// to short-circuit a claim that is already known to lose.
func (s *Store) SaveInProgress(ctx context.Context, event any) error {
	key, err := s.deriveKey(event)
	if err != nil {
		return err
	}

	now := s.cfg.now()

	if s.cache != nil {
		if _, hit := s.cache.get(key, now); hit {
			return fmt.Errorf("%w: key=%s", ErrItemAlreadyExists, key)
		}
	}

	record := &Record{
		IdempotencyKey:  key,
		Status:          StatusInProgress,
		ExpiryTimestamp: now.Add(s.cfg.expiresAfter).Unix(),
	}
	if hash, err := s.payloadHash(event); err != nil {
		return err
	} else if hash != "" {
		record.PayloadHash = hash
	}

	if err := s.backend.PutRecord(ctx, record); err != nil {
		if errors.Is(err, ErrItemAlreadyExists) {
			return fmt.Errorf("%w: key=%s", ErrItemAlreadyExists, key)
		}
		return persistErr("put record", err)
	}

	logger.FromContext(ctx).Debug("idempotency record claimed", slog.String("key", key))
	return nil
}

// SaveSuccess persists the handler result for the key derived from event,
// moving the record to COMPLETED with a refreshed expiry. It always
// overwrites the INPROGRESS record left by SaveInProgress.
func (s *Store) SaveSuccess(ctx context.Context, event any, result []byte) error {
	key, err := s.deriveKey(event)
	if err != nil {
		return err
	}

	record := &Record{
		IdempotencyKey:  key,
		Status:          StatusCompleted,
		ResponseData:    result,
		ExpiryTimestamp: s.cfg.now().Add(s.cfg.expiresAfter).Unix(),
	}
	if hash, err := s.payloadHash(event); err != nil {
		return err
	} else if hash != "" {
		record.PayloadHash = hash
	}

	if err := s.backend.UpdateRecord(ctx, record); err != nil {
		return persistErr("update record", err)
	}

	if s.cache != nil {
		s.cache.set(record)
	}

	logger.FromContext(ctx).Debug("idempotency record completed", slog.String("key", key))
	return nil
}

// GetRecord fetches the record for the key derived from event and verifies
// that the stored payload hash matches this event. A mismatch means two
// distinct requests collided on one idempotency key and returns ErrValidation.
func (s *Store) GetRecord(ctx context.Context, event any) (*Record, error) {
	key, err := s.deriveKey(event)
	if err != nil {
		return nil, err
	}

	now := s.cfg.now()

	if s.cache != nil {
		if record, hit := s.cache.get(key, now); hit {
			return record, s.validateRecord(record, event)
		}
	}

	record, err := s.backend.GetRecord(ctx, key)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return nil, fmt.Errorf("%w: key=%s", ErrItemNotFound, key)
		}
		return nil, persistErr("get record", err)
	}

	if err := s.validateRecord(record, event); err != nil {
		return nil, err
	}

	// Only settled results are worth caching; an INPROGRESS record would go
	// stale the moment its execution finishes.
	if s.cache != nil && record.Status == StatusCompleted && !record.IsExpired(now) {
		s.cache.set(record)
	}

	return record, nil
}

// DeleteRecord removes the record for the key derived from event. Called when
// the handler fails, so the key frees up for a clean retry.
func (s *Store) DeleteRecord(ctx context.Context, event any) error {
	key, err := s.deriveKey(event)
	if err != nil {
		return err
	}

	if err := s.backend.DeleteRecord(ctx, key); err != nil {
		return persistErr("delete record", err)
	}

	if s.cache != nil {
		s.cache.delete(key)
	}
	return nil
}

// validateRecord compares the stored payload hash with the one derived from
// the current event. Only meaningful when payload validation is configured.
func (s *Store) validateRecord(record *Record, event any) error {
	if s.extractPayload == nil {
		return nil
	}

	hash, err := s.payloadHash(event)
	if err != nil {
		return err
	}
	if record.PayloadHash != hash {
		return fmt.Errorf("%w: key=%s", ErrValidation, record.IdempotencyKey)
	}
	return nil
}
