// Package redis persists idempotency records in Redis.
//
// A record lives as a JSON value under "{prefix}:{idempotency key}" with a
// TTL matching its expiry timestamp, so Redis itself enforces "expired means
// absent": the SET NX claim succeeds exactly when no live record holds the
// key. No Lua or transactions are needed, the single conditional SET is the
// atomic claim.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/julianobarbosa/lambdakit/idempotency"
)

// DefaultKeyPrefix namespaces idempotency records in the keyspace.
const DefaultKeyPrefix = "idempotency"

// Backend implements idempotency.Backend on a Redis connection.
type Backend struct {
	client    redis.Cmdable
	keyPrefix string
	now       func() time.Time
}

var _ idempotency.Backend = (*Backend)(nil)

// Option customizes the backend.
type Option func(*Backend)

// WithKeyPrefix overrides the keyspace prefix.
func WithKeyPrefix(prefix string) Option {
	return func(b *Backend) { b.keyPrefix = prefix }
}

// New builds a backend on an initialized client. Accepting redis.Cmdable
// keeps it usable with single-node, cluster and sentinel clients alike.
func New(client redis.Cmdable, opts ...Option) *Backend {
	if client == nil {
		panic("redis: client cannot be nil")
	}

	b := &Backend{
		client:    client,
		keyPrefix: DefaultKeyPrefix,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// storedRecord is the JSON wire shape of a record. The key is implicit in the
// Redis key, so it is not repeated in the value.
type storedRecord struct {
	Status     string          `json:"status"`
	Data       json.RawMessage `json:"data,omitempty"`
	Expiration int64           `json:"expiration"`
	Validation string          `json:"validation,omitempty"`
}

// PutRecord claims the key with SET NX. The TTL is derived from the record's
// expiry so a stale record disappears on its own and frees the key.
func (b *Backend) PutRecord(ctx context.Context, record *idempotency.Record) error {
	payload, err := encodeRecord(record)
	if err != nil {
		return err
	}

	ttl := b.ttlFor(record)
	if ttl <= 0 {
		return fmt.Errorf("redis: record for %s already expired, refusing to store", record.IdempotencyKey)
	}

	ok, err := b.client.SetNX(ctx, b.redisKey(record.IdempotencyKey), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis: setnx: %w", err)
	}
	if !ok {
		return idempotency.ErrItemAlreadyExists
	}
	return nil
}

// GetRecord fetches and decodes the record for key.
func (b *Backend) GetRecord(ctx context.Context, key string) (*idempotency.Record, error) {
	payload, err := b.client.Get(ctx, b.redisKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, idempotency.ErrItemNotFound
		}
		return nil, fmt.Errorf("redis: get: %w", err)
	}

	var stored storedRecord
	if err := json.Unmarshal([]byte(payload), &stored); err != nil {
		return nil, fmt.Errorf("redis: decode record for %s: %w", key, err)
	}

	return &idempotency.Record{
		IdempotencyKey:  key,
		Status:          idempotency.Status(stored.Status),
		ResponseData:    stored.Data,
		ExpiryTimestamp: stored.Expiration,
		PayloadHash:     stored.Validation,
	}, nil
}

// UpdateRecord overwrites the record unconditionally with a refreshed TTL.
func (b *Backend) UpdateRecord(ctx context.Context, record *idempotency.Record) error {
	payload, err := encodeRecord(record)
	if err != nil {
		return err
	}

	ttl := b.ttlFor(record)
	if ttl <= 0 {
		return fmt.Errorf("redis: record for %s already expired, refusing to store", record.IdempotencyKey)
	}

	if err := b.client.Set(ctx, b.redisKey(record.IdempotencyKey), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set: %w", err)
	}
	return nil
}

// DeleteRecord removes the record for key. Deleting an absent key is a no-op.
func (b *Backend) DeleteRecord(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redis: del: %w", err)
	}
	return nil
}

// redisKey namespaces an idempotency key.
func (b *Backend) redisKey(key string) string {
	return fmt.Sprintf("%s:%s", b.keyPrefix, key)
}

// ttlFor converts the record's absolute expiry into a relative TTL.
func (b *Backend) ttlFor(record *idempotency.Record) time.Duration {
	return time.Unix(record.ExpiryTimestamp, 0).Sub(b.now())
}

// encodeRecord serializes a record into its wire shape.
func encodeRecord(record *idempotency.Record) (string, error) {
	payload, err := json.Marshal(storedRecord{
		Status:     string(record.Status),
		Data:       record.ResponseData,
		Expiration: record.ExpiryTimestamp,
		Validation: record.PayloadHash,
	})
	if err != nil {
		return "", fmt.Errorf("redis: encode record for %s: %w", record.IdempotencyKey, err)
	}
	return string(payload), nil
}
