// Package redisstore provides a feature flag schema source backed by Redis.
// The whole schema lives as a JSON document under a single key, so pushing a
// new configuration is one SET and every service instance picks it up on the
// next fetch.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/julianobarbosa/lambdakit/featureflags"
	"github.com/julianobarbosa/lambdakit/internal/jsonutil"
)

// DefaultKey is the key holding the schema document.
const DefaultKey = "featureflags:schema"

// Store implements featureflags.SchemaStore on a Redis connection. Fetches
// are memoized for the configured TTL so hot paths do not hit Redis on every
// evaluation.
type Store struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration

	mu        sync.Mutex
	cached    featureflags.Schema
	fetchedAt time.Time
}

var _ featureflags.SchemaStore = (*Store)(nil)

// Option customizes the store.
type Option func(*Store)

// WithKey overrides the schema document key.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithTTL sets how long a fetched schema is reused. Zero disables caching.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// New builds a store on an initialized client.
func New(client redis.Cmdable, opts ...Option) *Store {
	if client == nil {
		panic("redisstore: client cannot be nil")
	}

	s := &Store{
		client: client,
		key:    DefaultKey,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetSchema returns the current schema document. A missing key yields an
// error rather than an empty schema, so a misconfigured deployment is loud.
func (s *Store) GetSchema(ctx context.Context) (featureflags.Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && s.ttl > 0 && time.Since(s.fetchedAt) < s.ttl {
		return s.cached, nil
	}

	payload, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("redisstore: schema key %q not found", s.key)
		}
		return nil, fmt.Errorf("redisstore: fetch schema: %w", err)
	}

	doc, err := jsonutil.Decode([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("redisstore: decode schema: %w", err)
	}

	schema, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("redisstore: schema document must be a JSON object")
	}

	s.cached = schema
	s.fetchedAt = time.Now()
	return schema, nil
}

// HealthChecker reports Redis connectivity for the readiness probe.
type HealthChecker struct {
	client redis.Cmdable
}

// NewHealthChecker creates a health checker for the given client.
func NewHealthChecker(client redis.Cmdable) *HealthChecker {
	return &HealthChecker{client: client}
}

// Name returns the component name.
func (h *HealthChecker) Name() string {
	return "redis"
}

// Check verifies the connection to the Redis server.
func (h *HealthChecker) Check(ctx context.Context) error {
	if h.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	return h.client.Ping(ctx).Err()
}
