package featureflags

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/julianobarbosa/lambdakit/internal/jsonutil"
)

// SchemaStore supplies the raw feature flag document. Implementations decide
// where the document lives and how often it refreshes; the Client validates
// whatever they return.
type SchemaStore interface {
	// GetSchema returns the current raw document.
	GetSchema(ctx context.Context) (Schema, error)
}

// StaticStore serves a fixed in-memory document. Useful for tests and for
// callers that manage configuration refresh themselves.
type StaticStore struct {
	schema Schema
}

// NewStaticStore wraps an in-memory document.
func NewStaticStore(schema Schema) *StaticStore {
	return &StaticStore{schema: schema}
}

// GetSchema returns the wrapped document.
func (s *StaticStore) GetSchema(_ context.Context) (Schema, error) {
	return s.schema, nil
}

// Compile-time checks that both stores satisfy SchemaStore.
var (
	_ SchemaStore = (*StaticStore)(nil)
	_ SchemaStore = (*FileStore)(nil)
)

// FileStore reads the document from a JSON file and caches it for a TTL, so
// hot paths do not hit the filesystem on every evaluation. The document is
// immutable between refreshes: a re-read only happens once the TTL elapses.
type FileStore struct {
	path string
	ttl  time.Duration

	mu        sync.Mutex
	cached    Schema
	fetchedAt time.Time
}

// NewFileStore creates a file-backed store. A non-positive ttl disables
// caching and re-reads the file on every fetch.
func NewFileStore(path string, ttl time.Duration) *FileStore {
	return &FileStore{path: path, ttl: ttl}
}

// GetSchema returns the cached document, re-reading the file when the cache
// is cold or stale. Numbers decode as json.Number, matching the document
// shape used by the rest of the module.
func (s *FileStore) GetSchema(_ context.Context) (Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && s.ttl > 0 && time.Since(s.fetchedAt) < s.ttl {
		return s.cached, nil
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("featureflags: read schema file: %w", err)
	}

	doc, err := jsonutil.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("featureflags: parse schema file %s: %w", s.path, err)
	}

	schema, ok := doc.(map[string]any)
	if !ok {
		return nil, schemaErrorf("invalid schema detected, root must be a mapping of features, got=%T", doc)
	}

	s.cached = schema
	s.fetchedAt = time.Now()
	return schema, nil
}
