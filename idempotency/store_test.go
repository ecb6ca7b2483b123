package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is an in-memory Backend with real conditional-write semantics:
// a put only wins when the key is free or the standing record has expired.
type fakeBackend struct {
	mu      sync.Mutex
	records map[string]*Record
	now     func() time.Time

	putCalls int
	getCalls int
	failWith error
}

func newFakeBackend(now func() time.Time) *fakeBackend {
	return &fakeBackend{records: make(map[string]*Record), now: now}
}

func (b *fakeBackend) PutRecord(_ context.Context, record *Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.putCalls++
	if b.failWith != nil {
		return b.failWith
	}

	if existing, ok := b.records[record.IdempotencyKey]; ok && !existing.IsExpired(b.now()) {
		return ErrItemAlreadyExists
	}

	clone := *record
	b.records[record.IdempotencyKey] = &clone
	return nil
}

func (b *fakeBackend) GetRecord(_ context.Context, key string) (*Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.getCalls++
	if b.failWith != nil {
		return nil, b.failWith
	}

	record, ok := b.records[key]
	if !ok {
		return nil, ErrItemNotFound
	}
	clone := *record
	return &clone, nil
}

func (b *fakeBackend) UpdateRecord(_ context.Context, record *Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failWith != nil {
		return b.failWith
	}

	clone := *record
	b.records[record.IdempotencyKey] = &clone
	return nil
}

func (b *fakeBackend) DeleteRecord(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.records, key)
	return nil
}

// testClock is a manually advanced time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T, backend Backend, clock *testClock, opts ...Option) *Store {
	t.Helper()

	opts = append(opts, withClock(clock.Now))
	store, err := NewStore(backend, opts...)
	require.NoError(t, err)
	return store
}

func sampleEvent() map[string]any {
	return map[string]any{
		"body":           map[string]any{"order_id": "abc-123", "amount": json.Number("19.90")},
		"requestContext": map[string]any{"request_id": "r-1"},
	}
}

func TestSaveInProgressConflictUntilExpiry(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	backend := newFakeBackend(clock.Now)
	store := newTestStore(t, backend, clock, WithExpiresAfter(time.Hour))
	ctx := context.Background()
	event := sampleEvent()

	// First claim wins.
	require.NoError(t, store.SaveInProgress(ctx, event))

	// Second claim loses while the record is fresh.
	err := store.SaveInProgress(ctx, event)
	require.ErrorIs(t, err, ErrItemAlreadyExists)

	// Once the expiry timestamp has passed the key can be reclaimed.
	clock.Advance(time.Hour + time.Second)
	require.NoError(t, store.SaveInProgress(ctx, event))
}

func TestSaveSuccessRoundTrip(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	backend := newFakeBackend(clock.Now)
	store := newTestStore(t, backend, clock)
	ctx := context.Background()
	event := sampleEvent()

	require.NoError(t, store.SaveInProgress(ctx, event))

	// Precise numeric values must survive persistence byte for byte.
	response := []byte(`{"decimal_val":2.5,"message":"test","statusCode":200}`)
	require.NoError(t, store.SaveSuccess(ctx, event, response))

	record, err := store.GetRecord(ctx, event)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, record.Status)
	assert.Equal(t, string(response), string(record.ResponseData))
	assert.False(t, record.IsExpired(clock.Now()))
}

func TestGetRecordNotFound(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	store := newTestStore(t, newFakeBackend(clock.Now), clock)

	_, err := store.GetRecord(context.Background(), sampleEvent())
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestPayloadValidationDetectsDrift(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	backend := newFakeBackend(clock.Now)
	store := newTestStore(t, backend, clock,
		WithEventKeyQuery("body.order_id"),
		WithPayloadValidationQuery("requestContext"),
	)
	ctx := context.Background()

	event := sampleEvent()
	require.NoError(t, store.SaveInProgress(ctx, event))
	require.NoError(t, store.SaveSuccess(ctx, event, []byte(`"ok"`)))

	// Same idempotency key (same order_id), different request context: the
	// validation hash must flag the collision as a hard error.
	drifted := sampleEvent()
	drifted["requestContext"] = map[string]any{"request_id": "r-2"}

	_, err := store.GetRecord(ctx, drifted)
	require.ErrorIs(t, err, ErrValidation)

	// The original payload still reads fine.
	record, err := store.GetRecord(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, record.Status)
}

func TestPayloadValidationExtractorEnablesValidation(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	backend := newFakeBackend(clock.Now)
	store := newTestStore(t, backend, clock,
		WithEventKeyQuery("body.order_id"),
		WithPayloadValidationExtractor(func(event any) (any, error) {
			return event.(map[string]any)["requestContext"], nil
		}),
	)
	ctx := context.Background()

	event := sampleEvent()
	require.NoError(t, store.SaveInProgress(ctx, event))
	require.NoError(t, store.SaveSuccess(ctx, event, []byte(`"ok"`)))

	drifted := sampleEvent()
	drifted["requestContext"] = map[string]any{"request_id": "r-2"}

	_, err := store.GetRecord(ctx, drifted)
	require.ErrorIs(t, err, ErrValidation)
}

func TestLocalCacheShortCircuitsReads(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	backend := newFakeBackend(clock.Now)
	store := newTestStore(t, backend, clock, WithLocalCache(16))
	ctx := context.Background()
	event := sampleEvent()

	require.NoError(t, store.SaveInProgress(ctx, event))
	require.NoError(t, store.SaveSuccess(ctx, event, []byte(`"done"`)))

	// SaveSuccess primed the cache, so reads stop hitting the backend.
	before := backend.getCalls
	for i := 0; i < 3; i++ {
		record, err := store.GetRecord(ctx, event)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, record.Status)
	}
	assert.Equal(t, before, backend.getCalls, "completed record must be served from the local cache")
}

func TestLocalCacheIsNotAuthoritativeForClaims(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	backend := newFakeBackend(clock.Now)
	store := newTestStore(t, backend, clock, WithLocalCache(16))
	ctx := context.Background()
	event := sampleEvent()

	require.NoError(t, store.SaveInProgress(ctx, event))
	require.NoError(t, store.SaveSuccess(ctx, event, []byte(`"done"`)))

	// Another process deleted the backend record; the cached copy must still
	// lose to backend state once it is consulted after cache invalidation.
	require.NoError(t, store.DeleteRecord(ctx, event))

	_, err := store.GetRecord(ctx, event)
	require.ErrorIs(t, err, ErrItemNotFound)

	// And a fresh claim must reach the backend and win.
	require.NoError(t, store.SaveInProgress(ctx, event))
}

func TestLocalCacheDropsExpiredRecords(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	backend := newFakeBackend(clock.Now)
	store := newTestStore(t, backend, clock, WithLocalCache(16), WithExpiresAfter(time.Minute))
	ctx := context.Background()
	event := sampleEvent()

	require.NoError(t, store.SaveInProgress(ctx, event))
	require.NoError(t, store.SaveSuccess(ctx, event, []byte(`"done"`)))

	clock.Advance(2 * time.Minute)

	// The cached record expired; the claim must go through to the backend,
	// whose conditional write also sees an expired record and accepts.
	require.NoError(t, store.SaveInProgress(ctx, event))
}

func TestBackendFailureIsWrapped(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	backend := newFakeBackend(clock.Now)
	backend.failWith = errors.New("connection reset")
	store := newTestStore(t, backend, clock)

	err := store.SaveInProgress(context.Background(), sampleEvent())

	var persistErr *PersistenceError
	require.ErrorAs(t, err, &persistErr)
	assert.Equal(t, "put record", persistErr.Op)
	assert.ErrorContains(t, err, "connection reset")
}

func TestNewStoreRejectsBadExpressions(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	backend := newFakeBackend(clock.Now)

	_, err := NewStore(backend, WithEventKeyQuery("[bad"))
	assert.Error(t, err)

	_, err = NewStore(backend, WithPayloadValidationQuery("[bad"))
	assert.Error(t, err)
}
