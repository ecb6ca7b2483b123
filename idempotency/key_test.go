package idempotency

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	"github.com/julianobarbosa/lambdakit/internal/jsonutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEvent(t *testing.T, raw string) any {
	t.Helper()

	event, err := jsonutil.Decode([]byte(raw))
	require.NoError(t, err)
	return event
}

func TestDeriveKeyIsDeterministic(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	store := newTestStore(t, newFakeBackend(clock.Now), clock, WithKeyPrefix("orders-fn"))

	event := decodeEvent(t, `{"body":{"order_id":"abc-123"},"tenant":"645654"}`)

	first, err := store.deriveKey(event)
	require.NoError(t, err)
	second, err := store.deriveKey(event)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDeriveKeyIgnoresMappingOrder(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	store := newTestStore(t, newFakeBackend(clock.Now), clock)

	a := decodeEvent(t, `{"first":1,"second":{"x":true,"y":"z"}}`)
	b := decodeEvent(t, `{"second":{"y":"z","x":true},"first":1}`)

	keyA, err := store.deriveKey(a)
	require.NoError(t, err)
	keyB, err := store.deriveKey(b)
	require.NoError(t, err)

	assert.Equal(t, keyA, keyB)
}

func TestDeriveKeyFormat(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	store := newTestStore(t, newFakeBackend(clock.Now), clock,
		WithKeyPrefix("orders-fn"),
		WithEventKeyQuery("body"),
	)

	event := decodeEvent(t, `{"body":{"order_id":"abc-123"},"noise":"ignored"}`)

	key, err := store.deriveKey(event)
	require.NoError(t, err)

	canonical, err := jsonutil.Canonical(decodeEvent(t, `{"order_id":"abc-123"}`))
	require.NoError(t, err)
	sum := md5.Sum(canonical)
	expected := fmt.Sprintf("orders-fn#%s", hex.EncodeToString(sum[:]))

	assert.Equal(t, expected, key)
}

func TestDeriveKeySelectsSubset(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	store := newTestStore(t, newFakeBackend(clock.Now), clock, WithEventKeyQuery("body.order_id"))

	a := decodeEvent(t, `{"body":{"order_id":"abc-123"},"headers":{"x-trace":"1"}}`)
	b := decodeEvent(t, `{"body":{"order_id":"abc-123"},"headers":{"x-trace":"2"}}`)

	keyA, err := store.deriveKey(a)
	require.NoError(t, err)
	keyB, err := store.deriveKey(b)
	require.NoError(t, err)

	assert.Equal(t, keyA, keyB, "data outside the key query must not influence the key")
}

func TestDeriveKeyNoSelection(t *testing.T) {
	t.Parallel()

	clock := newTestClock()

	// Default mode hashes the empty selection, so the call still succeeds.
	lenient := newTestStore(t, newFakeBackend(clock.Now), clock, WithEventKeyQuery("missing.path"))
	event := decodeEvent(t, `{"body":{}}`)

	_, err := lenient.deriveKey(event)
	require.NoError(t, err)

	// Strict mode refuses to derive a key from nothing.
	strict := newTestStore(t, newFakeBackend(clock.Now), clock,
		WithEventKeyQuery("missing.path"),
		WithRaiseOnNoIdempotencyKey(),
	)

	_, err = strict.deriveKey(event)
	require.ErrorIs(t, err, ErrNoIdempotencyKey)
}

func TestDeriveKeyMultiSelectOfMissingPathsIsEmpty(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	strict := newTestStore(t, newFakeBackend(clock.Now), clock,
		WithEventKeyQuery("[body, queryStringParameters]"),
		WithRaiseOnNoIdempotencyKey(),
	)

	event := decodeEvent(t, `{"unrelated":true}`)

	_, err := strict.deriveKey(event)
	require.ErrorIs(t, err, ErrNoIdempotencyKey)
}

func TestDeriveKeyCustomExtractor(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	event := decodeEvent(t, `{"body":{"order_id":"abc-123"},"noise":"ignored"}`)

	// The extractor replaces the path engine entirely. Selecting the same
	// subset by hand must land on the same key a query would.
	byExtractor := newTestStore(t, newFakeBackend(clock.Now), clock,
		WithEventKeyExtractor(func(event any) (any, error) {
			return event.(map[string]any)["body"], nil
		}),
	)
	byQuery := newTestStore(t, newFakeBackend(clock.Now), clock, WithEventKeyQuery("body"))

	keyA, err := byExtractor.deriveKey(event)
	require.NoError(t, err)
	keyB, err := byQuery.deriveKey(event)
	require.NoError(t, err)
	assert.Equal(t, keyB, keyA)
}

func TestDeriveKeyExtractorPrecedenceAndErrors(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	event := decodeEvent(t, `{"body":{"order_id":"abc-123"}}`)

	// An extractor wins over a configured query, even an invalid one that
	// would otherwise fail compilation at construction time.
	store := newTestStore(t, newFakeBackend(clock.Now), clock,
		WithEventKeyQuery("!!not-a-valid-expression"),
		WithEventKeyExtractor(func(any) (any, error) { return "fixed", nil }),
	)
	key, err := store.deriveKey(event)
	require.NoError(t, err)

	other, err := store.deriveKey(decodeEvent(t, `{"entirely":"different"}`))
	require.NoError(t, err)
	assert.Equal(t, key, other, "a constant extractor must collapse all events onto one key")

	// Extractor failures surface to the caller.
	failing := newTestStore(t, newFakeBackend(clock.Now), clock,
		WithEventKeyExtractor(func(any) (any, error) {
			return nil, errors.New("envelope decode failed")
		}),
	)
	_, err = failing.deriveKey(event)
	require.ErrorContains(t, err, "envelope decode failed")

	// A nil extraction counts as no selection in strict mode.
	strict := newTestStore(t, newFakeBackend(clock.Now), clock,
		WithEventKeyExtractor(func(any) (any, error) { return nil, nil }),
		WithRaiseOnNoIdempotencyKey(),
	)
	_, err = strict.deriveKey(event)
	require.ErrorIs(t, err, ErrNoIdempotencyKey)
}

func TestSaveInProgressStrictModeSurfacesKeyError(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	store := newTestStore(t, newFakeBackend(clock.Now), clock,
		WithEventKeyQuery("missing.path"),
		WithRaiseOnNoIdempotencyKey(),
	)

	err := store.SaveInProgress(context.Background(), decodeEvent(t, `{"a":1}`))
	require.ErrorIs(t, err, ErrNoIdempotencyKey)
}
