package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianobarbosa/lambdakit/idempotency"
)

func newTestBackend(t *testing.T, opts ...Option) (*Backend, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{
		Addr: server.Addr(),
	})
	t.Cleanup(func() {
		_ = client.Close()
	})

	return New(client, opts...), server
}

func liveRecord(key string) *idempotency.Record {
	return &idempotency.Record{
		IdempotencyKey:  key,
		Status:          idempotency.StatusInProgress,
		ExpiryTimestamp: time.Now().Add(time.Hour).Unix(),
		PayloadHash:     "abc123",
	}
}

func TestPutRecord(t *testing.T) {
	t.Parallel()

	t.Run("claims a free key", func(t *testing.T) {
		t.Parallel()

		backend, server := newTestBackend(t)

		err := backend.PutRecord(context.Background(), liveRecord("handler#aaa"))
		require.NoError(t, err)

		assert.True(t, server.Exists("idempotency:handler#aaa"))
	})

	t.Run("rejects a claimed key", func(t *testing.T) {
		t.Parallel()

		backend, _ := newTestBackend(t)

		require.NoError(t, backend.PutRecord(context.Background(), liveRecord("handler#aaa")))

		err := backend.PutRecord(context.Background(), liveRecord("handler#aaa"))
		assert.ErrorIs(t, err, idempotency.ErrItemAlreadyExists)
	})

	t.Run("frees the key once the ttl elapses", func(t *testing.T) {
		t.Parallel()

		backend, server := newTestBackend(t)

		record := liveRecord("handler#aaa")
		require.NoError(t, backend.PutRecord(context.Background(), record))

		server.FastForward(2 * time.Hour)

		err := backend.PutRecord(context.Background(), liveRecord("handler#aaa"))
		assert.NoError(t, err)
	})

	t.Run("refuses a record that is already expired", func(t *testing.T) {
		t.Parallel()

		backend, _ := newTestBackend(t)

		record := liveRecord("handler#aaa")
		record.ExpiryTimestamp = time.Now().Add(-time.Minute).Unix()

		err := backend.PutRecord(context.Background(), record)
		assert.Error(t, err)
	})

	t.Run("applies the configured key prefix", func(t *testing.T) {
		t.Parallel()

		backend, server := newTestBackend(t, WithKeyPrefix("orders"))

		require.NoError(t, backend.PutRecord(context.Background(), liveRecord("handler#aaa")))

		assert.True(t, server.Exists("orders:handler#aaa"))
		assert.False(t, server.Exists("idempotency:handler#aaa"))
	})
}

func TestGetRecord(t *testing.T) {
	t.Parallel()

	t.Run("round-trips a stored record", func(t *testing.T) {
		t.Parallel()

		backend, _ := newTestBackend(t)

		want := liveRecord("handler#aaa")
		want.Status = idempotency.StatusCompleted
		want.ResponseData = json.RawMessage(`{"order_id":"o-1","total":19.90}`)
		require.NoError(t, backend.PutRecord(context.Background(), want))

		got, err := backend.GetRecord(context.Background(), "handler#aaa")
		require.NoError(t, err)

		assert.Equal(t, want.IdempotencyKey, got.IdempotencyKey)
		assert.Equal(t, want.Status, got.Status)
		assert.JSONEq(t, string(want.ResponseData), string(got.ResponseData))
		assert.Equal(t, want.ExpiryTimestamp, got.ExpiryTimestamp)
		assert.Equal(t, want.PayloadHash, got.PayloadHash)
	})

	t.Run("reports a missing key", func(t *testing.T) {
		t.Parallel()

		backend, _ := newTestBackend(t)

		_, err := backend.GetRecord(context.Background(), "handler#missing")
		assert.ErrorIs(t, err, idempotency.ErrItemNotFound)
	})

	t.Run("reports an evicted key as missing", func(t *testing.T) {
		t.Parallel()

		backend, server := newTestBackend(t)

		require.NoError(t, backend.PutRecord(context.Background(), liveRecord("handler#aaa")))
		server.FastForward(2 * time.Hour)

		_, err := backend.GetRecord(context.Background(), "handler#aaa")
		assert.ErrorIs(t, err, idempotency.ErrItemNotFound)
	})
}

func TestUpdateRecord(t *testing.T) {
	t.Parallel()

	t.Run("overwrites an in-progress record", func(t *testing.T) {
		t.Parallel()

		backend, _ := newTestBackend(t)

		record := liveRecord("handler#aaa")
		require.NoError(t, backend.PutRecord(context.Background(), record))

		record.Status = idempotency.StatusCompleted
		record.ResponseData = json.RawMessage(`{"ok":true}`)
		require.NoError(t, backend.UpdateRecord(context.Background(), record))

		got, err := backend.GetRecord(context.Background(), "handler#aaa")
		require.NoError(t, err)
		assert.Equal(t, idempotency.StatusCompleted, got.Status)
		assert.JSONEq(t, `{"ok":true}`, string(got.ResponseData))
	})

	t.Run("refreshes the ttl", func(t *testing.T) {
		t.Parallel()

		backend, server := newTestBackend(t)

		record := liveRecord("handler#aaa")
		require.NoError(t, backend.PutRecord(context.Background(), record))

		record.ExpiryTimestamp = time.Now().Add(3 * time.Hour).Unix()
		require.NoError(t, backend.UpdateRecord(context.Background(), record))

		ttl := server.TTL("idempotency:handler#aaa")
		assert.Greater(t, ttl, 2*time.Hour)
	})
}

func TestDeleteRecord(t *testing.T) {
	t.Parallel()

	t.Run("removes a record", func(t *testing.T) {
		t.Parallel()

		backend, server := newTestBackend(t)

		require.NoError(t, backend.PutRecord(context.Background(), liveRecord("handler#aaa")))
		require.NoError(t, backend.DeleteRecord(context.Background(), "handler#aaa"))

		assert.False(t, server.Exists("idempotency:handler#aaa"))
	})

	t.Run("tolerates a missing record", func(t *testing.T) {
		t.Parallel()

		backend, _ := newTestBackend(t)

		assert.NoError(t, backend.DeleteRecord(context.Background(), "handler#missing"))
	})
}
