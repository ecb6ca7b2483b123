package idempotency

import (
	"time"

	"github.com/maypok86/otter"
)

// recordCache is the bounded in-process cache in front of the backend.
// It holds records by idempotency key with a hard capacity cap and is never
// authoritative: a hit only short-circuits a backend read, and the conditional
// write path ignores it for claiming.
type recordCache struct {
	store otter.Cache[string, *Record]
}

// newRecordCache builds a cache with the given capacity.
func newRecordCache(capacity int) (*recordCache, error) {
	store, err := otter.MustBuilder[string, *Record](capacity).Build()
	if err != nil {
		return nil, err
	}
	return &recordCache{store: store}, nil
}

// get returns the cached record for key, dropping it when its own expiry has
// passed so stale entries cannot short-circuit reads.
func (c *recordCache) get(key string, now time.Time) (*Record, bool) {
	record, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}
	if record.IsExpired(now) {
		c.store.Delete(key)
		return nil, false
	}
	return record, true
}

// set stores a record under its key.
func (c *recordCache) set(record *Record) {
	c.store.Set(record.IdempotencyKey, record)
}

// delete removes the entry for key.
func (c *recordCache) delete(key string) {
	c.store.Delete(key)
}
