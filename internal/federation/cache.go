package federation

import (
	"time"

	"github.com/halwell/parlq/internal/storage"
)

const defaultCacheTTL = 15 * time.Minute

// StoreCache backs the executor's cache with the SQLite store, applying the
// configured TTL to mutable entries on read.
type StoreCache struct {
	store *storage.Store
	ttl   time.Duration
}

// NewStoreCache wraps the store; a non-positive ttl selects the default.
func NewStoreCache(store *storage.Store, ttl time.Duration) *StoreCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &StoreCache{store: store, ttl: ttl}
}

func (c *StoreCache) Get(key string) ([]byte, bool, error) {
	return c.store.CacheGet(key, c.ttl)
}

func (c *StoreCache) Put(key string, payload []byte, immutable bool) error {
	return c.store.CachePut(key, payload, immutable)
}
