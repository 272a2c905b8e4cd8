package research

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// CacheEntry is one cached source response.
type CacheEntry struct {
	Key       string    `badgerhold:"key"`
	Payload   []byte    `json:"payload"`
	FetchedAt time.Time `json:"fetched_at"`
}

// SourceCache caches raw source responses in Badger so retries and repeat
// prospects do not re-hit the public APIs within the TTL.
type SourceCache struct {
	store  *badgerhold.Store
	ttl    time.Duration
	logger arbor.ILogger
}

// NewSourceCache creates a cache over the given badgerhold store. A nil
// store disables caching.
func NewSourceCache(store *badgerhold.Store, ttl time.Duration, logger arbor.ILogger) *SourceCache {
	return &SourceCache{
		store:  store,
		ttl:    ttl,
		logger: logger,
	}
}

// cacheKey derives a stable key from source name and query.
func cacheKey(source, query string) string {
	sum := sha256.Sum256([]byte(source + "|" + query))
	return "research_cache_" + hex.EncodeToString(sum[:16])
}

// Get returns the cached payload for (source, query), or nil on miss or
// expiry. Cache errors degrade to a miss.
func (c *SourceCache) Get(source, query string) []byte {
	if c == nil || c.store == nil {
		return nil
	}

	var entry CacheEntry
	err := c.store.Get(cacheKey(source, query), &entry)
	if err != nil {
		return nil
	}
	if c.ttl > 0 && time.Since(entry.FetchedAt) > c.ttl {
		return nil
	}
	return entry.Payload
}

// Put stores a payload for (source, query). Failures are logged, not returned:
// a broken cache must never fail an enrichment.
func (c *SourceCache) Put(source, query string, payload []byte) {
	if c == nil || c.store == nil {
		return
	}

	entry := CacheEntry{
		Key:       cacheKey(source, query),
		Payload:   payload,
		FetchedAt: time.Now().UTC(),
	}
	if err := c.store.Upsert(entry.Key, &entry); err != nil {
		c.logger.Warn().Err(err).Str("source", source).Msg("Failed to cache source response")
	}
}
