package jobs

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultTimelineCacheSize = 256
	defaultTimelineCacheTTL  = 10 * time.Minute
)

// TimelineCache fronts GetTimeline with an in-memory LRU. Timelines never
// change once saved, so entries only leave through eviction or TTL; the TTL
// bounds how long a purged timeline can still be served.
type TimelineCache struct {
	store *Store
	cache *expirable.LRU[string, *TimelineRecord]
}

// NewTimelineCache wraps store. Non-positive size or ttl use defaults.
func NewTimelineCache(store *Store, size int, ttl time.Duration) *TimelineCache {
	if size <= 0 {
		size = defaultTimelineCacheSize
	}
	if ttl <= 0 {
		ttl = defaultTimelineCacheTTL
	}
	return &TimelineCache{
		store: store,
		cache: expirable.NewLRU[string, *TimelineRecord](size, nil, ttl),
	}
}

// Get returns the cached record or loads it from the store.
func (c *TimelineCache) Get(ctx context.Context, id string) (*TimelineRecord, error) {
	if record, ok := c.cache.Get(id); ok {
		return record, nil
	}
	record, err := c.store.GetTimeline(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, record)
	return record, nil
}

// Forget drops id from the cache.
func (c *TimelineCache) Forget(id string) {
	c.cache.Remove(id)
}

// Len reports the number of cached timelines.
func (c *TimelineCache) Len() int {
	return c.cache.Len()
}
