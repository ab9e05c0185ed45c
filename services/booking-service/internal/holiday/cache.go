package holiday

import (
	"fmt"
	"sync"
	"time"
)

// yearCache is a small fixed-size cache of holiday sets keyed by
// country+year. Entries expire after the TTL; when full, the oldest entry
// makes room for the new one.
type yearCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	max     int
}

type cacheEntry struct {
	dates    map[string]struct{}
	fetchedAt time.Time
}

const (
	cacheTTL        = 12 * time.Hour
	cacheMaxEntries = 8
)

func newYearCache() *yearCache {
	return &yearCache{entries: map[string]cacheEntry{}, ttl: cacheTTL, max: cacheMaxEntries}
}

func cacheKey(country string, year int) string {
	return fmt.Sprintf("%s:%d", country, year)
}

func (c *yearCache) get(country string, year int, now time.Time) (map[string]struct{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cacheKey(country, year)]
	if !ok || now.Sub(e.fetchedAt) >= c.ttl {
		return nil, false
	}
	return e.dates, true
}

func (c *yearCache) put(country string, year int, dates map[string]struct{}, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.max {
		oldestKey := ""
		var oldest time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.fetchedAt.Before(oldest) {
				oldestKey = k
				oldest = e.fetchedAt
			}
		}
		delete(c.entries, oldestKey)
	}
	c.entries[cacheKey(country, year)] = cacheEntry{dates: dates, fetchedAt: now}
}
