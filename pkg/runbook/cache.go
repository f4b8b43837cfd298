// Package runbook fetches alert-referenced runbook content over HTTP and
// caches it so repeated alerts for the same service do not refetch.
package runbook

import (
	"sync"
	"time"
)

type cachedRunbook struct {
	content   string
	fetchedAt time.Time
}

// Cache is an in-memory TTL cache keyed by runbook URL. Stale entries are
// evicted on access; there is no background sweeper.
type Cache struct {
	mu    sync.Mutex
	ttl   time.Duration
	byURL map[string]cachedRunbook
}

// NewCache creates a cache whose entries expire after ttl.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:   ttl,
		byURL: make(map[string]cachedRunbook),
	}
}

// Get returns the cached content for url, evicting it first when stale.
func (c *Cache) Get(url string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.byURL[url]
	if !ok {
		return "", false
	}
	if time.Since(entry.fetchedAt) > c.ttl {
		delete(c.byURL, url)
		return "", false
	}
	return entry.content, true
}

// Set stores content for url, stamping it with the current time.
func (c *Cache) Set(url, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byURL[url] = cachedRunbook{content: content, fetchedAt: time.Now()}
}
