// Package papercache is the in-process store that lets POST
// /api/synthesize resolve paper_ids returned by an earlier
// POST /api/search, since the Paper Adapter itself is stateless (every
// call dispatches fresh to the upstream sources).
package papercache

import (
	"sync"
	"time"

	"github.com/nocturnal-archive/gateway/internal/model"
)

type entry struct {
	paper    model.Paper
	cachedAt time.Time
}

// Cache is a TTL-expiring map from PaperID to the last Paper seen with
// that id. It has no size bound, and expired entries are skipped on
// read but not removed. Entries are written on every search response and
// read by synthesis lookups; a miss there means the id was never
// returned by a search, or has aged out.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// New constructs a Cache with the given entry lifetime.
func New(ttl time.Duration) *Cache {
	return &Cache{entries: make(map[string]entry), ttl: ttl, now: time.Now}
}

// Put records every paper in papers, keyed by PaperID.
func (c *Cache) Put(papers []model.Paper) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for _, p := range papers {
		c.entries[p.PaperID] = entry{paper: p, cachedAt: now}
	}
}

// Get returns the cached Paper for id, if present and not expired.
func (c *Cache) Get(id string) (model.Paper, bool) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		return model.Paper{}, false
	}
	if c.ttl > 0 && c.now().Sub(e.cachedAt) > c.ttl {
		return model.Paper{}, false
	}
	return e.paper, true
}
