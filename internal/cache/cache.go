package cache

import (
	"sync"
	"time"

	"github.com/sdko-org/photo-insights/internal/models"
)

// RecentCache holds the most recently built page of the recent listing.
// A stored page serves any request for at most pageSize items until it
// expires; every refresh replaces it wholesale.
type RecentCache struct {
	mu        sync.RWMutex
	items     []models.RecentItem
	expiresAt time.Time
	pageSize  int

	ttl time.Duration
	now func() time.Time
}

func NewRecentCache(ttl time.Duration) *RecentCache {
	return &RecentCache{ttl: ttl, now: time.Now}
}

// WithClock replaces the time source.
func (c *RecentCache) WithClock(now func() time.Time) *RecentCache {
	c.now = now
	return c
}

// Get returns the first limit cached items when the page is unexpired and
// large enough.
func (c *RecentCache) Get(limit int) ([]models.RecentItem, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.now().Before(c.expiresAt) || c.pageSize < limit {
		return nil, false
	}
	return c.items[:limit], true
}

func (c *RecentCache) Store(items []models.RecentItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = items
	c.pageSize = len(items)
	c.expiresAt = c.now().Add(c.ttl)
}
