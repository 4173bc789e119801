package pubsite

import (
	"database/sql"
	"sync"
	"time"
)

// ErrNotFound is returned when a requested page or submission does not exist.
var ErrNotFound = sql.ErrNoRows

// PageCache is an in-memory TTL cache of published pages.
type PageCache struct {
	mu      sync.RWMutex
	pages   []Page
	fetched time.Time
	ttl     time.Duration
	store   *Store
}

// NewPageCache creates a PageCache backed by the given Store.
func NewPageCache(s *Store, ttl time.Duration) *PageCache {
	return &PageCache{store: s, ttl: ttl}
}

func (c *PageCache) valid() bool {
	return c.pages != nil && time.Since(c.fetched) < c.ttl
}

// Invalidate clears the cache so the next read triggers a fresh load.
func (c *PageCache) Invalidate() {
	c.mu.Lock()
	c.pages = nil
	c.mu.Unlock()
}

// ensureLoaded returns cached pages, reloading them under the write lock
// only when the cache is stale.
func (c *PageCache) ensureLoaded() ([]Page, error) {
	c.mu.RLock()
	if c.valid() {
		pages := c.pages
		c.mu.RUnlock()
		return pages, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.valid() {
		return c.pages, nil
	}
	pages, err := c.store.ListPages()
	if err != nil {
		return nil, err
	}
	if pages == nil {
		pages = []Page{}
	}
	c.pages = pages
	c.fetched = time.Now()
	return c.pages, nil
}

// ListPages returns published pages. A non-empty kind filters by kind.
func (c *PageCache) ListPages(kind string) ([]Page, error) {
	pages, err := c.ensureLoaded()
	if err != nil {
		return nil, err
	}
	if kind == "" {
		return pages, nil
	}
	var filtered []Page
	for _, p := range pages {
		if p.Kind == kind {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

// GetPage returns a single published page from the cache.
func (c *PageCache) GetPage(slug, locale string) (Page, error) {
	pages, err := c.ensureLoaded()
	if err != nil {
		return Page{}, err
	}
	for _, p := range pages {
		if p.Slug == slug && p.Locale == locale {
			return p, nil
		}
	}
	return Page{}, ErrNotFound
}
