// Package cache implements the query-result cache: an in-memory LRU with
// per-entry TTL and prefix invalidation. It is thread-safe and sized for
// single-instance deployments; a distributed deployment would swap in a
// shared cache behind the same interface.
package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"libris-backend/internal/repository"
)

// QueryCache caches query responses keyed by a canonical request string.
// Projection handlers invalidate by entity prefix after every write, so a
// hit can only be as stale as the TTL after the last write.
type QueryCache struct {
	mu       sync.Mutex
	items    map[string]*cacheEntry
	lruList  *list.List
	maxItems int

	hits      int64
	misses    int64
	evictions int64

	logger *zap.Logger
}

// Compile-time interface check
var _ repository.QueryCache = (*QueryCache)(nil)

type cacheEntry struct {
	key        string
	value      interface{}
	expiry     time.Time
	lruElement *list.Element
}

// NewQueryCache creates a cache bounded to maxItems entries.
func NewQueryCache(maxItems int, logger *zap.Logger) *QueryCache {
	if maxItems <= 0 {
		maxItems = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryCache{
		items:    make(map[string]*cacheEntry),
		lruList:  list.New(),
		maxItems: maxItems,
		logger:   logger,
	}
}

// Get returns the cached value when present and unexpired.
func (c *QueryCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.items[key]
	if !exists {
		c.misses++
		return nil, false
	}
	if time.Now().After(entry.expiry) {
		c.removeEntry(entry)
		c.misses++
		return nil, false
	}

	c.lruList.MoveToFront(entry.lruElement)
	c.hits++
	return entry.value, true
}

// Set stores a value with its TTL, evicting the least recently used entry
// when the cache is full.
func (c *QueryCache) Set(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, exists := c.items[key]; exists {
		existing.value = value
		existing.expiry = time.Now().Add(ttl)
		c.lruList.MoveToFront(existing.lruElement)
		return
	}

	for len(c.items) >= c.maxItems {
		oldest := c.lruList.Back()
		if oldest == nil {
			break
		}
		c.removeEntry(oldest.Value.(*cacheEntry))
		c.evictions++
	}

	entry := &cacheEntry{
		key:    key,
		value:  value,
		expiry: time.Now().Add(ttl),
	}
	entry.lruElement = c.lruList.PushFront(entry)
	c.items[key] = entry
}

// InvalidatePrefix drops every entry whose key starts with the prefix.
func (c *QueryCache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var dropped int
	for key, entry := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.removeEntry(entry)
			dropped++
		}
	}
	if dropped > 0 {
		c.logger.Debug("cache invalidated",
			zap.String("prefix", prefix),
			zap.Int("entries", dropped),
		)
	}
}

// Stats reports cumulative cache effectiveness counters.
func (c *QueryCache) Stats() (hits, misses, evictions int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.evictions
}

// removeEntry must be called with the lock held.
func (c *QueryCache) removeEntry(entry *cacheEntry) {
	delete(c.items, entry.key)
	if entry.lruElement != nil {
		c.lruList.Remove(entry.lruElement)
	}
}
