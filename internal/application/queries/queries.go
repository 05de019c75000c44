// Package queries implements the read side: projection-backed lookups and
// listings with field selection, offset pagination, and a read-through
// cache. Queries never touch the event store.
package queries

import (
	"encoding/json"
	"time"

	"libris-backend/internal/repository"
)

const defaultCacheTTL = 30 * time.Second

// Config carries the pagination bounds and cache TTL shared by every query
// service.
type Config struct {
	Pagination repository.PaginationDefaults
	CacheTTL   time.Duration
}

func (c Config) withDefaults() Config {
	if c.CacheTTL <= 0 {
		c.CacheTTL = defaultCacheTTL
	}
	return c
}

// cacheKey builds the canonical key for a query under an entity prefix.
// The payload is a struct, so marshaling yields a fixed field order and
// equal queries produce equal keys.
func cacheKey(prefix, kind string, payload interface{}) string {
	raw, err := json.Marshal(payload)
	if err != nil {
		return prefix + kind
	}
	return prefix + kind + ":" + string(raw)
}

// fromCache loads a typed entry. Cached values are shared; callers must
// treat them as read-only.
func fromCache[T any](cache repository.QueryCache, key string) (T, bool) {
	var zero T
	if cache == nil {
		return zero, false
	}
	value, ok := cache.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := value.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

func putCache(cache repository.QueryCache, key string, value interface{}, ttl time.Duration) {
	if cache == nil {
		return
	}
	cache.Set(key, value, ttl)
}

// trimPage applies field selection to every document of a page, preserving
// the pagination block.
func trimPage[T any](resp *repository.PageResponse[T], fields []string) (*repository.PageResponse[map[string]interface{}], error) {
	items := make([]map[string]interface{}, 0, len(resp.Data))
	for _, doc := range resp.Data {
		trimmed, err := repository.SelectFields(doc, fields)
		if err != nil {
			return nil, err
		}
		items = append(items, trimmed)
	}
	return &repository.PageResponse[map[string]interface{}]{
		Data:       items,
		Pagination: resp.Pagination,
	}, nil
}
