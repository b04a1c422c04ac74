package hydrate

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/mohammed-shakir/pgstac-api/internal/core/observability"
)

type FetchFunc func(ctx context.Context, collectionID string) (map[string]any, error)

// BaseItemCache maps collection id to base item for the lifetime of one
// request. Concurrent misses for the same id share a single fetch.
// Entries are never invalidated; build a new cache per request.
type BaseItemCache struct {
	fetch FetchFunc

	mu    sync.RWMutex
	items map[string]map[string]any
	group singleflight.Group
}

func NewBaseItemCache(fetch FetchFunc) *BaseItemCache {
	return &BaseItemCache{fetch: fetch, items: map[string]map[string]any{}}
}

// Get returns the cached template. Callers must not modify it.
func (c *BaseItemCache) Get(ctx context.Context, collectionID string) (map[string]any, error) {
	c.mu.RLock()
	b, ok := c.items[collectionID]
	c.mu.RUnlock()
	if ok {
		observability.IncBaseItemHit()
		return b, nil
	}

	v, err, _ := c.group.Do(collectionID, func() (any, error) {
		c.mu.RLock()
		b, ok := c.items[collectionID]
		c.mu.RUnlock()
		if ok {
			return b, nil
		}
		observability.IncBaseItemMiss()
		b, err := c.fetch(ctx, collectionID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.items[collectionID] = b
		c.mu.Unlock()
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	m, _ := v.(map[string]any)
	return m, nil
}

func (c *BaseItemCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
