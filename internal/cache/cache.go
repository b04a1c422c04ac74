// Package cache holds the storage contract shared by the Redis backed caches.
package cache

import (
	"context"
	"time"
)

// Store is satisfied by *redisstore.Client.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}
