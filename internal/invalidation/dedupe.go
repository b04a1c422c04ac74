package invalidation

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Dedupe remembers the highest sequence applied per key. Redelivered or
// reordered events at or below it are skipped.
type Dedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, uint64]
}

func NewDedupe(size int) *Dedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, uint64](size)
	return &Dedupe{lru: c}
}

// Stale reports whether seq is at or below the last recorded for key.
func (d *Dedupe) Stale(key string, seq uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lru.Get(key)
	return ok && seq <= last
}

// Record marks seq as applied for key. Lower values never replace higher ones.
func (d *Dedupe) Record(key string, seq uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(key); ok && seq <= last {
		return
	}
	d.lru.Add(key, seq)
}
