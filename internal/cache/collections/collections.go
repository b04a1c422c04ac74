// Package collections caches collection documents in Redis in front of the
// catalog. Cache failures degrade to a direct backend read.
package collections

import (
	"context"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"github.com/mohammed-shakir/pgstac-api/internal/cache"
	"github.com/mohammed-shakir/pgstac-api/internal/cache/keys"
	"github.com/mohammed-shakir/pgstac-api/internal/core/model"
	"github.com/mohammed-shakir/pgstac-api/internal/core/observability"
	"github.com/mohammed-shakir/pgstac-api/internal/transactions"
)

// Source returns nil without error for a missing collection.
type Source interface {
	GetCollection(ctx context.Context, id string) (model.Collection, error)
}

type Options struct {
	Namespace string
	TTL       time.Duration
	// OpTimeout bounds each Redis call so a slow cache never holds a request.
	OpTimeout time.Duration
}

type Cache struct {
	src   Source
	store cache.Store
	opts  Options
	log   *slog.Logger
}

func New(src Source, store cache.Store, opts Options, log *slog.Logger) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 250 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &Cache{src: src, store: store, opts: opts, log: log}
}

func (c *Cache) key(id string) string { return keys.Collection(c.opts.Namespace, id) }

func (c *Cache) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.opts.OpTimeout)
}

// GetCollection serves from Redis when possible. Missing collections are not
// cached so a later create is visible immediately.
func (c *Cache) GetCollection(ctx context.Context, id string) (model.Collection, error) {
	rctx, cancel := c.bounded(ctx)
	raw, ok, err := c.store.Get(rctx, c.key(id))
	cancel()

	switch {
	case err != nil:
		observability.IncCollectionCache("error")
		c.log.WarnContext(ctx, "collection cache read failed", "collection", id, "err", err)
	case ok:
		var col model.Collection
		if derr := json.Unmarshal(raw, &col); derr == nil && col != nil {
			observability.IncCollectionCache("hit")
			return col, nil
		}
		observability.IncCollectionCache("corrupt")
	default:
		observability.IncCollectionCache("miss")
	}

	col, err := c.src.GetCollection(ctx, id)
	if err != nil || col == nil {
		return col, err
	}
	c.put(ctx, id, col)
	return col, nil
}

func (c *Cache) put(ctx context.Context, id string, col model.Collection) {
	b, err := json.Marshal(col)
	if err != nil {
		return
	}
	wctx, cancel := c.bounded(ctx)
	defer cancel()
	if err := c.store.Set(wctx, c.key(id), b, c.opts.TTL); err != nil {
		c.log.WarnContext(ctx, "collection cache write failed", "collection", id, "err", err)
	}
}

// Invalidate drops the cached document for id.
func (c *Cache) Invalidate(ctx context.Context, id string) error {
	dctx, cancel := c.bounded(ctx)
	defer cancel()
	start := time.Now()
	err := c.store.Del(dctx, c.key(id))
	observability.ObserveInvalidation("local", err, time.Since(start).Seconds())
	return err
}

// Notify invalidates on every committed write. Item writes count too since
// they can change a collection's extent.
func (c *Cache) Notify(ctx context.Context, ch transactions.Change) error {
	return c.Invalidate(ctx, ch.CollectionID)
}
