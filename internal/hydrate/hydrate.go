// Package hydrate rebuilds full items from the stripped rows the backend
// stores, using the collection base item as a template.
package hydrate

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/pgstac-api/internal/core/observability"
)

// DoNotMerge marks a field the backend stripped on purpose; the base value must not be inherited.
const DoNotMerge = "𒍟※"

// Merge fills item with every base key it lacks, recursing into objects and
// into equal length arrays of objects. item is modified in place and returned.
// Base values are copied so items never share structure with the template.
// A key holding DoNotMerge is removed, so merging the result again inherits
// the base value for it.
func Merge(base, item map[string]any, stripUnmatched bool) map[string]any {
	if item == nil {
		item = map[string]any{}
	}
	merge(base, item)
	if stripUnmatched {
		stripMarkers(item)
	}
	return item
}

func merge(base, item map[string]any) {
	for k, bv := range base {
		iv, ok := item[k]
		if !ok {
			item[k] = deepCopy(bv)
			continue
		}
		switch b := bv.(type) {
		case map[string]any:
			if im, ok := iv.(map[string]any); ok {
				merge(b, im)
				continue
			}
		case []any:
			if il, ok := iv.([]any); ok {
				if len(b) == len(il) {
					for i := range b {
						bm, bok := b[i].(map[string]any)
						im, iok := il[i].(map[string]any)
						if bok && iok {
							merge(bm, im)
						}
					}
				}
				continue
			}
		}
		if s, ok := iv.(string); ok && s == DoNotMerge {
			delete(item, k)
		}
	}
}

func stripMarkers(v any) {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			if s, ok := e.(string); ok && s == DoNotMerge {
				delete(t, k)
				continue
			}
			stripMarkers(e)
		}
	case []any:
		for _, e := range t {
			stripMarkers(e)
		}
	}
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}

// Hydrator merges a result set against base items from one request scoped cache.
type Hydrator struct {
	Cache        *BaseItemCache
	StripMarkers bool
	// Workers bounds parallel merges; <= 1 merges sequentially.
	Workers int
}

// Items hydrates features in place, keeping their order.
func (h Hydrator) Items(ctx context.Context, features []map[string]any) error {
	if len(features) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	if h.Workers > 1 {
		g.SetLimit(h.Workers)
	} else {
		g.SetLimit(1)
	}
	for i := range features {
		g.Go(func() error {
			return h.one(gctx, features[i])
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	observability.AddHydratedItems(len(features))
	return nil
}

func (h Hydrator) one(ctx context.Context, feature map[string]any) error {
	collectionID, _ := feature["collection"].(string)
	if collectionID == "" {
		return nil
	}
	base, err := h.Cache.Get(ctx, collectionID)
	if err != nil {
		return fmt.Errorf("base item %s: %w", collectionID, err)
	}
	Merge(withoutNulls(base), feature, h.StripMarkers)
	return nil
}

func withoutNulls(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if v != nil {
			out[k] = v
		}
	}
	return out
}
