package handlers

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/mohammed-shakir/pgstac-api/internal/core/model"
)

// fakeCatalog is an in-memory backend. Tokens are item offsets, so following
// a token twice yields the same page.
type fakeCatalog struct {
	mu          sync.Mutex
	collections map[string]model.Collection
	items       []map[string]any
	bases       map[string]map[string]any

	searches        []model.SearchRequest
	collectionReqs  []model.CollectionSearchRequest
	baseItemFetches map[string]int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		collections:     map[string]model.Collection{},
		bases:           map[string]map[string]any{},
		baseItemFetches: map[string]int{},
	}
}

func (f *fakeCatalog) addCollection(id string) {
	f.collections[id] = model.Collection{
		"type": "Collection", "id": id, "title": "Collection " + id,
		"links": []any{map[string]any{"rel": "license", "href": "./license.txt"}},
	}
}

func (f *fakeCatalog) addItem(collection, id string, props map[string]any) {
	f.items = append(f.items, map[string]any{
		"type":       "Feature",
		"id":         id,
		"collection": collection,
		"geometry":   map[string]any{"type": "Point", "coordinates": []any{1.0, 2.0}},
		"properties": props,
	})
}

func clone[T any](v T) T {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	return out
}

func (f *fakeCatalog) Search(_ context.Context, req model.SearchRequest) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, req)

	matched := make([]map[string]any, 0, len(f.items))
	for _, it := range f.items {
		if len(req.Collections) > 0 && !slices.Contains(req.Collections, it["collection"].(string)) {
			continue
		}
		if len(req.IDs) > 0 && !slices.Contains(req.IDs, it["id"].(string)) {
			continue
		}
		matched = append(matched, it)
	}

	limit := req.Limit
	if limit == 0 {
		limit = 10
	}
	start := 0
	switch {
	case strings.HasPrefix(req.Token, "next:"):
		start, _ = strconv.Atoi(strings.TrimPrefix(req.Token, "next:"))
	case strings.HasPrefix(req.Token, "prev:"):
		end, _ := strconv.Atoi(strings.TrimPrefix(req.Token, "prev:"))
		start = max(end-limit, 0)
	}
	end := min(start+limit, len(matched))

	page := make([]any, 0, end-start)
	for _, it := range matched[start:end] {
		page = append(page, clone(it))
	}
	res := map[string]any{
		"type":          "FeatureCollection",
		"features":      page,
		"numberMatched": float64(len(matched)),
		"links":         []any{},
	}
	if end < len(matched) {
		res["next"] = strconv.Itoa(end)
	}
	if start > 0 {
		res["prev"] = strconv.Itoa(start)
	}
	return res, nil
}

func (f *fakeCatalog) GetCollection(_ context.Context, id string) (model.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collections[id]
	if !ok {
		return nil, nil
	}
	return clone(c), nil
}

func (f *fakeCatalog) AllCollections(_ context.Context) ([]model.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.collections))
	for id := range f.collections {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]model.Collection, len(ids))
	for i, id := range ids {
		out[i] = clone(f.collections[id])
	}
	return out, nil
}

func (f *fakeCatalog) CollectionSearch(_ context.Context, req model.CollectionSearchRequest) (map[string]any, error) {
	f.mu.Lock()
	f.collectionReqs = append(f.collectionReqs, req)
	f.mu.Unlock()

	all, _ := f.AllCollections(context.Background())
	limit := req.Limit
	if limit == 0 {
		limit = 10
	}
	start := min(req.Offset, len(all))
	end := min(start+limit, len(all))
	page := make([]any, 0, end-start)
	for _, c := range all[start:end] {
		page = append(page, map[string]any(c))
	}
	return map[string]any{
		"collections":   page,
		"numberMatched": float64(len(all)),
		"links":         []any{},
	}, nil
}

func (f *fakeCatalog) BaseItem(_ context.Context, collectionID string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.baseItemFetches[collectionID]++
	return clone(f.bases[collectionID]), nil
}

func (f *fakeCatalog) Queryables(_ context.Context, collectionID string) (map[string]any, error) {
	doc := map[string]any{
		"$schema":    "https://json-schema.org/draft/2019-09/schema",
		"type":       "object",
		"properties": map[string]any{"id": map[string]any{"type": "string"}},
	}
	if collectionID != "" {
		doc["title"] = collectionID
	}
	return doc, nil
}

func (f *fakeCatalog) lastSearch() model.SearchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searches[len(f.searches)-1]
}
