package handlers

import (
	"context"
	"net/url"

	"github.com/mohammed-shakir/pgstac-api/internal/core/model"
	"github.com/mohammed-shakir/pgstac-api/internal/fields"
	"github.com/mohammed-shakir/pgstac-api/internal/links"
	"github.com/mohammed-shakir/pgstac-api/internal/paging"
	"github.com/mohammed-shakir/pgstac-api/internal/search"
	"github.com/mohammed-shakir/pgstac-api/internal/stacerr"
)

// pgstac's collection_search default page size
const defaultCollectionLimit = 10

func (a *API) collection(ctx context.Context, id string) (model.Collection, error) {
	c, err := a.collections.GetCollection(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, stacerr.NotFoundf("Collection %s does not exist.", id)
	}
	return c, nil
}

// GetCollection serves GET /collections/{id}.
func (a *API) GetCollection(ctx context.Context, q links.Request, id string) (map[string]any, error) {
	c, err := a.collection(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.decorateCollection(q, shallowCopy(c)), nil
}

// Collections serves GET /collections. With collection search enabled the
// query is run through collection_search with offset paging, otherwise every
// collection is listed.
func (a *API) Collections(ctx context.Context, q links.Request, v url.Values) (map[string]any, error) {
	if !a.opts.Extensions.CollectionSearch {
		for _, p := range search.CollectionSearchParams {
			if v.Has(p) && p != "limit" && p != "offset" {
				return nil, stacerr.Validationf("Parameter %q is not available: the collection_search extension is not enabled", p)
			}
		}
		cols, err := a.catalog.AllCollections(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(cols))
		for i, c := range cols {
			out[i] = a.decorateCollection(q, shallowCopy(c))
		}
		return map[string]any{
			"collections":    out,
			"links":          model.LinkMaps(q.Base()),
			"numberMatched":  len(out),
			"numberReturned": len(out),
		}, nil
	}

	req, err := a.norm.Collections(v)
	if err != nil {
		return nil, err
	}
	res, err := a.catalog.CollectionSearch(ctx, req)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = map[string]any{}
	}

	limit := req.Limit
	if limit == 0 {
		limit = defaultCollectionLimit
	}
	page := paging.OffsetPageFrom(res, limit, req.Offset)

	raw, _ := res["collections"].([]any)
	out := make([]any, 0, len(raw))
	for _, c := range raw {
		m, ok := c.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, fields.Project(a.decorateCollection(q, m), req.Fields))
	}
	res["collections"] = out
	res["links"] = model.LinkMaps(q.Base(paging.OffsetLinks(q, page)...))
	if _, ok := res["numberMatched"]; !ok {
		res["numberMatched"] = len(out)
	}
	if _, ok := res["numberReturned"]; !ok {
		res["numberReturned"] = len(out)
	}
	return res, nil
}

// Queryables serves GET /queryables and /collections/{id}/queryables.
func (a *API) Queryables(ctx context.Context, q links.Request, collectionID string) (map[string]any, error) {
	if collectionID != "" {
		if _, err := a.collection(ctx, collectionID); err != nil {
			return nil, err
		}
	}
	doc, err := a.catalog.Queryables(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, stacerr.NotFoundf("Queryables for %s do not exist.", orAll(collectionID))
	}
	if _, ok := doc["$id"]; !ok {
		doc["$id"] = q.URL
	}
	return doc, nil
}

func orAll(id string) string {
	if id == "" {
		return "the catalog"
	}
	return "collection " + id
}

func (a *API) decorateCollection(q links.Request, c map[string]any) map[string]any {
	id := model.Collection(c).ID()
	ls := q.Collection(id, model.LinksFrom(c["links"])...)
	if a.opts.Extensions.Filter {
		ls = append(ls, q.Queryables(id))
	}
	c["links"] = model.LinkMaps(ls)
	return c
}

func shallowCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
