package handlers

import (
	"context"
	"net/url"

	"github.com/mohammed-shakir/pgstac-api/internal/core/config"
	"github.com/mohammed-shakir/pgstac-api/internal/core/model"
	"github.com/mohammed-shakir/pgstac-api/internal/fields"
	"github.com/mohammed-shakir/pgstac-api/internal/hydrate"
	"github.com/mohammed-shakir/pgstac-api/internal/links"
	"github.com/mohammed-shakir/pgstac-api/internal/paging"
	"github.com/mohammed-shakir/pgstac-api/internal/search"
	"github.com/mohammed-shakir/pgstac-api/internal/stacerr"
)

// Search serves GET and POST /search. Both forms share one execution path
// after normalization.
func (a *API) Search(ctx context.Context, q links.Request, in search.Input) (map[string]any, error) {
	req, err := a.norm.Search(in)
	if err != nil {
		return nil, err
	}
	res, cursor, err := a.execute(ctx, q, req)
	if err != nil {
		return nil, err
	}
	res["links"] = model.LinkMaps(q.Search(a.pageLinks(q, cursor)...))
	return res, nil
}

// ItemCollection serves GET /collections/{id}/items after checking that the
// collection exists.
func (a *API) ItemCollection(ctx context.Context, q links.Request, collectionID string, v url.Values) (map[string]any, error) {
	if _, err := a.collection(ctx, collectionID); err != nil {
		return nil, err
	}
	req, err := a.norm.Search(search.GetParams{Values: v, CollectionID: collectionID})
	if err != nil {
		return nil, err
	}
	res, cursor, err := a.execute(ctx, q, req)
	if err != nil {
		return nil, err
	}
	res["links"] = model.LinkMaps(q.ItemCollection(collectionID, a.pageLinks(q, cursor)...))
	return res, nil
}

// GetItem serves GET /collections/{cid}/items/{iid} through the search path
// so it is hydrated like any search result.
func (a *API) GetItem(ctx context.Context, q links.Request, collectionID, itemID string) (map[string]any, error) {
	if _, err := a.collection(ctx, collectionID); err != nil {
		return nil, err
	}
	req := model.SearchRequest{Collections: []string{collectionID}, IDs: []string{itemID}, Limit: 1}
	if a.opts.APIHydrate {
		req.Conf = map[string]any{"nohydrate": true}
	}
	res, _, err := a.execute(ctx, q, req)
	if err != nil {
		return nil, err
	}
	features, _ := res["features"].([]any)
	if len(features) == 0 {
		return nil, stacerr.NotFoundf("Item %s in Collection %s does not exist.", itemID, collectionID)
	}
	item, _ := features[0].(map[string]any)
	return item, nil
}

func (a *API) pageLinks(q links.Request, c paging.Cursor) []model.Link {
	if a.opts.Extensions.Pagination == config.PaginationNone {
		return nil
	}
	return paging.CursorLinks(q, c)
}

// execute runs the search and shapes every feature: hydrate, link, project.
func (a *API) execute(ctx context.Context, q links.Request, req model.SearchRequest) (map[string]any, paging.Cursor, error) {
	res, err := a.catalog.Search(ctx, req)
	if err != nil {
		return nil, paging.Cursor{}, err
	}
	if res == nil {
		res = map[string]any{}
	}
	cursor := paging.CursorFrom(res)

	raw, _ := res["features"].([]any)
	features := make([]map[string]any, 0, len(raw))
	for _, f := range raw {
		if m, ok := f.(map[string]any); ok {
			features = append(features, m)
		}
	}

	if a.opts.APIHydrate {
		h := hydrate.Hydrator{
			Cache:        hydrate.NewBaseItemCache(a.catalog.BaseItem),
			StripMarkers: a.opts.StripMarkers,
			Workers:      a.opts.Workers,
		}
		if err := h.Items(ctx, features); err != nil {
			return nil, paging.Cursor{}, err
		}
	}

	out := make([]any, len(features))
	for i, f := range features {
		out[i] = shapeItem(q, f, req.Fields)
	}
	res["features"] = out
	res["type"] = "FeatureCollection"
	if _, ok := res["numberReturned"]; !ok {
		res["numberReturned"] = len(out)
	}
	return res, cursor, nil
}

// shapeItem attaches item links unless links are excluded or the ids needed
// to build them are missing, then applies the projection.
func shapeItem(q links.Request, f map[string]any, proj *model.Fields) map[string]any {
	it := model.Item(f)
	cid, iid := it.CollectionID(), it.ID()
	if cid != "" && iid != "" && !excludes(proj, "links") {
		f["links"] = model.LinkMaps(q.Item(cid, iid, model.LinksFrom(f["links"])...))
	}
	return fields.Project(f, proj)
}

func excludes(f *model.Fields, key string) bool {
	if f == nil {
		return false
	}
	for _, e := range f.Exclude {
		if e == key {
			return true
		}
	}
	return false
}
