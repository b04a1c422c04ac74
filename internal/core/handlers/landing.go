package handlers

import (
	"context"
	"net/url"

	"github.com/mohammed-shakir/pgstac-api/internal/core/model"
	"github.com/mohammed-shakir/pgstac-api/internal/links"
)

const stacVersion = "1.0.0"

var coreConformance = []string{
	"https://api.stacspec.org/v1.0.0/core",
	"https://api.stacspec.org/v1.0.0/collections",
	"https://api.stacspec.org/v1.0.0/ogcapi-features",
	"https://api.stacspec.org/v1.0.0/item-search",
	"http://www.opengis.net/spec/ogcapi-features-1/1.0/conf/core",
	"http://www.opengis.net/spec/ogcapi-features-1/1.0/conf/oas30",
	"http://www.opengis.net/spec/ogcapi-features-1/1.0/conf/geojson",
}

// ConformsTo lists the conformance classes of the enabled capabilities.
func (a *API) ConformsTo() []string {
	ext := a.opts.Extensions
	out := append([]string(nil), coreConformance...)
	if ext.Query {
		out = append(out, "https://api.stacspec.org/v1.0.0/item-search#query")
	}
	if ext.Sort {
		out = append(out, "https://api.stacspec.org/v1.0.0/item-search#sort")
	}
	if ext.Fields {
		out = append(out, "https://api.stacspec.org/v1.0.0/item-search#fields")
	}
	if ext.Filter {
		out = append(out,
			"https://api.stacspec.org/v1.0.0-rc.2/item-search#filter",
			"http://www.opengis.net/spec/ogcapi-features-3/1.0/conf/filter",
			"http://www.opengis.net/spec/ogcapi-features-3/1.0/conf/features-filter",
			"http://www.opengis.net/spec/cql2/1.0/conf/cql2-text",
			"http://www.opengis.net/spec/cql2/1.0/conf/cql2-json",
			"http://www.opengis.net/spec/cql2/1.0/conf/basic-cql2",
			"http://www.opengis.net/spec/cql2/1.0/conf/basic-spatial-operators",
		)
	}
	if ext.FreeText {
		out = append(out, "https://api.stacspec.org/v1.0.0-rc.1/item-search#free-text")
	}
	if ext.Transactions {
		out = append(out,
			"https://api.stacspec.org/v1.0.0/ogcapi-features/extensions/transaction",
			"http://www.opengis.net/spec/ogcapi-features-4/1.0/conf/simpletx",
		)
	}
	if ext.CollectionSearch {
		out = append(out,
			"https://api.stacspec.org/v1.0.0-rc.1/collection-search",
			"http://www.opengis.net/spec/ogcapi-common-2/1.0/conf/simple-query",
		)
	}
	return out
}

func (a *API) Conformance() map[string]any {
	return map[string]any{"conformsTo": a.ConformsTo()}
}

// Landing builds the root catalog with one child link per collection.
func (a *API) Landing(ctx context.Context, q links.Request) (map[string]any, error) {
	cols, err := a.catalog.AllCollections(ctx)
	if err != nil {
		return nil, err
	}

	ls := q.Base(
		model.Link{Rel: "conformance", Type: model.MediaJSON, Title: "STAC/OGC conformance classes implemented by this server", Href: "conformance"},
		model.Link{Rel: "data", Type: model.MediaJSON, Title: "Collections available for this Catalog", Href: "collections"},
		model.Link{Rel: "search", Type: model.MediaGeoJSON, Title: "STAC search", Method: "GET", Href: "search"},
		model.Link{Rel: "search", Type: model.MediaGeoJSON, Title: "STAC search", Method: "POST", Href: "search"},
	)
	// self of the landing page is the base URL itself
	ls[0].Href = q.BaseURL
	if a.opts.Extensions.Filter {
		ls = append(ls, q.Queryables(""))
	}
	for _, c := range cols {
		child := model.Link{Rel: links.RelChild, Type: model.MediaJSON, Href: q.Resolve("collections/" + url.PathEscape(c.ID()))}
		if t, ok := c["title"].(string); ok && t != "" {
			child.Title = t
		}
		ls = append(ls, child)
	}

	return map[string]any{
		"type":         "Catalog",
		"stac_version": stacVersion,
		"id":           a.opts.CatalogID,
		"title":        a.opts.Title,
		"description":  a.opts.Description,
		"conformsTo":   a.ConformsTo(),
		"links":        model.LinkMaps(ls),
	}, nil
}
