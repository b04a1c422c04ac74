package search

import (
	"net/url"
	"strings"

	"github.com/mohammed-shakir/pgstac-api/internal/core/model"
	"github.com/mohammed-shakir/pgstac-api/internal/stacerr"
)

// Collections normalizes the collection search query string.
func (n *Normalizer) Collections(v url.Values) (model.CollectionSearchRequest, error) {
	r, err := fromQuery(v)
	if err != nil {
		return model.CollectionSearchRequest{}, err
	}
	if len(r.Collections) > 0 || len(r.IDs) > 0 || r.Intersects != nil || r.Token != "" {
		return model.CollectionSearchRequest{}, stacerr.Validationf("Collection search supports bbox, datetime, q, query, filter, sortby, fields, limit and offset only")
	}
	if s := v.Get("offset"); s != "" {
		o, err := intParam("offset", s)
		if err != nil {
			return model.CollectionSearchRequest{}, err
		}
		r.Offset = &o
	}

	if err := n.allowed(r); err != nil {
		return model.CollectionSearchRequest{}, err
	}
	if err := n.check(r); err != nil {
		return model.CollectionSearchRequest{}, err
	}
	filter, lang, err := n.filter(r)
	if err != nil {
		return model.CollectionSearchRequest{}, err
	}

	out := model.CollectionSearchRequest{
		BBox:       model.BBox(r.BBox),
		Datetime:   r.Datetime,
		Q:          strings.Join(r.Q, " OR "),
		Query:      r.Query,
		Filter:     filter,
		FilterLang: lang,
		SortBy:     sortDefaults(r.SortBy),
		Fields:     disjoint(r.Fields),
	}
	if len(out.BBox) == 0 {
		out.BBox = nil
	}
	if r.Limit != nil {
		out.Limit = *r.Limit
	}
	if r.Offset != nil {
		out.Offset = *r.Offset
	}
	return out, nil
}

// CollectionSearchParams lists the query parameters understood by Collections.
var CollectionSearchParams = []string{
	"bbox", "datetime", "q", "query", "filter", "filter-lang", "sortby", "fields", "limit", "offset",
}
