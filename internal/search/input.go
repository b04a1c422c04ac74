// Package search turns GET parameters and POST bodies into one canonical
// backend search request.
package search

import "net/url"

// Input is either GetParams or PostBody.
type Input interface {
	collection() string
}

// GetParams holds a query string. CollectionID is set for the
// /collections/{id}/items route and overrides any collections parameter.
type GetParams struct {
	Values       url.Values
	CollectionID string
}

// PostBody holds an undecoded JSON request body.
type PostBody struct {
	Raw          []byte
	CollectionID string
}

func (g GetParams) collection() string { return g.CollectionID }
func (p PostBody) collection() string  { return p.CollectionID }
