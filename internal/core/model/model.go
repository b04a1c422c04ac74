// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	MediaJSON    = "application/json"
	MediaGeoJSON = "application/geo+json"
	MediaSchema  = "application/schema+json"
)

// Item is a STAC item as decoded from the backend.
type Item map[string]any

func (it Item) ID() string           { return str(it["id"]) }
func (it Item) CollectionID() string { return str(it["collection"]) }

// Collection is a STAC collection as decoded from the backend.
type Collection map[string]any

func (c Collection) ID() string { return str(c["id"]) }

func str(v any) string {
	s, _ := v.(string)
	return s
}

// BBox holds 4 (2D) or 6 (3D) coordinates: west, south, [min z], east, north, [max z].
type BBox []float64

func (b BBox) Is3D() bool { return len(b) == 6 }

func (b BBox) West() float64 { return b[0] }
func (b BBox) South() float64 { return b[1] }

func (b BBox) East() float64 {
	if b.Is3D() {
		return b[3]
	}
	return b[2]
}

func (b BBox) North() float64 {
	if b.Is3D() {
		return b[4]
	}
	return b[3]
}

// String representation in the comma separated query form
func (b BBox) String() string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 && len(parts) != 6 {
		return nil, fmt.Errorf("expected 4 or 6 numbers, got %d", len(parts))
	}
	out := make(BBox, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("value %q: %w", p, err)
		}
		out[i] = v
	}
	return out, nil
}

type SortBy struct {
	Field     string `json:"field" validate:"required"`
	Direction string `json:"direction" validate:"omitempty,oneof=asc desc"`
}

type Fields struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

func (f *Fields) Empty() bool {
	return f == nil || (len(f.Include) == 0 && len(f.Exclude) == 0)
}

// SearchRequest is the canonical item search sent to the backend.
type SearchRequest struct {
	Collections []string                  `json:"collections,omitempty"`
	IDs         []string                  `json:"ids,omitempty"`
	BBox        BBox                      `json:"bbox,omitempty"`
	Intersects  map[string]any            `json:"intersects,omitempty"`
	Datetime    string                    `json:"datetime,omitempty"`
	Q           string                    `json:"q,omitempty"`
	Query       map[string]map[string]any `json:"query,omitempty"`
	Filter      map[string]any            `json:"filter,omitempty"`
	FilterLang  string                    `json:"filter-lang,omitempty"`
	FilterCRS   string                    `json:"filter-crs,omitempty"`
	SortBy      []SortBy                  `json:"sortby,omitempty"`
	Fields      *Fields                   `json:"fields,omitempty"`
	Token       string                    `json:"token,omitempty"`
	Limit       int                       `json:"limit,omitempty"`
	Conf        map[string]any            `json:"conf,omitempty"`
}

// CollectionSearchRequest is the canonical collection search sent to the backend.
type CollectionSearchRequest struct {
	BBox       BBox                      `json:"bbox,omitempty"`
	Datetime   string                    `json:"datetime,omitempty"`
	Q          string                    `json:"q,omitempty"`
	Query      map[string]map[string]any `json:"query,omitempty"`
	Filter     map[string]any            `json:"filter,omitempty"`
	FilterLang string                    `json:"filter-lang,omitempty"`
	SortBy     []SortBy                  `json:"sortby,omitempty"`
	Fields     *Fields                   `json:"fields,omitempty"`
	Limit      int                       `json:"limit,omitempty"`
	Offset     int                       `json:"offset,omitempty"`
}

// Link is a hypermedia link. Extra holds attributes outside the common set.
type Link struct {
	Rel    string
	Href   string
	Type   string
	Title  string
	Method string
	Body   map[string]any
	Extra  map[string]any
}

func (l Link) Map() map[string]any {
	m := make(map[string]any, 4+len(l.Extra))
	for k, v := range l.Extra {
		m[k] = v
	}
	m["rel"] = l.Rel
	m["href"] = l.Href
	if l.Type != "" {
		m["type"] = l.Type
	}
	if l.Title != "" {
		m["title"] = l.Title
	}
	if l.Method != "" {
		m["method"] = l.Method
	}
	if l.Body != nil {
		m["body"] = l.Body
	}
	return m
}

func LinkFromMap(m map[string]any) Link {
	l := Link{
		Rel:    str(m["rel"]),
		Href:   str(m["href"]),
		Type:   str(m["type"]),
		Title:  str(m["title"]),
		Method: str(m["method"]),
	}
	if b, ok := m["body"].(map[string]any); ok {
		l.Body = b
	}
	for k, v := range m {
		switch k {
		case "rel", "href", "type", "title", "method", "body":
			continue
		}
		if l.Extra == nil {
			l.Extra = map[string]any{}
		}
		l.Extra[k] = v
	}
	return l
}

// LinksFrom decodes a links array as found in backend documents.
func LinksFrom(v any) []Link {
	arr, _ := v.([]any)
	out := make([]Link, 0, len(arr))
	for _, e := range arr {
		if m, ok := e.(map[string]any); ok {
			out = append(out, LinkFromMap(m))
		}
	}
	return out
}

func LinkMaps(ls []Link) []any {
	out := make([]any, len(ls))
	for i, l := range ls {
		out[i] = l.Map()
	}
	return out
}
