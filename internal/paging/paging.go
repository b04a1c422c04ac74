// Package paging derives next/previous links from backend results, as
// opaque cursors for item search and as offsets for collection search.
package paging

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/pgstac-api/internal/core/model"
	"github.com/mohammed-shakir/pgstac-api/internal/links"
)

const (
	NextPrefix = "next:"
	PrevPrefix = "prev:"
)

// Cursor holds backend positions. The values are passed back verbatim.
type Cursor struct {
	Next    string
	Prev    string
	HasNext bool
	HasPrev bool
}

// CursorFrom reads the cursors from a search result and removes the top-level
// next/prev keys. Top-level keys win over links.
func CursorFrom(res map[string]any) Cursor {
	var c Cursor
	for _, l := range model.LinksFrom(res["links"]) {
		switch l.Rel {
		case links.RelNext:
			c.Next, c.HasNext = tokenFromHref(l.Href, NextPrefix)
		case "prev", links.RelPrev:
			c.Prev, c.HasPrev = tokenFromHref(l.Href, PrevPrefix)
		}
	}
	if v, ok := res["next"]; ok {
		c.Next, c.HasNext = cursorValue(v)
		delete(res, "next")
	}
	if v, ok := res["prev"]; ok {
		c.Prev, c.HasPrev = cursorValue(v)
		delete(res, "prev")
	}
	return c
}

func cursorValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	}
	return "", false
}

func tokenFromHref(href, prefix string) (string, bool) {
	if u, err := url.Parse(href); err == nil {
		if tok := u.Query().Get("token"); strings.HasPrefix(tok, prefix) {
			return tok[len(prefix):], true
		}
	}
	marker := "token=" + prefix
	i := strings.Index(href, marker)
	if i < 0 {
		return "", false
	}
	tok, _, _ := strings.Cut(href[i+len(marker):], "&")
	return tok, true
}

// CursorLinks returns the next/previous links for a search response. GET
// requests carry the token in the query string. POST requests repeat the
// URL and add the token to the original body.
func CursorLinks(req links.Request, c Cursor) []model.Link {
	var out []model.Link
	if c.HasNext {
		out = append(out, cursorLink(req, links.RelNext, NextPrefix+c.Next))
	}
	if c.HasPrev {
		out = append(out, cursorLink(req, links.RelPrev, PrevPrefix+c.Prev))
	}
	return out
}

func cursorLink(req links.Request, rel, token string) model.Link {
	if req.Method == "POST" {
		body := make(map[string]any, len(req.Body)+1)
		for k, v := range req.Body {
			body[k] = v
		}
		body["token"] = token
		return model.Link{Rel: rel, Type: model.MediaGeoJSON, Method: "POST", Href: req.URL, Body: body}
	}
	return model.Link{
		Rel:    rel,
		Type:   model.MediaGeoJSON,
		Method: "GET",
		Href:   links.MergeParams(req.URL, url.Values{"token": {token}}),
	}
}

// Page describes one offset page of collection search.
type Page struct {
	Limit  int
	Offset int
	// Matched is the total number of matches, negative when unknown.
	Matched int
	// Next and Prev are the parameter bodies the backend proposed, if any.
	Next map[string]any
	Prev map[string]any
}

// OffsetPageFrom collects the backend's next/prev link bodies.
func OffsetPageFrom(res map[string]any, limit, offset int) Page {
	p := Page{Limit: limit, Offset: offset, Matched: -1}
	if n, ok := res["numberMatched"].(float64); ok {
		p.Matched = int(n)
	}
	for _, l := range model.LinksFrom(res["links"]) {
		switch l.Rel {
		case links.RelNext:
			p.Next = bodyOrEmpty(l.Body)
		case "prev", links.RelPrev:
			p.Prev = bodyOrEmpty(l.Body)
		}
	}
	return p
}

func bodyOrEmpty(b map[string]any) map[string]any {
	if b == nil {
		return map[string]any{}
	}
	return b
}

// OffsetLinks returns next/previous GET links for collection search. No next
// link is built on the last page and no previous link on the first. An offset
// of zero is dropped from the href, and links equal to the current URL are
// suppressed.
func OffsetLinks(req links.Request, p Page) []model.Link {
	var out []model.Link

	last := p.Matched >= 0 && p.Offset+p.Limit >= p.Matched
	next := p.Next
	if len(next) == 0 && p.Limit > 0 && (p.Next != nil || p.Matched >= 0) {
		next = map[string]any{"offset": p.Offset + p.Limit, "limit": p.Limit}
	}
	if len(next) > 0 && !last {
		if l, ok := offsetLink(req, links.RelNext, next); ok {
			out = append(out, l)
		}
	}

	if p.Offset > 0 {
		prev := p.Prev
		if len(prev) == 0 {
			prev = map[string]any{"offset": max(p.Offset-p.Limit, 0), "limit": p.Limit}
		}
		if l, ok := offsetLink(req, links.RelPrev, prev); ok {
			out = append(out, l)
		}
	}
	return out
}

func offsetLink(req links.Request, rel string, body map[string]any) (model.Link, bool) {
	params := url.Values{}
	for k, v := range body {
		if s, ok := param(v); ok {
			params.Set(k, s)
		}
	}
	if o, ok := params["offset"]; ok && len(o) == 1 && o[0] == "0" {
		params["offset"] = nil
	}
	if lim := params.Get("limit"); lim == "0" {
		params.Del("limit")
	}

	href := links.MergeParams(req.URL, params)
	if links.Canonical(href) == links.Canonical(req.URL) {
		return model.Link{}, false
	}
	return model.Link{Rel: rel, Type: model.MediaJSON, Method: "GET", Href: href}, true
}

func param(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}
