// Package links builds hypermedia links relative to the externally visible
// request URL.
package links

import (
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/mohammed-shakir/pgstac-api/internal/core/model"
)

const (
	RelSelf       = "self"
	RelRoot       = "root"
	RelParent     = "parent"
	RelCollection = "collection"
	RelItems      = "items"
	RelItem       = "item"
	RelChild      = "child"
	RelNext       = "next"
	RelPrev       = "previous"
	RelQueryables = "http://www.opengis.net/def/rel/ogc/1.0/queryables"
)

// rels generated per response; stored copies are dropped
var inferred = map[string]bool{
	RelSelf:       true,
	RelItem:       true,
	RelParent:     true,
	RelCollection: true,
	RelRoot:       true,
}

// Request is the externally visible view of one HTTP request.
type Request struct {
	BaseURL string
	URL     string
	Method  string
	// Body is the decoded POST body, used for body-style paging links.
	Body map[string]any
}

// FromRequest derives base and current URLs, honouring Forwarded and
// X-Forwarded-* headers. rootPath appears exactly once in the result even when
// the incoming path already carries it (once or repeatedly).
func FromRequest(r *http.Request, rootPath string) Request {
	scheme, host := origin(r)
	root := normalizeRoot(rootPath)

	base := scheme + "://" + host + root + "/"
	path := StripRoot(r.URL.EscapedPath(), root)

	u := base + strings.TrimLeft(path, "/")
	if r.URL.RawQuery != "" {
		u += "?" + r.URL.RawQuery
	}
	return Request{BaseURL: base, URL: u, Method: r.Method}
}

// StripRoot removes every leading occurrence of root from path.
func StripRoot(path, root string) string {
	root = normalizeRoot(root)
	if root == "" {
		return path
	}
	for path == root || strings.HasPrefix(path, root+"/") {
		path = path[len(root):]
	}
	if path == "" {
		path = "/"
	}
	return path
}

func normalizeRoot(root string) string {
	root = strings.TrimRight(strings.TrimSpace(root), "/")
	if root != "" && !strings.HasPrefix(root, "/") {
		root = "/" + root
	}
	return root
}

func origin(r *http.Request) (scheme, host string) {
	scheme = "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host = r.Host

	if fwd := r.Header.Get("Forwarded"); fwd != "" {
		proto, fhost := parseForwarded(fwd)
		if proto != "" || fhost != "" {
			if proto != "" {
				scheme = proto
			}
			if fhost != "" {
				host = fhost
			}
			return scheme, host
		}
	}

	if p := firstValue(r.Header.Get("X-Forwarded-Proto")); p != "" {
		scheme = strings.ToLower(p)
	}
	if h := firstValue(r.Header.Get("X-Forwarded-Host")); h != "" {
		host = h
	}
	if port := firstValue(r.Header.Get("X-Forwarded-Port")); port != "" {
		hostname := host
		if h, _, err := net.SplitHostPort(host); err == nil {
			hostname = h
		}
		if !isDefaultPort(scheme, port) {
			host = net.JoinHostPort(hostname, port)
		} else {
			host = hostname
		}
	}
	return scheme, host
}

// first element of an RFC 7239 header
func parseForwarded(v string) (proto, host string) {
	first, _, _ := strings.Cut(v, ",")
	for _, pair := range strings.Split(first, ";") {
		k, val, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		val = strings.Trim(strings.TrimSpace(val), `"`)
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "proto":
			proto = strings.ToLower(val)
		case "host":
			host = val
		}
	}
	return proto, host
}

func firstValue(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}

// Resolve joins ref against the base URL.
func (q Request) Resolve(ref string) string {
	base, err := url.Parse(q.BaseURL)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(r).String()
}

// MergeParams sets params on rawURL's query. Existing keys keep their position,
// new keys are appended in sorted order, and a key mapped to no values is removed.
func MergeParams(rawURL string, params url.Values) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	type pair struct{ k, v string }
	var out []pair
	done := map[string]bool{}
	for _, part := range strings.Split(u.RawQuery, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		k = unescape(k)
		v = unescape(v)
		if vals, ok := params[k]; ok {
			if !done[k] {
				for _, nv := range vals {
					out = append(out, pair{k, nv})
				}
				done[k] = true
			}
			continue
		}
		out = append(out, pair{k, v})
	}

	var rest []string
	for k := range params {
		if !done[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		for _, v := range params[k] {
			out = append(out, pair{k, v})
		}
	}

	parts := make([]string, len(out))
	for i, p := range out {
		parts[i] = url.QueryEscape(p.k) + "=" + url.QueryEscape(p.v)
	}
	u.RawQuery = strings.Join(parts, "&")
	return u.String()
}

// Canonical re-encodes the query of rawURL so two spellings of the same URL compare equal.
func Canonical(rawURL string) string { return MergeParams(rawURL, nil) }

func unescape(s string) string {
	if v, err := url.QueryUnescape(s); err == nil {
		return v
	}
	return s
}

func (q Request) rootLink() model.Link {
	return model.Link{Rel: RelRoot, Type: model.MediaJSON, Href: q.BaseURL}
}

func (q Request) collectionLink(rel, collectionID string) model.Link {
	return model.Link{Rel: rel, Type: model.MediaJSON, Href: q.Resolve("collections/" + url.PathEscape(collectionID))}
}

// join appends extra links, dropping inferred rels and resolving relative hrefs.
func (q Request) join(generated []model.Link, extra []model.Link) []model.Link {
	for _, l := range extra {
		if inferred[l.Rel] {
			continue
		}
		l.Href = q.Resolve(l.Href)
		generated = append(generated, l)
	}
	return generated
}

// Base returns self (the current URL) and root.
func (q Request) Base(extra ...model.Link) []model.Link {
	return q.join([]model.Link{
		{Rel: RelSelf, Type: model.MediaJSON, Href: q.URL},
		q.rootLink(),
	}, extra)
}

func (q Request) Collection(collectionID string, extra ...model.Link) []model.Link {
	return q.join([]model.Link{
		q.collectionLink(RelSelf, collectionID),
		q.rootLink(),
		{Rel: RelParent, Type: model.MediaJSON, Href: q.BaseURL},
		{Rel: RelItems, Type: model.MediaGeoJSON, Href: q.Resolve("collections/" + url.PathEscape(collectionID) + "/items")},
	}, extra)
}

func (q Request) Queryables(collectionID string) model.Link {
	ref := "queryables"
	if collectionID != "" {
		ref = "collections/" + url.PathEscape(collectionID) + "/queryables"
	}
	return model.Link{Rel: RelQueryables, Type: model.MediaSchema, Title: "Queryables", Href: q.Resolve(ref)}
}

func (q Request) ItemCollection(collectionID string, extra ...model.Link) []model.Link {
	return q.join([]model.Link{
		{Rel: RelSelf, Type: model.MediaGeoJSON, Href: q.Resolve("collections/" + url.PathEscape(collectionID) + "/items")},
		q.rootLink(),
		q.collectionLink(RelParent, collectionID),
		q.collectionLink(RelCollection, collectionID),
	}, extra)
}

func (q Request) Item(collectionID, itemID string, extra ...model.Link) []model.Link {
	return q.join([]model.Link{
		{Rel: RelSelf, Type: model.MediaGeoJSON, Href: q.Resolve("collections/" + url.PathEscape(collectionID) + "/items/" + url.PathEscape(itemID))},
		q.rootLink(),
		q.collectionLink(RelParent, collectionID),
		q.collectionLink(RelCollection, collectionID),
	}, extra)
}

func (q Request) Search(extra ...model.Link) []model.Link {
	return q.join([]model.Link{
		{Rel: RelSelf, Type: model.MediaGeoJSON, Href: q.Resolve("search")},
		q.rootLink(),
	}, extra)
}
