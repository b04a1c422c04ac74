// Package fields applies include/exclude projections to STAC documents.
package fields

import (
	"strings"

	"github.com/mohammed-shakir/pgstac-api/internal/core/model"
)

// id and collection survive every projection; links survive unless excluded.
var mandatory = []string{"id", "collection"}

// Project returns a filtered copy of doc. Paths use dot notation into nested
// objects. Exclude wins over include at the same or a deeper path. doc is
// never modified; untouched nested values are shared with the result.
func Project(doc map[string]any, f *model.Fields) map[string]any {
	if f.Empty() {
		return doc
	}

	var out map[string]any
	if len(f.Include) > 0 {
		out = map[string]any{}
		for _, p := range f.Include {
			include(out, doc, strings.Split(p, "."))
		}
	} else {
		out = shallow(doc)
	}

	for _, p := range f.Exclude {
		exclude(out, strings.Split(p, "."))
	}

	for _, k := range mandatory {
		if v, ok := doc[k]; ok {
			out[k] = v
		}
	}
	if v, ok := doc["links"]; ok && !excluded(f, "links") {
		if _, present := out["links"]; !present {
			out["links"] = v
		}
	}
	return out
}

func excluded(f *model.Fields, key string) bool {
	for _, e := range f.Exclude {
		if e == key {
			return true
		}
	}
	return false
}

// include copies the value at path from src into dst, merging with siblings
// already copied under the same parent.
func include(dst, src map[string]any, path []string) {
	v, ok := src[path[0]]
	if !ok {
		return
	}
	child, isObj := v.(map[string]any)
	if len(path) == 1 || !isObj {
		dst[path[0]] = v
		return
	}
	sub := map[string]any{}
	if prev, ok := dst[path[0]].(map[string]any); ok {
		// prev may alias src when the whole object was included first
		sub = shallow(prev)
	}
	include(sub, child, path[1:])
	if len(sub) > 0 {
		dst[path[0]] = sub
	}
}

// exclude removes path from m, copying the nested objects it descends into
// and dropping parents left empty.
func exclude(m map[string]any, path []string) {
	v, ok := m[path[0]]
	if !ok {
		return
	}
	child, isObj := v.(map[string]any)
	if len(path) == 1 || !isObj {
		delete(m, path[0])
		return
	}
	c := shallow(child)
	exclude(c, path[1:])
	if len(c) == 0 {
		delete(m, path[0])
		return
	}
	m[path[0]] = c
}

func shallow(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
