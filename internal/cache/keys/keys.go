// Package keys builds Redis keys for cached catalog documents.
package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// DefaultNamespace prefixes every key unless the caller picks another.
const DefaultNamespace = "stac"

const maxIDTextLen = 120

// Collection returns the key of one collection document. The readable part
// is sanitized and may be truncated; the hash suffix keeps distinct ids apart.
func Collection(namespace, id string) string {
	ns := sanitize(strings.TrimSpace(namespace))
	if ns == "" {
		ns = DefaultNamespace
	}
	safe := sanitize(id)
	if len(safe) > maxIDTextLen {
		safe = safe[:maxIDTextLen]
	}
	return fmt.Sprintf("%s:collection:%s:h=%016x", ns, safe, xxhash.Sum64String(id))
}

// sanitize maps whitespace to '_' and anything outside [A-Za-z0-9:_-] to '-',
// collapsing runs of either.
func sanitize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case unicode.IsSpace(r):
			out = '_'
		case isAlphaNum(r) || r == ':' || r == '_' || r == '-':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
