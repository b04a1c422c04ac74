package cql2

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Translator memoizes parsed expressions. The returned trees are shared and
// must be treated as read-only.
type Translator struct {
	cache *lru.Cache[string, map[string]any]
}

func NewTranslator(size int) *Translator {
	if size <= 0 {
		size = 1024
	}
	c, _ := lru.New[string, map[string]any](size)
	return &Translator{cache: c}
}

func (t *Translator) Parse(text string) (map[string]any, error) {
	if t == nil || t.cache == nil {
		return Parse(text)
	}
	if v, ok := t.cache.Get(text); ok {
		return v, nil
	}
	v, err := Parse(text)
	if err != nil {
		return nil, err
	}
	t.cache.Add(text, v)
	return v, nil
}
