package paging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/pgstac-api/internal/core/model"
	"github.com/mohammed-shakir/pgstac-api/internal/links"
)

func getReq(u string) links.Request {
	return links.Request{BaseURL: "http://test/", URL: u, Method: "GET"}
}

func byRel(ls []model.Link) map[string]model.Link {
	m := map[string]model.Link{}
	for _, l := range ls {
		m[l.Rel] = l
	}
	return m
}

func TestCursorFrom_TopLevelKeys(t *testing.T) {
	res := map[string]any{"features": []any{}, "next": "abc", "prev": "xyz"}
	c := CursorFrom(res)
	assert.Equal(t, Cursor{Next: "abc", Prev: "xyz", HasNext: true, HasPrev: true}, c)
	assert.NotContains(t, res, "next")
	assert.NotContains(t, res, "prev")
}

func TestCursorFrom_Links(t *testing.T) {
	res := map[string]any{"links": []any{
		map[string]any{"rel": "next", "href": "./search?token=next:c1:i9", "method": "GET"},
		map[string]any{"rel": "prev", "href": "./search?token=prev:c1:i1"},
	}}
	c := CursorFrom(res)
	assert.Equal(t, "c1:i9", c.Next)
	assert.Equal(t, "c1:i1", c.Prev)
	assert.True(t, c.HasNext && c.HasPrev)
}

func TestCursorFrom_TopLevelNullHidesLink(t *testing.T) {
	res := map[string]any{
		"next":  nil,
		"links": []any{map[string]any{"rel": "next", "href": "./search?token=next:abc"}},
	}
	assert.False(t, CursorFrom(res).HasNext)
}

func TestCursorLinks_GetMergesToken(t *testing.T) {
	req := getReq("http://test/search?collections=c1&limit=2&token=next:old")
	ls := byRel(CursorLinks(req, Cursor{Next: "n1", HasNext: true, Prev: "p1", HasPrev: true}))

	assert.Equal(t, "http://test/search?collections=c1&limit=2&token=next%3An1", ls[links.RelNext].Href)
	assert.Equal(t, "GET", ls[links.RelNext].Method)
	assert.Equal(t, "http://test/search?collections=c1&limit=2&token=prev%3Ap1", ls[links.RelPrev].Href)
	assert.Equal(t, model.MediaGeoJSON, ls[links.RelPrev].Type)
}

func TestCursorLinks_PostRepeatsBodyWithToken(t *testing.T) {
	body := map[string]any{"collections": []any{"c1"}, "limit": 2.0}
	req := links.Request{BaseURL: "http://test/", URL: "http://test/search", Method: "POST", Body: body}

	ls := CursorLinks(req, Cursor{Next: "n1", HasNext: true})
	require.Len(t, ls, 1)
	next := ls[0]
	assert.Equal(t, "POST", next.Method)
	assert.Equal(t, "http://test/search", next.Href)
	assert.Equal(t, map[string]any{"collections": []any{"c1"}, "limit": 2.0, "token": "next:n1"}, next.Body)
	assert.NotContains(t, body, "token", "original body untouched")
}

func TestCursorLinks_NoCursorNoLinks(t *testing.T) {
	assert.Empty(t, CursorLinks(getReq("http://test/search"), Cursor{}))
}

// Multi-collection searches can report a bare ":" prev cursor. Backend
// tokens are opaque, so it is forwarded as is.
func TestCursorLinks_ColonOnlyPrevCursorIsForwarded(t *testing.T) {
	res := map[string]any{"prev": ":", "next": "ko:i3"}
	c := CursorFrom(res)
	ls := byRel(CursorLinks(getReq("http://test/search?collections=ko,ok&limit=2"), c))
	assert.Equal(t, "http://test/search?collections=ko%2Cok&limit=2&token=prev%3A%3A", ls[links.RelPrev].Href)
	assert.Equal(t, "http://test/search?collections=ko%2Cok&limit=2&token=next%3Ako%3Ai3", ls[links.RelNext].Href)
}

func TestOffsetLinks_FirstPage(t *testing.T) {
	req := getReq("http://test/collections?limit=10")
	ls := byRel(OffsetLinks(req, Page{Limit: 10, Offset: 0, Matched: 25}))
	assert.Equal(t, "http://test/collections?limit=10&offset=10", ls[links.RelNext].Href)
	assert.NotContains(t, ls, links.RelPrev)
}

func TestOffsetLinks_ExplicitZeroOffsetHasNoPrev(t *testing.T) {
	req := getReq("http://test/collections?limit=10&offset=0")
	ls := byRel(OffsetLinks(req, Page{Limit: 10, Offset: 0, Matched: 25}))
	assert.NotContains(t, ls, links.RelPrev)
	assert.Equal(t, "http://test/collections?limit=10&offset=10", ls[links.RelNext].Href)
}

func TestOffsetLinks_PrevToFirstPageDropsOffset(t *testing.T) {
	req := getReq("http://test/collections?limit=10&offset=10")
	ls := byRel(OffsetLinks(req, Page{Limit: 10, Offset: 10, Matched: 25}))
	assert.Equal(t, "http://test/collections?limit=10", ls[links.RelPrev].Href)
	assert.Equal(t, "http://test/collections?limit=10&offset=20", ls[links.RelNext].Href)
}

func TestOffsetLinks_LastPageHasNoNext(t *testing.T) {
	req := getReq("http://test/collections?limit=10&offset=20")
	ls := byRel(OffsetLinks(req, Page{
		Limit: 10, Offset: 20, Matched: 25,
		Next: map[string]any{"offset": 30.0, "limit": 10.0},
	}))
	assert.NotContains(t, ls, links.RelNext)
	assert.Equal(t, "http://test/collections?limit=10&offset=10", ls[links.RelPrev].Href)

	exact := byRel(OffsetLinks(getReq("http://test/collections?limit=5&offset=20"), Page{Limit: 5, Offset: 20, Matched: 25}))
	assert.NotContains(t, exact, links.RelNext)
}

func TestOffsetLinks_BackendBodiesAreUsed(t *testing.T) {
	res := map[string]any{"links": []any{
		map[string]any{"rel": "next", "href": "./collections", "body": map[string]any{"offset": 4.0, "limit": 2.0}},
		map[string]any{"rel": "prev", "href": "./collections", "body": map[string]any{"offset": 0.0, "limit": 2.0}},
	}}
	p := OffsetPageFrom(res, 2, 2)
	ls := byRel(OffsetLinks(getReq("http://test/collections?limit=2&offset=2"), p))
	assert.Equal(t, "http://test/collections?limit=2&offset=4", ls[links.RelNext].Href)
	assert.Equal(t, "http://test/collections?limit=2", ls[links.RelPrev].Href)
}

func TestOffsetLinks_SelfReferentialLinkIsSuppressed(t *testing.T) {
	req := getReq("http://test/collections?limit=2&offset=4")
	p := Page{Limit: 2, Offset: 4, Matched: -1, Next: map[string]any{"offset": 4.0, "limit": 2.0}}
	assert.NotContains(t, byRel(OffsetLinks(req, p)), links.RelNext)
}

func TestOffsetLinks_UnknownTotalWithoutBackendHint(t *testing.T) {
	ls := OffsetLinks(getReq("http://test/collections"), Page{Limit: 10, Matched: -1})
	assert.Empty(t, ls)
}
