package router

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/pgstac-api/internal/core/config"
	"github.com/mohammed-shakir/pgstac-api/internal/core/handlers"
	"github.com/mohammed-shakir/pgstac-api/internal/core/model"
	"github.com/mohammed-shakir/pgstac-api/internal/search"
	"github.com/mohammed-shakir/pgstac-api/internal/stacerr"
	"github.com/mohammed-shakir/pgstac-api/internal/transactions"
)

// stubBackend serves one collection with one item and accepts writes.
type stubBackend struct {
	searchErr error
	written   []string
}

var c1 = model.Collection{"type": "Collection", "id": "c1", "links": []any{}}

func (s *stubBackend) Search(ctx context.Context, req model.SearchRequest) (map[string]any, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return map[string]any{
		"type": "FeatureCollection",
		"features": []any{map[string]any{
			"type": "Feature", "id": "i1", "collection": "c1",
			"geometry": map[string]any{"type": "Point", "coordinates": []any{0.0, 0.0}},
		}},
		"next": "n1",
	}, nil
}

func (s *stubBackend) GetCollection(_ context.Context, id string) (model.Collection, error) {
	if id == "c1" {
		return c1, nil
	}
	return nil, nil
}

func (s *stubBackend) AllCollections(context.Context) ([]model.Collection, error) {
	return []model.Collection{c1}, nil
}

func (s *stubBackend) CollectionSearch(context.Context, model.CollectionSearchRequest) (map[string]any, error) {
	return map[string]any{"collections": []any{map[string]any(c1)}, "numberMatched": 1.0}, nil
}

func (s *stubBackend) BaseItem(context.Context, string) (map[string]any, error) {
	return map[string]any{}, nil
}

func (s *stubBackend) Queryables(context.Context, string) (map[string]any, error) {
	return map[string]any{"type": "object", "properties": map[string]any{}}, nil
}

func (s *stubBackend) GetItem(_ context.Context, cid, iid string) (model.Item, error) {
	return nil, stacerr.NotFoundf("Item %s in Collection %s does not exist.", iid, cid)
}

func (s *stubBackend) rec(op string) error { s.written = append(s.written, op); return nil }

func (s *stubBackend) CreateItem(context.Context, model.Item) error     { return s.rec("create_item") }
func (s *stubBackend) CreateItems(context.Context, []model.Item) error  { return s.rec("create_items") }
func (s *stubBackend) UpdateItem(context.Context, model.Item) error     { return s.rec("update_item") }
func (s *stubBackend) UpsertItems(context.Context, []model.Item) error  { return s.rec("upsert_items") }
func (s *stubBackend) DeleteItem(context.Context, string, string) error { return s.rec("delete_item") }
func (s *stubBackend) CreateCollection(context.Context, model.Collection) error {
	return s.rec("create_collection")
}
func (s *stubBackend) UpdateCollection(context.Context, model.Collection) error {
	return s.rec("update_collection")
}
func (s *stubBackend) DeleteCollection(context.Context, string) error { return s.rec("delete_collection") }

func newTestRouter(t *testing.T, ext config.Extensions, root string) (http.Handler, *stubBackend) {
	t.Helper()
	be := &stubBackend{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := handlers.New(be, be, search.New(ext, nil, false), handlers.Options{Extensions: ext}, log)
	var tx *transactions.Service
	if ext.Transactions || ext.BulkTransactions {
		tx = transactions.New(be, config.DefaultInvalidIDChars, log)
	}
	return New(Deps{API: api, Tx: tx, RootPath: root, Logger: log}), be
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var out map[string]any
	if rr.Body.Len() > 0 {
		_ = json.Unmarshal(rr.Body.Bytes(), &out)
	}
	return rr, out
}

func TestPing(t *testing.T) {
	h, _ := newTestRouter(t, config.AllExtensions(), "")
	rr, body := do(t, h, http.MethodGet, "/_mgmt/ping", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "PONG", body["message"])
}

func TestErrorBody_NotFound(t *testing.T) {
	h, _ := newTestRouter(t, config.AllExtensions(), "")
	rr, body := do(t, h, http.MethodGet, "/collections/missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "NotFoundError", body["code"])
	assert.Equal(t, "Collection missing does not exist.", body["description"])
	assert.Equal(t, model.MediaJSON, rr.Header().Get("Content-Type"))
}

func TestSearch_ValidationError(t *testing.T) {
	h, _ := newTestRouter(t, config.AllExtensions(), "")
	rr, body := do(t, h, http.MethodGet, "/search?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "ValidationError", body["code"])
}

func TestSearch_ContentTypeAndNextLink(t *testing.T) {
	h, _ := newTestRouter(t, config.AllExtensions(), "")
	rr, body := do(t, h, http.MethodPost, "/search", `{"collections":["c1"],"limit":1}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, model.MediaGeoJSON, rr.Header().Get("Content-Type"))

	var next map[string]any
	for _, l := range body["links"].([]any) {
		if m := l.(map[string]any); m["rel"] == "next" {
			next = m
		}
	}
	require.NotNil(t, next)
	assert.Equal(t, "POST", next["method"])
	assert.Equal(t, "next:n1", next["body"].(map[string]any)["token"])
}

func TestRootPath_NotDuplicated(t *testing.T) {
	h, _ := newTestRouter(t, config.AllExtensions(), "/stac")
	for _, target := range []string{"/stac/collections/c1", "/stac/stac/collections/c1", "/collections/c1"} {
		rr, body := do(t, h, http.MethodGet, target, "")
		require.Equal(t, http.StatusOK, rr.Code, target)
		for _, l := range body["links"].([]any) {
			m := l.(map[string]any)
			href := m["href"].(string)
			assert.NotContains(t, href, "/stac/stac", target)
			if m["rel"] == "self" {
				assert.Equal(t, "http://example.com/stac/collections/c1", href, target)
			}
		}
	}
}

func TestInternalErrorsDoNotLeak(t *testing.T) {
	h, be := newTestRouter(t, config.AllExtensions(), "")
	be.searchErr = stacerr.Wrap(stacerr.Internal, errors.New("relation pgstac.items missing"), "")

	rr, body := do(t, h, http.MethodGet, "/search", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "internal server error", body["description"])
	assert.NotContains(t, rr.Body.String(), "relation")
}

func TestCanceledRequest(t *testing.T) {
	h, _ := newTestRouter(t, config.AllExtensions(), "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/search", nil).WithContext(ctx)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, StatusClientClosed, rr.Code)
}

func TestTransactions_CreateItemNullGeometry(t *testing.T) {
	h, be := newTestRouter(t, config.AllExtensions(), "")
	rr, body := do(t, h, http.MethodPost, "/collections/c1/items",
		`{"type":"Feature","id":"i9","geometry":null,"properties":{}}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, body["description"], "Missing or null `geometry`")
	assert.Empty(t, be.written)
}

func TestTransactions_CreateAndDelete(t *testing.T) {
	h, be := newTestRouter(t, config.AllExtensions(), "")
	rr, body := do(t, h, http.MethodPost, "/collections/c1/items",
		`{"type":"Feature","id":"i9","geometry":{"type":"Point","coordinates":[0,0]},"properties":{}}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, model.MediaGeoJSON, rr.Header().Get("Content-Type"))
	assert.Equal(t, "c1", body["collection"])

	rr, body = do(t, h, http.MethodDelete, "/collections/c1/items/i9", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "i9", body["deleted item"])
	assert.Equal(t, []string{"create_item", "delete_item"}, be.written)
}

func TestTransactions_BulkItemsStringBody(t *testing.T) {
	h, _ := newTestRouter(t, config.AllExtensions(), "")
	req := httptest.NewRequest(http.MethodPost, "/collections/c1/bulk_items",
		strings.NewReader(`{"items":{"a":{"type":"Feature","id":"a","geometry":{"type":"Point","coordinates":[0,0]}}}}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, `"Successfully added 1 items."`, rr.Body.String())
}

func TestTransactionsDisabled_NoWriteRoutes(t *testing.T) {
	ext := config.AllExtensions()
	ext.Transactions, ext.BulkTransactions = false, false
	h, _ := newTestRouter(t, ext, "")

	rr, _ := do(t, h, http.MethodPost, "/collections/c1/items", `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	rr, _ = do(t, h, http.MethodPost, "/collections/c1/bulk_items", `{}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestQueryablesFollowFilterCapability(t *testing.T) {
	h, _ := newTestRouter(t, config.AllExtensions(), "")
	rr, _ := do(t, h, http.MethodGet, "/collections/c1/queryables", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, model.MediaSchema, rr.Header().Get("Content-Type"))

	ext := config.AllExtensions()
	ext.Filter = false
	h, _ = newTestRouter(t, ext, "")
	rr, _ = do(t, h, http.MethodGet, "/queryables", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestRouter(t, config.AllExtensions(), "")
	req := httptest.NewRequest(http.MethodOptions, "/search", nil)
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}

func TestRequestIDEchoed(t *testing.T) {
	h, _ := newTestRouter(t, config.AllExtensions(), "")
	req := httptest.NewRequest(http.MethodGet, "/conformance", nil)
	req.Header.Set("X-Request-ID", "abc123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "abc123", rr.Header().Get("X-Request-ID"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestEscapedCollectionID(t *testing.T) {
	h, _ := newTestRouter(t, config.AllExtensions(), "/stac")
	rr, body := do(t, h, http.MethodGet, "/stac/collections/a%2Fb", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Collection a/b does not exist.", body["description"])
}
