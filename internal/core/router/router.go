// Package router maps the STAC HTTP surface onto the read handlers and the
// transaction service.
package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/mohammed-shakir/pgstac-api/internal/core/handlers"
	"github.com/mohammed-shakir/pgstac-api/internal/core/health"
	"github.com/mohammed-shakir/pgstac-api/internal/core/middleware"
	"github.com/mohammed-shakir/pgstac-api/internal/core/model"
	"github.com/mohammed-shakir/pgstac-api/internal/links"
	"github.com/mohammed-shakir/pgstac-api/internal/search"
	"github.com/mohammed-shakir/pgstac-api/internal/stacerr"
	"github.com/mohammed-shakir/pgstac-api/internal/transactions"
)

// StatusClientClosed is logged and counted when the caller went away first.
const StatusClientClosed = 499

const maxBodyBytes = 64 << 20

type Deps struct {
	API *handlers.API
	// Tx is nil when neither write capability is enabled.
	Tx       *transactions.Service
	Ready    handlers.VersionReporter
	RootPath string
	// Metrics is mounted at MetricsPath when no dedicated listener is used.
	Metrics     http.Handler
	MetricsPath string
	Logger      *slog.Logger
}

type routes struct {
	api  *handlers.API
	tx   *transactions.Service
	root string
	log  *slog.Logger
}

func New(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	h := &routes{api: d.API, tx: d.Tx, root: d.RootPath, log: log}
	ext := d.API.Extensions()

	r := chi.NewRouter()
	r.Use(middleware.StripRoot(d.RootPath))
	r.Use(middleware.Recover(log))
	r.Use(middleware.Logging(log))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.fail(w, r, stacerr.NotFoundf("Path %s does not exist.", r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.writeJSON(w, http.StatusMethodNotAllowed, model.MediaJSON,
			errorBody("MethodNotAllowed", fmt.Sprintf("Method %s not allowed.", r.Method)))
	})

	r.Get("/_mgmt/ping", health.Ping())
	r.Get("/_mgmt/health", health.Readiness(d.Ready))
	if d.Metrics != nil {
		path := d.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, d.Metrics)
	}

	r.Get("/", h.landing)
	r.Get("/conformance", h.conformance)
	r.Get("/search", h.searchGet)
	r.Post("/search", h.searchPost)
	r.Get("/collections", h.collections)
	r.Get("/collections/{collection_id}", h.collection)
	r.Get("/collections/{collection_id}/items", h.items)
	r.Get("/collections/{collection_id}/items/{item_id}", h.item)

	if ext.Filter {
		r.Get("/queryables", h.queryables)
		r.Get("/collections/{collection_id}/queryables", h.queryables)
	}

	if d.Tx != nil && ext.Transactions {
		r.Post("/collections", h.createCollection)
		r.Put("/collections", h.updateCollection)
		r.Put("/collections/{collection_id}", h.updateCollection)
		r.Patch("/collections/{collection_id}", h.patchCollection)
		r.Delete("/collections/{collection_id}", h.deleteCollection)
		r.Post("/collections/{collection_id}/items", h.createItem)
		r.Put("/collections/{collection_id}/items/{item_id}", h.updateItem)
		r.Patch("/collections/{collection_id}/items/{item_id}", h.patchItem)
		r.Delete("/collections/{collection_id}/items/{item_id}", h.deleteItem)
	}
	if d.Tx != nil && ext.BulkTransactions {
		r.Post("/collections/{collection_id}/bulk_items", h.bulkItems)
	}
	return r
}

func (h *routes) req(r *http.Request) links.Request {
	return links.FromRequest(r, h.root)
}

func (h *routes) landing(w http.ResponseWriter, r *http.Request) {
	body, err := h.api.Landing(r.Context(), h.req(r))
	h.reply(w, r, http.StatusOK, model.MediaJSON, body, err)
}

func (h *routes) conformance(w http.ResponseWriter, r *http.Request) {
	h.reply(w, r, http.StatusOK, model.MediaJSON, h.api.Conformance(), nil)
}

func (h *routes) searchGet(w http.ResponseWriter, r *http.Request) {
	body, err := h.api.Search(r.Context(), h.req(r), search.GetParams{Values: r.URL.Query()})
	h.reply(w, r, http.StatusOK, model.MediaGeoJSON, body, err)
}

func (h *routes) searchPost(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := h.req(r)
	// Paging links replay the body; an undecodable one fails normalization.
	_ = json.Unmarshal(raw, &q.Body)
	body, err := h.api.Search(r.Context(), q, search.PostBody{Raw: raw})
	h.reply(w, r, http.StatusOK, model.MediaGeoJSON, body, err)
}

func (h *routes) collections(w http.ResponseWriter, r *http.Request) {
	body, err := h.api.Collections(r.Context(), h.req(r), r.URL.Query())
	h.reply(w, r, http.StatusOK, model.MediaJSON, body, err)
}

func (h *routes) collection(w http.ResponseWriter, r *http.Request) {
	body, err := h.api.GetCollection(r.Context(), h.req(r), param(r, "collection_id"))
	h.reply(w, r, http.StatusOK, model.MediaJSON, body, err)
}

func (h *routes) items(w http.ResponseWriter, r *http.Request) {
	body, err := h.api.ItemCollection(r.Context(), h.req(r), param(r, "collection_id"), r.URL.Query())
	h.reply(w, r, http.StatusOK, model.MediaGeoJSON, body, err)
}

func (h *routes) item(w http.ResponseWriter, r *http.Request) {
	body, err := h.api.GetItem(r.Context(), h.req(r), param(r, "collection_id"), param(r, "item_id"))
	h.reply(w, r, http.StatusOK, model.MediaGeoJSON, body, err)
}

func (h *routes) queryables(w http.ResponseWriter, r *http.Request) {
	body, err := h.api.Queryables(r.Context(), h.req(r), param(r, "collection_id"))
	h.reply(w, r, http.StatusOK, model.MediaSchema, body, err)
}

type writeFunc func(ctx context.Context, q links.Request, raw []byte) (transactions.Result, error)

// write reads the body and runs fn. mediaType applies to non-empty results.
func (h *routes) write(mediaType string, fn writeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := readBody(w, r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		res, err := fn(r.Context(), h.req(r), raw)
		h.result(w, r, mediaType, res, err)
	}
}

func (h *routes) createCollection(w http.ResponseWriter, r *http.Request) {
	h.write(model.MediaJSON, h.tx.CreateCollection)(w, r)
}

func (h *routes) updateCollection(w http.ResponseWriter, r *http.Request) {
	id := param(r, "collection_id")
	h.write(model.MediaJSON, func(ctx context.Context, q links.Request, raw []byte) (transactions.Result, error) {
		return h.tx.UpdateCollection(ctx, q, id, raw)
	})(w, r)
}

func (h *routes) patchCollection(w http.ResponseWriter, r *http.Request) {
	id := param(r, "collection_id")
	h.write(model.MediaJSON, func(ctx context.Context, q links.Request, raw []byte) (transactions.Result, error) {
		return h.tx.PatchCollection(ctx, q, id, raw)
	})(w, r)
}

func (h *routes) deleteCollection(w http.ResponseWriter, r *http.Request) {
	res, err := h.tx.DeleteCollection(r.Context(), param(r, "collection_id"))
	h.result(w, r, model.MediaJSON, res, err)
}

func (h *routes) createItem(w http.ResponseWriter, r *http.Request) {
	cid := param(r, "collection_id")
	h.write(model.MediaGeoJSON, func(ctx context.Context, q links.Request, raw []byte) (transactions.Result, error) {
		return h.tx.CreateItem(ctx, q, cid, raw)
	})(w, r)
}

func (h *routes) updateItem(w http.ResponseWriter, r *http.Request) {
	cid, iid := param(r, "collection_id"), param(r, "item_id")
	h.write(model.MediaGeoJSON, func(ctx context.Context, q links.Request, raw []byte) (transactions.Result, error) {
		return h.tx.UpdateItem(ctx, q, cid, iid, raw)
	})(w, r)
}

func (h *routes) patchItem(w http.ResponseWriter, r *http.Request) {
	cid, iid := param(r, "collection_id"), param(r, "item_id")
	h.write(model.MediaGeoJSON, func(ctx context.Context, q links.Request, raw []byte) (transactions.Result, error) {
		return h.tx.PatchItem(ctx, q, cid, iid, raw)
	})(w, r)
}

func (h *routes) deleteItem(w http.ResponseWriter, r *http.Request) {
	res, err := h.tx.DeleteItem(r.Context(), param(r, "collection_id"), param(r, "item_id"))
	h.result(w, r, model.MediaJSON, res, err)
}

func (h *routes) bulkItems(w http.ResponseWriter, r *http.Request) {
	cid := param(r, "collection_id")
	h.write(model.MediaJSON, func(ctx context.Context, _ links.Request, raw []byte) (transactions.Result, error) {
		return h.tx.BulkItems(ctx, cid, raw)
	})(w, r)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, stacerr.Validationf("Request body exceeds %d bytes", mbe.Limit)
		}
		return nil, fmt.Errorf("read body: %w", err)
	}
	return raw, nil
}

func (h *routes) result(w http.ResponseWriter, r *http.Request, mediaType string, res transactions.Result, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if res.Body == nil {
		w.WriteHeader(res.Status)
		return
	}
	if _, ok := res.Body.(string); ok {
		mediaType = model.MediaJSON
	}
	h.writeJSON(w, res.Status, mediaType, res.Body)
}

func (h *routes) reply(w http.ResponseWriter, r *http.Request, status int, mediaType string, body any, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, status, mediaType, body)
}

func (h *routes) writeJSON(w http.ResponseWriter, status int, mediaType string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.Error("encode response", "err", err)
		status, mediaType = http.StatusInternalServerError, model.MediaJSON
		b, _ = json.Marshal(errorBody(string(stacerr.Internal), "internal server error"))
	}
	w.Header().Set("Content-Type", mediaType)
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func errorBody(code, description string) map[string]string {
	return map[string]string{"code": code, "description": description}
}

func (h *routes) fail(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, context.Canceled):
		h.log.DebugContext(ctx, "client went away", "err", err)
		h.writeJSON(w, StatusClientClosed, model.MediaJSON, errorBody("ClientClosedRequest", "request canceled"))
		return
	case errors.Is(err, context.DeadlineExceeded):
		h.log.WarnContext(ctx, "request timed out", "err", err)
		h.writeJSON(w, http.StatusGatewayTimeout, model.MediaJSON, errorBody("Timeout", "request timed out"))
		return
	}

	kind, detail := stacerr.Public(err)
	status := stacerr.HTTPStatus(kind)
	switch {
	case kind == stacerr.Configuration:
		h.log.ErrorContext(ctx, "request failed", "kind", "configuration", "err", err)
	case status >= http.StatusInternalServerError:
		h.log.ErrorContext(ctx, "request failed", "kind", string(kind), "err", err)
	default:
		h.log.DebugContext(ctx, "request rejected", "kind", string(kind), "err", err)
	}
	h.writeJSON(w, status, model.MediaJSON, errorBody(string(kind), detail))
}

// param returns a decoded path parameter. chi matches on the escaped path when
// one is present, so an id like a%2Fb arrives still escaped.
func param(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if d, err := url.PathUnescape(v); err == nil {
		return d
	}
	return v
}
