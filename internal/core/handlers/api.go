// Package handlers implements the read side of the STAC API: landing page,
// conformance, item search, collections and queryables.
package handlers

import (
	"context"
	"log/slog"

	"github.com/mohammed-shakir/pgstac-api/internal/core/config"
	"github.com/mohammed-shakir/pgstac-api/internal/core/model"
	"github.com/mohammed-shakir/pgstac-api/internal/search"
)

// Catalog is the subset of backend functions the read handlers use.
type Catalog interface {
	Search(ctx context.Context, req model.SearchRequest) (map[string]any, error)
	AllCollections(ctx context.Context) ([]model.Collection, error)
	CollectionSearch(ctx context.Context, req model.CollectionSearchRequest) (map[string]any, error)
	BaseItem(ctx context.Context, collectionID string) (map[string]any, error)
	Queryables(ctx context.Context, collectionID string) (map[string]any, error)
}

// CollectionSource looks up one collection; nil without error when absent.
type CollectionSource interface {
	GetCollection(ctx context.Context, id string) (model.Collection, error)
}

type Options struct {
	Extensions config.Extensions
	// APIHydrate merges base items here instead of in the backend.
	APIHydrate   bool
	StripMarkers bool
	Workers      int

	CatalogID   string
	Title       string
	Description string
}

type API struct {
	catalog     Catalog
	collections CollectionSource
	norm        *search.Normalizer
	opts        Options
	log         *slog.Logger
}

func New(catalog Catalog, collections CollectionSource, norm *search.Normalizer, opts Options, log *slog.Logger) *API {
	if log == nil {
		log = slog.Default()
	}
	return &API{catalog: catalog, collections: collections, norm: norm, opts: opts, log: log}
}

func (a *API) Extensions() config.Extensions { return a.opts.Extensions }
