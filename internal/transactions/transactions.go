// Package transactions implements item and collection writes, including
// partial updates and bulk item loads.
package transactions

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/mohammed-shakir/pgstac-api/internal/core/model"
	"github.com/mohammed-shakir/pgstac-api/internal/links"
	"github.com/mohammed-shakir/pgstac-api/internal/stacerr"
)

// Store is the write surface of the backend; *backend.Client implements it.
type Store interface {
	GetItem(ctx context.Context, collectionID, itemID string) (model.Item, error)
	GetCollection(ctx context.Context, id string) (model.Collection, error)
	CreateItem(ctx context.Context, it model.Item) error
	CreateItems(ctx context.Context, items []model.Item) error
	UpdateItem(ctx context.Context, it model.Item) error
	UpsertItems(ctx context.Context, items []model.Item) error
	DeleteItem(ctx context.Context, collectionID, itemID string) error
	CreateCollection(ctx context.Context, c model.Collection) error
	UpdateCollection(ctx context.Context, c model.Collection) error
	DeleteCollection(ctx context.Context, id string) error
}

// Op names a committed change.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpUpsert Op = "upsert"
)

// Change describes one committed write. ItemIDs is empty for collection writes.
type Change struct {
	Op           Op
	CollectionID string
	ItemIDs      []string
}

func (c Change) CollectionLevel() bool { return len(c.ItemIDs) == 0 }

// Notifier is told about committed writes. Failures are logged, never
// returned to the client; the write already happened.
type Notifier interface {
	Notify(ctx context.Context, ch Change) error
}

// Result is a status plus an optional JSON body.
type Result struct {
	Status int
	Body   any
}

type Service struct {
	store          Store
	invalidIDChars string
	notifiers      []Notifier
	log            *slog.Logger
}

func New(store Store, invalidIDChars string, log *slog.Logger, notifiers ...Notifier) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, invalidIDChars: invalidIDChars, notifiers: notifiers, log: log}
}

func (s *Service) notify(ctx context.Context, ch Change) {
	for _, n := range s.notifiers {
		if err := n.Notify(ctx, ch); err != nil {
			s.log.WarnContext(ctx, "change notification failed",
				"op", string(ch.Op), "collection", ch.CollectionID, "err", err)
		}
	}
}

func decodeObject(raw []byte, what string) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, stacerr.Validationf("Invalid %s body: %v", what, err)
	}
	if m == nil {
		return nil, stacerr.Validationf("Invalid %s body: expected a JSON object", what)
	}
	return m, nil
}

// ValidateID rejects ids containing any of the configured characters.
func (s *Service) ValidateID(id string) error {
	if s.invalidIDChars == "" || !strings.ContainsAny(id, s.invalidIDChars) {
		return nil
	}
	chars := strings.Split(s.invalidIDChars, "")
	return stacerr.Validationf("ID (%s) cannot contain the following characters: %s", id, strings.Join(chars, " "))
}

// validateItem checks an item against the route. expectedID is empty on create.
func (s *Service) validateItem(it model.Item, collectionID, expectedID string) error {
	id := it.ID()
	if id == "" {
		return stacerr.Validationf("Item id is required")
	}
	if err := s.ValidateID(id); err != nil {
		return err
	}
	if it["geometry"] == nil {
		return stacerr.Validationf("Missing or null `geometry` for Item (%s). Geometry is required in pgstac.", id)
	}
	if body, ok := it["collection"].(string); ok && body != "" && body != collectionID {
		return stacerr.Validationf("Collection ID from path parameter (%s) does not match Collection ID from Item (%s)", collectionID, body)
	}
	if expectedID != "" && expectedID != id {
		return stacerr.Validationf("Item ID from path parameter (%s) does not match Item ID from Item (%s)", expectedID, id)
	}
	return nil
}

func (s *Service) validateCollection(c model.Collection, expectedID string) error {
	id := c.ID()
	if id == "" {
		return stacerr.Validationf("Collection id is required")
	}
	if err := s.ValidateID(id); err != nil {
		return err
	}
	if expectedID != "" && expectedID != id {
		return stacerr.Validationf("Collection ID from path parameter (%s) does not match Collection ID from Collection (%s)", expectedID, id)
	}
	return nil
}

func withItemLinks(q links.Request, it model.Item) map[string]any {
	out := map[string]any(it)
	out["links"] = model.LinkMaps(q.Item(it.CollectionID(), it.ID(), model.LinksFrom(it["links"])...))
	return out
}

func withCollectionLinks(q links.Request, c model.Collection) map[string]any {
	out := map[string]any(c)
	out["links"] = model.LinkMaps(q.Collection(c.ID(), model.LinksFrom(c["links"])...))
	return out
}

// CreateItem accepts a Feature or a FeatureCollection. A single Feature is
// echoed back with links; a FeatureCollection yields an empty 201.
func (s *Service) CreateItem(ctx context.Context, q links.Request, collectionID string, raw []byte) (Result, error) {
	doc, err := decodeObject(raw, "item")
	if err != nil {
		return Result{}, err
	}

	switch typ, _ := doc["type"].(string); typ {
	case "FeatureCollection":
		feats, _ := doc["features"].([]any)
		items := make([]model.Item, 0, len(feats))
		ids := make([]string, 0, len(feats))
		for _, f := range feats {
			m, ok := f.(map[string]any)
			if !ok {
				return Result{}, stacerr.Validationf("FeatureCollection features must be objects")
			}
			it := model.Item(m)
			if err := s.validateItem(it, collectionID, ""); err != nil {
				return Result{}, err
			}
			it["collection"] = collectionID
			items = append(items, it)
			ids = append(ids, it.ID())
		}
		if err := s.store.CreateItems(ctx, items); err != nil {
			return Result{}, err
		}
		s.notify(ctx, Change{Op: OpCreate, CollectionID: collectionID, ItemIDs: ids})
		return Result{Status: http.StatusCreated}, nil

	case "Feature":
		it := model.Item(doc)
		if err := s.validateItem(it, collectionID, ""); err != nil {
			return Result{}, err
		}
		it["collection"] = collectionID
		if err := s.store.CreateItem(ctx, it); err != nil {
			return Result{}, err
		}
		s.notify(ctx, Change{Op: OpCreate, CollectionID: collectionID, ItemIDs: []string{it.ID()}})
		return Result{Status: http.StatusCreated, Body: withItemLinks(q, it)}, nil

	default:
		return Result{}, stacerr.Validationf("Item body type must be 'Feature' or 'FeatureCollection', not %s", typeName(doc["type"]))
	}
}

func typeName(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// UpdateItem replaces an item.
func (s *Service) UpdateItem(ctx context.Context, q links.Request, collectionID, itemID string, raw []byte) (Result, error) {
	doc, err := decodeObject(raw, "item")
	if err != nil {
		return Result{}, err
	}
	it := model.Item(doc)
	if err := s.validateItem(it, collectionID, itemID); err != nil {
		return Result{}, err
	}
	it["collection"] = collectionID
	if err := s.store.UpdateItem(ctx, it); err != nil {
		return Result{}, err
	}
	s.notify(ctx, Change{Op: OpUpdate, CollectionID: collectionID, ItemIDs: []string{itemID}})
	return Result{Status: http.StatusOK, Body: withItemLinks(q, it)}, nil
}

// PatchItem applies a JSON Patch (array body) or a JSON Merge Patch (object
// body) to the stored item.
func (s *Service) PatchItem(ctx context.Context, q links.Request, collectionID, itemID string, raw []byte) (Result, error) {
	existing, err := s.store.GetItem(ctx, collectionID, itemID)
	if stacerr.Is(err, stacerr.NotFound) {
		return Result{}, stacerr.NotFoundf("Item %s does not exist in collection %s.", itemID, collectionID)
	}
	if err != nil {
		return Result{}, err
	}
	patched, err := applyPatch(existing, raw)
	if err != nil {
		return Result{}, err
	}
	it := model.Item(patched)
	if err := s.validateItem(it, collectionID, itemID); err != nil {
		return Result{}, err
	}
	it["collection"] = collectionID
	if err := s.store.UpdateItem(ctx, it); err != nil {
		return Result{}, err
	}
	s.notify(ctx, Change{Op: OpUpdate, CollectionID: collectionID, ItemIDs: []string{itemID}})
	return Result{Status: http.StatusOK, Body: withItemLinks(q, it)}, nil
}

func (s *Service) DeleteItem(ctx context.Context, collectionID, itemID string) (Result, error) {
	if err := s.store.DeleteItem(ctx, collectionID, itemID); err != nil {
		return Result{}, err
	}
	s.notify(ctx, Change{Op: OpDelete, CollectionID: collectionID, ItemIDs: []string{itemID}})
	return Result{Status: http.StatusOK, Body: map[string]any{"deleted item": itemID}}, nil
}

func (s *Service) CreateCollection(ctx context.Context, q links.Request, raw []byte) (Result, error) {
	doc, err := decodeObject(raw, "collection")
	if err != nil {
		return Result{}, err
	}
	c := model.Collection(doc)
	if err := s.validateCollection(c, ""); err != nil {
		return Result{}, err
	}
	if err := s.store.CreateCollection(ctx, c); err != nil {
		return Result{}, err
	}
	s.notify(ctx, Change{Op: OpCreate, CollectionID: c.ID()})
	return Result{Status: http.StatusCreated, Body: withCollectionLinks(q, c)}, nil
}

// UpdateCollection replaces a collection. pathID is empty for PUT /collections.
func (s *Service) UpdateCollection(ctx context.Context, q links.Request, pathID string, raw []byte) (Result, error) {
	doc, err := decodeObject(raw, "collection")
	if err != nil {
		return Result{}, err
	}
	c := model.Collection(doc)
	if err := s.validateCollection(c, pathID); err != nil {
		return Result{}, err
	}
	if err := s.store.UpdateCollection(ctx, c); err != nil {
		return Result{}, err
	}
	s.notify(ctx, Change{Op: OpUpdate, CollectionID: c.ID()})
	return Result{Status: http.StatusOK, Body: withCollectionLinks(q, c)}, nil
}

func (s *Service) PatchCollection(ctx context.Context, q links.Request, collectionID string, raw []byte) (Result, error) {
	existing, err := s.store.GetCollection(ctx, collectionID)
	if err != nil {
		return Result{}, err
	}
	if existing == nil {
		return Result{}, stacerr.NotFoundf("Collection %s does not exist.", collectionID)
	}
	patched, err := applyPatch(existing, raw)
	if err != nil {
		return Result{}, err
	}
	c := model.Collection(patched)
	if err := s.validateCollection(c, collectionID); err != nil {
		return Result{}, err
	}
	if err := s.store.UpdateCollection(ctx, c); err != nil {
		return Result{}, err
	}
	s.notify(ctx, Change{Op: OpUpdate, CollectionID: collectionID})
	return Result{Status: http.StatusOK, Body: withCollectionLinks(q, c)}, nil
}

func (s *Service) DeleteCollection(ctx context.Context, collectionID string) (Result, error) {
	if err := s.store.DeleteCollection(ctx, collectionID); err != nil {
		return Result{}, err
	}
	s.notify(ctx, Change{Op: OpDelete, CollectionID: collectionID})
	return Result{Status: http.StatusOK, Body: map[string]any{"deleted collection": collectionID}}, nil
}
