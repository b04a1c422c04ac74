package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mohammed-shakir/pgstac-api/internal/core/model"
	"github.com/mohammed-shakir/pgstac-api/internal/stacerr"
)

// Caller executes one named catalog function. *Pool is the production implementation.
type Caller interface {
	Call(ctx context.Context, mode Mode, fn string, args ...any) (any, error)
}

// Client exposes the catalog functions with typed arguments.
type Client struct {
	c Caller
}

func NewClient(c Caller) *Client {
	return &Client{c: c}
}

func (c *Client) Search(ctx context.Context, req model.SearchRequest) (map[string]any, error) {
	out, err := c.c.Call(ctx, Read, "search", req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return object(out), nil
}

// GetCollection returns nil without error when the collection does not exist.
func (c *Client) GetCollection(ctx context.Context, id string) (model.Collection, error) {
	out, err := c.c.Call(ctx, Read, "get_collection", id)
	if err != nil {
		return nil, fmt.Errorf("get_collection %s: %w", id, err)
	}
	m := object(out)
	if m == nil {
		return nil, nil
	}
	return model.Collection(m), nil
}

func (c *Client) AllCollections(ctx context.Context) ([]model.Collection, error) {
	out, err := c.c.Call(ctx, Read, "all_collections")
	if err != nil {
		return nil, fmt.Errorf("all_collections: %w", err)
	}
	arr, _ := out.([]any)
	cols := make([]model.Collection, 0, len(arr))
	for _, v := range arr {
		if m, ok := v.(map[string]any); ok {
			cols = append(cols, model.Collection(m))
		}
	}
	return cols, nil
}

func (c *Client) CollectionSearch(ctx context.Context, req model.CollectionSearchRequest) (map[string]any, error) {
	out, err := c.c.Call(ctx, Read, "collection_search", req)
	if err != nil {
		return nil, fmt.Errorf("collection_search: %w", err)
	}
	return object(out), nil
}

func (c *Client) BaseItem(ctx context.Context, collectionID string) (map[string]any, error) {
	out, err := c.c.Call(ctx, Read, "collection_base_item", collectionID)
	if err != nil {
		return nil, fmt.Errorf("collection_base_item %s: %w", collectionID, err)
	}
	m := object(out)
	if m == nil {
		return nil, stacerr.NotFoundf("A base item for %s does not exist.", collectionID)
	}
	return m, nil
}

// GetItem reads the stored (hydrated) item, used by partial updates.
func (c *Client) GetItem(ctx context.Context, collectionID, itemID string) (model.Item, error) {
	out, err := c.c.Call(ctx, Read, "get_item", itemID, collectionID)
	if err != nil {
		return nil, fmt.Errorf("get_item %s/%s: %w", collectionID, itemID, err)
	}
	m := object(out)
	if m == nil {
		return nil, stacerr.NotFoundf("Item %s in Collection %s does not exist.", itemID, collectionID)
	}
	return model.Item(m), nil
}

func (c *Client) Queryables(ctx context.Context, collectionID string) (map[string]any, error) {
	var arg any
	if collectionID != "" {
		arg = collectionID
	}
	out, err := c.c.Call(ctx, Read, "get_queryables", arg)
	if err != nil {
		return nil, fmt.Errorf("get_queryables: %w", err)
	}
	return object(out), nil
}

func (c *Client) CreateItem(ctx context.Context, it model.Item) error {
	return c.write(ctx, itemSubject(it), "create_item", map[string]any(it))
}

func (c *Client) CreateItems(ctx context.Context, items []model.Item) error {
	return c.write(ctx, itemsSubject(items), "create_items", items)
}

func (c *Client) UpdateItem(ctx context.Context, it model.Item) error {
	return c.write(ctx, itemSubject(it), "update_item", map[string]any(it))
}

func (c *Client) UpsertItems(ctx context.Context, items []model.Item) error {
	return c.write(ctx, itemsSubject(items), "upsert_items", items)
}

func (c *Client) DeleteItem(ctx context.Context, collectionID, itemID string) error {
	return c.write(ctx, subject{noun: "Item", id: itemID, collection: collectionID}, "delete_item", itemID, collectionID)
}

func (c *Client) CreateCollection(ctx context.Context, col model.Collection) error {
	return c.write(ctx, collectionSubject(col), "create_collection", map[string]any(col))
}

func (c *Client) UpdateCollection(ctx context.Context, col model.Collection) error {
	return c.write(ctx, collectionSubject(col), "update_collection", map[string]any(col))
}

func (c *Client) DeleteCollection(ctx context.Context, id string) error {
	return c.write(ctx, subject{noun: "Collection", collection: id}, "delete_collection", id)
}

func (c *Client) write(ctx context.Context, s subject, fn string, args ...any) error {
	if _, err := c.c.Call(ctx, Write, fn, args...); err != nil {
		return fmt.Errorf("%s: %w", fn, s.describe(err))
	}
	return nil
}

// subject names what a write touched so error details carry the ids.
type subject struct {
	noun       string // Item, Items or Collection
	id         string
	collection string
}

func itemSubject(it model.Item) subject {
	return subject{noun: "Item", id: str(it["id"]), collection: str(it["collection"])}
}

func itemsSubject(items []model.Item) subject {
	s := subject{noun: "Items"}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, str(it["id"]))
		if s.collection == "" {
			s.collection = str(it["collection"])
		}
	}
	s.id = strings.Join(ids, ", ")
	return s
}

func collectionSubject(col model.Collection) subject {
	return subject{noun: "Collection", collection: str(col["id"])}
}

func (s subject) String() string {
	if s.noun == "Collection" {
		return "Collection " + s.collection
	}
	return fmt.Sprintf("%s %s in collection %s", s.noun, s.id, s.collection)
}

// describe replaces the driver message of client-facing kinds with one that
// names the ids. The original error stays in the chain.
func (s subject) describe(err error) error {
	var e *stacerr.Error
	if !errors.As(err, &e) {
		return err
	}
	exist := "exists"
	if s.noun == "Items" {
		exist = "exist"
	}
	var detail string
	switch e.Kind {
	case stacerr.Conflict:
		detail = fmt.Sprintf("%s already %s.", s, exist)
	case stacerr.NotFound:
		detail = fmt.Sprintf("%s does not exist.", s)
	case stacerr.ForeignKey:
		detail = fmt.Sprintf("Collection %s does not exist.", s.collection)
	case stacerr.Database, stacerr.Validation:
		detail = fmt.Sprintf("%s: %s", s, e.Detail)
	default:
		return err
	}
	return stacerr.Wrap(e.Kind, err, detail)
}

func str(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func object(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
