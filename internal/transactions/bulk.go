package transactions

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/goccy/go-json"

	"github.com/mohammed-shakir/pgstac-api/internal/core/model"
	"github.com/mohammed-shakir/pgstac-api/internal/stacerr"
)

type bulkBody struct {
	Items  map[string]map[string]any `json:"items" validate:"required,min=1,dive,keys,required,endkeys,required"`
	Method string                    `json:"method" validate:"omitempty,oneof=insert upsert"`
}

// BulkItems serves POST /collections/{id}/bulk_items. The body maps item ids
// to items; method is insert (default) or upsert.
func (s *Service) BulkItems(ctx context.Context, collectionID string, raw []byte) (Result, error) {
	var b bulkBody
	if err := json.Unmarshal(raw, &b); err != nil {
		return Result{}, stacerr.Validationf("Invalid bulk items body: %v", err)
	}
	if err := checkStruct("bulk items", b); err != nil {
		return Result{}, err
	}

	ids := make([]string, 0, len(b.Items))
	for id := range b.Items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	items := make([]model.Item, 0, len(ids))
	for _, id := range ids {
		it := model.Item(b.Items[id])
		if err := s.validateItem(it, collectionID, id); err != nil {
			return Result{}, err
		}
		it["collection"] = collectionID
		items = append(items, it)
	}

	var (
		verb string
		op   Op
		err  error
	)
	switch b.Method {
	case "", "insert":
		verb, op = "added", OpCreate
		err = s.store.CreateItems(ctx, items)
	case "upsert":
		verb, op = "upserted", OpUpsert
		err = s.store.UpsertItems(ctx, items)
	default:
		return Result{}, stacerr.Validationf("Invalid bulk items body: method must be one of: insert upsert")
	}
	if err != nil {
		return Result{}, err
	}
	s.notify(ctx, Change{Op: op, CollectionID: collectionID, ItemIDs: ids})
	return Result{Status: http.StatusOK, Body: fmt.Sprintf("Successfully %s %d items.", verb, len(items))}, nil
}
