package backend

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/pgstac-api/internal/core/model"
	"github.com/mohammed-shakir/pgstac-api/internal/stacerr"
)

func newMockPool(t *testing.T, withWriter bool) (*Pool, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	if withWriter {
		return NewPool(db, db), mock
	}
	return NewPool(db, nil), mock
}

func TestSearch_BindsJSONBAndDecodes(t *testing.T) {
	pool, mock := newMockPool(t, false)
	client := NewClient(pool)

	req := model.SearchRequest{Collections: []string{"c1"}, Limit: 10}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM search($1::text::jsonb)")).
		WithArgs(`{"collections":["c1"],"limit":10}`).
		WillReturnRows(sqlmock.NewRows([]string{"search"}).
			AddRow([]byte(`{"type":"FeatureCollection","features":[{"id":"i1"}],"next":"abc"}`)))

	out, err := client.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "abc", out["next"])
	feats, ok := out["features"].([]any)
	require.True(t, ok)
	assert.Len(t, feats, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCollection_NullIsNil(t *testing.T) {
	pool, mock := newMockPool(t, false)
	client := NewClient(pool)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM get_collection($1::text)")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"get_collection"}).AddRow(nil))

	col, err := client.GetCollection(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, col)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteItem_TwoTextArgs(t *testing.T) {
	pool, mock := newMockPool(t, true)
	client := NewClient(pool)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM delete_item($1::text, $2::text)")).
		WithArgs("i1", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"delete_item"}).AddRow(nil))

	require.NoError(t, client.DeleteItem(context.Background(), "c1", "i1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWrite_WithoutWritePoolIsConfigurationError(t *testing.T) {
	pool, mock := newMockPool(t, false)
	client := NewClient(pool)

	err := client.CreateItem(context.Background(), model.Item{"id": "i1"})
	require.Error(t, err)
	assert.Equal(t, stacerr.Configuration, stacerr.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCall_TranslatesPQErrors(t *testing.T) {
	tests := []struct {
		code pq.ErrorCode
		want stacerr.Kind
	}{
		{"23505", stacerr.Conflict},
		{"P0002", stacerr.NotFound},
		{"23503", stacerr.ForeignKey},
		{"23502", stacerr.Database},
		{"22007", stacerr.Validation},
		{"08006", stacerr.Unavailable},
		{"XX000", stacerr.Internal},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			pool, mock := newMockPool(t, true)
			mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM create_collection($1::text::jsonb)")).
				WithArgs(sqlmock.AnyArg()).
				WillReturnError(&pq.Error{Code: tt.code, Message: "boom"})

			err := NewClient(pool).CreateCollection(context.Background(), model.Collection{"id": "c1"})
			require.Error(t, err)
			assert.Equal(t, tt.want, stacerr.KindOf(err))

			var pe *pq.Error
			assert.True(t, errors.As(err, &pe), "driver error kept in chain")
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCall_RejectsUnknownFunction(t *testing.T) {
	pool, mock := newMockPool(t, false)

	_, err := pool.Call(context.Background(), Read, "pg_sleep", "1")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCall_NilPoolIsUnavailable(t *testing.T) {
	var pool *Pool
	_, err := pool.Call(context.Background(), Read, "search", model.SearchRequest{})
	require.Error(t, err)
	assert.Equal(t, stacerr.Unavailable, stacerr.KindOf(err))
}

func TestQueryables_NullCollectionBindsNull(t *testing.T) {
	pool, mock := newMockPool(t, false)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM get_queryables($1::text)")).
		WithArgs(nil).
		WillReturnRows(sqlmock.NewRows([]string{"get_queryables"}).
			AddRow([]byte(`{"type":"object","properties":{"id":{"type":"string"}}}`)))

	out, err := NewClient(pool).Queryables(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "object", out["type"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVersion(t *testing.T) {
	pool, mock := newMockPool(t, false)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT pgstac.get_version()")).
		WillReturnRows(sqlmock.NewRows([]string{"get_version"}).AddRow("0.9.1"))

	v, err := pool.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.9.1", v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWrite_ErrorDetailNamesIDs(t *testing.T) {
	dup := &pq.Error{
		Code:    "23505",
		Message: `duplicate key value violates unique constraint "items_p1_pk"`,
		Detail:  "Key (id)=(i1) already exists.",
	}
	tests := []struct {
		name   string
		fn     string
		err    *pq.Error
		call   func(*Client) error
		kind   stacerr.Kind
		detail string
	}{
		{
			name: "duplicate item", fn: "create_item", err: dup,
			call: func(c *Client) error {
				return c.CreateItem(context.Background(), model.Item{"id": "i1", "collection": "c1"})
			},
			kind:   stacerr.Conflict,
			detail: "Item i1 in collection c1 already exists.",
		},
		{
			name: "item in missing collection", fn: "create_item", err: &pq.Error{Code: "23503", Message: "fk"},
			call: func(c *Client) error {
				return c.CreateItem(context.Background(), model.Item{"id": "i1", "collection": "c9"})
			},
			kind:   stacerr.ForeignKey,
			detail: "Collection c9 does not exist.",
		},
		{
			name: "duplicate bulk", fn: "create_items", err: dup,
			call: func(c *Client) error {
				return c.CreateItems(context.Background(), []model.Item{
					{"id": "a", "collection": "c1"}, {"id": "b", "collection": "c1"},
				})
			},
			kind:   stacerr.Conflict,
			detail: "Items a, b in collection c1 already exist.",
		},
		{
			name: "missing collection update", fn: "update_collection", err: &pq.Error{Code: "P0002", Message: "no rows"},
			call: func(c *Client) error {
				return c.UpdateCollection(context.Background(), model.Collection{"id": "c9"})
			},
			kind:   stacerr.NotFound,
			detail: "Collection c9 does not exist.",
		},
		{
			name: "not null", fn: "create_collection", err: &pq.Error{Code: "23502", Message: "null value in column"},
			call: func(c *Client) error {
				return c.CreateCollection(context.Background(), model.Collection{"id": "c2"})
			},
			kind:   stacerr.Database,
			detail: "Collection c2: null value in column",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, mock := newMockPool(t, true)
			mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM " + tt.fn + "(")).
				WithArgs(sqlmock.AnyArg()).
				WillReturnError(tt.err)

			err := tt.call(NewClient(pool))
			require.Error(t, err)
			kind, detail := stacerr.Public(err)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.detail, detail)

			var pe *pq.Error
			assert.True(t, errors.As(err, &pe))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDeleteItem_MissingNamesItemAndCollection(t *testing.T) {
	pool, mock := newMockPool(t, true)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM delete_item($1::text, $2::text)")).
		WithArgs("i1", "c1").
		WillReturnError(&pq.Error{Code: "P0002", Message: "no rows"})

	err := NewClient(pool).DeleteItem(context.Background(), "c1", "i1")
	_, detail := stacerr.Public(err)
	assert.Equal(t, "Item i1 in collection c1 does not exist.", detail)
	assert.NoError(t, mock.ExpectationsWereMet())
}
