package cql2

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonOf(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestParse_Translations(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "equality",
			in:   "id='test-item'",
			want: `{"args":[{"property":"id"},"test-item"],"op":"="}`,
		},
		{
			name: "and with numeric comparison",
			in:   "collection = 'c1' AND eo:cloud_cover <= 10",
			want: `{"args":[{"args":[{"property":"collection"},"c1"],"op":"="},{"args":[{"property":"eo:cloud_cover"},10],"op":"<="}],"op":"and"}`,
		},
		{
			name: "or flattens and binds looser than and",
			in:   "a = 1 OR b = 2 AND c = 3 OR d = 4",
			want: `{"args":[{"args":[{"property":"a"},1],"op":"="},{"args":[{"args":[{"property":"b"},2],"op":"="},{"args":[{"property":"c"},3],"op":"="}],"op":"and"},{"args":[{"property":"d"},4],"op":"="}],"op":"or"}`,
		},
		{
			name: "not like",
			in:   "title NOT LIKE 'foo%'",
			want: `{"args":[{"args":[{"property":"title"},"foo%"],"op":"like"}],"op":"not"}`,
		},
		{
			name: "between and in",
			in:   "gsd BETWEEN 10 AND 30 AND platform IN ('landsat-8','sentinel-2')",
			want: `{"args":[{"args":[{"property":"gsd"},10,30],"op":"between"},{"args":[{"property":"platform"},["landsat-8","sentinel-2"]],"op":"in"}],"op":"and"}`,
		},
		{
			name: "is not null",
			in:   "proj:epsg IS NOT NULL",
			want: `{"args":[{"args":[{"property":"proj:epsg"}],"op":"isNull"}],"op":"not"}`,
		},
		{
			name: "spatial with negative coordinates",
			in:   "S_INTERSECTS(geometry, POLYGON((-105 40, -104 40, -104 41, -105 41, -105 40)))",
			want: `{"args":[{"property":"geometry"},{"coordinates":[[[-105,40],[-104,40],[-104,41],[-105,41],[-105,40]]],"type":"Polygon"}],"op":"s_intersects"}`,
		},
		{
			name: "temporal interval",
			in:   "T_INTERSECTS(datetime, INTERVAL('2020-01-01T00:00:00Z', '..'))",
			want: `{"args":[{"property":"datetime"},{"interval":["2020-01-01T00:00:00Z",".."]}],"op":"t_intersects"}`,
		},
		{
			name: "timestamp and quoted identifier",
			in:   `"end_datetime" > TIMESTAMP('2021-01-01T00:00:00Z')`,
			want: `{"args":[{"property":"end_datetime"},{"timestamp":"2021-01-01T00:00:00Z"}],"op":">"}`,
		},
		{
			name: "arithmetic in parentheses",
			in:   "(gsd + 2) * 3 > 10",
			want: `{"args":[{"args":[{"args":[{"property":"gsd"},2],"op":"+"},3],"op":"*"},10],"op":">"}`,
		},
		{
			name: "escaped quote and bbox",
			in:   "S_INTERSECTS(geometry, BBOX(-10, -5, 10, 5)) AND name = 'O''Hare'",
			want: `{"args":[{"args":[{"property":"geometry"},{"bbox":[-10,-5,10,5]}],"op":"s_intersects"},{"args":[{"property":"name"},"O'Hare"],"op":"="}],"op":"and"}`,
		},
		{
			name: "casei function",
			in:   "CASEI(title) = CASEI('Landsat')",
			want: `{"args":[{"args":[{"property":"title"}],"op":"casei"},{"args":["Landsat"],"op":"casei"}],"op":"="}`,
		},
		{
			name: "multipoint both spellings",
			in:   "S_WITHIN(geometry, MULTIPOINT((1 2), (3 4))) OR S_WITHIN(geometry, MULTIPOINT(1 2, 3 4))",
			want: `{"args":[{"args":[{"property":"geometry"},{"coordinates":[[1,2],[3,4]],"type":"MultiPoint"}],"op":"s_within"},{"args":[{"property":"geometry"},{"coordinates":[[1,2],[3,4]],"type":"MultiPoint"}],"op":"s_within"}],"op":"or"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, jsonOf(t, got))
		})
	}
}

func TestParse_Errors(t *testing.T) {
	for _, in := range []string{
		"",
		"id = ",
		"id = 'unterminated",
		"a = 1 AND",
		"POINT(1)",
		"a BETWEEN 1 2",
		"(a = 1",
		"a = 1 )",
		"a = 1 # b",
		"'just a string'",
	} {
		if _, err := Parse(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestTranslator_Memoizes(t *testing.T) {
	tr := NewTranslator(4)
	a, err := tr.Parse("id = 'x'")
	require.NoError(t, err)
	b, err := tr.Parse("id = 'x'")
	require.NoError(t, err)
	assert.Equal(t, jsonOf(t, a), jsonOf(t, b))
	assert.Equal(t, 1, tr.cache.Len())

	_, err = tr.Parse("id =")
	require.Error(t, err)
	assert.Equal(t, 1, tr.cache.Len(), "failed parses are not cached")
}
