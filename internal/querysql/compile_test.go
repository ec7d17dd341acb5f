package querysql_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flexstream/internal/dataset"
	"github.com/roach88/flexstream/internal/lazy"
	"github.com/roach88/flexstream/internal/query"
	"github.com/roach88/flexstream/internal/querysql"
	"github.com/roach88/flexstream/internal/store"
)

var lines = []string{
	`{"text":"so happy today","likes":3,"lang":"en","tags":["fun","sun"],"user":{"name":"ada","verified":true}}`,
	`{"text":"sad and happy","likes":10,"lang":"en","tags":["sad"]}`,
	`{"text":"just sad","likes":1,"lang":"fr","user":{"name":"bob","verified":false}}`,
	`{"text":"score","likes":2.5,"lang":"1"}`,
	`{"text":"quiet","likes":"7","lang":1}`,
	`plain happy line`,
	``,
}

func where(field, op string, v any) map[string]map[string]any {
	return map[string]map[string]any{field: {op: v}}
}

var queries = []query.Query{
	{ID: "ALL", Select: query.Select{Agg: query.AggCount, Field: query.Wildcard}},
	{ID: "HAPPY", Select: query.Select{Agg: query.AggCount, Field: query.Wildcard}, Where: where("text", query.OpContains, "happy")},
	{ID: "TAG-SUN", Select: query.Select{Agg: query.AggCount, Field: query.Wildcard}, Where: where("tags", query.OpContains, "sun")},
	{ID: "PREFIX", Select: query.Select{Agg: query.AggCount, Field: query.Wildcard}, Where: where("text", query.OpPrefix, "s")},
	{ID: "EN", Select: query.Select{Agg: query.AggCount, Field: query.Wildcard}, Where: where("lang", query.OpEquals, "en")},
	{ID: "LANG-1", Select: query.Select{Agg: query.AggCount, Field: query.Wildcard}, Where: where("lang", query.OpEquals, 1)},
	{ID: "NOT-EN", Select: query.Select{Agg: query.AggCount, Field: query.Wildcard}, Where: where("lang", query.OpNotEqual, "en")},
	{ID: "VERIFIED", Select: query.Select{Agg: query.AggCount, Field: query.Wildcard}, Where: where("user.verified", query.OpEquals, true)},
	{ID: "POPULAR", Select: query.Select{Agg: query.AggCount, Field: query.Wildcard}, Where: where("likes", query.OpGreater, 2)},
	{ID: "UNPOPULAR", Select: query.Select{Agg: query.AggCount, Field: query.Wildcard}, Where: where("likes", query.OpLess, 3)},
	{ID: "NAMED", Select: query.Select{Agg: query.AggCount, Field: "user.name"}},
	{ID: "LIKES", Select: query.Select{Agg: query.AggSum, Field: "likes"}},
	{ID: "EN-MOST", Select: query.Select{Agg: query.AggMax, Field: "likes"}, Where: map[string]map[string]any{
		"lang": {query.OpEquals: "en"},
		"text": {query.OpContains: "happy", query.OpNotEqual: "sad and happy"},
	}},
	{ID: "LEAST", Select: query.Select{Agg: query.AggMin, Field: "likes"}},
	{ID: "NONE", Select: query.Select{Agg: query.AggMin, Field: "missing"}},
	{ID: "NONE-SUM", Select: query.Select{Agg: query.AggSum, Field: "missing"}},
}

func lazyResults(t *testing.T) map[string]any {
	t.Helper()
	root := lazy.Wrap(dataset.FromLines(lines), lazy.LevelAggregate.Policies()...)
	records, err := root.Map(query.ParseLines)
	require.NoError(t, err)
	leaves := make(map[string]lazy.Node, len(queries))
	for _, q := range queries {
		leaves[q.ID], err = query.Apply(q, records)
		require.NoError(t, err, q.ID)
	}
	out := make(map[string]any, len(leaves))
	for id, leaf := range leaves {
		v, err := leaf.Force()
		require.NoError(t, err, id)
		out[id] = query.Result(v)
	}
	return out
}

func loadStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	require.NoError(t, st.WriteBatch(ctx, store.Batch{ID: "b1", Source: "mem", Seq: 1, Level: "aggregate", Total: int64(len(lines))}, nil))
	records := make([]map[string]any, len(lines))
	for i, l := range lines {
		records[i] = query.ParseRecord(l)
	}
	require.NoError(t, st.WriteRecords(ctx, "b1", records))

	// A second batch must not leak into b1's results.
	require.NoError(t, st.WriteBatch(ctx, store.Batch{ID: "b2", Source: "mem", Seq: 2, Level: "aggregate", Total: 1}, nil))
	require.NoError(t, st.WriteRecords(ctx, "b2", []map[string]any{{"text": "happy happy", "likes": 100}}))
	return st
}

func TestCompile_AgreesWithLazyEvaluation(t *testing.T) {
	want := lazyResults(t)
	st := loadStore(t)
	c := querysql.NewSQLCompiler()

	for _, q := range queries {
		t.Run(q.ID, func(t *testing.T) {
			sql, params, err := c.Compile(q, "b1")
			require.NoError(t, err)
			got, err := st.QueryScalar(context.Background(), sql, params...)
			require.NoError(t, err)
			assert.Equal(t, want[q.ID], got, sql)
		})
	}
}

func TestCompile_KnownValues(t *testing.T) {
	got := lazyResults(t)
	assert.Equal(t, int64(7), got["ALL"])
	assert.Equal(t, int64(3), got["HAPPY"])
	assert.Equal(t, int64(1), got["TAG-SUN"])
	assert.Equal(t, int64(3), got["PREFIX"], "so happy, sad and happy, score")
	assert.Equal(t, int64(2), got["EN"])
	assert.Equal(t, int64(1), got["LANG-1"], "the string \"1\" is not the integer 1")
	assert.Equal(t, int64(5), got["NOT-EN"], "missing fields are not equal")
	assert.Equal(t, int64(1), got["VERIFIED"])
	assert.Equal(t, int64(2), got["POPULAR"])
	assert.Equal(t, int64(1), got["UNPOPULAR"])
	assert.Equal(t, int64(2), got["NAMED"])
	assert.Equal(t, int64(14), got["LIKES"], "floats and strings are skipped")
	assert.Equal(t, int64(3), got["EN-MOST"])
	assert.Equal(t, int64(1), got["LEAST"])
	assert.Nil(t, got["NONE"])
	assert.Equal(t, int64(0), got["NONE-SUM"])
}

func TestCompile_Shape(t *testing.T) {
	c := querysql.NewSQLCompiler()
	sql, params, err := c.Compile(queries[0], "b1")
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM records WHERE batch_id = ?", sql)
	assert.Equal(t, []any{"b1"}, params)

	sql, params, err = c.Compile(query.Query{ID: "S", Select: query.Select{Agg: query.AggSum, Field: "user.likes"}}, "b9")
	require.NoError(t, err)
	assert.Contains(t, sql, "COALESCE(SUM(")
	assert.Equal(t, []any{`$."user"."likes"`, `$."user"."likes"`, "b9"}, params)

	sql, params, err = c.Compile(queries[10], "b1")
	require.NoError(t, err)
	assert.Contains(t, sql, "json_type(record, ?) IS NOT NULL")
	assert.Equal(t, []any{"b1", `$."user"."name"`}, params)

	c.Table = "archive"
	sql, _, err = c.Compile(queries[0], "b1")
	require.NoError(t, err)
	assert.Contains(t, sql, "FROM archive")
}

func TestCompile_RejectsInvalid(t *testing.T) {
	c := querysql.NewSQLCompiler()
	_, _, err := c.Compile(query.Query{ID: "X", Select: query.Select{Agg: "avg", Field: "likes"}}, "b1")
	require.Error(t, err)
	assert.True(t, query.IsValidationError(err))

	_, _, err = c.Compile(query.Query{
		ID:     "Y",
		Select: query.Select{Agg: query.AggCount, Field: query.Wildcard},
		Where:  where("tags", query.OpEquals, []any{"a"}),
	}, "b1")
	require.Error(t, err)
}
