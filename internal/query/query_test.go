package query

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flexstream/internal/ir"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

func countWhere(id string, where map[string]map[string]any) Query {
	return Query{ID: id, Select: Select{Agg: AggCount, Field: Wildcard}, Where: where}
}

func TestParseRecord(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Record
	}{
		{"empty", "", Record{}},
		{"blank", "   \t", Record{}},
		{"plain text", "  feeling happy today ", Record{"text": "feeling happy today"}},
		{"json object", `{"text":"hi","n":3}`, Record{"text": "hi", "n": json.Number("3")}},
		{"json array is text", `[1,2]`, Record{"text": "[1,2]"}},
		{"broken json is text", `{"text":`, Record{"text": `{"text":`}},
		{"trailing data is text", `{"a":1} {"b":2}`, Record{"text": `{"a":1} {"b":2}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRecord(tt.line))
		})
	}
}

func TestLookup(t *testing.T) {
	rec := ParseRecord(`{"user":{"name":"ada","tags":["x"]},"n":1}`)

	v, ok := Lookup(rec, "user.name")
	require.True(t, ok)
	assert.Equal(t, "ada", v)

	_, ok = Lookup(rec, "user.missing")
	assert.False(t, ok)
	_, ok = Lookup(rec, "n.deeper")
	assert.False(t, ok)
}

func TestInt(t *testing.T) {
	n, ok := Int(json.Number("42"))
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)

	_, ok = Int(json.Number("4.2"))
	assert.False(t, ok)
	_, ok = Int("42")
	assert.False(t, ok)
}

func TestPredicate_Compile(t *testing.T) {
	q := countWhere("q", map[string]map[string]any{
		"text": {OpContains: "happy", OpPrefix: "I"},
		"n":    {OpGreater: 2, OpLess: int64(10)},
		"lang": {OpEquals: "en"},
	})
	p, err := q.Predicate()
	require.NoError(t, err)

	assert.Equal(t, And{Predicates: []Predicate{
		Equals{Field: "lang", Value: ir.IRString("en")},
		Greater{Field: "n", Value: 2},
		Less{Field: "n", Value: 10},
		Contains{Field: "text", Value: "happy"},
		Prefix{Field: "text", Value: "I"},
	}}, p)
}

func TestPredicate_Errors(t *testing.T) {
	tests := []struct {
		name  string
		where map[string]map[string]any
	}{
		{"unknown operator", map[string]map[string]any{"text": {"_regex": "h.*"}}},
		{"contains needs string", map[string]map[string]any{"text": {OpContains: 3}}},
		{"gt needs integer", map[string]map[string]any{"n": {OpGreater: "3"}}},
		{"float literal", map[string]map[string]any{"n": {OpEquals: 1.5}}},
		{"null literal", map[string]map[string]any{"n": {OpEquals: nil}}},
		{"empty field", map[string]map[string]any{"": {OpEquals: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := countWhere("bad", tt.where).Predicate()
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestMatch(t *testing.T) {
	rec := ParseRecord(`{"text":"so happy","n":5,"tags":["a","b"],"user":{"lang":"en"},"f":1.5}`)

	tests := []struct {
		name string
		p    Predicate
		want bool
	}{
		{"contains substring", Contains{Field: "text", Value: "happy"}, true},
		{"contains missing", Contains{Field: "text", Value: "sad"}, false},
		{"contains member", Contains{Field: "tags", Value: "b"}, true},
		{"contains non-member", Contains{Field: "tags", Value: "c"}, false},
		{"contains absent field", Contains{Field: "nope", Value: ""}, false},
		{"prefix", Prefix{Field: "text", Value: "so"}, true},
		{"prefix non-string", Prefix{Field: "n", Value: "5"}, false},
		{"equals nested", Equals{Field: "user.lang", Value: ir.IRString("en")}, true},
		{"equals int", Equals{Field: "n", Value: ir.IRInt(5)}, true},
		{"equals array", Equals{Field: "tags", Value: ir.IRArray{ir.IRString("a"), ir.IRString("b")}}, true},
		{"equals float field never", Equals{Field: "f", Value: ir.IRInt(1)}, false},
		{"not equals absent", NotEquals{Field: "nope", Value: ir.IRInt(1)}, true},
		{"not equals same", NotEquals{Field: "n", Value: ir.IRInt(5)}, false},
		{"greater", Greater{Field: "n", Value: 4}, true},
		{"greater equal", Greater{Field: "n", Value: 5}, false},
		{"less", Less{Field: "n", Value: 6}, true},
		{"less on float", Less{Field: "f", Value: 6}, false},
		{"empty and", And{}, true},
		{"and", And{Predicates: []Predicate{Greater{Field: "n", Value: 1}, Contains{Field: "text", Value: "sad"}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.p, rec))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		q     Query
		field string
	}{
		{"missing id", Query{Select: Select{Agg: AggCount, Field: Wildcard}}, "id"},
		{"unknown aggregator", Query{ID: "q", Select: Select{Agg: "avg", Field: "n"}}, "select.agg"},
		{"missing field", Query{ID: "q", Select: Select{Agg: AggSum}}, "select.field"},
		{"sum of wildcard", Query{ID: "q", Select: Select{Agg: AggSum, Field: Wildcard}}, "select.field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.q)
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	assert.NoError(t, Validate(countWhere("ok", nil)))
	assert.NoError(t, Validate(Query{ID: "ok", Select: Select{Agg: AggMax, Field: "n"}}))
}

func TestValidateAll_DuplicateIDs(t *testing.T) {
	err := ValidateAll([]Query{countWhere("a", nil), countWhere("a", nil), {ID: "b"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate id")
	assert.Contains(t, err.Error(), "select.agg")
}

func TestFingerprint(t *testing.T) {
	happy := map[string]map[string]any{"text": {OpContains: "happy"}}

	a, err := countWhere("HAPPY-1", happy).Fingerprint()
	require.NoError(t, err)
	b, err := countWhere("HAPPY-2", happy).Fingerprint()
	require.NoError(t, err)
	c, err := countWhere("SAD-1", map[string]map[string]any{"text": {OpContains: "sad"}}).Fingerprint()
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
