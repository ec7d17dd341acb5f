// Package querysql renders standing queries as parameterized SQLite SQL over
// the result store's records table.
//
// The SQL is the relational twin of the lazy translation in package query:
// run against the records of one batch it yields the same value. It backs
// the explain command and the store's cross-check of published results.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/flexstream/internal/ir"
	"github.com/roach88/flexstream/internal/query"
)

// SQLCompiler compiles queries to parameterized SQL for SQLite.
//
// CRITICAL: All values, including field paths, are parameterized (never
// interpolated).
type SQLCompiler struct {
	// Table holds one row per record: (batch_id, seq, record JSON).
	Table string
}

// NewSQLCompiler creates a compiler over the store's records table.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{Table: "records"}
}

// Compile converts q into a single-row, single-column SELECT scoped to one
// batch. The batch id is the first WHERE parameter and is filled from
// batchID. Returns (sql, params, error).
func (c *SQLCompiler) Compile(q query.Query, batchID string) (string, []any, error) {
	if err := query.Validate(q); err != nil {
		return "", nil, err
	}
	where, err := q.Predicate()
	if err != nil {
		return "", nil, err
	}

	selectSQL, selectParams := c.compileSelect(q.Select)

	conds := []string{"batch_id = ?"}
	params := append(selectParams, batchID)
	if len(where.Predicates) > 0 {
		whereSQL, whereParams, err := c.compilePredicate(where)
		if err != nil {
			return "", nil, fmt.Errorf("compile where: %w", err)
		}
		conds = append(conds, whereSQL)
		params = append(params, whereParams...)
	}
	if q.Select.Agg == query.AggCount && q.Select.Field != query.Wildcard {
		conds = append(conds, "json_type(record, ?) IS NOT NULL")
		params = append(params, jsonPath(q.Select.Field))
	}

	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s", selectSQL, c.Table, strings.Join(conds, " AND "))
	return sql, params, nil
}

// compileSelect renders the aggregate column. Non-integer values are
// skipped by sum, min and max, as in the lazy translation.
func (c *SQLCompiler) compileSelect(sel query.Select) (string, []any) {
	path := jsonPath(sel.Field)
	ints := "CASE WHEN json_type(record, ?) = 'integer' THEN json_extract(record, ?) END"
	switch sel.Agg {
	case query.AggSum:
		return "COALESCE(SUM(" + ints + "), 0)", []any{path, path}
	case query.AggMin:
		return "MIN(" + ints + ")", []any{path, path}
	case query.AggMax:
		return "MAX(" + ints + ")", []any{path, path}
	default:
		return "COUNT(*)", nil
	}
}

// compilePredicate compiles a query.Predicate to a WHERE clause fragment.
// Returns (sql, params, error).
func (c *SQLCompiler) compilePredicate(p query.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case query.Contains:
		path := jsonPath(pred.Field)
		return "(CASE json_type(record, ?)" +
				" WHEN 'text' THEN instr(json_extract(record, ?), ?) > 0" +
				" WHEN 'array' THEN EXISTS (SELECT 1 FROM json_each(record, ?) WHERE type = 'text' AND value = ?)" +
				" ELSE 0 END)",
			[]any{path, path, pred.Value, path, pred.Value}, nil
	case query.Prefix:
		path := jsonPath(pred.Field)
		return "(json_type(record, ?) = 'text' AND substr(json_extract(record, ?), 1, length(?)) = ?)",
			[]any{path, path, pred.Value, pred.Value}, nil
	case query.Equals:
		return c.compileEquals(pred.Field, pred.Value)
	case query.NotEquals:
		eq, params, err := c.compileEquals(pred.Field, pred.Value)
		if err != nil {
			return "", nil, err
		}
		return "NOT COALESCE(" + eq + ", 0)", params, nil
	case query.Greater:
		path := jsonPath(pred.Field)
		return "(json_type(record, ?) = 'integer' AND json_extract(record, ?) > ?)", []any{path, path, pred.Value}, nil
	case query.Less:
		path := jsonPath(pred.Field)
		return "(json_type(record, ?) = 'integer' AND json_extract(record, ?) < ?)", []any{path, path, pred.Value}, nil
	case query.And:
		return c.compileAnd(pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileEquals matches JSON type as well as value, so the string "1"
// never equals the integer 1.
func (c *SQLCompiler) compileEquals(field string, v ir.IRValue) (string, []any, error) {
	path := jsonPath(field)
	switch val := v.(type) {
	case ir.IRString:
		return "(json_type(record, ?) = 'text' AND json_extract(record, ?) = ?)", []any{path, path, string(val)}, nil
	case ir.IRInt:
		return "(json_type(record, ?) = 'integer' AND json_extract(record, ?) = ?)", []any{path, path, int64(val)}, nil
	case ir.IRBool:
		return "(json_type(record, ?) = ?)", []any{path, fmt.Sprint(bool(val))}, nil
	case ir.IRArray:
		return "", nil, fmt.Errorf("IRArray cannot be used as SQL parameter directly")
	case ir.IRObject:
		return "", nil, fmt.Errorf("IRObject cannot be used as SQL parameter directly")
	default:
		return "", nil, fmt.Errorf("unsupported IRValue type for SQL parameter: %T", v)
	}
}

// compileAnd compiles an And predicate to conjunction with AND.
func (c *SQLCompiler) compileAnd(and query.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}
	parts := make([]string, 0, len(and.Predicates))
	var params []any
	for _, sub := range and.Predicates {
		sql, subParams, err := c.compilePredicate(sub)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, subParams...)
	}
	if len(parts) == 1 {
		return parts[0], params, nil
	}
	return "(" + strings.Join(parts, " AND ") + ")", params, nil
}

// jsonPath converts a dotted field path to an SQLite JSON path with every
// label quoted.
func jsonPath(field string) string {
	var b strings.Builder
	b.WriteString("$")
	for part := range strings.SplitSeq(field, ".") {
		b.WriteString(`."`)
		b.WriteString(strings.ReplaceAll(part, `"`, `\"`))
		b.WriteString(`"`)
	}
	return b.String()
}
