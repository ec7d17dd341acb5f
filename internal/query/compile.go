package query

import (
	"fmt"
	"slices"

	"github.com/roach88/flexstream/internal/ir"
)

// Where-clause operators.
const (
	OpContains = "_contains"
	OpEquals   = "_eq"
	OpNotEqual = "_ne"
	OpPrefix   = "_prefix"
	OpGreater  = "_gt"
	OpLess     = "_lt"
)

// Operators lists every supported where-clause operator.
var Operators = []string{OpContains, OpEquals, OpNotEqual, OpPrefix, OpGreater, OpLess}

// Predicate compiles the where-clause. Conditions are ordered by field then
// operator so that equal clauses compile to equal trees.
func (q Query) Predicate() (And, error) {
	fields := make([]string, 0, len(q.Where))
	for f := range q.Where {
		fields = append(fields, f)
	}
	slices.Sort(fields)

	var and And
	for _, field := range fields {
		if field == "" {
			return And{}, &ValidationError{Query: q.ID, Field: "where", Message: "empty field path"}
		}
		ops := make([]string, 0, len(q.Where[field]))
		for op := range q.Where[field] {
			ops = append(ops, op)
		}
		slices.Sort(ops)
		for _, op := range ops {
			p, err := compileCondition(field, op, q.Where[field][op])
			if err != nil {
				return And{}, &ValidationError{Query: q.ID, Field: "where." + field + "." + op, Message: err.Error()}
			}
			and.Predicates = append(and.Predicates, p)
		}
	}
	return and, nil
}

func compileCondition(field, op string, raw any) (Predicate, error) {
	switch op {
	case OpContains, OpPrefix:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("operand must be a string, got %T", raw)
		}
		if op == OpContains {
			return Contains{Field: field, Value: s}, nil
		}
		return Prefix{Field: field, Value: s}, nil

	case OpEquals, OpNotEqual:
		v, err := ir.FromGo(raw)
		if err != nil {
			return nil, err
		}
		if op == OpEquals {
			return Equals{Field: field, Value: v}, nil
		}
		return NotEquals{Field: field, Value: v}, nil

	case OpGreater, OpLess:
		v, err := ir.FromGo(raw)
		if err != nil {
			return nil, err
		}
		n, ok := v.(ir.IRInt)
		if !ok {
			return nil, fmt.Errorf("operand must be an integer, got %T", raw)
		}
		if op == OpGreater {
			return Greater{Field: field, Value: int64(n)}, nil
		}
		return Less{Field: field, Value: int64(n)}, nil
	}
	return nil, fmt.Errorf("unsupported operator %q: must be one of %v", op, Operators)
}

// encodePredicate renders p as an IR value. It is the stable identity of
// the predicate for deduplication and fingerprints.
func encodePredicate(p Predicate) ir.IRValue {
	switch pred := p.(type) {
	case Contains:
		return condition(OpContains, pred.Field, ir.IRString(pred.Value))
	case Prefix:
		return condition(OpPrefix, pred.Field, ir.IRString(pred.Value))
	case Equals:
		return condition(OpEquals, pred.Field, pred.Value)
	case NotEquals:
		return condition(OpNotEqual, pred.Field, pred.Value)
	case Greater:
		return condition(OpGreater, pred.Field, ir.IRInt(pred.Value))
	case Less:
		return condition(OpLess, pred.Field, ir.IRInt(pred.Value))
	case And:
		all := make(ir.IRArray, len(pred.Predicates))
		for i, sub := range pred.Predicates {
			all[i] = encodePredicate(sub)
		}
		return ir.IRObject{"and": all}
	}
	panic(fmt.Sprintf("query: unknown predicate %T", p))
}

func condition(op, field string, v ir.IRValue) ir.IRObject {
	return ir.IRObject{"op": ir.IRString(op), "field": ir.IRString(field), "value": v}
}

// Fingerprint is the content address of the query's select and where
// clauses. Queries that differ only by id share a fingerprint.
func (q Query) Fingerprint() (string, error) {
	where, err := q.Predicate()
	if err != nil {
		return "", err
	}
	return ir.Digest(ir.DomainQuery, ir.IRObject{
		"agg":   ir.IRString(q.Select.Agg),
		"field": ir.IRString(q.Select.Field),
		"where": encodePredicate(where),
	})
}
