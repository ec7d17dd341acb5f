package query

import (
	"fmt"

	"github.com/roach88/flexstream/internal/ir"
	"github.com/roach88/flexstream/internal/lazy"
)

// ParseLines is the projection from raw input lines to Records.
var ParseLines = lazy.Project("query.parse_record", func(item lazy.Value) (lazy.Value, error) {
	line, ok := item.(string)
	if !ok {
		return nil, fmt.Errorf("parse record: item of type %T is not a line", item)
	}
	return ParseRecord(line), nil
})

// Apply translates q into deferred calls against source, whose items must
// be Records. The returned leaf forces to an int64, or to lazy.NoValue for
// min and max over no integer values.
//
// An empty where-clause applies no filter. Operands are identified by the
// canonical encoding of the clause they implement, so equal clauses share
// nodes under a deduplicating graph.
func Apply(q Query, source lazy.Node) (lazy.Node, error) {
	if err := Validate(q); err != nil {
		return lazy.Node{}, err
	}
	where, err := q.Predicate()
	if err != nil {
		return lazy.Node{}, err
	}

	matched := source
	if len(where.Predicates) > 0 {
		matched, err = source.Filter(Where(where))
		if err != nil {
			return lazy.Node{}, fmt.Errorf("query %s: %w", q.ID, err)
		}
	}

	var leaf lazy.Node
	switch q.Select.Agg {
	case AggCount:
		if q.Select.Field == Wildcard {
			leaf, err = matched.Count()
			break
		}
		var present lazy.Node
		if present, err = matched.Filter(hasField(q.Select.Field)); err == nil {
			leaf, err = present.Count()
		}
	case AggSum:
		var values lazy.Node
		if values, err = matched.Map(IntField(q.Select.Field)); err == nil {
			leaf, err = values.Fold(int64(0), sumInts)
		}
	case AggMin, AggMax:
		var values lazy.Node
		if values, err = matched.Map(IntField(q.Select.Field)); err == nil {
			leaf, err = values.Reduce(extremum(q.Select.Agg))
		}
	}
	if err != nil {
		return lazy.Node{}, fmt.Errorf("query %s: %w", q.ID, err)
	}
	return leaf, nil
}

// Where is the filter operand for a compiled where-clause.
func Where(p Predicate) lazy.Predicate {
	return lazy.Where("query.where", func(item lazy.Value) (bool, error) {
		rec, ok := item.(Record)
		if !ok {
			return false, fmt.Errorf("query where: item of type %T is not a record", item)
		}
		return Match(p, rec), nil
	}, ir.O("predicate", encodePredicate(p)))
}

func hasField(field string) lazy.Predicate {
	return lazy.Where("query.has_field", func(item lazy.Value) (bool, error) {
		rec, ok := item.(Record)
		if !ok {
			return false, fmt.Errorf("query has_field: item of type %T is not a record", item)
		}
		_, found := Lookup(rec, field)
		return found, nil
	}, ir.O("field", ir.IRString(field)))
}

// IntField projects a record onto an integer field. Records where the field
// is missing or not an integer project to lazy.NoValue.
func IntField(field string) lazy.Projection {
	return lazy.Project("query.int_field", func(item lazy.Value) (lazy.Value, error) {
		rec, ok := item.(Record)
		if !ok {
			return nil, fmt.Errorf("query int_field: item of type %T is not a record", item)
		}
		v, _ := Lookup(rec, field)
		if n, ok := Int(v); ok {
			return n, nil
		}
		return lazy.NoValue, nil
	}, ir.O("field", ir.IRString(field)))
}

// sumInts adds integers, skipping NoValue.
var sumInts = lazy.Combine("query.sum", func(a, b lazy.Value) (lazy.Value, error) {
	if lazy.IsNoValue(b) {
		return a, nil
	}
	if lazy.IsNoValue(a) {
		return b, nil
	}
	x, okA := a.(int64)
	y, okB := b.(int64)
	if !okA || !okB {
		return nil, fmt.Errorf("query sum: cannot add %T and %T", a, b)
	}
	return x + y, nil
})

var (
	minInts = lazy.Combine("query.min", pick(func(x, y int64) bool { return x <= y }))
	maxInts = lazy.Combine("query.max", pick(func(x, y int64) bool { return x >= y }))
)

func extremum(agg Aggregator) lazy.Combiner {
	if agg == AggMin {
		return minInts
	}
	return maxInts
}

// pick keeps the first argument when keepFirst holds. NoValue loses to any
// integer.
func pick(keepFirst func(x, y int64) bool) lazy.CombineFunc {
	return func(a, b lazy.Value) (lazy.Value, error) {
		if lazy.IsNoValue(b) {
			return a, nil
		}
		if lazy.IsNoValue(a) {
			return b, nil
		}
		x, okA := a.(int64)
		y, okB := b.(int64)
		if !okA || !okB {
			return nil, fmt.Errorf("query: cannot compare %T and %T", a, b)
		}
		if keepFirst(x, y) {
			return x, nil
		}
		return y, nil
	}
}

// Result converts a forced query value to its published form: NoValue
// becomes nil.
func Result(v lazy.Value) any {
	if lazy.IsNoValue(v) {
		return nil
	}
	return v
}
