package lazy

// Value is any concrete value produced by forcing a node: a Handle for
// dataset-valued operations, or a scalar/collection for actions.
type Value = any

// MapFunc projects one dataset item.
type MapFunc func(item Value) (Value, error)

// FilterFunc reports whether an item is kept.
type FilterFunc func(item Value) (bool, error)

// CombineFunc merges an accumulator with an item (sequential combiner) or two
// partial accumulators (parallel combiner). Implementations must not mutate
// their arguments: the zero value is shared across partitions.
type CombineFunc func(acc, v Value) (Value, error)

// Handle is the closed capability set of the underlying bulk-data engine.
//
// The graph never computes over data itself; every evaluation goes through
// one of these methods. Implementations may distribute work however they
// like. Calls are awaited to completion and errors are returned unchanged.
type Handle interface {
	// Map returns a dataset of fn applied to every item.
	Map(fn MapFunc) (Handle, error)

	// Filter returns the items for which fn reports true.
	Filter(fn FilterFunc) (Handle, error)

	// Count returns the number of items.
	Count() (int64, error)

	// Aggregate folds every partition with seqOp starting from zero, then
	// merges partition results with combOp.
	Aggregate(zero Value, seqOp, combOp CombineFunc) (Value, error)

	// Cache hints the engine to retain this dataset.
	Cache() (Handle, error)

	// Invoke runs any other engine capability by name. Not optimized.
	Invoke(name string, args []Value, kwargs map[string]Value) (Value, error)

	// Attr reads a non-callable attribute of the dataset.
	Attr(name string) (Value, bool)
}

// Operation names with first-class support in the graph.
const (
	OpMap       = "map"
	OpFilter    = "filter"
	OpCount     = "count"
	OpAggregate = "aggregate"
	OpCache     = "cache"
	OpReduce    = "reduce"
	OpFold      = "fold"
)

// Operation describes one deferred call: name plus positional and keyword
// arguments. Immutable once attached to a node.
type Operation struct {
	Name   string
	Args   []Value
	Kwargs map[string]Value
}

func (op Operation) clone() Operation {
	out := Operation{Name: op.Name}
	if op.Args != nil {
		out.Args = append([]Value(nil), op.Args...)
	}
	if op.Kwargs != nil {
		out.Kwargs = make(map[string]Value, len(op.Kwargs))
		for k, v := range op.Kwargs {
			out.Kwargs[k] = v
		}
	}
	return out
}
