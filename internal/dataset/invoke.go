package dataset

import (
	"fmt"

	"github.com/roach88/flexstream/internal/lazy"
)

// Invoke implements lazy.Handle for the operations the graph does not
// optimize: collect, take, first, reduce and fold.
func (d *Dataset) Invoke(name string, args []lazy.Value, kwargs map[string]lazy.Value) (lazy.Value, error) {
	if len(kwargs) != 0 {
		return nil, fmt.Errorf("dataset %s: keyword arguments are not supported", name)
	}
	switch name {
	case "collect":
		if len(args) != 0 {
			return nil, fmt.Errorf("dataset collect: takes no arguments")
		}
		return d.Collect(), nil

	case "take":
		if len(args) != 1 {
			return nil, fmt.Errorf("dataset take: expected 1 argument, got %d", len(args))
		}
		n, ok := args[0].(int)
		if !ok || n < 0 {
			return nil, fmt.Errorf("dataset take: count must be a non-negative int, got %v", args[0])
		}
		items := d.Collect()
		return items[:min(n, len(items))], nil

	case "first":
		items := d.Collect()
		if len(items) == 0 {
			return nil, fmt.Errorf("dataset first: dataset is empty")
		}
		return items[0], nil

	case "reduce":
		if len(args) != 1 {
			return nil, fmt.Errorf("dataset reduce: expected 1 argument, got %d", len(args))
		}
		f, err := combineFunc(args[0])
		if err != nil {
			return nil, fmt.Errorf("dataset reduce: %w", err)
		}
		return d.reduce(f)

	case "fold":
		if len(args) != 2 {
			return nil, fmt.Errorf("dataset fold: expected 2 arguments, got %d", len(args))
		}
		f, err := combineFunc(args[1])
		if err != nil {
			return nil, fmt.Errorf("dataset fold: %w", err)
		}
		return d.Aggregate(args[0], f, f)
	}
	return nil, fmt.Errorf("dataset: unsupported operation %q", name)
}

func combineFunc(v lazy.Value) (lazy.CombineFunc, error) {
	switch f := v.(type) {
	case lazy.Combiner:
		return f.Fn, nil
	case lazy.CombineFunc:
		return f, nil
	case func(acc, v lazy.Value) (lazy.Value, error):
		return f, nil
	}
	return nil, fmt.Errorf("expected a combiner, got %T", v)
}

// reduce merges items pairwise. An empty dataset yields lazy.NoValue.
func (d *Dataset) reduce(f lazy.CombineFunc) (lazy.Value, error) {
	result := lazy.NoValue
	for _, item := range d.Collect() {
		if lazy.IsNoValue(result) {
			result = item
			continue
		}
		var err error
		if result, err = f(result, item); err != nil {
			return nil, err
		}
	}
	return result, nil
}
