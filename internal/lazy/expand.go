package lazy

import "fmt"

type expander struct{}

// ExpandAggregates rewrites count, fold and reduce into the generalized
// aggregate so they deduplicate and fuse like any other aggregate:
//
//	count()         ≡ aggregate(0, (acc, _) -> acc+1, (a, b) -> a+b)
//	fold(zero, op)  ≡ aggregate(zero, op, op)
//	reduce(f)       ≡ aggregate(NoValue, f', f') where f' treats NoValue as identity
func ExpandAggregates() Policy { return expander{} }

func (expander) Name() string { return "expand-aggregates" }
func (expander) rank() int    { return rankExpand }

func (expander) wrapApply(g *Graph, next applyFunc) applyFunc {
	return func(parent *node, op Operation) (*node, error) {
		rewritten, err := expand(op)
		if err != nil {
			return nil, err
		}
		return next(parent, rewritten)
	}
}

var (
	countSeq = Combiner{ID: ID("count.seq"), Fn: func(acc, _ Value) (Value, error) {
		n, ok := acc.(int64)
		if !ok {
			return nil, fmt.Errorf("count: accumulator of type %T is not int64", acc)
		}
		return n + 1, nil
	}}
	countComb = Combiner{ID: ID("count.comb"), Fn: func(a, b Value) (Value, error) {
		x, okA := a.(int64)
		y, okB := b.(int64)
		if !okA || !okB {
			return nil, fmt.Errorf("count: cannot add %T and %T", a, b)
		}
		return x + y, nil
	}}
)

func expand(op Operation) (Operation, error) {
	switch op.Name {
	case OpCount:
		if err := checkArity(op, 0); err != nil {
			return Operation{}, err
		}
		return Operation{Name: OpAggregate, Args: []Value{int64(0), countSeq, countComb}}, nil

	case OpFold:
		if err := checkArity(op, 2); err != nil {
			return Operation{}, err
		}
		f, err := combinerArg(op, 1)
		if err != nil {
			return Operation{}, err
		}
		return Operation{Name: OpAggregate, Args: []Value{op.Args[0], f, f}}, nil

	case OpReduce:
		if err := checkArity(op, 1); err != nil {
			return Operation{}, err
		}
		f, err := combinerArg(op, 0)
		if err != nil {
			return Operation{}, err
		}
		seqOp := Combiner{ID: f.ID.derive("reduce.seq"), Fn: skipNoValue(f.Fn)}
		combOp := Combiner{ID: f.ID.derive("reduce.comb"), Fn: skipNoValue(f.Fn)}
		return Operation{Name: OpAggregate, Args: []Value{NoValue, seqOp, combOp}}, nil
	}
	return op, nil
}

func combinerArg(op Operation, i int) (Combiner, error) {
	c, ok := op.Args[i].(Combiner)
	if !ok || c.Fn == nil {
		return Combiner{}, invalidArguments(op.Name, "operand %d must be a Combiner, got %T", i+1, op.Args[i])
	}
	return c, nil
}

// skipNoValue makes NoValue the identity element of f.
func skipNoValue(f CombineFunc) CombineFunc {
	return func(a, b Value) (Value, error) {
		if IsNoValue(a) {
			return b, nil
		}
		if IsNoValue(b) {
			return a, nil
		}
		return f(a, b)
	}
}
