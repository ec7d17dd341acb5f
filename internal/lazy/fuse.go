package lazy

import (
	"log/slog"
	"slices"
	"sync"
)

// fuseKind groups sibling calls that can share one pass.
type fuseKind string

const (
	kindMap       fuseKind = OpMap
	kindFilter    fuseKind = OpFilter
	kindAggregate fuseKind = OpAggregate
)

func fusible(name string) (fuseKind, bool) {
	switch name {
	case OpMap:
		return kindMap, true
	case OpFilter:
		return kindFilter, true
	case OpAggregate:
		return kindAggregate, true
	}
	return "", false
}

// task is one registered operand, in registration order.
type task struct {
	mapFn    MapFunc
	filterFn FilterFunc
	zero     Value
	seqOp    CombineFunc
	combOp   CombineFunc
}

func newTask(op *Operation) task {
	switch op.Name {
	case OpMap:
		return task{mapFn: op.Args[0].(Projection).Fn}
	case OpFilter:
		return task{filterFn: op.Args[0].(Predicate).Fn}
	default:
		return task{
			zero:   op.Args[0],
			seqOp:  op.Args[1].(Combiner).Fn,
			combOp: op.Args[2].(Combiner).Fn,
		}
	}
}

// taskTable is the append-only registration list for one (parent, kind)
// pair plus its single fused result slot.
type taskTable struct {
	// Guarded by the parent's mu.
	tasks  []task
	sealed bool

	mu    sync.Mutex
	done  bool
	fused Value
}

func (p *node) table(kind fuseKind) *taskTable {
	if p.tables == nil {
		p.tables = make(map[fuseKind]*taskTable)
	}
	t, ok := p.tables[kind]
	if !ok {
		t = &taskTable{}
		p.tables[kind] = t
	}
	return t
}

// result returns the fused value, computing it on first use.
func (t *taskTable) result(compute func() (Value, error)) (Value, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return t.fused, nil
	}
	v, err := compute()
	if err != nil {
		return nil, err
	}
	t.fused, t.done = v, true
	return v, nil
}

// fusedRow holds one value per registered task, in registration order.
// A cell holding a slotError belongs to a task whose operand failed.
type fusedRow []Value

// slotError records one task's operand failure inside a fused pass. It is
// returned only when that task's value is extracted.
type slotError struct{ err error }

func cellErr(v Value) error {
	if se, ok := v.(slotError); ok {
		return se.err
	}
	return nil
}

type fuser struct{}

// Fuse shares one engine pass among all sibling maps, filters or
// aggregates requested against the same parent before any of them is
// forced. With fewer than two siblings of a kind the call runs unchanged.
func Fuse() Policy { return fuser{} }

func (fuser) Name() string { return "fuse" }
func (fuser) rank() int    { return rankFuse }

// wrapApply runs with the parent's lock held.
func (fuser) wrapApply(g *Graph, next applyFunc) applyFunc {
	return func(parent *node, op Operation) (*node, error) {
		kind, ok := fusible(op.Name)
		if !ok {
			return next(parent, op)
		}
		t := parent.table(kind)
		if t.sealed {
			return nil, invalidOperation(op.Name,
				"node %d already forced its %s calls; request every %s before forcing any of them",
				parent.id, kind, kind)
		}
		child, err := next(parent, op)
		if err != nil {
			return nil, err
		}
		child.task = len(t.tasks)
		t.tasks = append(t.tasks, newTask(child.op))
		return child, nil
	}
}

func (fuser) wrapForce(g *Graph, next forceFunc) forceFunc {
	return func(n *node) (Value, error) {
		if n.op == nil {
			return next(n)
		}
		kind, ok := fusible(n.op.Name)
		if !ok {
			return next(n)
		}

		parent := g.node(n.parent)
		parent.mu.Lock()
		idx := n.task
		var t *taskTable
		var tasks []task
		if idx >= 0 {
			t = parent.tables[kind]
			t.sealed = true
			tasks = slices.Clip(t.tasks)
		}
		parent.mu.Unlock()

		if len(tasks) < 2 {
			return next(n)
		}
		fused, err := t.result(func() (Value, error) {
			return g.fusedPass(kind, parent, tasks)
		})
		if err != nil {
			return nil, err
		}
		return extract(kind, fused, tasks[idx], idx)
	}
}

// fusedPass runs one engine pass serving every task of kind.
func (g *Graph) fusedPass(kind fuseKind, parent *node, tasks []task) (Value, error) {
	pv, err := g.forceFn(parent)
	if err != nil {
		return nil, err
	}
	h, ok := pv.(Handle)
	if !ok {
		return nil, invalidOperation(string(kind), "parent value of type %T is not a dataset", pv)
	}
	g.recordFusedPass(kind)
	slog.Debug("fused pass", "kind", kind, "parent", parent.id, "tasks", len(tasks))

	switch kind {
	case kindFilter:
		// Keep every item that any sibling would keep. An item a predicate
		// fails on is kept so that sibling's extraction reports the error.
		narrowed, err := h.Filter(func(item Value) (bool, error) {
			for _, t := range tasks {
				keep, err := t.filterFn(item)
				if err != nil || keep {
					return true, nil
				}
			}
			return false, nil
		})
		if err != nil {
			return nil, err
		}
		return narrowed.Cache()

	case kindMap:
		rows, err := h.Map(func(item Value) (Value, error) {
			row := make(fusedRow, len(tasks))
			for i, t := range tasks {
				v, err := t.mapFn(item)
				if err != nil {
					v = slotError{err}
				}
				row[i] = v
			}
			return row, nil
		})
		if err != nil {
			return nil, err
		}
		return rows.Cache()

	default:
		zero := make(fusedRow, len(tasks))
		for i, t := range tasks {
			zero[i] = t.zero
		}
		seqOp := func(acc, item Value) (Value, error) {
			in, err := asRow(acc, len(tasks))
			if err != nil {
				return nil, err
			}
			out := make(fusedRow, len(tasks))
			for i, t := range tasks {
				if cellErr(in[i]) != nil {
					out[i] = in[i]
					continue
				}
				v, err := t.seqOp(in[i], item)
				if err != nil {
					v = slotError{err}
				}
				out[i] = v
			}
			return out, nil
		}
		combOp := func(a, b Value) (Value, error) {
			left, err := asRow(a, len(tasks))
			if err != nil {
				return nil, err
			}
			right, err := asRow(b, len(tasks))
			if err != nil {
				return nil, err
			}
			out := make(fusedRow, len(tasks))
			for i, t := range tasks {
				switch {
				case cellErr(left[i]) != nil:
					out[i] = left[i]
				case cellErr(right[i]) != nil:
					out[i] = right[i]
				default:
					v, err := t.combOp(left[i], right[i])
					if err != nil {
						v = slotError{err}
					}
					out[i] = v
				}
			}
			return out, nil
		}
		return h.Aggregate(zero, seqOp, combOp)
	}
}

// extract derives one sibling's value from the shared fused result, using
// the sibling's registration index. Only that sibling's own failures are
// reported.
func extract(kind fuseKind, fused Value, t task, idx int) (Value, error) {
	switch kind {
	case kindFilter:
		return fused.(Handle).Filter(t.filterFn)
	case kindMap:
		return fused.(Handle).Map(func(row Value) (Value, error) {
			r, ok := row.(fusedRow)
			if !ok || idx >= len(r) {
				return nil, invalidOperation(OpMap, "fused row of type %T has no column %d", row, idx)
			}
			if err := cellErr(r[idx]); err != nil {
				return nil, err
			}
			return r[idx], nil
		})
	default:
		row, ok := fused.(fusedRow)
		if !ok || idx >= len(row) {
			return nil, invalidOperation(OpAggregate, "fused result of type %T has no component %d", fused, idx)
		}
		if err := cellErr(row[idx]); err != nil {
			return nil, err
		}
		return row[idx], nil
	}
}

func asRow(v Value, width int) (fusedRow, error) {
	row, ok := v.(fusedRow)
	if !ok || len(row) != width {
		return nil, invalidOperation(OpAggregate, "fused accumulator of type %T does not have %d components", v, width)
	}
	return row, nil
}
