package lazy

import (
	"fmt"
	"log/slog"
	"sync"
)

// NodeID indexes a node in its Graph's arena.
type NodeID int

const noParent NodeID = -1

// node is one vertex of the deferred call graph.
//
// INVARIANTS:
//   - op is nil for roots and never changes after construction
//   - parent links are arena indices; a node never points at its children
//   - memo transitions from empty to present at most once
type node struct {
	id     NodeID
	parent NodeID
	handle Handle
	op     *Operation

	// task is the registration index in the parent's fusion table for this
	// node's kind, or -1. Guarded by the parent's mu.
	task int

	// mu guards the construction-time tables of this node's children.
	// Held for the whole apply pipeline when a child is requested.
	mu       sync.Mutex
	children map[Key]NodeID
	tables   map[fuseKind]*taskTable

	memoMu sync.Mutex
	memo   memo
}

type memo struct {
	present bool
	value   Value
}

// Graph is the arena owning every node created from its roots, together
// with the policy pipeline selected at construction time.
//
// Thread-safety model:
//   - Wrap, Call and Force are safe from any goroutine
//   - apply holds the parent's lock, so sibling registration is serialized
//     per parent
//   - Force may block for as long as the Engine Handle takes
type Graph struct {
	mu    sync.RWMutex
	nodes []*node

	policies []Policy
	applyFn  applyFunc
	forceFn  forceFunc

	stats counters
}

// NewGraph creates an empty graph. Policies run in a fixed order regardless
// of the order given; duplicates are ignored.
func NewGraph(policies ...Policy) *Graph {
	g := &Graph{policies: orderPolicies(policies)}
	g.applyFn = g.construct
	g.forceFn = g.evaluate

	// Wrap from innermost to outermost.
	for i := len(g.policies) - 1; i >= 0; i-- {
		if c, ok := g.policies[i].(constructor); ok {
			g.applyFn = c.wrapApply(g, g.applyFn)
		}
		if e, ok := g.policies[i].(evaluator); ok {
			g.forceFn = e.wrapForce(g, g.forceFn)
		}
	}
	return g
}

// Wrap creates a new graph with the given policies and returns a root node
// over h.
func Wrap(h Handle, policies ...Policy) Node {
	return NewGraph(policies...).Wrap(h)
}

// Wrap adds a root node owning h.
func (g *Graph) Wrap(h Handle) Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := &node{id: NodeID(len(g.nodes)), parent: noParent, handle: h, task: -1}
	g.nodes = append(g.nodes, n)
	return Node{g: g, id: n.id}
}

// Policies returns the names of the active policies in pipeline order.
func (g *Graph) Policies() []string {
	names := make([]string, len(g.policies))
	for i, p := range g.policies {
		names[i] = p.Name()
	}
	return names
}

// Len returns the number of nodes in the arena.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

func (g *Graph) node(id NodeID) *node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// apply runs the construction pipeline under the parent's lock.
func (g *Graph) apply(parent *node, op Operation) (*node, error) {
	parent.mu.Lock()
	defer parent.mu.Unlock()
	return g.applyFn(parent, op)
}

// construct is the innermost apply step: validate and append a call node.
func (g *Graph) construct(parent *node, op Operation) (*node, error) {
	if err := validate(op); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	n := &node{id: NodeID(len(g.nodes)), parent: parent.id, op: &op, task: -1}
	g.nodes = append(g.nodes, n)
	return n, nil
}

// evaluate is the innermost force step: force the parent through the full
// pipeline, then invoke the operation on its concrete value.
func (g *Graph) evaluate(n *node) (Value, error) {
	if n.op == nil {
		if n.handle == nil {
			return nil, invalidOperation("", "root node %d has no engine handle", n.id)
		}
		return n.handle, nil
	}
	pv, err := g.forceFn(g.node(n.parent))
	if err != nil {
		return nil, err
	}
	g.recordEvaluation(n.op.Name)
	return dispatch(*n.op, pv)
}

// dispatch invokes op on a concrete parent value through the Engine Handle.
// Engine errors are returned unchanged.
func dispatch(op Operation, parent Value) (Value, error) {
	h, ok := parent.(Handle)
	if !ok {
		return nil, invalidOperation(op.Name, "parent value of type %T is not a dataset", parent)
	}
	switch op.Name {
	case OpMap:
		return h.Map(op.Args[0].(Projection).Fn)
	case OpFilter:
		return h.Filter(op.Args[0].(Predicate).Fn)
	case OpCount:
		return h.Count()
	case OpAggregate:
		return h.Aggregate(op.Args[0], op.Args[1].(Combiner).Fn, op.Args[2].(Combiner).Fn)
	case OpCache:
		return h.Cache()
	default:
		slog.Debug("raw passthrough", "op", op.Name, "args", len(op.Args))
		return h.Invoke(op.Name, op.Args, op.Kwargs)
	}
}

// validate checks arity and operand types of the optimized operations.
// Any other name is a passthrough and is not checked.
func validate(op Operation) error {
	switch op.Name {
	case OpMap:
		if err := checkArity(op, 1); err != nil {
			return err
		}
		if p, ok := op.Args[0].(Projection); !ok || p.Fn == nil {
			return invalidArguments(op.Name, "operand must be a Projection, got %T", op.Args[0])
		}
	case OpFilter:
		if err := checkArity(op, 1); err != nil {
			return err
		}
		if p, ok := op.Args[0].(Predicate); !ok || p.Fn == nil {
			return invalidArguments(op.Name, "operand must be a Predicate, got %T", op.Args[0])
		}
	case OpAggregate:
		if err := checkArity(op, 3); err != nil {
			return err
		}
		for i := 1; i < 3; i++ {
			if c, ok := op.Args[i].(Combiner); !ok || c.Fn == nil {
				return invalidArguments(op.Name, "operand %d must be a Combiner, got %T", i+1, op.Args[i])
			}
		}
	case OpCount, OpCache:
		return checkArity(op, 0)
	}
	return nil
}

func checkArity(op Operation, want int) error {
	if len(op.Args) != want || len(op.Kwargs) != 0 {
		return invalidArguments(op.Name,
			"expected exactly %d positional operand(s) and no keyword arguments, got %d positional and %d keyword",
			want, len(op.Args), len(op.Kwargs))
	}
	return nil
}

// Node is a reference to one vertex of a Graph. Nodes compare by identity:
// two Nodes are equal exactly when they refer to the same vertex.
type Node struct {
	g  *Graph
	id NodeID
}

// ID returns the node's arena index.
func (n Node) ID() NodeID { return n.id }

// Graph returns the owning graph.
func (n Node) Graph() *Graph { return n.g }

// IsRoot reports whether n wraps an Engine Handle directly.
func (n Node) IsRoot() bool {
	return n.g.node(n.id).op == nil
}

// Parent returns the node n was derived from.
func (n Node) Parent() (Node, bool) {
	nd := n.g.node(n.id)
	if nd.parent == noParent {
		return Node{}, false
	}
	return Node{g: n.g, id: nd.parent}, true
}

// Operation returns a copy of the deferred operation. Absent for roots.
func (n Node) Operation() (Operation, bool) {
	nd := n.g.node(n.id)
	if nd.op == nil {
		return Operation{}, false
	}
	return nd.op.clone(), true
}

func (n Node) String() string {
	if n.g == nil {
		return "node(<nil>)"
	}
	nd := n.g.node(n.id)
	if nd.op == nil {
		return fmt.Sprintf("node(%d root)", n.id)
	}
	return fmt.Sprintf("node(%d %s of %d)", n.id, nd.op.Name, nd.parent)
}

// Call requests a deferred operation on n. Depending on the graph's
// policies the returned node may be shared with an earlier identical call,
// and reduce/fold/count may be rewritten into aggregate.
func (n Node) Call(name string, args []Value, kwargs map[string]Value) (Node, error) {
	if n.g == nil {
		return Node{}, invalidOperation(name, "call on zero Node")
	}
	op := Operation{Name: name, Args: args, Kwargs: kwargs}.clone()
	child, err := n.g.apply(n.g.node(n.id), op)
	if err != nil {
		return Node{}, err
	}
	return Node{g: n.g, id: child.id}, nil
}

// Map requests a projection of every item.
func (n Node) Map(p Projection) (Node, error) {
	return n.Call(OpMap, []Value{p}, nil)
}

// Filter requests the items matching p.
func (n Node) Filter(p Predicate) (Node, error) {
	return n.Call(OpFilter, []Value{p}, nil)
}

// Aggregate requests the generalized aggregate.
func (n Node) Aggregate(zero Value, seqOp, combOp Combiner) (Node, error) {
	return n.Call(OpAggregate, []Value{zero, seqOp, combOp}, nil)
}

// Count requests the number of items.
func (n Node) Count() (Node, error) {
	return n.Call(OpCount, nil, nil)
}

// Reduce requests f applied pairwise across all items. Reducing an empty
// dataset yields NoValue when aggregates are expanded.
func (n Node) Reduce(f Combiner) (Node, error) {
	return n.Call(OpReduce, []Value{f}, nil)
}

// Fold requests f applied across all items starting from zero.
func (n Node) Fold(zero Value, f Combiner) (Node, error) {
	return n.Call(OpFold, []Value{zero, f}, nil)
}

// Cache requests the engine to retain the dataset.
func (n Node) Cache() (Node, error) {
	return n.Call(OpCache, nil, nil)
}

// Force computes the concrete value n represents.
func (n Node) Force() (Value, error) {
	if n.g == nil {
		return nil, invalidOperation("", "force of zero Node")
	}
	return n.g.forceFn(n.g.node(n.id))
}

// Force computes the concrete value n represents.
func Force(n Node) (Value, error) {
	return n.Force()
}

// Attr forces n and reads a non-callable attribute of the resulting
// dataset. This bypasses every optimization and is logged as a raw access.
//
// Reading an attribute the engine exposes is never an error. Asking for one
// it does not expose, or asking a forced scalar for attributes, fails with
// InvalidOperation rather than returning a zero value.
func (n Node) Attr(name string) (Value, error) {
	v, err := n.Force()
	if err != nil {
		return nil, err
	}
	h, ok := v.(Handle)
	if !ok {
		return nil, invalidOperation(name, "value of type %T has no attributes", v)
	}
	attr, ok := h.Attr(name)
	if !ok {
		return nil, invalidOperation(name, "engine exposes no such attribute")
	}
	slog.Warn("raw attribute access", "attr", name, "node", n.id)
	return attr, nil
}

func (n Node) serializeError() error {
	return invalidOperation("serialize", "deferred %s cannot cross a process boundary; force it first", n)
}

// MarshalJSON always fails: deferred nodes must be forced before transfer.
func (n Node) MarshalJSON() ([]byte, error) {
	return nil, n.serializeError()
}

// MarshalBinary always fails: deferred nodes must be forced before transfer.
func (n Node) MarshalBinary() ([]byte, error) {
	return nil, n.serializeError()
}

// GobEncode always fails: deferred nodes must be forced before transfer.
func (n Node) GobEncode() ([]byte, error) {
	return nil, n.serializeError()
}
