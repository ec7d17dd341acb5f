package lazy

import "log/slog"

type deduplicator struct{}

// Deduplicate performs common subexpression elimination: structurally equal
// calls against the same parent resolve to the same child node.
func Deduplicate() Policy { return deduplicator{} }

func (deduplicator) Name() string { return "deduplicate" }
func (deduplicator) rank() int    { return rankDedup }

// wrapApply runs with the parent's lock held.
func (deduplicator) wrapApply(g *Graph, next applyFunc) applyFunc {
	return func(parent *node, op Operation) (*node, error) {
		key, ok := StructuralKey(op)
		if !ok {
			g.recordUnkeyable()
			slog.Debug("call has no stable key, not deduplicated", "op", op.Name, "parent", parent.id)
			return next(parent, op)
		}
		if id, hit := parent.children[key]; hit {
			g.recordDedupHit()
			return g.node(id), nil
		}

		child, err := next(parent, op)
		if err != nil {
			return nil, err
		}
		if parent.children == nil {
			parent.children = make(map[Key]NodeID)
		}
		parent.children[key] = child.id
		return child, nil
	}
}
