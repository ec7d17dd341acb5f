package lazy

type memoizer struct{}

// Memoize caches the forced value of every node: the underlying chain of a
// node executes at most once no matter how often it is forced. Failed
// evaluations are not cached.
func Memoize() Policy { return memoizer{} }

func (memoizer) Name() string { return "memoize" }
func (memoizer) rank() int    { return rankMemo }

func (memoizer) wrapForce(g *Graph, next forceFunc) forceFunc {
	return func(n *node) (Value, error) {
		n.memoMu.Lock()
		defer n.memoMu.Unlock()

		if n.memo.present {
			g.recordMemoHit()
			return n.memo.value, nil
		}
		v, err := next(n)
		if err != nil {
			return nil, err
		}
		n.memo = memo{present: true, value: v}
		return v, nil
	}
}
