// Package lazy implements deferred evaluation and query optimization over a
// bulk-data engine.
//
// Every requested operation becomes a node in a Graph instead of running.
// Forcing a node resolves its ancestors and invokes the operation through
// the engine's Handle. Between request and force, four policies may apply:
//
//   - Memoize: a node's value is computed at most once
//   - Deduplicate: structurally equal calls on one parent share one node
//   - Fuse: sibling maps, filters or aggregates share one engine pass
//   - ExpandAggregates: count, fold and reduce become aggregate calls
//
// STRUCTURAL IDENTITY:
//
// Go closures cannot be compared, so operands carry an explicit Identity:
// a tag naming the function plus the captured parameters that change its
// behavior. Operands without one are valid but never deduplicate.
//
// ARENA:
//
// Nodes live in their Graph's arena and refer to parents by index. A Node
// value is a (graph, index) pair, comparable and usable as a map key.
//
// Example:
//
//	root := lazy.Wrap(ds, lazy.LevelAggregate.Policies()...)
//	cats, _ := root.Filter(lazy.Where("contains", hasCat, ir.O("needle", ir.IRString("cat"))))
//	dogs, _ := root.Filter(lazy.Where("contains", hasDog, ir.O("needle", ir.IRString("dog"))))
//	n, _ := cats.Count()
//	v, err := n.Force() // one fused filter pass serves both cats and dogs
package lazy
