package lazy

import (
	"fmt"
	"slices"
)

type applyFunc func(parent *node, op Operation) (*node, error)
type forceFunc func(n *node) (Value, error)

// Policy augments the graph with one cross-cutting optimization.
//
// Policies are composed in a fixed order: construction runs
// ExpandAggregates, Deduplicate, Fuse, then the base constructor; forcing
// runs Memoize, Fuse, then the base evaluator. Observable results never
// depend on which policies are enabled.
type Policy interface {
	Name() string
	rank() int
}

// constructor is implemented by policies that intercept node construction.
type constructor interface {
	wrapApply(g *Graph, next applyFunc) applyFunc
}

// evaluator is implemented by policies that intercept forcing.
type evaluator interface {
	wrapForce(g *Graph, next forceFunc) forceFunc
}

// Pipeline positions, outermost first.
const (
	rankExpand = 10
	rankMemo   = 20
	rankDedup  = 30
	rankFuse   = 40
)

func orderPolicies(policies []Policy) []Policy {
	seen := make(map[string]bool, len(policies))
	out := make([]Policy, 0, len(policies))
	for _, p := range policies {
		if p == nil || seen[p.Name()] {
			continue
		}
		seen[p.Name()] = true
		out = append(out, p)
	}
	slices.SortStableFunc(out, func(a, b Policy) int { return a.rank() - b.rank() })
	return out
}

// Level is a named policy set.
type Level string

// Optimization levels, each a superset of the previous one.
const (
	LevelPlain     Level = "plain"
	LevelSubquery  Level = "subquery"
	LevelScan      Level = "scan"
	LevelAggregate Level = "aggregate"
)

// Levels lists every level from least to most optimized.
var Levels = []Level{LevelPlain, LevelSubquery, LevelScan, LevelAggregate}

// ParseLevel validates a level name.
func ParseLevel(s string) (Level, error) {
	for _, l := range Levels {
		if string(l) == s {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown optimization level %q: must be one of %v", s, Levels)
}

// Policies returns the policy set for l.
func (l Level) Policies() []Policy {
	switch l {
	case LevelSubquery:
		return []Policy{Deduplicate(), Memoize()}
	case LevelScan:
		return []Policy{Deduplicate(), Memoize(), Fuse()}
	case LevelAggregate:
		return []Policy{Deduplicate(), Memoize(), Fuse(), ExpandAggregates()}
	default:
		return nil
	}
}
