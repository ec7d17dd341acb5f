package query

import "github.com/roach88/flexstream/internal/ir"

// Aggregator names the reduction applied to matching records.
type Aggregator string

const (
	AggCount Aggregator = "count"
	AggSum   Aggregator = "sum"
	AggMin   Aggregator = "min"
	AggMax   Aggregator = "max"
)

// Aggregators lists every supported aggregator.
var Aggregators = []Aggregator{AggCount, AggSum, AggMin, AggMax}

// Wildcard is the field of a count over whole records.
const Wildcard = "*"

// Query is one registered standing query.
//
// Where maps a field path to operator/value pairs. Field paths use dots to
// reach into nested objects ("user.name").
type Query struct {
	ID     string                    `yaml:"id" json:"id"`
	Select Select                    `yaml:"select" json:"select"`
	Where  map[string]map[string]any `yaml:"where,omitempty" json:"where,omitempty"`
}

// Select is the aggregation part of a query.
type Select struct {
	Agg   Aggregator `yaml:"agg" json:"agg"`
	Field string     `yaml:"field" json:"field"`
}

// Predicate is a compiled where-clause condition.
//
// This is a sealed interface - only types in this package implement it.
// The marker method lets Match, Explain and identity encoding switch
// exhaustively over the closed set below.
type Predicate interface {
	predicateNode()
}

// Contains holds when the field is a string containing Value, or an array
// with an element equal to Value.
type Contains struct {
	Field string
	Value string
}

func (Contains) predicateNode() {}

// Prefix holds when the field is a string starting with Value.
type Prefix struct {
	Field string
	Value string
}

func (Prefix) predicateNode() {}

// Equals holds when the field is present and canonically equal to Value.
type Equals struct {
	Field string
	Value ir.IRValue
}

func (Equals) predicateNode() {}

// NotEquals holds when the field is absent or differs from Value.
type NotEquals struct {
	Field string
	Value ir.IRValue
}

func (NotEquals) predicateNode() {}

// Greater holds when the field is an integer greater than Value.
type Greater struct {
	Field string
	Value int64
}

func (Greater) predicateNode() {}

// Less holds when the field is an integer less than Value.
type Less struct {
	Field string
	Value int64
}

func (Less) predicateNode() {}

// And holds when every sub-predicate holds. Empty is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}
