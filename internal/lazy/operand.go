package lazy

import "github.com/roach88/flexstream/internal/ir"

// Identity is the stable, comparable surrogate for a function operand.
//
// Two operands with equal identities must compute the same function. The
// Tag names the function; Params holds every captured value that changes
// its behavior. An empty Tag means the operand has no stable identity and
// calls using it are never deduplicated.
type Identity struct {
	Tag    string
	Params ir.IRObject
}

// ID builds an Identity from a tag and captured parameters.
func ID(tag string, params ...ir.IRPair) Identity {
	return Identity{Tag: tag, Params: ir.NewIRObject(params...)}
}

// Stable reports whether the identity can participate in deduplication.
func (id Identity) Stable() bool {
	return id.Tag != ""
}

func (id Identity) keyValue() (ir.IRValue, bool) {
	if !id.Stable() {
		return nil, false
	}
	params := id.Params
	if params == nil {
		params = ir.IRObject{}
	}
	return ir.IRObject{"tag": ir.IRString(id.Tag), "params": params}, true
}

// derive builds the identity of an operand wrapping another one.
func (id Identity) derive(tag string) Identity {
	inner, ok := id.keyValue()
	if !ok {
		return Identity{}
	}
	return Identity{Tag: tag, Params: ir.IRObject{"of": inner}}
}

// keyer is implemented by arguments that know their own structural key.
type keyer interface {
	keyValue() (ir.IRValue, bool)
}

// Projection is a map operand.
type Projection struct {
	ID Identity
	Fn MapFunc
}

// Project builds a Projection with a stable identity.
func Project(tag string, fn MapFunc, params ...ir.IRPair) Projection {
	return Projection{ID: ID(tag, params...), Fn: fn}
}

func (p Projection) keyValue() (ir.IRValue, bool) {
	return operandKey("projection", p.ID)
}

// Predicate is a filter operand.
type Predicate struct {
	ID Identity
	Fn FilterFunc
}

// Where builds a Predicate with a stable identity.
func Where(tag string, fn FilterFunc, params ...ir.IRPair) Predicate {
	return Predicate{ID: ID(tag, params...), Fn: fn}
}

func (p Predicate) keyValue() (ir.IRValue, bool) {
	return operandKey("predicate", p.ID)
}

// Combiner is a sequential or parallel combiner operand for aggregate,
// reduce and fold.
type Combiner struct {
	ID Identity
	Fn CombineFunc
}

// Combine builds a Combiner with a stable identity.
func Combine(tag string, fn CombineFunc, params ...ir.IRPair) Combiner {
	return Combiner{ID: ID(tag, params...), Fn: fn}
}

func (c Combiner) keyValue() (ir.IRValue, bool) {
	return operandKey("combiner", c.ID)
}

func operandKey(kind string, id Identity) (ir.IRValue, bool) {
	v, ok := id.keyValue()
	if !ok {
		return nil, false
	}
	return ir.IRObject{"operand": ir.IRString(kind), "id": v}, true
}

// noValue is the "no value yet" element used by reduce.
type noValue struct{}

func (noValue) keyValue() (ir.IRValue, bool) {
	return ir.IRObject{"sentinel": ir.IRString("no_value")}, true
}

func (noValue) String() string { return "<no value>" }

// NoValue is the result of reducing an empty dataset.
var NoValue Value = noValue{}

// IsNoValue reports whether v is the NoValue sentinel.
func IsNoValue(v Value) bool {
	_, ok := v.(noValue)
	return ok
}
