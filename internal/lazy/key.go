package lazy

import "github.com/roach88/flexstream/internal/ir"

// Key is the structural identity of an Operation.
type Key string

// StructuralKey derives the key of op. Plain arguments compare by value;
// operands compare by Identity.
//
// Returns ok=false when any argument has no stable surrogate (an operand
// without identity, a float, an unsupported Go type). Such calls are simply
// never deduplicated.
func StructuralKey(op Operation) (Key, bool) {
	args := make(ir.IRArray, len(op.Args))
	for i, a := range op.Args {
		v, ok := argKey(a)
		if !ok {
			return "", false
		}
		args[i] = v
	}
	kwargs := make(ir.IRObject, len(op.Kwargs))
	for k, a := range op.Kwargs {
		v, ok := argKey(a)
		if !ok {
			return "", false
		}
		kwargs[k] = v
	}
	key, err := ir.CallKey(op.Name, args, kwargs)
	if err != nil {
		return "", false
	}
	return Key(key), true
}

func argKey(a Value) (ir.IRValue, bool) {
	if k, ok := a.(keyer); ok {
		return k.keyValue()
	}
	v, err := ir.FromGo(a)
	if err != nil {
		return nil, false
	}
	// Tag plain values so an argument never collides with an operand's
	// encoded identity.
	return ir.IRObject{"value": v}, true
}
