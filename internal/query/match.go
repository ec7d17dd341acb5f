package query

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/roach88/flexstream/internal/ir"
)

// Match evaluates p against rec. Missing fields never satisfy a positive
// condition.
func Match(p Predicate, rec Record) bool {
	switch pred := p.(type) {
	case Contains:
		v, ok := Lookup(rec, pred.Field)
		if !ok {
			return false
		}
		switch field := v.(type) {
		case string:
			return strings.Contains(field, pred.Value)
		case []any:
			for _, elem := range field {
				if s, ok := elem.(string); ok && s == pred.Value {
					return true
				}
			}
		}
		return false
	case Prefix:
		v, ok := Lookup(rec, pred.Field)
		s, isString := v.(string)
		return ok && isString && strings.HasPrefix(s, pred.Value)
	case Equals:
		v, ok := Lookup(rec, pred.Field)
		return ok && canonicalEqual(v, pred.Value)
	case NotEquals:
		v, ok := Lookup(rec, pred.Field)
		return !ok || !canonicalEqual(v, pred.Value)
	case Greater:
		v, _ := Lookup(rec, pred.Field)
		n, ok := Int(v)
		return ok && n > pred.Value
	case Less:
		v, _ := Lookup(rec, pred.Field)
		n, ok := Int(v)
		return ok && n < pred.Value
	case And:
		for _, sub := range pred.Predicates {
			if !Match(sub, rec) {
				return false
			}
		}
		return true
	}
	panic(fmt.Sprintf("query: unknown predicate %T", p))
}

// canonicalEqual compares a record value with a literal by canonical form.
// Values with no canonical form (floats, null) equal nothing.
func canonicalEqual(v any, want ir.IRValue) bool {
	got, err := ir.MarshalCanonical(v)
	if err != nil {
		return false
	}
	exp, err := ir.MarshalCanonical(want)
	if err != nil {
		return false
	}
	return bytes.Equal(got, exp)
}
