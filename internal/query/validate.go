package query

import (
	"errors"
	"fmt"
	"slices"
)

// ValidationError reports a malformed query.
type ValidationError struct {
	Query   string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Query == "" {
		return fmt.Sprintf("query: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("query %s: %s: %s", e.Query, e.Field, e.Message)
}

// IsValidationError reports whether err is a *ValidationError.
func IsValidationError(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// Validate checks a single query: non-empty id, a supported aggregator, a
// field suited to it, and a where-clause made of supported operators.
func Validate(q Query) error {
	if q.ID == "" {
		return &ValidationError{Field: "id", Message: "id is required"}
	}
	if !slices.Contains(Aggregators, q.Select.Agg) {
		return &ValidationError{Query: q.ID, Field: "select.agg",
			Message: fmt.Sprintf("unsupported aggregator %q: must be one of %v", q.Select.Agg, Aggregators)}
	}
	switch {
	case q.Select.Field == "":
		return &ValidationError{Query: q.ID, Field: "select.field", Message: "field is required"}
	case q.Select.Field == Wildcard && q.Select.Agg != AggCount:
		return &ValidationError{Query: q.ID, Field: "select.field",
			Message: fmt.Sprintf("%s needs a concrete field, not %q", q.Select.Agg, Wildcard)}
	}
	_, err := q.Predicate()
	return err
}

// ValidateAll validates every query and rejects duplicate ids.
func ValidateAll(qs []Query) error {
	var errs []error
	seen := make(map[string]bool, len(qs))
	for _, q := range qs {
		if err := Validate(q); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[q.ID] {
			errs = append(errs, &ValidationError{Query: q.ID, Field: "id", Message: "duplicate id"})
		}
		seen[q.ID] = true
	}
	return errors.Join(errs...)
}
