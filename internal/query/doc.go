// Package query is the toy declarative query layer that sits on top of the
// lazy graph.
//
// A Query names an aggregator over one field and a where-clause of
// field/operator/value conditions:
//
//	id: HAPPY-1
//	select: {agg: count, field: "*"}
//	where:
//	  text: {_contains: happy}
//
// The where-clause compiles to a sealed Predicate tree. Apply translates a
// query into filter/map/count/fold/reduce calls against a shared source
// node. Every operand carries an identity derived from the canonical form of
// the query, so two queries with identical select and where clauses resolve
// to the same deferred nodes regardless of their ids.
//
// OPERATORS:
//
//   - _contains: substring of a string field, or member of an array field
//   - _eq, _ne: canonical equality of any non-float value
//   - _prefix: string prefix
//   - _gt, _lt: integer comparison
//
// Conditions on several fields (or several operators on one field) are
// AND-ed. Unknown operators and aggregators are rejected by Validate.
//
// In .cue query files operator labels must be quoted ("_contains"), since
// CUE hides fields whose names start with an underscore.
package query
