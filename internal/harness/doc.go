// Package harness runs declarative evaluation scenarios through the
// scheduler's batch path.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: happy_sad
//	description: "Identical queries converge"
//	level: aggregate        # plain | subquery | scan | aggregate (default)
//	partitions: 2           # default 4
//	lines:
//	  - '{"text":"so happy"}'
//	  - 'plain happy line'
//	queries:
//	  - id: HAPPY-1
//	    select: {agg: count, field: "*"}
//	    where: {text: {_contains: happy}}
//	expect:
//	  HAPPY-1: 2
//	assertions:
//	  - type: stat
//	    stat: dedup_hits
//	    value: 0
//
// Expected values are integers or null (min and max over no values).
//
// # Assertion Types
//
//   - total: the batch total equals count
//   - stat: one optimizer statistic (lazy.Stats JSON name) equals value
//   - root_passes: the number of calls made on the input dataset equals count
//   - levels_agree: every optimization level publishes the same results
//
// # Deterministic Testing
//
// Each run uses a fixed batch id, a fresh in-memory SQLite store, and a
// counting engine handle, so results, statistics and golden snapshots are
// reproducible. Expectations are checked against the values read back from
// the store.
package harness
