// Package store provides SQLite-backed durable storage for published query
// results.
//
// Tables:
//   - batches: one row per processed input file
//   - results: one row per (batch, query) with the value as JSON
//   - records: the parsed input records of a batch, kept on request so
//     results can be cross-checked with SQL
//
// # Ordering
//
// Batches are ordered by seq INTEGER (logical clock), NEVER by timestamps.
// Every multi-row read has an ORDER BY with a COLLATE BINARY tiebreaker so
// repeated reads return identical results.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
