// Package scheduler turns input files into published query results.
//
// Each file becomes one batch. The batch path is:
//
//	file → dataset.ReadFile → lazy.Graph (policies of the chosen Level)
//	     → Map(query.ParseLines) → Count (total) + query.Apply per query
//	     → force every leaf → Report → Publisher
//
// Every leaf is requested before any is forced, so sibling filters, maps
// and aggregates over the parsed records share engine passes at the scan
// and aggregate levels.
//
// Thread-safety model:
//   - Enqueue and Forget: safe from any goroutine (the watcher callback)
//   - Run: must be called from exactly one goroutine
//   - Processor.Process: safe for concurrent use
package scheduler
