package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/flexstream/internal/ir"
)

// Snapshot captures what a scenario run publishes and how much work the
// optimizer saved. It is serialized as canonical JSON for deterministic
// comparison.
type Snapshot struct {
	Scenario   string
	Level      string
	Total      int64
	RootPasses int
	Results    []SnapshotResult
	Stats      map[string]int64
}

// SnapshotResult is one query value. A nil Value is omitted from the
// encoding, since canonical JSON has no null.
type SnapshotResult struct {
	Query string
	Value any
}

// NewSnapshot builds the snapshot of a run, listing results in query order.
// Only the structural statistics are kept; memo hits and evaluation counts
// depend on forcing order.
func NewSnapshot(s *Scenario, result *Result) Snapshot {
	snap := Snapshot{
		Scenario:   s.Name,
		Level:      string(result.Level),
		Total:      result.Report.Total,
		RootPasses: result.RootPasses,
		Stats:      map[string]int64{},
	}
	for _, q := range s.Queries {
		snap.Results = append(snap.Results, SnapshotResult{Query: q.ID, Value: result.Values[q.ID]})
	}
	for _, name := range []string{"nodes", "dedup_hits", "fused_maps", "fused_filters", "fused_aggregates"} {
		snap.Stats[name] = statNames[name](result.Report.Stats)
	}
	return snap
}

// toCanonicalMap converts a Snapshot to plain values for ir.MarshalCanonical.
func (s Snapshot) toCanonicalMap() map[string]any {
	results := make([]any, len(s.Results))
	for i, r := range s.Results {
		entry := map[string]any{"query": r.Query}
		if r.Value != nil {
			entry["value"] = r.Value
		}
		results[i] = entry
	}
	stats := make(map[string]any, len(s.Stats))
	for k, v := range s.Stats {
		stats[k] = v
	}
	return map[string]any{
		"scenario":    s.Scenario,
		"level":       s.Level,
		"total":       s.Total,
		"root_passes": s.RootPasses,
		"results":     results,
		"stats":       stats,
	}
}

// MarshalCanonical encodes the snapshot as canonical JSON.
func (s Snapshot) MarshalCanonical() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario, fails the test on any failed check,
// and compares its snapshot against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	for _, msg := range result.Errors {
		t.Errorf("scenario %s: %s", scenario.Name, msg)
	}
	return result, AssertGolden(t, scenario, result)
}

// AssertGolden compares an existing result's snapshot against the golden
// file named after the scenario.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(scenario, result).MarshalCanonical()
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return nil
}
