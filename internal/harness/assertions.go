package harness

import (
	"context"
	"fmt"
	"maps"

	"github.com/roach88/flexstream/internal/lazy"
)

// statNames maps lazy.Stats JSON names to accessors.
var statNames = map[string]func(lazy.Stats) int64{
	"nodes":            func(s lazy.Stats) int64 { return int64(s.Nodes) },
	"dedup_hits":       func(s lazy.Stats) int64 { return s.DedupHits },
	"unkeyable":        func(s lazy.Stats) int64 { return s.Unkeyable },
	"memo_hits":        func(s lazy.Stats) int64 { return s.MemoHits },
	"evaluations":      func(s lazy.Stats) int64 { return s.Evaluations },
	"fused_maps":       func(s lazy.Stats) int64 { return s.FusedMaps },
	"fused_filters":    func(s lazy.Stats) int64 { return s.FusedFilters },
	"fused_aggregates": func(s lazy.Stats) int64 { return s.FusedAggregates },
}

// AssertionError describes a failed assertion.
type AssertionError struct {
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("expected %s, got %s", e.Expected, e.Actual)
}

func mismatch(expected, actual any) *AssertionError {
	return &AssertionError{Expected: fmt.Sprint(expected), Actual: fmt.Sprint(actual)}
}

func checkAssertion(ctx context.Context, s *Scenario, a Assertion, result *Result) error {
	switch a.Type {
	case AssertTotal:
		if result.Report.Total != a.Count {
			return mismatch(a.Count, result.Report.Total)
		}
	case AssertStat:
		if got := statNames[a.Stat](result.Report.Stats); got != a.Value {
			return mismatch(fmt.Sprintf("%s=%d", a.Stat, a.Value), fmt.Sprintf("%s=%d", a.Stat, got))
		}
	case AssertRootPasses:
		if int64(result.RootPasses) != a.Count {
			return mismatch(a.Count, result.RootPasses)
		}
	case AssertLevelsAgree:
		return assertLevelsAgree(ctx, s, result)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// assertLevelsAgree re-runs the scenario at every other level and compares
// the published values.
func assertLevelsAgree(ctx context.Context, s *Scenario, result *Result) error {
	for _, level := range lazy.Levels {
		if level == result.Level {
			continue
		}
		rep, _, err := evaluate(ctx, s, level)
		if err != nil {
			return fmt.Errorf("level %s: %w", level, err)
		}
		values, err := publish(ctx, rep)
		if err != nil {
			return fmt.Errorf("level %s: %w", level, err)
		}
		if !maps.Equal(values, result.Values) {
			return mismatch(fmt.Sprintf("%s=%v", result.Level, result.Values), fmt.Sprintf("%s=%v", level, values))
		}
		if rep.Total != result.Report.Total {
			return mismatch(fmt.Sprintf("total %d", result.Report.Total), fmt.Sprintf("total %d at %s", rep.Total, level))
		}
	}
	return nil
}
