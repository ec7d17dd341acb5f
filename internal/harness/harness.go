package harness

import (
	"context"
	"fmt"

	"github.com/roach88/flexstream/internal/dataset"
	"github.com/roach88/flexstream/internal/lazy"
	"github.com/roach88/flexstream/internal/scheduler"
	"github.com/roach88/flexstream/internal/store"
	"github.com/roach88/flexstream/internal/testutil"
)

// batchID is the fixed batch identifier of every harness run.
const batchID = "harness-batch"

// Run executes a scenario at its own level and checks its expectations and
// assertions. The returned error reports a run that could not complete;
// failed checks are reported in Result.
//
// Each run uses a fresh in-memory store so runs are isolated.
func Run(s *Scenario) (*Result, error) {
	level, err := s.level()
	if err != nil {
		return nil, err
	}
	ctx := context.Background()

	result := NewResult()
	result.Level = level

	rep, passes, err := evaluate(ctx, s, level)
	if err != nil {
		return nil, err
	}
	result.Report = rep
	result.RootPasses = passes

	values, err := publish(ctx, rep)
	if err != nil {
		return nil, err
	}
	result.Values = values

	checkExpect(s, result)
	for i, a := range s.Assertions {
		if err := checkAssertion(ctx, s, a, result); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d] %s: %v", i, a.Type, err))
		}
	}
	return result, nil
}

// evaluate processes the scenario's lines through the scheduler batch path
// over a counting handle.
func evaluate(ctx context.Context, s *Scenario, level lazy.Level) (scheduler.Report, int, error) {
	opts := []scheduler.ProcessorOption{
		scheduler.WithLevel(level),
		scheduler.WithIDGenerator(scheduler.NewFixedGenerator(batchID)),
	}
	partitions := s.Partitions
	if partitions == 0 {
		partitions = dataset.DefaultPartitions
	}
	opts = append(opts, scheduler.WithPartitions(partitions))

	proc, err := scheduler.NewProcessor(s.Queries, opts...)
	if err != nil {
		return scheduler.Report{}, 0, err
	}
	h := testutil.NewCountingHandle(dataset.FromLines(s.Lines,
		dataset.WithName(s.Name),
		dataset.WithPartitions(partitions),
	))
	rep, err := proc.Process(ctx, s.Name, h)
	if err != nil {
		return scheduler.Report{}, 0, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	return rep, h.Total(), nil
}

// publish stores the report and reads the published values back.
func publish(ctx context.Context, rep scheduler.Report) (map[string]any, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if err := (scheduler.StorePublisher{Store: st}).Publish(ctx, rep); err != nil {
		return nil, err
	}
	rows, err := st.ReadResults(ctx, rep.BatchID)
	if err != nil {
		return nil, err
	}
	values := make(map[string]any, len(rows))
	for _, r := range rows {
		values[r.QueryID] = r.Value
	}
	return values, nil
}

func checkExpect(s *Scenario, result *Result) {
	for _, q := range s.Queries {
		want, ok := s.Expect[q.ID]
		if !ok {
			continue
		}
		wantValue, _ := normalizeValue(want) // checked by validateScenario
		got, published := result.Values[q.ID]
		switch {
		case !published:
			result.AddError(fmt.Sprintf("query %s: no value published", q.ID))
		case got != wantValue:
			result.AddError(fmt.Sprintf("query %s: expected %v, got %v", q.ID, wantValue, got))
		}
	}
}
