package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/flexstream/internal/dataset"
	"github.com/roach88/flexstream/internal/lazy"
	"github.com/roach88/flexstream/internal/scheduler"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	*RootOptions
	Queries    []string
	Level      string
	Partitions int
	Stats      bool
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval <batch-file>...",
		Short: "Evaluate queries against batch files once",
		Long: `Evaluate the standing queries against each batch file and print the
results. Nothing is stored.

Examples:
  flexstream eval -q queries.yaml tweets-1700000000000.txt
  flexstream eval -q queries.yaml --level plain --stats batch.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(opts, args, cmd)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Queries, "queries", "q", nil, "query files or directories (required)")
	cmd.Flags().StringVar(&opts.Level, "level", string(lazy.LevelAggregate), "optimization level (plain|subquery|scan|aggregate)")
	cmd.Flags().IntVar(&opts.Partitions, "partitions", dataset.DefaultPartitions, "dataset partitions per batch")
	cmd.Flags().BoolVar(&opts.Stats, "stats", false, "print optimizer statistics")
	_ = cmd.MarkFlagRequired("queries")

	return cmd
}

func runEval(opts *EvalOptions, files []string, cmd *cobra.Command) error {
	out := newFormatter(cmd, opts.RootOptions)

	level, err := lazy.ParseLevel(opts.Level)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --level", err)
	}
	queries, err := loadQueriesOrFail(opts.Queries)
	if err != nil {
		return err
	}
	proc, err := scheduler.NewProcessor(queries,
		scheduler.WithLevel(level),
		scheduler.WithPartitions(opts.Partitions),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid queries", err)
	}

	mem := &scheduler.MemoryPublisher{}
	sched := scheduler.New(proc, mem)
	for _, f := range files {
		sched.Enqueue(f)
	}
	if _, err := sched.Drain(cmd.Context()); err != nil {
		return out.Fail(ExitFailure, ErrCodeBatchFailed, "batch evaluation failed", err.Error())
	}

	reports := mem.Reports()
	return out.Emit(reports, func(w io.Writer) {
		for _, rep := range reports {
			writeReportText(w, rep, opts.Stats)
		}
	})
}

// writeReportText renders one batch report as an aligned table.
func writeReportText(w io.Writer, rep scheduler.Report, stats bool) {
	fmt.Fprintf(w, "%s (seq %d, %d records, level %s)\n", rep.Source, rep.Seq, rep.Total, rep.Level)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range rep.Results {
		fmt.Fprintf(tw, "  %s\t%s\n", r.QueryID, formatValue(r.Value))
	}
	_ = tw.Flush()
	if stats {
		writeStatsText(w, rep.Stats)
	}
}

func writeStatsText(w io.Writer, s lazy.Stats) {
	fmt.Fprintf(w, "  nodes=%d dedup_hits=%d unkeyable=%d memo_hits=%d evaluations=%d fused_maps=%d fused_filters=%d fused_aggregates=%d\n",
		s.Nodes, s.DedupHits, s.Unkeyable, s.MemoHits, s.Evaluations, s.FusedMaps, s.FusedFilters, s.FusedAggregates)
}

func formatValue(v any) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(v)
}
