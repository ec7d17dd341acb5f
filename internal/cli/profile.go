package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/flexstream/internal/dataset"
	"github.com/roach88/flexstream/internal/lazy"
	"github.com/roach88/flexstream/internal/query"
	"github.com/roach88/flexstream/internal/scheduler"
	"github.com/roach88/flexstream/internal/testutil"
)

// profileTerms are the default queries: one count of records whose text
// contains each term.
var profileTerms = []string{"happy", "sad", "and", "the", "I", "One Direction", "1D", "Trump", "Hillary", "Sanders"}

// ProfileOptions holds flags for the profile command.
type ProfileOptions struct {
	*RootOptions
	Queries     []string
	Levels      []string
	Repetitions int
	Start       int
	NumQueries  int
	Partitions  int
}

// ProfileRow is the timing of one query prefix at one level.
type ProfileRow struct {
	Level       lazy.Level `json:"level"`
	Queries     int        `json:"queries"`
	Repetitions int        `json:"repetitions"`
	MeanMillis  float64    `json:"mean_ms"`
	MinMillis   float64    `json:"min_ms"`
	MaxMillis   float64    `json:"max_ms"`
	Passes      int        `json:"passes"`
	Stats       lazy.Stats `json:"stats"`
}

// NewProfileCommand creates the profile command.
func NewProfileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProfileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "profile <batch-file>",
		Short: "Time query sets under each optimization level",
		Long: `Evaluate growing prefixes of the query list against one batch file,
repeating each run, and report the mean wall time and the number of engine
passes over the input for every optimization level.

Without --queries, one count query per built-in search term is used.

Examples:
  flexstream profile batch.txt
  flexstream profile batch.txt -q queries.yaml --level plain --level aggregate -r 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Queries, "queries", "q", nil, "query files or directories")
	cmd.Flags().StringSliceVar(&opts.Levels, "level", nil, "levels to profile (default all)")
	cmd.Flags().IntVarP(&opts.Repetitions, "repetitions", "r", 5, "runs per query prefix")
	cmd.Flags().IntVarP(&opts.Start, "start", "s", 1, "smallest query prefix")
	cmd.Flags().IntVarP(&opts.NumQueries, "num-queries", "n", 0, "largest query prefix (default all)")
	cmd.Flags().IntVar(&opts.Partitions, "partitions", dataset.DefaultPartitions, "dataset partitions")

	return cmd
}

func runProfile(opts *ProfileOptions, path string, cmd *cobra.Command) error {
	out := newFormatter(cmd, opts.RootOptions)

	levels, err := parseLevels(opts.Levels)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --level", err)
	}
	queries := termQueries(profileTerms)
	if len(opts.Queries) > 0 {
		if queries, err = loadQueriesOrFail(opts.Queries); err != nil {
			return err
		}
	}
	n := opts.NumQueries
	if n <= 0 || n > len(queries) {
		n = len(queries)
	}
	if opts.Start < 1 || opts.Start > n {
		return NewExitError(ExitCommandError, fmt.Sprintf("--start must be between 1 and %d", n))
	}
	if opts.Repetitions < 1 {
		return NewExitError(ExitCommandError, "--repetitions must be at least 1")
	}

	ds, err := dataset.ReadFile(path, dataset.WithPartitions(opts.Partitions))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read batch", err)
	}

	var rows []ProfileRow
	for _, level := range levels {
		for i := opts.Start; i <= n; i++ {
			row, err := profilePrefix(cmd, ds, queries[:i], level, opts.Repetitions)
			if err != nil {
				return out.Fail(ExitFailure, ErrCodeBatchFailed, err.Error(), nil)
			}
			out.VerboseLog("%s %d queries: mean %.2fms", level, i, row.MeanMillis)
			rows = append(rows, row)
		}
	}
	return out.Emit(rows, func(w io.Writer) { writeProfileText(w, rows) })
}

// profilePrefix runs qs at level reps times over the same dataset.
func profilePrefix(cmd *cobra.Command, ds *dataset.Dataset, qs []query.Query, level lazy.Level, reps int) (ProfileRow, error) {
	proc, err := scheduler.NewProcessor(qs, scheduler.WithLevel(level))
	if err != nil {
		return ProfileRow{}, err
	}
	row := ProfileRow{Level: level, Queries: len(qs), Repetitions: reps}
	var sum, lo, hi time.Duration
	for r := range reps {
		h := testutil.NewCountingHandle(ds)
		rep, err := proc.Process(cmd.Context(), "profile", h)
		if err != nil {
			return ProfileRow{}, err
		}
		sum += rep.Elapsed
		if r == 0 || rep.Elapsed < lo {
			lo = rep.Elapsed
		}
		if rep.Elapsed > hi {
			hi = rep.Elapsed
		}
		row.Passes, row.Stats = h.Total(), rep.Stats
	}
	row.MeanMillis = millis(sum / time.Duration(reps))
	row.MinMillis, row.MaxMillis = millis(lo), millis(hi)
	return row, nil
}

func parseLevels(names []string) ([]lazy.Level, error) {
	if len(names) == 0 {
		return lazy.Levels, nil
	}
	levels := make([]lazy.Level, 0, len(names))
	for _, name := range names {
		l, err := lazy.ParseLevel(name)
		if err != nil {
			return nil, err
		}
		levels = append(levels, l)
	}
	return levels, nil
}

// termQueries builds one "count where text contains term" query per term,
// identified by the term itself.
func termQueries(terms []string) []query.Query {
	qs := make([]query.Query, len(terms))
	for i, t := range terms {
		qs[i] = query.Query{
			ID:     t,
			Select: query.Select{Agg: query.AggCount, Field: query.Wildcard},
			Where:  map[string]map[string]any{"text": {query.OpContains: t}},
		}
	}
	return qs
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func writeProfileText(w io.Writer, rows []ProfileRow) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LEVEL\tQUERIES\tREPS\tMEAN(ms)\tMIN(ms)\tMAX(ms)\tPASSES\tNODES\tDEDUP\tFUSED")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.3f\t%.3f\t%.3f\t%d\t%d\t%d\t%d\n",
			r.Level, r.Queries, r.Repetitions, r.MeanMillis, r.MinMillis, r.MaxMillis,
			r.Passes, r.Stats.Nodes, r.Stats.DedupHits, r.Stats.FusedPasses())
	}
	_ = tw.Flush()
}
