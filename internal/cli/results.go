package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/flexstream/internal/query"
	"github.com/roach88/flexstream/internal/querysql"
	"github.com/roach88/flexstream/internal/store"
)

// ResultsOptions holds flags for the results command.
type ResultsOptions struct {
	*RootOptions
	Database string
	Batch    string
	Latest   bool
	Query    string
	Limit    int
	Check    []string
}

// BatchResults is one batch with its published values.
type BatchResults struct {
	Batch   store.Batch    `json:"batch"`
	Results []store.Result `json:"results"`
	Checks  []CheckResult  `json:"checks,omitempty"`
}

// CheckResult compares a published value with the value recomputed in SQL
// from the batch's stored records.
type CheckResult struct {
	QueryID   string `json:"query_id"`
	Published any    `json:"published"`
	Recounted any    `json:"recounted"`
	Match     bool   `json:"match"`
}

// NewResultsCommand creates the results command.
func NewResultsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResultsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "results",
		Short: "Inspect published batch results",
		Long: `Read the SQLite result store written by "flexstream run".

With no selector the most recent batches are listed. --batch or --latest
shows one batch and its values; --query shows one query across batches.

--check recomputes the selected batch's values in SQL from the records
stored with --keep-records and compares them with what was published.

Examples:
  flexstream results --db results.db
  flexstream results --db results.db --latest
  flexstream results --db results.db --query HAPPY-1
  flexstream results --db results.db --batch 0192... --check queries.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResults(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite result store (required)")
	cmd.Flags().StringVar(&opts.Batch, "batch", "", "show one batch by id")
	cmd.Flags().BoolVar(&opts.Latest, "latest", false, "show the most recent batch")
	cmd.Flags().StringVar(&opts.Query, "query", "", "show one query's history")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum batches to list (0 for all)")
	cmd.Flags().StringSliceVar(&opts.Check, "check", nil, "query files to recompute the selected batch against")
	_ = cmd.MarkFlagRequired("db")
	cmd.MarkFlagsMutuallyExclusive("batch", "latest", "query")

	return cmd
}

func runResults(opts *ResultsOptions, cmd *cobra.Command) error {
	out := newFormatter(cmd, opts.RootOptions)
	ctx := cmd.Context()

	if _, err := os.Stat(opts.Database); err != nil {
		return out.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.Database), nil)
	}
	st, err := store.Open(opts.Database, store.ReadOnly())
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err.Error())
	}
	defer st.Close()

	switch {
	case opts.Query != "":
		history, err := st.QueryHistory(ctx, opts.Query)
		if err != nil {
			return out.Fail(ExitFailure, ErrCodeStore, err.Error(), nil)
		}
		return out.Emit(history, func(w io.Writer) { writeHistoryText(w, opts.Query, history) })

	case opts.Batch != "" || opts.Latest:
		var b store.Batch
		if opts.Latest {
			b, err = st.LatestBatch(ctx)
		} else {
			b, err = st.ReadBatch(ctx, opts.Batch)
		}
		if errors.Is(err, store.ErrNotFound) {
			return out.Fail(ExitFailure, ErrCodeNotFound, err.Error(), nil)
		}
		if err != nil {
			return out.Fail(ExitFailure, ErrCodeStore, err.Error(), nil)
		}
		br, err := loadBatchResults(ctx, st, b, opts.Check)
		if err != nil {
			return err
		}
		if err := out.Emit(br, func(w io.Writer) { writeBatchText(w, br) }); err != nil {
			return err
		}
		for _, c := range br.Checks {
			if !c.Match {
				return NewExitError(ExitFailure, fmt.Sprintf("query %s: published %v, recounted %v", c.QueryID, c.Published, c.Recounted))
			}
		}
		return nil

	default:
		batches, err := st.ListBatches(ctx, opts.Limit)
		if err != nil {
			return out.Fail(ExitFailure, ErrCodeStore, err.Error(), nil)
		}
		return out.Emit(batches, func(w io.Writer) { writeBatchesText(w, batches) })
	}
}

func loadBatchResults(ctx context.Context, st *store.Store, b store.Batch, checkPaths []string) (BatchResults, error) {
	results, err := st.ReadResults(ctx, b.ID)
	if err != nil {
		return BatchResults{}, WrapExitError(ExitFailure, "failed to read results", err)
	}
	br := BatchResults{Batch: b, Results: results}
	if len(checkPaths) == 0 {
		return br, nil
	}

	queries, err := loadQueriesOrFail(checkPaths)
	if err != nil {
		return BatchResults{}, err
	}
	n, err := st.CountRecords(ctx, b.ID)
	if err != nil {
		return BatchResults{}, WrapExitError(ExitFailure, "failed to count records", err)
	}
	if n != b.Total {
		return BatchResults{}, NewExitError(ExitFailure,
			fmt.Sprintf("batch %s has %d stored records of %d; was it run with --keep-records?", b.ID, n, b.Total))
	}
	br.Checks, err = CheckBatch(ctx, st, b.ID, queries, results)
	if err != nil {
		return BatchResults{}, WrapExitError(ExitFailure, "check failed", err)
	}
	return br, nil
}

// CheckBatch recomputes each query over the batch's stored records and
// compares it with the published result. Queries without a published
// result are skipped.
func CheckBatch(ctx context.Context, st *store.Store, batchID string, queries []query.Query, published []store.Result) ([]CheckResult, error) {
	byID := make(map[string]any, len(published))
	for _, r := range published {
		byID[r.QueryID] = r.Value
	}

	sqlc := querysql.NewSQLCompiler()
	var checks []CheckResult
	for _, q := range queries {
		want, ok := byID[q.ID]
		if !ok {
			continue
		}
		sql, params, err := sqlc.Compile(q, batchID)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.ID, err)
		}
		got, err := st.QueryScalar(ctx, sql, params...)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.ID, err)
		}
		checks = append(checks, CheckResult{QueryID: q.ID, Published: want, Recounted: got, Match: want == got})
	}
	return checks, nil
}

func writeBatchesText(w io.Writer, batches []store.Batch) {
	if len(batches) == 0 {
		fmt.Fprintln(w, "No batches.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tID\tLEVEL\tTOTAL\tSOURCE")
	for _, b := range batches {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", b.Seq, b.ID, b.Level, b.Total, b.Source)
	}
	_ = tw.Flush()
}

func writeBatchText(w io.Writer, br BatchResults) {
	b := br.Batch
	fmt.Fprintf(w, "Batch %s (seq %d, %d records, level %s)\n", b.ID, b.Seq, b.Total, b.Level)
	fmt.Fprintf(w, "Source: %s\n", b.Source)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range br.Results {
		fmt.Fprintf(tw, "  %s\t%s\n", r.QueryID, formatValue(r.Value))
	}
	_ = tw.Flush()
	for _, c := range br.Checks {
		mark := "✓"
		if !c.Match {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s: published %s, recounted %s\n", mark, c.QueryID, formatValue(c.Published), formatValue(c.Recounted))
	}
}

func writeHistoryText(w io.Writer, queryID string, history []store.Result) {
	if len(history) == 0 {
		fmt.Fprintf(w, "No results for %s.\n", queryID)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BATCH\tVALUE")
	for _, r := range history {
		fmt.Fprintf(tw, "%s\t%s\n", r.BatchID, formatValue(r.Value))
	}
	_ = tw.Flush()
}
