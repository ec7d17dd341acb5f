package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/flexstream/internal/dataset"
	"github.com/roach88/flexstream/internal/lazy"
	"github.com/roach88/flexstream/internal/query"
	"github.com/roach88/flexstream/internal/querysql"
)

// PlanStep is one deferred call on the path from the parsed records to a
// query's leaf.
type PlanStep struct {
	Node lazy.NodeID `json:"node"`
	Op   string      `json:"op"`
}

// QueryPlan describes how one query is evaluated.
type QueryPlan struct {
	ID          string     `json:"id"`
	Fingerprint string     `json:"fingerprint"`
	Plan        []PlanStep `json:"plan"`
	SQL         string     `json:"sql"`
	Params      []any      `json:"params"`
}

// ExplainResult is the output of the explain command.
type ExplainResult struct {
	Level    lazy.Level  `json:"level"`
	Policies []string    `json:"policies"`
	Nodes    int         `json:"nodes"`
	Queries  []QueryPlan `json:"queries"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	var level string

	cmd := &cobra.Command{
		Use:   "explain <query-file-or-dir>...",
		Short: "Show the deferred plan and SQL for each query",
		Long: `Build the deferred graph for the queries at an optimization level,
without evaluating anything, and print each query's chain of calls along
with its equivalent SQL over the result store's records table.

Queries that share node numbers share work: identical sub-chains are
built once when deduplication is on.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := lazy.ParseLevel(level)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --level", err)
			}
			return runExplain(rootOpts, l, args, cmd)
		},
	}
	cmd.Flags().StringVar(&level, "level", string(lazy.LevelAggregate), "optimization level (plain|subquery|scan|aggregate)")

	return cmd
}

func runExplain(opts *RootOptions, level lazy.Level, paths []string, cmd *cobra.Command) error {
	out := newFormatter(cmd, opts)

	queries, err := loadQueriesOrFail(paths)
	if err != nil {
		return err
	}
	result, err := Explain(queries, level)
	if err != nil {
		return out.Fail(ExitFailure, ErrCodeInvalidQuery, err.Error(), nil)
	}
	return out.Emit(result, func(w io.Writer) { writeExplainText(w, result) })
}

// Explain builds every query on one graph over an empty dataset and
// reports the resulting plans.
func Explain(queries []query.Query, level lazy.Level) (ExplainResult, error) {
	g := lazy.NewGraph(level.Policies()...)
	parsed, err := g.Wrap(dataset.FromLines(nil)).Map(query.ParseLines)
	if err != nil {
		return ExplainResult{}, err
	}

	sqlc := querysql.NewSQLCompiler()
	result := ExplainResult{Level: level, Policies: g.Policies()}
	for _, q := range queries {
		leaf, err := query.Apply(q, parsed)
		if err != nil {
			return ExplainResult{}, err
		}
		fp, err := q.Fingerprint()
		if err != nil {
			return ExplainResult{}, err
		}
		sql, params, err := sqlc.Compile(q, "<batch>")
		if err != nil {
			return ExplainResult{}, fmt.Errorf("query %s: %w", q.ID, err)
		}
		result.Queries = append(result.Queries, QueryPlan{
			ID:          q.ID,
			Fingerprint: fp,
			Plan:        planOf(leaf),
			SQL:         sql,
			Params:      params,
		})
	}
	result.Nodes = g.Len()
	return result, nil
}

// planOf walks from leaf to the root and returns the calls root-first.
func planOf(leaf lazy.Node) []PlanStep {
	var steps []PlanStep
	for n, ok := leaf, true; ok; n, ok = n.Parent() {
		op, hasOp := n.Operation()
		if !hasOp {
			break
		}
		steps = append(steps, PlanStep{Node: n.ID(), Op: op.Name})
	}
	slices.Reverse(steps)
	return steps
}

func writeExplainText(w io.Writer, r ExplainResult) {
	fmt.Fprintf(w, "Level: %s (policies: %s)\n", r.Level, policyList(r.Policies))
	fmt.Fprintf(w, "Nodes: %d\n", r.Nodes)
	for _, q := range r.Queries {
		fmt.Fprintf(w, "\n%s  [%s]\n", q.ID, shortFingerprint(q.Fingerprint))
		parts := make([]string, len(q.Plan))
		for i, s := range q.Plan {
			parts[i] = fmt.Sprintf("%s#%d", s.Op, s.Node)
		}
		fmt.Fprintf(w, "  plan:   source -> %s\n", strings.Join(parts, " -> "))
		fmt.Fprintf(w, "  sql:    %s\n", q.SQL)
		fmt.Fprintf(w, "  params: %v\n", q.Params)
	}
}

func policyList(ps []string) string {
	if len(ps) == 0 {
		return "none"
	}
	return strings.Join(ps, ", ")
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
