package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/flexstream/internal/query"
)

// ValidationIssue is one problem found in a query file.
type ValidationIssue struct {
	Code    string `json:"code"`
	Path    string `json:"path,omitempty"`
	Query   string `json:"query,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool              `json:"valid"`
	Queries int               `json:"queries"`
	Errors  []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <query-file-or-dir>...",
		Short: "Validate query files without evaluating them",
		Long: `Decode and validate standing query files (.yaml, .yml, .json or .cue).

Every file is checked and all problems are reported: unknown fields,
unsupported aggregators or operators, malformed operands and duplicate
query ids across files.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	out := newFormatter(cmd, opts)

	files, err := FindQueryFiles(paths)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return out.Fail(ExitCommandError, loadErr.Code, loadErr.Error(), nil)
		}
		return out.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	out.VerboseLog("Found %d query file(s)", len(files))

	qs, loadErrs := LoadQueries(files, LoadModeCollectAll)
	result := ValidationResult{Valid: len(loadErrs) == 0, Queries: len(qs)}
	for _, err := range loadErrs {
		result.Errors = append(result.Errors, issuesFor(err)...)
	}

	if !result.Valid {
		return out.Fail(ExitFailure, ErrCodeInvalidQuery,
			fmt.Sprintf("%d validation error(s)", len(result.Errors)), result.Errors)
	}
	return out.Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %d query(ies) in %d file(s) are valid\n", result.Queries, len(files))
	})
}

// issuesFor flattens a load error into one issue per underlying
// validation error.
func issuesFor(err error) []ValidationIssue {
	base := ValidationIssue{Code: ErrCodeGeneric, Message: err.Error()}
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		base.Code, base.Path = loadErr.Code, loadErr.Path
		err = loadErr.Err
	}
	if err == nil {
		return []ValidationIssue{base}
	}

	var issues []ValidationIssue
	for _, e := range flatten(err) {
		var ve *query.ValidationError
		if !errors.As(e, &ve) {
			continue
		}
		issue := base
		issue.Query, issue.Field, issue.Message = ve.Query, ve.Field, ve.Message
		issues = append(issues, issue)
	}
	if len(issues) == 0 {
		return []ValidationIssue{base}
	}
	return issues
}

// flatten expands errors.Join trees into their leaves.
func flatten(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []error{err}
}
