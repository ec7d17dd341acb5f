package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Valid(t *testing.T) {
	dir := t.TempDir()
	writeQueries(t, dir)

	out, err := execute(t, "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "4 query(ies) in 1 file(s) are valid")
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", `queries:
  - id: MEDIAN
    select: {agg: median, field: likes}
  - id: LIKE
    select: {agg: count, field: "*"}
    where: {text: {_like: happy}}
`)
	writeFile(t, dir, "b.yaml", "queries: [\n")

	out, err := execute(t, "--format", "json", "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string `json:"status"`
		Error  struct {
			Code    string            `json:"code"`
			Message string            `json:"message"`
			Details []ValidationIssue `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeInvalidQuery, resp.Error.Code)
	assert.Equal(t, "3 validation error(s)", resp.Error.Message)
	require.Len(t, resp.Error.Details, 3)

	assert.Equal(t, "MEDIAN", resp.Error.Details[0].Query)
	assert.Equal(t, "select.agg", resp.Error.Details[0].Field)
	assert.Equal(t, "LIKE", resp.Error.Details[1].Query)
	assert.Equal(t, "where.text._like", resp.Error.Details[1].Field)
	assert.Equal(t, ErrCodeLoadFailed, resp.Error.Details[2].Code)
}

func TestValidate_NoFiles(t *testing.T) {
	out, err := execute(t, "validate", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E003]")
}
