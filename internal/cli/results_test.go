package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flexstream/internal/store"
)

// populate runs two batches into a fresh store and returns the db path and
// queries file.
func populate(t *testing.T, keepRecords bool) (string, string) {
	t.Helper()
	tmp := t.TempDir()
	input := filepath.Join(tmp, "input")
	writeBatch(t, input, "a.txt")
	writeFile(t, input, "b.txt", `{"text":"happy happy","likes":2}`+"\n")
	dbPath := filepath.Join(tmp, "results.db")
	queries := writeQueries(t, tmp)

	args := []string{"run", "--once", "--no-notify", "--db", dbPath, "-q", queries, input}
	if keepRecords {
		args = append(args, "--keep-records")
	}
	_, err := execute(t, args...)
	require.NoError(t, err)
	return dbPath, queries
}

func TestResults_ListBatches(t *testing.T) {
	dbPath, _ := populate(t, false)

	out, err := execute(t, "--format", "json", "results", "--db", dbPath)
	require.NoError(t, err)
	var resp struct {
		Data []store.Batch `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, int64(2), resp.Data[0].Seq)
	assert.Equal(t, int64(1), resp.Data[0].Total)

	out, err = execute(t, "results", "--db", dbPath, "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "SEQ")
	assert.Contains(t, out, "b.txt")
	assert.NotContains(t, out, "a.txt")
}

func TestResults_QueryHistory(t *testing.T) {
	dbPath, _ := populate(t, false)

	out, err := execute(t, "--format", "json", "results", "--db", dbPath, "--query", "LIKES")
	require.NoError(t, err)
	var resp struct {
		Data []store.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, 14.0, resp.Data[0].Value)
	assert.Equal(t, 2.0, resp.Data[1].Value)
}

func TestResults_LatestWithCheck(t *testing.T) {
	dbPath, queries := populate(t, true)

	out, err := execute(t, "--format", "json", "results", "--db", dbPath, "--latest", "--check", queries)
	require.NoError(t, err)
	var resp struct {
		Data struct {
			Batch  store.Batch   `json:"batch"`
			Checks []CheckResult `json:"checks"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, int64(2), resp.Data.Batch.Seq)
	require.Len(t, resp.Data.Checks, 4)
	for _, c := range resp.Data.Checks {
		assert.True(t, c.Match, c.QueryID)
	}
}

func TestResults_CheckNeedsRecords(t *testing.T) {
	dbPath, queries := populate(t, false)

	_, err := execute(t, "results", "--db", dbPath, "--latest", "--check", queries)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "--keep-records")
}

func TestResults_UnknownBatch(t *testing.T) {
	dbPath, _ := populate(t, false)

	out, err := execute(t, "results", "--db", dbPath, "--batch", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E002]")
}

func TestResults_MissingDatabase(t *testing.T) {
	_, err := execute(t, "results", "--db", filepath.Join(t.TempDir(), "none.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestResults_SelectorsExclusive(t *testing.T) {
	dbPath, _ := populate(t, false)
	_, err := execute(t, "results", "--db", dbPath, "--latest", "--query", "LIKES")
	require.Error(t, err)
}
