package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flexstream/internal/lazy"
)

func TestProfile_PassesPerLevel(t *testing.T) {
	batch := writeBatch(t, t.TempDir(), "batch.txt")

	out, err := execute(t, "--format", "json", "profile", batch,
		"--level", "plain", "--level", "aggregate", "-r", "2", "-n", "3")
	require.NoError(t, err)

	var resp struct {
		Data []ProfileRow `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 6)

	for i, row := range resp.Data[:3] {
		assert.Equal(t, lazy.LevelPlain, row.Level)
		assert.Equal(t, i+1, row.Queries)
		assert.Equal(t, 2, row.Repetitions)
		// The total plus one parse per query.
		assert.Equal(t, 1+row.Queries, row.Passes)
	}
	for _, row := range resp.Data[3:] {
		assert.Equal(t, lazy.LevelAggregate, row.Level)
		assert.Equal(t, 1, row.Passes)
		assert.LessOrEqual(t, row.MinMillis, row.MaxMillis)
	}
	assert.Equal(t, int64(1), resp.Data[5].Stats.FusedFilters)
}

func TestProfile_Validation(t *testing.T) {
	batch := writeBatch(t, t.TempDir(), "batch.txt")

	_, err := execute(t, "profile", batch, "--start", "11")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "profile", batch, "--level", "warp")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "profile", "/nonexistent/batch.txt")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTermQueries(t *testing.T) {
	qs := termQueries([]string{"happy", "1D"})
	require.Len(t, qs, 2)
	assert.Equal(t, "1D", qs[1].ID)
	assert.Equal(t, "1D", qs[1].Where["text"]["_contains"])
}
