package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type evalReport struct {
	Source  string `json:"source"`
	Seq     int64  `json:"seq"`
	Level   string `json:"level"`
	Total   int64  `json:"total"`
	Results []struct {
		QueryID string `json:"query_id"`
		Value   any    `json:"value"`
	} `json:"results"`
}

func TestEval_PrintsResults(t *testing.T) {
	dir := t.TempDir()
	a := writeBatch(t, dir, "a.txt")
	b := writeFile(t, dir, "b.txt", `{"text":"happy"}`+"\n")

	out, err := execute(t, "--format", "json", "eval", "-q", writeQueries(t, dir), "--level", "scan", a, b)
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   []evalReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)

	first := resp.Data[0]
	assert.Equal(t, a, first.Source)
	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, "scan", first.Level)
	assert.Equal(t, int64(5), first.Total)
	got := map[string]any{}
	for _, r := range first.Results {
		got[r.QueryID] = r.Value
	}
	assert.Equal(t, map[string]any{"HAPPY-1": 3.0, "HAPPY-2": 3.0, "SAD-1": 2.0, "LIKES": 14.0}, got)

	second := resp.Data[1]
	assert.Equal(t, int64(2), second.Seq)
	assert.Equal(t, int64(1), second.Total)
}

func TestEval_TextWithStats(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "eval", "-q", writeQueries(t, dir), "--stats", writeBatch(t, dir, "a.txt"))
	require.NoError(t, err)
	assert.Contains(t, out, "(seq 1, 5 records, level aggregate)")
	assert.Contains(t, out, "HAPPY-1")
	assert.Contains(t, out, "dedup_hits=")
}

func TestEval_MissingFile(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "eval", "-q", writeQueries(t, dir), filepath.Join(dir, "missing.txt"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E301]")
}
