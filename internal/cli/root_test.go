package cli

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

var batchLines = []string{
	`{"text":"so happy today","likes":3,"user":{"name":"ada"}}`,
	`{"text":"sad and happy","likes":10}`,
	`{"text":"just sad","likes":1}`,
	`plain happy line`,
	``,
}

const queriesYAML = `queries:
  - id: HAPPY-1
    select: {agg: count, field: "*"}
    where: {text: {_contains: happy}}
  - id: HAPPY-2
    select: {agg: count, field: "*"}
    where: {text: {_contains: happy}}
  - id: SAD-1
    select: {agg: count, field: "*"}
    where: {text: {_contains: sad}}
  - id: LIKES
    select: {agg: sum, field: likes}
`

// writeFile writes content to dir/name and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeBatch(t *testing.T, dir, name string) string {
	t.Helper()
	return writeFile(t, dir, name, strings.Join(batchLines, "\n")+"\n")
}

func writeQueries(t *testing.T, dir string) string {
	t.Helper()
	return writeFile(t, dir, "queries.yaml", queriesYAML)
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	return executeCommand(cmd, args...)
}

func executeCommand(cmd *cobra.Command, args ...string) (string, error) {
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "flexstream", cmd.Use)
	assert.Contains(t, cmd.Long, "standing queries")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"run", "eval", "validate", "explain", "results", "listen", "profile", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	dbFlag := runCmd.Flags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "", dbFlag.DefValue)

	levelFlag := runCmd.Flags().Lookup("level")
	require.NotNil(t, levelFlag)
	assert.Equal(t, "aggregate", levelFlag.DefValue)

	queriesFlag := runCmd.Flags().Lookup("queries")
	require.NotNil(t, queriesFlag)
	assert.Equal(t, "q", queriesFlag.Shorthand)
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "--format", "xml", "validate", writeQueries(t, dir))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}
