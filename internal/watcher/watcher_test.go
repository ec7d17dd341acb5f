package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x\n"), 0o644))
}

func TestScan_Diffs(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.txt")
	touch(t, dir, "a.txt")
	touch(t, dir, ".staging")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	w := New(dir)

	c, err := w.Scan()
	require.NoError(t, err)
	assert.Equal(t, Changes{Added: []string{"a.txt", "b.txt"}}, c)

	c, err = w.Scan()
	require.NoError(t, err)
	assert.True(t, c.Empty())

	touch(t, dir, "c.txt")
	require.NoError(t, os.Remove(filepath.Join(dir, "a.txt")))

	c, err = w.Scan()
	require.NoError(t, err)
	assert.Equal(t, Changes{Added: []string{"c.txt"}, Removed: []string{"a.txt"}}, c)
}

func TestScan_MissingDir(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing")).Scan()
	assert.Error(t, err)
}

func runCollecting(t *testing.T, w *Watcher) (func() []string, context.CancelFunc, chan error) {
	t.Helper()
	var mu sync.Mutex
	var added []string
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(c Changes) {
			mu.Lock()
			defer mu.Unlock()
			added = append(added, c.Added...)
		})
	}()
	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), added...)
	}, cancel, done
}

func TestRun_ReportsExistingAndNewFiles(t *testing.T) {
	for _, notify := range []bool{true, false} {
		t.Run(map[bool]string{true: "events", false: "polling"}[notify], func(t *testing.T) {
			dir := t.TempDir()
			touch(t, dir, "first.txt")

			w := New(dir, WithInterval(20*time.Millisecond), WithNotify(notify))
			added, cancel, done := runCollecting(t, w)

			assert.Eventually(t, func() bool { return len(added()) == 1 }, 2*time.Second, 5*time.Millisecond)
			touch(t, dir, "second.txt")
			assert.Eventually(t, func() bool { return len(added()) == 2 }, 2*time.Second, 5*time.Millisecond)

			cancel()
			require.NoError(t, <-done)
			assert.Equal(t, []string{"first.txt", "second.txt"}, added())
		})
	}
}

func TestRun_ScanErrorStops(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "missing"), WithNotify(false))
	err := w.Run(context.Background(), func(Changes) {})
	assert.Error(t, err)
}
