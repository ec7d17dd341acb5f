package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "iteration %d", i)

		var count int
		require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM results").Scan(&count))
		require.NoError(t, s.Close())
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)
	for name, want := range map[string]string{
		"journal_mode": "wal",
		"foreign_keys": "1",
		"busy_timeout": "5000",
		"user_version": "1",
	} {
		got, err := s.pragma(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
}

func TestOpen_BusyTimeoutOption(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), WithBusyTimeout(250*time.Millisecond))
	require.NoError(t, err)
	defer s.Close()

	got, err := s.pragma("busy_timeout")
	require.NoError(t, err)
	assert.Equal(t, "250", got)
}

func TestOpen_ReadOnly(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	_, err := Open(path, ReadOnly())
	require.Error(t, err, "read-only open must not create the store")
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	w, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteBatch(ctx, Batch{ID: "b1", Source: "a.txt", Seq: 1, Level: "plain", Total: 1}, nil))
	require.NoError(t, w.Close())

	r, err := Open(path, ReadOnly())
	require.NoError(t, err)
	defer r.Close()

	b, err := r.ReadBatch(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.Total)

	err = r.WriteBatch(ctx, Batch{ID: "b2", Source: "b.txt", Seq: 2, Level: "plain", Total: 1}, nil)
	assert.Error(t, err)
}

func TestOpen_ReadOnlyRejectsUnmigratedStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	w, err := Open(path)
	require.NoError(t, err)
	_, err = w.db.Exec("PRAGMA user_version = 0")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = Open(path, ReadOnly())
	assert.ErrorIs(t, err, ErrSchemaVersion)

	// A writable open migrates it again.
	w, err = Open(path)
	require.NoError(t, err)
	defer w.Close()
	v, err := w.pragma("user_version")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestOpen_RejectsNewerStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	w, err := Open(path)
	require.NoError(t, err)
	_, err = w.db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = Open(path)
	assert.ErrorIs(t, err, ErrSchemaVersion)
}

func TestWriteBatch_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	b := Batch{ID: "b1", Source: "tweets-1.txt", Seq: 1, Level: "aggregate", Total: 5}
	require.NoError(t, s.WriteBatch(ctx, b, []Result{
		{QueryID: "SAD-1", Fingerprint: "f2", Value: int64(2)},
		{QueryID: "HAPPY-1", Fingerprint: "f1", Value: int64(3)},
		{QueryID: "NONE", Fingerprint: "f3", Value: nil},
	}))

	got, err := s.ReadBatch(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, b, got)

	results, err := s.ReadResults(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, []Result{
		{BatchID: "b1", QueryID: "HAPPY-1", Fingerprint: "f1", Value: int64(3)},
		{BatchID: "b1", QueryID: "NONE", Fingerprint: "f3", Value: nil},
		{BatchID: "b1", QueryID: "SAD-1", Fingerprint: "f2", Value: int64(2)},
	}, results)
}

func TestWriteBatch_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	b := Batch{ID: "b1", Source: "a.txt", Seq: 1, Level: "plain", Total: 1}
	r := []Result{{QueryID: "Q", Fingerprint: "f", Value: int64(1)}}
	require.NoError(t, s.WriteBatch(ctx, b, r))
	require.NoError(t, s.WriteBatch(ctx, b, []Result{{QueryID: "Q", Fingerprint: "f", Value: int64(99)}}))

	results, err := s.ReadResults(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(1), results[0].Value)
}

func TestReadBatch_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadBatch(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.LatestBatch(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListBatchesAndHistory(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	for i, id := range []string{"c", "a", "b"} {
		seq := int64(i + 1)
		require.NoError(t, s.WriteBatch(ctx,
			Batch{ID: id, Source: id + ".txt", Seq: seq, Level: "scan", Total: seq},
			[]Result{{QueryID: "Q", Fingerprint: "f", Value: seq * 10}}))
	}

	batches, err := s.ListBatches(ctx, 0)
	require.NoError(t, err)
	require.Len(t, batches, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{batches[0].ID, batches[1].ID, batches[2].ID})

	limited, err := s.ListBatches(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	latest, err := s.LatestBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", latest.ID)

	seq, err := s.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), seq)

	history, err := s.QueryHistory(ctx, "Q")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []any{int64(10), int64(20), int64(30)}, []any{history[0].Value, history[1].Value, history[2].Value})
	assert.Equal(t, "c", history[0].BatchID)

	empty, err := s.QueryHistory(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMaxSeq_Empty(t *testing.T) {
	seq, err := createTestStore(t).MaxSeq(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)
}

func TestWriteRecords(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	err := s.WriteRecords(ctx, "nope", []map[string]any{{"text": "x"}})
	assert.Error(t, err, "foreign key enforced")

	require.NoError(t, s.WriteBatch(ctx, Batch{ID: "b1", Source: "a", Seq: 1, Level: "plain", Total: 2}, nil))
	require.NoError(t, s.WriteRecords(ctx, "b1", []map[string]any{{"text": "happy"}, {}}))

	n, err := s.CountRecords(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	v, err := s.QueryScalar(ctx, `SELECT json_extract(record, '$.text') FROM records WHERE batch_id = ? AND seq = 0`, "b1")
	require.NoError(t, err)
	assert.Equal(t, "happy", v)
}
