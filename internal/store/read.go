package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested batch does not exist.
var ErrNotFound = errors.New("not found")

// ReadBatch returns one batch by id.
func (s *Store) ReadBatch(ctx context.Context, id string) (Batch, error) {
	var b Batch
	err := s.db.QueryRowContext(ctx, `
		SELECT id, source, seq, level, total FROM batches WHERE id = ?
	`, id).Scan(&b.ID, &b.Source, &b.Seq, &b.Level, &b.Total)
	if errors.Is(err, sql.ErrNoRows) {
		return Batch{}, fmt.Errorf("batch %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Batch{}, fmt.Errorf("read batch: %w", err)
	}
	return b, nil
}

// LatestBatch returns the batch with the highest seq.
func (s *Store) LatestBatch(ctx context.Context) (Batch, error) {
	batches, err := s.ListBatches(ctx, 1)
	if err != nil {
		return Batch{}, err
	}
	if len(batches) == 0 {
		return Batch{}, fmt.Errorf("latest batch: %w", ErrNotFound)
	}
	return batches[0], nil
}

// ListBatches returns up to limit batches, most recent first. A limit of
// zero or less returns every batch.
func (s *Store) ListBatches(ctx context.Context, limit int) ([]Batch, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, seq, level, total
		FROM batches
		ORDER BY seq DESC, id COLLATE BINARY ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	batches := []Batch{}
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.ID, &b.Source, &b.Seq, &b.Level, &b.Total); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}
	return batches, nil
}

// MaxSeq returns the highest batch seq, or 0 for an empty store.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM batches`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq, nil
}

// ReadResults returns every result of a batch ordered by query id.
func (s *Store) ReadResults(ctx context.Context, batchID string) ([]Result, error) {
	return s.queryResults(ctx, `
		SELECT r.batch_id, r.query_id, r.fingerprint, r.value
		FROM results r
		WHERE r.batch_id = ?
		ORDER BY r.query_id COLLATE BINARY ASC
	`, batchID)
}

// QueryHistory returns the results of one query across batches, oldest
// batch first.
func (s *Store) QueryHistory(ctx context.Context, queryID string) ([]Result, error) {
	return s.queryResults(ctx, `
		SELECT r.batch_id, r.query_id, r.fingerprint, r.value
		FROM results r
		JOIN batches b ON b.id = r.batch_id
		WHERE r.query_id = ?
		ORDER BY b.seq ASC, r.batch_id COLLATE BINARY ASC
	`, queryID)
}

func (s *Store) queryResults(ctx context.Context, query string, args ...any) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	results := []Result{}
	for rows.Next() {
		var r Result
		var value string
		if err := rows.Scan(&r.BatchID, &r.QueryID, &r.Fingerprint, &value); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if r.Value, err = unmarshalValue(value); err != nil {
			return nil, fmt.Errorf("result %s/%s: %w", r.BatchID, r.QueryID, err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}

// unmarshalValue decodes stored JSON keeping integers as int64.
func unmarshalValue(data string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if n, ok := v.(json.Number); ok {
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("non-integer value %s", n)
		}
		return i, nil
	}
	return v, nil
}

// CountRecords returns the number of records kept for a batch.
func (s *Store) CountRecords(ctx context.Context, batchID string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE batch_id = ?`, batchID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}
