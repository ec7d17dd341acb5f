package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Batch is one processed input file.
type Batch struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Seq    int64  `json:"seq"`
	Level  string `json:"level"`
	Total  int64  `json:"total"`
}

// Result is the published value of one query for one batch. Value is an
// int64 or nil.
type Result struct {
	BatchID     string `json:"batch_id"`
	QueryID     string `json:"query_id"`
	Fingerprint string `json:"fingerprint"`
	Value       any    `json:"value"`
}

// WriteBatch inserts a batch and its results in one transaction.
// Uses ON CONFLICT DO NOTHING for idempotency - re-publishing a batch with
// the same id is silently ignored.
func (s *Store) WriteBatch(ctx context.Context, b Batch, results []Result) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO batches (id, source, seq, level, total)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, b.ID, b.Source, b.Seq, b.Level, b.Total)
		if err != nil {
			return fmt.Errorf("write batch: %w", err)
		}

		for _, r := range results {
			value, err := json.Marshal(r.Value)
			if err != nil {
				return fmt.Errorf("write result %s: %w", r.QueryID, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO results (batch_id, query_id, fingerprint, value)
				VALUES (?, ?, ?, ?)
				ON CONFLICT DO NOTHING
			`, b.ID, r.QueryID, r.Fingerprint, string(value))
			if err != nil {
				return fmt.Errorf("write result %s: %w", r.QueryID, err)
			}
		}
		return nil
	})
}

// WriteRecords stores the parsed records of a batch in input order.
// The batch must already exist (foreign key constraint).
func (s *Store) WriteRecords(ctx context.Context, batchID string, records []map[string]any) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO records (batch_id, seq, record)
			VALUES (?, ?, ?)
			ON CONFLICT DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("write records: %w", err)
		}
		defer stmt.Close()

		for i, rec := range records {
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("write record %d: %w", i, err)
			}
			if _, err := stmt.ExecContext(ctx, batchID, i, string(data)); err != nil {
				return fmt.Errorf("write record %d: %w", i, err)
			}
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
