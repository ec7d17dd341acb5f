package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/flexstream/internal/store"
)

// Publisher receives every successfully evaluated batch.
type Publisher interface {
	Publish(ctx context.Context, rep Report) error
}

// Publishers fans a report out to each publisher in order. Every publisher
// is attempted; failures are joined.
type Publishers []Publisher

func (ps Publishers) Publish(ctx context.Context, rep Report) error {
	var errs []error
	for _, p := range ps {
		if err := p.Publish(ctx, rep); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StorePublisher persists reports to the result store.
type StorePublisher struct {
	Store *store.Store
}

// Publish writes the batch and its results, then the records when the
// report carries them.
func (p StorePublisher) Publish(ctx context.Context, rep Report) error {
	results := make([]store.Result, len(rep.Results))
	for i, r := range rep.Results {
		results[i] = store.Result{
			BatchID:     rep.BatchID,
			QueryID:     r.QueryID,
			Fingerprint: r.Fingerprint,
			Value:       r.Value,
		}
	}
	batch := store.Batch{
		ID:     rep.BatchID,
		Source: rep.Source,
		Seq:    rep.Seq,
		Level:  string(rep.Level),
		Total:  rep.Total,
	}
	if err := p.Store.WriteBatch(ctx, batch, results); err != nil {
		return fmt.Errorf("publish batch %s: %w", rep.BatchID, err)
	}
	if rep.Records == nil {
		return nil
	}
	records := make([]map[string]any, len(rep.Records))
	for i, r := range rep.Records {
		records[i] = r
	}
	if err := p.Store.WriteRecords(ctx, rep.BatchID, records); err != nil {
		return fmt.Errorf("publish records %s: %w", rep.BatchID, err)
	}
	return nil
}

// LogPublisher logs one line per query result.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, rep Report) error {
	slog.Info("batch total", "batch_id", rep.BatchID, "source", rep.Source, "total", rep.Total)
	for _, r := range rep.Results {
		slog.Info("query result", "batch_id", rep.BatchID, "query", r.QueryID, "value", r.Value)
	}
	return nil
}

// MemoryPublisher keeps reports in memory.
//
// Thread-safety: safe for concurrent use.
type MemoryPublisher struct {
	mu      sync.Mutex
	reports []Report
}

func (p *MemoryPublisher) Publish(_ context.Context, rep Report) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, rep)
	return nil
}

// Reports returns a copy of every published report in publish order.
func (p *MemoryPublisher) Reports() []Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Report(nil), p.reports...)
}
