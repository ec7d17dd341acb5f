package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/flexstream/internal/dataset"
	"github.com/roach88/flexstream/internal/lazy"
	"github.com/roach88/flexstream/internal/query"
)

const tracerName = "flexstream/scheduler"

// QueryResult is the published value of one query in one batch. Value is
// an int64, or nil for min and max over no values.
type QueryResult struct {
	QueryID     string `json:"query_id"`
	Fingerprint string `json:"fingerprint"`
	Value       any    `json:"value"`
}

// Report is the outcome of one batch.
type Report struct {
	BatchID string        `json:"batch_id"`
	Source  string        `json:"source"`
	Seq     int64         `json:"seq"`
	Level   lazy.Level    `json:"level"`
	Total   int64         `json:"total"`
	Results []QueryResult `json:"results"`
	Stats   lazy.Stats    `json:"stats"`
	Elapsed time.Duration `json:"elapsed"`

	// Records holds the parsed input when the processor keeps records.
	Records []query.Record `json:"-"`
}

// Value returns the result of queryID.
func (r Report) Value(queryID string) (any, bool) {
	for _, res := range r.Results {
		if res.QueryID == queryID {
			return res.Value, true
		}
	}
	return nil, false
}

// Processor evaluates registered queries against one batch at a time.
type Processor struct {
	queries      []query.Query
	fingerprints []string
	level        lazy.Level
	partitions   int
	keepRecords  bool
	ids          IDGenerator
	seq          *Sequence
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithLevel selects the optimization level. Default: lazy.LevelAggregate.
func WithLevel(l lazy.Level) ProcessorOption {
	return func(p *Processor) { p.level = l }
}

// WithPartitions sets the dataset partition count. Default:
// dataset.DefaultPartitions.
func WithPartitions(n int) ProcessorOption {
	return func(p *Processor) { p.partitions = n }
}

// WithIDGenerator replaces the UUIDv7 batch id generator.
func WithIDGenerator(g IDGenerator) ProcessorOption {
	return func(p *Processor) { p.ids = g }
}

// WithStartSeq resumes batch numbering after seq.
func WithStartSeq(seq int64) ProcessorOption {
	return func(p *Processor) { p.seq = NewSequenceAt(seq) }
}

// WithKeepRecords attaches the parsed records to every Report.
func WithKeepRecords(keep bool) ProcessorOption {
	return func(p *Processor) { p.keepRecords = keep }
}

// NewProcessor validates queries and fixes their evaluation order.
// The query slice is copied.
func NewProcessor(queries []query.Query, opts ...ProcessorOption) (*Processor, error) {
	if err := query.ValidateAll(queries); err != nil {
		return nil, err
	}
	p := &Processor{
		queries:    append([]query.Query(nil), queries...),
		level:      lazy.LevelAggregate,
		partitions: dataset.DefaultPartitions,
		ids:        UUIDv7Generator{},
		seq:        NewSequenceAt(0),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.fingerprints = make([]string, len(p.queries))
	for i, q := range p.queries {
		fp, err := q.Fingerprint()
		if err != nil {
			return nil, fmt.Errorf("fingerprint query %s: %w", q.ID, err)
		}
		p.fingerprints[i] = fp
	}
	return p, nil
}

// Level returns the optimization level in use.
func (p *Processor) Level() lazy.Level { return p.level }

// Queries returns a copy of the registered queries.
func (p *Processor) Queries() []query.Query {
	return append([]query.Query(nil), p.queries...)
}

// ProcessFile reads path as a batch of lines and evaluates it.
func (p *Processor) ProcessFile(ctx context.Context, path string) (Report, error) {
	ds, err := dataset.ReadFile(path, dataset.WithPartitions(p.partitions))
	if err != nil {
		return Report{}, err
	}
	return p.Process(ctx, path, ds)
}

// ProcessLines evaluates in-memory lines as a batch named source.
func (p *Processor) ProcessLines(ctx context.Context, source string, lines []string) (Report, error) {
	ds := dataset.FromLines(lines, dataset.WithName(source), dataset.WithPartitions(p.partitions))
	return p.Process(ctx, source, ds)
}

// Process evaluates every registered query against the lines of h.
// Cancellation is checked between leaves; a leaf already forcing runs to
// completion.
func (p *Processor) Process(ctx context.Context, source string, h lazy.Handle) (rep Report, err error) {
	start := time.Now()
	rep = Report{
		BatchID: p.ids.Generate(),
		Source:  source,
		Seq:     p.seq.Next(),
		Level:   p.level,
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "scheduler.Process",
		trace.WithAttributes(
			attribute.String("batch_id", rep.BatchID),
			attribute.String("source", source),
			attribute.String("level", string(p.level)),
			attribute.Int("queries", len(p.queries)),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "batch failed")
			batchesTotal.WithLabelValues("error").Inc()
		} else {
			span.SetAttributes(
				attribute.Int64("total", rep.Total),
				attribute.Int64("fused_passes", rep.Stats.FusedPasses()),
				attribute.Int64("dedup_hits", rep.Stats.DedupHits),
			)
			batchesTotal.WithLabelValues("ok").Inc()
		}
		span.End()
	}()

	g := lazy.NewGraph(p.level.Policies()...)
	parsed, err := g.Wrap(h).Map(query.ParseLines)
	if err != nil {
		return rep, fmt.Errorf("batch %s: %w", source, err)
	}
	totalNode, err := parsed.Count()
	if err != nil {
		return rep, fmt.Errorf("batch %s: %w", source, err)
	}
	leaves := make([]lazy.Node, len(p.queries))
	for i, q := range p.queries {
		if leaves[i], err = query.Apply(q, parsed); err != nil {
			return rep, fmt.Errorf("batch %s: %w", source, err)
		}
	}
	var recordsNode lazy.Node
	if p.keepRecords {
		if recordsNode, err = parsed.Call("collect", nil, nil); err != nil {
			return rep, fmt.Errorf("batch %s: %w", source, err)
		}
	}

	total, err := totalNode.Force()
	if err != nil {
		return rep, fmt.Errorf("batch %s: count: %w", source, err)
	}
	n, ok := total.(int64)
	if !ok {
		return rep, fmt.Errorf("batch %s: count returned %T", source, total)
	}
	rep.Total = n

	rep.Results = make([]QueryResult, len(p.queries))
	for i, leaf := range leaves {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		v, err := leaf.Force()
		if err != nil {
			return rep, fmt.Errorf("batch %s: query %s: %w", source, p.queries[i].ID, err)
		}
		rep.Results[i] = QueryResult{
			QueryID:     p.queries[i].ID,
			Fingerprint: p.fingerprints[i],
			Value:       query.Result(v),
		}
	}

	if p.keepRecords {
		if rep.Records, err = forceRecords(recordsNode); err != nil {
			return rep, fmt.Errorf("batch %s: %w", source, err)
		}
	}

	rep.Stats = g.Stats()
	rep.Elapsed = time.Since(start)
	batchDuration.WithLabelValues(string(p.level)).Observe(rep.Elapsed.Seconds())
	recordsTotal.Add(float64(rep.Total))

	slog.Info("batch evaluated",
		"batch_id", rep.BatchID,
		"source", source,
		"seq", rep.Seq,
		"level", p.level,
		"total", rep.Total,
		"queries", len(p.queries),
		"fused_passes", rep.Stats.FusedPasses(),
		"elapsed", rep.Elapsed,
	)
	return rep, nil
}

func forceRecords(n lazy.Node) ([]query.Record, error) {
	v, err := n.Force()
	if err != nil {
		return nil, fmt.Errorf("collect records: %w", err)
	}
	items, ok := v.([]lazy.Value)
	if !ok {
		return nil, fmt.Errorf("collect records: engine returned %T", v)
	}
	out := make([]query.Record, len(items))
	for i, item := range items {
		rec, ok := item.(query.Record)
		if !ok {
			return nil, fmt.Errorf("collect records: item %d is %T", i, item)
		}
		out[i] = rec
	}
	return out, nil
}
