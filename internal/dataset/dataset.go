// Package dataset is an in-memory partitioned dataset implementing the
// lazy.Handle engine contract.
//
// Every operation runs eagerly: Map and Filter return a new Dataset with the
// same partitioning, Aggregate folds each partition with seqOp and merges
// partition results with combOp. Partitions are processed concurrently,
// bounded by the worker limit.
package dataset

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/flexstream/internal/lazy"
)

// DefaultPartitions is the partition count when none is configured.
const DefaultPartitions = 4

// Dataset is an immutable partitioned collection of items.
type Dataset struct {
	name    string
	parts   [][]lazy.Value
	workers int
	cached  bool
}

var _ lazy.Handle = (*Dataset)(nil)

type config struct {
	name       string
	partitions int
	workers    int
}

// Option configures dataset construction.
type Option func(*config)

// WithName labels the dataset; exposed as the "name" attribute.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithPartitions sets the number of partitions. Values below 1 mean 1.
func WithPartitions(n int) Option {
	return func(c *config) { c.partitions = n }
}

// WithWorkers bounds how many partitions are processed at once.
// Zero means one worker per partition.
func WithWorkers(n int) Option {
	return func(c *config) { c.workers = n }
}

// FromSlice splits items into contiguous partitions.
func FromSlice(items []lazy.Value, opts ...Option) *Dataset {
	cfg := config{partitions: DefaultPartitions}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.partitions < 1 {
		cfg.partitions = 1
	}

	parts := make([][]lazy.Value, cfg.partitions)
	size := (len(items) + cfg.partitions - 1) / cfg.partitions
	for i := range parts {
		lo := min(i*size, len(items))
		hi := min(lo+size, len(items))
		parts[i] = append([]lazy.Value(nil), items[lo:hi]...)
	}
	return &Dataset{name: cfg.name, parts: parts, workers: cfg.workers}
}

// FromLines builds a dataset of string items.
func FromLines(lines []string, opts ...Option) *Dataset {
	items := make([]lazy.Value, len(lines))
	for i, l := range lines {
		items[i] = l
	}
	return FromSlice(items, opts...)
}

// ReadFile loads a text file as a dataset of lines, without line
// terminators. The dataset is named after the path unless overridden.
func ReadFile(path string, opts ...Option) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimSuffix(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	return FromLines(lines, append([]Option{WithName(path)}, opts...)...), nil
}

// Partitions returns the number of partitions.
func (d *Dataset) Partitions() int { return len(d.parts) }

// Collect returns every item in partition order.
func (d *Dataset) Collect() []lazy.Value {
	var out []lazy.Value
	for _, p := range d.parts {
		out = append(out, p...)
	}
	return out
}

func (d *Dataset) derive(parts [][]lazy.Value) *Dataset {
	return &Dataset{name: d.name, parts: parts, workers: d.workers}
}

// eachPartition runs fn over every partition concurrently and returns the
// first error.
func (d *Dataset) eachPartition(fn func(i int, part []lazy.Value) error) error {
	var g errgroup.Group
	if d.workers > 0 {
		g.SetLimit(d.workers)
	}
	for i, part := range d.parts {
		g.Go(func() error { return fn(i, part) })
	}
	return g.Wait()
}

// Map implements lazy.Handle.
func (d *Dataset) Map(fn lazy.MapFunc) (lazy.Handle, error) {
	parts := make([][]lazy.Value, len(d.parts))
	err := d.eachPartition(func(i int, part []lazy.Value) error {
		out := make([]lazy.Value, len(part))
		for j, item := range part {
			v, err := fn(item)
			if err != nil {
				return err
			}
			out[j] = v
		}
		parts[i] = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d.derive(parts), nil
}

// Filter implements lazy.Handle.
func (d *Dataset) Filter(fn lazy.FilterFunc) (lazy.Handle, error) {
	parts := make([][]lazy.Value, len(d.parts))
	err := d.eachPartition(func(i int, part []lazy.Value) error {
		var out []lazy.Value
		for _, item := range part {
			keep, err := fn(item)
			if err != nil {
				return err
			}
			if keep {
				out = append(out, item)
			}
		}
		parts[i] = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d.derive(parts), nil
}

// Count implements lazy.Handle.
func (d *Dataset) Count() (int64, error) {
	var n int64
	for _, p := range d.parts {
		n += int64(len(p))
	}
	return n, nil
}

// Aggregate implements lazy.Handle. Each partition is folded from zero with
// seqOp; partition results are merged from zero with combOp in partition
// order.
func (d *Dataset) Aggregate(zero lazy.Value, seqOp, combOp lazy.CombineFunc) (lazy.Value, error) {
	partials := make([]lazy.Value, len(d.parts))
	err := d.eachPartition(func(i int, part []lazy.Value) error {
		acc := zero
		for _, item := range part {
			var err error
			if acc, err = seqOp(acc, item); err != nil {
				return err
			}
		}
		partials[i] = acc
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := zero
	for _, p := range partials {
		if result, err = combOp(result, p); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Cache implements lazy.Handle. Items are already in memory; the returned
// dataset only records that it was cached.
func (d *Dataset) Cache() (lazy.Handle, error) {
	c := d.derive(d.parts)
	c.cached = true
	return c, nil
}

// Attr implements lazy.Handle. Known attributes: name, partitions, cached.
func (d *Dataset) Attr(name string) (lazy.Value, bool) {
	switch name {
	case "name":
		return d.name, true
	case "partitions":
		return len(d.parts), true
	case "cached":
		return d.cached, true
	}
	return nil, false
}
