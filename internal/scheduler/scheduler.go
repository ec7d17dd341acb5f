package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/flexstream/internal/watcher"
)

// Scheduler processes queued files one at a time and publishes each
// report.
type Scheduler struct {
	proc  *Processor
	pub   Publisher
	queue *fileQueue
}

// New creates a scheduler. pub may be nil, in which case reports are only
// logged by the processor.
func New(proc *Processor, pub Publisher) *Scheduler {
	if pub == nil {
		pub = Publishers{}
	}
	return &Scheduler{proc: proc, pub: pub, queue: newFileQueue()}
}

// Enqueue schedules path. Returns false if it is already pending or the
// scheduler has stopped.
func (s *Scheduler) Enqueue(path string) bool {
	ok := s.queue.Enqueue(path)
	queueDepth.Set(float64(s.queue.Len()))
	return ok
}

// Forget drops a pending path, typically because the file was removed
// before it was processed.
func (s *Scheduler) Forget(path string) bool {
	ok := s.queue.Remove(path)
	queueDepth.Set(float64(s.queue.Len()))
	return ok
}

// Pending returns the number of queued files.
func (s *Scheduler) Pending() int { return s.queue.Len() }

// OnChanges returns a watcher callback that schedules added files in dir
// and forgets removed ones.
func (s *Scheduler) OnChanges(dir string) func(watcher.Changes) {
	return func(c watcher.Changes) {
		for _, name := range c.Removed {
			if s.Forget(filepath.Join(dir, name)) {
				slog.Debug("dropped removed file", "file", name)
			}
		}
		for _, name := range c.Added {
			s.Enqueue(filepath.Join(dir, name))
		}
	}
}

// step processes one file and publishes its report.
func (s *Scheduler) step(ctx context.Context, path string) error {
	defer queueDepth.Set(float64(s.queue.Len()))
	rep, err := s.proc.ProcessFile(ctx, path)
	if err != nil {
		return err
	}
	if err := s.pub.Publish(ctx, rep); err != nil {
		return fmt.Errorf("publish %s: %w", path, err)
	}
	return nil
}

// Drain processes every queued file and returns the number processed
// successfully. A failing file is logged and skipped; failures are joined
// into the returned error.
func (s *Scheduler) Drain(ctx context.Context) (int, error) {
	var (
		done int
		errs []error
	)
	for {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		path, ok := s.queue.TryDequeue()
		if !ok {
			return done, errors.Join(errs...)
		}
		if err := s.step(ctx, path); err != nil {
			slog.Error("batch failed", "file", path, "error", err)
			errs = append(errs, err)
			continue
		}
		done++
	}
}

// Run watches w's directory and processes files as they appear until ctx
// is cancelled. Files present when Run starts are processed first.
//
// A failed batch is logged and the loop continues with the next file.
// Returns nil on cancellation, or the watcher's error.
func (s *Scheduler) Run(ctx context.Context, w *watcher.Watcher) error {
	slog.Info("scheduler starting", "dir", w.Dir(), "level", s.proc.Level())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx, s.OnChanges(w.Dir()))
	})
	g.Go(func() error {
		defer s.queue.Close()
		for {
			path, ok := s.queue.TryDequeue()
			if ok {
				if err := s.step(gctx, path); err != nil && gctx.Err() == nil {
					slog.Error("batch failed", "file", path, "error", err)
				}
				continue
			}
			select {
			case <-gctx.Done():
				slog.Info("scheduler stopping: context cancelled")
				return nil
			case <-s.queue.Wait():
			}
		}
	})
	return g.Wait()
}
