// Package watcher reports files appearing in and disappearing from a
// directory.
//
// The directory listing is the source of truth: every notification is the
// difference between two listings. Filesystem events (fsnotify) only
// trigger an early rescan, and a periodic rescan catches anything the
// event stream missed. The first scan reports every existing file as
// added. Hidden files (leading dot) and subdirectories are ignored, so
// writers can stage a file under a dot-name and rename it when complete.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultInterval is the rescan period.
const DefaultInterval = time.Second

// Changes is the difference between two directory listings. Names are
// base names, sorted.
type Changes struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0
}

// Watcher tracks one directory.
//
// Thread-safety: Scan may be called from any goroutine; Run serializes its
// own scans.
type Watcher struct {
	dir      string
	interval time.Duration
	notify   bool

	mu    sync.Mutex
	known map[string]bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithInterval sets the rescan period.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithNotify enables or disables filesystem events. With events disabled
// the watcher only polls.
func WithNotify(enabled bool) Option {
	return func(w *Watcher) { w.notify = enabled }
}

// New creates a watcher for dir. Nothing is read until Scan or Run.
func New(dir string, opts ...Option) *Watcher {
	w := &Watcher{dir: dir, interval: DefaultInterval, notify: true, known: make(map[string]bool)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Scan lists the directory and returns what changed since the last scan.
func (w *Watcher) Scan() (Changes, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return Changes{}, fmt.Errorf("scan %s: %w", w.dir, err)
	}
	current := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		current[e.Name()] = true
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var c Changes
	for name := range current {
		if !w.known[name] {
			c.Added = append(c.Added, name)
		}
	}
	for name := range w.known {
		if !current[name] {
			c.Removed = append(c.Removed, name)
		}
	}
	slices.Sort(c.Added)
	slices.Sort(c.Removed)
	w.known = current
	return c, nil
}

// Run scans immediately, then on every filesystem event and every
// interval, calling fn with each non-empty change set. It returns nil when
// ctx is cancelled, or the first scan error.
func (w *Watcher) Run(ctx context.Context, fn func(Changes)) error {
	var events <-chan fsnotify.Event
	var errs <-chan error
	if w.notify {
		fw, err := fsnotify.NewWatcher()
		if err != nil {
			slog.Warn("filesystem events unavailable, polling only", "dir", w.dir, "error", err)
		} else {
			defer fw.Close()
			if err := fw.Add(w.dir); err != nil {
				slog.Warn("filesystem events unavailable, polling only", "dir", w.dir, "error", err)
			} else {
				events, errs = fw.Events, fw.Errors
			}
		}
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	scan := func() error {
		c, err := w.Scan()
		if err != nil {
			return err
		}
		if !c.Empty() {
			slog.Debug("directory changed", "dir", w.dir, "added", len(c.Added), "removed", len(c.Removed))
			fn(c)
		}
		return nil
	}

	if err := scan(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				slog.Warn("filesystem event overflow, rescanning", "dir", w.dir)
			} else {
				slog.Warn("filesystem event error", "dir", w.dir, "error", err)
			}
		}
		if err := scan(); err != nil {
			return err
		}
	}
}
