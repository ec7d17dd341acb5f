// Package ingest appends externally sourced records to windowed files that
// the scheduler's directory watcher then picks up.
//
// Records are written one JSON object per line to
// <dir>/<prefix>-<unix-ms>.<suffix>, where unix-ms is the start of the
// file's window. A file is staged under a leading dot and renamed into place
// when its window closes, so a watcher never sees a half-written batch.
// Windows that received no records produce no file.
package ingest

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Defaults for Config.
const (
	DefaultPrefix = "tweets"
	DefaultSuffix = "txt"
	DefaultWindow = 10 * time.Second
)

// Config describes where and how often files are cut.
type Config struct {
	Dir    string
	Prefix string
	Suffix string
	Window time.Duration

	// Now is the wall clock. Defaults to time.Now.
	Now func() time.Time
}

func (c *Config) applyDefaults() {
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.Suffix == "" {
		c.Suffix = DefaultSuffix
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// FileName returns the final name of the file whose window starts at begin.
func FileName(prefix string, begin time.Time, suffix string) string {
	return prefix + "-" + strconv.FormatInt(begin.UnixMilli(), 10) + "." + suffix
}

// ParseFileName extracts the prefix and window start from a file name
// produced by FileName.
func ParseFileName(name string) (prefix string, begin time.Time, ok bool) {
	stem, _, found := strings.Cut(name, ".")
	if !found {
		return "", time.Time{}, false
	}
	i := strings.LastIndexByte(stem, '-')
	if i <= 0 {
		return "", time.Time{}, false
	}
	ms, err := strconv.ParseInt(stem[i+1:], 10, 64)
	if err != nil {
		return "", time.Time{}, false
	}
	return stem[:i], time.UnixMilli(ms), true
}

// Writer is a rotating line writer. Not safe for concurrent use: Server
// gives it a single owning goroutine.
type Writer struct {
	cfg Config

	begin   time.Time
	name    string
	staging string
	f       *os.File
	buf     *bufio.Writer
	lines   int
}

// NewWriter opens the first window.
func NewWriter(cfg Config) (*Writer, error) {
	cfg.applyDefaults()
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create ingest dir: %w", err)
	}
	w := &Writer{cfg: cfg}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) open() error {
	w.begin = w.cfg.Now()
	w.name = FileName(w.cfg.Prefix, w.begin, w.cfg.Suffix)
	w.staging = filepath.Join(w.cfg.Dir, "."+w.name)
	f, err := os.Create(w.staging)
	if err != nil {
		return fmt.Errorf("open window file: %w", err)
	}
	w.f, w.buf, w.lines = f, bufio.NewWriter(f), 0
	return nil
}

// Write appends one line, rotating first if the window has elapsed.
func (w *Writer) Write(line []byte) error {
	if _, err := w.Rotate(false); err != nil {
		return err
	}
	if _, err := w.buf.Write(line); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	w.lines++
	return nil
}

// Rotate closes the current window if it has elapsed, or unconditionally
// when force is set, and opens the next one. It returns the path of the
// published file, or "" when nothing was published.
func (w *Writer) Rotate(force bool) (string, error) {
	if !force && w.cfg.Now().Sub(w.begin) < w.cfg.Window {
		return "", nil
	}
	path, err := w.finish()
	if err != nil {
		return "", err
	}
	return path, w.open()
}

// finish closes the current file and publishes it if non-empty.
func (w *Writer) finish() (string, error) {
	if err := w.buf.Flush(); err != nil {
		w.f.Close()
		return "", fmt.Errorf("flush window file: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return "", fmt.Errorf("close window file: %w", err)
	}
	if w.lines == 0 {
		return "", os.Remove(w.staging)
	}
	final := filepath.Join(w.cfg.Dir, w.name)
	if err := os.Rename(w.staging, final); err != nil {
		return "", fmt.Errorf("publish window file: %w", err)
	}
	slog.Debug("window published", "file", final, "records", w.lines)
	filesTotal.Inc()
	return final, nil
}

// Flush pushes buffered lines to the staging file.
func (w *Writer) Flush() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush window file: %w", err)
	}
	return nil
}

// Close publishes the current window.
func (w *Writer) Close() error {
	_, err := w.finish()
	return err
}
