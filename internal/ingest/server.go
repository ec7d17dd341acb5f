package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
)

var (
	recordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flexstream_ingest_records_total",
		Help: "Records accepted by the ingest listener",
	})

	rejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flexstream_ingest_rejected_total",
		Help: "Lines rejected because they were not JSON objects",
	})

	filesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flexstream_ingest_files_total",
		Help: "Window files published",
	})
)

// maxLine bounds one record.
const maxLine = 1 << 20

// Server accepts newline-delimited JSON objects over TCP and hands them to
// a single Writer goroutine.
type Server struct {
	w       *Writer
	records chan []byte
	tick    time.Duration
}

// NewServer creates a server owning w. Serve closes w on return.
func NewServer(w *Writer) *Server {
	tick := w.cfg.Window / 10
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	return &Server{w: w, records: make(chan []byte, 1024), tick: tick}
}

// Serve accepts connections on ln until ctx is cancelled or the writer
// fails. Pending records are flushed and the last window is published
// before it returns. A cancelled context is not an error.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	var conns sync.WaitGroup

	g.Go(func() error { return s.writeLoop() })

	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})

	g.Go(func() error {
		defer func() {
			conns.Wait()
			close(s.records)
		}()
		for {
			conn, err := ln.Accept()
			if err != nil {
				if gctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return nil
				}
				return fmt.Errorf("accept: %w", err)
			}
			conns.Add(1)
			go func() {
				defer conns.Done()
				s.handle(gctx, conn)
			}()
		}
	})

	err := g.Wait()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

// writeLoop is the only goroutine touching the Writer.
func (s *Server) writeLoop() (err error) {
	defer func() {
		if cerr := s.w.Close(); err == nil {
			err = cerr
		}
	}()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case line, ok := <-s.records:
			if !ok {
				return nil
			}
			if err := s.w.Write(line); err != nil {
				return err
			}
			if len(s.records) == 0 {
				if err := s.w.Flush(); err != nil {
					return err
				}
			}
		case <-ticker.C:
			if _, err := s.w.Rotate(false); err != nil {
				return err
			}
		}
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	remote := conn.RemoteAddr().String()
	slog.Debug("ingest connection opened", "remote", remote)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	for scanner.Scan() {
		line, ok := normalize(scanner.Bytes())
		if !ok {
			rejectedTotal.Inc()
			slog.Debug("rejected ingest line", "remote", remote, "bytes", len(scanner.Bytes()))
			continue
		}
		select {
		case s.records <- line:
			recordsTotal.Inc()
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		slog.Warn("ingest connection failed", "remote", remote, "error", err)
	}
}

// normalize compacts a JSON object onto one line. Blank lines and anything
// that is not a JSON object are rejected.
func normalize(raw []byte) ([]byte, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, false
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}
