package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/flexstream/internal/dataset"
	"github.com/roach88/flexstream/internal/lazy"
	"github.com/roach88/flexstream/internal/scheduler"
	"github.com/roach88/flexstream/internal/store"
	"github.com/roach88/flexstream/internal/watcher"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database    string
	Queries     []string
	Interval    time.Duration
	Level       string
	Partitions  int
	MetricsAddr string
	Once        bool
	KeepRecords bool
	NoNotify    bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <input-dir>",
		Short: "Evaluate standing queries against every new batch file",
		Long: `Watch a directory and evaluate the standing queries against every file
that appears in it. Each file is one batch; its total and query results are
written to the SQLite result store.

Files already in the directory are processed first. Dot-files are ignored,
so writers should stage files under a leading dot and rename them.

Examples:
  flexstream run --db results.db --queries queries.yaml ./incoming
  flexstream run --db results.db --queries ./queries --level scan --once ./incoming
  flexstream run --db results.db --queries q.cue --metrics-addr :9090 ./incoming`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScheduler(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite result store (required)")
	cmd.Flags().StringSliceVarP(&opts.Queries, "queries", "q", nil, "query files or directories (required)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", watcher.DefaultInterval, "directory poll interval")
	cmd.Flags().StringVar(&opts.Level, "level", string(lazy.LevelAggregate), "optimization level (plain|subquery|scan|aggregate)")
	cmd.Flags().IntVar(&opts.Partitions, "partitions", dataset.DefaultPartitions, "dataset partitions per batch")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "process the files present now and exit")
	cmd.Flags().BoolVar(&opts.KeepRecords, "keep-records", false, "store parsed records alongside results")
	cmd.Flags().BoolVar(&opts.NoNotify, "no-notify", false, "poll only, without filesystem notifications")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("queries")

	return cmd
}

// RunSummary is printed by run --once.
type RunSummary struct {
	Processed int    `json:"processed"`
	Failed    bool   `json:"failed"`
	Error     string `json:"error,omitempty"`
}

func runScheduler(opts *RunOptions, dir string, cmd *cobra.Command) error {
	out := newFormatter(cmd, opts.RootOptions)

	level, err := lazy.ParseLevel(opts.Level)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --level", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("input directory not found: %s", dir))
	}
	queries, err := loadQueriesOrFail(opts.Queries)
	if err != nil {
		return err
	}

	slog.Info("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	// Resume batch numbering after what the store already holds.
	lastSeq, err := st.MaxSeq(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read store", err)
	}
	proc, err := scheduler.NewProcessor(queries,
		scheduler.WithLevel(level),
		scheduler.WithPartitions(opts.Partitions),
		scheduler.WithStartSeq(lastSeq),
		scheduler.WithKeepRecords(opts.KeepRecords),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid queries", err)
	}
	sched := scheduler.New(proc, scheduler.Publishers{
		scheduler.StorePublisher{Store: st},
		scheduler.LogPublisher{},
	})

	if opts.MetricsAddr != "" {
		stop, err := serveMetrics(opts.MetricsAddr)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start metrics server", err)
		}
		defer stop()
	}

	w := watcher.New(dir, watcher.WithInterval(opts.Interval), watcher.WithNotify(!opts.NoNotify))

	if opts.Once {
		changes, err := w.Scan()
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to scan input directory", err)
		}
		sched.OnChanges(dir)(changes)
		processed, drainErr := sched.Drain(ctx)
		summary := RunSummary{Processed: processed, Failed: drainErr != nil}
		if drainErr != nil {
			summary.Error = drainErr.Error()
		}
		if err := out.Emit(summary, func(w io.Writer) {
			fmt.Fprintf(w, "Processed %d batch(es) from %s\n", processed, filepath.Clean(dir))
		}); err != nil {
			return err
		}
		if drainErr != nil {
			return WrapExitError(ExitFailure, "one or more batches failed", drainErr)
		}
		return nil
	}

	out.VerboseLog("Watching %s. Press Ctrl-C to stop.", dir)
	if err := sched.Run(ctx, w); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "scheduler error", err)
	}
	return nil
}

// signalContext derives a context from the command's context that is
// cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// serveMetrics exposes the default Prometheus registry on addr.
func serveMetrics(addr string) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	slog.Info("serving metrics", "addr", ln.Addr().String())
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
