package cli

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/flexstream/internal/ingest"
)

// ListenOptions holds flags for the listen command.
type ListenOptions struct {
	*RootOptions
	Addr        string
	Dir         string
	Prefix      string
	Suffix      string
	Window      time.Duration
	MetricsAddr string

	// OnListen is called with the bound address once the listener is up
	// (for testing).
	OnListen func(net.Addr)
}

// NewListenCommand creates the listen command.
func NewListenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Receive JSON records over TCP into windowed batch files",
		Long: `Accept newline-delimited JSON objects over TCP and append them to
<prefix>-<unix-ms>.<suffix> files in --dir, starting a new file every
--window. Files are written under a leading dot and renamed when their
window closes, so "flexstream run" on the same directory only ever sees
complete batches. Windows that receive nothing produce no file.

Examples:
  flexstream listen --dir ./incoming
  flexstream listen --addr :7070 --dir ./incoming --window 30s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", ":7070", "TCP address to listen on")
	cmd.Flags().StringVar(&opts.Dir, "dir", "", "directory to write batch files to (required)")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", ingest.DefaultPrefix, "batch file name prefix")
	cmd.Flags().StringVar(&opts.Suffix, "suffix", ingest.DefaultSuffix, "batch file name suffix")
	cmd.Flags().DurationVar(&opts.Window, "window", ingest.DefaultWindow, "length of one batch window")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	_ = cmd.MarkFlagRequired("dir")

	return cmd
}

func runListen(opts *ListenOptions, cmd *cobra.Command) error {
	if opts.Window <= 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--window must be positive, got %s", opts.Window))
	}

	w, err := ingest.NewWriter(ingest.Config{
		Dir:    opts.Dir,
		Prefix: opts.Prefix,
		Suffix: opts.Suffix,
		Window: opts.Window,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open batch writer", err)
	}

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		_ = w.Close()
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	if opts.MetricsAddr != "" {
		stop, err := serveMetrics(opts.MetricsAddr)
		if err != nil {
			_ = ln.Close()
			_ = w.Close()
			return WrapExitError(ExitCommandError, "failed to start metrics server", err)
		}
		defer stop()
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	slog.Info("ingest listening", "addr", ln.Addr().String(), "dir", opts.Dir, "window", opts.Window)
	if opts.OnListen != nil {
		opts.OnListen(ln.Addr())
	}

	if err := ingest.NewServer(w).Serve(ctx, ln); err != nil {
		return WrapExitError(ExitFailure, "ingest failed", err)
	}
	slog.Info("ingest stopped")
	return nil
}
