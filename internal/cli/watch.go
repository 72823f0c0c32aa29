package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Database    string
	Policy      string
	MetricsAddr string
}

// WatchEvent is printed for every resolution callback.
type WatchEvent struct {
	Doc     string `json:"doc"`
	Outcome string `json:"outcome"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (e WatchEvent) Text() string {
	if e.Error != "" {
		return fmt.Sprintf("%s %s: %s\n", e.Outcome, e.Doc, e.Error)
	}
	return fmt.Sprintf("%s %s\n", e.Outcome, e.Doc)
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Resolve conflicts continuously",
		Long: `Register a conflicts listener on the database and resolve every
conflicted document as it appears, until SIGINT or SIGTERM.

With --metrics-addr, Prometheus metrics are served at /metrics.

Example:
  docsync watch --db ./docs.db --policy ./policy.cue
  docsync watch --db ./docs.db --metrics-addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "path to CUE resolution policy (default from config)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "listen address for /metrics (default from config)")
	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	pol, err := loadPolicy(pick(opts.Policy, opts.Config.Policy))
	if err != nil {
		return err
	}
	db, err := openDatabase(opts.RootOptions, pick(opts.Database, opts.Config.DB))
	if err != nil {
		return err
	}
	defer closeDatabase(db)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	out := opts.formatter(cmd)
	var mu sync.Mutex
	emit := func(e WatchEvent) {
		mu.Lock()
		defer mu.Unlock()
		_ = out.Success(e)
	}

	handle, err := db.AddConflictsListener(ctx, pol.Func(),
		func(docID string) {
			emit(WatchEvent{Doc: docID, Outcome: "resolved"})
		},
		func(docID string, err error) {
			slog.Warn("resolution failed", "doc", docID, "error", err)
			emit(WatchEvent{Doc: docID, Outcome: "failed", Code: errorCode(err), Error: err.Error()})
		},
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to register conflicts listener", err)
	}
	slog.Info("watching for conflicts", "db", db.Store().Path(), "policy", pol.Name())
	out.Progress("Watching %s with policy %s. Press Ctrl-C to stop.", db.Store().Path(), pol.Name())

	g, gctx := errgroup.WithContext(ctx)

	if addr := pick(opts.MetricsAddr, opts.Config.Metrics.Addr); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			slog.Info("serving metrics", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return db.RemoveConflictsListener(handle)
	})

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "watch stopped", err)
	}
	slog.Info("watch stopped")
	return nil
}
