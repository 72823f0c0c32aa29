package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/docsync/internal/config"
	"github.com/roach88/docsync/internal/database"
	"github.com/roach88/docsync/internal/policy"
)

// setupLogging installs the default slog handler. --verbose forces debug.
func setupLogging(opts *RootOptions, w io.Writer) error {
	level, err := config.ParseLevel(opts.Config.Log.Level)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid log level", err)
	}
	if opts.Verbose {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if opts.Config.Log.Format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// pick returns flag when set, else the configured value.
func pick(flag, configured string) string {
	if flag != "" {
		return flag
	}
	return configured
}

// openDatabase opens path with the configured resolve timeout.
func openDatabase(opts *RootOptions, path string) (*database.Database, error) {
	if path == "" {
		return nil, NewExitError(ExitCommandError, "database path is required (--db or config db)")
	}
	db, err := database.Open(path,
		database.WithLogger(slog.Default()),
		database.WithResolveTimeout(opts.Config.ResolveTimeout),
	)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return db, nil
}

func closeDatabase(db *database.Database) {
	if err := db.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// loadPolicy compiles path, or returns the built-in winner policy.
func loadPolicy(path string) (*policy.Policy, error) {
	if path == "" {
		return policy.Default(), nil
	}
	pol, err := policy.LoadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load policy", err)
	}
	return pol, nil
}

// signalContext is cancelled on SIGINT or SIGTERM, or when parent is done.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
