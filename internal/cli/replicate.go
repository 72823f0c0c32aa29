package cli

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/docsync/internal/replication"
)

// ReplicateOptions holds flags for the replicate command.
type ReplicateOptions struct {
	*RootOptions
	Source     string
	Target     string
	Continuous bool
}

// StatusEvent is printed for every replication status transition.
type StatusEvent struct {
	Replicator string `json:"replicator"`
	Status     string `json:"status"`
}

func (e StatusEvent) Text() string {
	return fmt.Sprintf("status %s\n", e.Status)
}

// NewReplicateCommand creates the replicate command.
func NewReplicateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplicateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replicate",
		Short: "Copy revisions from one database into another",
		Long: `Pull every revision of the source database into the target,
printing each replication status transition.

A one-shot run stops once the target has caught up. With --continuous the
replicator follows the source until SIGINT or SIGTERM.

Example:
  docsync replicate --source ./a.db --target ./b.db
  docsync replicate --source ./a.db --target ./b.db --continuous`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplicate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Source, "source", "", "path to source SQLite database (required)")
	cmd.Flags().StringVar(&opts.Target, "target", "", "path to target SQLite database (required)")
	cmd.Flags().BoolVar(&opts.Continuous, "continuous", false, "keep following the source")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func runReplicate(opts *ReplicateOptions, cmd *cobra.Command) error {
	source, err := openDatabase(opts.RootOptions, opts.Source)
	if err != nil {
		return err
	}
	defer closeDatabase(source)
	target, err := openDatabase(opts.RootOptions, opts.Target)
	if err != nil {
		return err
	}
	defer closeDatabase(target)

	rc := opts.Config.Replication
	rep := target.CreatePullReplication(source,
		replication.WithContinuous(opts.Continuous),
		replication.WithBatchSize(rc.BatchSize),
		replication.WithBackoff(rc.MinBackoff, rc.MaxBackoff),
	)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	out := opts.formatter(cmd)
	stopped := make(chan struct{})
	var once sync.Once
	var (
		mu       sync.Mutex
		detached bool // set once the listener is removed
	)
	handle, err := target.AddReplicationStatusListener(ctx, rep, func(s replication.Status) {
		mu.Lock()
		if !detached {
			_ = out.Success(StatusEvent{Replicator: rep.ID(), Status: s.String()})
		}
		mu.Unlock()
		if s == replication.Stopped {
			once.Do(func() { close(stopped) })
		}
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to monitor replication", err)
	}

	if err := rep.Start(ctx); err != nil {
		_ = target.RemoveReplicationStatusListener(handle)
		return WrapExitError(ExitCommandError, "failed to start replication", err)
	}
	slog.Info("replication started", "id", rep.ID(), "source", opts.Source, "target", opts.Target,
		"continuous", opts.Continuous)

	var g errgroup.Group
	g.Go(func() error {
		select {
		case <-stopped:
		case <-ctx.Done():
			rep.Stop()
		}
		err := target.RemoveReplicationStatusListener(handle)
		mu.Lock()
		detached = true
		mu.Unlock()
		return err
	})
	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "replication monitor", err)
	}

	if err := rep.LastError(); err != nil {
		return WrapExitError(ExitFailure, "replication failed", err)
	}
	return nil
}
