package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/docsync/internal/conflict"
	"github.com/roach88/docsync/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Config is loaded before any subcommand runs.
	Config config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the docsync CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docsync",
		Short: "docsync - conflict resolution for replicated documents",
		Long: `docsync stores JSON documents in SQLite, replicates them between
databases and resolves the conflicts that concurrent edits create, using a
CUE resolution policy.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			opts.Config = cfg
			return setupLogging(opts, cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file (default $"+config.EnvConfig+")")

	cmd.AddCommand(NewConflictsCommand(opts))
	cmd.AddCommand(NewResolveCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewReplicateCommand(opts))
	cmd.AddCommand(NewDocCommand(opts))
	cmd.AddCommand(NewScenarioCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) formatter(cmd *cobra.Command) *Printer {
	return &Printer{
		Format:  o.Format,
		Out:     cmd.OutOrStdout(),
		Diag:    cmd.ErrOrStderr(),
		Verbose: o.Verbose,
	}
}

// Execute runs the CLI with args and returns the process exit code. Errors
// are rendered in the selected output format.
func Execute(args []string, stdout, stderr io.Writer) int {
	opts := &RootOptions{Format: "text"}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}
	format := opts.Format
	if !isValidFormat(format) {
		format = "text"
	}
	out := stderr
	if format == "json" {
		out = stdout
	}
	p := &Printer{Format: format, Out: out, Verbose: opts.Verbose}
	_ = p.Error(errorCode(err), err.Error(), nil)
	return ExitCodeOf(err)
}

// errorCode returns the conflict error code carried by err, if any.
func errorCode(err error) string {
	var cerr *conflict.Error
	if errors.As(err, &cerr) {
		return string(cerr.Code)
	}
	if ExitCodeOf(err) == ExitCommandError {
		return "E_COMMAND"
	}
	return "E_FAILURE"
}
