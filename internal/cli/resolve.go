package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/docsync/internal/conflict"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	Database string
	Policy   string
}

// ResolveOutcome reports one document.
type ResolveOutcome struct {
	Doc    string   `json:"doc"`
	Status string   `json:"status"`
	Leaves int      `json:"leaves"`
	Saved  []string `json:"saved,omitempty"`
	Code   string   `json:"code,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// ResolveResult is the output of the resolve command.
type ResolveResult struct {
	Policy   string           `json:"policy"`
	Outcomes []ResolveOutcome `json:"outcomes"`
	Resolved int              `json:"resolved"`
	Failed   int              `json:"failed"`
	Skipped  int              `json:"skipped"`
}

func (r ResolveResult) Text() string {
	var b strings.Builder
	for _, o := range r.Outcomes {
		switch o.Status {
		case conflict.StatusFailed.String():
			fmt.Fprintf(&b, "x %s: %s\n", o.Doc, o.Error)
		case conflict.StatusResolved.String():
			fmt.Fprintf(&b, "+ %s (%d leaves, %d revisions saved)\n", o.Doc, o.Leaves, len(o.Saved))
		default:
			fmt.Fprintf(&b, "- %s skipped\n", o.Doc)
		}
	}
	fmt.Fprintf(&b, "policy %s: %d resolved, %d failed, %d skipped\n", r.Policy, r.Resolved, r.Failed, r.Skipped)
	return b.String()
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve every conflicted document once",
		Long: `Resolve every currently conflicted document with a resolution policy.

Without --policy the winning leaf is kept and every other leaf is
tombstoned.

Exit codes:
  0 - Every conflicted document was resolved or skipped
  1 - One or more documents failed to resolve
  2 - Command error (invalid database or policy)

Examples:
  docsync resolve --db ./docs.db
  docsync resolve --db ./docs.db --policy ./policy.cue --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "path to CUE resolution policy (default from config)")
	return cmd
}

func runResolve(opts *ResolveOptions, cmd *cobra.Command) error {
	pol, err := loadPolicy(pick(opts.Policy, opts.Config.Policy))
	if err != nil {
		return err
	}
	db, err := openDatabase(opts.RootOptions, pick(opts.Database, opts.Config.DB))
	if err != nil {
		return err
	}
	defer closeDatabase(db)

	resolver, err := db.NewResolver(pol.Func())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create resolver", err)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	outcomes, err := resolver.ResolveAll(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "resolution aborted", err)
	}

	result := ResolveResult{Policy: pol.Name(), Outcomes: make([]ResolveOutcome, 0, len(outcomes))}
	for _, o := range outcomes {
		result.Outcomes = append(result.Outcomes, toResolveOutcome(o))
		switch o.Status {
		case conflict.StatusResolved:
			result.Resolved++
		case conflict.StatusFailed:
			result.Failed++
		default:
			result.Skipped++
		}
	}

	if err := opts.formatter(cmd).Success(result); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d document(s) failed to resolve", result.Failed))
	}
	return nil
}

func toResolveOutcome(o conflict.Outcome) ResolveOutcome {
	out := ResolveOutcome{Doc: o.DocumentID, Status: o.Status.String(), Leaves: o.Leaves}
	for _, id := range o.Saved {
		out.Saved = append(out.Saved, id.String())
	}
	if o.Err != nil {
		out.Error = o.Err.Error()
		out.Code = errorCode(o.Err)
	}
	return out
}
