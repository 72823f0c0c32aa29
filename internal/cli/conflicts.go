package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/docsync/internal/props"
	"github.com/roach88/docsync/internal/revtree"
	"github.com/roach88/docsync/internal/store"
)

// ConflictsOptions holds flags for the conflicts command.
type ConflictsOptions struct {
	*RootOptions
	Database string
}

// LeafInfo describes one live leaf of a conflicted document.
type LeafInfo struct {
	Rev        string       `json:"rev"`
	Generation int          `json:"generation"`
	Properties props.Object `json:"properties"`
}

// ConflictInfo is a conflicted document and its leaves in winner order.
type ConflictInfo struct {
	Doc    string     `json:"doc"`
	Leaves []LeafInfo `json:"leaves"`
}

// ConflictsResult is the output of the conflicts command.
type ConflictsResult struct {
	Documents []ConflictInfo `json:"documents"`
	Total     int            `json:"total"`
}

func (r ConflictsResult) Text() string {
	if r.Total == 0 {
		return "No conflicted documents.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d conflicted document(s)\n", r.Total)
	for _, d := range r.Documents {
		fmt.Fprintf(&b, "%s (%d leaves)\n", d.Doc, len(d.Leaves))
		for i, l := range d.Leaves {
			marker := " "
			if i == 0 {
				marker = "*"
			}
			body, _ := props.MarshalCanonical(l.Properties)
			fmt.Fprintf(&b, "  %s %s %s\n", marker, l.Rev, body)
		}
	}
	return b.String()
}

// NewConflictsCommand creates the conflicts command.
func NewConflictsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConflictsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List conflicted documents",
		Long: `List every document with more than one live leaf revision.

The winning leaf of each document is marked with '*'.

Example:
  docsync conflicts --db ./docs.db
  docsync conflicts --db ./docs.db --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConflicts(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	return cmd
}

func runConflicts(opts *ConflictsOptions, cmd *cobra.Command) error {
	db, err := openDatabase(opts.RootOptions, pick(opts.Database, opts.Config.DB))
	if err != nil {
		return err
	}
	defer closeDatabase(db)

	result, err := listConflicts(cmd.Context(), db.Store())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list conflicts", err)
	}
	return opts.formatter(cmd).Success(result)
}

func listConflicts(ctx context.Context, st *store.Store) (ConflictsResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ids, err := st.ConflictedDocuments(ctx)
	if err != nil {
		return ConflictsResult{}, err
	}
	result := ConflictsResult{Documents: make([]ConflictInfo, 0, len(ids)), Total: len(ids)}
	for _, id := range ids {
		leaves, err := st.GetLeafRevisions(ctx, id)
		if err != nil {
			return ConflictsResult{}, err
		}
		result.Documents = append(result.Documents, ConflictInfo{Doc: id, Leaves: leafInfos(leaves)})
	}
	return result, nil
}

func leafInfos(leaves []*revtree.SavedRevision) []LeafInfo {
	out := make([]LeafInfo, 0, len(leaves))
	for _, l := range leaves {
		out = append(out, LeafInfo{
			Rev:        l.ID().String(),
			Generation: l.ID().Generation,
			Properties: l.UserProperties(),
		})
	}
	return out
}
