package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/docsync/internal/props"
	"github.com/roach88/docsync/internal/revtree"
	"github.com/roach88/docsync/internal/store"
)

// DocOptions holds flags shared by the doc subcommands.
type DocOptions struct {
	*RootOptions
	Database string
	History  bool
}

// DocResult describes a document's winning revision.
type DocResult struct {
	ID         string       `json:"id"`
	Rev        string       `json:"rev"`
	Deleted    bool         `json:"deleted,omitempty"`
	Conflicts  int          `json:"conflicts,omitempty"`
	Properties props.Object `json:"properties"`
	History    []string     `json:"history,omitempty"`
}

func (r DocResult) Text() string {
	body, _ := props.MarshalCanonical(r.Properties)
	s := fmt.Sprintf("%s %s %s\n", r.ID, r.Rev, body)
	if r.Deleted {
		s = fmt.Sprintf("%s %s deleted\n", r.ID, r.Rev)
	}
	if r.Conflicts > 0 {
		s += fmt.Sprintf("  %d conflicting leaf revision(s)\n", r.Conflicts)
	}
	if len(r.History) > 0 {
		s += fmt.Sprintf("  history %s\n", strings.Join(r.History, " "))
	}
	return s
}

// NewDocCommand creates the doc command and its put, get and delete
// subcommands.
func NewDocCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DocOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Read and write documents",
		Long: `Read and write single documents.

Examples:
  docsync doc put --db ./docs.db greeting '{"text":"hello"}'
  docsync doc get --db ./docs.db greeting
  docsync doc get --db ./docs.db greeting --history
  docsync doc delete --db ./docs.db greeting`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")

	cmd.AddCommand(&cobra.Command{
		Use:   "put <id> <json>",
		Short: "Create a document or update its winning revision",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := props.DecodeObject([]byte(args[1]))
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid document body", err)
			}
			return withDocStore(opts, cmd, func(ctx context.Context, st *store.Store) (*revtree.SavedRevision, error) {
				return st.PutDocument(ctx, args[0], body)
			})
		},
	})
	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Print a document's winning revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDocStore(opts, cmd, func(ctx context.Context, st *store.Store) (*revtree.SavedRevision, error) {
				return st.GetDocument(ctx, args[0])
			})
		},
	}
	get.Flags().BoolVar(&opts.History, "history", false, "also print the winner's ancestry, newest first")
	cmd.AddCommand(get)
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Tombstone a document's winning revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDocStore(opts, cmd, func(ctx context.Context, st *store.Store) (*revtree.SavedRevision, error) {
				current, err := st.GetDocument(ctx, args[0])
				if err != nil {
					return nil, err
				}
				return st.DeleteDocument(ctx, args[0], current.ID())
			})
		},
	})

	return cmd
}

func withDocStore(opts *DocOptions, cmd *cobra.Command, op func(context.Context, *store.Store) (*revtree.SavedRevision, error)) error {
	db, err := openDatabase(opts.RootOptions, pick(opts.Database, opts.Config.DB))
	if err != nil {
		return err
	}
	defer closeDatabase(db)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rev, err := op(ctx, db.Store())
	switch {
	case errors.Is(err, store.ErrNotFound):
		return WrapExitError(ExitFailure, "document not found", err)
	case errors.Is(err, store.ErrUpdateConflict):
		return WrapExitError(ExitFailure, "document already deleted", err)
	case err != nil:
		return WrapExitError(ExitCommandError, "document operation failed", err)
	}

	leaves, err := db.Store().GetLeafRevisions(ctx, rev.DocumentID())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read leaves", err)
	}
	result := DocResult{
		ID:         rev.DocumentID(),
		Rev:        rev.ID().String(),
		Deleted:    rev.IsDeletion(),
		Properties: rev.UserProperties(),
	}
	if len(leaves) > 1 {
		result.Conflicts = len(leaves) - 1
	}
	if opts.History {
		history, err := winnerHistory(ctx, db.Store(), rev.DocumentID())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read history", err)
		}
		result.History = history
	}
	return opts.formatter(cmd).Success(result)
}

// winnerHistory walks the revision tree from the winner back to the root.
func winnerHistory(ctx context.Context, st *store.Store, docID string) ([]string, error) {
	tree, err := st.RevisionTree(ctx, docID)
	if err != nil {
		return nil, err
	}
	winner := tree.Winner()
	if winner == nil {
		return nil, fmt.Errorf("document %q has no leaves", docID)
	}
	ids, err := tree.History(winner.ID())
	if err != nil {
		return nil, err
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out, nil
}
