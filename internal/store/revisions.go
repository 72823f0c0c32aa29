package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/docsync/internal/props"
	"github.com/roach88/docsync/internal/revtree"
)

// querier is satisfied by both *sql.DB and *sql.Tx, so every read and write
// helper works inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// readLeaves returns the document's leaves as readers see them.
func readLeaves(ctx context.Context, q querier, docID string) ([]*revtree.SavedRevision, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+revColumns+`
		FROM revs
		WHERE doc_id = ? AND leaf = 1
		ORDER BY generation DESC, digest DESC
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("query leaves of %q: %w", docID, err)
	}
	defer rows.Close()

	var leaves []*revtree.SavedRevision
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leaves of %q: %w", docID, err)
	}

	if len(leaves) == 0 {
		return nil, fmt.Errorf("document %q: %w", docID, ErrNotFound)
	}
	return revtree.SelectLeaves(leaves), nil
}

// readRevision returns one stored revision.
func readRevision(ctx context.Context, q querier, docID string, id revtree.RevisionID) (*revtree.SavedRevision, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+revColumns+`
		FROM revs
		WHERE doc_id = ? AND rev_id = ?
	`, docID, id.String())
	rev, err := scanRevision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("revision %s of %q: %w", id, docID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read revision %s of %q: %w", id, docID, err)
	}
	return rev, nil
}

// revisionExists reports whether docID has a revision with the given id.
func revisionExists(ctx context.Context, q querier, docID string, id revtree.RevisionID) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM revs WHERE doc_id = ? AND rev_id = ?
	`, docID, id.String()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check revision %s of %q: %w", id, docID, err)
	}
	return n > 0, nil
}

// documentExists reports whether docID has any revision.
func documentExists(ctx context.Context, q querier, docID string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM revs WHERE doc_id = ?
	`, docID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check document %q: %w", docID, err)
	}
	return n > 0, nil
}

// insertRevision appends a revision and clears its parent's leaf flag.
// The parent, when set, must exist. source is "" for local writes and the
// origin store id for replicated ones.
func insertRevision(ctx context.Context, q querier, docID string, id, parent revtree.RevisionID, deleted bool, body props.Object, source string) (*revtree.SavedRevision, error) {
	exists, err := revisionExists(ctx, q, docID, id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("revision %s of %q: %w", id, docID, ErrRevisionExists)
	}

	if !parent.IsZero() {
		ok, err := revisionExists(ctx, q, docID, parent)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("revision %s of %q: parent %s: %w", id, docID, parent, ErrMissingParent)
		}
	}

	if deleted {
		body = props.Object{}
	}
	propsJSON, err := marshalProperties(body)
	if err != nil {
		return nil, fmt.Errorf("revision %s of %q: %w", id, docID, err)
	}

	result, err := q.ExecContext(ctx, `
		INSERT INTO revs
		(doc_id, rev_id, generation, digest, parent_rev_id, deleted, leaf, properties, source)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
	`,
		docID,
		id.String(),
		id.Generation,
		id.Digest,
		nullableRevID(parent),
		deleted,
		propsJSON,
		source,
	)
	if err != nil {
		return nil, fmt.Errorf("insert revision %s of %q: %w", id, docID, err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert revision %s of %q: %w", id, docID, err)
	}

	if !parent.IsZero() {
		if _, err := q.ExecContext(ctx, `
			UPDATE revs SET leaf = 0 WHERE doc_id = ? AND rev_id = ?
		`, docID, parent.String()); err != nil {
			return nil, fmt.Errorf("clear leaf flag on %s of %q: %w", parent, docID, err)
		}
	}

	return revtree.NewSavedRevision(docID, id, parent, deleted, body, seq), nil
}

// saveUnsaved computes the id of rev and stores it as a new leaf.
func saveUnsaved(ctx context.Context, q querier, rev *revtree.UnsavedRevision, source string) (*revtree.SavedRevision, error) {
	if rev.DocumentID() == "" {
		return nil, errors.New("save revision: empty document id")
	}
	id, err := rev.NextID()
	if err != nil {
		return nil, fmt.Errorf("save revision: %w", err)
	}
	return insertRevision(ctx, q, rev.DocumentID(), id, rev.ParentID(), rev.IsDeletion(), rev.Properties(), source)
}

// GetRevision returns one stored revision, leaf or not.
func (s *Store) GetRevision(ctx context.Context, docID string, id revtree.RevisionID) (*revtree.SavedRevision, error) {
	return readRevision(ctx, s.db, docID, id)
}

// GetDocument returns the document's current winning revision. A deleted
// document returns its winning tombstone.
func (s *Store) GetDocument(ctx context.Context, docID string) (*revtree.SavedRevision, error) {
	leaves, err := readLeaves(ctx, s.db, docID)
	if err != nil {
		return nil, err
	}
	return leaves[0], nil
}

// RevisionTree loads every revision of the document into a revtree.Tree.
func (s *Store) RevisionTree(ctx context.Context, docID string) (*revtree.Tree, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+revColumns+`
		FROM revs
		WHERE doc_id = ?
		ORDER BY generation ASC, seq ASC
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("query revisions of %q: %w", docID, err)
	}
	defer rows.Close()

	var revs []*revtree.SavedRevision
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		revs = append(revs, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revisions of %q: %w", docID, err)
	}
	if len(revs) == 0 {
		return nil, fmt.Errorf("document %q: %w", docID, ErrNotFound)
	}
	return revtree.BuildTree(docID, revs)
}

// CreateDocument stores the first revision of a new document.
func (s *Store) CreateDocument(ctx context.Context, docID string, body props.Object) (*revtree.SavedRevision, error) {
	var saved *revtree.SavedRevision
	err := s.write(ctx, func(tx *sql.Tx) error {
		exists, err := documentExists(ctx, tx, docID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("create %q: %w", docID, ErrDocumentExists)
		}
		saved, err = saveUnsaved(ctx, tx, revtree.NewUnsavedRevision(docID, revtree.RevisionID{}, body), "")
		return err
	})
	return saved, err
}

// UpdateDocument stores body as a child of parent. parent must be one of the
// document's current live leaves.
func (s *Store) UpdateDocument(ctx context.Context, docID string, parent revtree.RevisionID, body props.Object) (*revtree.SavedRevision, error) {
	return s.updateLeaf(ctx, docID, parent, func(u *revtree.UnsavedRevision) {
		u.SetProperties(body)
	})
}

// DeleteDocument stores a tombstone as a child of parent. parent must be one
// of the document's current live leaves.
func (s *Store) DeleteDocument(ctx context.Context, docID string, parent revtree.RevisionID) (*revtree.SavedRevision, error) {
	return s.updateLeaf(ctx, docID, parent, func(u *revtree.UnsavedRevision) {
		u.SetDeletion(true)
	})
}

// PutDocument creates the document, or updates its current winner.
func (s *Store) PutDocument(ctx context.Context, docID string, body props.Object) (*revtree.SavedRevision, error) {
	var saved *revtree.SavedRevision
	err := s.write(ctx, func(tx *sql.Tx) error {
		leaves, err := readLeaves(ctx, tx, docID)
		var parent revtree.RevisionID
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return err
		default:
			parent = leaves[0].ID()
		}
		saved, err = saveUnsaved(ctx, tx, revtree.NewUnsavedRevision(docID, parent, body), "")
		return err
	})
	return saved, err
}

func (s *Store) updateLeaf(ctx context.Context, docID string, parent revtree.RevisionID, edit func(*revtree.UnsavedRevision)) (*revtree.SavedRevision, error) {
	var saved *revtree.SavedRevision
	err := s.write(ctx, func(tx *sql.Tx) error {
		leaves, err := readLeaves(ctx, tx, docID)
		if err != nil {
			return err
		}
		var base *revtree.SavedRevision
		for _, leaf := range leaves {
			if leaf.ID() == parent && !leaf.IsDeletion() {
				base = leaf
				break
			}
		}
		if base == nil {
			return fmt.Errorf("%q at %s: %w", docID, parent, ErrUpdateConflict)
		}
		next := base.CreateRevision()
		edit(next)
		saved, err = saveUnsaved(ctx, tx, next, "")
		return err
	})
	return saved, err
}

// InsertRevision stores a revision copied from another store, keeping its
// id. It returns false without error when the revision is already present.
// The parent must already be stored.
func (s *Store) InsertRevision(ctx context.Context, rev *revtree.SavedRevision, source string) (bool, error) {
	inserted := false
	err := s.write(ctx, func(tx *sql.Tx) error {
		exists, err := revisionExists(ctx, tx, rev.DocumentID(), rev.ID())
		if err != nil || exists {
			return err
		}
		parent, _ := rev.ParentID()
		if _, err := insertRevision(ctx, tx, rev.DocumentID(), rev.ID(), parent, rev.IsDeletion(), rev.UserProperties(), source); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	return inserted, err
}

// write runs fn in a transaction and wakes subscribers after commit.
func (s *Store) write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if s.isClosed() {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.notify()
	return nil
}
