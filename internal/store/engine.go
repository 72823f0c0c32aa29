package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/docsync/internal/engine"
	"github.com/roach88/docsync/internal/revtree"
)

var _ engine.Engine = (*Store)(nil)

// GetLeafRevisions implements engine.Engine. Every call re-reads the store.
func (s *Store) GetLeafRevisions(ctx context.Context, docID string) ([]*revtree.SavedRevision, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	return readLeaves(ctx, s.db, docID)
}

// CreateRevision implements engine.Engine.
func (s *Store) CreateRevision(saved *revtree.SavedRevision) *revtree.UnsavedRevision {
	return saved.CreateRevision()
}

// SaveAllowingConflict implements engine.Engine. The revision becomes a new
// leaf whether or not its parent is the current winner.
func (s *Store) SaveAllowingConflict(ctx context.Context, rev *revtree.UnsavedRevision) (*revtree.SavedRevision, error) {
	var saved *revtree.SavedRevision
	err := s.write(ctx, func(tx *sql.Tx) error {
		var err error
		saved, err = saveUnsaved(ctx, tx, rev, "")
		return err
	})
	return saved, err
}

// RunInTransaction implements engine.Engine. The transaction commits iff
// work returns nil.
func (s *Store) RunInTransaction(ctx context.Context, work func(tx engine.Tx) error) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		return work(&txView{tx: tx})
	})
}

// ConflictedDocuments implements engine.Engine.
func (s *Store) ConflictedDocuments(ctx context.Context) ([]string, error) {
	set, err := s.conflictSet(ctx)
	if err != nil {
		return nil, err
	}
	return revtree.DiffConflictSets(nil, set), nil
}

// txView is the engine.Tx handed to RunInTransaction work.
type txView struct {
	tx *sql.Tx
}

func (v *txView) GetLeafRevisions(ctx context.Context, docID string) ([]*revtree.SavedRevision, error) {
	return readLeaves(ctx, v.tx, docID)
}

func (v *txView) SaveAllowingConflict(ctx context.Context, rev *revtree.UnsavedRevision) (*revtree.SavedRevision, error) {
	return saveUnsaved(ctx, v.tx, rev, "")
}

// conflictSet evaluates the conflicts query: every document with more than
// one live leaf, mapped to its leaf signature.
func (s *Store) conflictSet(ctx context.Context) (map[string]string, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, rev_id
		FROM revs
		WHERE leaf = 1 AND deleted = 0 AND doc_id IN (
			SELECT doc_id
			FROM revs
			WHERE leaf = 1 AND deleted = 0
			GROUP BY doc_id
			HAVING COUNT(*) > 1
		)
		ORDER BY doc_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query conflicts: %w", err)
	}
	defer rows.Close()

	leaves := make(map[string][]revtree.RevisionID)
	for rows.Next() {
		var docID, revID string
		if err := rows.Scan(&docID, &revID); err != nil {
			return nil, fmt.Errorf("scan conflict row: %w", err)
		}
		id, err := revtree.ParseRevisionID(revID)
		if err != nil {
			return nil, fmt.Errorf("doc %q: %w", docID, err)
		}
		leaves[docID] = append(leaves[docID], id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conflicts: %w", err)
	}

	set := make(map[string]string, len(leaves))
	for docID, ids := range leaves {
		set[docID] = revtree.SignatureOf(ids)
	}
	return set, nil
}
