package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/docsync/internal/revtree"
)

// Change describes one stored revision in the changes feed.
type Change struct {
	Seq        int64
	DocumentID string
	RevisionID revtree.RevisionID
	Deleted    bool
	// Current is true when the revision is the document's winner now.
	Current bool
	// Conflict is true when the document has more than one live leaf now.
	Conflict bool
	// Source is the origin store id for replicated revisions, "" for local
	// writes.
	Source string
}

// LastSequence returns the highest change sequence, or 0 for an empty store.
func (s *Store) LastSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM revs`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last sequence: %w", err)
	}
	return seq.Int64, nil
}

// RevisionsSince returns up to limit revisions with seq > since, in sequence
// order. A limit <= 0 means no limit.
func (s *Store) RevisionsSince(ctx context.Context, since int64, limit int) ([]*revtree.SavedRevision, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+revColumns+`
		FROM revs
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query revisions since %d: %w", since, err)
	}
	defer rows.Close()

	revs := []*revtree.SavedRevision{}
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		revs = append(revs, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revisions since %d: %w", since, err)
	}
	return revs, nil
}

// ChangesSince returns the changes feed after since, in sequence order. The
// Current and Conflict flags reflect the state at the time of the call.
func (s *Store) ChangesSince(ctx context.Context, since int64) ([]Change, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, doc_id, rev_id, deleted, source
		FROM revs
		WHERE seq > ?
		ORDER BY seq ASC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("query changes since %d: %w", since, err)
	}

	var changes []Change
	for rows.Next() {
		var (
			c     Change
			revID string
		)
		if err := rows.Scan(&c.Seq, &c.DocumentID, &revID, &c.Deleted, &c.Source); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan change: %w", err)
		}
		if c.RevisionID, err = revtree.ParseRevisionID(revID); err != nil {
			rows.Close()
			return nil, err
		}
		changes = append(changes, c)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("iterate changes since %d: %w", since, err)
	}

	// Leaves are read after the rows are closed: the pool has one connection.
	leaves := make(map[string][]*revtree.SavedRevision)
	for i := range changes {
		c := &changes[i]
		docLeaves, ok := leaves[c.DocumentID]
		if !ok {
			docLeaves, err = readLeaves(ctx, s.db, c.DocumentID)
			if err != nil {
				return nil, err
			}
			leaves[c.DocumentID] = docLeaves
		}
		c.Current = docLeaves[0].ID() == c.RevisionID
		c.Conflict = revtree.InConflict(docLeaves)
	}
	return changes, nil
}

// Checkpoint returns the last source sequence replicated from peerID, or 0.
func (s *Store) Checkpoint(ctx context.Context, peerID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT last_seq FROM checkpoints WHERE peer_id = ?
	`, peerID).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read checkpoint for %s: %w", peerID, err)
	}
	return seq, nil
}

// SetCheckpoint records the last source sequence replicated from peerID.
func (s *Store) SetCheckpoint(ctx context.Context, peerID string, seq int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (peer_id, last_seq) VALUES (?, ?)
		ON CONFLICT(peer_id) DO UPDATE SET last_seq = excluded.last_seq
	`, peerID, seq)
	if err != nil {
		return fmt.Errorf("write checkpoint for %s: %w", peerID, err)
	}
	return nil
}
