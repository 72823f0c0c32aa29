package engine

import (
	"context"

	"github.com/roach88/docsync/internal/revtree"
)

// Reader is the read side shared by Engine and Tx.
type Reader interface {
	// GetLeafRevisions returns the document's current leaves in winner order.
	// Only live leaves are returned; a document whose leaves are all
	// tombstones yields its winning tombstone. Unknown documents yield an
	// error wrapping a not-found sentinel.
	GetLeafRevisions(ctx context.Context, docID string) ([]*revtree.SavedRevision, error)
}

// Writer persists revisions.
type Writer interface {
	// SaveAllowingConflict stores rev as a new leaf even when its parent is
	// not the current winner. The parent must exist.
	SaveAllowingConflict(ctx context.Context, rev *revtree.UnsavedRevision) (*revtree.SavedRevision, error)
}

// Tx is the view of the engine inside RunInTransaction. Reads observe the
// transaction's own writes.
type Tx interface {
	Reader
	Writer
}

// Engine is the document engine collaborator.
type Engine interface {
	Reader
	Writer

	// CreateRevision derives a caller-owned revision from saved.
	CreateRevision(saved *revtree.SavedRevision) *revtree.UnsavedRevision

	// RunInTransaction runs work in one transaction. The transaction commits
	// iff work returns nil; otherwise every write made through tx is rolled
	// back and work's error is returned.
	RunInTransaction(ctx context.Context, work func(tx Tx) error) error

	// WatchConflicts opens a standing query over documents with more than
	// one live leaf. The first ConflictChange reports every currently
	// conflicted document.
	WatchConflicts(ctx context.Context) (ConflictFeed, error)

	// ConflictedDocuments returns the ids of all currently conflicted
	// documents, sorted.
	ConflictedDocuments(ctx context.Context) ([]string, error)
}

// ConflictChange is one notification from a conflicts live query.
type ConflictChange struct {
	// Seq numbers evaluations of the query, starting at 1.
	Seq int64

	// DocumentIDs lists, sorted, the documents that entered the conflict set
	// or whose conflicting leaves changed since the previous evaluation.
	DocumentIDs []string
}

// ConflictFeed is a running conflicts live query.
type ConflictFeed interface {
	// Next blocks until the next change. It returns ErrFeedClosed once the
	// feed has been stopped, ctx.Err() if ctx ends first, or the engine
	// error that broke the query. After an engine error the feed is closed.
	Next(ctx context.Context) (ConflictChange, error)

	// Stop ends the query. It is safe to call more than once.
	Stop()
}
