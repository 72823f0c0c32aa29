package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/docsync/internal/engine"
	"github.com/roach88/docsync/internal/revtree"
)

// WatchConflicts implements engine.Engine.
//
// The query subscribes to commits before its first evaluation, so no write
// can slip between establishing the query and the first result. Each later
// commit triggers a re-evaluation; Next only returns when the set of
// conflicted documents, or the leaves of one of them, changed.
func (s *Store) WatchConflicts(ctx context.Context) (engine.ConflictFeed, error) {
	signal, cancel, err := s.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("watch conflicts: %w", err)
	}
	// Establishing the query includes one evaluation, so a broken database
	// is reported to the caller synchronously.
	first, err := s.conflictSet(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch conflicts: %w", err)
	}
	return &conflictFeed{
		store:   s,
		signal:  signal,
		cancel:  cancel,
		done:    make(chan struct{}),
		clock:   engine.NewClock(),
		pending: first,
	}, nil
}

// conflictFeed is a pull-driven live query. Next is meant to be called from
// a single goroutine; Stop may be called from any goroutine.
type conflictFeed struct {
	store  *Store
	signal <-chan struct{}
	cancel func()
	clock  *engine.Clock

	stopOnce sync.Once
	done     chan struct{}

	prev    map[string]string
	pending map[string]string // first evaluation, not yet reported
	dirty   bool              // a commit was seen but not evaluated
	failed  bool
}

func (f *conflictFeed) Next(ctx context.Context) (engine.ConflictChange, error) {
	if f.failed {
		return engine.ConflictChange{}, engine.ErrFeedClosed
	}
	if f.pending != nil {
		next := f.pending
		f.pending = nil
		if change, ok := f.diff(next); ok {
			return change, nil
		}
	}

	for {
		if !f.dirty {
			select {
			case <-f.done:
				return engine.ConflictChange{}, engine.ErrFeedClosed
			case <-ctx.Done():
				return engine.ConflictChange{}, ctx.Err()
			case _, ok := <-f.signal:
				if !ok {
					// Closed by Stop (cancel) or by the store closing.
					select {
					case <-f.done:
						return engine.ConflictChange{}, engine.ErrFeedClosed
					default:
					}
					f.failed = true
					return engine.ConflictChange{}, fmt.Errorf("conflicts query: %w", ErrClosed)
				}
			}
			f.dirty = true
		}

		next, err := f.store.conflictSet(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// The caller gave up; evaluate again on the next call.
				return engine.ConflictChange{}, ctx.Err()
			}
			f.failed = true
			f.Stop()
			return engine.ConflictChange{}, fmt.Errorf("conflicts query: %w", err)
		}
		f.dirty = false
		if change, ok := f.diff(next); ok {
			return change, nil
		}
	}
}

// diff records next as the current evaluation and reports what changed.
func (f *conflictFeed) diff(next map[string]string) (engine.ConflictChange, bool) {
	seq := f.clock.Next()
	changed := revtree.DiffConflictSets(f.prev, next)
	f.prev = next
	if len(changed) == 0 {
		return engine.ConflictChange{}, false
	}
	return engine.ConflictChange{Seq: seq, DocumentIDs: changed}, true
}

func (f *conflictFeed) Stop() {
	f.stopOnce.Do(func() {
		close(f.done)
		f.cancel()
	})
}
