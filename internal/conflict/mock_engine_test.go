package conflict

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/roach88/docsync/internal/engine"
	"github.com/roach88/docsync/internal/revtree"
)

// mockEngine is a testify mock of engine.Engine for failure paths the
// reference store cannot produce on demand.
type mockEngine struct {
	mock.Mock
}

var _ engine.Engine = (*mockEngine)(nil)

func (m *mockEngine) GetLeafRevisions(ctx context.Context, docID string) ([]*revtree.SavedRevision, error) {
	args := m.Called(ctx, docID)
	leaves, _ := args.Get(0).([]*revtree.SavedRevision)
	return leaves, args.Error(1)
}

func (m *mockEngine) CreateRevision(saved *revtree.SavedRevision) *revtree.UnsavedRevision {
	return saved.CreateRevision()
}

func (m *mockEngine) SaveAllowingConflict(ctx context.Context, rev *revtree.UnsavedRevision) (*revtree.SavedRevision, error) {
	args := m.Called(ctx, rev)
	saved, _ := args.Get(0).(*revtree.SavedRevision)
	return saved, args.Error(1)
}

func (m *mockEngine) RunInTransaction(ctx context.Context, work func(tx engine.Tx) error) error {
	args := m.Called(ctx, work)
	return args.Error(0)
}

func (m *mockEngine) WatchConflicts(ctx context.Context) (engine.ConflictFeed, error) {
	args := m.Called(ctx)
	feed, _ := args.Get(0).(engine.ConflictFeed)
	return feed, args.Error(1)
}

func (m *mockEngine) ConflictedDocuments(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

// scriptedFeed replays a fixed list of changes, then an optional error,
// then blocks until stopped.
type scriptedFeed struct {
	mu      sync.Mutex
	changes []engine.ConflictChange
	err     error
	stopped chan struct{}
	once    sync.Once
}

func newScriptedFeed(err error, changes ...engine.ConflictChange) *scriptedFeed {
	return &scriptedFeed{changes: changes, err: err, stopped: make(chan struct{})}
}

func (f *scriptedFeed) Next(ctx context.Context) (engine.ConflictChange, error) {
	f.mu.Lock()
	if len(f.changes) > 0 {
		c := f.changes[0]
		f.changes = f.changes[1:]
		f.mu.Unlock()
		return c, nil
	}
	if f.err != nil {
		err := f.err
		f.err = nil
		f.mu.Unlock()
		return engine.ConflictChange{}, err
	}
	f.mu.Unlock()

	select {
	case <-f.stopped:
		return engine.ConflictChange{}, engine.ErrFeedClosed
	case <-ctx.Done():
		return engine.ConflictChange{}, ctx.Err()
	}
}

func (f *scriptedFeed) Stop() {
	f.once.Do(func() { close(f.stopped) })
}
