package conflict

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/props"
	"github.com/roach88/docsync/internal/revtree"
	"github.com/roach88/docsync/internal/store"
	"github.com/roach88/docsync/internal/testutil"
)

// seedDoc1 stores doc1 with root 1-xxx and leaves 2-aaa and 2-bbb, exactly
// as a replicator would deliver them.
func seedDoc1(t *testing.T, s *store.Store) {
	t.Helper()
	ctx := context.Background()
	root := revtree.MustParseRevisionID("1-xxx")
	revs := []*revtree.SavedRevision{
		revtree.NewSavedRevision("doc1", root, revtree.RevisionID{}, false, props.Object{"v": props.Int(0)}, 0),
		revtree.NewSavedRevision("doc1", revtree.MustParseRevisionID("2-aaa"), root, false, props.Object{"v": props.String("a")}, 0),
		revtree.NewSavedRevision("doc1", revtree.MustParseRevisionID("2-bbb"), root, false, props.Object{"v": props.String("b")}, 0),
	}
	for _, rev := range revs {
		_, err := s.InsertRevision(ctx, rev, "peer")
		require.NoError(t, err)
	}
}

// keepWinner keeps leaves[0], marks it resolved and tombstones the rest.
func keepWinner(_ context.Context, _ string, leaves []*revtree.SavedRevision) ([]*revtree.UnsavedRevision, error) {
	winner := leaves[0].CreateRevision()
	winner.SetProperty("resolved", props.Bool(true))
	out := []*revtree.UnsavedRevision{winner}
	for _, loser := range leaves[1:] {
		tomb := loser.CreateRevision()
		tomb.SetDeletion(true)
		out = append(out, tomb)
	}
	return out, nil
}

func leafIDs(leaves []*revtree.SavedRevision) []string {
	out := make([]string, len(leaves))
	for i, l := range leaves {
		out[i] = l.ID().String()
	}
	return out
}

func newTestResolver(t *testing.T, s *store.Store, fn ConflictsFunc, opts ...Option) *Resolver {
	t.Helper()
	r, err := NewResolver(s, fn, opts...)
	require.NoError(t, err)
	return r
}

func TestResolve_Doc1Scenario(t *testing.T) {
	s := testutil.OpenStore(t)
	seedDoc1(t, s)

	var seen []string
	r := newTestResolver(t, s, func(ctx context.Context, docID string, leaves []*revtree.SavedRevision) ([]*revtree.UnsavedRevision, error) {
		seen = leafIDs(leaves)
		return keepWinner(ctx, docID, leaves)
	})

	out := r.Resolve(context.Background(), "doc1")
	require.Equal(t, StatusResolved, out.Status, "err: %v", out.Err)
	assert.Equal(t, []string{"2-bbb", "2-aaa"}, seen, "winner first")
	assert.Equal(t, 2, out.Leaves)
	assert.Len(t, out.Saved, 2)

	leaves := testutil.LiveLeaves(t, s, "doc1")
	require.Len(t, leaves, 1)
	assert.Equal(t, 3, leaves[0].ID().Generation)
	parent, _ := leaves[0].ParentID()
	assert.Equal(t, "2-bbb", parent.String())
	assert.Equal(t, props.String("b"), leaves[0].UserProperties()["v"])
	assert.Equal(t, props.Bool(true), leaves[0].UserProperties()["resolved"])
}

func TestResolve_ConvergedDocumentSkipped(t *testing.T) {
	s := testutil.OpenStore(t)
	_, err := s.CreateDocument(context.Background(), "plain", props.Object{"x": props.Int(1)})
	require.NoError(t, err)

	called := false
	r := newTestResolver(t, s, func(context.Context, string, []*revtree.SavedRevision) ([]*revtree.UnsavedRevision, error) {
		called = true
		return nil, nil
	})

	out := r.Resolve(context.Background(), "plain")
	assert.Equal(t, StatusSkipped, out.Status)
	assert.NoError(t, out.Err)
	assert.False(t, called, "callback must not run for a converged document")
}

func TestResolve_CallbackError(t *testing.T) {
	s := testutil.OpenStore(t)
	seedDoc1(t, s)
	before := leafIDs(testutil.LiveLeaves(t, s, "doc1"))

	boom := errors.New("cannot decide")
	r := newTestResolver(t, s, func(context.Context, string, []*revtree.SavedRevision) ([]*revtree.UnsavedRevision, error) {
		return nil, boom
	})

	out := r.Resolve(context.Background(), "doc1")
	assert.Equal(t, StatusFailed, out.Status)
	assert.True(t, IsResolutionCallbackError(out.Err))
	assert.ErrorIs(t, out.Err, boom)
	assert.Equal(t, before, leafIDs(testutil.LiveLeaves(t, s, "doc1")))
}

func TestResolve_CallbackPanic(t *testing.T) {
	s := testutil.OpenStore(t)
	seedDoc1(t, s)

	r := newTestResolver(t, s, func(context.Context, string, []*revtree.SavedRevision) ([]*revtree.UnsavedRevision, error) {
		panic("resolver bug")
	})

	out := r.Resolve(context.Background(), "doc1")
	assert.Equal(t, StatusFailed, out.Status)
	assert.True(t, IsResolutionCallbackError(out.Err))
	assert.Contains(t, out.Err.Error(), "resolver bug")
}

func TestResolve_CallbackPanicWithoutTimeout(t *testing.T) {
	s := testutil.OpenStore(t)
	seedDoc1(t, s)

	r := newTestResolver(t, s, func(context.Context, string, []*revtree.SavedRevision) ([]*revtree.UnsavedRevision, error) {
		panic("resolver bug")
	}, WithResolveTimeout(0))

	out := r.Resolve(context.Background(), "doc1")
	assert.True(t, IsResolutionCallbackError(out.Err))
}

func TestResolve_CallbackTimeout(t *testing.T) {
	s := testutil.OpenStore(t)
	seedDoc1(t, s)

	release := make(chan struct{})
	defer close(release)
	r := newTestResolver(t, s, func(ctx context.Context, docID string, leaves []*revtree.SavedRevision) ([]*revtree.UnsavedRevision, error) {
		<-release
		return keepWinner(ctx, docID, leaves)
	}, WithResolveTimeout(20*time.Millisecond))

	out := r.Resolve(context.Background(), "doc1")
	assert.Equal(t, StatusFailed, out.Status)
	assert.True(t, IsResolutionCallbackError(out.Err))
	assert.ErrorIs(t, out.Err, ErrCallbackTimeout)
	assert.Len(t, testutil.LiveLeaves(t, s, "doc1"), 2)
}

func TestResolve_AbandonedCallbackKeepsDocumentLocked(t *testing.T) {
	s := testutil.OpenStore(t)
	seedDoc1(t, s)

	var inFlight, maxInFlight, calls atomic.Int32
	r := newTestResolver(t, s, func(context.Context, string, []*revtree.SavedRevision) ([]*revtree.UnsavedRevision, error) {
		calls.Add(1)
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(200 * time.Millisecond)
		inFlight.Add(-1)
		return nil, nil
	}, WithResolveTimeout(50*time.Millisecond))

	first := r.Resolve(context.Background(), "doc1")
	assert.ErrorIs(t, first.Err, ErrCallbackTimeout)
	second := r.Resolve(context.Background(), "doc1")
	assert.ErrorIs(t, second.Err, ErrCallbackTimeout)

	require.Eventually(t, func() bool { return inFlight.Load() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(1), maxInFlight.Load(), "callbacks for one document never overlap")
	assert.Eventually(t, func() bool { return r.locks.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestResolve_ForeignDocumentRejected(t *testing.T) {
	s := testutil.OpenStore(t)
	seedDoc1(t, s)
	other := testutil.SeedFork(t, s, "doc2", nil, props.Object{"v": props.Int(1)}, props.Object{"v": props.Int(2)})

	r := newTestResolver(t, s, func(context.Context, string, []*revtree.SavedRevision) ([]*revtree.UnsavedRevision, error) {
		return []*revtree.UnsavedRevision{other[0].CreateRevision()}, nil
	})

	out := r.Resolve(context.Background(), "doc1")
	assert.True(t, IsResolutionCallbackError(out.Err))
	assert.Len(t, testutil.LiveLeaves(t, s, "doc2"), 2, "other document untouched")
}

func TestResolve_NilRevisionRejected(t *testing.T) {
	s := testutil.OpenStore(t)
	seedDoc1(t, s)

	r := newTestResolver(t, s, func(context.Context, string, []*revtree.SavedRevision) ([]*revtree.UnsavedRevision, error) {
		return []*revtree.UnsavedRevision{nil}, nil
	})

	out := r.Resolve(context.Background(), "doc1")
	assert.True(t, IsResolutionCallbackError(out.Err))
}

func TestResolve_PartialFailureIsAtomic(t *testing.T) {
	s := testutil.OpenStore(t)
	seedDoc1(t, s)
	before := leafIDs(testutil.LiveLeaves(t, s, "doc1"))

	r := newTestResolver(t, s, func(ctx context.Context, docID string, leaves []*revtree.SavedRevision) ([]*revtree.UnsavedRevision, error) {
		good := leaves[0].CreateRevision()
		good.SetProperty("merged", props.Bool(true))
		bad := revtree.NewUnsavedRevision(docID, revtree.MustParseRevisionID("5-nowhere"), nil)
		return []*revtree.UnsavedRevision{good, bad}, nil
	})

	out := r.Resolve(context.Background(), "doc1")
	assert.Equal(t, StatusFailed, out.Status)
	assert.True(t, IsTransactionConflict(out.Err))
	assert.ErrorIs(t, out.Err, store.ErrMissingParent)
	assert.Equal(t, before, leafIDs(testutil.LiveLeaves(t, s, "doc1")), "no revision from the failed set persisted")
}

func TestResolve_LeavesMovedDuringCallback(t *testing.T) {
	s := testutil.OpenStore(t)
	seedDoc1(t, s)

	r := newTestResolver(t, s, func(ctx context.Context, docID string, leaves []*revtree.SavedRevision) ([]*revtree.UnsavedRevision, error) {
		// A concurrent writer extends one branch while the callback decides.
		testutil.Extend(t, s, leaves[1], props.Object{"v": props.String("a2")})
		return keepWinner(ctx, docID, leaves)
	})

	out := r.Resolve(context.Background(), "doc1")
	assert.True(t, IsTransactionConflict(out.Err))
	assert.ErrorIs(t, out.Err, ErrLeavesChanged)
	assert.Len(t, testutil.LiveLeaves(t, s, "doc1"), 2)
}

func TestResolve_EmptyResultCountsAsSuccess(t *testing.T) {
	s := testutil.OpenStore(t)
	seedDoc1(t, s)

	r := newTestResolver(t, s, func(context.Context, string, []*revtree.SavedRevision) ([]*revtree.UnsavedRevision, error) {
		return nil, nil
	})

	out := r.Resolve(context.Background(), "doc1")
	assert.Equal(t, StatusResolved, out.Status)
	assert.Empty(t, out.Saved)
	assert.Len(t, testutil.LiveLeaves(t, s, "doc1"), 2)
}

func TestResolve_EngineReadFailure(t *testing.T) {
	eng := &mockEngine{}
	eng.On("GetLeafRevisions", mock.Anything, "doc1").Return(nil, errors.New("io error"))

	r, err := NewResolver(eng, keepWinner)
	require.NoError(t, err)

	out := r.Resolve(context.Background(), "doc1")
	assert.Equal(t, StatusFailed, out.Status)
	assert.True(t, IsEngineUnavailable(out.Err))
	eng.AssertExpectations(t)
	eng.AssertNotCalled(t, "RunInTransaction", mock.Anything, mock.Anything)
}

func TestResolve_TransactionRejected(t *testing.T) {
	leaves := []*revtree.SavedRevision{
		revtree.NewSavedRevision("doc1", revtree.MustParseRevisionID("2-bbb"), revtree.MustParseRevisionID("1-xxx"), false, nil, 2),
		revtree.NewSavedRevision("doc1", revtree.MustParseRevisionID("2-aaa"), revtree.MustParseRevisionID("1-xxx"), false, nil, 1),
	}
	eng := &mockEngine{}
	eng.On("GetLeafRevisions", mock.Anything, "doc1").Return(leaves, nil)
	eng.On("RunInTransaction", mock.Anything, mock.Anything).Return(errors.New("database is locked"))

	r, err := NewResolver(eng, keepWinner)
	require.NoError(t, err)

	out := r.Resolve(context.Background(), "doc1")
	assert.True(t, IsTransactionConflict(out.Err))
	eng.AssertExpectations(t)
}

func TestResolveAll(t *testing.T) {
	s := testutil.OpenStore(t)
	seedDoc1(t, s)
	testutil.SeedFork(t, s, "doc2", nil, props.Object{"v": props.Int(1)}, props.Object{"v": props.Int(2)})
	_, err := s.CreateDocument(context.Background(), "plain", nil)
	require.NoError(t, err)

	r := newTestResolver(t, s, keepWinner)
	outcomes, err := r.ResolveAll(context.Background())
	require.NoError(t, err)

	require.Len(t, outcomes, 2)
	assert.Equal(t, "doc1", outcomes[0].DocumentID)
	assert.Equal(t, "doc2", outcomes[1].DocumentID)
	for _, out := range outcomes {
		assert.Equal(t, StatusResolved, out.Status)
	}

	ids, err := s.ConflictedDocuments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestNewResolver_Validation(t *testing.T) {
	_, err := NewResolver(nil, keepWinner)
	assert.Error(t, err)

	_, err = NewResolver(&mockEngine{}, nil)
	assert.Error(t, err)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "resolved", StatusResolved.String())
	assert.Equal(t, "skipped", StatusSkipped.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "Status(9)", Status(9).String())
}
