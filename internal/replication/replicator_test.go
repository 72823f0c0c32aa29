package replication

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/engine"
	"github.com/roach88/docsync/internal/props"
	"github.com/roach88/docsync/internal/revtree"
	"github.com/roach88/docsync/internal/store"
	"github.com/roach88/docsync/internal/testutil"
)

func runOnce(t *testing.T, r *Replicator) {
	t.Helper()
	require.NoError(t, r.Start(context.Background()))
	require.Eventually(t, func() bool { return !r.IsRunning() }, 5*time.Second, 5*time.Millisecond)
}

func TestReplicator_OneShotCopiesHistory(t *testing.T) {
	ctx := context.Background()
	src := testutil.OpenStore(t)
	dst := testutil.OpenStore(t)

	root, err := src.CreateDocument(ctx, "doc1", props.Object{"v": props.Int(1)})
	require.NoError(t, err)
	head, err := src.UpdateDocument(ctx, "doc1", root.ID(), props.Object{"v": props.Int(2)})
	require.NoError(t, err)
	_, err = src.CreateDocument(ctx, "doc2", nil)
	require.NoError(t, err)

	r := New(src, dst, WithIDGenerator(engine.NewFixedGenerator("rep-1")))
	assert.Equal(t, "rep-1", r.ID())
	runOnce(t, r)

	require.NoError(t, r.LastError())
	assert.Equal(t, RawStopped, r.Status())

	got, err := dst.GetDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, head.ID(), got.ID())
	v, ok := got.Property("v")
	require.True(t, ok)
	assert.Equal(t, props.Int(2), v)

	tree, err := dst.RevisionTree(ctx, "doc1")
	require.NoError(t, err)
	history, err := tree.History(head.ID())
	require.NoError(t, err)
	assert.Equal(t, []revtree.RevisionID{head.ID(), root.ID()}, history)

	changes, err := dst.ChangesSince(ctx, 0)
	require.NoError(t, err)
	require.Len(t, changes, 3)
	for _, c := range changes {
		assert.Equal(t, src.ID(), c.Source, "replicated changes carry the source id")
	}
}

func TestReplicator_CreatesConflictWhenBothSidesEdit(t *testing.T) {
	ctx := context.Background()
	a := testutil.OpenStore(t)
	b := testutil.OpenStore(t)

	root, err := a.CreateDocument(ctx, "doc1", props.Object{"v": props.Int(0)})
	require.NoError(t, err)
	runOnce(t, New(a, b))

	_, err = a.UpdateDocument(ctx, "doc1", root.ID(), props.Object{"v": props.Int(1)})
	require.NoError(t, err)
	_, err = b.UpdateDocument(ctx, "doc1", root.ID(), props.Object{"v": props.Int(2)})
	require.NoError(t, err)

	runOnce(t, New(a, b))

	leaves := testutil.LiveLeaves(t, b, "doc1")
	assert.Len(t, leaves, 2)
	conflicted, err := b.ConflictedDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc1"}, conflicted)
}

func TestReplicator_CheckpointSkipsCopiedRevisions(t *testing.T) {
	ctx := context.Background()
	src := testutil.OpenStore(t)
	dst := testutil.OpenStore(t)
	_, err := src.CreateDocument(ctx, "doc1", nil)
	require.NoError(t, err)

	runOnce(t, New(src, dst))
	last, err := src.LastSequence(ctx)
	require.NoError(t, err)
	cp, err := dst.Checkpoint(ctx, src.ID())
	require.NoError(t, err)
	assert.Equal(t, last, cp)

	before, err := dst.LastSequence(ctx)
	require.NoError(t, err)
	runOnce(t, New(src, dst))
	after, err := dst.LastSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after, "nothing new to copy")
}

func TestReplicator_ContinuousFollowsSource(t *testing.T) {
	ctx := context.Background()
	src := testutil.OpenStore(t)
	dst := testutil.OpenStore(t)

	r := New(src, dst, WithContinuous(true))
	require.NoError(t, r.Start(ctx))
	defer r.Stop()

	require.Eventually(t, func() bool { return r.Status() == RawIdle }, 2*time.Second, 5*time.Millisecond)

	_, err := src.CreateDocument(ctx, "late", props.Object{"x": props.Bool(true)})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := dst.GetDocument(ctx, "late")
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, r.IsRunning())

	r.Stop()
	assert.False(t, r.IsRunning())
	assert.Equal(t, RawStopped, r.Status())
}

func TestReplicator_StatusSequenceThroughMonitor(t *testing.T) {
	ctx := context.Background()
	src := testutil.OpenStore(t)
	dst := testutil.OpenStore(t)
	_, err := src.CreateDocument(ctx, "doc1", nil)
	require.NoError(t, err)

	r := New(src, dst)
	log := &statusLog{}
	m := NewMonitor(r, log.record)
	require.NoError(t, m.Start(ctx))
	defer m.Stop()
	assert.Equal(t, Stopped, m.Current())

	runOnce(t, r)
	// connecting maps to Idle.
	assert.Equal(t, []Status{Idle, Active, Stopped}, log.waitLen(t, 3))
}

func TestReplicator_FailedPassGoesOffline(t *testing.T) {
	ctx := context.Background()
	src := testutil.OpenStore(t)
	dst := testutil.OpenStore(t)
	_, err := src.CreateDocument(ctx, "doc1", nil)
	require.NoError(t, err)
	require.NoError(t, dst.Close())

	r := New(src, dst)
	log := &statusLog{}
	m := NewMonitor(r, log.record)
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	runOnce(t, r)
	assert.Equal(t, []Status{Idle, Active, Offline, Stopped}, log.waitLen(t, 4))
	assert.Error(t, r.LastError())
}

func TestReplicator_StartOnClosedSource(t *testing.T) {
	src := testutil.OpenStore(t)
	dst := testutil.OpenStore(t)
	require.NoError(t, src.Close())

	err := New(src, dst).Start(context.Background())
	assert.ErrorIs(t, err, store.ErrClosed)
}

func TestReplicator_SetContinuous(t *testing.T) {
	r := New(testutil.OpenStore(t), testutil.OpenStore(t))
	assert.False(t, r.IsContinuous())
	r.SetContinuous(true)
	assert.True(t, r.IsContinuous())
}
