package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/engine"
	"github.com/roach88/docsync/internal/props"
	"github.com/roach88/docsync/internal/revtree"
)

func TestGetLeafRevisions_WinnerFirst(t *testing.T) {
	s := createTestStore(t)
	_, left, right := forkDocument(t, s, "doc1")

	leaves, err := s.GetLeafRevisions(context.Background(), "doc1")
	require.NoError(t, err)
	require.Len(t, leaves, 2)

	want := []*revtree.SavedRevision{left, right}
	revtree.SortLeaves(want)
	assert.Equal(t, revIDs(want), revIDs(leaves))
	assert.Equal(t, 1, leaves[0].ID().Compare(leaves[1].ID()))
}

func TestGetLeafRevisions_ExcludesTombstonedBranch(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	_, left, right := forkDocument(t, s, "doc1")

	tomb := right.CreateRevision()
	tomb.SetDeletion(true)
	_, err := s.SaveAllowingConflict(ctx, tomb)
	require.NoError(t, err)

	leaves, err := s.GetLeafRevisions(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, []string{left.ID().String()}, revIDs(leaves))
}

func TestGetLeafRevisions_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.GetLeafRevisions(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRunInTransaction_Commit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	forkDocument(t, s, "doc1")

	err := s.RunInTransaction(ctx, func(tx engine.Tx) error {
		leaves, err := tx.GetLeafRevisions(ctx, "doc1")
		if err != nil {
			return err
		}
		winner := s.CreateRevision(leaves[0])
		winner.SetProperty("resolved", props.Bool(true))
		if _, err := tx.SaveAllowingConflict(ctx, winner); err != nil {
			return err
		}
		for _, loser := range leaves[1:] {
			tomb := s.CreateRevision(loser)
			tomb.SetDeletion(true)
			if _, err := tx.SaveAllowingConflict(ctx, tomb); err != nil {
				return err
			}
		}
		// Reads inside the transaction see its own writes.
		after, err := tx.GetLeafRevisions(ctx, "doc1")
		if err != nil {
			return err
		}
		if len(after) != 1 {
			return errors.New("expected a single live leaf inside tx")
		}
		return nil
	})
	require.NoError(t, err)

	leaves, err := s.GetLeafRevisions(ctx, "doc1")
	require.NoError(t, err)
	require.Len(t, leaves, 1)
	assert.Equal(t, props.Bool(true), leaves[0].UserProperties()["resolved"])
}

func TestRunInTransaction_RollbackOnError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	forkDocument(t, s, "doc1")

	before, err := s.GetLeafRevisions(ctx, "doc1")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.RunInTransaction(ctx, func(tx engine.Tx) error {
		tomb := s.CreateRevision(before[1])
		tomb.SetDeletion(true)
		if _, err := tx.SaveAllowingConflict(ctx, tomb); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	after, err := s.GetLeafRevisions(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, revIDs(before), revIDs(after), "rollback must leave the leaf set unchanged")
}

func TestRunInTransaction_PartialFailureRollsBack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	forkDocument(t, s, "doc1")

	before, err := s.GetLeafRevisions(ctx, "doc1")
	require.NoError(t, err)

	err = s.RunInTransaction(ctx, func(tx engine.Tx) error {
		good := s.CreateRevision(before[0])
		good.SetProperty("merged", props.Bool(true))
		if _, err := tx.SaveAllowingConflict(ctx, good); err != nil {
			return err
		}
		bad := revtree.NewUnsavedRevision("doc1", revtree.MustParseRevisionID("7-missing"), nil)
		_, err := tx.SaveAllowingConflict(ctx, bad)
		return err
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingParent)

	after, err := s.GetLeafRevisions(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, revIDs(before), revIDs(after))
}

func TestConflictedDocuments(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	forkDocument(t, s, "b")
	forkDocument(t, s, "a")
	_, err := s.CreateDocument(ctx, "plain", nil)
	require.NoError(t, err)

	ids, err := s.ConflictedDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}
