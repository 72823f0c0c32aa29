package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/docsync/internal/props"
	"github.com/roach88/docsync/internal/revtree"
	"github.com/roach88/docsync/internal/store"
)

// OpenStore opens a reference store in a temp directory, closed on cleanup.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// SeedFork creates docID with base properties and then one sibling branch
// per entry of branches, each a child of the first revision. It returns the
// branch leaves in argument order.
func SeedFork(t testing.TB, s *store.Store, docID string, base props.Object, branches ...props.Object) []*revtree.SavedRevision {
	t.Helper()
	ctx := context.Background()

	root, err := s.CreateDocument(ctx, docID, base)
	if err != nil {
		t.Fatalf("CreateDocument(%q) failed: %v", docID, err)
	}

	leaves := make([]*revtree.SavedRevision, 0, len(branches))
	for i, body := range branches {
		rev := root.CreateRevision()
		rev.SetProperties(body)
		saved, err := s.SaveAllowingConflict(ctx, rev)
		if err != nil {
			t.Fatalf("branch %d of %q failed: %v", i, docID, err)
		}
		leaves = append(leaves, saved)
	}
	return leaves
}

// Extend appends a child to leaf with the given properties.
func Extend(t testing.TB, s *store.Store, leaf *revtree.SavedRevision, body props.Object) *revtree.SavedRevision {
	t.Helper()
	rev := leaf.CreateRevision()
	rev.SetProperties(body)
	saved, err := s.SaveAllowingConflict(context.Background(), rev)
	if err != nil {
		t.Fatalf("extend %s of %q failed: %v", leaf.ID(), leaf.DocumentID(), err)
	}
	return saved
}

// LiveLeaves reads the current leaves of docID, failing the test on error.
func LiveLeaves(t testing.TB, s *store.Store, docID string) []*revtree.SavedRevision {
	t.Helper()
	leaves, err := s.GetLeafRevisions(context.Background(), docID)
	if err != nil {
		t.Fatalf("GetLeafRevisions(%q) failed: %v", docID, err)
	}
	return leaves
}
