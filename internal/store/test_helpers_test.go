package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/docsync/internal/props"
	"github.com/roach88/docsync/internal/revtree"
)

// createTestStore opens a store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// forkDocument creates docID and then two sibling children of its first
// revision, leaving the document with two live leaves.
func forkDocument(t *testing.T, s *Store, docID string) (base, left, right *revtree.SavedRevision) {
	t.Helper()
	ctx := context.Background()

	base, err := s.CreateDocument(ctx, docID, props.Object{"v": props.Int(0)})
	if err != nil {
		t.Fatalf("CreateDocument(%q) failed: %v", docID, err)
	}

	l := base.CreateRevision()
	l.SetProperty("v", props.String("left"))
	left, err = s.SaveAllowingConflict(ctx, l)
	if err != nil {
		t.Fatalf("save left branch failed: %v", err)
	}

	r := base.CreateRevision()
	r.SetProperty("v", props.String("right"))
	right, err = s.SaveAllowingConflict(ctx, r)
	if err != nil {
		t.Fatalf("save right branch failed: %v", err)
	}
	return base, left, right
}

func revIDs(revs []*revtree.SavedRevision) []string {
	out := make([]string, len(revs))
	for i, r := range revs {
		out[i] = r.ID().String()
	}
	return out
}
