package revtree

import (
	"errors"
	"fmt"
)

// ErrUnknownParent is returned by Tree.Add when the parent is not in the tree.
var ErrUnknownParent = errors.New("parent revision not in tree")

// Tree is an in-memory revision tree for one document.
type Tree struct {
	docID    string
	revs     map[RevisionID]*SavedRevision
	children map[RevisionID]int
	order    []RevisionID
}

// NewTree returns an empty tree for docID.
func NewTree(docID string) *Tree {
	return &Tree{
		docID:    docID,
		revs:     make(map[RevisionID]*SavedRevision),
		children: make(map[RevisionID]int),
	}
}

// BuildTree adds revs in the given order. Parents must precede children.
func BuildTree(docID string, revs []*SavedRevision) (*Tree, error) {
	t := NewTree(docID)
	for _, rev := range revs {
		if err := t.Add(rev); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// DocumentID returns the document the tree belongs to.
func (t *Tree) DocumentID() string { return t.docID }

// Len returns the number of revisions in the tree.
func (t *Tree) Len() int { return len(t.order) }

// Add inserts rev. Adding a revision that is already present is a no-op.
func (t *Tree) Add(rev *SavedRevision) error {
	if rev.docID != t.docID {
		return fmt.Errorf("revision %s belongs to %q, not %q", rev.id, rev.docID, t.docID)
	}
	if _, ok := t.revs[rev.id]; ok {
		return nil
	}
	if parent, ok := rev.ParentID(); ok {
		if _, known := t.revs[parent]; !known {
			return fmt.Errorf("%w: %s (child %s)", ErrUnknownParent, parent, rev.id)
		}
		if parent.Generation+1 != rev.id.Generation {
			return fmt.Errorf("revision %s: generation must be one past parent %s", rev.id, parent)
		}
		t.children[parent]++
	} else if rev.id.Generation != 1 {
		return fmt.Errorf("root revision %s must have generation 1", rev.id)
	}
	t.revs[rev.id] = rev
	t.order = append(t.order, rev.id)
	return nil
}

// Get returns the revision with the given id.
func (t *Tree) Get(id RevisionID) (*SavedRevision, bool) {
	rev, ok := t.revs[id]
	return rev, ok
}

// Leaves returns every leaf, deleted or not, in winner order.
func (t *Tree) Leaves() []*SavedRevision {
	var leaves []*SavedRevision
	for _, id := range t.order {
		if t.children[id] == 0 {
			leaves = append(leaves, t.revs[id])
		}
	}
	SortLeaves(leaves)
	return leaves
}

// LiveLeaves returns the leaves a reader sees; see SelectLeaves.
func (t *Tree) LiveLeaves() []*SavedRevision {
	return SelectLeaves(t.Leaves())
}

// Winner returns the deterministic current revision, or nil for an empty tree.
func (t *Tree) Winner() *SavedRevision {
	leaves := t.LiveLeaves()
	if len(leaves) == 0 {
		return nil
	}
	return leaves[0]
}

// InConflict reports whether the document has more than one live leaf.
func (t *Tree) InConflict() bool {
	return InConflict(t.Leaves())
}

// History returns the ancestry of id, starting with id itself and ending at
// the root.
func (t *Tree) History(id RevisionID) ([]RevisionID, error) {
	var path []RevisionID
	for cur := id; !cur.IsZero(); {
		rev, ok := t.revs[cur]
		if !ok {
			return nil, fmt.Errorf("revision %s not in tree of %q", cur, t.docID)
		}
		path = append(path, cur)
		cur = rev.parent
	}
	return path, nil
}
