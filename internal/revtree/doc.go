// Package revtree models document revisions and the revision tree.
//
// A document's history is a tree: every revision except the first names a
// parent, and replication or concurrent local edits may give a revision more
// than one child. A leaf is a revision with no children; a live leaf is a leaf
// that is not a deletion tombstone. A document is in conflict when it has
// more than one live leaf.
//
// Leaves are always ordered by descending generation and then by descending
// digest, so the first element of a sorted leaf set is the deterministic
// winner every replica agrees on.
//
// SavedRevision is the immutable view of a persisted revision. UnsavedRevision
// is the caller-owned, mutable revision created from one with CreateRevision
// and handed back to the engine for persistence.
package revtree
