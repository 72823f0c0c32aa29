package revtree

import (
	"slices"
	"strings"
)

// SortLeaves orders revisions in place by descending generation, then
// descending digest. After sorting, revs[0] is the winner.
func SortLeaves(revs []*SavedRevision) {
	slices.SortFunc(revs, func(a, b *SavedRevision) int {
		return b.id.Compare(a.id)
	})
}

// SelectLeaves picks the leaves a reader sees: the live leaves in winner
// order, or the single winning tombstone when every leaf is deleted. The
// input is not modified.
func SelectLeaves(leaves []*SavedRevision) []*SavedRevision {
	if len(leaves) == 0 {
		return nil
	}
	sorted := slices.Clone(leaves)
	SortLeaves(sorted)

	live := make([]*SavedRevision, 0, len(sorted))
	for _, rev := range sorted {
		if !rev.deleted {
			live = append(live, rev)
		}
	}
	if len(live) == 0 {
		return sorted[:1]
	}
	return live
}

// InConflict reports whether a leaf set holds more than one live leaf.
func InConflict(leaves []*SavedRevision) bool {
	live := 0
	for _, rev := range leaves {
		if !rev.deleted {
			live++
		}
	}
	return live > 1
}

// LeafSignature returns a stable fingerprint of a leaf set: the revision ids
// in winner order joined by commas. Two reads of the same document yield the
// same signature iff the leaf sets are identical.
func LeafSignature(leaves []*SavedRevision) string {
	ids := make([]RevisionID, len(leaves))
	for i, rev := range leaves {
		ids[i] = rev.id
	}
	return SignatureOf(ids)
}

// SignatureOf is LeafSignature over bare revision ids.
func SignatureOf(ids []RevisionID) string {
	sorted := slices.Clone(ids)
	slices.SortFunc(sorted, func(a, b RevisionID) int { return b.Compare(a) })

	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}

// DiffConflictSets compares two evaluations of the conflict set, each a map
// from document id to leaf signature. It returns, sorted, the documents that
// entered the set or whose conflicting leaves changed. Documents that left
// the set are not reported.
func DiffConflictSets(prev, next map[string]string) []string {
	var changed []string
	for docID, sig := range next {
		if old, ok := prev[docID]; !ok || old != sig {
			changed = append(changed, docID)
		}
	}
	slices.Sort(changed)
	return changed
}
