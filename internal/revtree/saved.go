package revtree

import (
	"github.com/roach88/docsync/internal/props"
)

// System property keys exposed on every saved revision.
const (
	KeyID      = "_id"
	KeyRev     = "_rev"
	KeyDeleted = "_deleted"
)

// SavedRevision is an immutable, read-only view of a persisted revision.
//
// Accessors return copies, so a caller cannot mutate engine state through a
// SavedRevision.
type SavedRevision struct {
	docID    string
	id       RevisionID
	parent   RevisionID
	deleted  bool
	body     props.Object
	sequence int64
}

// NewSavedRevision builds a SavedRevision. Engines call this when reading
// revisions back from storage; body holds only user properties.
func NewSavedRevision(docID string, id, parent RevisionID, deleted bool, body props.Object, sequence int64) *SavedRevision {
	return &SavedRevision{
		docID:    docID,
		id:       id,
		parent:   parent,
		deleted:  deleted,
		body:     stripSystemKeys(body),
		sequence: sequence,
	}
}

// DocumentID returns the id of the owning document.
func (r *SavedRevision) DocumentID() string { return r.docID }

// ID returns the revision id.
func (r *SavedRevision) ID() RevisionID { return r.id }

// ParentID returns the parent revision id; ok is false for a document's
// first revision.
func (r *SavedRevision) ParentID() (id RevisionID, ok bool) {
	return r.parent, !r.parent.IsZero()
}

// IsDeletion reports whether the revision is a deletion tombstone.
func (r *SavedRevision) IsDeletion() bool { return r.deleted }

// Sequence returns the engine change sequence that stored the revision.
func (r *SavedRevision) Sequence() int64 { return r.sequence }

// Properties returns the user properties plus the system fields _id and
// _rev, and _deleted on tombstones.
func (r *SavedRevision) Properties() props.Object {
	out := r.body.Clone()
	out[KeyID] = props.String(r.docID)
	out[KeyRev] = props.String(r.id.String())
	if r.deleted {
		out[KeyDeleted] = props.Bool(true)
	}
	return out
}

// UserProperties returns a copy of the properties without system fields.
func (r *SavedRevision) UserProperties() props.Object {
	return r.body.Clone()
}

// Property returns a single user property.
func (r *SavedRevision) Property(key string) (props.Value, bool) {
	v, ok := r.body[key]
	return v, ok
}

// CreateRevision returns a new UnsavedRevision whose parent is r and whose
// properties start as a copy of r's user properties.
func (r *SavedRevision) CreateRevision() *UnsavedRevision {
	return &UnsavedRevision{
		docID:  r.docID,
		parent: r.id,
		body:   r.body.Clone(),
	}
}

// stripSystemKeys returns a deep copy of body without _id, _rev and _deleted.
func stripSystemKeys(body props.Object) props.Object {
	out := body.Clone()
	delete(out, KeyID)
	delete(out, KeyRev)
	delete(out, KeyDeleted)
	return out
}
