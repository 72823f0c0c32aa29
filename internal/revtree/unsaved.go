package revtree

import (
	"fmt"

	"github.com/roach88/docsync/internal/props"
)

// UnsavedRevision is a mutable revision owned by the caller until it is
// handed to the engine.
type UnsavedRevision struct {
	docID   string
	parent  RevisionID
	body    props.Object
	deleted bool
}

// NewUnsavedRevision creates the first revision of a document, or a child of
// parent when parent is non-zero.
func NewUnsavedRevision(docID string, parent RevisionID, body props.Object) *UnsavedRevision {
	return &UnsavedRevision{
		docID:  docID,
		parent: parent,
		body:   stripSystemKeys(body),
	}
}

// DocumentID returns the id of the document the revision belongs to.
func (r *UnsavedRevision) DocumentID() string { return r.docID }

// ParentID returns the parent revision id; the zero id means a root revision.
func (r *UnsavedRevision) ParentID() RevisionID { return r.parent }

// IsDeletion reports whether saving the revision deletes the document branch.
func (r *UnsavedRevision) IsDeletion() bool { return r.deleted }

// SetDeletion marks the revision as a tombstone. A tombstone keeps no user
// properties.
func (r *UnsavedRevision) SetDeletion(deleted bool) {
	r.deleted = deleted
	if deleted {
		r.body = props.Object{}
	}
}

// Properties returns the user properties. The map is owned by the revision
// and may be edited in place.
func (r *UnsavedRevision) Properties() props.Object { return r.body }

// SetProperties replaces all user properties. System keys are ignored.
func (r *UnsavedRevision) SetProperties(body props.Object) {
	r.body = stripSystemKeys(body)
}

// SetProperty sets a single user property.
func (r *UnsavedRevision) SetProperty(key string, value props.Value) {
	switch key {
	case KeyID, KeyRev, KeyDeleted:
		return
	}
	r.body[key] = value
}

// RemoveProperty deletes a single user property.
func (r *UnsavedRevision) RemoveProperty(key string) {
	delete(r.body, key)
}

// NextID computes the id the revision receives when saved: one generation
// past the parent and a digest over parent, deletion flag and properties.
func (r *UnsavedRevision) NextID() (RevisionID, error) {
	body := r.body
	if r.deleted {
		body = props.Object{}
	}
	digest, err := props.Digest(r.parent.String(), r.deleted, body)
	if err != nil {
		return RevisionID{}, fmt.Errorf("revision of %q: %w", r.docID, err)
	}
	return RevisionID{Generation: r.parent.Generation + 1, Digest: digest}, nil
}
