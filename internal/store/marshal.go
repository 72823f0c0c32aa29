package store

import (
	"database/sql"
	"fmt"

	"github.com/roach88/docsync/internal/props"
	"github.com/roach88/docsync/internal/revtree"
)

// marshalProperties serializes user properties to canonical JSON.
func marshalProperties(body props.Object) (string, error) {
	if body == nil {
		body = props.Object{}
	}
	data, err := props.MarshalCanonical(body)
	if err != nil {
		return "", fmt.Errorf("marshal properties: %w", err)
	}
	return string(data), nil
}

// unmarshalProperties decodes stored properties.
func unmarshalProperties(data string) (props.Object, error) {
	obj, err := props.DecodeObject([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal properties: %w", err)
	}
	return obj, nil
}

// revColumns is the column list every revision query selects, in the order
// scanRevision expects.
const revColumns = `seq, doc_id, rev_id, parent_rev_id, deleted, properties`

type scanner interface {
	Scan(dest ...any) error
}

// scanRevision reads one row selected with revColumns.
func scanRevision(row scanner) (*revtree.SavedRevision, error) {
	var (
		seq        int64
		docID      string
		revID      string
		parentID   sql.NullString
		deleted    bool
		properties string
	)
	if err := row.Scan(&seq, &docID, &revID, &parentID, &deleted, &properties); err != nil {
		return nil, err
	}

	id, err := revtree.ParseRevisionID(revID)
	if err != nil {
		return nil, fmt.Errorf("doc %q: %w", docID, err)
	}
	var parent revtree.RevisionID
	if parentID.Valid {
		parent, err = revtree.ParseRevisionID(parentID.String)
		if err != nil {
			return nil, fmt.Errorf("doc %q rev %s parent: %w", docID, revID, err)
		}
	}
	body, err := unmarshalProperties(properties)
	if err != nil {
		return nil, fmt.Errorf("doc %q rev %s: %w", docID, revID, err)
	}
	return revtree.NewSavedRevision(docID, id, parent, deleted, body, seq), nil
}

func nullableRevID(id revtree.RevisionID) sql.NullString {
	if id.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}
