package revtree

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidRevisionID is returned when a revision id string cannot be parsed.
var ErrInvalidRevisionID = errors.New("invalid revision id")

// RevisionID identifies one revision of a document.
//
// The string form is "<generation>-<digest>", for example "2-aaa".
type RevisionID struct {
	Generation int
	Digest     string
}

// ParseRevisionID parses the "<generation>-<digest>" form.
func ParseRevisionID(s string) (RevisionID, error) {
	genPart, digest, ok := strings.Cut(s, "-")
	if !ok || digest == "" {
		return RevisionID{}, fmt.Errorf("%w: %q", ErrInvalidRevisionID, s)
	}
	gen, err := strconv.Atoi(genPart)
	if err != nil || gen < 1 {
		return RevisionID{}, fmt.Errorf("%w: %q: generation must be a positive integer", ErrInvalidRevisionID, s)
	}
	return RevisionID{Generation: gen, Digest: digest}, nil
}

// MustParseRevisionID is like ParseRevisionID but panics on error.
// Use only in tests.
func MustParseRevisionID(s string) RevisionID {
	id, err := ParseRevisionID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the "<generation>-<digest>" form, or "" for the zero id.
func (r RevisionID) String() string {
	if r.IsZero() {
		return ""
	}
	return strconv.Itoa(r.Generation) + "-" + r.Digest
}

// IsZero reports whether r is the zero id, used for "no parent".
func (r RevisionID) IsZero() bool {
	return r.Generation == 0 && r.Digest == ""
}

// Compare orders ids by generation, then by digest byte-wise.
// It returns -1, 0 or +1.
func (r RevisionID) Compare(other RevisionID) int {
	switch {
	case r.Generation < other.Generation:
		return -1
	case r.Generation > other.Generation:
		return 1
	}
	return strings.Compare(r.Digest, other.Digest)
}

// MarshalText implements encoding.TextMarshaler so ids render as strings in
// JSON and YAML output.
func (r RevisionID) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *RevisionID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*r = RevisionID{}
		return nil
	}
	id, err := ParseRevisionID(string(data))
	if err != nil {
		return err
	}
	*r = id
	return nil
}
