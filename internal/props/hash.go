package props

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainRevision separates revision digests from any other hash computed
// over canonical JSON. The version suffix allows a future algorithm change.
const DomainRevision = "docsync/revision/v1"

// DigestLength is the number of hex characters kept from the SHA-256 sum.
const DigestLength = 32

// hashWithDomain computes SHA256(domain + 0x00 + data) as lowercase hex.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest computes the content hash part of a revision id. Two writers that
// derive the same body with the same deletion flag from the same parent get
// the same digest, which makes replicated writes idempotent.
//
// parent is the parent revision id in string form, or "" for a root.
func Digest(parent string, deleted bool, body Object) (string, error) {
	if body == nil {
		body = Object{}
	}
	obj := Object{
		"parent":  String(parent),
		"deleted": Bool(deleted),
		"body":    body,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	return hashWithDomain(DomainRevision, canonical)[:DigestLength], nil
}

// MustDigest is like Digest but panics on error.
// Use only in tests or when the body is known to be valid.
func MustDigest(parent string, deleted bool, body Object) string {
	d, err := Digest(parent, deleted, body)
	if err != nil {
		panic(err)
	}
	return d
}
