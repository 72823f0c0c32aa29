// Package props provides the typed property model for document revisions.
//
// A revision's body is an Object: a string-keyed mapping of Value variants
// (Null, String, Int, Float, Bool, Array, Object). Values decode directly from
// JSON without passing through an untyped map, so integers keep full int64
// precision and the variant of every value is explicit.
//
// Two serializations exist:
//   - MarshalJSON / Decode: plain JSON with keys in canonical order.
//   - MarshalCanonical: RFC 8785 canonical JSON (NFC strings, UTF-16 key
//     order, no HTML escaping). Used for storage and for revision digests.
//
// This package imports nothing internal. Everything above it (revtree, store,
// conflict) treats properties as values of this package.
package props
