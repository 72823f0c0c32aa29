// Package database is the caller-facing handle over one document store.
//
// A Database is constructed once per logical database and passed around
// explicitly. It owns the listener registry and the per-document locks
// shared by every conflicts listener registered on it, so two listeners on
// the same database never resolve the same document at the same time.
package database
