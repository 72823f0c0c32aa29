// Package store is the embedded reference document engine, backed by SQLite.
//
// It keeps every revision of every document in one table and maintains a
// leaf flag per revision, which is all the conflict subsystem needs:
//
//   - GetLeafRevisions reads a document's leaves in winner order
//   - SaveAllowingConflict appends a revision under any existing parent
//   - RunInTransaction gives all-or-nothing writes
//   - WatchConflicts runs a live query over documents with more than one
//     live leaf
//
// There is no view indexing, no attachments and no wire protocol. The
// in-process replicator (internal/replication) copies revisions between two
// stores with InsertRevision and RevisionsSince.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON
//   - one open connection: SQLite has a single writer
//
// Because the pool holds exactly one connection, code running inside
// RunInTransaction must read through the Tx it was handed. Calling back into
// the Store from inside a transaction blocks until the transaction ends.
//
// The schema is applied with golang-migrate from the embedded migrations
// directory. Properties are stored as RFC 8785 canonical JSON.
package store
