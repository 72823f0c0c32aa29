// Package engine defines the contract between the conflict subsystem and the
// document engine it runs against, plus the small concurrency primitives the
// subsystem's delivery loops share.
//
// The document engine is an external collaborator. The conflict watcher and
// resolution coordinator only ever talk to it through Engine and Tx:
//
//   - GetLeafRevisions re-reads the current leaves of one document.
//   - RunInTransaction runs work atomically; it commits iff work returns nil.
//   - WatchConflicts opens a standing query over conflicted documents.
//
// The reference implementation lives in internal/store.
//
// Delivery model:
// Every callback runs on a delivery goroutine owned by the subsystem, never on
// the goroutine that registered it. Delivery goroutines consume an unbounded
// FIFO Queue so that a slow callback never blocks the engine's change feed.
package engine
