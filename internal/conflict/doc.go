// Package conflict detects documents whose revision history forked and
// hands each one to application-supplied resolution logic.
//
// Three pieces cooperate:
//
//   - Watcher runs the engine's conflicts live query and reports which
//     documents entered the conflict set or changed leaves.
//   - Resolver applies the per-document algorithm: lock the document,
//     re-read its live leaves, call the ConflictsFunc, then save every
//     returned revision in one transaction that first checks the leaves
//     did not move.
//   - Coordinator wires a Watcher to a Resolver through a FIFO queue and a
//     single delivery goroutine, and reports each attempted document exactly
//     once through its success or error callback.
//
// Errors surfaced to callbacks are *Error values carrying one of four codes;
// use the Is* predicates to classify them.
package conflict
