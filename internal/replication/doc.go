// Package replication copies revisions between stores and reports the
// replicator's progress as a stream of status transitions.
//
// A Replicator emits native RawStatus codes. A Monitor subscribes to them,
// maps each onto the four states applications care about (Stopped,
// Offline, Idle, Active) and delivers every report, in order, on its own
// goroutine.
package replication
