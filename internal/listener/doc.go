// Package listener tracks the listeners registered on one database.
//
// Every registration returns a Handle carrying a UUIDv7 id and the kind of
// listener it names. Removing a handle that is unknown, already removed, or
// of the wrong kind fails with a LISTENER_LIFECYCLE_ERROR. A Registry is
// owned by a database handle; there is no process-wide registry.
package listener
