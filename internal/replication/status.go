package replication

import (
	"context"
	"fmt"
)

// Status is the replication state delivered to listeners.
type Status int

const (
	Stopped Status = iota
	Offline
	Idle
	Active
)

func (s Status) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Offline:
		return "Offline"
	case Idle:
		return "Idle"
	case Active:
		return "Active"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// RawStatus is a status code as reported by a replicator. Codes outside the
// ones named here are possible from other engines.
type RawStatus int

const (
	RawStopped RawStatus = iota
	RawOffline
	RawIdle
	RawActive
	// RawConnecting is reported while a replicator opens its source.
	RawConnecting
)

func (r RawStatus) String() string {
	switch r {
	case RawStopped:
		return "stopped"
	case RawOffline:
		return "offline"
	case RawIdle:
		return "idle"
	case RawActive:
		return "active"
	case RawConnecting:
		return "connecting"
	default:
		return fmt.Sprintf("raw(%d)", int(r))
	}
}

// MapStatus converts a native code. Stopped, Offline and Active map to
// themselves; every other code, including Idle, maps to Idle.
func MapStatus(raw RawStatus) Status {
	switch raw {
	case RawStopped:
		return Stopped
	case RawOffline:
		return Offline
	case RawActive:
		return Active
	default:
		return Idle
	}
}

// StatusFeed yields native status reports in the order they happened.
type StatusFeed interface {
	// Next blocks for the next report. It returns engine.ErrFeedClosed
	// after Stop.
	Next(ctx context.Context) (RawStatus, error)
	Stop()
}

// StatusSource is a replication whose status can be observed.
type StatusSource interface {
	Status() RawStatus
	WatchStatus(ctx context.Context) (StatusFeed, error)
}
