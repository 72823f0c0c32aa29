package engine

import "errors"

var (
	// ErrFeedClosed is returned by a feed's Next after Stop.
	ErrFeedClosed = errors.New("feed closed")

	// ErrQueueClosed is returned by Queue.Dequeue once the queue is closed
	// and empty.
	ErrQueueClosed = errors.New("queue closed")
)
