package engine

import (
	"context"
	"sync"
)

// Queue is a thread-safe, unbounded FIFO queue.
//
// Producers never block, so a live query can hand batches to a slow callback
// without stalling. The consumer waits through a buffered signal channel,
// which keeps waiting context-aware.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	signal chan struct{} // buffered, size 1
}

// NewQueue creates an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		items:  make([]T, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds item to the back of the queue.
// Returns false if the queue is closed.
func (q *Queue[T]) Enqueue(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, item)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front item without blocking.
func (q *Queue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	item := q.items[0]
	// Clear the slot so the backing array does not retain the item.
	q.items[0] = zero
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return item, true
}

// Dequeue blocks until an item is available. Items enqueued before Close are
// still returned; after that it returns ErrQueueClosed. It returns ctx.Err()
// if ctx ends first.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T
	for {
		if item, ok := q.TryDequeue(); ok {
			return item, nil
		}

		q.mu.Lock()
		done := q.closed && len(q.items) == 0
		q.mu.Unlock()
		if done {
			return zero, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-q.signal:
		}
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain discards every queued item and returns how many were dropped.
func (q *Queue[T]) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	clear(q.items)
	q.items = q.items[:0]
	return n
}

// Close stops the queue from accepting items and wakes any waiter.
// Safe to call more than once.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
