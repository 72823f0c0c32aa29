package engine

import "sync/atomic"

// Clock is a monotonic logical counter. The subsystem uses it to number
// live-query evaluations and delivered batches so logs and traces order
// events without wall-clock timestamps.
//
// Clock is safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next increments the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current value without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
