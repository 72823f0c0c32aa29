package testutil

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// Event is one recorded callback.
type Event struct {
	Kind       string // "success" or "error"
	DocumentID string
	Err        error
}

func (e Event) String() string {
	if e.Err != nil {
		return fmt.Sprintf("%s(%s): %v", e.Kind, e.DocumentID, e.Err)
	}
	return fmt.Sprintf("%s(%s)", e.Kind, e.DocumentID)
}

// Recorder collects success and error callbacks from a conflicts listener.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	signal chan struct{}
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{signal: make(chan struct{}, 1)}
}

// Success is a success callback.
func (r *Recorder) Success(docID string) {
	r.add(Event{Kind: "success", DocumentID: docID})
}

// Error is an error callback.
func (r *Recorder) Error(docID string, err error) {
	r.add(Event{Kind: "error", DocumentID: docID, Err: err})
}

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()

	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of kind were recorded for docID.
func (r *Recorder) Count(kind, docID string) int {
	n := 0
	for _, e := range r.Events() {
		if e.Kind == kind && e.DocumentID == docID {
			n++
		}
	}
	return n
}

// WaitFor blocks until at least n events were recorded, failing the test
// after timeout.
func (r *Recorder) WaitFor(t testing.TB, n int, timeout time.Duration) []Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		events := r.Events()
		if len(events) >= n {
			return events
		}
		select {
		case <-r.signal:
		case <-deadline:
			t.Fatalf("timed out waiting for %d callbacks, got %d: %v", n, len(events), events)
			return nil
		}
	}
}

// Quiet asserts that no further event arrives within d.
func (r *Recorder) Quiet(t testing.TB, d time.Duration) {
	t.Helper()
	before := len(r.Events())
	time.Sleep(d)
	if after := r.Events(); len(after) != before {
		t.Fatalf("unexpected callbacks: %v", after[before:])
	}
}
