package conflict

import (
	"context"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/roach88/docsync/internal/engine"
)

// SuccessFunc is called after a document's resolution committed.
type SuccessFunc func(docID string)

// ErrorFunc is called when a document's resolution failed. err is a *Error.
// docID is "" for failures of the live query itself.
type ErrorFunc func(docID string, err error)

type coordinatorState int

const (
	stateNew coordinatorState = iota
	stateRunning
	stateStopped
)

// batch is one unit of work on the delivery queue: either a set of flagged
// documents or a watcher failure.
type batch struct {
	docIDs []string
	err    error
}

// Coordinator connects a Watcher to a Resolver. Flagged documents are queued
// and processed in order by a single delivery goroutine; every callback runs
// on that goroutine. Each attempted document gets exactly one of the success
// or error callbacks; skipped documents get neither.
type Coordinator struct {
	resolver *Resolver
	success  SuccessFunc
	onError  ErrorFunc
	watcher  *Watcher
	queue    *engine.Queue[batch]
	clock    *engine.Clock
	logger   *slog.Logger

	mu    sync.Mutex
	state coordinatorState
	done  chan struct{}
}

// NewCoordinator creates a stopped coordinator. success and onError may be
// nil.
func NewCoordinator(eng engine.Engine, conflicts ConflictsFunc, success SuccessFunc, onError ErrorFunc, opts ...Option) (*Coordinator, error) {
	resolver, err := NewResolver(eng, conflicts, opts...)
	if err != nil {
		return nil, err
	}
	if success == nil {
		success = func(string) {}
	}
	if onError == nil {
		onError = func(string, error) {}
	}

	c := &Coordinator{
		resolver: resolver,
		success:  success,
		onError:  onError,
		queue:    engine.NewQueue[batch](),
		clock:    engine.NewClock(),
		logger:   resolver.logger,
		done:     make(chan struct{}),
	}
	c.watcher = NewWatcher(eng, ObserverFunc(c.enqueue),
		WithErrorHandler(c.enqueueFailure),
		WithWatcherLogger(resolver.logger))
	return c, nil
}

// Start opens the live query and starts the delivery goroutine. It returns
// an EngineUnavailable error synchronously if the query cannot be
// established. Starting a running coordinator does nothing; a stopped
// coordinator cannot be restarted.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateRunning:
		return nil
	case stateStopped:
		return NewListenerLifecycleError("conflicts listener already removed")
	}

	if err := c.watcher.Start(ctx); err != nil {
		return err
	}
	c.state = stateRunning
	go c.deliver()
	return nil
}

// Stop halts the watcher and drops batches that have not started. A
// resolution already in flight completes and reports its outcome. A second
// Stop returns a ListenerLifecycleError.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if c.state != stateRunning {
		c.mu.Unlock()
		return NewListenerLifecycleError("conflicts listener is not registered")
	}
	c.state = stateStopped
	c.mu.Unlock()

	c.watcher.Stop()
	if n := c.queue.Drain(); n > 0 {
		reportBatchesDropped(n)
		c.logger.Debug("dropped queued conflict batches", "count", n)
	}
	c.queue.Close()
	c.logger.Debug("conflicts listener stopped", "batches", c.clock.Current())
	return nil
}

// Done returns a channel closed when the delivery goroutine has exited after
// Stop.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Resolver returns the coordinator's per-document resolver.
func (c *Coordinator) Resolver() *Resolver {
	return c.resolver
}

// ResolveDocument resolves one document now, on the calling goroutine, and
// fires the matching callback.
func (c *Coordinator) ResolveDocument(ctx context.Context, docID string) Outcome {
	out := c.resolver.Resolve(ctx, docID)
	c.report(out)
	return out
}

// ResolveAll resolves every currently conflicted document on the calling
// goroutine, firing callbacks as it goes.
func (c *Coordinator) ResolveAll(ctx context.Context) ([]Outcome, error) {
	outcomes, err := c.resolver.ResolveAll(ctx)
	for _, out := range outcomes {
		c.report(out)
	}
	return outcomes, err
}

func (c *Coordinator) stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateStopped
}

func (c *Coordinator) enqueue(docIDs []string) {
	if c.queue.Enqueue(batch{docIDs: slices.Clone(docIDs)}) {
		reportBatchQueued()
	}
}

func (c *Coordinator) enqueueFailure(err error) {
	if c.queue.Enqueue(batch{err: err}) {
		reportBatchQueued()
	}
}

// deliver is the delivery goroutine.
func (c *Coordinator) deliver() {
	defer close(c.done)

	// Resolutions are not tied to Stop: an in-flight transaction completes.
	ctx := context.Background()
	for {
		b, err := c.queue.Dequeue(ctx)
		if err != nil {
			return
		}
		reportBatchDequeued()
		seq := c.clock.Next()

		if b.err != nil {
			c.callError("", b.err)
			continue
		}

		c.logger.Debug("processing conflict batch", "batch", seq, "docs", len(b.docIDs))
		for i, docID := range b.docIDs {
			if c.stopped() {
				c.logger.Debug("listener removed, dropping rest of batch",
					"batch", seq,
					"dropped", len(b.docIDs)-i)
				break
			}
			c.report(c.resolver.Resolve(ctx, docID))
		}
	}
}

func (c *Coordinator) report(out Outcome) {
	switch out.Status {
	case StatusResolved:
		c.callSuccess(out.DocumentID)
	case StatusFailed:
		c.callError(out.DocumentID, out.Err)
	}
}

func (c *Coordinator) callSuccess(docID string) {
	defer c.recoverCallback("success", docID)
	c.success(docID)
}

func (c *Coordinator) callError(docID string, err error) {
	defer c.recoverCallback("error", docID)
	c.onError(docID, err)
}

func (c *Coordinator) recoverCallback(which, docID string) {
	if p := recover(); p != nil {
		c.logger.Error("callback panicked",
			"callback", which,
			"doc", docID,
			"panic", p,
			"stack", string(debug.Stack()))
	}
}
