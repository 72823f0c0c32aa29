package replication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/docsync/internal/engine"
	"github.com/roach88/docsync/internal/store"
)

const (
	// DefaultBatchSize is the number of source revisions read per query.
	DefaultBatchSize = 100

	defaultMinBackoff = 100 * time.Millisecond
	defaultMaxBackoff = 10 * time.Second
)

// Replicator copies revisions, with their ancestry, from a source store to
// a target store in source sequence order. Edits made on both sides become
// sibling leaves in the target, which is how conflicts arise.
//
// A one-shot replicator stops after it has caught up. A continuous one
// stays Idle waiting for source commits, and retries with backoff after a
// failed pass. Progress is kept as a checkpoint in the target store, keyed
// by the source store id.
type Replicator struct {
	id     string
	source *store.Store
	target *store.Store
	logger *slog.Logger

	batchSize  int
	minBackoff time.Duration
	maxBackoff time.Duration

	mu         sync.Mutex
	continuous bool
	running    bool
	status     RawStatus
	lastErr    error
	cancel     context.CancelFunc
	done       chan struct{}
	feeds      map[*statusFeed]struct{}
}

// Option configures a Replicator.
type Option func(*Replicator)

// WithContinuous sets continuous mode. Defaults to one-shot.
func WithContinuous(continuous bool) Option {
	return func(r *Replicator) { r.continuous = continuous }
}

// WithBatchSize sets how many revisions are read per query.
func WithBatchSize(n int) Option {
	return func(r *Replicator) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithBackoff bounds the retry delay after a failed pass in continuous
// mode. The delay doubles from lo up to hi.
func WithBackoff(lo, hi time.Duration) Option {
	return func(r *Replicator) {
		r.minBackoff = lo
		r.maxBackoff = hi
	}
}

// WithIDGenerator sets the source of the replicator's id.
func WithIDGenerator(gen engine.IDGenerator) Option {
	return func(r *Replicator) { r.id = gen.Generate() }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Replicator) { r.logger = logger }
}

// New creates a stopped replicator from source to target.
func New(source, target *store.Store, opts ...Option) *Replicator {
	r := &Replicator{
		source:     source,
		target:     target,
		logger:     slog.Default(),
		batchSize:  DefaultBatchSize,
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
		status:     RawStopped,
		feeds:      make(map[*statusFeed]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.id == "" {
		r.id = engine.UUIDv7Generator{}.Generate()
	}
	r.logger = r.logger.With("replicator", r.id)
	return r
}

// ID returns the replicator's id.
func (r *Replicator) ID() string { return r.id }

// Source returns the store revisions are read from.
func (r *Replicator) Source() *store.Store { return r.source }

// Target returns the store revisions are written to.
func (r *Replicator) Target() *store.Store { return r.target }

// Start begins replicating in the background. Starting a running
// replicator does nothing.
func (r *Replicator) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}
	// A restart waits for the previous run to report Stopped.
	if r.done != nil {
		prev := r.done
		r.mu.Unlock()
		<-prev
		r.mu.Lock()
		if r.running {
			return nil
		}
	}

	signal, unsubscribe, err := r.source.Subscribe()
	if err != nil {
		return fmt.Errorf("start replicator: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.running = true
	r.lastErr = nil
	r.cancel = cancel
	r.done = make(chan struct{})
	r.setStatusLocked(RawConnecting)

	go r.run(runCtx, signal, unsubscribe, r.done)

	r.logger.Info("replicator started",
		"source", r.source.ID(),
		"target", r.target.ID(),
		"continuous", r.continuous)
	return nil
}

// Stop halts replication and waits for the background run to exit. The
// final report is Stopped. Stopping a stopped replicator does nothing.
func (r *Replicator) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done
}

// IsRunning reports whether the replicator is started.
func (r *Replicator) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// SetContinuous switches between one-shot and continuous mode. It takes
// effect at the end of the current pass.
func (r *Replicator) SetContinuous(continuous bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.continuous = continuous
}

// IsContinuous reports the current mode.
func (r *Replicator) IsContinuous() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.continuous
}

// Status returns the most recent native status.
func (r *Replicator) Status() RawStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// LastError returns the error of the most recent failed pass, or nil.
func (r *Replicator) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// WatchStatus subscribes to status reports. Reports made after the call are
// delivered in order; the feed never drops one.
func (r *Replicator) WatchStatus(ctx context.Context) (StatusFeed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	f := &statusFeed{queue: engine.NewQueue[RawStatus]()}
	f.unsubscribe = func() {
		r.mu.Lock()
		delete(r.feeds, f)
		r.mu.Unlock()
	}
	r.feeds[f] = struct{}{}
	return f, nil
}

func (r *Replicator) setStatus(status RawStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setStatusLocked(status)
}

func (r *Replicator) setStatusLocked(status RawStatus) {
	r.status = status
	for f := range r.feeds {
		f.queue.Enqueue(status)
	}
	reportStatus(status)
	r.logger.Debug("replication status", "status", status)
}

func (r *Replicator) run(ctx context.Context, signal <-chan struct{}, unsubscribe func(), done chan struct{}) {
	defer close(done)
	defer unsubscribe()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.cancel()
		r.setStatusLocked(RawStopped)
		r.mu.Unlock()
		r.logger.Info("replicator stopped")
	}()

	backoff := r.minBackoff
	for {
		r.setStatus(RawActive)
		n, err := r.pass(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			reportCopyError()
			r.mu.Lock()
			r.lastErr = err
			r.setStatusLocked(RawOffline)
			r.mu.Unlock()
			r.logger.Warn("replication pass failed", "error", err, "retry_in", backoff)

			if !r.IsContinuous() {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, r.maxBackoff)
			continue
		}
		backoff = r.minBackoff
		if n > 0 {
			r.logger.Debug("replication pass complete", "copied", n)
		}

		if !r.IsContinuous() {
			return
		}
		r.setStatus(RawIdle)
		select {
		case <-ctx.Done():
			return
		case _, ok := <-signal:
			if !ok {
				r.mu.Lock()
				r.lastErr = fmt.Errorf("source: %w", store.ErrClosed)
				r.mu.Unlock()
				return
			}
		}
	}
}

// pass copies every source revision past the checkpoint.
func (r *Replicator) pass(ctx context.Context) (int, error) {
	peer := r.source.ID()
	since, err := r.target.Checkpoint(ctx, peer)
	if err != nil {
		return 0, err
	}

	copied := 0
	for {
		revs, err := r.source.RevisionsSince(ctx, since, r.batchSize)
		if err != nil {
			return copied, err
		}
		if len(revs) == 0 {
			return copied, nil
		}
		for _, rev := range revs {
			inserted, err := r.target.InsertRevision(ctx, rev, peer)
			if err != nil {
				return copied, fmt.Errorf("copy %s %s: %w", rev.DocumentID(), rev.ID(), err)
			}
			if inserted {
				copied++
				reportCopied(1)
			}
			since = rev.Sequence()
		}
		if err := r.target.SetCheckpoint(ctx, peer, since); err != nil {
			return copied, err
		}
	}
}

// statusFeed is one WatchStatus subscription.
type statusFeed struct {
	queue       *engine.Queue[RawStatus]
	unsubscribe func()
	once        sync.Once
}

func (f *statusFeed) Next(ctx context.Context) (RawStatus, error) {
	status, err := f.queue.Dequeue(ctx)
	if errors.Is(err, engine.ErrQueueClosed) {
		return 0, engine.ErrFeedClosed
	}
	return status, err
}

func (f *statusFeed) Stop() {
	f.once.Do(func() {
		f.unsubscribe()
		f.queue.Drain()
		f.queue.Close()
	})
}
