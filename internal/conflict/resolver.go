package conflict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/roach88/docsync/internal/engine"
	"github.com/roach88/docsync/internal/revtree"
)

// ConflictsFunc is the application's resolution logic. It receives the
// document's live leaves in winner order and returns the revisions to save,
// typically created with SavedRevision.CreateRevision. All of them are saved
// in one transaction, or none are.
//
// ctx is cancelled when the resolve timeout expires.
type ConflictsFunc func(ctx context.Context, docID string, conflicts []*revtree.SavedRevision) ([]*revtree.UnsavedRevision, error)

// Status is the result of one resolution attempt.
type Status int

const (
	// StatusSkipped means the document had at most one live leaf when it
	// was re-read. No callback fires for a skipped document.
	StatusSkipped Status = iota
	// StatusResolved means the returned revisions were committed.
	StatusResolved
	// StatusFailed means the attempt failed; Outcome.Err says why.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSkipped:
		return "skipped"
	case StatusResolved:
		return "resolved"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Outcome reports one resolution attempt.
type Outcome struct {
	DocumentID string
	Status     Status
	// Leaves is the number of live leaves handed to the callback.
	Leaves int
	// Saved lists the revisions committed by a successful resolution.
	Saved []revtree.RevisionID
	// Err is a *Error when Status is StatusFailed.
	Err error
}

func outcomeLabel(o Outcome) string {
	if o.Status != StatusFailed {
		return o.Status.String()
	}
	var e *Error
	if errors.As(o.Err, &e) {
		switch e.Code {
		case CodeResolutionCallbackError:
			return "callback_error"
		case CodeTransactionConflict:
			return "transaction_conflict"
		case CodeEngineUnavailable:
			return "engine_error"
		}
	}
	return "failed"
}

// DefaultResolveTimeout bounds one conflicts callback.
const DefaultResolveTimeout = 30 * time.Second

// Resolver applies the per-document resolution algorithm.
type Resolver struct {
	eng       engine.Engine
	conflicts ConflictsFunc
	locks     *DocLocks
	timeout   time.Duration
	logger    *slog.Logger
}

// Option configures a Resolver or a Coordinator.
type Option func(*options)

type options struct {
	locks   *DocLocks
	timeout time.Duration
	logger  *slog.Logger
}

// WithLocks shares a lock table between resolvers. Coordinators of the same
// database must share one.
func WithLocks(locks *DocLocks) Option {
	return func(o *options) { o.locks = locks }
}

// WithResolveTimeout bounds each conflicts callback. Zero disables the
// bound. Default: DefaultResolveTimeout.
func WithResolveTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func buildOptions(opts []Option) options {
	o := options{timeout: DefaultResolveTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.locks == nil {
		o.locks = NewDocLocks()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// NewResolver creates a Resolver. conflicts must not be nil.
func NewResolver(eng engine.Engine, conflicts ConflictsFunc, opts ...Option) (*Resolver, error) {
	if eng == nil {
		return nil, errors.New("conflict: nil engine")
	}
	if conflicts == nil {
		return nil, errors.New("conflict: nil conflicts callback")
	}
	o := buildOptions(opts)
	return &Resolver{
		eng:       eng,
		conflicts: conflicts,
		locks:     o.locks,
		timeout:   o.timeout,
		logger:    o.logger,
	}, nil
}

// Resolve runs the algorithm for one document:
//
//  1. take the document lock
//  2. re-read the live leaves; skip when there is at most one
//  3. call the ConflictsFunc
//  4. in one transaction, check the leaves are unchanged and save every
//     returned revision
//
// The lock is held from step 2 to the end of step 4. When the callback
// outlives the resolve timeout the lock stays held until it returns, so a
// later Resolve of the same document waits for the abandoned call.
func (r *Resolver) Resolve(ctx context.Context, docID string) Outcome {
	lock := &heldLock{unlock: r.locks.Lock(docID)}
	defer lock.release()

	start := time.Now()
	out := r.resolveLocked(ctx, docID, lock)
	reportOutcome(outcomeLabel(out), out.Status, time.Since(start).Seconds())

	switch out.Status {
	case StatusResolved:
		r.logger.Info("conflict resolved",
			"doc", docID,
			"leaves", out.Leaves,
			"saved", len(out.Saved))
	case StatusSkipped:
		r.logger.Debug("conflict already converged", "doc", docID)
	case StatusFailed:
		r.logger.Warn("conflict resolution failed", "doc", docID, "error", out.Err)
	}
	return out
}

// heldLock is a document lock that can be handed to another goroutine.
type heldLock struct {
	unlock func()
	moved  bool
}

// handOff transfers the unlock to the caller; release then does nothing.
func (h *heldLock) handOff() func() {
	h.moved = true
	return h.unlock
}

func (h *heldLock) release() {
	if !h.moved {
		h.unlock()
	}
}

func (r *Resolver) resolveLocked(ctx context.Context, docID string, lock *heldLock) Outcome {
	out := Outcome{DocumentID: docID}

	leaves, err := r.eng.GetLeafRevisions(ctx, docID)
	if err != nil {
		out.Status = StatusFailed
		out.Err = NewEngineUnavailable(docID, err)
		return out
	}
	if len(leaves) <= 1 {
		out.Status = StatusSkipped
		return out
	}
	out.Leaves = len(leaves)

	revs, err := r.invoke(ctx, docID, leaves, lock)
	if err != nil {
		out.Status = StatusFailed
		out.Err = err
		return out
	}
	if len(revs) == 0 {
		r.logger.Warn("conflicts callback returned no revisions", "doc", docID)
	}

	signature := revtree.LeafSignature(leaves)
	var saved []revtree.RevisionID
	err = r.eng.RunInTransaction(ctx, func(tx engine.Tx) error {
		saved = saved[:0]
		current, err := tx.GetLeafRevisions(ctx, docID)
		if err != nil {
			return err
		}
		if revtree.LeafSignature(current) != signature {
			return fmt.Errorf("%w: had %s, now %s", ErrLeavesChanged, signature, revtree.LeafSignature(current))
		}
		for _, rev := range revs {
			s, err := tx.SaveAllowingConflict(ctx, rev)
			if err != nil {
				return err
			}
			saved = append(saved, s.ID())
		}
		return nil
	})
	if err != nil {
		out.Status = StatusFailed
		out.Err = NewTransactionConflict(docID, err)
		return out
	}

	out.Status = StatusResolved
	out.Saved = saved
	return out
}

// invoke calls the ConflictsFunc under the resolve timeout, turning errors,
// panics and unusable results into a ResolutionCallbackError.
func (r *Resolver) invoke(ctx context.Context, docID string, leaves []*revtree.SavedRevision, lock *heldLock) ([]*revtree.UnsavedRevision, error) {
	type result struct {
		revs []*revtree.UnsavedRevision
		err  error
	}

	call := func(ctx context.Context) (res result) {
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("conflicts callback panicked",
					"doc", docID,
					"panic", p,
					"stack", string(debug.Stack()))
				res = result{err: NewResolutionCallbackError(docID, fmt.Sprintf("callback panicked: %v", p), nil)}
			}
		}()
		revs, err := r.conflicts(ctx, docID, leaves)
		return result{revs: revs, err: err}
	}

	// A callback that ignores ctx keeps running after the timeout. Its result
	// is discarded and it takes over the document lock.
	var res result
	if r.timeout <= 0 {
		res = call(ctx)
	} else {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		done := make(chan result, 1)
		go func() { done <- call(callCtx) }()

		select {
		case res = <-done:
		case <-callCtx.Done():
			unlock := lock.handOff()
			go func() {
				<-done
				unlock()
				r.logger.Debug("abandoned conflicts callback returned", "doc", docID)
			}()
			cause := callCtx.Err()
			if errors.Is(cause, context.DeadlineExceeded) {
				cause = ErrCallbackTimeout
			}
			return nil, NewResolutionCallbackError(docID, "callback did not return", cause)
		}
	}

	if res.err != nil {
		if IsResolutionCallbackError(res.err) {
			return nil, res.err
		}
		return nil, NewResolutionCallbackError(docID, "callback returned an error", res.err)
	}
	for i, rev := range res.revs {
		if rev == nil {
			return nil, NewResolutionCallbackError(docID, fmt.Sprintf("revision %d is nil", i), nil)
		}
		if rev.DocumentID() != docID {
			return nil, NewResolutionCallbackError(docID,
				fmt.Sprintf("revision %d belongs to document %q", i, rev.DocumentID()), nil)
		}
	}
	return res.revs, nil
}

// ResolveAll resolves every currently conflicted document, in id order.
func (r *Resolver) ResolveAll(ctx context.Context) ([]Outcome, error) {
	ids, err := r.eng.ConflictedDocuments(ctx)
	if err != nil {
		return nil, NewEngineUnavailable("", err)
	}
	outcomes := make([]Outcome, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, r.Resolve(ctx, id))
	}
	return outcomes, nil
}
