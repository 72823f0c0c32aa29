package database

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/roach88/docsync/internal/store"
)

// changeListener follows the store's changes feed. Stop does not wait for a
// running callback, so the callback may remove its own listener.
type changeListener struct {
	store    *store.Store
	callback func([]store.Change)
	logger   *slog.Logger

	signal      <-chan struct{}
	unsubscribe func()
	stopOnce    sync.Once
	stopped     chan struct{}
	done        chan struct{}
}

func startChangeListener(ctx context.Context, s *store.Store, callback func([]store.Change), logger *slog.Logger) (*changeListener, error) {
	signal, unsubscribe, err := s.Subscribe()
	if err != nil {
		return nil, err
	}
	// Only commits after this point are reported.
	since, err := s.LastSequence(ctx)
	if err != nil {
		unsubscribe()
		return nil, err
	}

	if callback == nil {
		callback = func([]store.Change) {}
	}
	cl := &changeListener{
		store:       s,
		callback:    callback,
		logger:      logger,
		signal:      signal,
		unsubscribe: unsubscribe,
		stopped:     make(chan struct{}),
		done:        make(chan struct{}),
	}
	go cl.loop(since)
	return cl, nil
}

func (cl *changeListener) loop(since int64) {
	defer close(cl.done)
	ctx := context.Background()

	for {
		select {
		case <-cl.stopped:
			return
		case _, ok := <-cl.signal:
			if !ok {
				return
			}
		}

		changes, err := cl.store.ChangesSince(ctx, since)
		if err != nil {
			if !cl.isStopped() {
				cl.logger.Warn("database change listener halted", "error", err)
			}
			return
		}
		if len(changes) == 0 {
			continue
		}
		since = changes[len(changes)-1].Seq

		if cl.isStopped() {
			return
		}
		cl.call(changes)
	}
}

func (cl *changeListener) isStopped() bool {
	select {
	case <-cl.stopped:
		return true
	default:
		return false
	}
}

func (cl *changeListener) call(changes []store.Change) {
	defer func() {
		if p := recover(); p != nil {
			cl.logger.Error("database change callback panicked",
				"panic", p,
				"stack", string(debug.Stack()))
		}
	}()
	cl.callback(changes)
}

// Stop ends delivery. No callback starts after it returns.
func (cl *changeListener) Stop() error {
	cl.stopOnce.Do(func() {
		close(cl.stopped)
		cl.unsubscribe()
	})
	return nil
}

// Done returns a channel closed when the delivery goroutine exits.
func (cl *changeListener) Done() <-chan struct{} {
	return cl.done
}
