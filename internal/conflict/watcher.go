package conflict

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/roach88/docsync/internal/engine"
)

// ConflictObserver receives conflict notifications. OnChange runs on the
// watcher's goroutine and must not call the watcher's Stop.
type ConflictObserver interface {
	OnChange(documentIDs []string)
}

// ObserverFunc adapts a function to ConflictObserver.
type ObserverFunc func(documentIDs []string)

// OnChange calls f.
func (f ObserverFunc) OnChange(documentIDs []string) { f(documentIDs) }

// Watcher runs the engine's conflicts live query and forwards each change to
// an observer.
//
// Start and Stop are idempotent. Once Stop returns, the observer is not
// called again until the next Start. An engine failure is reported once to
// the error handler as an EngineUnavailable error and the watcher halts; it
// does not retry on its own.
type Watcher struct {
	eng      engine.Engine
	observer ConflictObserver
	onError  func(error)
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	epoch   uint64
	feed    engine.ConflictFeed
	cancel  context.CancelFunc
	done    chan struct{} // closed when the current loop exits

	// deliver is held while the observer runs, so Stop can wait out an
	// in-flight notification.
	deliver sync.Mutex
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithErrorHandler sets the function that receives engine failures.
func WithErrorHandler(fn func(error)) WatcherOption {
	return func(w *Watcher) { w.onError = fn }
}

// WithWatcherLogger sets the logger. Defaults to slog.Default().
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logger }
}

// NewWatcher creates a stopped watcher.
func NewWatcher(eng engine.Engine, observer ConflictObserver, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		eng:      eng,
		observer: observer,
		onError:  func(error) {},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start opens the live query and begins delivery. It returns an
// EngineUnavailable error if the query cannot be established. Calling Start
// on a running watcher does nothing.
//
// ctx bounds establishing the query only; the watcher runs until Stop.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}
	// A restart waits for the previous loop to finish.
	if w.done != nil {
		prev := w.done
		w.mu.Unlock()
		<-prev
		w.mu.Lock()
		if w.running {
			return nil
		}
	}

	feed, err := w.eng.WatchConflicts(ctx)
	if err != nil {
		return NewEngineUnavailable("", err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.epoch++
	w.running = true
	w.feed = feed
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.loop(loopCtx, feed, w.epoch, w.done)

	reportWatcherStarted()
	w.logger.Info("conflict watcher started")
	return nil
}

// Stop ends delivery. If a notification is in flight, Stop waits for the
// observer to return. Calling Stop on a stopped watcher does nothing.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.epoch++
	w.cancel()
	w.feed.Stop()
	w.mu.Unlock()

	// Wait out an in-flight OnChange; the epoch check keeps later ones out.
	w.deliver.Lock()
	w.deliver.Unlock()

	reportWatcherStopped()
	w.logger.Info("conflict watcher stopped")
}

// Running reports whether the watcher is delivering.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Done returns a channel closed when the current delivery loop exits, or nil
// if the watcher was never started.
func (w *Watcher) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

func (w *Watcher) current(epoch uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running && w.epoch == epoch
}

func (w *Watcher) loop(ctx context.Context, feed engine.ConflictFeed, epoch uint64, done chan struct{}) {
	defer close(done)
	defer feed.Stop()

	for {
		change, err := feed.Next(ctx)
		if err != nil {
			if errors.Is(err, engine.ErrFeedClosed) || ctx.Err() != nil {
				return
			}
			w.fail(epoch, err)
			return
		}

		w.deliver.Lock()
		if w.current(epoch) {
			w.logger.Debug("conflicts changed",
				"seq", change.Seq,
				"docs", len(change.DocumentIDs))
			w.observer.OnChange(change.DocumentIDs)
		}
		w.deliver.Unlock()
	}
}

// fail halts the watcher after an engine error and reports it once.
func (w *Watcher) fail(epoch uint64, cause error) {
	w.mu.Lock()
	if !w.running || w.epoch != epoch {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.epoch++
	w.cancel()
	w.mu.Unlock()

	reportWatcherStopped()
	reportWatcherFailed()
	err := NewEngineUnavailable("", cause)
	w.logger.Error("conflict watcher halted", "error", err)
	w.onError(err)
}
