package replication

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/roach88/docsync/internal/conflict"
	"github.com/roach88/docsync/internal/engine"
)

// Callback receives each status transition.
type Callback func(Status)

type monitorState int

const (
	monitorNew monitorState = iota
	monitorRunning
	monitorStopped
)

// Monitor delivers the status reports of one replication to a callback.
//
// The status at subscription time is available from Current and is not
// delivered. After that every report reaches the callback, in order and
// without de-duplication, on the monitor's goroutine. Once Stop returns no
// further callback starts. Stop does not wait for a callback that is already
// running, so the callback may remove its own listener; Done is closed once
// that callback has returned.
type Monitor struct {
	source   StatusSource
	callback Callback
	logger   *slog.Logger

	mu      sync.Mutex
	state   monitorState
	current Status
	feed    StatusFeed
	cancel  context.CancelFunc
	done    chan struct{}
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithMonitorLogger sets the logger. Defaults to slog.Default().
func WithMonitorLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = logger }
}

// NewMonitor creates a stopped monitor.
func NewMonitor(source StatusSource, callback Callback, opts ...MonitorOption) *Monitor {
	if callback == nil {
		callback = func(Status) {}
	}
	m := &Monitor{
		source:   source,
		callback: callback,
		logger:   slog.Default(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start subscribes to the replication's status reports. It returns an
// ENGINE_UNAVAILABLE error if the subscription fails. A stopped monitor
// cannot be restarted.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case monitorRunning:
		return nil
	case monitorStopped:
		return conflict.NewListenerLifecycleError("replication status listener already removed")
	}

	feed, err := m.source.WatchStatus(ctx)
	if err != nil {
		return conflict.NewEngineUnavailable("", err)
	}
	// Read after subscribing so no report falls between the two.
	m.current = MapStatus(m.source.Status())

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.state = monitorRunning
	m.feed = feed
	m.cancel = cancel
	go m.loop(loopCtx, feed)

	m.logger.Debug("replication status listener started", "status", m.current)
	return nil
}

// Current returns the most recently observed status.
func (m *Monitor) Current() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Stop ends delivery without waiting for an in-flight callback. It is safe to
// call from the callback. A second Stop returns a LISTENER_LIFECYCLE_ERROR.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if m.state != monitorRunning {
		m.mu.Unlock()
		return conflict.NewListenerLifecycleError("replication status listener is not registered")
	}
	m.state = monitorStopped
	m.cancel()
	m.feed.Stop()
	m.mu.Unlock()

	m.logger.Debug("replication status listener stopped")
	return nil
}

// Done returns a channel closed when the delivery goroutine exits.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// accept records status and reports whether it may be delivered.
func (m *Monitor) accept(status Status) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != monitorRunning {
		return false
	}
	m.current = status
	return true
}

func (m *Monitor) loop(ctx context.Context, feed StatusFeed) {
	defer close(m.done)

	for {
		raw, err := feed.Next(ctx)
		if err != nil {
			if !errors.Is(err, engine.ErrFeedClosed) && ctx.Err() == nil {
				m.logger.Warn("replication status feed ended", "error", err)
			}
			return
		}

		status := MapStatus(raw)
		if !m.accept(status) {
			return
		}
		m.call(status)
	}
}

func (m *Monitor) call(status Status) {
	defer func() {
		if p := recover(); p != nil {
			m.logger.Error("replication status callback panicked",
				"status", status,
				"panic", p,
				"stack", string(debug.Stack()))
		}
	}()
	m.callback(status)
}
