package listener

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/docsync/internal/conflict"
	"github.com/roach88/docsync/internal/engine"
)

// Kind names the type of a registered listener.
type Kind string

const (
	KindConflicts         Kind = "conflicts"
	KindReplicationStatus Kind = "replication-status"
	KindDatabaseChange    Kind = "database-change"
)

// Handle identifies one registration. The zero Handle names nothing.
type Handle struct {
	id   string
	kind Kind
}

// ID returns the handle's unique id.
func (h Handle) ID() string { return h.id }

// Kind returns the kind of listener the handle names.
func (h Handle) Kind() Kind { return h.kind }

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool { return h.id == "" }

func (h Handle) String() string {
	if h.IsZero() {
		return "<none>"
	}
	return fmt.Sprintf("%s/%s", h.kind, h.id)
}

// Stopper tears down one registration.
type Stopper interface {
	Stop() error
}

// StopperFunc adapts a function to Stopper.
type StopperFunc func() error

// Stop calls f.
func (f StopperFunc) Stop() error { return f() }

type entry struct {
	handle  Handle
	stopper Stopper
}

// Registry holds the live registrations of one database.
//
// Thread-safety: all methods are safe for concurrent use. Stoppers run
// outside the registry lock.
type Registry struct {
	gen    engine.IDGenerator
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]entry
	order   []string // registration order, for CloseAll
	closed  bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithIDGenerator sets the handle id source. Defaults to UUIDv7.
func WithIDGenerator(gen engine.IDGenerator) Option {
	return func(r *Registry) { r.gen = gen }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		gen:     engine.UUIDv7Generator{},
		logger:  slog.Default(),
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add records a running listener and returns its handle. It fails once the
// registry is closed; the caller still owns s in that case.
func (r *Registry) Add(kind Kind, s Stopper) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Handle{}, conflict.NewListenerLifecycleError("database is closed")
	}
	h := Handle{id: r.gen.Generate(), kind: kind}
	r.entries[h.id] = entry{handle: h, stopper: s}
	r.order = append(r.order, h.id)

	r.logger.Debug("listener registered", "kind", kind, "handle", h.id)
	return h, nil
}

// Remove stops and forgets the listener named by h. kind is the kind the
// caller expects h to be.
func (r *Registry) Remove(h Handle, kind Kind) error {
	r.mu.Lock()
	e, ok := r.entries[h.id]
	switch {
	case h.IsZero() || !ok:
		r.mu.Unlock()
		return conflict.NewListenerLifecycleError(
			fmt.Sprintf("%s listener %s is not registered", kind, h))
	case e.handle.kind != kind:
		r.mu.Unlock()
		return conflict.NewListenerLifecycleError(
			fmt.Sprintf("handle %s is not a %s listener", h, kind))
	}
	delete(r.entries, h.id)
	if i := slices.Index(r.order, h.id); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
	r.mu.Unlock()

	r.logger.Debug("listener removed", "kind", kind, "handle", h.id)
	return e.stopper.Stop()
}

// Contains reports whether h is currently registered.
func (r *Registry) Contains(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[h.id]
	return ok
}

// Len returns the number of live registrations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// CloseAll stops every live registration, newest first, and rejects further
// Adds. Errors from individual stoppers are joined.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	r.closed = true
	var live []entry
	for i := len(r.order) - 1; i >= 0; i-- {
		if e, ok := r.entries[r.order[i]]; ok {
			live = append(live, e)
		}
	}
	r.entries = make(map[string]entry)
	r.order = nil
	r.mu.Unlock()

	var errs []error
	for _, e := range live {
		if err := e.stopper.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", e.handle, err))
		}
	}
	if len(live) > 0 {
		r.logger.Info("listeners closed", "count", len(live))
	}
	return errors.Join(errs...)
}
