package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/docsync/internal/conflict"
	"github.com/roach88/docsync/internal/engine"
	"github.com/roach88/docsync/internal/listener"
	"github.com/roach88/docsync/internal/replication"
	"github.com/roach88/docsync/internal/store"
)

// ErrClosed is returned by operations on a closed Database.
var ErrClosed = errors.New("database is closed")

// Database is a handle over one store.
//
// Thread-safety: all methods are safe for concurrent use.
type Database struct {
	store    *store.Store
	owned    bool
	locks    *conflict.DocLocks
	registry *listener.Registry
	ids      engine.IDGenerator
	logger   *slog.Logger

	resolveTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

// Option configures a Database.
type Option func(*Database)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(db *Database) { db.logger = logger }
}

// WithIDGenerator sets the id source for listener handles and replicators.
func WithIDGenerator(gen engine.IDGenerator) Option {
	return func(db *Database) { db.ids = gen }
}

// WithResolveTimeout bounds each conflicts callback. 0 disables the bound.
func WithResolveTimeout(d time.Duration) Option {
	return func(db *Database) { db.resolveTimeout = d }
}

// Open opens the store at path and wraps it. Close closes the store.
func Open(path string, opts ...Option) (*Database, error) {
	cfg := &Database{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}
	s, err := store.Open(path, store.WithLogger(cfg.logger))
	if err != nil {
		return nil, err
	}
	db := New(s, opts...)
	db.owned = true
	return db, nil
}

// New wraps an open store. The caller keeps ownership of s.
func New(s *store.Store, opts ...Option) *Database {
	db := &Database{
		store:          s,
		locks:          conflict.NewDocLocks(),
		ids:            engine.UUIDv7Generator{},
		logger:         slog.Default(),
		resolveTimeout: conflict.DefaultResolveTimeout,
	}
	for _, opt := range opts {
		opt(db)
	}
	db.logger = db.logger.With("db", s.ID())
	db.registry = listener.NewRegistry(
		listener.WithIDGenerator(db.ids),
		listener.WithLogger(db.logger))
	return db
}

// Store returns the underlying store.
func (db *Database) Store() *store.Store { return db.store }

// Engine returns the document engine.
func (db *Database) Engine() engine.Engine { return db.store }

// ID returns the store's identity.
func (db *Database) ID() string { return db.store.ID() }

// Listeners returns the number of live listener registrations.
func (db *Database) Listeners() int { return db.registry.Len() }

func (db *Database) checkOpen() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	return nil
}

func (db *Database) resolverOptions() []conflict.Option {
	return []conflict.Option{
		conflict.WithLocks(db.locks),
		conflict.WithResolveTimeout(db.resolveTimeout),
		conflict.WithLogger(db.logger),
	}
}

// NewResolver returns a one-shot resolver sharing this database's
// per-document locks.
func (db *Database) NewResolver(conflicts conflict.ConflictsFunc) (*conflict.Resolver, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return conflict.NewResolver(db.store, conflicts, db.resolverOptions()...)
}

// AddConflictsListener watches for conflicted documents and resolves each
// with conflicts. It returns an ENGINE_UNAVAILABLE error, synchronously, if
// the live query cannot be established. success and onError may be nil.
func (db *Database) AddConflictsListener(ctx context.Context, conflicts conflict.ConflictsFunc, success conflict.SuccessFunc, onError conflict.ErrorFunc) (listener.Handle, error) {
	if err := db.checkOpen(); err != nil {
		return listener.Handle{}, err
	}
	c, err := conflict.NewCoordinator(db.store, conflicts, success, onError, db.resolverOptions()...)
	if err != nil {
		return listener.Handle{}, err
	}
	if err := c.Start(ctx); err != nil {
		return listener.Handle{}, err
	}
	h, err := db.registry.Add(listener.KindConflicts, listener.StopperFunc(c.Stop))
	if err != nil {
		_ = c.Stop()
		return listener.Handle{}, err
	}
	db.logger.Info("conflicts listener added", "handle", h.ID())
	return h, nil
}

// RemoveConflictsListener stops the listener named by h. A resolution in
// progress completes; queued work is dropped.
func (db *Database) RemoveConflictsListener(h listener.Handle) error {
	return db.registry.Remove(h, listener.KindConflicts)
}

// AddReplicationStatusListener delivers every status report of rep to
// callback. The status at registration is not delivered.
func (db *Database) AddReplicationStatusListener(ctx context.Context, rep replication.StatusSource, callback replication.Callback) (listener.Handle, error) {
	if err := db.checkOpen(); err != nil {
		return listener.Handle{}, err
	}
	m := replication.NewMonitor(rep, callback, replication.WithMonitorLogger(db.logger))
	if err := m.Start(ctx); err != nil {
		return listener.Handle{}, err
	}
	h, err := db.registry.Add(listener.KindReplicationStatus, listener.StopperFunc(m.Stop))
	if err != nil {
		_ = m.Stop()
		return listener.Handle{}, err
	}
	return h, nil
}

// RemoveReplicationStatusListener stops the listener named by h. No callback
// starts after it returns; it may be called from the callback itself.
func (db *Database) RemoveReplicationStatusListener(h listener.Handle) error {
	return db.registry.Remove(h, listener.KindReplicationStatus)
}

// AddDatabaseChangeListener calls callback with the changes of every
// commit made after registration.
func (db *Database) AddDatabaseChangeListener(ctx context.Context, callback func([]store.Change)) (listener.Handle, error) {
	if err := db.checkOpen(); err != nil {
		return listener.Handle{}, err
	}
	cl, err := startChangeListener(ctx, db.store, callback, db.logger)
	if err != nil {
		return listener.Handle{}, conflict.NewEngineUnavailable("", err)
	}
	h, err := db.registry.Add(listener.KindDatabaseChange, listener.StopperFunc(cl.Stop))
	if err != nil {
		_ = cl.Stop()
		return listener.Handle{}, err
	}
	return h, nil
}

// RemoveDatabaseChangeListener stops the listener named by h. Like
// RemoveReplicationStatusListener it does not wait for a running callback.
func (db *Database) RemoveDatabaseChangeListener(h listener.Handle) error {
	return db.registry.Remove(h, listener.KindDatabaseChange)
}

// CreatePullReplication returns a stopped replicator copying from into db.
func (db *Database) CreatePullReplication(from *Database, opts ...replication.Option) *replication.Replicator {
	return db.replicator(from.store, db.store, opts)
}

// CreatePushReplication returns a stopped replicator copying db into to.
func (db *Database) CreatePushReplication(to *Database, opts ...replication.Option) *replication.Replicator {
	return db.replicator(db.store, to.store, opts)
}

func (db *Database) replicator(source, target *store.Store, opts []replication.Option) *replication.Replicator {
	base := []replication.Option{
		replication.WithIDGenerator(db.ids),
		replication.WithLogger(db.logger),
	}
	return replication.New(source, target, append(base, opts...)...)
}

// Close removes every listener, newest first, then closes the store if
// Open created it. It does not wait for callbacks already running. Closing
// twice does nothing.
func (db *Database) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	db.mu.Unlock()

	var errs []error
	if err := db.registry.CloseAll(); err != nil {
		errs = append(errs, fmt.Errorf("close listeners: %w", err))
	}
	if db.owned {
		if err := db.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
