package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Sentinel errors. Callers match them with errors.Is.
var (
	// ErrNotFound means the document or revision does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRevisionExists means a revision with the same id is already stored.
	ErrRevisionExists = errors.New("revision already exists")

	// ErrMissingParent means the revision's parent is not stored.
	ErrMissingParent = errors.New("parent revision missing")

	// ErrUpdateConflict means an update named a parent that is not a current
	// live leaf. Use SaveAllowingConflict to branch deliberately.
	ErrUpdateConflict = errors.New("update conflict")

	// ErrDocumentExists means CreateDocument found an existing document.
	ErrDocumentExists = errors.New("document already exists")

	// ErrClosed means the store has been closed.
	ErrClosed = errors.New("store closed")
)

// Store is the SQLite reference document engine.
type Store struct {
	db     *sql.DB
	id     string
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	subs    map[int]chan struct{}
	nextSub int
	closed  bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open creates or opens a SQLite database at path and applies migrations.
// Use ":memory:" for a throwaway store.
//
// Open is idempotent: reopening an existing file keeps its data and identity.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	s := &Store{
		db:     db,
		path:   path,
		logger: slog.Default(),
		subs:   make(map[int]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	id, err := s.ensureIdentity()
	if err != nil {
		db.Close()
		return nil, err
	}
	s.id = id

	s.logger.Debug("store opened", "path", path, "store_id", id)
	return s, nil
}

// ID returns the store's UUID, assigned on first open.
func (s *Store) ID() string { return s.id }

// Path returns the path the store was opened with.
func (s *Store) Path() string { return s.path }

// Close closes the database and ends every subscription.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()

	return s.db.Close()
}

// Subscribe returns a channel that receives a signal after every committed
// write. Signals coalesce: one pending signal stands for any number of
// writes. The channel is closed when the store closes or cancel is called.
func (s *Store) Subscribe() (<-chan struct{}, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, nil, ErrClosed
	}
	id := s.nextSub
	s.nextSub++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if ch, ok := s.subs[id]; ok {
			close(ch)
			delete(s.subs, id)
		}
	}
	return ch, cancel, nil
}

// notify wakes every subscriber without blocking.
func (s *Store) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// migrate applies the embedded migrations. The migrate instance is not
// closed: closing it would close the shared *sql.DB.
func (s *Store) migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("instantiate migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("schema version %d is dirty", version)
	}
	s.logger.Debug("schema ready", "version", version)
	return nil
}

// SchemaVersion returns the applied migration version.
func (s *Store) SchemaVersion(ctx context.Context) (uint, error) {
	var version uint
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_migrations LIMIT 1`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("schema version: %w", err)
	}
	return version, nil
}

// ensureIdentity reads the store UUID, creating it on first open.
func (s *Store) ensureIdentity() (string, error) {
	var id string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'store_id'`).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("read store id: %w", err)
	}

	gen, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate store id: %w", err)
	}
	id = gen.String()
	if _, err := s.db.Exec(`INSERT INTO meta (key, value) VALUES ('store_id', ?)`, id); err != nil {
		return "", fmt.Errorf("write store id: %w", err)
	}
	return id, nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
