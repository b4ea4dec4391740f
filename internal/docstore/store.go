package docstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - documents, changes, local_docs, db_info
const currentSchemaVersion = 1

// Store is the SQLite engine.
type Store struct {
	db     *sql.DB
	path   string // empty for in-memory databases
	id     string
	logger *slog.Logger
	notify *notifier

	fileWatch bool

	mu     sync.Mutex
	closed bool
	feeds  map[*Feed]struct{}
	fsw    *fsnotify.Watcher
}

var _ Database = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithFileWatch enables or disables waking live feeds on writes made by
// other processes to the same database file. Enabled by default for
// file-backed stores.
func WithFileWatch(enabled bool) Option {
	return func(s *Store) {
		s.fileWatch = enabled
	}
}

// Open creates or opens a SQLite database at the given path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
func Open(path string, opts ...Option) (*Store, error) {
	s, err := open(path, path, opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// OpenMemory opens a named in-memory database. Databases opened with the
// same name in one process share contents until the last handle closes.
func OpenMemory(name string, opts ...Option) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	return open(dsn, "", append(opts, WithFileWatch(false)))
}

func open(dsn, path string, opts []Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer; a single connection also serialises
	// revision checks with the writes they guard.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	id, err := instanceID(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read instance id: %w", err)
	}

	s := &Store{
		db:        db,
		path:      path,
		id:        id,
		logger:    slog.Default(),
		notify:    newNotifier(),
		fileWatch: path != "",
		feeds:     make(map[*Feed]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close stops every live feed and closes the database. Safe to call more
// than once.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	feeds := make([]*Feed, 0, len(s.feeds))
	for f := range s.feeds {
		feeds = append(feeds, f)
	}
	fsw := s.fsw
	s.mu.Unlock()

	for _, f := range feeds {
		f.Close()
	}
	if fsw != nil {
		if err := fsw.Close(); err != nil {
			s.logger.Warn("close file watcher", "error", err)
		}
	}
	return s.db.Close()
}

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and checks the version.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// instanceID returns the database's stable identity, creating it on first open.
func instanceID(db *sql.DB) (string, error) {
	_, err := db.Exec(`
		INSERT INTO db_info (key, value) VALUES ('instance_id', ?)
		ON CONFLICT(key) DO NOTHING
	`, uuid.Must(uuid.NewV7()).String())
	if err != nil {
		return "", err
	}

	var id string
	if err := db.QueryRow(`SELECT value FROM db_info WHERE key = 'instance_id'`).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

// Info returns the database identity, update sequence and live document count.
func (s *Store) Info(ctx context.Context) (Info, error) {
	if err := s.checkOpen(); err != nil {
		return Info{}, wrap("info", "", err)
	}

	info := Info{ID: s.id}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COALESCE(MAX(seq), 0) FROM changes),
			(SELECT COUNT(*) FROM documents WHERE deleted = 0)
	`).Scan(&info.UpdateSeq, &info.DocCount)
	if err != nil {
		return Info{}, wrap("info", "", err)
	}
	return info, nil
}

// updateSeq returns the sequence of the latest commit.
func (s *Store) updateSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM changes`).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return seq, err
}
