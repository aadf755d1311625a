// Package sqlite implements the durable ingest state on an embedded
// SQLite database with write-ahead logging for crash safety. All writes
// are single statements, auto-committed: each is independently
// idempotent or append-only, so no multi-step transactions are needed.
package sqlite

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/taskdeck/ingestd/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/taskdeck/ingestd/internal/core/ports/driven"
)

// Store is a unified SQLite-based storage that provides access to the
// dedup, adapter-state, poll-log and thread store interfaces through
// wrapper types.
type Store struct {
	db   *sql.DB
	path string
}

// Ensure the façade satisfies the aggregate port.
var _ driven.StateStore = (*combinedStore)(nil)

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.ingestd/data/ingest.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".ingestd", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "ingest.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: dbPath}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := s.ensureOriginColumns(); err != nil {
		db.Close()
		return nil, fmt.Errorf("upgrading schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// StateStore returns the aggregate ingest state interface backed by
// this store.
func (s *Store) StateStore() driven.StateStore {
	return &combinedStore{
		dedupStore:   dedupStore{store: s},
		stateStore:   stateStore{store: s},
		pollLogStore: pollLogStore{store: s},
		threadStore:  threadStore{store: s},
	}
}

// DedupStore returns the dedup interface backed by this store.
func (s *Store) DedupStore() driven.DedupStore {
	return &dedupStore{store: s}
}

// PollLogStore returns the poll history interface backed by this store.
func (s *Store) PollLogStore() driven.PollLogStore {
	return &pollLogStore{store: s}
}

type combinedStore struct {
	dedupStore
	stateStore
	pollLogStore
	threadStore
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %s: %w", name, err)
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("applying migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ensureOriginColumns adds the origin-tracking columns to databases
// created before they existed. The column list is checked first so
// older databases upgrade in place without data loss.
func (s *Store) ensureOriginColumns() error {
	existing, err := s.columnNames("ingested_items")
	if err != nil {
		return err
	}

	wanted := []string{"origin_type", "origin_channel", "origin_sender", "origin_thread"}
	for _, col := range wanted {
		if existing[col] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE ingested_items ADD COLUMN %s TEXT NOT NULL DEFAULT ''", col)
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("adding column %s: %w", col, err)
		}
	}
	return nil
}

func (s *Store) columnNames(table string) (map[string]bool, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scanning column info: %w", err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// nullString converts an empty string to NULL for storage.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// boolToInt converts a bool to SQLite's integer representation.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
