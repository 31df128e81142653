package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// cliName is the name of the CLI using the store, used for state directory paths.
var cliName = "chipctl"

// SetCLIName sets the CLI name used for state directory paths.
func SetCLIName(name string) {
	cliName = name
}

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// Store provides discovery log and claim history operations.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the default database path under XDG_DATA_HOME.
func DefaultPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, cliName, cliName+".db")
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// busy_timeout goes in the DSN so every pooled connection gets it;
	// without it concurrent writes fail immediately with SQLITE_BUSY.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL lets a long-running scan append while history is read.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate creates the schema if it doesn't exist.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sightings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_id TEXT NOT NULL,
		peripheral_id TEXT NOT NULL,
		label TEXT DEFAULT '',
		service_ids TEXT DEFAULT '',
		rssi INTEGER DEFAULT 0,
		seen_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sightings_scan ON sightings(scan_id);
	CREATE INDEX IF NOT EXISTS idx_sightings_peripheral ON sightings(peripheral_id);

	CREATE TABLE IF NOT EXISTS claims (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		peripheral_id TEXT DEFAULT '',
		chip_address TEXT DEFAULT '',
		claimant TEXT NOT NULL,
		chain_id INTEGER DEFAULT 0,
		block_number INTEGER NOT NULL,
		block_hash TEXT NOT NULL,
		signature TEXT DEFAULT '',
		outcome TEXT NOT NULL,
		reason TEXT DEFAULT '',
		tx_hash TEXT DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_claims_chip ON claims(chip_address);
	CREATE INDEX IF NOT EXISTS idx_claims_outcome ON claims(outcome);
	CREATE INDEX IF NOT EXISTS idx_claims_created ON claims(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}
