package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Register driver
)

// DB wraps the sql.DB connection.
type DB struct {
	*sql.DB
}

// Init opens the database and runs migrations.
func Init(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// WAL lets the API read the archive while an export is being written.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	d := &DB{db}
	// Enforce single connection to avoid SQLITE_BUSY errors during concurrent writes
	db.SetMaxOpenConns(1)

	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return d, nil
}

func (d *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS missions (
			id TEXT PRIMARY KEY,
			name TEXT,
			points INTEGER,
			distance_m REAL,
			started_at INTEGER,
			ended_at INTEGER,
			created_at INTEGER,
			gpx BLOB
		);`,
		`CREATE INDEX IF NOT EXISTS idx_missions_created ON missions(created_at);`,
		`CREATE TABLE IF NOT EXISTS persistent_state (
			key TEXT PRIMARY KEY,
			value TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
	}

	for _, q := range queries {
		if _, err := d.Exec(q); err != nil {
			return fmt.Errorf("exec error: %w query: %s", err, q)
		}
	}

	return nil
}
