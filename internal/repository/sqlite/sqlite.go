// Package sqlite implements the repository interfaces on an embedded
// SQLite database, using the pure-Go modernc.org/sqlite driver so the
// binary cross-compiles without CGo.
package sqlite

import (
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides the repository methods
// for the function registry and the version history.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the SQLite database at dbPath and runs
// migrations. Use ":memory:" for an ephemeral database in tests.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// sql.Open only prepares the pool; Ping forces a real connection so
	// a bad path or permissions problem surfaces at startup.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL allows concurrent reads while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates or upgrades the schema. Everything here is idempotent
// so it is safe to run on every startup.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS functions (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL UNIQUE,
			code       TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating functions table: %w", err)
	}

	// description arrived after the first deployments; ALTER TABLE errors
	// if the column exists, so the check goes through pragma_table_info.
	if err := db.addColumnIfNotExists("functions", "description",
		"TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding description to functions: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS versions (
			id             TEXT PRIMARY KEY,
			tab            TEXT NOT NULL,
			code           TEXT NOT NULL,
			output_preview TEXT NOT NULL DEFAULT '',
			success        INTEGER NOT NULL DEFAULT 0,
			created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_versions_tab_created_at
			ON versions(tab, created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("creating versions table: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't
// already exist, making ALTER TABLE migrations idempotent.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil // column already exists
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}
