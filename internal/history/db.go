// Package history keeps derived snapshots in sqlite so recent cycles survive
// a restart of the reporting side. Raw counters are never stored.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA synchronous=NORMAL; PRAGMA temp_store=MEMORY;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			id TEXT PRIMARY KEY,
			host TEXT NOT NULL,
			ts DATETIME NOT NULL,
			cycle INTEGER NOT NULL,
			elapsed REAL NOT NULL,
			body_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS samples (
			snapshot_id TEXT NOT NULL,
			host TEXT NOT NULL,
			ts DATETIME NOT NULL,
			family TEXT NOT NULL,
			entity TEXT NOT NULL DEFAULT '',
			field TEXT NOT NULL,
			value REAL NOT NULL,
			FOREIGN KEY(snapshot_id) REFERENCES snapshots(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_host_ts ON snapshots(host, ts DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_samples_series ON samples(host, family, entity, field, ts DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return nil
}
