// Package db opens the SQLite database and keeps its schema current.
package db

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
type DB struct {
	*sql.DB
	log zerolog.Logger
}

// Open creates or opens a SQLite database at the given path and applies any
// pending migrations.
func Open(path string, log zerolog.Logger) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	db := &DB{DB: sqlDB, log: log.With().Str("component", "db").Logger()}

	// WAL improves concurrent reads but is not available on every
	// filesystem (notably some Docker bind mounts); fall back to the
	// default journal rather than refusing to start.
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.log.Warn().Err(err).Msg("WAL mode unavailable, using default journal")
	}

	if _, err := sqlDB.Exec("PRAGMA foreign_keys=ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	applied, err := db.migrate()
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if applied > 0 {
		db.log.Info().Int("applied", applied).Msg("schema migrations applied")
	}

	return db, nil
}

// migrate applies every migration not yet recorded in schema_migrations and
// returns how many ran.
func (db *DB) migrate() (int, error) {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return 0, fmt.Errorf("create migrations table: %w", err)
	}

	applied := 0
	for i, m := range migrations {
		version := i + 1
		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count); err != nil {
			return applied, fmt.Errorf("check migration %d: %w", version, err)
		}
		if count > 0 {
			continue
		}

		db.log.Debug().Int("version", version).Str("name", m.name).Msg("running migration")
		if _, err := db.Exec(m.sql); err != nil {
			return applied, fmt.Errorf("migration %d (%s): %w", version, m.name, err)
		}
		if _, err := db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return applied, fmt.Errorf("record migration %d: %w", version, err)
		}
		applied++
	}

	return applied, nil
}
