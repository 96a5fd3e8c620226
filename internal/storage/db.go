package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/a-marczewski/huntdedup/internal/config"

	_ "github.com/mattn/go-sqlite3"
)

const (
	SchemaVersion = 2
)

// timeLayout sorts lexically in UTC, which Prune relies on.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// DB represents the database connection
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection
func NewDB(cfg *config.Config) (*DB, error) {
	return Open(cfg.DBPath)
}

// Open opens or creates the database at path and migrates it.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=10000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	database := &DB{conn: db}

	if err := database.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return database, nil
}

// migrate applies database migrations
func (db *DB) migrate() error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var version int
	if err := tx.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return err
	}
	if version > SchemaVersion {
		return fmt.Errorf("database schema v%d is newer than supported v%d", version, SchemaVersion)
	}

	// Apply migrations incrementally
	for version < SchemaVersion {
		version++
		switch version {
		case 1:
			if err := db.applySchemaV1(tx); err != nil {
				return fmt.Errorf("failed to apply schema v%d: %w", version, err)
			}
		case 2:
			if err := db.applySchemaV2(tx); err != nil {
				return fmt.Errorf("failed to apply schema v%d: %w", version, err)
			}
		default:
			return fmt.Errorf("unknown schema version: %d", version)
		}
	}

	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
		return err
	}

	return tx.Commit()
}

// applySchemaV1 creates the generation attempt history.
func (db *DB) applySchemaV1(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS generation_attempts (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			attempt_index INTEGER NOT NULL,
			hypothesis TEXT NOT NULL DEFAULT '',
			tactic TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			score REAL NOT NULL DEFAULT 0,
			ttp_score REAL NOT NULL DEFAULT 0,
			corpus_score REAL NOT NULL DEFAULT 0,
			approved INTEGER NOT NULL DEFAULT 0,
			rejection_reason TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS idx_generation_attempts_session ON generation_attempts(session_id, attempt_index)`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS idx_generation_attempts_created ON generation_attempts(created_at)`)
	return err
}

// applySchemaV2 adds the corpus similarity cache.
func (db *DB) applySchemaV2(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS similarity_cache (
			cache_key TEXT PRIMARY KEY,
			corpus_fingerprint TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at TEXT NOT NULL
		)
	`)
	return err
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// GetConnection returns the underlying database connection
func (db *DB) GetConnection() *sql.DB {
	return db.conn
}
