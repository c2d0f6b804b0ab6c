// Package localdb provides the embedded SQLite store holding the device's
// canonical bill and payment records.
//
// The database is the authoritative record for this device: sync never
// rolls back a local write, it only reconciles the local rows with the
// remote document store. The store runs in WAL mode so UI reads can proceed
// during sync writes.
package localdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB wraps the SQLite connection with bill-tracker specific queries.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a new database connection at the specified path.
//
// If the database doesn't exist it is created; call InitSchema before
// using it. The caller MUST call Close() when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	// WAL for concurrent reads during sync writes.
	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	// Required for the payments-follow-bill cascade.
	if _, err := db.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection after checkpointing the WAL.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
// Idempotent - safe to call multiple times.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS bills (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		dueDate INTEGER NOT NULL,
		amount REAL,
		frequency TEXT NOT NULL,
		autopay INTEGER NOT NULL DEFAULT 0,
		notes TEXT,
		iconKey TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		createdAt INTEGER NOT NULL,
		updatedAt INTEGER NOT NULL,
		notificationIds TEXT,
		timezone TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_bills_dueDate ON bills(dueDate);
	CREATE INDEX IF NOT EXISTS idx_bills_status ON bills(status);
	CREATE INDEX IF NOT EXISTS idx_bills_updatedAt ON bills(updatedAt);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		billId TEXT NOT NULL,
		paidDate INTEGER NOT NULL,
		amountPaid REAL,
		createdAt INTEGER NOT NULL,
		FOREIGN KEY (billId) REFERENCES bills(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_payments_billId ON payments(billId);
	CREATE INDEX IF NOT EXISTS idx_payments_createdAt ON payments(createdAt);

	CREATE TABLE IF NOT EXISTS app_meta (
		key TEXT PRIMARY KEY,
		value TEXT,
		updatedAt INTEGER NOT NULL
	);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// GetMeta returns the app_meta value for key, or "" if absent.
func (db *DB) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.QueryRowContext(ctx,
		"SELECT value FROM app_meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read app meta %s: %w", key, err)
	}
	return value, nil
}

// SetMeta stores an app_meta value.
func (db *DB) SetMeta(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT OR REPLACE INTO app_meta (key, value, updatedAt) VALUES (?, ?, ?)",
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to set app meta %s: %w", key, err)
	}
	return nil
}

// ClearAll removes every row from every table. Used by explicit data reset.
func (db *DB) ClearAll(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx,
		"DELETE FROM payments; DELETE FROM bills; DELETE FROM app_meta;")
	if err != nil {
		return fmt.Errorf("failed to clear data: %w", err)
	}
	return nil
}
