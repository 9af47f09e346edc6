// Package userdb stores the wiki's login credentials in SQLite.
package userdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/quire/internal/apperr"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	username   TEXT UNIQUE NOT NULL,
	password   TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// DB wraps a sql.DB holding the users table.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database at dsn and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("userdb: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("userdb: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("userdb: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// EnsureUser inserts username with the given password hash, or replaces the
// hash of an existing user.
func (db *DB) EnsureUser(ctx context.Context, username, hash string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO users (username, password) VALUES (?, ?)
		ON CONFLICT(username) DO UPDATE SET password = excluded.password
	`, username, hash)
	if err != nil {
		return apperr.Storage("userdb: ensure user", err)
	}
	return nil
}

// PasswordHash returns the stored hash for username, or apperr.ErrNotFound.
func (db *DB) PasswordHash(ctx context.Context, username string) (string, error) {
	var hash string
	err := db.conn.QueryRowContext(ctx, `SELECT password FROM users WHERE username = ?`, username).Scan(&hash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", fmt.Errorf("userdb: user %q: %w", username, apperr.ErrNotFound)
	case err != nil:
		return "", apperr.Storage("userdb: password hash", err)
	}
	return hash, nil
}

// Count returns the number of stored users.
func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&n); err != nil {
		return 0, apperr.Storage("userdb: count", err)
	}
	return n, nil
}
