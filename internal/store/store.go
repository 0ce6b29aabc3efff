// Package store provides SQLite-based durable local storage for bible365.
//
// All persisted state lives in a single key/value table: the progress
// fields (start date, completed set, language, last synced) plus the token
// cache, the user profile, and the cached remote file identifier. Values
// are read once at startup and written synchronously on every mutation.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// Keys for the settings table. Exported so callers can watch or clear
// specific entries without duplicating the names.
const (
	KeyStartDate    = "start_date"
	KeyCompleted    = "completed"
	KeyLanguage     = "language"
	KeyLastSynced   = "last_synced"
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyTokenExpiry  = "token_expiry"
	KeyProfile      = "profile"
	KeyFileID       = "drive_file_id"
	KeyDeviceID     = "device_id"
)

// Store is a SQLite-backed key/value store.
type Store struct {
	path string
	conn *sql.DB
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// Open creates or opens a SQLite database at the given path and initializes
// the schema.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer, so we limit to one connection
	// to prevent "database is locked" errors when the watch daemon and a
	// CLI invocation touch the store at the same time.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if _, err := conn.Exec(createTableSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create settings table: %w", err)
	}

	return &Store{path: path, conn: conn}, nil
}

// Path returns the filesystem path of the underlying database.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Get returns the value for a key, or "" if the key is absent.
func (s *Store) Get(key string) (string, error) {
	var value string
	err := s.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, nil
}

// Set writes the value for a key, replacing any previous value.
func (s *Store) Set(key, value string) error {
	_, err := s.conn.Exec(
		"INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (s *Store) Delete(keys ...string) error {
	for _, key := range keys {
		if _, err := s.conn.Exec("DELETE FROM settings WHERE key = ?", key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	return nil
}

// GetJSON unmarshals the value for a key into v. Absent keys leave v
// untouched and return false.
func (s *Store) GetJSON(key string, v interface{}) (bool, error) {
	raw, err := s.Get(key)
	if err != nil {
		return false, err
	}
	if raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

// SetJSON marshals v and writes it under key.
func (s *Store) SetJSON(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return s.Set(key, string(raw))
}
