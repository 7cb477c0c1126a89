package credentials

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS credential_items (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// SQLiteStorage keeps values in a single-table SQLite database. It suits
// hosts that already keep local state in SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) the database at path.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return NewSQLiteStorageFromDB(db)
}

// NewInMemorySQLiteStorage returns a SQLiteStorage backed by a private
// in-memory database.
func NewInMemorySQLiteStorage() (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory SQLite database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return NewSQLiteStorageFromDB(db)
}

// NewSQLiteStorageFromDB uses an existing connection, creating the table if
// it is missing.
func NewSQLiteStorageFromDB(db *sql.DB) (*SQLiteStorage, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to create credential table: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) GetItem(key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM credential_items WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read credential item: %w", err)
	}
	return value, nil
}

func (s *SQLiteStorage) SetItem(key string, value []byte) error {
	_, err := s.db.Exec(`INSERT INTO credential_items (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write credential item: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) RemoveItem(key string) error {
	if _, err := s.db.Exec(`DELETE FROM credential_items WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete credential item: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
