// Package storage provides SQLite and PostgreSQL implementations of
// server.Storage.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/wispberry-tech/sarao-auth/server"
)

// SQLiteStorage is a SQLite implementation of server.Storage
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return NewSQLiteStorageFromDB(db)
}

// NewInMemorySQLiteStorage creates a new in-memory SQLite storage instance for testing
func NewInMemorySQLiteStorage() (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory SQLite database: %w", err)
	}
	// Every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	return NewSQLiteStorageFromDB(db)
}

// NewSQLiteStorageFromDB creates a new SQLite storage from an existing database connection
func NewSQLiteStorageFromDB(db *sql.DB) (*SQLiteStorage, error) {
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := server.NewSchemaManager(db, "sqlite").EnsureSchema(); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

const sqliteUserColumns = `id, email, name, role, password_hash, is_active,
	login_attempts, locked_until, last_login_at, last_login_ip, created_at, updated_at`

// User operations
func (s *SQLiteStorage) CreateUser(user *server.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `INSERT INTO users (id, email, name, role, password_hash, is_active,
			  created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.Exec(query,
		user.ID, user.Email, user.Name, user.Role, user.PasswordHash, user.IsActive,
		user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sqlite3.CONSTRAINT_UNIQUE) || errors.Is(err, sqlite3.CONSTRAINT_PRIMARYKEY) {
			return server.ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetUserByEmail(email string) (*server.User, error) {
	row := s.db.QueryRow(`SELECT `+sqliteUserColumns+` FROM users WHERE email = ?`, email)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

func (s *SQLiteStorage) GetUserByID(id string) (*server.User, error) {
	row := s.db.QueryRow(`SELECT `+sqliteUserColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}
	return user, nil
}

// Login security
func (s *SQLiteStorage) IncrementLoginAttempts(userID string) error {
	_, err := s.db.Exec(`UPDATE users SET login_attempts = login_attempts + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to increment login attempts: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ResetLoginAttempts(userID string) error {
	_, err := s.db.Exec(`UPDATE users SET login_attempts = 0, locked_until = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to reset login attempts: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) SetUserLocked(userID string, until time.Time) error {
	_, err := s.db.Exec(`UPDATE users SET locked_until = ?, login_attempts = 0, updated_at = ? WHERE id = ?`,
		until.UTC(), time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to lock user: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpdateLastLogin(userID, ipAddress string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`UPDATE users SET last_login_at = ?, last_login_ip = ?, updated_at = ? WHERE id = ?`,
		now, ipAddress, now, userID)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// Session operations
func (s *SQLiteStorage) CreateSession(session *server.Session) error {
	query := `INSERT INTO sessions (id, user_id, expires_at, user_agent, ip_address,
			  last_accessed_at, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.Exec(query,
		session.ID, session.UserID, session.ExpiresAt.UTC(), session.UserAgent, session.IPAddress,
		session.LastAccessedAt.UTC(), session.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetSession(id string) (*server.Session, error) {
	session := &server.Session{}
	query := `SELECT id, user_id, expires_at, user_agent, ip_address, last_accessed_at, created_at
			  FROM sessions WHERE id = ?`

	err := s.db.QueryRow(query, id).Scan(
		&session.ID, &session.UserID, &session.ExpiresAt, &session.UserAgent, &session.IPAddress,
		&session.LastAccessedAt, &session.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

func (s *SQLiteStorage) TouchSession(id string, at time.Time) error {
	if _, err := s.db.Exec(`UPDATE sessions SET last_accessed_at = ? WHERE id = ?`, at.UTC(), id); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteSession(id string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteUserSessions(userID string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) CleanupExpiredSessions(now time.Time) (int64, error) {
	// Stored times are text; julianday compares them as instants.
	result, err := s.db.Exec(`DELETE FROM sessions WHERE julianday(expires_at) < julianday(?)`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired sessions: %w", err)
	}
	return result.RowsAffected()
}

// Security events
func (s *SQLiteStorage) CreateSecurityEvent(event *server.SecurityEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	query := `INSERT INTO security_events (user_id, event_type, description, ip_address,
			  user_agent, success, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.Exec(query,
		event.UserID, event.EventType, event.Description, event.IPAddress,
		event.UserAgent, event.Success, event.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create security event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get security event ID: %w", err)
	}
	event.ID = id
	return nil
}

func (s *SQLiteStorage) GetSecurityEventsByUser(userID string, limit int) ([]*server.SecurityEvent, error) {
	query := `SELECT id, user_id, event_type, description, ip_address, user_agent, success, created_at
			  FROM security_events WHERE user_id = ? ORDER BY id DESC LIMIT ?`

	rows, err := s.db.Query(query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get security events: %w", err)
	}
	defer rows.Close()
	return scanSecurityEvents(rows)
}

// Health check
func (s *SQLiteStorage) Ping() error {
	return s.db.Ping()
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

var _ server.Storage = (*SQLiteStorage)(nil)
