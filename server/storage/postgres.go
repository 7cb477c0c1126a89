package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/wispberry-tech/sarao-auth/server"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint errors.
const uniqueViolation = "23505"

// PostgresStorage implements server.Storage for PostgreSQL databases
type PostgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(databaseDSN string) (*PostgresStorage, error) {
	config, err := pgx.ParseConfig(databaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}

	db := stdlib.OpenDB(*config)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := server.NewSchemaManager(db, "postgres").EnsureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return &PostgresStorage{db: db}, nil
}

const postgresUserColumns = `id::text, email, name, role, password_hash, is_active,
	login_attempts, locked_until, last_login_at, last_login_ip, created_at, updated_at`

// User operations
func (p *PostgresStorage) CreateUser(user *server.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `INSERT INTO users (id, email, name, role, password_hash, is_active,
			  created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := p.db.Exec(query,
		user.ID, user.Email, user.Name, user.Role, user.PasswordHash, user.IsActive,
		user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return server.ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (p *PostgresStorage) GetUserByEmail(email string) (*server.User, error) {
	row := p.db.QueryRow(`SELECT `+postgresUserColumns+` FROM users WHERE email = $1`, email)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

func (p *PostgresStorage) GetUserByID(id string) (*server.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	row := p.db.QueryRow(`SELECT `+postgresUserColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}
	return user, nil
}

// Login security
func (p *PostgresStorage) IncrementLoginAttempts(userID string) error {
	_, err := p.db.Exec(`UPDATE users SET login_attempts = login_attempts + 1, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to increment login attempts: %w", err)
	}
	return nil
}

func (p *PostgresStorage) ResetLoginAttempts(userID string) error {
	_, err := p.db.Exec(`UPDATE users SET login_attempts = 0, locked_until = NULL, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to reset login attempts: %w", err)
	}
	return nil
}

func (p *PostgresStorage) SetUserLocked(userID string, until time.Time) error {
	_, err := p.db.Exec(`UPDATE users SET locked_until = $1, login_attempts = 0, updated_at = $2 WHERE id = $3`,
		until.UTC(), time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to lock user: %w", err)
	}
	return nil
}

func (p *PostgresStorage) UpdateLastLogin(userID, ipAddress string) error {
	now := time.Now().UTC()
	_, err := p.db.Exec(`UPDATE users SET last_login_at = $1, last_login_ip = $2, updated_at = $1 WHERE id = $3`,
		now, ipAddress, userID)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// Session operations
func (p *PostgresStorage) CreateSession(session *server.Session) error {
	query := `INSERT INTO sessions (id, user_id, expires_at, user_agent, ip_address,
			  last_accessed_at, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := p.db.Exec(query,
		session.ID, session.UserID, session.ExpiresAt.UTC(), session.UserAgent, session.IPAddress,
		session.LastAccessedAt.UTC(), session.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (p *PostgresStorage) GetSession(id string) (*server.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	session := &server.Session{}
	query := `SELECT id::text, user_id::text, expires_at, user_agent, ip_address, last_accessed_at, created_at
			  FROM sessions WHERE id = $1`

	err := p.db.QueryRow(query, id).Scan(
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

func (p *PostgresStorage) TouchSession(id string, at time.Time) error {
	if _, err := p.db.Exec(`UPDATE sessions SET last_accessed_at = $1 WHERE id = $2`, at.UTC(), id); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

func (p *PostgresStorage) DeleteSession(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}
	if _, err := p.db.Exec(`DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (p *PostgresStorage) DeleteUserSessions(userID string) error {
	if _, err := p.db.Exec(`DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

func (p *PostgresStorage) CleanupExpiredSessions(now time.Time) (int64, error) {
	result, err := p.db.Exec(`DELETE FROM sessions WHERE expires_at < $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired sessions: %w", err)
	}
	return result.RowsAffected()
}

// Security events
func (p *PostgresStorage) CreateSecurityEvent(event *server.SecurityEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	query := `INSERT INTO security_events (user_id, event_type, description, ip_address,
			  user_agent, success, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`

	err := p.db.QueryRow(query,
		event.UserID, event.EventType, event.Description, event.IPAddress,
		event.UserAgent, event.Success, event.CreatedAt.UTC()).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to create security event: %w", err)
	}
	return nil
}

func (p *PostgresStorage) GetSecurityEventsByUser(userID string, limit int) ([]*server.SecurityEvent, error) {
	query := `SELECT id, user_id::text, event_type, description, ip_address, user_agent, success, created_at
			  FROM security_events WHERE user_id = $1 ORDER BY id DESC LIMIT $2`

	rows, err := p.db.Query(query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get security events: %w", err)
	}
	defer rows.Close()
	return scanSecurityEvents(rows)
}

// Health check
func (p *PostgresStorage) Ping() error {
	return p.db.Ping()
}

func (p *PostgresStorage) Close() error {
	return p.db.Close()
}

var _ server.Storage = (*PostgresStorage)(nil)
