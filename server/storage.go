package server

import (
	"time"
)

// User is an account of the reference backend.
type User struct {
	ID           string `json:"id"` // UUID
	Email        string `json:"email"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	PasswordHash string `json:"-"`
	IsActive     bool   `json:"is_active"`

	// Login security
	LoginAttempts int        `json:"-"`
	LockedUntil   *time.Time `json:"-"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP   string     `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Session records an issued token so it can be revoked. ID is the token's
// jti claim.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`

	UserAgent string `json:"user_agent"`
	IPAddress string `json:"ip_address"`

	LastAccessedAt time.Time `json:"last_accessed_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// SecurityEvent is an audit log entry.
type SecurityEvent struct {
	ID          int64   `json:"id"`
	UserID      *string `json:"user_id,omitempty"`
	EventType   string  `json:"event_type"`
	Description string  `json:"description"`
	IPAddress   string  `json:"ip_address"`
	UserAgent   string  `json:"user_agent"`
	Success     bool    `json:"success"`

	CreatedAt time.Time `json:"created_at"`
}

// Storage is the persistence contract of the reference backend. Lookups
// return (nil, nil) when nothing matches.
type Storage interface {
	// User operations
	CreateUser(user *User) error
	GetUserByEmail(email string) (*User, error)
	GetUserByID(id string) (*User, error)

	// Login security
	IncrementLoginAttempts(userID string) error
	ResetLoginAttempts(userID string) error
	SetUserLocked(userID string, until time.Time) error // also resets the attempt counter
	UpdateLastLogin(userID, ipAddress string) error

	// Session operations
	CreateSession(session *Session) error
	GetSession(id string) (*Session, error)
	TouchSession(id string, at time.Time) error
	DeleteSession(id string) error
	DeleteUserSessions(userID string) error
	CleanupExpiredSessions(now time.Time) (int64, error)

	// Security events
	CreateSecurityEvent(event *SecurityEvent) error
	GetSecurityEventsByUser(userID string, limit int) ([]*SecurityEvent, error)

	// Health check
	Ping() error
	Close() error
}
