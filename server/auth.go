// Package server is a reference implementation of the Sarao auth API. It
// serves the contract the client side expects and nothing more:
//
//	POST /login    {email, password}       -> {user, token}
//	POST /register {email, password, name} -> {user, token}
//	POST /logout   Authorization: Bearer <token>
//	GET  /me       Authorization: Bearer <token>
//	GET  /me/events Authorization: Bearer <token>
//
// Tokens are HS256 JWTs. Each one carries a jti that is recorded as a
// session, so logout can revoke it before it expires.
//
// ## Quick Start:
//
//	storage, err := storage.NewSQLiteStorage("sarao.db")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	authService, err := server.NewAuthService(server.Config{
//		Storage:   storage,
//		JWTSecret: []byte(os.Getenv("SARAO_JWT_SECRET")),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	http.ListenAndServe(":8000", server.NewRouter(authService, server.RouterConfig{}))
//
// Handlers are return-based, so they can also be mounted on any router:
//
//	r.Post("/login", func(w http.ResponseWriter, r *http.Request) {
//		result := authService.LoginHandler(r)
//		writeJSON(w, result.StatusCode, result)
//	})
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/wispberry-tech/sarao-auth/clock"
	"github.com/wispberry-tech/sarao-auth/policy"
)

// Common authentication errors
var (
	// ErrUserExists is returned when an email is already registered
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidToken is returned for unparseable, expired or revoked tokens
	ErrInvalidToken = errors.New("invalid token")
)

const (
	// DefaultRole is given to self-registered accounts.
	DefaultRole = "frontend"
	// DefaultAdminRole marks administrators.
	DefaultAdminRole = "admin"
	// DefaultIssuer is the iss claim of issued tokens.
	DefaultIssuer = "sarao-auth"

	minSecretLength = 32
)

// SecurityConfig defines security-related configuration options
type SecurityConfig struct {
	PasswordPolicy policy.Policy

	// Login security
	MaxLoginAttempts int           // Failed logins before lockout, 0 disables lockout
	LockoutDuration  time.Duration // How long accounts remain locked
	TokenLifetime    time.Duration // How long issued tokens remain valid

	// Rate limiting of /login and /register, per client IP
	LoginRate  float64 // Sustained requests per second
	LoginBurst int     // Requests allowed in a burst

	AdminRole string
}

// DefaultSecurityConfig returns a secure default configuration
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		PasswordPolicy:   policy.Default(),
		MaxLoginAttempts: 5,
		LockoutDuration:  15 * time.Minute,
		TokenLifetime:    8 * time.Hour,
		LoginRate:        1,
		LoginBurst:       5,
		AdminRole:        DefaultAdminRole,
	}
}

// Config contains the configuration for the AuthService
type Config struct {
	Storage        Storage        // Storage implementation (required)
	JWTSecret      []byte         // HS256 signing key, at least 32 bytes (required)
	Issuer         string         // Defaults to DefaultIssuer
	SecurityConfig SecurityConfig // Zero value means DefaultSecurityConfig()
	Clock          clock.Clock    // Defaults to clock.Real()
}

// AuthService is the main service for handling authentication operations.
type AuthService struct {
	storage        Storage
	securityConfig SecurityConfig
	validator      *validator.Validate
	jwtSecret      []byte
	issuer         string
	clock          clock.Clock
}

// NewAuthService creates a new authentication service
func NewAuthService(cfg Config) (*AuthService, error) {
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if len(cfg.JWTSecret) < minSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", minSecretLength)
	}

	if err := cfg.Storage.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to storage: %w", err)
	}

	securityConfig := cfg.SecurityConfig
	if securityConfig.TokenLifetime == 0 {
		securityConfig = DefaultSecurityConfig()
	}
	if securityConfig.AdminRole == "" {
		securityConfig.AdminRole = DefaultAdminRole
	}

	issuer := cfg.Issuer
	if issuer == "" {
		issuer = DefaultIssuer
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}

	return &AuthService{
		storage:        cfg.Storage,
		securityConfig: securityConfig,
		validator:      validator.New(),
		jwtSecret:      cfg.JWTSecret,
		issuer:         issuer,
		clock:          clk,
	}, nil
}

// SeedUser creates an account unless the email is already registered. It
// is used to provision demo and admin accounts.
func (a *AuthService) SeedUser(email, password, name, role string) (*User, error) {
	email = normalizeEmail(email)
	existing, err := a.storage.GetUserByEmail(email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user := &User{
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := a.storage.CreateUser(user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	slog.Info("Seeded user", "user_id", user.ID, "role", role)
	return user, nil
}

// StartSessionCleanup removes expired sessions every interval until ctx is
// cancelled.
func (a *AuthService) StartSessionCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := a.storage.CleanupExpiredSessions(a.clock.Now())
				if err != nil {
					slog.Error("Failed to clean up expired sessions", "error", err)
					continue
				}
				if removed > 0 {
					slog.Debug("Removed expired sessions", "count", removed)
				}
			}
		}
	}()
}

type contextKey string

const (
	userContextKey    contextKey = "user"
	sessionContextKey contextKey = "session"
)

// GetUserFromContext retrieves the authenticated user from the request
// context, as set by AuthMiddleware.
func GetUserFromContext(r *http.Request) *User {
	if user, ok := r.Context().Value(userContextKey).(*User); ok {
		return user
	}
	return nil
}

// GetSessionFromContext retrieves the current session from the request
// context.
func GetSessionFromContext(r *http.Request) *Session {
	if session, ok := r.Context().Value(sessionContextKey).(*Session); ok {
		return session
	}
	return nil
}

// isAdmin reports whether user holds the admin role.
func (a *AuthService) isAdmin(user *User) bool {
	return strings.EqualFold(user.Role, a.securityConfig.AdminRole)
}

// logSecurityEvent records an audit event. Failures are only logged.
func (a *AuthService) logSecurityEvent(userID *string, eventType, description string, r *http.Request, success bool) {
	event := &SecurityEvent{
		UserID:      userID,
		EventType:   eventType,
		Description: description,
		IPAddress:   extractIP(r),
		UserAgent:   r.UserAgent(),
		Success:     success,
		CreatedAt:   a.clock.Now(),
	}

	if err := a.storage.CreateSecurityEvent(event); err != nil {
		slog.Error("Failed to log security event",
			"event_type", eventType,
			"error", err)
	}
}

// Close closes the auth service and cleans up resources
func (a *AuthService) Close() error {
	return a.storage.Close()
}
