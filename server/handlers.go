package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

const (
	// maxRequestBody caps JSON request bodies.
	maxRequestBody = 1 << 20
	// maxSecurityEvents is how many events /me/events returns.
	maxSecurityEvents = 50
)

// Request and Response Types

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=256"`
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=256"`
	Name     string `json:"name" validate:"required,max=100"`
}

// PublicUser is the user as returned to clients
type PublicUser struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	IsAdmin bool   `json:"isAdmin"`
}

// AuthResponse represents the response for login and registration
type AuthResponse struct {
	User       *PublicUser `json:"user,omitempty"`
	Token      string      `json:"token,omitempty"`
	StatusCode int         `json:"-"`                // HTTP status code (not serialized)
	Detail     string      `json:"detail,omitempty"` // Error message if any
}

// MeResponse represents the response for token validation
type MeResponse struct {
	User       *PublicUser `json:"user,omitempty"`
	StatusCode int         `json:"-"`
	Detail     string      `json:"detail,omitempty"`
}

// LogoutResponse represents the response for user logout
type LogoutResponse struct {
	Message    string `json:"message,omitempty"`
	StatusCode int    `json:"-"`
	Detail     string `json:"detail,omitempty"`
}

// SecurityEventsResponse lists audit events of the current user
type SecurityEventsResponse struct {
	Events     []*SecurityEvent `json:"events,omitempty"`
	StatusCode int              `json:"-"`
	Detail     string           `json:"detail,omitempty"`
}

func (a *AuthService) publicUser(user *User) *PublicUser {
	return &PublicUser{
		ID:      user.ID,
		Name:    user.Name,
		Role:    user.Role,
		IsAdmin: a.isAdmin(user),
	}
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// RegisterHandler processes user registration requests
func (a *AuthService) RegisterHandler(r *http.Request) AuthResponse {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		slog.Debug("Failed to decode register request", "error", err)
		return AuthResponse{
			StatusCode: http.StatusBadRequest,
			Detail:     "Invalid request format",
		}
	}
	req.Email = normalizeEmail(req.Email)

	if err := a.validator.Struct(req); err != nil {
		slog.Debug("Register validation failed", "error", err)
		return AuthResponse{
			StatusCode: http.StatusBadRequest,
			Detail:     formatValidationErrors(err),
		}
	}

	if violations := a.securityConfig.PasswordPolicy.Validate(req.Password); len(violations) > 0 {
		slog.Debug("Password validation failed", "violations", violations)
		return AuthResponse{
			StatusCode: http.StatusBadRequest,
			Detail:     strings.Join(violations, ", "),
		}
	}

	email := req.Email
	existingUser, err := a.storage.GetUserByEmail(email)
	if err != nil {
		slog.Error("Failed to check existing user", "error", err)
		return AuthResponse{
			StatusCode: http.StatusInternalServerError,
			Detail:     "Internal server error",
		}
	}
	if existingUser != nil {
		slog.Debug("User already exists", "email", email)
		return AuthResponse{
			StatusCode: http.StatusConflict,
			Detail:     "Email already registered",
		}
	}

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		slog.Error("Failed to hash password", "error", err)
		return AuthResponse{
			StatusCode: http.StatusInternalServerError,
			Detail:     "Internal server error",
		}
	}

	user := &User{
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		Role:         DefaultRole,
		PasswordHash: hashedPassword,
		IsActive:     true,
	}
	if err := a.storage.CreateUser(user); err != nil {
		if errors.Is(err, ErrUserExists) {
			return AuthResponse{
				StatusCode: http.StatusConflict,
				Detail:     "Email already registered",
			}
		}
		slog.Error("Failed to create user", "error", err)
		return AuthResponse{
			StatusCode: http.StatusInternalServerError,
			Detail:     "Failed to create user",
		}
	}

	token, err := a.startSession(user, r)
	if err != nil {
		slog.Error("Failed to start session", "error", err)
		return AuthResponse{
			StatusCode: http.StatusInternalServerError,
			Detail:     "Internal server error",
		}
	}

	a.logSecurityEvent(&user.ID, EventRegistered, "User successfully registered", r, true)
	slog.Info("User registered successfully", "user_id", user.ID)

	return AuthResponse{
		StatusCode: http.StatusCreated,
		User:       a.publicUser(user),
		Token:      token,
	}
}

// LoginHandler processes user authentication requests
func (a *AuthService) LoginHandler(r *http.Request) AuthResponse {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		slog.Debug("Failed to decode login request", "error", err)
		return AuthResponse{
			StatusCode: http.StatusBadRequest,
			Detail:     "Invalid request format",
		}
	}
	req.Email = normalizeEmail(req.Email)

	if err := a.validator.Struct(req); err != nil {
		slog.Debug("Login validation failed", "error", err)
		return AuthResponse{
			StatusCode: http.StatusBadRequest,
			Detail:     formatValidationErrors(err),
		}
	}

	user, err := a.storage.GetUserByEmail(req.Email)
	if err != nil {
		slog.Error("Failed to get user", "error", err)
		return AuthResponse{
			StatusCode: http.StatusInternalServerError,
			Detail:     "Internal server error",
		}
	}

	if user == nil {
		slog.Debug("User not found", "email", req.Email)
		a.logSecurityEvent(nil, EventLoginFailed, "Login attempt for non-existent user", r, false)
		return AuthResponse{
			StatusCode: http.StatusUnauthorized,
			Detail:     "Invalid email or password",
		}
	}

	if !user.IsActive {
		a.logSecurityEvent(&user.ID, EventLoginFailed, "Login attempt on inactive account", r, false)
		return AuthResponse{
			StatusCode: http.StatusForbidden,
			Detail:     "Account is not active",
		}
	}

	now := a.clock.Now()
	if user.LockedUntil != nil && now.Before(*user.LockedUntil) {
		slog.Debug("Account is locked", "user_id", user.ID, "locked_until", user.LockedUntil)
		a.logSecurityEvent(&user.ID, EventLoginFailed, "Login attempt on locked account", r, false)
		return AuthResponse{
			StatusCode: http.StatusUnauthorized,
			Detail:     "Account is temporarily locked",
		}
	}

	if !checkPasswordHash(req.Password, user.PasswordHash) {
		slog.Debug("Invalid password", "user_id", user.ID)
		a.recordFailedLogin(user, r)
		return AuthResponse{
			StatusCode: http.StatusUnauthorized,
			Detail:     "Invalid email or password",
		}
	}

	if err := a.storage.ResetLoginAttempts(user.ID); err != nil {
		slog.Error("Failed to reset login attempts", "error", err)
	}
	if err := a.storage.UpdateLastLogin(user.ID, extractIP(r)); err != nil {
		slog.Error("Failed to update last login", "error", err)
	}

	token, err := a.startSession(user, r)
	if err != nil {
		slog.Error("Failed to start session", "error", err)
		return AuthResponse{
			StatusCode: http.StatusInternalServerError,
			Detail:     "Internal server error",
		}
	}

	a.logSecurityEvent(&user.ID, EventLoginSuccess, "User successfully logged in", r, true)
	slog.Info("User logged in successfully", "user_id", user.ID)

	return AuthResponse{
		StatusCode: http.StatusOK,
		User:       a.publicUser(user),
		Token:      token,
	}
}

// LogoutHandler revokes the session behind the bearer token. Revoking an
// already revoked session succeeds.
func (a *AuthService) LogoutHandler(r *http.Request) LogoutResponse {
	token := extractTokenFromRequest(r)
	if token == "" {
		return LogoutResponse{
			StatusCode: http.StatusUnauthorized,
			Detail:     "No token provided",
		}
	}

	claims, err := a.parseToken(token)
	if err != nil {
		return LogoutResponse{
			StatusCode: http.StatusUnauthorized,
			Detail:     "Invalid token",
		}
	}

	if err := a.storage.DeleteSession(claims.ID); err != nil {
		slog.Error("Failed to delete session", "error", err)
		return LogoutResponse{
			StatusCode: http.StatusInternalServerError,
			Detail:     "Internal server error",
		}
	}

	userID := claims.Subject
	a.logSecurityEvent(&userID, EventSessionRevoked, "User logged out", r, true)

	return LogoutResponse{
		StatusCode: http.StatusOK,
		Message:    "Successfully logged out",
	}
}

// MeHandler returns the user behind the bearer token
func (a *AuthService) MeHandler(r *http.Request) MeResponse {
	token := extractTokenFromRequest(r)
	if token == "" {
		return MeResponse{
			StatusCode: http.StatusUnauthorized,
			Detail:     "No token provided",
		}
	}

	user, _, err := a.authenticate(token)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return MeResponse{
				StatusCode: http.StatusUnauthorized,
				Detail:     "Invalid token",
			}
		}
		slog.Error("Failed to validate token", "error", err)
		return MeResponse{
			StatusCode: http.StatusInternalServerError,
			Detail:     "Internal server error",
		}
	}

	return MeResponse{
		StatusCode: http.StatusOK,
		User:       a.publicUser(user),
	}
}

// SecurityEventsHandler lists the caller's most recent security events. It
// must run behind AuthMiddleware.
func (a *AuthService) SecurityEventsHandler(r *http.Request) SecurityEventsResponse {
	user := GetUserFromContext(r)
	if user == nil {
		return SecurityEventsResponse{
			StatusCode: http.StatusUnauthorized,
			Detail:     "Not authenticated",
		}
	}

	events, err := a.storage.GetSecurityEventsByUser(user.ID, maxSecurityEvents)
	if err != nil {
		slog.Error("Failed to get security events", "user_id", user.ID, "error", err)
		return SecurityEventsResponse{
			StatusCode: http.StatusInternalServerError,
			Detail:     "Internal server error",
		}
	}
	if events == nil {
		events = []*SecurityEvent{}
	}

	return SecurityEventsResponse{
		StatusCode: http.StatusOK,
		Events:     events,
	}
}

// startSession issues a token for user and records its session.
func (a *AuthService) startSession(user *User, r *http.Request) (string, error) {
	token, session, err := a.issueToken(user)
	if err != nil {
		return "", err
	}
	session.IPAddress = extractIP(r)
	session.UserAgent = r.UserAgent()

	if err := a.storage.CreateSession(session); err != nil {
		return "", err
	}
	return token, nil
}

// recordFailedLogin counts a failed attempt and locks the account once the
// limit is reached.
func (a *AuthService) recordFailedLogin(user *User, r *http.Request) {
	if err := a.storage.IncrementLoginAttempts(user.ID); err != nil {
		slog.Error("Failed to increment login attempts", "error", err)
	}

	maxAttempts := a.securityConfig.MaxLoginAttempts
	if maxAttempts > 0 && user.LoginAttempts+1 >= maxAttempts {
		lockUntil := a.clock.Now().Add(a.securityConfig.LockoutDuration)
		if err := a.storage.SetUserLocked(user.ID, lockUntil); err != nil {
			slog.Error("Failed to lock user account", "error", err)
		} else {
			slog.Warn("Account locked after failed logins", "user_id", user.ID, "until", lockUntil)
			if err := a.storage.DeleteUserSessions(user.ID); err != nil {
				slog.Error("Failed to revoke sessions of locked account", "error", err)
			}
			a.logSecurityEvent(&user.ID, EventAccountLocked, "Account locked due to too many failed login attempts", r, true)
		}
	}

	a.logSecurityEvent(&user.ID, EventLoginFailed, "Invalid password provided", r, false)
}
