package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/wispberry-tech/sarao-auth/credentials"
)

type registerInput struct {
	Email string `validate:"required,email,max=254"`
	Name  string `validate:"required,max=100"`
}

// Login verifies the credentials with the backend and, on success, caches
// and publishes the new identity. Any failure clears the cached login.
func (a *AuthSession) Login(ctx context.Context, email, password string) (*User, error) {
	result, err := a.backend.Login(ctx, email, password)
	if err == nil {
		err = checkResult(result)
	}
	if err != nil {
		a.writeMu.Lock()
		a.credentials.Clear()
		a.writeMu.Unlock()
		slog.Info("Login failed", "email", email, "error", err)
		return nil, newAuthenticationError("Login failed", err)
	}

	user := a.signIn(email, result)
	slog.Info("User logged in", "user_id", user.ID, "is_admin", user.IsAdmin)
	return user, nil
}

// Register validates the input locally, then creates the account and signs
// it in. Validation failures return a *ValidationError without contacting
// the backend.
func (a *AuthSession) Register(ctx context.Context, email, password, name string) (*User, error) {
	var violations []string
	if err := a.validator.Struct(registerInput{Email: email, Name: name}); err != nil {
		violations = append(violations, formatValidationErrors(err)...)
	}
	violations = append(violations, a.policy.Validate(password)...)
	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	result, err := a.backend.Register(ctx, email, password, name)
	if err == nil {
		err = checkResult(result)
	}
	if err != nil {
		slog.Info("Registration failed", "email", email, "error", err)
		return nil, newAuthenticationError("Registration failed", err)
	}

	user := a.signIn(email, result)
	slog.Info("User registered", "user_id", user.ID)
	return user, nil
}

// Logout ends the session. The backend is told on a best-effort basis; the
// cached and in-memory identity are always cleared. Safe to call while
// signed out and from several goroutines.
func (a *AuthSession) Logout(ctx context.Context) {
	a.writeMu.Lock()
	token := a.Token()
	a.credentials.Clear()
	a.setIdentity(nil, "")
	a.writeMu.Unlock()

	if token == "" {
		return
	}
	if err := a.backend.Logout(ctx, token); err != nil {
		slog.Warn("Backend logout failed", "error", err)
	}
	slog.Info("User logged out")
}

// Sync reconciles the in-memory identity with the credential store. It is
// used when another process changed the cached login.
func (a *AuthSession) Sync() {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	record, ok := a.credentials.Retrieve()
	if !ok {
		if a.IsAuthenticated() {
			slog.Info("Cached login removed, signing out")
			a.setIdentity(nil, "")
		}
		return
	}
	if record.Token == a.Token() {
		return
	}

	user := a.userFromRecord(record)
	slog.Info("Cached login changed, adopting it", "user_id", user.ID)
	a.setIdentity(&user, record.Token)
}

// signIn persists the result before publishing it.
func (a *AuthSession) signIn(email string, result *AuthResult) *User {
	user := result.User
	user.IsAdmin = a.isAdmin(email, user)

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	a.credentials.Save(result.Token, credentials.User{
		ID:   user.ID,
		Name: user.Name,
		Role: user.Role,
	})
	a.setIdentity(&user, result.Token)
	return &user
}

func checkResult(result *AuthResult) error {
	if result == nil || result.Token == "" || result.User.ID == "" {
		return ErrMalformedResponse
	}
	return nil
}

// formatValidationErrors turns validator errors into user-facing messages.
func formatValidationErrors(err error) []string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}

	var messages []string
	for _, e := range validationErrors {
		field := strings.ToLower(e.Field())
		switch e.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "email":
			messages = append(messages, "Invalid email address")
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s characters", field, e.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s is invalid", field))
		}
	}
	return messages
}
