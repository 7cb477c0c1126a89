package core

import (
	"context"

	"github.com/wispberry-tech/sarao-auth/state"
)

// User is the signed-in identity exposed by the auth session.
type User = state.User

// AuthResult is a backend's answer to a successful login or registration.
type AuthResult struct {
	User  User
	Token string
}

// Backend verifies credentials. Implementations live in core/backend.
type Backend interface {
	// Login checks email and password. A rejection should wrap
	// ErrInvalidCredentials, ideally inside a *BackendError with a Detail.
	Login(ctx context.Context, email, password string) (*AuthResult, error)

	// Register creates an account and signs it in.
	Register(ctx context.Context, email, password, name string) (*AuthResult, error)

	// Logout revokes token on the backend. Failures are not fatal to the
	// caller.
	Logout(ctx context.Context, token string) error
}
