package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Common errors returned by backends and the auth session.
var (
	// ErrInvalidCredentials is wrapped by backend errors that reject the
	// supplied email/password or registration data.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrMalformedResponse is returned when a backend answers without a
	// usable user or token.
	ErrMalformedResponse = errors.New("malformed backend response")
)

// BackendError is a non-success answer from an authentication backend.
type BackendError struct {
	Status int    // HTTP status, or 0 for non-HTTP backends
	Detail string // human-readable reason supplied by the backend
	Err    error  // ErrInvalidCredentials for rejections
}

func (e *BackendError) Error() string {
	detail := e.Detail
	if detail == "" {
		detail = http.StatusText(e.Status)
	}
	if e.Status == 0 {
		return fmt.Sprintf("backend error: %s", detail)
	}
	return fmt.Sprintf("backend error %d: %s", e.Status, detail)
}

func (e *BackendError) Unwrap() error { return e.Err }

// AuthenticationError is returned by Login and Register when the backend
// refuses the request or cannot be reached. Message is safe to show to the
// user.
type AuthenticationError struct {
	Message string
	Err     error
}

func (e *AuthenticationError) Error() string { return e.Message }

func (e *AuthenticationError) Unwrap() error { return e.Err }

func newAuthenticationError(fallback string, err error) *AuthenticationError {
	message := fallback
	var backendErr *BackendError
	if errors.As(err, &backendErr) && backendErr.Detail != "" {
		message = backendErr.Detail
	}
	return &AuthenticationError{Message: message, Err: err}
}

// ValidationError lists every rule a registration request violated. It is
// returned before any backend call is made.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Violations, ", ")
}
