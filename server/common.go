package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

// Audit log event names stored in security_events.event_type.
const (
	EventRegistered     = "user_registered"
	EventLoginSuccess   = "login_success"
	EventLoginFailed    = "login_failed"
	EventAccountLocked  = "account_locked"
	EventSessionRevoked = "session_revoked"
)

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func checkPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// normalizeEmail is the account key form: trimmed and lower case.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// extractIPFromRequest picks the client address, preferring the first
// X-Forwarded-For hop, then X-Real-IP, then the socket peer.
func extractIPFromRequest(remoteAddr, xForwardedFor, xRealIP string) string {
	first, _, _ := strings.Cut(xForwardedFor, ",")
	for _, candidate := range []string{strings.TrimSpace(first), strings.TrimSpace(xRealIP)} {
		if candidate != "" && net.ParseIP(candidate) != nil {
			return candidate
		}
	}

	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

func extractIP(r *http.Request) string {
	return extractIPFromRequest(r.RemoteAddr, r.Header.Get("X-Forwarded-For"), r.Header.Get("X-Real-IP"))
}

// extractTokenFromRequest returns the bearer token of the Authorization
// header, or "".
func extractTokenFromRequest(r *http.Request) string {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// validationMessages maps a validator tag to a detail template; %[1]s is the
// field name and %[2]s the tag parameter.
var validationMessages = map[string]string{
	"required": "%[1]s is required",
	"email":    "%[1]s must be a valid email address",
	"max":      "%[1]s must be at most %[2]s characters long",
}

// formatValidationErrors renders validator failures as a single "; "
// separated detail string.
func formatValidationErrors(err error) string {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err.Error()
	}

	details := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		template, ok := validationMessages[fe.Tag()]
		if !ok {
			template = "%[1]s is invalid"
		}
		details = append(details, fmt.Sprintf(template, strings.ToLower(fe.Field()), fe.Param()))
	}
	return strings.Join(details, "; ")
}
