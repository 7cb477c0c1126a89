package backend

import (
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/wispberry-tech/sarao-auth/core"
)

func mustCreateTestLocalBackend(t *testing.T) *LocalBackend {
	t.Helper()
	b, err := NewLocalBackend(LocalConfig{BcryptCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("Failed to create local backend: %v", err)
	}
	return b
}

func TestLocalBackend_Login(t *testing.T) {
	b := mustCreateTestLocalBackend(t)

	tests := []struct {
		name     string
		email    string
		password string
		wantID   string
		wantErr  bool
	}{
		{"tebogo", "tebogo@test.com", "tebogo123", "1", false},
		{"anele", "anele@frontend.com", "anele123", "2", false},
		{"case_insensitive_email", "  Hluli@Frontend.com", "hluli123", "3", false},
		{"wrong_password", "anele@frontend.com", "nope", "", true},
		{"unknown_user", "ghost@frontend.com", "anele123", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := b.Login(context.Background(), tt.email, tt.password)
			if tt.wantErr {
				var backendErr *core.BackendError
				if !errors.As(err, &backendErr) || backendErr.Detail != "Invalid email or password" {
					t.Errorf("Expected invalid credentials error, got %v", err)
				}
				if !errors.Is(err, core.ErrInvalidCredentials) {
					t.Error("Expected error to wrap ErrInvalidCredentials")
				}
				return
			}
			if err != nil {
				t.Fatalf("Login failed: %v", err)
			}
			if result.User.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", result.User.ID, tt.wantID)
			}
			if !strings.HasPrefix(result.Token, "local-") || !b.Authenticated(result.Token) {
				t.Errorf("Unexpected token %q", result.Token)
			}
		})
	}
}

func TestLocalBackend_SeedAdminFlag(t *testing.T) {
	b := mustCreateTestLocalBackend(t)
	result, err := b.Login(context.Background(), "tebogo@test.com", "tebogo123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !result.User.IsAdmin {
		t.Error("Tebogo should be flagged admin")
	}
}

func TestLocalBackend_Register(t *testing.T) {
	b := mustCreateTestLocalBackend(t)
	ctx := context.Background()

	result, err := b.Register(ctx, "sipho@frontend.com", "sipho1234", "Sipho")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if result.User.ID != "4" || result.User.Role != LocalRole || result.User.Name != "Sipho" {
		t.Errorf("Unexpected user: %+v", result.User)
	}

	if _, err := b.Login(ctx, "sipho@frontend.com", "sipho1234"); err != nil {
		t.Errorf("Registered user should be able to log in: %v", err)
	}

	second, err := b.Register(ctx, "zola@frontend.com", "zola12345", "Zola")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if second.User.ID != "5" {
		t.Errorf("ID = %q, want 5", second.User.ID)
	}
}

func TestLocalBackend_RegisterRejections(t *testing.T) {
	tests := []struct {
		name       string
		email      string
		password   string
		wantDetail string
	}{
		{"duplicate", "anele@frontend.com", "anele1234", "Email already registered"},
		{"duplicate_case", "ANELE@frontend.com", "anele1234", "Email already registered"},
		{"weak_password", "new@frontend.com", "short", "Minimum 8 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := mustCreateTestLocalBackend(t)
			_, err := b.Register(context.Background(), tt.email, tt.password, "New")

			var backendErr *core.BackendError
			if !errors.As(err, &backendErr) {
				t.Fatalf("Expected *core.BackendError, got %v", err)
			}
			if backendErr.Detail != tt.wantDetail {
				t.Errorf("Detail = %q, want %q", backendErr.Detail, tt.wantDetail)
			}
		})
	}
}

func TestLocalBackend_Logout(t *testing.T) {
	b := mustCreateTestLocalBackend(t)
	ctx := context.Background()

	result, err := b.Login(ctx, "anele@frontend.com", "anele123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := b.Logout(ctx, result.Token); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if b.Authenticated(result.Token) {
		t.Error("Token should be revoked after logout")
	}
	if err := b.Logout(ctx, "unknown"); err != nil {
		t.Errorf("Logout of unknown token should succeed, got %v", err)
	}
}

func TestLocalBackend_WithAuthSession(t *testing.T) {
	auth := mustCreateTestSession(t, mustCreateTestLocalBackend(t))
	ctx := context.Background()

	_, err := auth.Login(ctx, "anele@frontend.com", "wrong")
	var authErr *core.AuthenticationError
	if !errors.As(err, &authErr) || authErr.Message != "Invalid email or password" {
		t.Fatalf("Expected backend detail in auth error, got %v", err)
	}

	user, err := auth.Login(ctx, "tebogo@test.com", "tebogo123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !user.IsAdmin || !auth.IsAdmin() {
		t.Error("Seeded admin should be admin through the session")
	}
}
