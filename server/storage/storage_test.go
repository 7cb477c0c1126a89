package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wispberry-tech/sarao-auth/server"
)

// runStorageSuite exercises a server.Storage implementation end to end.
func runStorageSuite(t *testing.T, s server.Storage) {
	t.Helper()
	base := time.Now().UTC().Truncate(time.Second)

	user := &server.User{
		Email:        "suite-" + uuid.NewString()[:8] + "@example.com",
		Name:         "Suite User",
		Role:         server.DefaultRole,
		PasswordHash: "hash",
		IsActive:     true,
	}

	t.Run("create_and_get_user", func(t *testing.T) {
		if err := s.CreateUser(user); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
		if _, err := uuid.Parse(user.ID); err != nil {
			t.Fatalf("Expected UUID id, got %q", user.ID)
		}

		byEmail, err := s.GetUserByEmail(user.Email)
		if err != nil || byEmail == nil {
			t.Fatalf("GetUserByEmail failed: %v, %v", byEmail, err)
		}
		if byEmail.ID != user.ID || byEmail.Name != "Suite User" || !byEmail.IsActive {
			t.Errorf("Unexpected user: %+v", byEmail)
		}
		if byEmail.LockedUntil != nil || byEmail.LastLoginAt != nil {
			t.Errorf("Expected no lock or last login, got %+v", byEmail)
		}

		byID, err := s.GetUserByID(user.ID)
		if err != nil || byID == nil || byID.Email != user.Email {
			t.Fatalf("GetUserByID failed: %v, %v", byID, err)
		}
	})

	t.Run("duplicate_email", func(t *testing.T) {
		dup := &server.User{Email: user.Email, Name: "Dup", Role: server.DefaultRole, PasswordHash: "x", IsActive: true}
		if err := s.CreateUser(dup); !errors.Is(err, server.ErrUserExists) {
			t.Errorf("Expected ErrUserExists, got %v", err)
		}
	})

	t.Run("missing_user", func(t *testing.T) {
		got, err := s.GetUserByEmail("missing@example.com")
		if err != nil || got != nil {
			t.Errorf("Expected (nil, nil), got (%v, %v)", got, err)
		}
		got, err = s.GetUserByID(uuid.NewString())
		if err != nil || got != nil {
			t.Errorf("Expected (nil, nil), got (%v, %v)", got, err)
		}
	})

	t.Run("login_security", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			if err := s.IncrementLoginAttempts(user.ID); err != nil {
				t.Fatalf("IncrementLoginAttempts failed: %v", err)
			}
		}
		got, _ := s.GetUserByID(user.ID)
		if got.LoginAttempts != 2 {
			t.Errorf("Expected 2 attempts, got %d", got.LoginAttempts)
		}

		until := base.Add(15 * time.Minute)
		if err := s.SetUserLocked(user.ID, until); err != nil {
			t.Fatalf("SetUserLocked failed: %v", err)
		}
		got, _ = s.GetUserByID(user.ID)
		if got.LockedUntil == nil || !got.LockedUntil.Equal(until) {
			t.Errorf("Expected locked until %v, got %v", until, got.LockedUntil)
		}
		if got.LoginAttempts != 0 {
			t.Errorf("Expected attempts reset on lock, got %d", got.LoginAttempts)
		}

		if err := s.ResetLoginAttempts(user.ID); err != nil {
			t.Fatalf("ResetLoginAttempts failed: %v", err)
		}
		if err := s.UpdateLastLogin(user.ID, "192.0.2.1"); err != nil {
			t.Fatalf("UpdateLastLogin failed: %v", err)
		}
		got, _ = s.GetUserByID(user.ID)
		if got.LockedUntil != nil {
			t.Errorf("Expected lock cleared, got %v", got.LockedUntil)
		}
		if got.LastLoginAt == nil || got.LastLoginIP != "192.0.2.1" {
			t.Errorf("Expected last login recorded, got %v %q", got.LastLoginAt, got.LastLoginIP)
		}
	})

	t.Run("sessions", func(t *testing.T) {
		live := &server.Session{
			ID:             uuid.NewString(),
			UserID:         user.ID,
			ExpiresAt:      base.Add(time.Hour),
			UserAgent:      "test",
			IPAddress:      "192.0.2.1",
			LastAccessedAt: base,
			CreatedAt:      base,
		}
		expired := &server.Session{
			ID:             uuid.NewString(),
			UserID:         user.ID,
			ExpiresAt:      base.Add(-time.Hour),
			LastAccessedAt: base.Add(-2 * time.Hour),
			CreatedAt:      base.Add(-2 * time.Hour),
		}
		for _, session := range []*server.Session{live, expired} {
			if err := s.CreateSession(session); err != nil {
				t.Fatalf("CreateSession failed: %v", err)
			}
		}

		got, err := s.GetSession(live.ID)
		if err != nil || got == nil {
			t.Fatalf("GetSession failed: %v, %v", got, err)
		}
		if got.UserID != user.ID || !got.ExpiresAt.Equal(live.ExpiresAt) || got.UserAgent != "test" {
			t.Errorf("Unexpected session: %+v", got)
		}

		touched := base.Add(time.Minute)
		if err := s.TouchSession(live.ID, touched); err != nil {
			t.Fatalf("TouchSession failed: %v", err)
		}
		got, _ = s.GetSession(live.ID)
		if !got.LastAccessedAt.Equal(touched) {
			t.Errorf("Expected last access %v, got %v", touched, got.LastAccessedAt)
		}

		removed, err := s.CleanupExpiredSessions(base)
		if err != nil {
			t.Fatalf("CleanupExpiredSessions failed: %v", err)
		}
		if removed != 1 {
			t.Errorf("Expected 1 expired session removed, got %d", removed)
		}
		if got, _ := s.GetSession(expired.ID); got != nil {
			t.Error("Expected expired session to be gone")
		}

		if err := s.DeleteSession(live.ID); err != nil {
			t.Fatalf("DeleteSession failed: %v", err)
		}
		if got, _ := s.GetSession(live.ID); got != nil {
			t.Error("Expected deleted session to be gone")
		}
		if err := s.DeleteSession(live.ID); err != nil {
			t.Errorf("Deleting a missing session should succeed: %v", err)
		}

		again := &server.Session{ID: uuid.NewString(), UserID: user.ID, ExpiresAt: base.Add(time.Hour), LastAccessedAt: base, CreatedAt: base}
		if err := s.CreateSession(again); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
		if err := s.DeleteUserSessions(user.ID); err != nil {
			t.Fatalf("DeleteUserSessions failed: %v", err)
		}
		if got, _ := s.GetSession(again.ID); got != nil {
			t.Error("Expected user sessions to be gone")
		}
	})

	t.Run("security_events", func(t *testing.T) {
		for _, eventType := range []string{server.EventLoginFailed, server.EventLoginSuccess} {
			event := &server.SecurityEvent{
				UserID:    &user.ID,
				EventType: eventType,
				IPAddress: "192.0.2.1",
				Success:   eventType == server.EventLoginSuccess,
				CreatedAt: base,
			}
			if err := s.CreateSecurityEvent(event); err != nil {
				t.Fatalf("CreateSecurityEvent failed: %v", err)
			}
			if event.ID == 0 {
				t.Error("Expected event ID to be assigned")
			}
		}
		anonymous := &server.SecurityEvent{EventType: server.EventLoginFailed, CreatedAt: base}
		if err := s.CreateSecurityEvent(anonymous); err != nil {
			t.Fatalf("CreateSecurityEvent without user failed: %v", err)
		}

		events, err := s.GetSecurityEventsByUser(user.ID, 10)
		if err != nil {
			t.Fatalf("GetSecurityEventsByUser failed: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("Expected 2 events, got %d", len(events))
		}
		if events[0].EventType != server.EventLoginSuccess || !events[0].Success {
			t.Errorf("Expected newest event first, got %+v", events[0])
		}
		if events[0].UserID == nil || *events[0].UserID != user.ID {
			t.Errorf("Expected user id on event, got %v", events[0].UserID)
		}

		limited, _ := s.GetSecurityEventsByUser(user.ID, 1)
		if len(limited) != 1 {
			t.Errorf("Expected limit to apply, got %d events", len(limited))
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := s.Ping(); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}
