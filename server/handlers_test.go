package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestAuthService_RegisterHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		expectedStatus int
		expectedDetail string
	}{
		{
			name: "valid_registration",
			body: map[string]interface{}{
				"email":    "sipho@example.com",
				"password": "Password123",
				"name":     "Sipho",
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "invalid_json",
			body:           "{not json",
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "Invalid request format",
		},
		{
			name: "unknown_field",
			body: map[string]interface{}{
				"email":    "sipho@example.com",
				"password": "Password123",
				"name":     "Sipho",
				"role":     "admin",
			},
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "Invalid request format",
		},
		{
			name: "missing_name",
			body: map[string]interface{}{
				"email":    "sipho@example.com",
				"password": "Password123",
			},
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "name is required",
		},
		{
			name: "invalid_email",
			body: map[string]interface{}{
				"email":    "not-an-email",
				"password": "Password123",
				"name":     "Sipho",
			},
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "email must be a valid email address",
		},
		{
			name: "short_password",
			body: map[string]interface{}{
				"email":    "sipho@example.com",
				"password": "short",
				"name":     "Sipho",
			},
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "Minimum 8 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authService, _ := mustCreateTestAuthService(t)

			resp := authService.RegisterHandler(createTestRequest(t, "POST", "/register", tt.body))

			if resp.StatusCode != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d (%s)", tt.expectedStatus, resp.StatusCode, resp.Detail)
			}
			if tt.expectedDetail != "" && !strings.Contains(resp.Detail, tt.expectedDetail) {
				t.Errorf("Expected detail containing %q, got %q", tt.expectedDetail, resp.Detail)
			}
			if tt.expectedStatus == http.StatusCreated {
				if resp.Token == "" {
					t.Error("Expected token in response")
				}
				if resp.User == nil || resp.User.Role != DefaultRole || resp.User.IsAdmin {
					t.Errorf("Expected non-admin %q user, got %+v", DefaultRole, resp.User)
				}
			}
		})
	}
}

func TestAuthService_RegisterDuplicate(t *testing.T) {
	authService, _ := mustCreateTestAuthService(t)
	body := map[string]interface{}{
		"email":    "anele@frontend.com",
		"password": "Password123",
		"name":     "Anele",
	}

	if resp := authService.RegisterHandler(createTestRequest(t, "POST", "/register", body)); resp.StatusCode != http.StatusCreated {
		t.Fatalf("First registration should succeed: %+v", resp)
	}

	body["email"] = "  ANELE@frontend.com "
	resp := authService.RegisterHandler(createTestRequest(t, "POST", "/register", body))
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate email, got %d", resp.StatusCode)
	}
	if resp.Detail != "Email already registered" {
		t.Errorf("Expected duplicate detail, got %q", resp.Detail)
	}
}

func TestAuthService_LoginHandler(t *testing.T) {
	authService, _ := mustCreateTestAuthService(t)
	if _, err := authService.SeedUser("tebogo@test.com", "tebogo123", "Tebogo", DefaultAdminRole); err != nil {
		t.Fatalf("SeedUser failed: %v", err)
	}

	tests := []struct {
		name           string
		body           interface{}
		expectedStatus int
		expectedDetail string
	}{
		{
			name:           "valid_login",
			body:           map[string]interface{}{"email": "Tebogo@test.com", "password": "tebogo123"},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "padded_email",
			body:           map[string]interface{}{"email": "  TEBOGO@test.com ", "password": "tebogo123"},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "wrong_password",
			body:           map[string]interface{}{"email": "tebogo@test.com", "password": "wrong"},
			expectedStatus: http.StatusUnauthorized,
			expectedDetail: "Invalid email or password",
		},
		{
			name:           "unknown_user",
			body:           map[string]interface{}{"email": "nobody@test.com", "password": "tebogo123"},
			expectedStatus: http.StatusUnauthorized,
			expectedDetail: "Invalid email or password",
		},
		{
			name:           "missing_password",
			body:           map[string]interface{}{"email": "tebogo@test.com"},
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "password is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := authService.LoginHandler(createTestRequest(t, "POST", "/login", tt.body))

			if resp.StatusCode != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d (%s)", tt.expectedStatus, resp.StatusCode, resp.Detail)
			}
			if tt.expectedDetail != "" && resp.Detail != tt.expectedDetail {
				t.Errorf("Expected detail %q, got %q", tt.expectedDetail, resp.Detail)
			}
			if tt.expectedStatus == http.StatusOK {
				if resp.User == nil || !resp.User.IsAdmin || resp.User.Name != "Tebogo" {
					t.Errorf("Expected admin Tebogo, got %+v", resp.User)
				}
				if resp.Token == "" {
					t.Error("Expected token in response")
				}
			}
		})
	}
}

func TestAuthService_LoginInactiveUser(t *testing.T) {
	authService, _ := mustCreateTestAuthService(t)
	store := authService.storage.(*mockStorage)
	user, err := authService.SeedUser("hluli@frontend.com", "hluli123", "Hluli", DefaultRole)
	if err != nil {
		t.Fatalf("SeedUser failed: %v", err)
	}
	store.setActive(user.ID, false)

	resp := authService.LoginHandler(createTestRequest(t, "POST", "/login", map[string]interface{}{
		"email":    "hluli@frontend.com",
		"password": "hluli123",
	}))
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 for inactive user, got %d", resp.StatusCode)
	}
}

func TestAuthService_LoginLockout(t *testing.T) {
	authService, clk := mustCreateTestAuthService(t)
	authService.securityConfig.MaxLoginAttempts = 3
	store := authService.storage.(*mockStorage)
	if _, err := authService.SeedUser("anele@frontend.com", "anele123", "Anele", DefaultRole); err != nil {
		t.Fatalf("SeedUser failed: %v", err)
	}

	login := func(password string) AuthResponse {
		return authService.LoginHandler(createTestRequest(t, "POST", "/login", map[string]interface{}{
			"email":    "anele@frontend.com",
			"password": password,
		}))
	}

	if resp := login("anele123"); resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected initial login to succeed, got %d", resp.StatusCode)
	}
	if n := store.sessionCount(); n != 1 {
		t.Fatalf("Expected one session, got %d", n)
	}

	for i := 0; i < 3; i++ {
		if resp := login("wrong"); resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("Attempt %d: expected 401, got %d", i+1, resp.StatusCode)
		}
	}

	resp := login("anele123")
	if resp.StatusCode != http.StatusUnauthorized || resp.Detail != "Account is temporarily locked" {
		t.Fatalf("Expected locked account, got %d %q", resp.StatusCode, resp.Detail)
	}

	if n := store.sessionCount(); n != 0 {
		t.Errorf("Expected lockout to revoke sessions, %d remain", n)
	}

	clk.Advance(16 * time.Minute)
	if resp := login("anele123"); resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected login after lockout expiry, got %d %q", resp.StatusCode, resp.Detail)
	}

	var locked bool
	for _, event := range store.securityEvents {
		if event.EventType == EventAccountLocked {
			locked = true
		}
	}
	if !locked {
		t.Error("Expected an account_locked security event")
	}
}

func TestAuthService_LogoutHandler(t *testing.T) {
	authService, _ := mustCreateTestAuthService(t)
	store := authService.storage.(*mockStorage)
	_, token := mustCreateTestUserWithToken(t, authService)

	logoutReq := func(header string) *http.Request {
		req := httptest.NewRequest("POST", "/logout", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		return req
	}

	if resp := authService.LogoutHandler(logoutReq("")); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", resp.StatusCode)
	}
	if resp := authService.LogoutHandler(logoutReq("Bearer garbage")); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 for invalid token, got %d", resp.StatusCode)
	}

	resp := authService.LogoutHandler(logoutReq("Bearer " + token))
	if resp.StatusCode != http.StatusOK || resp.Message != "Successfully logged out" {
		t.Fatalf("Expected successful logout, got %+v", resp)
	}
	if n := store.sessionCount(); n != 0 {
		t.Errorf("Expected session to be revoked, %d remain", n)
	}

	// Revoking twice still succeeds
	if resp := authService.LogoutHandler(logoutReq("Bearer " + token)); resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 for repeated logout, got %d", resp.StatusCode)
	}

	meReq := httptest.NewRequest("GET", "/me", nil)
	meReq.Header.Set("Authorization", "Bearer "+token)
	if me := authService.MeHandler(meReq); me.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected revoked token to be rejected by /me, got %d", me.StatusCode)
	}
}

func TestAuthService_MeHandler(t *testing.T) {
	authService, clk := mustCreateTestAuthService(t)
	user, token := mustCreateTestUserWithToken(t, authService)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp := authService.MeHandler(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d (%s)", resp.StatusCode, resp.Detail)
	}
	if resp.User.ID != user.ID || resp.User.Name != "Test User" {
		t.Errorf("Expected user %+v, got %+v", user, resp.User)
	}

	clk.Advance(8*time.Hour + time.Second)
	if resp := authService.MeHandler(req); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 after token expiry, got %d", resp.StatusCode)
	}
}

func TestRouter_Endpoints(t *testing.T) {
	authService, _ := mustCreateTestAuthService(t)
	if _, err := authService.SeedUser("tebogo@test.com", "tebogo123", "Tebogo", DefaultAdminRole); err != nil {
		t.Fatalf("SeedUser failed: %v", err)
	}
	router := NewRouter(authService, RouterConfig{})

	loginReq := createTestRequest(t, "POST", "/login", map[string]interface{}{
		"email":    "tebogo@test.com",
		"password": "tebogo123",
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, loginReq)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from /login, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %q", ct)
	}

	var body struct {
		User struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Role    string `json:"role"`
			IsAdmin bool   `json:"isAdmin"`
		} `json:"user"`
		Token string `json:"token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode login body: %v", err)
	}
	if !body.User.IsAdmin || body.User.Role != DefaultAdminRole || body.Token == "" {
		t.Errorf("Unexpected login body: %+v", body)
	}

	meReq := httptest.NewRequest("GET", "/me", nil)
	meReq.Header.Set("Authorization", "Bearer "+body.Token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, meReq)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 from /me, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("Expected healthy status, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/login", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET /login, got %d", rec.Code)
	}
}

func TestRouter_RateLimit(t *testing.T) {
	authService, _ := mustCreateTestAuthService(t)
	authService.securityConfig.LoginRate = 0.001
	authService.securityConfig.LoginBurst = 2
	router := NewRouter(authService, RouterConfig{})

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := createTestRequest(t, "POST", "/login", "{}")
		req.RemoteAddr = "203.0.113.9:5555"
		last = httptest.NewRecorder()
		router.ServeHTTP(last, req)
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429 after burst, got %d", last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}

	// Other clients and unlimited endpoints are unaffected
	req := createTestRequest(t, "POST", "/login", "{}")
	req.RemoteAddr = "198.51.100.1:5555"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a fresh client, got %d", rec.Code)
	}
}

func TestRouter_CORS(t *testing.T) {
	authService, _ := mustCreateTestAuthService(t)
	router := NewRouter(authService, RouterConfig{AllowedOrigins: []string{"http://localhost:3000"}})

	req := httptest.NewRequest("OPTIONS", "/login", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Expected allowed origin header, got %q", got)
	}

	req = httptest.NewRequest("OPTIONS", "/login", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Expected no CORS header for unknown origin, got %q", got)
	}
}

func TestRouter_SecurityEvents(t *testing.T) {
	authService, _ := mustCreateTestAuthService(t)
	router := NewRouter(authService, RouterConfig{})
	_, token := mustCreateTestUserWithToken(t, authService)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/me/events", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest("GET", "/me/events", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Events []SecurityEvent `json:"events"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode events: %v", err)
	}
	if len(body.Events) != 1 || body.Events[0].EventType != EventRegistered {
		t.Errorf("Expected the registration event, got %+v", body.Events)
	}
}
