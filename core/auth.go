// Package core provides the auth session: the single object the rest of the
// application asks "who is signed in?".
//
// An AuthSession composes three collaborators:
//   - a credentials.Store that caches the login across restarts
//   - a Backend that verifies credentials (HTTP or a fixed local user list)
//   - a state.Store mirror that other components read from
//
// ## Quick Start:
//
//	store, _ := credentials.NewStore(credentials.Config{Storage: storage})
//	auth, err := core.NewAuthSession(core.Config{
//		Credentials: store,
//		Backend:     backend.NewHTTPBackend(backend.HTTPConfig{BaseURL: url}),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	auth.Init()
//	defer auth.Dispose()
//
//	user, err := auth.Login(ctx, email, password)
package core

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/wispberry-tech/sarao-auth/credentials"
	"github.com/wispberry-tech/sarao-auth/policy"
	"github.com/wispberry-tech/sarao-auth/state"
)

const (
	// DefaultAdminRole is the backend role that grants admin rights.
	DefaultAdminRole = "admin"

	// DefaultAdminTestDomain is the email domain treated as admin when
	// TestMode is enabled.
	DefaultAdminTestDomain = "test.com"
)

// Config contains the configuration for an AuthSession.
type Config struct {
	Credentials *credentials.Store // required
	Backend     Backend            // required
	State       *state.Store       // created when nil

	// PasswordPolicy is checked by Register. Nil means policy.Default().
	PasswordPolicy *policy.Policy

	// AdminRole is the role that marks a user as admin. Defaults to
	// DefaultAdminRole.
	AdminRole string

	// TestMode enables the staging shortcut that treats every address in
	// AdminTestDomain as an admin. Never enable it in production.
	TestMode        bool
	AdminTestDomain string
}

// AuthSession owns the in-memory identity for one application lifetime.
type AuthSession struct {
	credentials *credentials.Store
	backend     Backend
	state       *state.Store
	policy      policy.Policy
	validator   *validator.Validate

	adminRole       string
	testMode        bool
	adminTestDomain string

	// writeMu orders persistence before the in-memory update.
	writeMu sync.Mutex

	mu          sync.RWMutex
	user        *User
	token       string
	loading     bool
	initialized bool

	subsMu sync.Mutex
	subs   []func()
}

// NewAuthSession creates an AuthSession. It starts in the loading state;
// call Init to hydrate it from the credential store.
func NewAuthSession(cfg Config) (*AuthSession, error) {
	if cfg.Credentials == nil {
		return nil, errors.New("credential store is required")
	}
	if cfg.Backend == nil {
		return nil, errors.New("auth backend is required")
	}

	stateStore := cfg.State
	if stateStore == nil {
		stateStore = state.NewStore()
	}

	passwordPolicy := policy.Default()
	if cfg.PasswordPolicy != nil {
		passwordPolicy = *cfg.PasswordPolicy
	}

	adminRole := cfg.AdminRole
	if adminRole == "" {
		adminRole = DefaultAdminRole
	}

	adminTestDomain := strings.TrimPrefix(strings.ToLower(cfg.AdminTestDomain), "@")
	if adminTestDomain == "" {
		adminTestDomain = DefaultAdminTestDomain
	}
	if cfg.TestMode {
		slog.Warn("Auth test mode enabled: test-domain addresses are treated as admins",
			"domain", adminTestDomain)
	}

	return &AuthSession{
		credentials:     cfg.Credentials,
		backend:         cfg.Backend,
		state:           stateStore,
		policy:          passwordPolicy,
		validator:       validator.New(),
		adminRole:       adminRole,
		testMode:        cfg.TestMode,
		adminTestDomain: adminTestDomain,
		loading:         true,
	}, nil
}

// Init restores a cached login, if one is present and not expired, and
// ends the loading state. Only the first call has an effect.
func (a *AuthSession) Init() {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.mu.Lock()
	if a.initialized {
		a.mu.Unlock()
		return
	}
	a.initialized = true
	a.mu.Unlock()

	if record, ok := a.credentials.Retrieve(); ok {
		user := a.userFromRecord(record)
		a.setIdentity(&user, record.Token)
		slog.Info("Restored cached login", "user_id", user.ID)
	}

	a.mu.Lock()
	a.loading = false
	a.mu.Unlock()
}

// Dispose detaches every subscriber and forgets the in-memory identity
// without touching the credential store, as happens when a page is closed.
// A new AuthSession can pick the cached login back up.
func (a *AuthSession) Dispose() {
	a.subsMu.Lock()
	subs := a.subs
	a.subs = nil
	a.subsMu.Unlock()
	for _, unsubscribe := range subs {
		unsubscribe()
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	a.setIdentity(nil, "")
	a.mu.Lock()
	a.loading = true
	a.initialized = false
	a.mu.Unlock()
}

// State returns the mirror other components read from.
func (a *AuthSession) State() *state.Store { return a.state }

// Subscribe calls fn after every identity change until the returned func is
// called or the session is disposed.
func (a *AuthSession) Subscribe(fn func(state.Snapshot)) func() {
	unsubscribe := a.state.Subscribe(fn)
	var once sync.Once
	detach := func() { once.Do(unsubscribe) }

	a.subsMu.Lock()
	a.subs = append(a.subs, detach)
	a.subsMu.Unlock()
	return detach
}

// User returns a copy of the signed-in user, or nil.
func (a *AuthSession) User() *User {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.user == nil {
		return nil
	}
	user := *a.user
	return &user
}

// Token returns the current bearer token, or "".
func (a *AuthSession) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

// IsAuthenticated reports whether a user is signed in.
func (a *AuthSession) IsAuthenticated() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.user != nil
}

// IsAdmin reports whether the signed-in user is an administrator.
func (a *AuthSession) IsAdmin() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.user != nil && a.user.IsAdmin
}

// Loading reports whether Init has not completed yet.
func (a *AuthSession) Loading() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loading
}

// setIdentity updates the in-memory identity and the mirror. Callers hold
// writeMu.
func (a *AuthSession) setIdentity(user *User, token string) {
	a.mu.Lock()
	if user == nil && a.user == nil && a.token == "" {
		a.mu.Unlock()
		return
	}
	if user != nil {
		copied := *user
		user = &copied
	}
	a.user = user
	a.token = token
	a.mu.Unlock()

	a.state.SetCredentials(user, token)
}

// userFromRecord rebuilds the identity from a cached record. The email is
// not cached, so only the role can grant admin rights here.
func (a *AuthSession) userFromRecord(record *credentials.Record) User {
	return User{
		ID:      record.User.ID,
		Name:    record.User.Name,
		Role:    record.User.Role,
		IsAdmin: strings.EqualFold(record.User.Role, a.adminRole),
	}
}

func (a *AuthSession) isAdmin(email string, user User) bool {
	if user.IsAdmin || strings.EqualFold(user.Role, a.adminRole) {
		return true
	}
	if !a.testMode {
		return false
	}
	email = strings.ToLower(strings.TrimSpace(email))
	return strings.HasSuffix(email, "@"+a.adminTestDomain)
}
