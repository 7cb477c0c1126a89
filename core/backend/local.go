package backend

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/wispberry-tech/sarao-auth/core"
	"github.com/wispberry-tech/sarao-auth/policy"
)

// LocalRole is the role given to accounts registered with a LocalBackend.
const LocalRole = "frontend"

// LocalUser is a seed account for a LocalBackend.
type LocalUser struct {
	Email    string
	Password string
	User     core.User
}

// DefaultLocalUsers returns the demo accounts of the frontend team.
func DefaultLocalUsers() []LocalUser {
	return []LocalUser{
		{
			Email:    "tebogo@test.com",
			Password: "tebogo123",
			User:     core.User{ID: "1", Name: "Tebogo", Role: LocalRole, IsAdmin: true},
		},
		{
			Email:    "anele@frontend.com",
			Password: "anele123",
			User:     core.User{ID: "2", Name: "Anele", Role: LocalRole},
		},
		{
			Email:    "hluli@frontend.com",
			Password: "hluli123",
			User:     core.User{ID: "3", Name: "Hluli", Role: LocalRole},
		},
	}
}

// LocalConfig configures a LocalBackend.
type LocalConfig struct {
	Users          []LocalUser    // defaults to DefaultLocalUsers()
	PasswordPolicy *policy.Policy // checked on Register; nil means policy.Default()
	BcryptCost     int            // defaults to bcrypt.DefaultCost
}

type localAccount struct {
	email        string
	passwordHash []byte
	user         core.User
}

// LocalBackend keeps accounts in memory. It is meant for demos and tests,
// where no API server is available.
type LocalBackend struct {
	policy policy.Policy
	cost   int

	mu       sync.Mutex
	accounts []*localAccount
	tokens   map[string]string // token -> user id
}

// NewLocalBackend creates a LocalBackend and hashes the seed passwords.
func NewLocalBackend(cfg LocalConfig) (*LocalBackend, error) {
	users := cfg.Users
	if users == nil {
		users = DefaultLocalUsers()
	}
	passwordPolicy := policy.Default()
	if cfg.PasswordPolicy != nil {
		passwordPolicy = *cfg.PasswordPolicy
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	b := &LocalBackend{
		policy: passwordPolicy,
		cost:   cost,
		tokens: make(map[string]string),
	}
	for _, u := range users {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), cost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password for %s: %w", u.Email, err)
		}
		b.accounts = append(b.accounts, &localAccount{
			email:        normalizeEmail(u.Email),
			passwordHash: hash,
			user:         u.User,
		})
	}
	return b, nil
}

// Login implements core.Backend.
func (b *LocalBackend) Login(ctx context.Context, email, password string) (*core.AuthResult, error) {
	b.mu.Lock()
	account := b.findLocked(email)
	b.mu.Unlock()

	if account == nil || bcrypt.CompareHashAndPassword(account.passwordHash, []byte(password)) != nil {
		return nil, &core.BackendError{Detail: "Invalid email or password", Err: core.ErrInvalidCredentials}
	}
	return b.issue(account.user), nil
}

// Register implements core.Backend. New accounts get the next sequential id
// and the LocalRole.
func (b *LocalBackend) Register(ctx context.Context, email, password, name string) (*core.AuthResult, error) {
	if violations := b.policy.Validate(password); len(violations) > 0 {
		return nil, &core.BackendError{Detail: strings.Join(violations, ", "), Err: core.ErrInvalidCredentials}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	b.mu.Lock()
	if b.findLocked(email) != nil {
		b.mu.Unlock()
		return nil, &core.BackendError{Detail: "Email already registered", Err: core.ErrInvalidCredentials}
	}
	account := &localAccount{
		email:        normalizeEmail(email),
		passwordHash: hash,
		user: core.User{
			ID:   strconv.Itoa(len(b.accounts) + 1),
			Name: name,
			Role: LocalRole,
		},
	}
	b.accounts = append(b.accounts, account)
	b.mu.Unlock()

	slog.Debug("Registered local user", "user_id", account.user.ID)
	return b.issue(account.user), nil
}

// Logout implements core.Backend. Unknown tokens are ignored.
func (b *LocalBackend) Logout(ctx context.Context, token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tokens, token)
	return nil
}

// Authenticated reports whether token was issued and not logged out.
func (b *LocalBackend) Authenticated(token string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.tokens[token]
	return ok
}

func (b *LocalBackend) issue(user core.User) *core.AuthResult {
	token := "local-" + uuid.NewString()
	b.mu.Lock()
	b.tokens[token] = user.ID
	b.mu.Unlock()
	return &core.AuthResult{User: user, Token: token}
}

func (b *LocalBackend) findLocked(email string) *localAccount {
	email = normalizeEmail(email)
	for _, account := range b.accounts {
		if account.email == email {
			return account
		}
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ core.Backend = (*LocalBackend)(nil)
