// Package state holds the read-only view of the signed-in identity that the
// rest of the application consults. The auth session is its only writer.
package state

import (
	"errors"
	"sync"

	"golang.org/x/oauth2"
)

// ErrNoToken is returned by Token while nobody is signed in.
var ErrNoToken = errors.New("no authenticated user")

// User is the identity as other components see it.
type User struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	IsAdmin bool   `json:"isAdmin"`
}

// Snapshot is a copy of the auth state.
type Snapshot struct {
	User  *User
	Token string
}

// IsAuthenticated reports whether a user is present.
func (s Snapshot) IsAuthenticated() bool { return s.User != nil }

// IsAdmin reports whether the present user is an administrator.
func (s Snapshot) IsAdmin() bool { return s.User != nil && s.User.IsAdmin }

// Store is a small observable container for the auth state.
type Store struct {
	mu        sync.RWMutex
	user      *User
	token     string
	listeners map[uint64]func(Snapshot)
	nextID    uint64
}

// NewStore returns an empty, signed-out Store.
func NewStore() *Store {
	return &Store{listeners: make(map[uint64]func(Snapshot))}
}

// SetCredentials replaces the state and notifies subscribers. Pass a nil
// user and empty token to sign out.
func (s *Store) SetCredentials(user *User, token string) {
	s.mu.Lock()
	if user != nil {
		copied := *user
		user = &copied
	}
	s.user = user
	s.token = token
	snap := s.snapshotLocked()
	listeners := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe registers fn for every change. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Token implements oauth2.TokenSource so HTTP clients can attach the current
// bearer token to outgoing requests.
func (s *Store) Token() (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return nil, ErrNoToken
	}
	return &oauth2.Token{AccessToken: s.token, TokenType: "Bearer"}, nil
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{Token: s.token}
	if s.user != nil {
		copied := *s.user
		snap.User = &copied
	}
	return snap
}

var _ oauth2.TokenSource = (*Store)(nil)
