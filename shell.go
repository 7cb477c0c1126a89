// Package sarao wires the session pieces into one application shell.
//
// A Shell owns an AuthSession and, while someone is signed in, a
// session.Monitor. The monitor is mounted on login and disposed on logout;
// when it expires the shell logs out. An optional watcher keeps the session
// in step with credential changes made by another process.
//
// ## Quick Start:
//
//	cfg, err := config.Load("sarao.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	shell, err := sarao.Build(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer shell.Close()
//
//	if err := shell.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	user, err := shell.Auth().Login(ctx, email, password)
package sarao

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/wispberry-tech/sarao-auth/api"
	"github.com/wispberry-tech/sarao-auth/clock"
	"github.com/wispberry-tech/sarao-auth/core"
	"github.com/wispberry-tech/sarao-auth/credentials"
	"github.com/wispberry-tech/sarao-auth/session"
	"github.com/wispberry-tech/sarao-auth/state"
)

// logoutTimeout bounds the backend call made when a session expires or the
// API rejects the token.
const logoutTimeout = 10 * time.Second

// Watcher reports changes to a stored credential key.
// credentials.FileStorage implements it.
type Watcher interface {
	Watch(ctx context.Context, key string, onChange func()) error
}

// ShellConfig contains the configuration for a Shell.
type ShellConfig struct {
	Auth    *core.AuthSession // required
	Monitor session.Config
	Clock   clock.Clock // defaults to clock.Real()

	// Watcher, when set, triggers AuthSession.Sync whenever WatchKey
	// changes. WatchKey defaults to credentials.DefaultKey.
	Watcher  Watcher
	WatchKey string

	// OnSessionChange receives every monitor snapshot: ticks, warnings,
	// activity and expiry. It must not call back into the AuthSession.
	OnSessionChange func(session.Snapshot)
}

// Shell mounts a session monitor for as long as someone is signed in.
type Shell struct {
	auth            *core.AuthSession
	monitorCfg      session.Config
	clock           clock.Clock
	watcher         Watcher
	watchKey        string
	onSessionChange func(session.Snapshot)
	closers         []io.Closer

	mu          sync.Mutex
	started     bool
	closed      bool
	monitor     *session.Monitor
	token       string
	unsubscribe func()
	cancel      context.CancelFunc
}

// NewShell creates a Shell. Call Start to restore the cached login and
// begin tracking the session.
func NewShell(cfg ShellConfig) (*Shell, error) {
	if cfg.Auth == nil {
		return nil, errors.New("auth session is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	watchKey := cfg.WatchKey
	if watchKey == "" {
		watchKey = credentials.DefaultKey
	}

	return &Shell{
		auth:            cfg.Auth,
		monitorCfg:      cfg.Monitor,
		clock:           clk,
		watcher:         cfg.Watcher,
		watchKey:        watchKey,
		onSessionChange: cfg.OnSessionChange,
	}, nil
}

// Auth returns the shell's AuthSession.
func (s *Shell) Auth() *core.AuthSession { return s.auth }

// Start hydrates the AuthSession and mounts a monitor if the cached login
// is still valid. Calling it again does nothing.
func (s *Shell) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.auth.Init()
	unsubscribe := s.auth.Subscribe(s.onAuthChange)

	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	s.onAuthChange(s.auth.State().Snapshot())

	if s.watcher != nil {
		watchCtx, cancel := context.WithCancel(ctx)
		if err := s.watcher.Watch(watchCtx, s.watchKey, s.auth.Sync); err != nil {
			cancel()
			return fmt.Errorf("failed to watch credentials: %w", err)
		}
		s.mu.Lock()
		s.cancel = cancel
		s.mu.Unlock()
	}
	return nil
}

// Activity forwards a user interaction to the mounted monitor, if any.
func (s *Shell) Activity(kind session.ActivityKind) {
	s.mu.Lock()
	m := s.monitor
	s.mu.Unlock()

	if m != nil {
		m.Activity(kind)
	}
}

// Session returns the monitor snapshot and whether a monitor is mounted.
func (s *Shell) Session() (session.Snapshot, bool) {
	s.mu.Lock()
	m := s.monitor
	s.mu.Unlock()

	if m == nil {
		return session.Snapshot{}, false
	}
	return m.Snapshot(), true
}

// APIClient returns a resource client that sends the current bearer token
// and logs out when the API rejects it.
func (s *Shell) APIClient(baseURL string) (*api.Client, error) {
	return api.NewClient(api.Config{
		BaseURL:        baseURL,
		Source:         s.auth.State(),
		OnUnauthorized: s.logout,
	})
}

// Close disposes the monitor, stops watching and releases the AuthSession.
// The cached login is kept for the next start.
func (s *Shell) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	m := s.monitor
	s.monitor = nil
	s.token = ""
	unsubscribe := s.unsubscribe
	cancel := s.cancel
	closers := s.closers
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	if m != nil {
		m.Dispose()
	}
	s.auth.Dispose()

	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// onAuthChange mounts a fresh monitor for every new login and disposes it
// on sign-out.
func (s *Shell) onAuthChange(snap state.Snapshot) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if snap.IsAuthenticated() && s.monitor != nil && s.token == snap.Token {
		s.mu.Unlock()
		return
	}
	if !snap.IsAuthenticated() && s.monitor == nil {
		s.mu.Unlock()
		return
	}

	old := s.monitor
	var mounted *session.Monitor
	if snap.IsAuthenticated() {
		mounted = session.NewMonitor(s.monitorCfg, s.clock, s.logout)
		if s.onSessionChange != nil {
			mounted.Subscribe(s.onSessionChange)
		}
	}
	s.monitor = mounted
	s.token = snap.Token
	s.mu.Unlock()

	if old != nil {
		old.Dispose()
		slog.Debug("Session monitor unmounted")
	}
	if mounted != nil {
		mounted.Start()
		slog.Debug("Session monitor mounted", "user_id", snap.User.ID)
	}
}

func (s *Shell) logout() {
	ctx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
	defer cancel()
	s.auth.Logout(ctx)
}
