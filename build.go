package sarao

import (
	"fmt"
	"io"
	"net/http"

	"github.com/wispberry-tech/sarao-auth/config"
	"github.com/wispberry-tech/sarao-auth/core"
	"github.com/wispberry-tech/sarao-auth/core/backend"
	"github.com/wispberry-tech/sarao-auth/credentials"
	"github.com/wispberry-tech/sarao-auth/policy"
	"github.com/wispberry-tech/sarao-auth/state"
)

// Build assembles a Shell from configuration: the credential storage
// driver, the backend kind, the admin rules and the session timings.
func Build(cfg config.Config) (*Shell, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	storage, watcher, closer, err := openCredentialStorage(cfg.Credentials)
	if err != nil {
		return nil, err
	}
	var closers []io.Closer
	if closer != nil {
		closers = append(closers, closer)
	}
	fail := func(err error) (*Shell, error) {
		for _, c := range closers {
			c.Close()
		}
		return nil, err
	}

	creds, err := credentials.NewStore(credentials.Config{
		Storage: storage,
		Key:     cfg.Credentials.Key,
		MaxAge:  cfg.Credentials.MaxAge.Std(),
	})
	if err != nil {
		return fail(fmt.Errorf("failed to create credential store: %w", err))
	}

	passwordPolicy := cfg.PasswordPolicy
	b, err := newBackend(cfg.Backend, &passwordPolicy)
	if err != nil {
		return fail(err)
	}

	auth, err := core.NewAuthSession(core.Config{
		Credentials:     creds,
		Backend:         b,
		State:           state.NewStore(),
		PasswordPolicy:  &passwordPolicy,
		AdminRole:       cfg.Auth.AdminRole,
		TestMode:        cfg.Auth.TestMode,
		AdminTestDomain: cfg.Auth.AdminTestDomain,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to create auth session: %w", err))
	}

	shell, err := NewShell(ShellConfig{
		Auth:     auth,
		Monitor:  cfg.Session.MonitorConfig(),
		Watcher:  watcher,
		WatchKey: cfg.Credentials.Key,
	})
	if err != nil {
		return fail(err)
	}
	shell.closers = closers
	return shell, nil
}

func openCredentialStorage(cfg config.CredentialsConfig) (credentials.Storage, Watcher, io.Closer, error) {
	switch cfg.Driver {
	case "file":
		fs, err := credentials.NewFileStorage(cfg.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open credential directory: %w", err)
		}
		return fs, fs, nil, nil
	case "sqlite":
		db, err := credentials.NewSQLiteStorage(cfg.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open credential database: %w", err)
		}
		return db, nil, db, nil
	default:
		return credentials.NewMemoryStorage(), nil, nil, nil
	}
}

func newBackend(cfg config.BackendConfig, passwordPolicy *policy.Policy) (core.Backend, error) {
	switch cfg.Kind {
	case "http":
		timeout := cfg.Timeout.Std()
		if timeout == 0 {
			timeout = backend.DefaultTimeout
		}
		b, err := backend.NewHTTPBackend(backend.HTTPConfig{
			BaseURL: cfg.URL,
			Client:  &http.Client{Timeout: timeout},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create http backend: %w", err)
		}
		return b, nil
	default:
		b, err := backend.NewLocalBackend(backend.LocalConfig{PasswordPolicy: passwordPolicy})
		if err != nil {
			return nil, fmt.Errorf("failed to create local backend: %w", err)
		}
		return b, nil
	}
}
