// Package config loads the Sarao auth configuration from a YAML file and
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/wispberry-tech/sarao-auth/credentials"
	"github.com/wispberry-tech/sarao-auth/policy"
	"github.com/wispberry-tech/sarao-auth/session"
)

// Environment variables that override file values.
const (
	EnvSessionTimeout  = "SARAO_SESSION_TIMEOUT" // seconds
	EnvSessionWarning  = "SARAO_SESSION_WARNING" // seconds
	EnvBackendURL      = "SARAO_BACKEND_URL"
	EnvTestMode        = "SARAO_TEST_MODE"
	EnvCredentialsPath = "SARAO_CREDENTIALS_PATH"
	EnvDatabaseDSN     = "SARAO_DATABASE_DSN"
	EnvJWTSecret       = "SARAO_JWT_SECRET"
)

// Config is the complete configuration.
type Config struct {
	Session        SessionConfig     `yaml:"session"`
	Credentials    CredentialsConfig `yaml:"credentials"`
	Backend        BackendConfig     `yaml:"backend"`
	Auth           AuthConfig        `yaml:"auth"`
	PasswordPolicy policy.Policy     `yaml:"password_policy"`
	Server         ServerConfig      `yaml:"server"`
	Log            LogConfig         `yaml:"log"`
}

// SessionConfig configures the idle timeout.
type SessionConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"gt=0"`
	WarningSeconds int `yaml:"warning_seconds" validate:"gte=0,ltfield=TimeoutSeconds"`
}

// CredentialsConfig selects where the cached login is kept.
type CredentialsConfig struct {
	Driver string   `yaml:"driver" validate:"oneof=memory file sqlite"`
	Path   string   `yaml:"path" validate:"required_unless=Driver memory"`
	Key    string   `yaml:"key" validate:"required"`
	MaxAge Duration `yaml:"max_age" validate:"gt=0"`
}

// BackendConfig selects how credentials are verified.
type BackendConfig struct {
	Kind    string   `yaml:"kind" validate:"oneof=http local"`
	URL     string   `yaml:"url" validate:"required_if=Kind http,omitempty,url"`
	Timeout Duration `yaml:"timeout" validate:"gte=0"`
}

// AuthConfig holds the admin rules.
type AuthConfig struct {
	AdminRole       string `yaml:"admin_role" validate:"required"`
	TestMode        bool   `yaml:"test_mode"`
	AdminTestDomain string `yaml:"admin_test_domain"`
}

// ServerConfig configures the reference backend.
type ServerConfig struct {
	Addr           string   `yaml:"addr" validate:"required"`
	DatabaseDriver string   `yaml:"database_driver" validate:"oneof=sqlite postgres"`
	DatabaseDSN    string   `yaml:"database_dsn"`
	JWTSecret      string   `yaml:"jwt_secret"`
	TokenLifetime  Duration `yaml:"token_lifetime" validate:"gt=0"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	LoginRate      float64  `yaml:"login_rate" validate:"gte=0"` // requests per second per client
	LoginBurst     int      `yaml:"login_burst" validate:"gte=0"`
}

// LogConfig configures slog.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Duration is a time.Duration read from strings such as "8h" or "90s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Session: SessionConfig{
			TimeoutSeconds: int(session.DefaultLength / time.Second),
			WarningSeconds: int(session.DefaultWarningThreshold / time.Second),
		},
		Credentials: CredentialsConfig{
			Driver: "memory",
			Key:    credentials.DefaultKey,
			MaxAge: Duration(credentials.DefaultMaxAge),
		},
		Backend: BackendConfig{
			Kind:    "local",
			Timeout: Duration(15 * time.Second),
		},
		Auth: AuthConfig{
			AdminRole:       "admin",
			AdminTestDomain: "test.com",
		},
		PasswordPolicy: policy.Default(),
		Server: ServerConfig{
			Addr:           ":8000",
			DatabaseDriver: "sqlite",
			DatabaseDSN:    "sarao.db",
			TokenLifetime:  Duration(8 * time.Hour),
			AllowedOrigins: []string{"http://localhost:3000"},
			LoginRate:      1,
			LoginBurst:     5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path (when non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from the environment variables listed above.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	if v, ok := lookup(EnvSessionTimeout); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvSessionTimeout, err))
		} else {
			c.Session.TimeoutSeconds = n
		}
	}
	if v, ok := lookup(EnvSessionWarning); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvSessionWarning, err))
		} else {
			c.Session.WarningSeconds = n
		}
	}
	if v, ok := lookup(EnvBackendURL); ok && v != "" {
		c.Backend.Kind = "http"
		c.Backend.URL = v
	}
	if v, ok := lookup(EnvTestMode); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvTestMode, err))
		} else {
			c.Auth.TestMode = b
		}
	}
	if v, ok := lookup(EnvCredentialsPath); ok && v != "" {
		c.Credentials.Path = v
		if c.Credentials.Driver == "memory" {
			c.Credentials.Driver = "file"
		}
	}
	if v, ok := lookup(EnvDatabaseDSN); ok && v != "" {
		c.Server.DatabaseDSN = v
	}
	if v, ok := lookup(EnvJWTSecret); ok && v != "" {
		c.Server.JWTSecret = v
	}

	return errors.Join(errs...)
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %s", formatValidationErrors(err))
	}
	return nil
}

// MonitorConfig converts the session settings for session.NewMonitor.
func (s SessionConfig) MonitorConfig() session.Config {
	return session.Config{
		Length:           time.Duration(s.TimeoutSeconds) * time.Second,
		WarningThreshold: time.Duration(s.WarningSeconds) * time.Second,
	}
}

func formatValidationErrors(err error) string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}

	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		field := strings.TrimPrefix(e.Namespace(), "Config.")
		if e.Param() != "" {
			messages = append(messages, fmt.Sprintf("%s failed %s=%s", field, e.Tag(), e.Param()))
		} else {
			messages = append(messages, fmt.Sprintf("%s failed %s", field, e.Tag()))
		}
	}
	return strings.Join(messages, "; ")
}
