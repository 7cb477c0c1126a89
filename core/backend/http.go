// Package backend contains the authentication backends used by the auth
// session: HTTPBackend for a real endpoint and LocalBackend for a fixed,
// in-process user list.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/oauth2"

	"github.com/wispberry-tech/sarao-auth/core"
)

// DefaultTimeout bounds every backend request when the caller's client has
// no timeout of its own.
const DefaultTimeout = 15 * time.Second

// maxBodySize caps how much of a response is read.
const maxBodySize = 1 << 20

// HTTPConfig configures an HTTPBackend.
type HTTPConfig struct {
	BaseURL string       `validate:"required,url"`
	Client  *http.Client `validate:"-"` // defaults to a client with DefaultTimeout
}

// HTTPBackend talks to the auth endpoints of the Sarao API:
//
//	POST {base}/login    {email, password}       -> {user, token}
//	POST {base}/register {email, password, name} -> {user, token}
//	POST {base}/logout   Authorization: Bearer <token>
type HTTPBackend struct {
	baseURL   string
	client    *http.Client
	validator *validator.Validate
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// authResponse is the success body of /login and /register.
type authResponse struct {
	User  *userResponse `json:"user" validate:"required"`
	Token string        `json:"token" validate:"required"`
}

type userResponse struct {
	ID      flexibleID `json:"id" validate:"required"`
	Name    string     `json:"name"`
	Role    string     `json:"role"`
	IsAdmin bool       `json:"isAdmin"`
}

// flexibleID accepts both string and numeric ids.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = flexibleID(n.String())
	return nil
}

// NewHTTPBackend creates an HTTPBackend.
func NewHTTPBackend(cfg HTTPConfig) (*HTTPBackend, error) {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid backend config: %w", err)
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}

	return &HTTPBackend{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		client:    client,
		validator: v,
	}, nil
}

// Login implements core.Backend.
func (b *HTTPBackend) Login(ctx context.Context, email, password string) (*core.AuthResult, error) {
	return b.authenticate(ctx, "/login", loginRequest{Email: email, Password: password})
}

// Register implements core.Backend.
func (b *HTTPBackend) Register(ctx context.Context, email, password, name string) (*core.AuthResult, error) {
	return b.authenticate(ctx, "/register", registerRequest{Email: email, Password: password, Name: name})
}

// Logout implements core.Backend. The bearer header is attached by an
// oauth2 transport wrapping the configured client.
func (b *HTTPBackend) Logout(ctx context.Context, token string) error {
	client := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   b.client.Transport,
		},
		Timeout: b.client.Timeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/logout", nil)
	if err != nil {
		return fmt.Errorf("failed to create logout request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call logout: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readBackendError(resp)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
	return nil
}

func (b *HTTPBackend) authenticate(ctx context.Context, path string, payload any) (*core.AuthResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		backendErr := readBackendError(resp)
		slog.Debug("Backend rejected request", "path", path, "status", resp.StatusCode, "error", backendErr)
		return nil, backendErr
	}

	var parsed authResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
	}
	if err := b.validator.Struct(parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
	}

	return &core.AuthResult{
		User: core.User{
			ID:      string(parsed.User.ID),
			Name:    parsed.User.Name,
			Role:    parsed.User.Role,
			IsAdmin: parsed.User.IsAdmin,
		},
		Token: parsed.Token,
	}, nil
}

// readBackendError builds a *core.BackendError from a non-2xx response. The
// detail comes from a JSON "detail" or "error" field when present.
func readBackendError(resp *http.Response) *core.BackendError {
	backendErr := &core.BackendError{Status: resp.StatusCode}
	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusConflict:
		backendErr.Err = core.ErrInvalidCredentials
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil || len(data) == 0 {
		return backendErr
	}

	var body struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return backendErr
	}
	backendErr.Detail = detailMessage(body.Detail)
	if backendErr.Detail == "" {
		backendErr.Detail = body.Error
	}
	return backendErr
}

// detailMessage reads "detail" as either a string or a list of
// {"msg": "..."} entries.
func detailMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return ""
	}
	messages := make([]string, 0, len(items))
	for _, item := range items {
		if item.Msg != "" {
			messages = append(messages, item.Msg)
		}
	}
	return strings.Join(messages, ", ")
}

var _ core.Backend = (*HTTPBackend)(nil)
