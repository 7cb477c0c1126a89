// Package api is a small bearer-authenticated client for the Sarao resource
// endpoints. The bearer header comes from an oauth2.TokenSource, normally
// the auth state store.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/oauth2"
)

// ErrUnauthorized is returned when the API rejects the bearer token.
var ErrUnauthorized = errors.New("unauthorized")

const maxBodySize = 8 << 20

// StatusError is a non-success response other than 401.
type StatusError struct {
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api error %d: %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Detail)
}

// Config configures a Client.
type Config struct {
	BaseURL string             `validate:"required,url"`
	Source  oauth2.TokenSource `validate:"required"`

	// Base is the underlying transport. Defaults to http.DefaultTransport.
	Base    http.RoundTripper `validate:"-"`
	Timeout time.Duration     `validate:"gte=0"`

	// OnUnauthorized runs after any 401 response, typically to log out.
	OnUnauthorized func() `validate:"-"`
}

// Client calls the resource endpoints.
type Client struct {
	baseURL        string
	http           *http.Client
	onUnauthorized func()
}

// NewClient creates a Client.
func NewClient(cfg Config) (*Client, error) {
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid api config: %w", err)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Transport: &oauth2.Transport{Source: cfg.Source, Base: cfg.Base},
			Timeout:   timeout,
		},
		onUnauthorized: cfg.OnUnauthorized,
	}, nil
}

// Lesson is a captured lesson learned.
type Lesson struct {
	ID               string     `json:"lesson_id"`
	ProjectName      string     `json:"project_name"`
	DateCaptured     string     `json:"date_captured,omitempty"`
	CategoryMain     string     `json:"category_main"`
	CategorySub      string     `json:"category_sub"`
	Description      string     `json:"description"`
	RootCause        string     `json:"root_cause"`
	Outcomes         string     `json:"outcomes"`
	Impact           string     `json:"impact"`
	SuggestedActions string     `json:"suggested_actions,omitempty"`
	Tags             []string   `json:"tags"`
	Status           string     `json:"status"`
	SubmittedBy      string     `json:"submitted_by"`
	ApprovedBy       *string    `json:"approved_by,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

// Project groups lessons.
type Project struct {
	ID          string    `json:"project_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	AdminID     string    `json:"admin_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// ReportSummary is the dashboard summary. Its layout belongs to the
// reporting pages, so it is left undecoded per key.
type ReportSummary map[string]json.RawMessage

// Lessons lists all lessons.
func (c *Client) Lessons(ctx context.Context) ([]Lesson, error) {
	var lessons []Lesson
	if err := c.get(ctx, "/lessons", &lessons); err != nil {
		return nil, err
	}
	return lessons, nil
}

// Lesson fetches one lesson by id.
func (c *Client) Lesson(ctx context.Context, id string) (*Lesson, error) {
	var lesson Lesson
	if err := c.get(ctx, "/lessons/"+url.PathEscape(id), &lesson); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// Projects lists all projects.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := c.get(ctx, "/projects", &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// ReportSummary fetches the dashboard summary.
func (c *Client) ReportSummary(ctx context.Context) (ReportSummary, error) {
	var summary ReportSummary
	if err := c.get(ctx, "/reports/summary", &summary); err != nil {
		return nil, err
	}
	return summary, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", path, err)
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxBodySize)
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		slog.Info("API rejected bearer token", "path", path)
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &StatusError{Status: resp.StatusCode, Detail: readDetail(body)}
	}

	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func readDetail(r io.Reader) string {
	var payload struct {
		Detail any    `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return ""
	}
	if s, ok := payload.Detail.(string); ok && s != "" {
		return s
	}
	return payload.Error
}
