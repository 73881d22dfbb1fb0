// Package fema provides the case-status lookup client for disaster-relief applications.
package fema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BTreeMap/ReliefPipe/internal/metrics"
)

// Default client settings.
const (
	DefaultBaseURL = "https://api.fema.gov"
	DefaultTimeout = 15 * time.Second
)

var (
	ErrNotFound      = errors.New("application not found")
	ErrEmptyStatus   = errors.New("status service returned an empty status")
	ErrMissingAPIKey = errors.New("FEMA API key must be provided")
)

// Opts holds configuration options for the status client.
type Opts struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Cache      Cache
}

// Option defines a configuration option for the status client.
type Option func(*Opts)

// WithAPIKey sets the bearer token sent to the status service.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL overrides the status service base URL.
func WithBaseURL(base string) Option {
	return func(o *Opts) { o.BaseURL = base }
}

// WithHTTPClient sets the HTTP client used for lookups.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// WithCache enables caching of successful lookups.
func WithCache(c Cache) Option {
	return func(o *Opts) { o.Cache = c }
}

// Client queries the external case-status service.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	cache   Cache
}

// statusResponse is the JSON body returned by the status endpoint.
type statusResponse struct {
	Status    string `json:"status"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// NewClient creates a status client. The API key falls back to FEMA_API_KEY
// and the base URL to FEMA_BASE_URL, then DefaultBaseURL.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("FEMA_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("FEMA_BASE_URL")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	slog.Debug("FEMA status client config loaded",
		"APIKey_set", cfg.APIKey != "",
		"BaseURL", cfg.BaseURL,
		"Cache_set", cfg.Cache != nil)

	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    cfg.HTTPClient,
		cache:   cfg.Cache,
	}, nil
}

// CheckStatus returns a user-facing status line for applicationID. It never
// fails: lookup errors are logged and turned into an apology message.
func (c *Client) CheckStatus(ctx context.Context, applicationID string) string {
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return "Please provide your application ID to check its status."
	}

	status, err := c.Lookup(ctx, applicationID)
	switch {
	case err == nil:
		return fmt.Sprintf("Application %s status: %s", applicationID, status)
	case errors.Is(err, ErrNotFound):
		return fmt.Sprintf("Application %s was not found.", applicationID)
	default:
		slog.Error("Client.CheckStatus: status lookup failed", "applicationID", applicationID, "error", err)
		return fmt.Sprintf("Unable to retrieve status for application %s right now. Please try again later.", applicationID)
	}
}

// Lookup returns the raw status value for applicationID, consulting the cache first.
func (c *Client) Lookup(ctx context.Context, applicationID string) (string, error) {
	if c.cache != nil {
		if status, ok, err := c.cache.Get(ctx, applicationID); err != nil {
			slog.Warn("Client.Lookup: cache read failed, bypassing", "applicationID", applicationID, "error", err)
		} else if ok {
			slog.Debug("Client.Lookup: cache hit", "applicationID", applicationID)
			return status, nil
		}
	}

	start := time.Now()
	status, err := c.fetch(ctx, applicationID)
	if !errors.Is(err, ErrNotFound) {
		metrics.ObserveProvider(metrics.ProviderStatus, start, err)
	}
	if err != nil {
		return "", err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, applicationID, status); err != nil {
			slog.Warn("Client.Lookup: cache write failed", "applicationID", applicationID, "error", err)
		}
	}
	return status, nil
}

func (c *Client) fetch(ctx context.Context, applicationID string) (string, error) {
	endpoint := fmt.Sprintf("%s/applications/%s/status", c.baseURL, url.PathEscape(applicationID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("status service returned %d", resp.StatusCode)
	}

	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode status response: %w", err)
	}
	if strings.TrimSpace(body.Status) == "" {
		return "", ErrEmptyStatus
	}
	slog.Debug("Client.fetch: status retrieved", "applicationID", applicationID, "status", body.Status, "updated_at", body.UpdatedAt)
	return body.Status, nil
}
