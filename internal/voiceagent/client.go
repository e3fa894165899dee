package voiceagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	DefaultBaseURL = "https://api.elevenlabs.io"

	// DefaultSignedURLPath is the signed-URL endpoint; {agent_id} is replaced
	// with the escaped agent id.
	DefaultSignedURLPath = "/v1/conversation-agents/{agent_id}/signed-url"

	agentIDPlaceholder = "{agent_id}"
	apiKeyHeader       = "xi-api-key"
)

// Config holds the voice-agent provider credentials.
type Config struct {
	BaseURL       string
	SignedURLPath string
	APIKey        string
	AgentID       string
}

// Client talks to the voice-agent provider's REST API.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.SignedURLPath == "" {
		cfg.SignedURLPath = DefaultSignedURLPath
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{cfg: cfg, http: httpClient}
}

var ErrNotConfigured = errors.New("voiceagent: api key and agent id are required")

// APIError is a non-2xx answer from the provider.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("voiceagent: signed url request returned status %d: %s", e.StatusCode, e.Body)
}

type signedURLResponse struct {
	SignedURL string `json:"signed_url"`
}

// GetSignedURL fetches a short-lived conversation URL for the configured agent.
// Nothing is cached and failures are returned to the caller.
func (c *Client) GetSignedURL(ctx context.Context) (string, error) {
	if c.cfg.APIKey == "" || c.cfg.AgentID == "" {
		return "", ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.signedURLEndpoint(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set(apiKeyHeader, c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("voiceagent: signed url request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("voiceagent: signed url read failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var out signedURLResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("voiceagent: signed url decode failed: %w", err)
	}
	if out.SignedURL == "" {
		return "", errors.New("voiceagent: response carried no signed_url")
	}
	return out.SignedURL, nil
}

func (c *Client) signedURLEndpoint() string {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	path := c.cfg.SignedURLPath
	if strings.Contains(path, agentIDPlaceholder) {
		return base + strings.ReplaceAll(path, agentIDPlaceholder, url.PathEscape(c.cfg.AgentID))
	}
	return base + path + "?agent_id=" + url.QueryEscape(c.cfg.AgentID)
}
