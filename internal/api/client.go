package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tunlink/internal/core/types"
)

// Client talks to the remote session API. All four endpoints are treated
// as idempotent from the client's perspective: repeated end calls on an
// already-ended session are not fatal, and a missing current session is a
// normal answer rather than an error.
type Client struct {
	client    *http.Client
	baseURL   string
	userAgent string
}

// ClientConfig represents session API client configuration
type ClientConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:   "http://localhost:8088",
		UserAgent: "Tunlink/1.0",
		Timeout:   10 * time.Second,
	}
}

// NewClient creates a new session API client
func NewClient(config ClientConfig) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &Client{
		client: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:   config.BaseURL,
		userAgent: config.UserAgent,
	}
}

// StartRequest is the body of POST /sessions/start.
type StartRequest struct {
	ServerID   int64  `json:"serverId"`
	Protocol   string `json:"protocol"`
	Encryption string `json:"encryption"`
}

// EndRequest is the body of POST /sessions/end. Both hints are optional.
type EndRequest struct {
	Force  bool `json:"force,omitempty"`
	Abrupt bool `json:"abrupt,omitempty"`
}

// StartSession starts a new session and returns the authoritative record.
func (c *Client) StartSession(ctx context.Context, req StartRequest) (*types.Session, error) {
	var session types.Session
	if err := c.do(ctx, http.MethodPost, "/sessions/start", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// EndSession ends the current session. Ending a session that no longer
// exists server-side is treated as success.
func (c *Client) EndSession(ctx context.Context, req EndRequest) error {
	err := c.do(ctx, http.MethodPost, "/sessions/end", req, nil)
	if httpErr, ok := err.(*HTTPError); ok {
		switch httpErr.StatusCode {
		case http.StatusNotFound, http.StatusConflict, http.StatusGone:
			return nil
		}
	}
	return err
}

// CurrentSession fetches the server's view of the active session.
// Returns (nil, nil) when the server reports none.
func (c *Client) CurrentSession(ctx context.Context) (*types.Session, error) {
	var session types.Session
	err := c.do(ctx, http.MethodGet, "/sessions/current", nil, &session)
	if err != nil {
		if httpErr, ok := err.(*HTTPError); ok && httpErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	// Some deployments answer 200 with an empty object instead of 404.
	if session.ID == 0 {
		return nil, nil
	}
	return &session, nil
}

// ListServers fetches the catalog of available connection endpoints.
func (c *Client) ListServers(ctx context.Context) ([]types.ServerDescriptor, error) {
	var servers []types.ServerDescriptor
	if err := c.do(ctx, http.MethodGet, "/servers", nil, &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

// do performs a single JSON request against the API.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        c.baseURL + path,
		}
	}

	if out == nil {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// HTTPError represents an HTTP error
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d %s for %s", e.StatusCode, e.Status, e.URL)
}
