// Package client is the Go client for the lightning hub API. It handles
// authentication (refresh tokens on disk, short-lived access tokens in
// memory) and implements the directory capability the endpoint resolver
// consumes.
package client

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Client is a hub API client.
type Client struct {
	baseURL         string
	httpClient      *http.Client
	credentialsPath string

	mu          sync.RWMutex // Protects accessToken
	accessToken string
}

// Option represents a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithCredentialsPath sets a custom path for storing session credentials.
func WithCredentialsPath(path string) Option {
	return func(c *Client) {
		c.credentialsPath = path
	}
}

// New creates a hub API client for the given base URL.
func New(baseURL string, options ...Option) *Client {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	c := &Client{
		baseURL:         baseURL,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		credentialsPath: filepath.Join(homeDir, ".lightning", "credentials"),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// BaseURL returns the client's base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) setAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

func (c *Client) getAccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// do performs an HTTP request against the hub, attaching the access token
// when one is held. On a 401 it refreshes the access token once and
// retries.
func (c *Client) do(ctx context.Context, method, path string) (*http.Response, error) {
	resp, err := c.doOnce(ctx, method, path)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		if err := c.RefreshAccessToken(ctx); err != nil {
			return nil, err
		}
		return c.doOnce(ctx, method, path)
	}
	return resp, nil
}

func (c *Client) doOnce(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, NewErrorWithCause(ErrorTypeNetwork, "failed to create request", err)
	}
	if token := c.getAccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, NewNetworkError("request failed", err)
	}
	return resp, nil
}
