// Package remote is the editor's view of the document store service: an
// HTTP client that implements store.Collection for the signed-in owner.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lemesvini/codeLog/internal/files"
	"github.com/lemesvini/codeLog/internal/logging"
	"github.com/lemesvini/codeLog/internal/protocol"
	"github.com/lemesvini/codeLog/internal/retry"
	"github.com/lemesvini/codeLog/internal/store"
)

// StatusError is a non-2xx response from the server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Config holds client configuration.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RetryConfig retry.Config
}

// Client talks to the document store service. Reads are retried with
// backoff; writes are sent once.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config

	mu       sync.RWMutex
	token    string
	owner    string
	username string
}

// New creates a client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		retryConfig: cfg.RetryConfig,
	}
}

// Login exchanges credentials for a token and remembers the owner.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var resp protocol.LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/token",
		protocol.LoginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c.SetAuth(resp.Token, resp.User.ID, resp.User.Username)
	logging.Info("logged in", zap.String("username", resp.User.Username))
	return nil
}

// SetAuth sets the bearer token and the owner it acts for.
func (c *Client) SetAuth(token, owner, username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.owner = owner
	c.username = username
}

// Logout forgets the token.
func (c *Client) Logout() {
	c.SetAuth("", "", "")
}

// Username returns the signed-in user's name.
func (c *Client) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

// CurrentOwner returns the signed-in owner, if any.
func (c *Client) CurrentOwner() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.owner, c.owner != "" && c.token != ""
}

// Files returns the collection of the signed-in owner. The server scopes
// every request by the token, so owner is only checked against it.
func (c *Client) Files(owner string) store.Collection {
	if cur, _ := c.CurrentOwner(); cur != owner {
		logging.Warn("collection requested for a different owner", zap.String("owner", owner))
	}
	return &collection{c: c}
}

// Ping checks that the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

type collection struct {
	c *Client
}

func (col *collection) Insert(ctx context.Context, r files.Record) (string, error) {
	var resp protocol.InsertResponse
	if err := col.c.do(ctx, http.MethodPost, "/api/v1/files", r, &resp); err != nil {
		return "", fmt.Errorf("insert: %w", err)
	}
	return resp.ID, nil
}

func (col *collection) FetchAll(ctx context.Context) ([]files.Record, error) {
	return col.fetch(ctx, "/api/v1/files")
}

func (col *collection) FetchWhere(ctx context.Context, field, value string) ([]files.Record, error) {
	if !store.ValidField(field) {
		return nil, store.ErrUnsupportedField
	}
	q := url.Values{"field": {field}, "value": {value}}
	return col.fetch(ctx, "/api/v1/files?"+q.Encode())
}

func (col *collection) fetch(ctx context.Context, path string) ([]files.Record, error) {
	resp, err := retry.DoWithResult(ctx, col.c.retryConfig, func() (protocol.FilesResponse, error) {
		var out protocol.FilesResponse
		err := col.c.do(ctx, http.MethodGet, path, nil, &out)
		return out, err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch files: %w", err)
	}
	return resp.Files, nil
}

func (col *collection) UpdateByID(ctx context.Context, id string, p files.Patch) error {
	if err := col.c.do(ctx, http.MethodPatch, "/api/v1/files/"+url.PathEscape(id), p, nil); err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	return nil
}

func (col *collection) DeleteByID(ctx context.Context, id string) error {
	if err := col.c.do(ctx, http.MethodDelete, "/api/v1/files/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// do sends one request. Network failures and 5xx responses come back
// marked retryable; 404 wraps store.ErrNotFound.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.Retryable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var er protocol.ErrorResponse
		json.NewDecoder(resp.Body).Decode(&er)
		se := &StatusError{Code: resp.StatusCode, Message: er.Error}
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %s", store.ErrNotFound, se.Message)
		case resp.StatusCode >= 500:
			return retry.Retryable(se)
		default:
			return se
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// IsUnauthorized reports whether err is a 401 from the server.
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusUnauthorized
}
