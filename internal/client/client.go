// Package client is a Go client for the auth API that keeps the token
// lifecycle out of the caller's way: it attaches the current access
// token to every request and, on a 401, refreshes once and retries.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrSessionExpired is returned when a request got a 401 and the
// refresh attempt failed; local tokens are cleared and the caller
// should send the user back through login.
var ErrSessionExpired = errors.New("session expired")

type Client struct {
	baseURL    string
	httpClient *http.Client

	mu           sync.RWMutex
	accessToken  string
	refreshToken string

	// Deduplicates concurrent refreshes: when several in-flight
	// requests hit 401 at once, one rotation runs and the rest reuse
	// its result instead of racing on the same stale refresh token.
	refreshGroup singleflight.Group
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL + "/api/auth",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Response types matching the API

type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Role     string `json:"role"`
}

type AuthResponse struct {
	User         User   `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type apiError struct {
	Error string `json:"error"`
}

// SetTokens installs a token pair, e.g. after an out-of-band login.
func (c *Client) SetTokens(access, refresh string) {
	c.mu.Lock()
	c.accessToken = access
	c.refreshToken = refresh
	c.mu.Unlock()
}

// Tokens returns the currently held token pair.
func (c *Client) Tokens() (access, refresh string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken, c.refreshToken
}

func (c *Client) clearTokens() {
	c.mu.Lock()
	c.accessToken = ""
	c.refreshToken = ""
	c.mu.Unlock()
}

func (c *Client) Register(ctx context.Context, email, password, fullName string) (*AuthResponse, error) {
	body := map[string]string{"email": email, "password": password, "full_name": fullName}
	return c.authenticate(ctx, "/register", body, http.StatusCreated)
}

func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	body := map[string]string{"email": email, "password": password}
	return c.authenticate(ctx, "/login", body, http.StatusOK)
}

func (c *Client) authenticate(ctx context.Context, path string, body interface{}, wantStatus int) (*AuthResponse, error) {
	resp, err := c.send(ctx, http.MethodPost, path, body, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return nil, decodeAPIError(resp)
	}

	var result AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.SetTokens(result.AccessToken, result.RefreshToken)
	return &result, nil
}

// Me fetches the authenticated user's record, refreshing once if the
// access token has expired.
func (c *Client) Me(ctx context.Context) (*User, error) {
	resp, err := c.do(ctx, http.MethodGet, "/me", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &user, nil
}

// Logout revokes the held refresh token server-side and clears the
// local session. The local session is cleared even when the server
// call fails; a revoke failure never blocks logout.
func (c *Client) Logout(ctx context.Context) error {
	_, refresh := c.Tokens()
	defer c.clearTokens()

	if refresh == "" {
		return nil
	}

	resp, err := c.send(ctx, http.MethodPost, "/logout", map[string]string{"refreshToken": refresh}, "")
	if err != nil {
		return nil
	}
	resp.Body.Close()
	return nil
}

// do sends an authenticated request. On 401 it performs exactly one
// refresh-and-retry; a second 401 is surfaced as-is so persistent
// failures never loop.
func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	access, _ := c.Tokens()

	resp, err := c.send(ctx, method, path, body, access)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if err := c.refresh(ctx); err != nil {
		c.clearTokens()
		return nil, ErrSessionExpired
	}

	access, _ = c.Tokens()
	return c.send(ctx, method, path, body, access)
}

// refresh rotates the held refresh token. Concurrent callers share a
// single rotation via singleflight.
func (c *Client) refresh(ctx context.Context) error {
	_, err, _ := c.refreshGroup.Do("refresh", func() (interface{}, error) {
		_, refresh := c.Tokens()
		if refresh == "" {
			return nil, ErrSessionExpired
		}

		resp, err := c.send(ctx, http.MethodPost, "/refresh", map[string]string{"refreshToken": refresh}, "")
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, decodeAPIError(resp)
		}

		var pair TokenResponse
		if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}

		c.SetTokens(pair.AccessToken, pair.RefreshToken)
		return nil, nil
	})
	return err
}

func (c *Client) send(ctx context.Context, method, path string, body interface{}, accessToken string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	return c.httpClient.Do(req)
}

func decodeAPIError(resp *http.Response) error {
	var apiErr apiError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("request failed (status %d): %s", resp.StatusCode, apiErr.Error)
	}
	return fmt.Errorf("request failed (status %d)", resp.StatusCode)
}
