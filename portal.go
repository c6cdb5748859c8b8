// Package portal is the Go client for the HR portal's realtime layer:
// one event socket per user carrying chat, presence, group membership
// and notifications, plus the few HTTP calls the layer depends on.
//
// Example:
//
//	client := portal.NewClient(token, portal.WithBaseURL("https://hr.example.com"))
//	p, err := portal.NewProvider("u1", portal.WithClient(client))
//	if err != nil { ... }
//	p.Start(ctx)
//	defer p.Close()
//
//	if err := p.WaitConnected(ctx); err == nil {
//		p.Conversations().FetchDirect(ctx, "u1", "u2")
//		p.Conversations().SendDirect(ctx, portal.Message{
//			Sender:    portal.Sender{ID: "u1"},
//			Recipient: "u2",
//			Content:   "hello",
//		})
//	}
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hrportal/portal/sdk/golang/internal/clock"
)

const (
	DefaultBaseURL    = "http://localhost:5000"
	DefaultTimeout    = 30 * time.Second
	DefaultProfileTTL = 5 * time.Minute

	realtimePath = "/realtime"
)

// ============================================================================
// Client
// ============================================================================

// Client talks to the portal backend over HTTP and builds realtime
// sockets bound to the same credentials.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	clock      clock.Clock
	profileTTL time.Duration

	profilesOnce sync.Once
	profiles     *ProfileClient
}

type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// WithClientLogger sets the logger for HTTP and socket diagnostics.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithProfileTTL sets how long a looked-up profile is reused.
func WithProfileTTL(ttl time.Duration) ClientOption {
	return func(c *Client) { c.profileTTL = ttl }
}

func withClientClock(clk clock.Clock) ClientOption {
	return func(c *Client) { c.clock = clk }
}

// NewClient creates a client. token is the portal session token; pass
// "" for unauthenticated use against a development server.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger:     slog.New(slog.DiscardHandler),
		clock:      clock.Real(),
		profileTTL: DefaultProfileTTL,
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the current credential.
func (c *Client) Token() string { return c.token }

// BaseURL returns the HTTP base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Profiles returns the cached profile lookup.
func (c *Client) Profiles() *ProfileClient {
	c.profilesOnce.Do(func() {
		c.profiles = &ProfileClient{client: c, entries: make(map[string]profileEntry)}
	})
	return c.profiles
}

// ============================================================================
// Realtime
// ============================================================================

// WSURL returns the realtime endpoint derived from the base URL.
func (c *Client) WSURL() string {
	base := strings.Replace(c.baseURL, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return base + realtimePath
}

// NewSocket returns an unconnected socket to the realtime endpoint
// carrying the client's credentials. A nil codec means JSON.
func (c *Client) NewSocket(codec Codec) *WSSocket {
	// The socket outlives any single request, so the dial must not
	// inherit the client's overall timeout.
	hc := *c.httpClient
	hc.Timeout = 0
	return NewWSSocket(&WSConfig{
		URL:        c.WSURL(),
		Token:      c.token,
		Codec:      codec,
		HTTPClient: &hc,
		Logger:     c.logger,
	})
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body any, query map[string]string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.AddCookie(&http.Cookie{Name: "token", Value: c.token})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		c.logger.Debug("portal request failed", "method", method, "path", path, "status", resp.StatusCode)
		return nil, newHTTPError(resp.StatusCode, data)
	}
	return data, nil
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// ============================================================================
// Profiles
// ============================================================================

// ProfileClient looks up user profiles over HTTP. Results are reused
// for the client's profile TTL and concurrent lookups of one user share
// a single request.
type ProfileClient struct {
	client *Client
	group  singleflight.Group

	mu      sync.Mutex
	entries map[string]profileEntry
}

type profileEntry struct {
	profile Profile
	expires time.Time
}

type wireProfile struct {
	ID     any    `json:"_id,omitempty"`
	AltID  any    `json:"id,omitempty"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar"`
}

// profileResponse accepts a bare user or one wrapped as {user: ...}
// or {data: ...}.
type profileResponse struct {
	wireProfile
	User *wireProfile `json:"user"`
	Data *wireProfile `json:"data"`
}

// Profile returns userID's profile.
func (pc *ProfileClient) Profile(ctx context.Context, userID string) (Profile, error) {
	if userID == "" {
		return Profile{}, fmt.Errorf("profile lookup: empty user id")
	}
	now := pc.client.clock.Now()
	pc.mu.Lock()
	entry, ok := pc.entries[userID]
	pc.mu.Unlock()
	if ok && now.Before(entry.expires) {
		return entry.profile, nil
	}

	v, err, _ := pc.group.Do(userID, func() (any, error) {
		return pc.fetch(ctx, userID)
	})
	if err != nil {
		return Profile{}, err
	}
	profile := v.(Profile)

	pc.mu.Lock()
	pc.entries[userID] = profileEntry{profile: profile, expires: now.Add(pc.client.profileTTL)}
	pc.mu.Unlock()
	return profile, nil
}

// Forget drops any cached profile for userID.
func (pc *ProfileClient) Forget(userID string) {
	pc.mu.Lock()
	delete(pc.entries, userID)
	pc.mu.Unlock()
}

func (pc *ProfileClient) fetch(ctx context.Context, userID string) (Profile, error) {
	data, err := pc.client.doRequest(ctx, http.MethodGet, "/api/users/"+url.PathEscape(userID), nil, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("profile lookup %s: %w", userID, err)
	}
	resp, err := decodeJSON[profileResponse](data)
	if err != nil {
		return Profile{}, fmt.Errorf("profile lookup %s: %w", userID, err)
	}

	w := resp.wireProfile
	switch {
	case resp.User != nil:
		w = *resp.User
	case resp.Data != nil:
		w = *resp.Data
	}
	p := Profile{ID: idString(w.ID), Name: w.Name, Email: w.Email, Avatar: w.Avatar}
	if p.ID == "" {
		p.ID = idString(w.AltID)
	}
	if p.ID == "" {
		p.ID = userID
	}
	return p, nil
}
