// Package lockclient drives the client side of the resource-lock
// protocol: acquisition, heartbeat renewal, foreground recovery and
// best-effort release for a view that is editing a locked record.
package lockclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNotHeld is returned by Release when the server reports the lock is
// not held by this client.
var ErrNotHeld = errors.New("lock not held by this client")

// beaconTimeout bounds the teardown release request. The caller is
// about to terminate; a hung request must not delay that.
const beaconTimeout = 2 * time.Second

// Client is an HTTP client for the lock service API.
type Client struct {
	baseURL    string // e.g. "http://localhost:8080/api/v1"
	holderID   string
	httpClient *http.Client
	logger     zerolog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a lock API client acting as the given holder.
func NewClient(baseURL, holderID string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		holderID:   holderID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HolderID returns the principal id this client acts as.
func (c *Client) HolderID() string {
	return c.holderID
}

// SessionHolderID derives a per-session holder id from a user id. Two
// sessions of the same user get distinct ids, so a second tab contends
// for the lock like any other editor instead of silently renewing it.
func SessionHolderID(userID string) string {
	return userID + ":" + uuid.NewString()
}

// AcquireOutcome is the result of an acquire attempt.
type AcquireOutcome struct {
	// Acquired is true when this client now holds the lock.
	Acquired bool

	// ExpiresAt is the lock expiry: ours when acquired, the blocking
	// holder's when denied.
	ExpiresAt time.Time

	// HolderName is the blocking holder's display name when denied.
	HolderName string
}

// ServiceConfig is the server's advertised lock tunables. Callers use
// it to pick a TTL inside the server's bounds and a renewal cadence
// matching the advertised fraction.
type ServiceConfig struct {
	DefaultTTLMs      int64    `json:"defaultTtlMs"`
	MinTTLMs          int64    `json:"minTtlMs"`
	MaxTTLMs          int64    `json:"maxTtlMs"`
	HeartbeatFraction int      `json:"heartbeatFraction"`
	ResourceTypes     []string `json:"resourceTypes"`
}

// CheckOutcome is the result of a status check.
type CheckOutcome struct {
	Locked     bool       `json:"locked"`
	IsOwnLock  bool       `json:"isOwnLock"`
	HolderName string     `json:"holderName"`
	ExpiresAt  *time.Time `json:"expiresAt"`
}

type acquireRequest struct {
	TTLMs int64 `json:"ttlMs"`
}

type lockResponse struct {
	ExpiresAt time.Time `json:"expiresAt"`
}

type deniedResponse struct {
	HolderName string    `json:"holderName"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Acquire attempts to take or renew the lock on the given resource.
// A 409 from the server is not an error; it is reported through
// AcquireOutcome so callers can render who holds the lock.
func (c *Client) Acquire(ctx context.Context, resourceType, resourceID string, ttl time.Duration) (*AcquireOutcome, error) {
	body, err := json.Marshal(acquireRequest{TTLMs: ttl.Milliseconds()})
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.lockURL(resourceType, resourceID), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("acquire request failed: %w", err)
	}
	defer drainAndClose(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		var granted lockResponse
		if err := json.NewDecoder(resp.Body).Decode(&granted); err != nil {
			return nil, fmt.Errorf("failed to decode acquire response: %w", err)
		}
		return &AcquireOutcome{Acquired: true, ExpiresAt: granted.ExpiresAt}, nil

	case http.StatusConflict:
		var denied deniedResponse
		if err := json.NewDecoder(resp.Body).Decode(&denied); err != nil {
			return nil, fmt.Errorf("failed to decode denial response: %w", err)
		}
		return &AcquireOutcome{
			Acquired:   false,
			ExpiresAt:  denied.ExpiresAt,
			HolderName: denied.HolderName,
		}, nil

	default:
		return nil, fmt.Errorf("acquire failed with status %d", resp.StatusCode)
	}
}

// Release gives up the lock on the given resource.
func (c *Client) Release(ctx context.Context, resourceType, resourceID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, c.lockURL(resourceType, resourceID), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("release request failed: %w", err)
	}
	defer drainAndClose(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusBadRequest:
		return ErrNotHeld
	default:
		return fmt.Errorf("release failed with status %d", resp.StatusCode)
	}
}

// Config fetches the server's advertised lock tunables.
func (c *Client) Config(ctx context.Context) (*ServiceConfig, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL+"/config", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("config request failed: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("config failed with status %d", resp.StatusCode)
	}

	var cfg ServiceConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config response: %w", err)
	}
	return &cfg, nil
}

// Check reports the lock status of the given resource.
func (c *Client) Check(ctx context.Context, resourceType, resourceID string) (*CheckOutcome, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.lockURL(resourceType, resourceID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("check request failed: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("check failed with status %d", resp.StatusCode)
	}

	var outcome CheckOutcome
	if err := json.NewDecoder(resp.Body).Decode(&outcome); err != nil {
		return nil, fmt.Errorf("failed to decode check response: %w", err)
	}
	return &outcome, nil
}

// ReleaseBeacon delivers a release during caller teardown. It uses a
// context detached from the caller's so an imminent cancellation cannot
// abort it mid-flight, bounds itself with a short timeout, and swallows
// every failure: if delivery is lost the lock expires at TTL, which is
// not a correctness violation.
func (c *Client) ReleaseBeacon(resourceType, resourceID string) {
	ctx, cancel := context.WithTimeout(context.Background(), beaconTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodPost, c.lockURL(resourceType, resourceID)+"/release", nil)
	if err != nil {
		return
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Msg("beacon release not delivered")
		return
	}
	drainAndClose(resp.Body)
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-User-ID", c.holderID)
	return req, nil
}

func (c *Client) lockURL(resourceType, resourceID string) string {
	return c.baseURL + "/locks/" + url.PathEscape(resourceType) + "/" + url.PathEscape(resourceID)
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
