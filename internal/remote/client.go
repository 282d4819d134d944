// Package remote is the thin HTTP client toward the POS server. It only
// knows two endpoints: a liveness ping and the stock-quantities fetch.
// The credential it forwards is pushed in by the collaborator and
// refreshed by them; this client only inspects it for expiry.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"posbridge/internal/domain"
)

const (
	// ProbeTimeout caps the liveness probe round trip.
	ProbeTimeout = 3 * time.Second
	// FetchTimeout caps the stock-quantities round trip.
	FetchTimeout = 5 * time.Second
)

var (
	ErrNoCredential      = errors.New("no credential token set")
	ErrCredentialExpired = errors.New("credential token expired")
)

type Client struct {
	mu      sync.RWMutex
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
}

// SetToken replaces the forwarded credential. Tokens that parse as JWTs
// with an exp claim already in the past are rejected so a stale push is
// caught at the boundary instead of as a 401 mid-sync.
func (c *Client) SetToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrNoCredential
	}
	if expired, expiry := tokenExpired(token, time.Now()); expired {
		return fmt.Errorf("%w (expired %s)", ErrCredentialExpired, expiry.Format(time.RFC3339))
	}
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return nil
}

// tokenExpired inspects a JWT's exp claim without verifying the
// signature; verification is the server's job, we only want to avoid
// sending something known-dead. Opaque non-JWT tokens pass through.
func tokenExpired(token string, now time.Time) (bool, time.Time) {
	parser := jwtlib.NewParser()
	claims := jwtlib.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false, time.Time{}
	}
	expiry, err := claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return false, time.Time{}
	}
	return expiry.Before(now), expiry.Time
}

// Ping reports whether the server answered the liveness endpoint within
// ProbeTimeout. Any transport failure or non-2xx status counts as down.
func (c *Client) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/api/method/ping", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// StockQuantities fetches current quantities for the given warehouse and
// item codes. The response may arrive bare or wrapped in a "message"
// envelope; both are accepted.
func (c *Client) StockQuantities(ctx context.Context, warehouse string, itemCodes []string) ([]domain.StockQuantity, error) {
	if warehouse == "" || len(itemCodes) == 0 {
		return nil, nil
	}
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token == "" {
		return nil, ErrNoCredential
	}

	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	codes, err := json.Marshal(itemCodes)
	if err != nil {
		return nil, fmt.Errorf("encode item codes: %w", err)
	}
	form := url.Values{}
	form.Set("item_codes", string(codes))
	form.Set("warehouse", warehouse)

	req, err := c.newRequest(ctx, http.MethodPost,
		"/api/method/pos.get_stock_quantities", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stock quantities request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read stock quantities response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("stock quantities: server returned %d", resp.StatusCode)
	}

	return decodeStockQuantities(body)
}

func decodeStockQuantities(body []byte) ([]domain.StockQuantity, error) {
	var rows []domain.StockQuantity
	if err := json.Unmarshal(body, &rows); err == nil {
		return rows, nil
	}

	var wrapped struct {
		Message []domain.StockQuantity `json:"message"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode stock quantities: %w", err)
	}
	return wrapped.Message, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()
	return req, nil
}

// BaseURL is exposed for logging at startup.
func (c *Client) BaseURL() string { return c.baseURL }
