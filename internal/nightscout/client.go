// Package nightscout provides a client for interacting with the Nightscout API
package nightscout

import (
	"context"
	"crypto/sha1" //nolint:gosec // Required for Nightscout API secret hashing (legacy API requirement)
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mrcode/nightscout-insights/internal/external"
	"github.com/mrcode/nightscout-insights/internal/models"
)

// DefaultTimeout bounds a single Nightscout request.
const DefaultTimeout = 10 * time.Second

// ErrUnauthorized is returned when Nightscout rejects both the header and the
// query-string token.
var ErrUnauthorized = errors.New("nightscout rejected credentials")

// Client handles communication with the Nightscout API
type Client struct {
	baseURL   string
	apiSecret string
	apiToken  string
	useToken  bool
	http      *external.BaseClient
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseClient replaces the default resilient HTTP client.
func WithBaseClient(bc *external.BaseClient) Option {
	return func(c *Client) { c.http = bc }
}

// WithLogger sets the logger used for normalization diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithClock overrides time.Now for the day-window helpers.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a new Nightscout client
func NewClient(baseURL, apiSecret, apiToken string, useToken bool, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiSecret: apiSecret,
		apiToken:  apiToken,
		useToken:  useToken,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = external.NewBaseClient(&http.Client{Timeout: DefaultTimeout}, "nightscout", models.AppName)
	}
	return c
}

// hashSecret generates SHA1 hash of the API secret
// Note: SHA1 is required for Nightscout API compatibility
func hashSecret(secret string) string {
	hasher := sha1.New() //nolint:gosec // Required for Nightscout API
	hasher.Write([]byte(secret))
	return hex.EncodeToString(hasher.Sum(nil))
}

func (c *Client) tokenAuth() bool {
	return c.useToken && c.apiToken != ""
}

// buildRequest creates an HTTP request with proper authentication. With
// queryToken set the token travels in the query string and only the Accept
// header is sent.
func (c *Client) buildRequest(ctx context.Context, endpoint string, params url.Values, queryToken bool) (*http.Request, error) {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	if queryToken {
		q.Set("token", c.apiToken)
	}

	fullURL := c.baseURL + endpoint
	if len(q) > 0 {
		fullURL += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if queryToken {
		return req, nil
	}

	req.Header.Set("Content-Type", "application/json")
	if c.tokenAuth() {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	} else if c.apiSecret != "" {
		req.Header.Set("API-SECRET", hashSecret(c.apiSecret))
	}

	return req, nil
}

// get executes a GET and returns the response body. Token auth falls back to
// the query-string form when the bearer header is refused.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	body, status, err := c.do(ctx, endpoint, params, false)
	if err != nil {
		return nil, err
	}
	if isAuthFailure(status) && c.tokenAuth() {
		c.logger.Debug("bearer token refused, retrying with query token", "endpoint", endpoint, "status", status)
		body, status, err = c.do(ctx, endpoint, params, true)
		if err != nil {
			return nil, err
		}
	}

	switch {
	case isAuthFailure(status):
		return nil, fmt.Errorf("%w: status %d", ErrUnauthorized, status)
	case status < 200 || status >= 300:
		return nil, fmt.Errorf("API error %d: %s", status, string(body))
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, endpoint string, params url.Values, queryToken bool) ([]byte, int, error) {
	req, err := c.buildRequest(ctx, endpoint, params, queryToken)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("reading response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func isAuthFailure(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// GetStatus retrieves the Nightscout server status
func (c *Client) GetStatus(ctx context.Context) (*models.ServerStatus, error) {
	body, err := c.get(ctx, "/api/v1/status", nil)
	if err != nil {
		return nil, err
	}

	var status models.ServerStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("parsing status: %w", err)
	}

	return &status, nil
}

// GetCurrentEntry retrieves the most recent glucose entry
func (c *Client) GetCurrentEntry(ctx context.Context) (*models.GlucoseEntry, error) {
	params := url.Values{}
	params.Set("count", "1")

	body, err := c.get(ctx, "/api/v1/entries/current", params)
	if err != nil {
		return nil, err
	}

	// Current endpoint returns a single object or array
	var raw []rawEntry
	var single rawEntry
	if err := json.Unmarshal(body, &single); err == nil {
		raw = []rawEntry{single}
	} else if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing entry: %w", err)
	}

	entries := c.normalizeEntries(raw)
	if len(entries) == 0 {
		return nil, fmt.Errorf("no entries returned")
	}
	return &entries[0], nil
}

// GetEntries retrieves glucose entries for a time range
func (c *Client) GetEntries(ctx context.Context, from, to time.Time, count int) ([]models.GlucoseEntry, error) {
	params := url.Values{}

	if !from.IsZero() {
		params.Set("find[date][$gte]", strconv.FormatInt(from.UnixMilli(), 10))
	}
	if !to.IsZero() {
		params.Set("find[date][$lte]", strconv.FormatInt(to.UnixMilli(), 10))
	}
	if count > 0 {
		params.Set("count", strconv.Itoa(count))
	}

	return c.fetchEntries(ctx, "/api/v1/entries/sgv.json", params)
}

// GetRecentEntries retrieves the most recent N entries
func (c *Client) GetRecentEntries(ctx context.Context, count int) ([]models.GlucoseEntry, error) {
	params := url.Values{}
	params.Set("count", strconv.Itoa(max(1, count)))

	return c.fetchEntries(ctx, "/api/v1/entries.json", params)
}

// GetEntriesDays retrieves glucose entries for the last N days, assuming
// one reading every five minutes, newest first.
func (c *Client) GetEntriesDays(ctx context.Context, days float64) ([]models.GlucoseEntry, error) {
	count := max(1, int(math.Ceil(days*24*12)))
	entries, err := c.GetRecentEntries(ctx, count)
	if err != nil {
		return nil, err
	}

	cutoff := c.now().Add(-daysDuration(days)).UnixMilli()
	return recentEntries(entries, cutoff), nil
}

func (c *Client) fetchEntries(ctx context.Context, endpoint string, params url.Values) ([]models.GlucoseEntry, error) {
	body, err := c.get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	var raw []rawEntry
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing entries: %w", err)
	}

	return c.normalizeEntries(raw), nil
}

// GetTreatments retrieves the most recent N treatments.
func (c *Client) GetTreatments(ctx context.Context, count int) ([]models.Treatment, error) {
	params := url.Values{}
	params.Set("count", strconv.Itoa(max(1, count)))

	body, err := c.get(ctx, "/api/v1/treatments.json", params)
	if err != nil {
		return nil, err
	}

	var raw []rawTreatment
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing treatments: %w", err)
	}

	return c.normalizeTreatments(raw), nil
}

// GetTreatmentsDays retrieves treatments from the last N days, newest first.
func (c *Client) GetTreatmentsDays(ctx context.Context, days float64) ([]models.Treatment, error) {
	count := max(50, int(math.Ceil(days*24*6)))
	treatments, err := c.GetTreatments(ctx, count)
	if err != nil {
		return nil, err
	}

	cutoff := c.now().Add(-daysDuration(days))
	return recentTreatments(treatments, cutoff), nil
}

// TestConnection tests if the connection to Nightscout works
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.GetStatus(ctx)
	return err
}
