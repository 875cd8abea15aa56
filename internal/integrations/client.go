// Package integrations reads meals and the activity summary from the
// integrations API.
package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/mrcode/nightscout-insights/internal/external"
	"github.com/mrcode/nightscout-insights/internal/models"
)

// DefaultTimeout bounds a single integrations request.
const DefaultTimeout = 10 * time.Second

// mealsRequestLimit is the page size asked of /v1/meals.
const mealsRequestLimit = 1000

// Client talks to the integrations API with a read token.
type Client struct {
	baseURL   string
	readToken string
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

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates an integrations client.
func NewClient(baseURL, readToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		readToken: readToken,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = external.NewBaseClient(&http.Client{Timeout: DefaultTimeout}, "integrations", models.AppName)
	}
	return c
}

type rawSummary struct {
	StepsLast24h    any `json:"stepsLast24h"`
	WeightKgLatest  any `json:"weightKgLatest"`
	WeightUpdatedAt any `json:"weightUpdatedAt"`
	SyncedAt        any `json:"syncedAt"`
}

type rawMeal struct {
	ID         any `json:"id"`
	Name       any `json:"name"`
	CarbsGrams any `json:"carbsGrams"`
	EatenAt    any `json:"eatenAt"`
	Source     any `json:"source"`
	Calories   any `json:"calories"`
}

// GetHealthSummary returns the latest summary, or nil when the service has
// none or returned a malformed one.
func (c *Client) GetHealthSummary(ctx context.Context) (*models.HealthSummary, error) {
	body, err := c.get(ctx, "/v1/summary", nil)
	if err != nil {
		return nil, err
	}

	var raw *rawSummary
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing summary: %w", err)
	}
	if raw == nil {
		return nil, nil
	}

	summary, ok := normalizeSummary(*raw)
	if !ok {
		c.logger.Warn("ignoring malformed health summary")
		return nil, nil
	}
	return summary, nil
}

// GetMeals returns meals eaten in the last days, newest first.
func (c *Client) GetMeals(ctx context.Context, days float64) ([]models.Meal, error) {
	now := c.now().UTC()
	from := now.Add(-time.Duration(days * float64(24*time.Hour)))

	params := url.Values{}
	params.Set("from", from.Format(isoMillis))
	params.Set("to", now.Format(isoMillis))
	params.Set("limit", fmt.Sprint(mealsRequestLimit))

	body, err := c.get(ctx, "/v1/meals", params)
	if err != nil {
		return nil, err
	}

	var raw []rawMeal
	if err := json.Unmarshal(body, &raw); err != nil {
		c.logger.Warn("meals payload is not a list", "error", err)
		return []models.Meal{}, nil
	}

	meals := lo.FilterMap(raw, func(r rawMeal, _ int) (models.Meal, bool) {
		return normalizeMeal(r)
	})
	if dropped := len(raw) - len(meals); dropped > 0 {
		c.logger.Debug("dropped malformed meals", "dropped", dropped, "kept", len(meals))
	}

	slices.SortStableFunc(meals, func(a, b models.Meal) int {
		return strings.Compare(b.EatenAt, a.EatenAt)
	})
	return meals, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.readToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("integrations request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("integrations API request failed (%d)", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}

const isoMillis = "2006-01-02T15:04:05.000Z"

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func finite(v any) (float64, bool) {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// isoTime accepts a string holding a parseable timestamp and returns it in
// canonical UTC form.
func isoTime(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	t, ok := models.ParseTimestamp(s)
	if !ok {
		return "", false
	}
	return t.UTC().Format(isoMillis), true
}

// nullableNumber is valid when absent, null or a finite number.
func nullableNumber(v any) (*float64, bool) {
	if v == nil {
		return nil, true
	}
	f, ok := finite(v)
	if !ok {
		return nil, false
	}
	return &f, true
}

func normalizeSummary(r rawSummary) (*models.HealthSummary, bool) {
	synced, ok := r.SyncedAt.(string)
	if !ok {
		return nil, false
	}
	if _, ok := models.ParseTimestamp(synced); !ok {
		return nil, false
	}

	steps, ok := nullableNumber(r.StepsLast24h)
	if !ok {
		return nil, false
	}
	weight, ok := nullableNumber(r.WeightKgLatest)
	if !ok {
		return nil, false
	}

	var weightAt *string
	if r.WeightUpdatedAt != nil {
		s, ok := r.WeightUpdatedAt.(string)
		if !ok {
			return nil, false
		}
		if _, ok := models.ParseTimestamp(s); !ok {
			return nil, false
		}
		weightAt = &s
	}

	return &models.HealthSummary{
		StepsLast24h:    steps,
		WeightKgLatest:  weight,
		WeightUpdatedAt: weightAt,
		SyncedAt:        synced,
	}, true
}

func normalizeMeal(r rawMeal) (models.Meal, bool) {
	id, okID := r.ID.(string)
	name, okName := r.Name.(string)
	carbs, okCarbs := finite(r.CarbsGrams)
	eatenAt, okTime := isoTime(r.EatenAt)
	if !okID || !okName || !okCarbs || !okTime {
		return models.Meal{}, false
	}

	provider := models.ProviderMyFitnessPal
	if r.Source == models.ProviderHealthConnect {
		provider = models.ProviderHealthConnect
	}

	meal := models.Meal{
		ID:         id,
		Name:       name,
		CarbsGrams: round2(carbs),
		EatenAt:    eatenAt,
		Source:     models.MealSourceLogged,
		Provider:   provider,
	}
	if cal, ok := finite(r.Calories); ok {
		meal.Calories = lo.ToPtr(round2(cal))
	}
	return meal, true
}
