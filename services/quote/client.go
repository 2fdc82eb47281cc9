package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Quote is one price reading for a symbol. PercentChange is the value
// reported by the upstream API, not recomputed from the prices, so the
// tracker stays consistent with upstream rounding.
type Quote struct {
	Current       float64 `json:"c"`
	PrevClose     float64 `json:"pc"`
	PercentChange float64 `json:"dp"`
}

const requestTimeout = 10 * time.Second

// Client fetches quotes from a finnhub-compatible REST API. Calls are
// throttled client-side to the configured per-minute budget and routed
// through a circuit breaker so a misbehaving upstream trips fast instead
// of stalling every rotation tick.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

// NewClient creates a quote client bounded to callsPerMinute upstream calls
func NewClient(baseURL, apiKey string, callsPerMinute int) *Client {
	if callsPerMinute <= 0 {
		callsPerMinute = 60
	}

	settings := gobreaker.Settings{
		Name:    "quote-api",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(float64(callsPerMinute)/60.0), 1),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Quote fetches the current quote for a symbol
func (c *Client) Quote(ctx context.Context, symbol string) (Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Quote{}, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, symbol)
	})
	if err != nil {
		return Quote{}, err
	}
	return result.(Quote), nil
}

func (c *Client) fetch(ctx context.Context, symbol string) (Quote, error) {
	endpoint := fmt.Sprintf("%s/quote?symbol=%s&token=%s",
		c.baseURL, url.QueryEscape(symbol), url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to build quote request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("quote request for %s failed: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Quote{}, fmt.Errorf("quote API returned status %d for %s: %s",
			resp.StatusCode, symbol, string(body))
	}

	var q Quote
	if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
		return Quote{}, fmt.Errorf("failed to decode quote for %s: %w", symbol, err)
	}
	return q, nil
}
