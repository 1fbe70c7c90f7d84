package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/arbelos/rakeback/service/metrics"
)

// DefaultBaseURL is the public Birdeye API endpoint.
const DefaultBaseURL = "https://public-api.birdeye.so"

// cacheTTL bounds how stale a cached price may be. Sweep valuations and
// webhook accruals tolerate a minute of drift; anything older must be
// refetched or reported unavailable, never served as current.
const cacheTTL = 60 * time.Second

// KnownDecimals maps common mints to their decimals so UI conversions
// do not need a mint account fetch.
var KnownDecimals = map[string]uint8{
	"So11111111111111111111111111111111111111112":  9, // WSOL
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": 6, // USDC
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": 6, // USDT
}

// Client fetches token prices from Birdeye with a short-lived in-memory
// cache. Safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	cache map[string]cachedPrice
	now   func() time.Time
}

type cachedPrice struct {
	priceUSD  float64
	fetchedAt time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the Birdeye endpoint, mainly for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// withClock overrides the clock, for cache expiry tests.
func withClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a price client. The API key is sent in the
// X-API-KEY header on every request.
func NewClient(apiKey string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		cache:   make(map[string]cachedPrice),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type birdeyeResponse struct {
	Data struct {
		Value float64 `json:"value"`
	} `json:"data"`
	Success bool `json:"success"`
}

// GetPriceUSD returns the current USD price for a mint. Prices come
// from the cache when fresh; a fetch failure is an error, never a zero
// or stale price.
func (c *Client) GetPriceUSD(ctx context.Context, mint string) (float64, error) {
	c.mu.Lock()
	if cached, ok := c.cache[mint]; ok && c.now().Sub(cached.fetchedAt) < cacheTTL {
		c.mu.Unlock()
		c.metrics.RecordPriceLookup("hit")
		return cached.priceUSD, nil
	}
	c.mu.Unlock()

	price, err := c.fetch(ctx, mint)
	if err != nil {
		c.metrics.RecordPriceLookup("error")
		return 0, err
	}
	c.metrics.RecordPriceLookup("miss")

	c.mu.Lock()
	c.cache[mint] = cachedPrice{priceUSD: price, fetchedAt: c.now()}
	c.mu.Unlock()

	return price, nil
}

func (c *Client) fetch(ctx context.Context, mint string) (float64, error) {
	u := fmt.Sprintf("%s/defi/price?address=%s", c.baseURL, url.QueryEscape(mint))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("price lookup for %s failed: %w", mint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price lookup for %s returned status %d", mint, resp.StatusCode)
	}

	var body birdeyeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode price response for %s: %w", mint, err)
	}
	if !body.Success || body.Data.Value <= 0 {
		return 0, fmt.Errorf("price unavailable for %s", mint)
	}

	c.logger.DebugContext(ctx, "fetched token price",
		"mint", mint,
		"price_usd", body.Data.Value,
	)
	return body.Data.Value, nil
}

// ValueUSD converts a raw token amount to USD using the mint's current
// price. Decimals come from the known-mints table when present,
// otherwise from the caller (who has the parsed token account in hand).
func (c *Client) ValueUSD(ctx context.Context, mint string, amount uint64, decimals uint8) (float64, error) {
	if known, ok := KnownDecimals[mint]; ok {
		decimals = known
	}
	price, err := c.GetPriceUSD(ctx, mint)
	if err != nil {
		return 0, err
	}
	ui := float64(amount)
	for i := uint8(0); i < decimals; i++ {
		ui /= 10
	}
	return ui * price, nil
}
