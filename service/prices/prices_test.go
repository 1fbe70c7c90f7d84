package prices

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func priceServer(t *testing.T, price float64, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "test-key", r.Header.Get("X-API-KEY"))
		assert.Equal(t, "/defi/price", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("address"))
		fmt.Fprintf(w, `{"data": {"value": %v}, "success": true}`, price)
	}))
}

func TestGetPriceUSD(t *testing.T) {
	var calls atomic.Int64
	srv := priceServer(t, 142.55, &calls)
	defer srv.Close()

	c := NewClient("test-key", testLogger(), WithBaseURL(srv.URL))

	price, err := c.GetPriceUSD(context.Background(), "So11111111111111111111111111111111111111112")
	require.NoError(t, err)
	assert.InDelta(t, 142.55, price, 1e-9)
	assert.Equal(t, int64(1), calls.Load())
}

func TestGetPriceUSD_CacheHitAndExpiry(t *testing.T) {
	var calls atomic.Int64
	srv := priceServer(t, 1.0, &calls)
	defer srv.Close()

	now := time.Now()
	clock := func() time.Time { return now }
	c := NewClient("test-key", testLogger(), WithBaseURL(srv.URL), withClock(clock))

	_, err := c.GetPriceUSD(context.Background(), "mint-a")
	require.NoError(t, err)
	_, err = c.GetPriceUSD(context.Background(), "mint-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load(), "second lookup should hit the cache")

	// Advance past the TTL; the next lookup refetches.
	now = now.Add(cacheTTL + time.Second)
	_, err = c.GetPriceUSD(context.Background(), "mint-a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
}

func TestGetPriceUSD_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": {"value": 0}, "success": false}`)
	}))
	defer srv.Close()

	c := NewClient("test-key", testLogger(), WithBaseURL(srv.URL))
	_, err := c.GetPriceUSD(context.Background(), "mint-x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable")
}

func TestGetPriceUSD_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("test-key", testLogger(), WithBaseURL(srv.URL))
	_, err := c.GetPriceUSD(context.Background(), "mint-x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestValueUSD(t *testing.T) {
	var calls atomic.Int64
	srv := priceServer(t, 2.0, &calls)
	defer srv.Close()

	c := NewClient("test-key", testLogger(), WithBaseURL(srv.URL))

	// USDC is in the known-decimals table; the caller's decimals are
	// ignored in favor of the canonical value.
	usd, err := c.ValueUSD(context.Background(), "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", 1_500_000, 0)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, usd, 1e-9)

	// Unknown mints use the supplied decimals.
	usd, err = c.ValueUSD(context.Background(), "mint-unknown", 500, 2)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, usd, 1e-9)
}
