package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// User represents a registered trading wallet.
type User struct {
	WalletAddress     string     `json:"wallet_address"`
	ReferralCode      string     `json:"referral_code"`
	LifetimeVolumeUSD float64    `json:"lifetime_volume_usd"`
	Volume30dUSD      float64    `json:"volume_30d_usd"`
	LastTradeAt       *time.Time `json:"last_trade_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// ReferralStats summarizes a referrer's earnings.
type ReferralStats struct {
	WalletAddress string  `json:"wallet_address"`
	ReferralCode  string  `json:"referral_code"`
	RefereeCount  int64   `json:"referee_count"`
	CappedCount   int64   `json:"capped_count"`
	EarnedUSD     float64 `json:"earned_usd"`
	PaidUSD       float64 `json:"paid_usd"`
	PendingUSD    float64 `json:"pending_usd"`
}

// Swap is one recorded trade.
type Swap struct {
	TxSignature    string    `json:"tx_signature"`
	WalletAddress  string    `json:"wallet_address"`
	InputMint      string    `json:"input_mint"`
	OutputMint     string    `json:"output_mint"`
	VolumeUSD      float64   `json:"volume_usd"`
	GrossFeeUSD    float64   `json:"gross_fee_usd"`
	ReferrerUSD    float64   `json:"referrer_usd"`
	ReferrerWallet *string   `json:"referrer_wallet,omitempty"`
	SwappedAt      time.Time `json:"swapped_at"`
}

// PendingPayout is one referrer's currently owed balance.
type PendingPayout struct {
	ReferrerWallet string  `json:"referrer_wallet"`
	AmountUSD      float64 `json:"amount_usd"`
}

// Client is the HTTP client for the rakeback service.
type Client struct {
	baseURL    string
	adminKey   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new service client. adminKey may be empty for
// clients that only use the public surface.
func NewClient(baseURL, adminKey string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		adminKey:   adminKey,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Register creates a user for a wallet, optionally attributed to a
// referrer's code.
func (c *Client) Register(ctx context.Context, walletAddress string, referredBy *string) (*User, error) {
	reqBody := map[string]interface{}{
		"wallet_address": walletAddress,
	}
	if referredBy != nil {
		reqBody["referred_by"] = *referredBy
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/users", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, c.parseErrorResponse(resp)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("user registered", "address", user.WalletAddress, "referral_code", user.ReferralCode)
	return &user, nil
}

// GetUser retrieves a user by wallet address.
func (c *Client) GetUser(ctx context.Context, walletAddress string) (*User, error) {
	u := fmt.Sprintf("%s/api/v1/users/%s", c.baseURL, url.PathEscape(walletAddress))

	var user User
	if err := c.getJSON(ctx, u, false, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetReferralStats retrieves a referrer's aggregated earnings.
func (c *Client) GetReferralStats(ctx context.Context, walletAddress string) (*ReferralStats, error) {
	u := fmt.Sprintf("%s/api/v1/referrals/%s/stats", c.baseURL, url.PathEscape(walletAddress))

	var stats ReferralStats
	if err := c.getJSON(ctx, u, false, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ListSwaps retrieves a wallet's recorded swaps, newest first.
func (c *Client) ListSwaps(ctx context.Context, walletAddress string, limit, offset int) ([]Swap, error) {
	u := fmt.Sprintf("%s/api/v1/swaps?wallet_address=%s&limit=%d&offset=%d",
		c.baseURL, url.QueryEscape(walletAddress), limit, offset)

	var resp struct {
		Swaps []Swap `json:"swaps"`
	}
	if err := c.getJSON(ctx, u, false, &resp); err != nil {
		return nil, err
	}
	return resp.Swaps, nil
}

// ListPendingPayouts retrieves what each referrer is currently owed.
// Requires an admin key.
func (c *Client) ListPendingPayouts(ctx context.Context) ([]PendingPayout, error) {
	var resp struct {
		Pending []PendingPayout `json:"pending"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/admin/payouts/pending", true, &resp); err != nil {
		return nil, err
	}
	return resp.Pending, nil
}

// TriggerClaim runs a claim cycle now. Requires an admin key.
func (c *Client) TriggerClaim(ctx context.Context) (json.RawMessage, error) {
	return c.postAdmin(ctx, "/admin/fees/claim")
}

// TriggerSweep runs a treasury sweep now. Requires an admin key.
func (c *Client) TriggerSweep(ctx context.Context) (json.RawMessage, error) {
	return c.postAdmin(ctx, "/admin/fees/sweep")
}

// TriggerPayouts runs payout disbursement now. Requires an admin key.
func (c *Client) TriggerPayouts(ctx context.Context) (json.RawMessage, error) {
	return c.postAdmin(ctx, "/admin/payouts/run")
}

func (c *Client) postAdmin(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Admin-Key", c.adminKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return json.RawMessage(raw), nil
}

func (c *Client) getJSON(ctx context.Context, url string, admin bool, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if admin {
		req.Header.Set("X-Admin-Key", c.adminKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the
// server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
