package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbelos/rakeback/service/db"
	"github.com/arbelos/rakeback/service/feed"
	"github.com/arbelos/rakeback/service/settle"
	solanasvc "github.com/arbelos/rakeback/service/solana"
)

type fakeSettler struct {
	claims   []settle.ClaimResult
	sweeps   []settle.SweepResult
	claimErr error
}

func (f *fakeSettler) ClaimAll(ctx context.Context) ([]settle.ClaimResult, error) {
	return f.claims, f.claimErr
}

func (f *fakeSettler) SweepAll(ctx context.Context) ([]settle.SweepResult, error) {
	return f.sweeps, nil
}

type fakePayoutRunner struct {
	payouts []settle.PayoutResult
}

func (f *fakePayoutRunner) RunPayouts(ctx context.Context) ([]settle.PayoutResult, error) {
	return f.payouts, nil
}

type fakeVaultReader struct {
	accounts []solanasvc.TokenAccount
	err      error
}

func (f *fakeVaultReader) ListTokenAccounts(ctx context.Context, owner solanago.PublicKey) ([]solanasvc.TokenAccount, error) {
	return f.accounts, f.err
}

type fakePriceLookup struct {
	prices map[string]float64
}

func (f *fakePriceLookup) GetPriceUSD(ctx context.Context, mint string) (float64, error) {
	if p, ok := f.prices[mint]; ok {
		return p, nil
	}
	return 0, errors.New("price unavailable")
}

func TestRequireAdminKey(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name           string
		configuredKey  string
		requestKey     string
		expectedStatus int
	}{
		{"valid key", "secret", "secret", http.StatusOK},
		{"invalid key", "secret", "wrong", http.StatusForbidden},
		{"missing key", "secret", "", http.StatusForbidden},
		{"no key configured rejects everything", "", "anything", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/admin/stats", nil)
			if tt.requestKey != "" {
				req.Header.Set("X-Admin-Key", tt.requestKey)
			}
			w := httptest.NewRecorder()
			requireAdminKey(tt.configuredKey, inner).ServeHTTP(w, req)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestFeeStatus(t *testing.T) {
	wsol := solanago.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	usdc := solanago.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	referral := solanago.MustPublicKeyFromBase58(testWalletA)

	vaults := &fakeVaultReader{accounts: []solanasvc.TokenAccount{
		{Address: wsol, Mint: wsol, UIAmount: 2},
		{Address: usdc, Mint: usdc, UIAmount: 50},
	}}
	prices := &fakePriceLookup{prices: map[string]float64{
		wsol.String(): 150.0,
		// USDC deliberately unpriced; its balance still shows.
	}}

	handler := handleFeeStatus([]settle.Identity{{Name: "ultra", ReferralAccount: referral}}, vaults, prices, testLogger())

	req := httptest.NewRequest("GET", "/admin/fees/status", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Accounts []vaultStatus `json:"accounts"`
		Count    int           `json:"count"`
		TotalUSD float64       `json:"total_usd"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, 2, resp.Count)
	assert.InDelta(t, 300.0, resp.TotalUSD, 1e-9)
	assert.InDelta(t, 300.0, resp.Accounts[0].USDValue, 1e-9)
	assert.Zero(t, resp.Accounts[1].USDValue)
}

func TestFeeStatus_ReaderError(t *testing.T) {
	referral := solanago.MustPublicKeyFromBase58(testWalletA)
	handler := handleFeeStatus(
		[]settle.Identity{{Name: "ultra", ReferralAccount: referral}},
		&fakeVaultReader{err: errors.New("rpc down")},
		&fakePriceLookup{},
		testLogger(),
	)

	req := httptest.NewRequest("GET", "/admin/fees/status", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestTriggerClaim(t *testing.T) {
	settler := &fakeSettler{claims: []settle.ClaimResult{
		{Identity: "ultra", Signature: "sig1"},
		{Identity: "ultra", Error: "no authority"},
	}}
	handler := handleTriggerClaim(settler, testLogger())

	req := httptest.NewRequest("POST", "/admin/fees/claim", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Claims []settle.ClaimResult `json:"claims"`
		Count  int                  `json:"count"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "sig1", resp.Claims[0].Signature)
}

func TestTriggerPayouts(t *testing.T) {
	payer := &fakePayoutRunner{payouts: []settle.PayoutResult{
		{ReferrerWallet: testWalletA, AmountUSD: 12.5, Signature: "pay-sig"},
	}}
	handler := handleTriggerPayouts(payer, testLogger())

	req := httptest.NewRequest("POST", "/admin/payouts/run", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pay-sig")
}

type recordingSwapStore struct {
	recorded []db.RecordSwapParams
}

func (r *recordingSwapStore) RecordSwap(ctx context.Context, params db.RecordSwapParams) (*db.Swap, error) {
	r.recorded = append(r.recorded, params)
	return &db.Swap{TxSignature: params.TxSignature, VolumeUSD: params.VolumeUSD}, nil
}

type staticPricer struct{ price float64 }

func (s *staticPricer) GetPriceUSD(ctx context.Context, mint string) (float64, error) {
	return s.price, nil
}

func TestHeliusWebhook(t *testing.T) {
	store := &recordingSwapStore{}
	processor := feed.NewProcessor(store, &staticPricer{price: 1.0}, nil, nil, "feepayer123", testLogger())
	handler := handleHeliusWebhook(processor, "hook-secret", testLogger())

	payload := `[
		{
			"signature": "hook-sig-1",
			"type": "SWAP",
			"feePayer": "feepayer123",
			"timestamp": 1700000000,
			"tokenTransfers": [
				{"fromUserAccount": "userWa11etXYZ", "toUserAccount": "poolacct", "mint": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", "tokenAmount": 250.0}
			],
			"nativeTransfers": [],
			"accountData": [],
			"events": {}
		},
		{"signature": "hook-sig-2", "type": "TRANSFER", "feePayer": "feepayer123"}
	]`

	req := httptest.NewRequest("POST", "/webhooks/helius", strings.NewReader(payload))
	req.Header.Set("Authorization", "hook-secret")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Received int `json:"received"`
		Recorded int `json:"recorded"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Received)
	assert.Equal(t, 1, resp.Recorded)

	require.Len(t, store.recorded, 1)
	assert.Equal(t, "hook-sig-1", store.recorded[0].TxSignature)
}

func TestHeliusWebhook_RejectsInvalidAuth(t *testing.T) {
	processor := feed.NewProcessor(&recordingSwapStore{}, &staticPricer{price: 1.0}, nil, nil, "", testLogger())
	handler := handleHeliusWebhook(processor, "hook-secret", testLogger())

	tests := []struct {
		name string
		auth string
	}{
		{"wrong secret", "wrong"},
		{"missing header", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/webhooks/helius", strings.NewReader("[]"))
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestHeliusWebhook_BadPayload(t *testing.T) {
	processor := feed.NewProcessor(&recordingSwapStore{}, &staticPricer{price: 1.0}, nil, nil, "", testLogger())
	handler := handleHeliusWebhook(processor, "hook-secret", testLogger())

	req := httptest.NewRequest("POST", "/webhooks/helius", strings.NewReader(`{"not":"an array"}`))
	req.Header.Set("Authorization", "hook-secret")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
