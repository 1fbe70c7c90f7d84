package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/arbelos/rakeback/service/db"
	"github.com/arbelos/rakeback/service/feed"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB, plenty for a webhook batch
	maxAddressLength   = 100     // Solana addresses are 44 chars, give buffer
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

// handleRegisterUser returns a handler that registers a user wallet,
// optionally linked to a referrer's code.
// POST /api/v1/users
func handleRegisterUser(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			WalletAddress string  `json:"wallet_address"`
			ReferredBy    *string `json:"referred_by"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode register request", "error", err)
			if strings.Contains(err.Error(), "http: request body too large") {
				writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		if err := validateAddress(req.WalletAddress); err != nil {
			logger.Debug("invalid wallet address", "address", req.WalletAddress, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		user, err := store.CreateUser(r.Context(), req.WalletAddress, req.ReferredBy)
		switch {
		case errors.Is(err, db.ErrNotFound):
			writeError(w, "unknown referral code", http.StatusBadRequest)
			return
		case errors.Is(err, db.ErrSelfReferral):
			writeError(w, "cannot use your own referral code", http.StatusBadRequest)
			return
		case err != nil:
			logger.Error("failed to register user", "address", req.WalletAddress, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Info("user registered",
			"address", user.WalletAddress,
			"referral_code", user.ReferralCode,
			"referred_by", req.ReferredBy,
		)
		writeJSON(w, userToResponse(user), http.StatusCreated)
	})
}

// handleGetUser returns a handler that fetches a user by wallet address.
// GET /api/v1/users/{wallet}
func handleGetUser(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallet := r.PathValue("wallet")
		if err := validateAddress(wallet); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		user, err := store.GetUserByWallet(r.Context(), wallet)
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, "user not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Error("failed to get user", "address", wallet, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, userToResponse(user), http.StatusOK)
	})
}

// handleGetReferralStats returns a handler that aggregates a referrer's
// earnings. GET /api/v1/referrals/{wallet}/stats
func handleGetReferralStats(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallet := r.PathValue("wallet")
		if err := validateAddress(wallet); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		stats, err := store.GetReferralStats(r.Context(), wallet)
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, "user not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Error("failed to get referral stats", "address", wallet, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, stats, http.StatusOK)
	})
}

// handleListSwaps returns a handler that lists a wallet's recorded
// swaps. GET /api/v1/swaps?wallet_address=ADDRESS&limit=N&offset=N
func handleListSwaps(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		wallet := query.Get("wallet_address")
		if wallet == "" {
			writeError(w, "wallet_address query parameter is required", http.StatusBadRequest)
			return
		}
		if err := validateAddress(wallet); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		limit, err := parseBoundedInt(query.Get("limit"), 100, 1, 1000, "limit")
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		offset, err := parseBoundedInt(query.Get("offset"), 0, 0, 1<<30, "offset")
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		swaps, err := store.ListSwapsByWallet(r.Context(), wallet, int32(limit), int32(offset))
		if err != nil {
			logger.Error("failed to list swaps", "wallet", wallet, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]swapResponse, len(swaps))
		for i := range swaps {
			resp[i] = swapToResponse(swaps[i])
		}
		writeJSON(w, map[string]interface{}{
			"swaps":  resp,
			"count":  len(resp),
			"limit":  limit,
			"offset": offset,
		}, http.StatusOK)
	})
}

// handleHeliusWebhook returns a handler for Helius enhanced-transaction
// webhooks. The request must carry the shared secret in the
// Authorization header, matching the webhook's configured auth header.
// POST /webhooks/helius
func handleHeliusWebhook(processor *feed.Processor, secret string, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if secret == "" || r.Header.Get("Authorization") != secret {
			writeError(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var txs []feed.Transaction
		if err := json.NewDecoder(r.Body).Decode(&txs); err != nil {
			logger.Debug("failed to decode webhook payload", "error", err)
			writeError(w, "invalid payload: expected a JSON array of transactions", http.StatusBadRequest)
			return
		}

		recorded := processor.ProcessWebhook(r.Context(), txs)

		// Always 200: a non-2xx response makes Helius redeliver the
		// whole batch, and recording is idempotent anyway.
		writeJSON(w, map[string]interface{}{
			"received": len(txs),
			"recorded": recorded,
		}, http.StatusOK)
	})
}

// userResponse is the JSON response format for a user.
type userResponse struct {
	WalletAddress     string     `json:"wallet_address"`
	ReferralCode      string     `json:"referral_code"`
	LifetimeVolumeUSD float64    `json:"lifetime_volume_usd"`
	Volume30dUSD      float64    `json:"volume_30d_usd"`
	LastTradeAt       *time.Time `json:"last_trade_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func userToResponse(u *db.User) userResponse {
	return userResponse{
		WalletAddress:     u.WalletAddress,
		ReferralCode:      u.ReferralCode,
		LifetimeVolumeUSD: u.LifetimeVolumeUSD,
		Volume30dUSD:      u.Volume30dUSD,
		LastTradeAt:       u.LastTradeAt,
		CreatedAt:         u.CreatedAt,
	}
}

// swapResponse is the JSON response format for a recorded swap.
type swapResponse struct {
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

func swapToResponse(s *db.Swap) swapResponse {
	return swapResponse{
		TxSignature:    s.TxSignature,
		WalletAddress:  s.WalletAddress,
		InputMint:      s.InputMint,
		OutputMint:     s.OutputMint,
		VolumeUSD:      s.VolumeUSD,
		GrossFeeUSD:    s.GrossFeeUSD,
		ReferrerUSD:    s.ReferrerUSD,
		ReferrerWallet: s.ReferrerWallet,
		SwappedAt:      s.SwappedAt,
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress validates a wallet address for security and format.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return errorf("address too long: maximum %d characters", maxAddressLength)
	}

	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address")
		}
	}

	if !validAddressRegex.MatchString(address) {
		return errorf("invalid address format: must contain only valid base58 characters")
	}

	return nil
}

// parseBoundedInt parses an optional integer query parameter within
// bounds.
func parseBoundedInt(raw string, def, min, max int, name string) (int, error) {
	if raw == "" {
		return def, nil
	}
	var v int
	if _, err := fmt.Sscanf(raw, "%d", &v); err != nil {
		return 0, errorf("invalid %s parameter: must be an integer", name)
	}
	if v < min {
		return 0, errorf("%s must be at least %d", name, min)
	}
	if v > max {
		return 0, errorf("%s cannot exceed %d", name, max)
	}
	return v, nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
