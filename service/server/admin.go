package server

import (
	"context"
	"log/slog"
	"net/http"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/arbelos/rakeback/service/db"
	"github.com/arbelos/rakeback/service/settle"
	solanasvc "github.com/arbelos/rakeback/service/solana"
)

// Settler is the slice of the orchestrator the admin surface needs.
type Settler interface {
	ClaimAll(ctx context.Context) ([]settle.ClaimResult, error)
	SweepAll(ctx context.Context) ([]settle.SweepResult, error)
}

// PayoutRunner triggers payout disbursement runs.
type PayoutRunner interface {
	RunPayouts(ctx context.Context) ([]settle.PayoutResult, error)
}

// VaultReader enumerates token accounts for the fee status endpoint.
type VaultReader interface {
	ListTokenAccounts(ctx context.Context, owner solanago.PublicKey) ([]solanasvc.TokenAccount, error)
}

// PriceLookup resolves a mint's USD price.
type PriceLookup interface {
	GetPriceUSD(ctx context.Context, mint string) (float64, error)
}

// requireAdminKey guards a handler behind the X-Admin-Key header.
func requireAdminKey(adminKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if adminKey == "" || r.Header.Get("X-Admin-Key") != adminKey {
			writeError(w, "invalid admin key", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// vaultStatus is one fee vault's balance in the status response.
type vaultStatus struct {
	Identity string  `json:"identity"`
	Vault    string  `json:"vault"`
	Mint     string  `json:"mint"`
	UIAmount float64 `json:"ui_amount"`
	USDValue float64 `json:"usd_value,omitempty"`
}

// handleFeeStatus returns a handler that enumerates every identity's
// fee vaults with balances and USD values.
// GET /admin/fees/status
func handleFeeStatus(identities []settle.Identity, vaults VaultReader, prices PriceLookup, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			accounts []vaultStatus
			totalUSD float64
		)
		for _, id := range identities {
			list, err := vaults.ListTokenAccounts(r.Context(), id.ReferralAccount)
			if err != nil {
				logger.Error("failed to enumerate fee vaults",
					"identity", id.Name,
					"error", err,
				)
				writeError(w, "failed to enumerate fee vaults", http.StatusBadGateway)
				return
			}

			for _, acct := range list {
				status := vaultStatus{
					Identity: id.Name,
					Vault:    acct.Address.String(),
					Mint:     acct.Mint.String(),
					UIAmount: acct.UIAmount,
				}
				// Prices are best effort here; a vault with an
				// unpriceable mint still shows its balance.
				if price, err := prices.GetPriceUSD(r.Context(), status.Mint); err == nil {
					status.USDValue = acct.UIAmount * price
					totalUSD += status.USDValue
				}
				accounts = append(accounts, status)
			}
		}

		writeJSON(w, map[string]interface{}{
			"accounts":  accounts,
			"count":     len(accounts),
			"total_usd": totalUSD,
		}, http.StatusOK)
	})
}

// handleTriggerClaim returns a handler that runs a claim cycle now.
// POST /admin/fees/claim
func handleTriggerClaim(settler Settler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		results, err := settler.ClaimAll(r.Context())
		if err != nil {
			logger.Error("claim run failed", "error", err)
			writeError(w, "claim run failed", http.StatusBadGateway)
			return
		}

		logger.Info("manual claim run finished", "attempted", len(results))
		writeJSON(w, map[string]interface{}{
			"claims": results,
			"count":  len(results),
		}, http.StatusOK)
	})
}

// handleTriggerSweep returns a handler that runs a treasury sweep now.
// POST /admin/fees/sweep
func handleTriggerSweep(settler Settler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		results, err := settler.SweepAll(r.Context())
		if err != nil {
			logger.Error("sweep run failed", "error", err)
			writeError(w, "sweep run failed", http.StatusBadGateway)
			return
		}

		logger.Info("manual sweep run finished", "attempted", len(results))
		writeJSON(w, map[string]interface{}{
			"sweeps": results,
			"count":  len(results),
		}, http.StatusOK)
	})
}

// handleTriggerPayouts returns a handler that runs payout disbursement
// now. POST /admin/payouts/run
func handleTriggerPayouts(payer PayoutRunner, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		results, err := payer.RunPayouts(r.Context())
		if err != nil {
			logger.Error("payout run failed", "error", err)
			writeError(w, "payout run failed", http.StatusBadGateway)
			return
		}

		logger.Info("manual payout run finished", "attempted", len(results))
		writeJSON(w, map[string]interface{}{
			"payouts": results,
			"count":   len(results),
		}, http.StatusOK)
	})
}

// handleListPendingPayouts returns a handler that lists what each
// referrer is currently owed. GET /admin/payouts/pending
func handleListPendingPayouts(store *db.Store, minPayoutUSD float64, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pending, err := store.ListPendingPayouts(r.Context(), minPayoutUSD)
		if err != nil {
			logger.Error("failed to list pending payouts", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		var totalUSD float64
		for _, p := range pending {
			totalUSD += p.AmountUSD
		}
		writeJSON(w, map[string]interface{}{
			"pending":   pending,
			"count":     len(pending),
			"total_usd": totalUSD,
		}, http.StatusOK)
	})
}

// handlePlatformStats returns a handler for platform-wide totals.
// GET /admin/stats
func handlePlatformStats(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := store.GetPlatformStats(r.Context())
		if err != nil {
			logger.Error("failed to get platform stats", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, stats, http.StatusOK)
	})
}
