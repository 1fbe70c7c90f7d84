package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/arbelos/rakeback/service/metrics"
	"github.com/arbelos/rakeback/service/settle"
)

// ClaimFeesResult summarizes one claim cycle across all identities.
type ClaimFeesResult struct {
	Claims    []settle.ClaimResult `json:"claims"`
	Attempted int                  `json:"attempted"`
	Failed    int                  `json:"failed"`
}

// SweepTreasuryResult summarizes one treasury sweep cycle.
type SweepTreasuryResult struct {
	Sweeps    []settle.SweepResult `json:"sweeps"`
	Attempted int                  `json:"attempted"`
	Failed    int                  `json:"failed"`
}

// RunPayoutsResult summarizes one payout disbursement cycle.
type RunPayoutsResult struct {
	Payouts   []settle.PayoutResult `json:"payouts"`
	Attempted int                   `json:"attempted"`
	Failed    int                   `json:"failed"`
}

// CheckPayerBalanceInput contains parameters for the payer balance check.
type CheckPayerBalanceInput struct {
	PayerAddress string `json:"payer_address"`
	MinLamports  uint64 `json:"min_lamports"`
}

// CheckPayerBalanceResult contains the payer's current SOL balance.
type CheckPayerBalanceResult struct {
	PayerAddress string  `json:"payer_address"`
	Lamports     uint64  `json:"lamports"`
	SOL          float64 `json:"sol"`
	Low          bool    `json:"low"`
}

// SettlerInterface defines the claim and sweep operations needed by
// activities. This allows for easy mocking in tests.
type SettlerInterface interface {
	ClaimAll(ctx context.Context) ([]settle.ClaimResult, error)
	SweepAll(ctx context.Context) ([]settle.SweepResult, error)
}

// PayerInterface defines the payout operations needed by activities.
type PayerInterface interface {
	RunPayouts(ctx context.Context) ([]settle.PayoutResult, error)
}

// SolanaClientInterface defines the chain reads needed by activities.
type SolanaClientInterface interface {
	GetSOLBalance(ctx context.Context, wallet solanago.PublicKey) (uint64, error)
}

// Activities holds the dependencies needed by Temporal activities.
// All dependencies are explicit.
type Activities struct {
	settler SettlerInterface
	payer   PayerInterface
	solana  SolanaClientInterface
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewActivities creates a new Activities instance with explicit
// dependencies. If metrics is nil, no metrics will be recorded.
func NewActivities(
	settler SettlerInterface,
	payer PayerInterface,
	solanaClient SolanaClientInterface,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		settler: settler,
		payer:   payer,
		solana:  solanaClient,
		metrics: m,
		logger:  logger,
	}
}

// ClaimFees claims every identity's non-empty fee vaults. Per-vault
// failures are reported in the result rather than failing the activity,
// so the workflow continues to the sweep step regardless.
func (a *Activities) ClaimFees(ctx context.Context) (*ClaimFeesResult, error) {
	start := time.Now()
	defer func() {
		a.metrics.RecordActivityDuration("ClaimFees", time.Since(start).Seconds())
	}()

	claims, err := a.settler.ClaimAll(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "claim cycle failed", "error", err)
		return nil, fmt.Errorf("claim cycle failed: %w", err)
	}

	result := &ClaimFeesResult{Claims: claims, Attempted: len(claims)}
	for _, c := range claims {
		if c.Error != "" {
			result.Failed++
		}
	}

	a.logger.InfoContext(ctx, "claim cycle finished",
		"attempted", result.Attempted,
		"failed", result.Failed,
	)
	return result, nil
}

// SweepTreasury converts claimed assets held by the treasury into the
// settlement mint.
func (a *Activities) SweepTreasury(ctx context.Context) (*SweepTreasuryResult, error) {
	start := time.Now()
	defer func() {
		a.metrics.RecordActivityDuration("SweepTreasury", time.Since(start).Seconds())
	}()

	sweeps, err := a.settler.SweepAll(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "sweep cycle failed", "error", err)
		return nil, fmt.Errorf("sweep cycle failed: %w", err)
	}

	result := &SweepTreasuryResult{Sweeps: sweeps, Attempted: len(sweeps)}
	for _, s := range sweeps {
		if s.Error != "" {
			result.Failed++
		}
	}

	a.logger.InfoContext(ctx, "sweep cycle finished",
		"attempted", result.Attempted,
		"failed", result.Failed,
	)
	return result, nil
}

// RunPayouts disburses every referrer balance at or above the minimum.
func (a *Activities) RunPayouts(ctx context.Context) (*RunPayoutsResult, error) {
	start := time.Now()
	defer func() {
		a.metrics.RecordActivityDuration("RunPayouts", time.Since(start).Seconds())
	}()

	payouts, err := a.payer.RunPayouts(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "payout run failed", "error", err)
		return nil, fmt.Errorf("payout run failed: %w", err)
	}

	result := &RunPayoutsResult{Payouts: payouts, Attempted: len(payouts)}
	for _, p := range payouts {
		if p.Error != "" {
			result.Failed++
		}
	}

	a.logger.InfoContext(ctx, "payout run finished",
		"attempted", result.Attempted,
		"failed", result.Failed,
	)
	return result, nil
}

// CheckPayerBalance reads the settlement payer's SOL balance and flags
// it when it drops below the configured floor. Claims and payouts burn
// SOL on rent and fees, so a drained payer silently stalls settlement.
func (a *Activities) CheckPayerBalance(ctx context.Context, input CheckPayerBalanceInput) (*CheckPayerBalanceResult, error) {
	start := time.Now()
	defer func() {
		a.metrics.RecordActivityDuration("CheckPayerBalance", time.Since(start).Seconds())
	}()

	payer, err := solanago.PublicKeyFromBase58(input.PayerAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid payer address: %w", err)
	}

	lamports, err := a.solana.GetSOLBalance(ctx, payer)
	if err != nil {
		return nil, fmt.Errorf("failed to read payer balance: %w", err)
	}

	result := &CheckPayerBalanceResult{
		PayerAddress: input.PayerAddress,
		Lamports:     lamports,
		SOL:          float64(lamports) / float64(solanago.LAMPORTS_PER_SOL),
		Low:          lamports < input.MinLamports,
	}

	if result.Low {
		a.logger.WarnContext(ctx, "settlement payer balance is low",
			"payer", input.PayerAddress,
			"sol", result.SOL,
			"min_lamports", input.MinLamports,
		)
	} else {
		a.logger.DebugContext(ctx, "settlement payer balance ok",
			"payer", input.PayerAddress,
			"sol", result.SOL,
		)
	}
	return result, nil
}
