package settle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/arbelos/rakeback/service/jupiter"
	"github.com/arbelos/rakeback/service/metrics"
	solanasvc "github.com/arbelos/rakeback/service/solana"
)

// ErrNoAuthority is reported per item when settlement is not configured
// with a payer. Discovery still runs so operators can see what is
// claimable before wiring up an authority.
var ErrNoAuthority = errors.New("no settlement authority configured")

// Identity is one referral account the platform earns fees under.
// Jupiter issues separate referral accounts per product surface (e.g.
// ultra and trigger orders), so the orchestrator iterates all of them.
type Identity struct {
	Name            string
	ReferralAccount solana.PublicKey
}

// Config holds the settlement parameters.
type Config struct {
	Identities []Identity

	// Payer signs claims and pays rent for created accounts. A zero
	// payer disables execution; enumeration still works.
	Payer solana.PublicKey

	// ProjectAdmin is the referral project's admin account, required in
	// the claim account layout.
	ProjectAdmin solana.PublicKey

	// TreasuryWallet receives claimed partner fees and is the owner
	// swept during consolidation.
	TreasuryWallet solana.PublicKey

	// SettlementMint is the asset everything is swept into and payouts
	// are denominated in (USDC).
	SettlementMint solana.PublicKey

	// MinPayoutUSD filters dust balances out of payout runs.
	MinPayoutUSD float64
}

// Reader is the slice of the on-chain client the orchestrator needs.
type Reader interface {
	ListTokenAccounts(ctx context.Context, owner solana.PublicKey) ([]solanasvc.TokenAccount, error)
	GetReferralAccount(ctx context.Context, address solana.PublicKey) (*jupiter.ReferralAccount, error)
}

// Orchestrator drives the claim, sweep, and payout cycles. All state it
// acts on is re-read from chain or the database each run; nothing is
// cached between cycles.
type Orchestrator struct {
	cfg     Config
	reader  Reader
	exec    Executor
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewOrchestrator wires the settlement orchestrator. exec may be nil
// when running in enumerate-only mode; every execution step then fails
// per item with ErrNoAuthority.
func NewOrchestrator(cfg Config, reader Reader, exec Executor, m *metrics.Metrics, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		reader:  reader,
		exec:    exec,
		logger:  logger,
		metrics: m,
	}
}

func (o *Orchestrator) canExecute() bool {
	return o.exec != nil && !o.cfg.Payer.IsZero()
}

// ClaimResult is the outcome of one vault claim attempt.
type ClaimResult struct {
	Identity  string  `json:"identity"`
	Vault     string  `json:"vault"`
	Mint      string  `json:"mint"`
	Layout    string  `json:"layout"`
	UIAmount  float64 `json:"ui_amount"`
	Signature string  `json:"signature,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// ClaimAll enumerates every identity's fee vaults and claims each
// non-empty one. Failures are recorded per vault; one stuck vault never
// blocks the rest of the run.
func (o *Orchestrator) ClaimAll(ctx context.Context) ([]ClaimResult, error) {
	start := time.Now()
	defer func() {
		o.metrics.RecordSettlementRun("claim", time.Since(start).Seconds())
	}()

	var results []ClaimResult
	for _, id := range o.cfg.Identities {
		res, err := o.claimIdentity(ctx, id)
		if err != nil {
			// Identity-level failures (referral account unreadable) are
			// reported as a single result so the run summary shows them.
			results = append(results, ClaimResult{Identity: id.Name, Error: err.Error()})
			o.metrics.RecordClaim(id.Name, "error")
			continue
		}
		results = append(results, res...)
	}
	return results, nil
}

func (o *Orchestrator) claimIdentity(ctx context.Context, id Identity) ([]ClaimResult, error) {
	refState, err := o.reader.GetReferralAccount(ctx, id.ReferralAccount)
	if err != nil {
		return nil, fmt.Errorf("failed to read referral account for %s: %w", id.Name, err)
	}

	vaults, err := o.reader.ListTokenAccounts(ctx, id.ReferralAccount)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate vaults for %s: %w", id.Name, err)
	}

	var results []ClaimResult
	for _, vault := range vaults {
		if vault.IsEmpty() {
			continue
		}
		results = append(results, o.claimVault(ctx, id, refState, vault))
	}

	o.logger.InfoContext(ctx, "claim cycle finished for identity",
		"identity", id.Name,
		"vaults_seen", len(vaults),
		"claims_attempted", len(results),
	)
	return results, nil
}

func (o *Orchestrator) claimVault(ctx context.Context, id Identity, refState *jupiter.ReferralAccount, vault solanasvc.TokenAccount) ClaimResult {
	result := ClaimResult{
		Identity: id.Name,
		Vault:    vault.Address.String(),
		Mint:     vault.Mint.String(),
		UIAmount: vault.UIAmount,
	}

	layout, err := jupiter.ResolveVaultLayout(id.ReferralAccount, vault.Mint, vault.TokenProgram, vault.Address)
	if err != nil {
		result.Error = err.Error()
		o.metrics.RecordClaim(id.Name, "unrecognized")
		return result
	}
	result.Layout = layout.String()

	if !o.canExecute() {
		result.Error = ErrNoAuthority.Error()
		o.metrics.RecordClaim(id.Name, "skipped")
		return result
	}

	adminATA, err := jupiter.AssociatedTokenAddress(o.cfg.ProjectAdmin, vault.Mint, vault.TokenProgram)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	partnerATA, err := jupiter.AssociatedTokenAddress(refState.Partner, vault.Mint, vault.TokenProgram)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	ix, err := jupiter.BuildClaimForLayout(layout, jupiter.ClaimParams{
		Payer:                    o.cfg.Payer,
		Project:                  refState.Project,
		Admin:                    o.cfg.ProjectAdmin,
		ProjectAdminTokenAccount: adminATA,
		ReferralAccount:          id.ReferralAccount,
		ReferralTokenAccount:     vault.Address,
		Partner:                  refState.Partner,
		PartnerTokenAccount:      partnerATA,
		Mint:                     vault.Mint,
		TokenProgram:             vault.TokenProgram,
	})
	if err != nil {
		result.Error = err.Error()
		o.metrics.RecordClaim(id.Name, "error")
		return result
	}

	sig, err := o.exec.Submit(ctx, ix)
	if err != nil {
		result.Error = err.Error()
		o.metrics.RecordClaim(id.Name, "error")
		o.logger.ErrorContext(ctx, "claim failed",
			"identity", id.Name,
			"vault", result.Vault,
			"error", err,
		)
		return result
	}

	result.Signature = sig
	o.metrics.RecordClaim(id.Name, "success")
	o.metrics.RecordClaimedAmount(id.Name, result.Mint, vault.UIAmount)
	o.logger.InfoContext(ctx, "claimed fee vault",
		"identity", id.Name,
		"vault", result.Vault,
		"mint", result.Mint,
		"layout", result.Layout,
		"ui_amount", vault.UIAmount,
		"signature", sig,
	)
	return result
}

// SweepResult is the outcome of one sweep swap attempt.
type SweepResult struct {
	Mint         string  `json:"mint"`
	Amount       uint64  `json:"amount"`
	UIAmount     float64 `json:"ui_amount"`
	OutputAmount uint64  `json:"output_amount,omitempty"`
	Signature    string  `json:"signature,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// SweepAll swaps every non-settlement asset held by the treasury into
// the settlement mint. Each asset is one attempt; failures are recorded
// and skipped.
func (o *Orchestrator) SweepAll(ctx context.Context) ([]SweepResult, error) {
	start := time.Now()
	defer func() {
		o.metrics.RecordSettlementRun("sweep", time.Since(start).Seconds())
	}()

	holdings, err := o.reader.ListTokenAccounts(ctx, o.cfg.TreasuryWallet)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate treasury holdings: %w", err)
	}

	var results []SweepResult
	for _, h := range holdings {
		if h.IsEmpty() || h.Mint.Equals(o.cfg.SettlementMint) {
			continue
		}

		result := SweepResult{
			Mint:     h.Mint.String(),
			Amount:   h.Amount,
			UIAmount: h.UIAmount,
		}
		if !o.canExecute() {
			result.Error = ErrNoAuthority.Error()
			o.metrics.RecordSweep("treasury", "skipped")
			results = append(results, result)
			continue
		}

		outcome, err := o.exec.Swap(ctx, h.Mint, o.cfg.SettlementMint, h.Amount)
		if err != nil {
			result.Error = err.Error()
			o.metrics.RecordSweep("treasury", "error")
			o.logger.ErrorContext(ctx, "sweep swap failed",
				"mint", result.Mint,
				"amount", h.Amount,
				"error", err,
			)
			results = append(results, result)
			continue
		}

		result.OutputAmount = outcome.OutputAmount
		result.Signature = outcome.Signature
		o.metrics.RecordSweep("treasury", "success")
		o.logger.InfoContext(ctx, "swept asset into settlement mint",
			"mint", result.Mint,
			"amount", h.Amount,
			"output_amount", outcome.OutputAmount,
			"signature", outcome.Signature,
		)
		results = append(results, result)
	}
	return results, nil
}
