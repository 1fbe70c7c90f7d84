package settle

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/arbelos/rakeback/service/db"
	"github.com/arbelos/rakeback/service/nats"
	"github.com/arbelos/rakeback/service/prices"
)

// PayoutStore is the slice of the database layer payout runs need.
type PayoutStore interface {
	ListPendingPayouts(ctx context.Context, minAmountUSD float64) ([]db.PendingPayout, error)
	CreatePayout(ctx context.Context, referrerWallet string, amountUSD float64, amountSettlement int64) (*db.Payout, error)
	MarkPayoutSent(ctx context.Context, id int64, txSignature string) (*db.Payout, error)
	MarkPayoutFailed(ctx context.Context, id int64, reason string) (*db.Payout, error)
}

// Pricer resolves the settlement asset's USD price.
type Pricer interface {
	GetPriceUSD(ctx context.Context, mint string) (float64, error)
}

// Payer disburses accrued referrer earnings. Separate from the
// Orchestrator because it touches the database, which claim and sweep
// cycles never do.
type Payer struct {
	orch      *Orchestrator
	store     PayoutStore
	prices    Pricer
	publisher nats.Publisher
}

// NewPayer wires the payout runner. publisher may be nil.
func NewPayer(orch *Orchestrator, store PayoutStore, pricer Pricer, publisher nats.Publisher) *Payer {
	return &Payer{
		orch:      orch,
		store:     store,
		prices:    pricer,
		publisher: publisher,
	}
}

// PayoutResult is the outcome of one referrer disbursement attempt.
type PayoutResult struct {
	PayoutID         int64   `json:"payout_id,omitempty"`
	ReferrerWallet   string  `json:"referrer_wallet"`
	AmountUSD        float64 `json:"amount_usd"`
	AmountSettlement uint64  `json:"amount_settlement,omitempty"`
	Signature        string  `json:"signature,omitempty"`
	Error            string  `json:"error,omitempty"`
}

// settlementDecimals returns the decimal scale of the settlement mint.
func (p *Payer) settlementDecimals() int {
	if d, ok := prices.KnownDecimals[p.orch.cfg.SettlementMint.String()]; ok {
		return int(d)
	}
	return 6
}

// RunPayouts disburses every referrer balance at or above the minimum.
// Each referrer is one attempt with its own audit row; a failed
// transfer marks the row failed and the amount stays owed for the next
// run.
func (p *Payer) RunPayouts(ctx context.Context) ([]PayoutResult, error) {
	o := p.orch
	start := time.Now()
	defer func() {
		o.metrics.RecordSettlementRun("payout", time.Since(start).Seconds())
	}()

	pending, err := p.store.ListPendingPayouts(ctx, o.cfg.MinPayoutUSD)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payouts: %w", err)
	}
	if len(pending) == 0 {
		o.logger.InfoContext(ctx, "no payouts pending")
		return nil, nil
	}

	price, err := p.prices.GetPriceUSD(ctx, o.cfg.SettlementMint.String())
	if err != nil {
		return nil, fmt.Errorf("cannot denominate payouts, settlement asset price unavailable: %w", err)
	}
	scale := math.Pow10(p.settlementDecimals())

	results := make([]PayoutResult, 0, len(pending))
	for _, owed := range pending {
		result := PayoutResult{
			ReferrerWallet: owed.ReferrerWallet,
			AmountUSD:      owed.AmountUSD,
		}

		result.AmountSettlement = uint64(owed.AmountUSD / price * scale)

		payout, err := p.store.CreatePayout(ctx, owed.ReferrerWallet, owed.AmountUSD, int64(result.AmountSettlement))
		if err != nil {
			result.Error = err.Error()
			o.metrics.RecordPayout("error", owed.AmountUSD)
			results = append(results, result)
			continue
		}
		result.PayoutID = payout.ID

		result = p.disburse(ctx, payout, result)
		results = append(results, result)
	}
	return results, nil
}

func (p *Payer) disburse(ctx context.Context, payout *db.Payout, result PayoutResult) PayoutResult {
	o := p.orch

	fail := func(reason string) PayoutResult {
		result.Error = reason
		failed, err := p.store.MarkPayoutFailed(ctx, payout.ID, reason)
		if err != nil {
			o.logger.ErrorContext(ctx, "failed to mark payout failed",
				"payout_id", payout.ID,
				"error", err,
			)
			return result
		}
		o.metrics.RecordPayout("failed", payout.AmountUSD)
		p.publish(ctx, failed)
		return result
	}

	if !o.canExecute() {
		return fail(ErrNoAuthority.Error())
	}

	dest, err := solana.PublicKeyFromBase58(payout.ReferrerWallet)
	if err != nil {
		return fail(fmt.Sprintf("invalid referrer wallet %q: %v", payout.ReferrerWallet, err))
	}

	sig, err := o.exec.Transfer(ctx, dest, o.cfg.SettlementMint, result.AmountSettlement)
	if err != nil {
		return fail(err.Error())
	}

	sent, err := p.store.MarkPayoutSent(ctx, payout.ID, sig)
	if err != nil {
		// The transfer settled; surface the bookkeeping failure loudly
		// since the next run would otherwise pay again.
		o.logger.ErrorContext(ctx, "payout sent but not recorded",
			"payout_id", payout.ID,
			"signature", sig,
			"error", err,
		)
		result.Error = fmt.Sprintf("sent as %s but not recorded: %v", sig, err)
		return result
	}

	result.Signature = sig
	o.metrics.RecordPayout("sent", payout.AmountUSD)
	p.publish(ctx, sent)
	o.logger.InfoContext(ctx, "paid referrer",
		"payout_id", payout.ID,
		"referrer", payout.ReferrerWallet,
		"amount_usd", payout.AmountUSD,
		"signature", sig,
	)
	return result
}

func (p *Payer) publish(ctx context.Context, payout *db.Payout) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishPayout(ctx, nats.FromDBPayout(payout)); err != nil {
		p.orch.logger.ErrorContext(ctx, "failed to publish payout event",
			"payout_id", payout.ID,
			"error", err,
		)
	}
}
