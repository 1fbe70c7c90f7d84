package feed

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/arbelos/rakeback/service/db"
	"github.com/arbelos/rakeback/service/metrics"
	"github.com/arbelos/rakeback/service/nats"
	"github.com/arbelos/rakeback/service/prices"
)

// SwapStore is the slice of the database layer the processor needs.
type SwapStore interface {
	RecordSwap(ctx context.Context, params db.RecordSwapParams) (*db.Swap, error)
}

// Pricer resolves token prices for volume valuation.
type Pricer interface {
	GetPriceUSD(ctx context.Context, mint string) (float64, error)
}

// Processor turns webhook trade deliveries into ledger entries. Each
// delivery may carry several transactions; non-swaps, foreign fee
// payers, and unknown wallets are skipped without error.
type Processor struct {
	store     SwapStore
	prices    Pricer
	publisher nats.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	feePayer  string // lower-cased; empty disables the fee-payer filter
}

// NewProcessor creates a feed processor. feePayer is the platform's
// transaction fee payer; deliveries with a different fee payer are not
// our swaps and are ignored. publisher and m may be nil.
func NewProcessor(store SwapStore, pricer Pricer, publisher nats.Publisher, m *metrics.Metrics, feePayer string, logger *slog.Logger) *Processor {
	return &Processor{
		store:     store,
		prices:    pricer,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		feePayer:  strings.ToLower(feePayer),
	}
}

// ProcessWebhook processes every transaction in a delivery and returns
// how many were recorded. Individual failures are logged and skipped so
// one bad transaction does not poison the batch.
func (p *Processor) ProcessWebhook(ctx context.Context, txs []Transaction) int {
	recorded := 0
	for i := range txs {
		ok, err := p.ProcessTransaction(ctx, &txs[i])
		if err != nil {
			p.logger.ErrorContext(ctx, "failed to process swap",
				"signature", txs[i].Signature,
				"error", err,
			)
			continue
		}
		if ok {
			recorded++
		}
	}
	return recorded
}

// ProcessTransaction records a single swap delivery. It returns false
// with a nil error for deliveries that are deliberately ignored:
// non-swap types, foreign fee payers, unidentifiable or unregistered
// wallets, unpriceable volume, and replays.
func (p *Processor) ProcessTransaction(ctx context.Context, tx *Transaction) (bool, error) {
	if !strings.EqualFold(tx.Type, "SWAP") {
		return false, nil
	}
	if p.feePayer != "" && strings.ToLower(tx.FeePayer) != p.feePayer {
		return false, nil
	}

	wallet := FindUserWallet(tx, p.feePayer)
	if wallet == "" {
		p.logger.DebugContext(ctx, "no user wallet in swap", "signature", tx.Signature)
		return false, nil
	}

	details := ExtractSwapDetails(tx, wallet)
	volume := p.volumeUSD(ctx, details)
	if volume <= 0 {
		p.logger.WarnContext(ctx, "could not value swap, skipping",
			"signature", tx.Signature,
			"input_mint", details.InputMint,
			"output_mint", details.OutputMint,
		)
		p.metrics.RecordSwapOutcome("unpriced")
		return false, nil
	}

	swappedAt := time.Now().UTC()
	if tx.Timestamp > 0 {
		swappedAt = time.Unix(tx.Timestamp, 0).UTC()
	}

	sw, err := p.store.RecordSwap(ctx, db.RecordSwapParams{
		TxSignature:   tx.Signature,
		WalletAddress: wallet,
		InputMint:     details.InputMint,
		OutputMint:    details.OutputMint,
		VolumeUSD:     volume,
		SwappedAt:     swappedAt,
	})
	switch {
	case errors.Is(err, db.ErrDuplicateSwap):
		p.metrics.RecordSwapOutcome("duplicate")
		return false, nil
	case errors.Is(err, db.ErrUnknownWallet):
		p.logger.DebugContext(ctx, "swap from unregistered wallet",
			"signature", tx.Signature,
			"wallet", wallet,
		)
		p.metrics.RecordSwapOutcome("unknown_wallet")
		return false, nil
	case err != nil:
		p.metrics.RecordSwapOutcome("error")
		return false, err
	}

	p.metrics.RecordSwapOutcome("recorded")
	p.metrics.RecordSwapAccrual(sw.VolumeUSD, sw.JupiterUSD, sw.PlatformUSD, sw.ReferrerUSD)

	if p.publisher != nil {
		if err := p.publisher.PublishSwap(ctx, nats.FromDBSwap(sw)); err != nil {
			// The ledger entry is committed; a publish failure must not
			// fail the webhook or the sender will redeliver.
			p.logger.ErrorContext(ctx, "failed to publish swap event",
				"signature", sw.TxSignature,
				"error", err,
			)
		}
	}

	p.logger.InfoContext(ctx, "recorded swap",
		"signature", sw.TxSignature,
		"wallet", sw.WalletAddress,
		"volume_usd", sw.VolumeUSD,
		"gross_fee_usd", sw.GrossFeeUSD,
	)
	return true, nil
}

// volumeUSD values the swap as the larger of the two legs' USD values.
// Legs whose price is unavailable contribute nothing; if neither leg
// can be valued the result is zero and the swap is skipped.
func (p *Processor) volumeUSD(ctx context.Context, d SwapDetails) float64 {
	in := p.legValueUSD(ctx, d.InputMint, d.InputAmount)
	out := p.legValueUSD(ctx, d.OutputMint, d.OutputAmount)
	return math.Max(in, out)
}

// defaultDecimals is assumed for mints missing from the known table.
const defaultDecimals = 9

func (p *Processor) legValueUSD(ctx context.Context, mint string, amount float64) float64 {
	if mint == "" || amount <= 0 {
		return 0
	}

	decimals := defaultDecimals
	if d, ok := prices.KnownDecimals[mint]; ok {
		decimals = int(d)
	}
	// Swap-event legs are raw base units; token-transfer fallback legs
	// are already UI units. Anything at or above one whole raw unit of
	// the mint is treated as raw.
	ui := amount
	if threshold := math.Pow10(decimals); amount >= threshold {
		ui = amount / threshold
	}

	price, err := p.prices.GetPriceUSD(ctx, mint)
	if err != nil {
		p.logger.DebugContext(ctx, "price unavailable", "mint", mint, "error", err)
		return 0
	}
	return ui * price
}
