package nats

import (
	"time"

	"github.com/arbelos/rakeback/service/db"
)

// SwapEvent is published to "fees.swaps.{wallet_address}" whenever a
// swap is recorded and its fee split accrued.
type SwapEvent struct {
	TxSignature    string  `json:"tx_signature"`
	WalletAddress  string  `json:"wallet_address"`
	InputMint      string  `json:"input_mint"`
	OutputMint     string  `json:"output_mint"`
	VolumeUSD      float64 `json:"volume_usd"`
	GrossFeeUSD    float64 `json:"gross_fee_usd"`
	PlatformUSD    float64 `json:"platform_usd"`
	ReferrerUSD    float64 `json:"referrer_usd"`
	ReferrerWallet string  `json:"referrer_wallet,omitempty"`

	SwappedAt   time.Time `json:"swapped_at"`
	PublishedAt time.Time `json:"published_at"`
}

// FromDBSwap converts a recorded swap to a SwapEvent for publishing.
func FromDBSwap(sw *db.Swap) *SwapEvent {
	event := &SwapEvent{
		TxSignature:   sw.TxSignature,
		WalletAddress: sw.WalletAddress,
		InputMint:     sw.InputMint,
		OutputMint:    sw.OutputMint,
		VolumeUSD:     sw.VolumeUSD,
		GrossFeeUSD:   sw.GrossFeeUSD,
		PlatformUSD:   sw.PlatformUSD,
		ReferrerUSD:   sw.ReferrerUSD,
		SwappedAt:     sw.SwappedAt,
		PublishedAt:   time.Now().UTC(),
	}
	if sw.ReferrerWallet != nil {
		event.ReferrerWallet = *sw.ReferrerWallet
	}
	return event
}

// PayoutEvent is published to "fees.payouts.{referrer_wallet}" when a
// referrer disbursement settles or fails.
type PayoutEvent struct {
	PayoutID         int64   `json:"payout_id"`
	ReferrerWallet   string  `json:"referrer_wallet"`
	AmountUSD        float64 `json:"amount_usd"`
	AmountSettlement int64   `json:"amount_settlement,omitempty"`
	Status           string  `json:"status"`
	TxSignature      string  `json:"tx_signature,omitempty"`
	Error            string  `json:"error,omitempty"`

	PublishedAt time.Time `json:"published_at"`
}

// FromDBPayout converts a payout record to a PayoutEvent for publishing.
func FromDBPayout(p *db.Payout) *PayoutEvent {
	event := &PayoutEvent{
		PayoutID:         p.ID,
		ReferrerWallet:   p.ReferrerWallet,
		AmountUSD:        p.AmountUSD,
		AmountSettlement: p.AmountSettlement,
		Status:           p.Status,
		PublishedAt:      time.Now().UTC(),
	}
	if p.TxSignature != nil {
		event.TxSignature = *p.TxSignature
	}
	if p.Error != nil {
		event.Error = *p.Error
	}
	return event
}
