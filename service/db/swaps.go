package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/arbelos/rakeback/service/fees"
)

// Swap is a recorded trade with its fee breakdown at accrual time.
type Swap struct {
	ID             int64
	TxSignature    string
	WalletAddress  string
	InputMint      string
	OutputMint     string
	VolumeUSD      float64
	GrossFeeUSD    float64
	JupiterUSD     float64
	PlatformUSD    float64
	ReferrerUSD    float64
	ReferrerWallet *string
	SwappedAt      time.Time
	CreatedAt      time.Time
}

const swapColumns = `id, tx_signature, wallet_address, input_mint, output_mint, volume_usd,
	gross_fee_usd, jupiter_usd, platform_usd, referrer_usd, referrer_wallet, swapped_at, created_at`

func scanSwap(row pgx.Row) (*Swap, error) {
	var sw Swap
	err := row.Scan(&sw.ID, &sw.TxSignature, &sw.WalletAddress, &sw.InputMint, &sw.OutputMint,
		&sw.VolumeUSD, &sw.GrossFeeUSD, &sw.JupiterUSD, &sw.PlatformUSD, &sw.ReferrerUSD,
		&sw.ReferrerWallet, &sw.SwappedAt, &sw.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sw, nil
}

// RecordSwapParams describes a swap observed on chain.
type RecordSwapParams struct {
	TxSignature   string
	WalletAddress string
	InputMint     string
	OutputMint    string
	VolumeUSD     float64
	SwappedAt     time.Time
}

// RecordSwap records a swap and accrues its fee split in one transaction.
// It is idempotent on transaction signature: a replayed delivery returns
// ErrDuplicateSwap with no side effects. Swaps by wallets with no user
// account return ErrUnknownWallet and accrue nothing.
//
// The referee's referral link is locked for the duration so the referrer
// credit and cap check cannot race a concurrent trade by the same
// referee. Credit past the lifetime cap is clamped and the excess
// forfeited; it is not reassigned to the platform.
func (s *Store) RecordSwap(ctx context.Context, params RecordSwapParams) (*Swap, error) {
	if params.VolumeUSD <= 0 {
		return nil, fmt.Errorf("non-positive volume %v for tx %s", params.VolumeUSD, params.TxSignature)
	}

	// Cheap pre-check so replays do not take row locks. The ON CONFLICT
	// below is the authoritative guard.
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM swaps WHERE tx_signature = $1)`, params.TxSignature).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateSwap
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Resolve the wallet case-insensitively and use the registered
	// canonical address for every row written below.
	var userID int64
	err = tx.QueryRow(ctx,
		`SELECT id, wallet_address FROM users WHERE LOWER(wallet_address) = $1`,
		NormalizeWallet(params.WalletAddress)).Scan(&userID, &params.WalletAddress)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownWallet
	}
	if err != nil {
		return nil, err
	}

	var (
		referrerWallet *string
		earned         float64
		capped         bool
	)
	err = tx.QueryRow(ctx, `
		SELECT referrer_wallet, earned_usd, capped
		  FROM referrals
		 WHERE referee_wallet = $1
		   FOR UPDATE`,
		params.WalletAddress).Scan(&referrerWallet, &earned, &capped)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	hasReferrer := referrerWallet != nil

	split := fees.CalculateSplit(params.VolumeUSD, hasReferrer, capped)

	credited := split.Referrer
	if hasReferrer && !capped && credited > 0 {
		headroom := fees.ReferralCap - earned
		if credited > headroom {
			credited = headroom
		}
		_, err = tx.Exec(ctx, `
			UPDATE referrals
			   SET earned_usd = earned_usd + $2,
			       capped = earned_usd + $2 >= $3,
			       capped_at = CASE WHEN earned_usd + $2 >= $3 THEN now() ELSE capped_at END
			 WHERE referee_wallet = $1`,
			params.WalletAddress, credited, fees.ReferralCap)
		if err != nil {
			return nil, fmt.Errorf("failed to credit referral: %w", err)
		}
	}

	var swapReferrer *string
	if hasReferrer && !capped {
		swapReferrer = referrerWallet
	}
	sw, err := scanSwap(tx.QueryRow(ctx, `
		INSERT INTO swaps (tx_signature, wallet_address, input_mint, output_mint, volume_usd,
			gross_fee_usd, jupiter_usd, platform_usd, referrer_usd, referrer_wallet, swapped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tx_signature) DO NOTHING
		RETURNING `+swapColumns,
		params.TxSignature, params.WalletAddress, params.InputMint, params.OutputMint,
		params.VolumeUSD, split.GrossFee, split.Jupiter, split.Platform, credited,
		swapReferrer, params.SwappedAt))
	if errors.Is(err, ErrNotFound) {
		// A concurrent delivery inserted the row first.
		return nil, ErrDuplicateSwap
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert swap: %w", err)
	}

	if err := s.accrueVolume(ctx, tx, params.WalletAddress, params.VolumeUSD, params.SwappedAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return sw, nil
}

// accrueVolume bumps the user's lifetime and daily volume counters and
// recomputes the rolling 30 day window from the daily buckets.
func (s *Store) accrueVolume(ctx context.Context, tx pgx.Tx, walletAddress string, volumeUSD float64, tradedAt time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO daily_volumes (wallet_address, day, volume_usd)
		VALUES ($1, $2::date, $3)
		ON CONFLICT (wallet_address, day)
		DO UPDATE SET volume_usd = daily_volumes.volume_usd + EXCLUDED.volume_usd`,
		walletAddress, tradedAt, volumeUSD)
	if err != nil {
		return fmt.Errorf("failed to upsert daily volume: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE users
		   SET lifetime_volume_usd = lifetime_volume_usd + $2,
		       last_trade_at = GREATEST(COALESCE(last_trade_at, $3), $3),
		       volume_30d_usd = (
		           SELECT COALESCE(SUM(volume_usd), 0)
		             FROM daily_volumes
		            WHERE wallet_address = $1
		              AND day > (now() - INTERVAL '30 days')::date
		       )
		 WHERE wallet_address = $1`,
		walletAddress, volumeUSD, tradedAt)
	if err != nil {
		return fmt.Errorf("failed to update user volume: %w", err)
	}
	return nil
}

// GetSwapBySignature retrieves a recorded swap by transaction signature.
func (s *Store) GetSwapBySignature(ctx context.Context, txSignature string) (*Swap, error) {
	return scanSwap(s.pool.QueryRow(ctx,
		`SELECT `+swapColumns+` FROM swaps WHERE tx_signature = $1`, txSignature))
}

// ListSwapsByWallet lists a wallet's swaps, most recent first.
func (s *Store) ListSwapsByWallet(ctx context.Context, walletAddress string, limit, offset int32) ([]*Swap, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+swapColumns+`
		  FROM swaps
		 WHERE wallet_address = $1
		 ORDER BY swapped_at DESC
		 LIMIT $2 OFFSET $3`,
		walletAddress, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Swap
	for rows.Next() {
		sw, err := scanSwap(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sw)
	}
	return out, rows.Err()
}

// PlatformStats summarizes accrual across every recorded swap.
type PlatformStats struct {
	UserCount      int64   `json:"user_count"`
	SwapCount      int64   `json:"swap_count"`
	TotalVolumeUSD float64 `json:"total_volume_usd"`
	GrossFeesUSD   float64 `json:"gross_fees_usd"`
	PlatformUSD    float64 `json:"platform_usd"`
	ReferrerUSD    float64 `json:"referrer_usd"`
}

// GetPlatformStats aggregates platform-wide volume and fee totals.
func (s *Store) GetPlatformStats(ctx context.Context) (*PlatformStats, error) {
	var st PlatformStats
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(volume_usd), 0),
		       COALESCE(SUM(gross_fee_usd), 0),
		       COALESCE(SUM(platform_usd), 0),
		       COALESCE(SUM(referrer_usd), 0)
		  FROM swaps`).
		Scan(&st.SwapCount, &st.TotalVolumeUSD, &st.GrossFeesUSD, &st.PlatformUSD, &st.ReferrerUSD)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate swaps: %w", err)
	}
	st.UserCount, err = s.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	return &st, nil
}
