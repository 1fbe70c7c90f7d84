package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/arbelos/rakeback/service/fees"
)

// Referral links a referee wallet to the referrer that recruited it.
// Each referee has at most one referrer, fixed at registration.
type Referral struct {
	ID             int64
	ReferrerWallet string
	RefereeWallet  string
	EarnedUSD      float64
	Capped         bool
	CappedAt       *time.Time
	LinkedAt       time.Time
}

const referralColumns = `id, referrer_wallet, referee_wallet, earned_usd, capped, capped_at, linked_at`

func scanReferral(row pgx.Row) (*Referral, error) {
	var r Referral
	err := row.Scan(&r.ID, &r.ReferrerWallet, &r.RefereeWallet, &r.EarnedUSD, &r.Capped, &r.CappedAt, &r.LinkedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// LinkReferral links a referee to a referrer. A referee that is already
// linked keeps its existing referrer; the call is a no-op, not an error.
func (s *Store) LinkReferral(ctx context.Context, referrerWallet, refereeWallet string) error {
	referrerWallet = strings.TrimSpace(referrerWallet)
	refereeWallet = strings.TrimSpace(refereeWallet)
	if NormalizeWallet(referrerWallet) == NormalizeWallet(refereeWallet) {
		return ErrSelfReferral
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO referrals (referrer_wallet, referee_wallet)
		VALUES ($1, $2)
		ON CONFLICT (referee_wallet) DO NOTHING`,
		referrerWallet, refereeWallet)
	if err != nil {
		return fmt.Errorf("failed to link referral: %w", err)
	}
	return nil
}

// GetReferralByReferee retrieves the referral link for a referee wallet.
func (s *Store) GetReferralByReferee(ctx context.Context, refereeWallet string) (*Referral, error) {
	return scanReferral(s.pool.QueryRow(ctx,
		`SELECT `+referralColumns+` FROM referrals WHERE LOWER(referee_wallet) = $1`, NormalizeWallet(refereeWallet)))
}

// ListReferralsByReferrer lists every referee a referrer has recruited.
func (s *Store) ListReferralsByReferrer(ctx context.Context, referrerWallet string) ([]*Referral, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+referralColumns+` FROM referrals WHERE referrer_wallet = $1 ORDER BY linked_at`,
		referrerWallet)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Referral
	for rows.Next() {
		r, err := scanReferral(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreditReferral atomically credits a referrer for a referee's trade,
// clamping the credit so lifetime earnings never exceed the cap. The
// returned amount is what was actually credited; the remainder past the
// cap boundary is forfeited. A missing or already-capped link credits
// nothing. The update and cap check happen in a single statement so
// concurrent trades by the same referee cannot overshoot the cap.
func (s *Store) CreditReferral(ctx context.Context, refereeWallet string, amountUSD float64) (credited float64, capped bool, err error) {
	if amountUSD <= 0 {
		return 0, false, nil
	}
	err = s.pool.QueryRow(ctx, `
		UPDATE referrals AS r
		   SET earned_usd = LEAST(r.earned_usd + $2, $3),
		       capped = r.earned_usd + $2 >= $3,
		       capped_at = CASE WHEN r.earned_usd + $2 >= $3 THEN now() ELSE r.capped_at END
		  FROM referrals AS prev
		 WHERE prev.id = r.id
		   AND LOWER(r.referee_wallet) = $1
		   AND NOT r.capped
		RETURNING r.earned_usd - prev.earned_usd, r.capped`,
		NormalizeWallet(refereeWallet), amountUSD, fees.ReferralCap).Scan(&credited, &capped)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to credit referral: %w", err)
	}
	return credited, capped, nil
}

// ReferralStats summarizes a referrer's recruiting performance.
type ReferralStats struct {
	WalletAddress string  `json:"wallet_address"`
	ReferralCode  string  `json:"referral_code"`
	RefereeCount  int64   `json:"referee_count"`
	CappedCount   int64   `json:"capped_count"`
	EarnedUSD     float64 `json:"earned_usd"`
	PaidUSD       float64 `json:"paid_usd"`
	PendingUSD    float64 `json:"pending_usd"`
}

// GetReferralStats aggregates a referrer's referee count, lifetime
// earnings, and how much of those earnings have been paid out.
func (s *Store) GetReferralStats(ctx context.Context, walletAddress string) (*ReferralStats, error) {
	// Resolve the wallet case-insensitively and aggregate with the
	// registered canonical address, not the caller's casing.
	user, err := s.GetUserByWallet(ctx, walletAddress)
	if err != nil {
		return nil, err
	}

	st := &ReferralStats{
		WalletAddress: user.WalletAddress,
		ReferralCode:  user.ReferralCode,
	}
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE capped),
		       COALESCE(SUM(earned_usd), 0)
		  FROM referrals
		 WHERE referrer_wallet = $1`,
		user.WalletAddress).Scan(&st.RefereeCount, &st.CappedCount, &st.EarnedUSD)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate referrals: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_usd), 0)
		  FROM payouts
		 WHERE referrer_wallet = $1 AND status = 'sent'`,
		user.WalletAddress).Scan(&st.PaidUSD)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate payouts: %w", err)
	}

	st.PendingUSD = st.EarnedUSD - st.PaidUSD
	if st.PendingUSD < 0 {
		st.PendingUSD = 0
	}
	return st, nil
}
