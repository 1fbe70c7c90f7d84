package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Payout statuses. A payout is created pending, then marked sent or
// failed after the transfer settles. Failed payouts stay owed; the
// pending balance query ignores them so the next run retries the amount.
const (
	PayoutStatusPending = "pending"
	PayoutStatusSent    = "sent"
	PayoutStatusFailed  = "failed"
)

// Payout is a single referrer disbursement attempt. AmountSettlement is
// the transfer amount in base units of the settlement asset, converted
// from AmountUSD at the price observed when the payout was created.
type Payout struct {
	ID               int64
	ReferrerWallet   string
	AmountUSD        float64
	AmountSettlement int64
	Status           string
	TxSignature      *string
	Error            *string
	CreatedAt        time.Time
	SentAt           *time.Time
}

const payoutColumns = `id, referrer_wallet, amount_usd, amount_settlement, status, tx_signature, error, created_at, sent_at`

func scanPayout(row pgx.Row) (*Payout, error) {
	var p Payout
	err := row.Scan(&p.ID, &p.ReferrerWallet, &p.AmountUSD, &p.AmountSettlement, &p.Status, &p.TxSignature, &p.Error, &p.CreatedAt, &p.SentAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePayout records a pending disbursement for a referrer.
// amountSettlement is the equivalent in settlement-asset base units.
func (s *Store) CreatePayout(ctx context.Context, referrerWallet string, amountUSD float64, amountSettlement int64) (*Payout, error) {
	if amountUSD <= 0 {
		return nil, fmt.Errorf("non-positive payout amount %v for %s", amountUSD, referrerWallet)
	}
	return scanPayout(s.pool.QueryRow(ctx, `
		INSERT INTO payouts (referrer_wallet, amount_usd, amount_settlement, status)
		VALUES ($1, $2, $3, $4)
		RETURNING `+payoutColumns,
		referrerWallet, amountUSD, amountSettlement, PayoutStatusPending))
}

// MarkPayoutSent records the settled transfer signature for a payout.
func (s *Store) MarkPayoutSent(ctx context.Context, id int64, txSignature string) (*Payout, error) {
	return scanPayout(s.pool.QueryRow(ctx, `
		UPDATE payouts
		   SET status = $2, tx_signature = $3, sent_at = now()
		 WHERE id = $1
		RETURNING `+payoutColumns,
		id, PayoutStatusSent, txSignature))
}

// MarkPayoutFailed records a failed disbursement attempt. The amount
// remains owed and will be picked up by the next pending balance query.
func (s *Store) MarkPayoutFailed(ctx context.Context, id int64, reason string) (*Payout, error) {
	return scanPayout(s.pool.QueryRow(ctx, `
		UPDATE payouts
		   SET status = $2, error = $3
		 WHERE id = $1
		RETURNING `+payoutColumns,
		id, PayoutStatusFailed, reason))
}

// ListPayoutsByReferrer lists a referrer's payouts, most recent first.
func (s *Store) ListPayoutsByReferrer(ctx context.Context, referrerWallet string, limit, offset int32) ([]*Payout, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+payoutColumns+`
		  FROM payouts
		 WHERE referrer_wallet = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		referrerWallet, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PendingPayout is a referrer balance owed but not yet disbursed.
type PendingPayout struct {
	ReferrerWallet string  `json:"referrer_wallet"`
	AmountUSD      float64 `json:"amount_usd"`
}

// ListPendingPayouts computes, per referrer, accrued earnings minus
// amounts already sent. Only sent payouts reduce the balance; pending
// rows do too, so a run in flight is not double-counted.
func (s *Store) ListPendingPayouts(ctx context.Context, minAmountUSD float64) ([]PendingPayout, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT earned.referrer_wallet,
		       earned.total - COALESCE(paid.total, 0) AS owed
		  FROM (
		       SELECT referrer_wallet, SUM(referrer_usd) AS total
		         FROM swaps
		        WHERE referrer_wallet IS NOT NULL
		        GROUP BY referrer_wallet
		  ) AS earned
		  LEFT JOIN (
		       SELECT referrer_wallet, SUM(amount_usd) AS total
		         FROM payouts
		        WHERE status IN ($2, $3)
		        GROUP BY referrer_wallet
		  ) AS paid ON paid.referrer_wallet = earned.referrer_wallet
		 WHERE earned.total - COALESCE(paid.total, 0) >= $1
		 ORDER BY owed DESC`,
		minAmountUSD, PayoutStatusSent, PayoutStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to compute pending payouts: %w", err)
	}
	defer rows.Close()

	var out []PendingPayout
	for rows.Next() {
		var p PendingPayout
		if err := rows.Scan(&p.ReferrerWallet, &p.AmountUSD); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
