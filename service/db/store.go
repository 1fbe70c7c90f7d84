package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arbelos/rakeback/service/fees"
)

// Sentinel errors for conditions callers are expected to branch on.
var (
	// ErrNotFound is returned when a lookup matches no rows.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateSwap is returned when a swap with the same transaction
	// signature has already been recorded. Replayed webhook deliveries
	// surface as this error and must be treated as a no-op.
	ErrDuplicateSwap = errors.New("swap already recorded")

	// ErrUnknownWallet is returned when a swap's fee payer has no user
	// account. These swaps are dropped without accrual.
	ErrUnknownWallet = errors.New("wallet not registered")

	// ErrSelfReferral is returned when a wallet tries to use its own
	// referral code.
	ErrSelfReferral = errors.New("cannot refer yourself")
)

// NormalizeWallet canonicalizes a wallet address for comparison. Wallet
// identity is case-insensitive: the trade feed lower-cases addresses it
// extracts, so every lookup compares lower-cased. Storage keeps the
// address exactly as registered, since a lower-cased base58 string is a
// different on-chain address and payouts must go to the real one.
func NormalizeWallet(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Store provides database operations for the service.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying connection pool for health checks.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// User is a registered trading wallet.
type User struct {
	ID                int64
	WalletAddress     string
	ReferralCode      string
	LifetimeVolumeUSD float64
	Volume30dUSD      float64
	LastTradeAt       *time.Time
	CreatedAt         time.Time
}

const userColumns = `id, wallet_address, referral_code, lifetime_volume_usd, volume_30d_usd, last_trade_at, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.WalletAddress, &u.ReferralCode, &u.LifetimeVolumeUSD, &u.Volume30dUSD, &u.LastTradeAt, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// codeInsertAttempts bounds retries when a generated referral code collides
// with an existing one. At 36^8 codes a single retry is already rare.
const codeInsertAttempts = 5

// CreateUser registers a wallet and assigns it a fresh referral code. If
// referredByCode is non-nil the new user is linked to the code's owner;
// an unknown or self-owned code fails the registration. Registering an
// already-known wallet returns the existing user unchanged.
func (s *Store) CreateUser(ctx context.Context, walletAddress string, referredByCode *string) (*User, error) {
	walletAddress = strings.TrimSpace(walletAddress)
	if existing, err := s.GetUserByWallet(ctx, walletAddress); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	var referrer *User
	if referredByCode != nil && *referredByCode != "" {
		var err error
		referrer, err = s.GetUserByReferralCode(ctx, *referredByCode)
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("referral code %q: %w", *referredByCode, ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
		if referrer.WalletAddress == walletAddress {
			return nil, ErrSelfReferral
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var user *User
	for attempt := 0; attempt < codeInsertAttempts; attempt++ {
		code := fees.GenerateReferralCode()
		user, err = scanUser(tx.QueryRow(ctx, `
			INSERT INTO users (wallet_address, referral_code)
			VALUES ($1, $2)
			ON CONFLICT (referral_code) DO NOTHING
			RETURNING `+userColumns,
			walletAddress, code))
		if err == nil {
			break
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("failed to insert user: %w", err)
		}
	}
	if user == nil {
		return nil, fmt.Errorf("failed to generate a unique referral code after %d attempts", codeInsertAttempts)
	}

	if referrer != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO referrals (referrer_wallet, referee_wallet)
			VALUES ($1, $2)
			ON CONFLICT (referee_wallet) DO NOTHING`,
			referrer.WalletAddress, walletAddress)
		if err != nil {
			return nil, fmt.Errorf("failed to link referral: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return user, nil
}

// GetUserByWallet retrieves a user by wallet address.
func (s *Store) GetUserByWallet(ctx context.Context, walletAddress string) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(wallet_address) = $1`, NormalizeWallet(walletAddress)))
}

// GetUserByReferralCode retrieves the owner of a referral code.
func (s *Store) GetUserByReferralCode(ctx context.Context, code string) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE referral_code = $1`, code))
}

// CountUsers returns the total number of registered users.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}
