package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbelos/rakeback/service/fees"
)

func newCleanStore(t *testing.T) *TestStore {
	t.Helper()
	SkipIfNoTestDB(t)

	ts := NewTestStore(t)
	t.Cleanup(ts.Close)
	ts.Cleanup(t)
	return ts
}

func TestCreateUser(t *testing.T) {
	ts := newCleanStore(t)
	ctx := context.Background()

	user, err := ts.CreateUser(ctx, "wallet-alice", nil)
	require.NoError(t, err)
	assert.Equal(t, "wallet-alice", user.WalletAddress)
	assert.Len(t, user.ReferralCode, fees.CodeLength)
	assert.Nil(t, user.LastTradeAt)

	// Re-registering the same wallet returns the existing user.
	again, err := ts.CreateUser(ctx, "wallet-alice", nil)
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
	assert.Equal(t, user.ReferralCode, again.ReferralCode)
}

func TestCreateUser_WithReferralCode(t *testing.T) {
	ts := newCleanStore(t)
	ctx := context.Background()

	referrer, err := ts.CreateUser(ctx, "wallet-referrer", nil)
	require.NoError(t, err)

	referee, err := ts.CreateUser(ctx, "wallet-referee", &referrer.ReferralCode)
	require.NoError(t, err)

	link, err := ts.GetReferralByReferee(ctx, referee.WalletAddress)
	require.NoError(t, err)
	assert.Equal(t, referrer.WalletAddress, link.ReferrerWallet)
	assert.False(t, link.Capped)
	assert.Zero(t, link.EarnedUSD)

	// Unknown codes fail registration.
	bad := "NOPE0000"
	_, err = ts.CreateUser(ctx, "wallet-other", &bad)
	assert.ErrorIs(t, err, ErrNotFound)

	// A wallet cannot use its own code.
	_, err = ts.CreateUser(ctx, referrer.WalletAddress, &referrer.ReferralCode)
	require.NoError(t, err) // already registered, returns existing user
	_, err = ts.CreateUser(ctx, "wallet-self", nil)
	require.NoError(t, err)
	selfUser, err := ts.GetUserByWallet(ctx, "wallet-self")
	require.NoError(t, err)
	err = ts.LinkReferral(ctx, selfUser.WalletAddress, selfUser.WalletAddress)
	assert.ErrorIs(t, err, ErrSelfReferral)
}

func TestLinkReferral_FirstLinkWins(t *testing.T) {
	ts := newCleanStore(t)
	ctx := context.Background()

	require.NoError(t, ts.LinkReferral(ctx, "wallet-a", "wallet-referee"))
	require.NoError(t, ts.LinkReferral(ctx, "wallet-b", "wallet-referee"))

	link, err := ts.GetReferralByReferee(ctx, "wallet-referee")
	require.NoError(t, err)
	assert.Equal(t, "wallet-a", link.ReferrerWallet)
}

func recordTestSwap(t *testing.T, ts *TestStore, wallet, sig string, volume float64) *Swap {
	t.Helper()
	sw, err := ts.RecordSwap(context.Background(), RecordSwapParams{
		TxSignature:   sig,
		WalletAddress: wallet,
		InputMint:     "So11111111111111111111111111111111111111112",
		OutputMint:    "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		VolumeUSD:     volume,
		SwappedAt:     time.Now().UTC(),
	})
	require.NoError(t, err)
	return sw
}

func TestRecordSwap_NoReferrer(t *testing.T) {
	ts := newCleanStore(t)
	ctx := context.Background()

	_, err := ts.CreateUser(ctx, "wallet-trader", nil)
	require.NoError(t, err)

	sw := recordTestSwap(t, ts, "wallet-trader", "sig-1", 1000)
	assert.InDelta(t, 5.00, sw.GrossFeeUSD, 1e-9)
	assert.InDelta(t, 1.00, sw.JupiterUSD, 1e-9)
	assert.InDelta(t, 3.20, sw.PlatformUSD, 1e-9)
	assert.Zero(t, sw.ReferrerUSD)
	assert.Nil(t, sw.ReferrerWallet)

	user, err := ts.GetUserByWallet(ctx, "wallet-trader")
	require.NoError(t, err)
	assert.InDelta(t, 1000, user.LifetimeVolumeUSD, 1e-9)
	assert.InDelta(t, 1000, user.Volume30dUSD, 1e-9)
	require.NotNil(t, user.LastTradeAt)
}

func TestRecordSwap_WithReferrer(t *testing.T) {
	ts := newCleanStore(t)
	ctx := context.Background()

	referrer, err := ts.CreateUser(ctx, "wallet-referrer", nil)
	require.NoError(t, err)
	_, err = ts.CreateUser(ctx, "wallet-referee", &referrer.ReferralCode)
	require.NoError(t, err)

	sw := recordTestSwap(t, ts, "wallet-referee", "sig-ref-1", 1000)
	assert.InDelta(t, 2.20, sw.PlatformUSD, 1e-9)
	assert.InDelta(t, 1.00, sw.ReferrerUSD, 1e-9)
	require.NotNil(t, sw.ReferrerWallet)
	assert.Equal(t, "wallet-referrer", *sw.ReferrerWallet)

	link, err := ts.GetReferralByReferee(ctx, "wallet-referee")
	require.NoError(t, err)
	assert.InDelta(t, 1.00, link.EarnedUSD, 1e-9)
	assert.False(t, link.Capped)
}

func TestRecordSwap_Duplicate(t *testing.T) {
	ts := newCleanStore(t)
	ctx := context.Background()

	_, err := ts.CreateUser(ctx, "wallet-trader", nil)
	require.NoError(t, err)

	recordTestSwap(t, ts, "wallet-trader", "sig-dup", 500)

	_, err = ts.RecordSwap(ctx, RecordSwapParams{
		TxSignature:   "sig-dup",
		WalletAddress: "wallet-trader",
		InputMint:     "a",
		OutputMint:    "b",
		VolumeUSD:     500,
		SwappedAt:     time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ErrDuplicateSwap)

	// The replay accrued nothing.
	user, err := ts.GetUserByWallet(ctx, "wallet-trader")
	require.NoError(t, err)
	assert.InDelta(t, 500, user.LifetimeVolumeUSD, 1e-9)
}

func TestRecordSwap_UnknownWallet(t *testing.T) {
	ts := newCleanStore(t)

	_, err := ts.RecordSwap(context.Background(), RecordSwapParams{
		TxSignature:   "sig-unknown",
		WalletAddress: "wallet-stranger",
		InputMint:     "a",
		OutputMint:    "b",
		VolumeUSD:     100,
		SwappedAt:     time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ErrUnknownWallet)

	_, err = ts.GetSwapBySignature(context.Background(), "sig-unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordSwap_ReferralCapClamp(t *testing.T) {
	ts := newCleanStore(t)
	ctx := context.Background()

	referrer, err := ts.CreateUser(ctx, "wallet-referrer", nil)
	require.NoError(t, err)
	_, err = ts.CreateUser(ctx, "wallet-referee", &referrer.ReferralCode)
	require.NoError(t, err)

	// Push earnings to 50 cents under the cap.
	ts.MustExec(t, `UPDATE referrals SET earned_usd = $1 WHERE referee_wallet = 'wallet-referee'`,
		fees.ReferralCap-0.50)

	// A $1000 swap earns the referrer $1.00, but only $0.50 of headroom
	// remains. The credit clamps and the excess is forfeited.
	sw := recordTestSwap(t, ts, "wallet-referee", "sig-cap", 1000)
	assert.InDelta(t, 0.50, sw.ReferrerUSD, 1e-9)
	assert.InDelta(t, 2.20, sw.PlatformUSD, 1e-9)

	link, err := ts.GetReferralByReferee(ctx, "wallet-referee")
	require.NoError(t, err)
	assert.InDelta(t, fees.ReferralCap, link.EarnedUSD, 1e-9)
	assert.True(t, link.Capped)
	require.NotNil(t, link.CappedAt)

	// Once capped, the split matches the no-referrer case.
	sw = recordTestSwap(t, ts, "wallet-referee", "sig-after-cap", 1000)
	assert.InDelta(t, 3.20, sw.PlatformUSD, 1e-9)
	assert.Zero(t, sw.ReferrerUSD)
	assert.Nil(t, sw.ReferrerWallet)
}

func TestCreditReferral_Atomic(t *testing.T) {
	ts := newCleanStore(t)
	ctx := context.Background()

	require.NoError(t, ts.LinkReferral(ctx, "wallet-a", "wallet-b"))

	credited, capped, err := ts.CreditReferral(ctx, "wallet-b", 100)
	require.NoError(t, err)
	assert.InDelta(t, 100, credited, 1e-9)
	assert.False(t, capped)

	// Below the cap, no timestamp yet.
	link, err := ts.GetReferralByReferee(ctx, "wallet-b")
	require.NoError(t, err)
	assert.Nil(t, link.CappedAt)

	credited, capped, err = ts.CreditReferral(ctx, "wallet-b", 500)
	require.NoError(t, err)
	assert.InDelta(t, fees.ReferralCap-100, credited, 1e-9)
	assert.True(t, capped)

	// The crossing credit stamps when the cap was reached.
	link, err = ts.GetReferralByReferee(ctx, "wallet-b")
	require.NoError(t, err)
	require.NotNil(t, link.CappedAt)

	// Capped links credit nothing.
	credited, capped, err = ts.CreditReferral(ctx, "wallet-b", 10)
	require.NoError(t, err)
	assert.Zero(t, credited)
	assert.False(t, capped)

	// Unlinked referees credit nothing.
	credited, _, err = ts.CreditReferral(ctx, "wallet-nobody", 10)
	require.NoError(t, err)
	assert.Zero(t, credited)
}

func TestRollingVolumeWindow(t *testing.T) {
	ts := newCleanStore(t)
	ctx := context.Background()

	_, err := ts.CreateUser(ctx, "wallet-trader", nil)
	require.NoError(t, err)

	recordTestSwap(t, ts, "wallet-trader", "sig-now", 100)

	// Backdate a bucket outside the 30 day window, then trigger a
	// recompute with a fresh swap.
	ts.MustExec(t, `
		INSERT INTO daily_volumes (wallet_address, day, volume_usd)
		VALUES ('wallet-trader', (now() - INTERVAL '45 days')::date, 9999)`)
	recordTestSwap(t, ts, "wallet-trader", "sig-now-2", 50)

	user, err := ts.GetUserByWallet(ctx, "wallet-trader")
	require.NoError(t, err)
	assert.InDelta(t, 150, user.Volume30dUSD, 1e-9)
	assert.InDelta(t, 150, user.LifetimeVolumeUSD, 1e-9)
}

func TestPendingPayouts(t *testing.T) {
	ts := newCleanStore(t)
	ctx := context.Background()

	referrer, err := ts.CreateUser(ctx, "wallet-referrer", nil)
	require.NoError(t, err)
	_, err = ts.CreateUser(ctx, "wallet-referee", &referrer.ReferralCode)
	require.NoError(t, err)

	// Two $1000 swaps earn the referrer $2.00 total.
	recordTestSwap(t, ts, "wallet-referee", "sig-p1", 1000)
	recordTestSwap(t, ts, "wallet-referee", "sig-p2", 1000)

	pending, err := ts.ListPendingPayouts(ctx, 0.01)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "wallet-referrer", pending[0].ReferrerWallet)
	assert.InDelta(t, 2.00, pending[0].AmountUSD, 1e-9)

	// Disbursing $1.50 leaves $0.50 owed.
	payout, err := ts.CreatePayout(ctx, "wallet-referrer", 1.50, 1_500_000)
	require.NoError(t, err)
	assert.Equal(t, PayoutStatusPending, payout.Status)
	assert.Equal(t, int64(1_500_000), payout.AmountSettlement)

	payout, err = ts.MarkPayoutSent(ctx, payout.ID, "payout-sig")
	require.NoError(t, err)
	assert.Equal(t, PayoutStatusSent, payout.Status)
	require.NotNil(t, payout.TxSignature)

	pending, err = ts.ListPendingPayouts(ctx, 0.01)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.InDelta(t, 0.50, pending[0].AmountUSD, 1e-9)

	// Balances under the minimum are filtered out.
	pending, err = ts.ListPendingPayouts(ctx, 1.00)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMarkPayoutFailed(t *testing.T) {
	ts := newCleanStore(t)
	ctx := context.Background()

	referrer, err := ts.CreateUser(ctx, "wallet-referrer", nil)
	require.NoError(t, err)
	_, err = ts.CreateUser(ctx, "wallet-referee", &referrer.ReferralCode)
	require.NoError(t, err)
	recordTestSwap(t, ts, "wallet-referee", "sig-f1", 1000)

	payout, err := ts.CreatePayout(ctx, "wallet-referrer", 1.00, 1_000_000)
	require.NoError(t, err)
	payout, err = ts.MarkPayoutFailed(ctx, payout.ID, "rpc timeout")
	require.NoError(t, err)
	assert.Equal(t, PayoutStatusFailed, payout.Status)
	require.NotNil(t, payout.Error)
	assert.Equal(t, "rpc timeout", *payout.Error)

	// The failed amount is still owed.
	pending, err := ts.ListPendingPayouts(ctx, 0.01)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.InDelta(t, 1.00, pending[0].AmountUSD, 1e-9)
}

func TestGetPlatformStats(t *testing.T) {
	ts := newCleanStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		wallet := fmt.Sprintf("wallet-%d", i)
		_, err := ts.CreateUser(ctx, wallet, nil)
		require.NoError(t, err)
		recordTestSwap(t, ts, wallet, fmt.Sprintf("sig-stats-%d", i), 1000)
	}

	st, err := ts.GetPlatformStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.UserCount)
	assert.Equal(t, int64(3), st.SwapCount)
	assert.InDelta(t, 3000, st.TotalVolumeUSD, 1e-9)
	assert.InDelta(t, 15.00, st.GrossFeesUSD, 1e-9)
}

func TestGetReferralStats(t *testing.T) {
	ts := newCleanStore(t)
	ctx := context.Background()

	referrer, err := ts.CreateUser(ctx, "wallet-referrer", nil)
	require.NoError(t, err)
	_, err = ts.CreateUser(ctx, "wallet-referee", &referrer.ReferralCode)
	require.NoError(t, err)
	recordTestSwap(t, ts, "wallet-referee", "sig-rs1", 1000)

	st, err := ts.GetReferralStats(ctx, "wallet-referrer")
	require.NoError(t, err)
	assert.Equal(t, referrer.ReferralCode, st.ReferralCode)
	assert.Equal(t, int64(1), st.RefereeCount)
	assert.InDelta(t, 1.00, st.EarnedUSD, 1e-9)
	assert.InDelta(t, 1.00, st.PendingUSD, 1e-9)

	// A case-variant lookup resolves to the same canonical wallet and
	// aggregates the same rows.
	st, err = ts.GetReferralStats(ctx, "WALLET-REFERRER")
	require.NoError(t, err)
	assert.Equal(t, "wallet-referrer", st.WalletAddress)
	assert.Equal(t, int64(1), st.RefereeCount)
	assert.InDelta(t, 1.00, st.EarnedUSD, 1e-9)

	_, err = ts.GetReferralStats(ctx, "wallet-nobody")
	assert.True(t, errors.Is(err, ErrNotFound))
}
