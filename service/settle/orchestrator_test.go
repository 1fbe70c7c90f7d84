package settle

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbelos/rakeback/service/jupiter"
	solanasvc "github.com/arbelos/rakeback/service/solana"
)

var (
	testReferral = solana.MustPublicKeyFromBase58("7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU")
	testPayer    = solana.MustPublicKeyFromBase58("GDfnEsia2WLAW5t8yx2X5j2mkfA74i5kwGdDuZHt7XmG")
	testTreasury = solana.MustPublicKeyFromBase58("45ruCyfdRkWpRNGEqWzjCiXRHkZs8WXCLQ67Pnpye7Hp")
	usdcMint     = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	wsolMint     = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
)

type fakeReader struct {
	accounts map[string][]solanasvc.TokenAccount
	referral *jupiter.ReferralAccount
	listErr  error
}

func (f *fakeReader) ListTokenAccounts(ctx context.Context, owner solana.PublicKey) ([]solanasvc.TokenAccount, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.accounts[owner.String()], nil
}

func (f *fakeReader) GetReferralAccount(ctx context.Context, address solana.PublicKey) (*jupiter.ReferralAccount, error) {
	if f.referral == nil {
		return nil, solanasvc.ErrAccountNotFound
	}
	return f.referral, nil
}

type fakeExecutor struct {
	submitted   []solana.Instruction
	swaps       []solana.PublicKey
	transfers   []uint64
	submitErr   error
	swapErr     error
	transferErr error
}

func (f *fakeExecutor) Submit(ctx context.Context, ix solana.Instruction) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, ix)
	return "claim-sig", nil
}

func (f *fakeExecutor) Swap(ctx context.Context, inputMint, outputMint solana.PublicKey, amount uint64) (SwapOutcome, error) {
	if f.swapErr != nil {
		return SwapOutcome{}, f.swapErr
	}
	f.swaps = append(f.swaps, inputMint)
	return SwapOutcome{OutputAmount: amount / 2, Signature: "sweep-sig"}, nil
}

func (f *fakeExecutor) Transfer(ctx context.Context, to, mint solana.PublicKey, amount uint64) (string, error) {
	if f.transferErr != nil {
		return "", f.transferErr
	}
	f.transfers = append(f.transfers, amount)
	return "transfer-sig", nil
}

func testConfig() Config {
	return Config{
		Identities:     []Identity{{Name: "ultra", ReferralAccount: testReferral}},
		Payer:          testPayer,
		ProjectAdmin:   testPayer,
		TreasuryWallet: testTreasury,
		SettlementMint: usdcMint,
		MinPayoutUSD:   0.01,
	}
}

func testVaults(t *testing.T) []solanasvc.TokenAccount {
	t.Helper()

	v1, _, err := jupiter.DeriveReferralTokenAccount(testReferral, wsolMint)
	require.NoError(t, err)
	v2, err := jupiter.DeriveReferralTokenAccountV2(testReferral, usdcMint, jupiter.TokenProgramID)
	require.NoError(t, err)

	return []solanasvc.TokenAccount{
		{Address: v1, Mint: wsolMint, Owner: testReferral, TokenProgram: jupiter.TokenProgramID, Amount: 1_000_000_000, Decimals: 9, UIAmount: 1},
		{Address: v2, Mint: usdcMint, Owner: testReferral, TokenProgram: jupiter.TokenProgramID, Amount: 5_000_000, Decimals: 6, UIAmount: 5},
		// Empty vault, skipped.
		{Address: solana.PublicKey{}, Mint: usdcMint, Owner: testReferral, TokenProgram: jupiter.TokenProgramID, Amount: 0},
	}
}

func testOrchestrator(cfg Config, reader Reader, exec Executor) *Orchestrator {
	return NewOrchestrator(cfg, reader, exec, nil, slog.New(slog.DiscardHandler))
}

func TestClaimAll_ClaimsBothLayouts(t *testing.T) {
	reader := &fakeReader{
		accounts: map[string][]solanasvc.TokenAccount{testReferral.String(): testVaults(t)},
		referral: &jupiter.ReferralAccount{Project: testTreasury, Partner: testPayer, ShareBPS: 8000},
	}
	exec := &fakeExecutor{}

	o := testOrchestrator(testConfig(), reader, exec)
	results, err := o.ClaimAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Len(t, exec.submitted, 2)

	byLayout := map[string]ClaimResult{}
	for _, r := range results {
		require.Empty(t, r.Error)
		assert.Equal(t, "claim-sig", r.Signature)
		byLayout[r.Layout] = r
	}
	assert.Equal(t, wsolMint.String(), byLayout["v1"].Mint)
	assert.Equal(t, usdcMint.String(), byLayout["v2"].Mint)

	// The v1 vault must go through the claim discriminator, the v2
	// vault through claim_v2.
	d0, err := exec.submitted[0].Data()
	require.NoError(t, err)
	d1, err := exec.submitted[1].Data()
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[][]byte{jupiter.ClaimDiscriminator, jupiter.ClaimV2Discriminator},
		[][]byte{d0, d1},
	)
}

func TestClaimAll_NoAuthority(t *testing.T) {
	cfg := testConfig()
	cfg.Payer = solana.PublicKey{}
	reader := &fakeReader{
		accounts: map[string][]solanasvc.TokenAccount{testReferral.String(): testVaults(t)},
		referral: &jupiter.ReferralAccount{Project: testTreasury, Partner: testPayer},
	}

	o := testOrchestrator(cfg, reader, &fakeExecutor{})
	results, err := o.ClaimAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, ErrNoAuthority.Error(), r.Error)
		assert.Empty(t, r.Signature)
		// Discovery still resolved the layout.
		assert.NotEmpty(t, r.Layout)
	}
}

func TestClaimAll_UnrecognizedVault(t *testing.T) {
	stray := solanasvc.TokenAccount{
		Address:      testTreasury, // matches neither derivation
		Mint:         usdcMint,
		Owner:        testReferral,
		TokenProgram: jupiter.TokenProgramID,
		Amount:       100,
		UIAmount:     0.0001,
	}
	reader := &fakeReader{
		accounts: map[string][]solanasvc.TokenAccount{testReferral.String(): {stray}},
		referral: &jupiter.ReferralAccount{Project: testTreasury, Partner: testPayer},
	}
	exec := &fakeExecutor{}

	o := testOrchestrator(testConfig(), reader, exec)
	results, err := o.ClaimAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Error, "neither vault derivation")
	assert.Empty(t, exec.submitted)
}

func TestClaimAll_ReferralAccountUnreadable(t *testing.T) {
	reader := &fakeReader{referral: nil}
	o := testOrchestrator(testConfig(), reader, &fakeExecutor{})

	results, err := o.ClaimAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ultra", results[0].Identity)
	assert.NotEmpty(t, results[0].Error)
}

func TestClaimAll_SubmitFailureIsPerVault(t *testing.T) {
	reader := &fakeReader{
		accounts: map[string][]solanasvc.TokenAccount{testReferral.String(): testVaults(t)},
		referral: &jupiter.ReferralAccount{Project: testTreasury, Partner: testPayer},
	}
	exec := &fakeExecutor{submitErr: errors.New("blockhash expired")}

	o := testOrchestrator(testConfig(), reader, exec)
	results, err := o.ClaimAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Contains(t, r.Error, "blockhash expired")
	}
}

func TestSweepAll(t *testing.T) {
	holdings := []solanasvc.TokenAccount{
		{Mint: wsolMint, TokenProgram: jupiter.TokenProgramID, Amount: 2_000_000_000, UIAmount: 2},
		// Settlement asset itself, never swept.
		{Mint: usdcMint, TokenProgram: jupiter.TokenProgramID, Amount: 10_000_000, UIAmount: 10},
		// Empty holding, skipped.
		{Mint: wsolMint, TokenProgram: jupiter.TokenProgramID, Amount: 0},
	}
	reader := &fakeReader{accounts: map[string][]solanasvc.TokenAccount{testTreasury.String(): holdings}}
	exec := &fakeExecutor{}

	o := testOrchestrator(testConfig(), reader, exec)
	results, err := o.SweepAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, wsolMint.String(), results[0].Mint)
	assert.Equal(t, "sweep-sig", results[0].Signature)
	assert.Equal(t, uint64(1_000_000_000), results[0].OutputAmount)
	require.Len(t, exec.swaps, 1)
}

func TestSweepAll_SwapFailureRecorded(t *testing.T) {
	holdings := []solanasvc.TokenAccount{
		{Mint: wsolMint, TokenProgram: jupiter.TokenProgramID, Amount: 500, UIAmount: 0.0000005},
	}
	reader := &fakeReader{accounts: map[string][]solanasvc.TokenAccount{testTreasury.String(): holdings}}
	exec := &fakeExecutor{swapErr: errors.New("slippage exceeded")}

	o := testOrchestrator(testConfig(), reader, exec)
	results, err := o.SweepAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Error, "slippage exceeded")
	assert.Empty(t, results[0].Signature)
}
