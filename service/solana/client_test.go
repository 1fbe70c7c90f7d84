package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbelos/rakeback/service/jupiter"
)

// mockRPCClient implements RPCClient with pluggable behavior per test.
type mockRPCClient struct {
	getTokenAccountsFunc func(ctx context.Context, owner solana.PublicKey, conf *rpc.GetTokenAccountsConfig, opts *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error)
	getAccountInfoFunc   func(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
	getBalanceFunc       func(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
}

func (m *mockRPCClient) GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey, conf *rpc.GetTokenAccountsConfig, opts *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error) {
	return m.getTokenAccountsFunc(ctx, owner, conf, opts)
}

func (m *mockRPCClient) GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	return m.getAccountInfoFunc(ctx, account, opts)
}

func (m *mockRPCClient) GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	return m.getBalanceFunc(ctx, account, commitment)
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func tokenAccountJSON(t *testing.T, mint, owner string, amount string, decimals uint8, uiAmount float64) *rpc.DataBytesOrJSON {
	t.Helper()

	raw := fmt.Sprintf(`{
		"parsed": {
			"info": {
				"mint": %q,
				"owner": %q,
				"tokenAmount": {"amount": %q, "decimals": %d, "uiAmount": %v, "uiAmountString": "x"}
			},
			"type": "account"
		},
		"program": "spl-token",
		"space": 165
	}`, mint, owner, amount, decimals, uiAmount)

	var data rpc.DataBytesOrJSON
	require.NoError(t, json.Unmarshal([]byte(raw), &data))
	return &data
}

func TestListTokenAccounts(t *testing.T) {
	owner := solana.MustPublicKeyFromBase58("7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU")
	vaultAddr := solana.MustPublicKeyFromBase58("GDfnEsia2WLAW5t8yx2X5j2mkfA74i5kwGdDuZHt7XmG")

	mock := &mockRPCClient{
		getTokenAccountsFunc: func(ctx context.Context, o solana.PublicKey, conf *rpc.GetTokenAccountsConfig, opts *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error) {
			assert.Equal(t, owner, o)
			assert.Equal(t, solana.EncodingJSONParsed, opts.Encoding)

			// Only the classic token program holds anything.
			if !conf.ProgramId.Equals(jupiter.TokenProgramID) {
				return &rpc.GetTokenAccountsResult{}, nil
			}
			return &rpc.GetTokenAccountsResult{
				Value: []*rpc.TokenAccount{
					{
						Pubkey: vaultAddr,
						Account: rpc.Account{
							Data: tokenAccountJSON(t,
								"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
								owner.String(), "1500000", 6, 1.5),
						},
					},
				},
			}, nil
		},
	}

	client := NewClient(mock, "test", nil, testLogger())
	accounts, err := client.ListTokenAccounts(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, accounts, 1)

	acct := accounts[0]
	assert.Equal(t, vaultAddr, acct.Address)
	assert.Equal(t, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", acct.Mint.String())
	assert.Equal(t, owner, acct.Owner)
	assert.Equal(t, jupiter.TokenProgramID, acct.TokenProgram)
	assert.Equal(t, uint64(1500000), acct.Amount)
	assert.Equal(t, uint8(6), acct.Decimals)
	assert.InDelta(t, 1.5, acct.UIAmount, 1e-9)
	assert.False(t, acct.IsEmpty())
}

func TestListTokenAccounts_Empty(t *testing.T) {
	mock := &mockRPCClient{
		getTokenAccountsFunc: func(ctx context.Context, o solana.PublicKey, conf *rpc.GetTokenAccountsConfig, opts *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error) {
			return &rpc.GetTokenAccountsResult{}, nil
		},
	}

	client := NewClient(mock, "test", nil, testLogger())
	accounts, err := client.ListTokenAccounts(context.Background(), solana.PublicKey{})
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestListTokenAccounts_RPCError(t *testing.T) {
	rpcErr := errors.New("rpc unavailable")
	mock := &mockRPCClient{
		getTokenAccountsFunc: func(ctx context.Context, o solana.PublicKey, conf *rpc.GetTokenAccountsConfig, opts *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error) {
			return nil, rpcErr
		},
	}

	client := NewClient(mock, "test", nil, testLogger())
	_, err := client.ListTokenAccounts(context.Background(), solana.PublicKey{})
	assert.ErrorIs(t, err, rpcErr)
}

func binaryAccountData(t *testing.T, raw []byte) *rpc.DataBytesOrJSON {
	t.Helper()

	encoded, err := json.Marshal([]string{base64.StdEncoding.EncodeToString(raw), "base64"})
	require.NoError(t, err)

	var data rpc.DataBytesOrJSON
	require.NoError(t, json.Unmarshal(encoded, &data))
	return &data
}

func TestGetReferralAccount(t *testing.T) {
	partner := solana.MustPublicKeyFromBase58("7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU")
	project := solana.MustPublicKeyFromBase58("45ruCyfdRkWpRNGEqWzjCiXRHkZs8WXCLQ67Pnpye7Hp")

	raw := make([]byte, 0, 74)
	raw = append(raw, make([]byte, 8)...)
	raw = append(raw, project.Bytes()...)
	raw = append(raw, partner.Bytes()...)
	raw = append(raw, 0xE8, 0x03) // 1000 bps, little endian

	mock := &mockRPCClient{
		getAccountInfoFunc: func(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
			return &rpc.GetAccountInfoResult{
				Value: &rpc.Account{Data: binaryAccountData(t, raw)},
			}, nil
		},
	}

	client := NewClient(mock, "test", nil, testLogger())
	acct, err := client.GetReferralAccount(context.Background(), solana.PublicKey{})
	require.NoError(t, err)
	assert.Equal(t, project, acct.Project)
	assert.Equal(t, partner, acct.Partner)
	assert.Equal(t, uint16(1000), acct.ShareBPS)
}

func TestGetReferralAccount_NotFound(t *testing.T) {
	mock := &mockRPCClient{
		getAccountInfoFunc: func(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
			return nil, rpc.ErrNotFound
		},
	}

	client := NewClient(mock, "test", nil, testLogger())
	_, err := client.GetReferralAccount(context.Background(), solana.PublicKey{})
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAccountExists(t *testing.T) {
	calls := 0
	mock := &mockRPCClient{
		getAccountInfoFunc: func(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
			calls++
			if calls == 1 {
				return &rpc.GetAccountInfoResult{
					Value: &rpc.Account{Data: binaryAccountData(t, []byte{1, 2, 3})},
				}, nil
			}
			return nil, rpc.ErrNotFound
		},
	}

	client := NewClient(mock, "test", nil, testLogger())

	exists, err := client.AccountExists(context.Background(), solana.PublicKey{})
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = client.AccountExists(context.Background(), solana.PublicKey{})
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGetSOLBalance(t *testing.T) {
	mock := &mockRPCClient{
		getBalanceFunc: func(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
			return &rpc.GetBalanceResult{Value: 5_000_000_000}, nil
		},
	}

	client := NewClient(mock, "test", nil, testLogger())
	lamports, err := client.GetSOLBalance(context.Background(), solana.PublicKey{})
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000_000_000), lamports)
}

func TestParseTokenAccount_RejectsNonAccount(t *testing.T) {
	raw := json.RawMessage(`{"parsed": {"info": {}, "type": "mint"}, "program": "spl-token"}`)
	_, err := parseTokenAccount(solana.PublicKey{}, jupiter.TokenProgramID, raw)
	assert.Error(t, err)
}
