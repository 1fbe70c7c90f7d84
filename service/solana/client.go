package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/arbelos/rakeback/service/jupiter"
	"github.com/arbelos/rakeback/service/metrics"
)

// ErrAccountNotFound is returned when an account does not exist on
// chain. Callers distinguish this from transport failures: a missing
// vault means nothing to claim, a failed RPC call means try again.
var ErrAccountNotFound = errors.New("account not found on chain")

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real
// Solana nodes.
type RPCClient interface {
	GetTokenAccountsByOwner(
		ctx context.Context,
		owner solana.PublicKey,
		conf *rpc.GetTokenAccountsConfig,
		opts *rpc.GetTokenAccountsOpts,
	) (*rpc.GetTokenAccountsResult, error)

	GetAccountInfoWithOpts(
		ctx context.Context,
		account solana.PublicKey,
		opts *rpc.GetAccountInfoOpts,
	) (*rpc.GetAccountInfoResult, error)

	GetBalance(
		ctx context.Context,
		account solana.PublicKey,
		commitment rpc.CommitmentType,
	) (*rpc.GetBalanceResult, error)
}

// Client provides read access to referral fee state on chain.
// It wraps the RPC client with domain-specific operations.
type Client struct {
	rpc      RPCClient
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // RPC endpoint identifier for metrics labels
}

// NewClient creates a new Solana reader. The endpoint parameter is used
// for metrics labeling (e.g. "mainnet" or the RPC hostname). If metrics
// is nil, no metrics are recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		rpc:      rpcClient,
		logger:   logger,
		metrics:  m,
		endpoint: endpoint,
	}
}

func (c *Client) record(method string, err error, start time.Time) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, c.endpoint, time.Since(start).Seconds())
}

// ListTokenAccounts returns every token account owned by the given
// wallet under both the classic token program and Token-2022. An owner
// with no accounts returns an empty slice, not an error.
func (c *Client) ListTokenAccounts(ctx context.Context, owner solana.PublicKey) ([]TokenAccount, error) {
	var out []TokenAccount
	for _, program := range []solana.PublicKey{jupiter.TokenProgramID, jupiter.Token2022ProgramID} {
		accounts, err := c.listForProgram(ctx, owner, program)
		if err != nil {
			return nil, err
		}
		out = append(out, accounts...)
	}

	c.logger.DebugContext(ctx, "listed token accounts",
		"owner", owner.String(),
		"count", len(out),
	)
	return out, nil
}

func (c *Client) listForProgram(ctx context.Context, owner, program solana.PublicKey) ([]TokenAccount, error) {
	start := time.Now()
	res, err := c.rpc.GetTokenAccountsByOwner(ctx, owner,
		&rpc.GetTokenAccountsConfig{ProgramId: &program},
		&rpc.GetTokenAccountsOpts{Encoding: solana.EncodingJSONParsed},
	)
	c.record("GetTokenAccountsByOwner", err, start)
	if err != nil {
		return nil, fmt.Errorf("failed to list token accounts for %s under %s: %w", owner, program, err)
	}

	out := make([]TokenAccount, 0, len(res.Value))
	for _, acct := range res.Value {
		parsed, err := parseTokenAccount(acct.Pubkey, program, acct.Account.Data.GetRawJSON())
		if err != nil {
			// Skip accounts we cannot decode rather than failing the
			// whole sweep; log so they are not silently invisible.
			c.logger.WarnContext(ctx, "skipping undecodable token account",
				"account", acct.Pubkey.String(),
				"error", err,
			)
			continue
		}
		out = append(out, parsed)
	}
	return out, nil
}

// GetReferralAccount fetches and parses a referral program account.
func (c *Client) GetReferralAccount(ctx context.Context, address solana.PublicKey) (*jupiter.ReferralAccount, error) {
	data, err := c.getAccountData(ctx, address)
	if err != nil {
		return nil, err
	}
	acct, err := jupiter.ParseReferralAccount(data)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", address, err)
	}
	return acct, nil
}

// AccountExists reports whether an account exists on chain. Used to
// decide if a destination token account needs creating before a sweep.
func (c *Client) AccountExists(ctx context.Context, address solana.PublicKey) (bool, error) {
	_, err := c.getAccountData(ctx, address)
	if errors.Is(err, ErrAccountNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) getAccountData(ctx context.Context, address solana.PublicKey) ([]byte, error) {
	start := time.Now()
	res, err := c.rpc.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Encoding: solana.EncodingBase64,
	})
	c.record("GetAccountInfo", err, start)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", address, ErrAccountNotFound)
		}
		return nil, fmt.Errorf("failed to fetch account %s: %w", address, err)
	}
	if res.Value == nil {
		return nil, fmt.Errorf("%s: %w", address, ErrAccountNotFound)
	}
	return res.Value.Data.GetBinary(), nil
}

// GetSOLBalance returns a wallet's lamport balance. The settlement payer
// needs enough SOL for transaction fees and rent; the balance check
// schedule alerts when it runs low.
func (c *Client) GetSOLBalance(ctx context.Context, wallet solana.PublicKey) (uint64, error) {
	start := time.Now()
	res, err := c.rpc.GetBalance(ctx, wallet, rpc.CommitmentConfirmed)
	c.record("GetBalance", err, start)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch balance for %s: %w", wallet, err)
	}
	return res.Value, nil
}
