package solana

import (
	"github.com/gagliardetto/solana-go"
)

// TokenAccount is a token holding discovered on chain. This is our
// domain model, independent of the RPC response format.
type TokenAccount struct {
	Address      solana.PublicKey
	Mint         solana.PublicKey
	Owner        solana.PublicKey
	TokenProgram solana.PublicKey

	// Amount is in raw base units; UIAmount is Amount scaled by Decimals.
	Amount   uint64
	Decimals uint8
	UIAmount float64
}

// IsEmpty reports whether the account holds nothing claimable.
func (a TokenAccount) IsEmpty() bool {
	return a.Amount == 0
}
