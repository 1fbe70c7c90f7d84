package solana

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
)

// parsedTokenAccount mirrors the jsonParsed encoding of an SPL token
// account as returned by getTokenAccountsByOwner.
type parsedTokenAccount struct {
	Parsed struct {
		Info struct {
			Mint        string `json:"mint"`
			Owner       string `json:"owner"`
			TokenAmount struct {
				Amount   string  `json:"amount"`
				Decimals uint8   `json:"decimals"`
				UIAmount float64 `json:"uiAmount"`
			} `json:"tokenAmount"`
		} `json:"info"`
		Type string `json:"type"`
	} `json:"parsed"`
	Program string `json:"program"`
}

// parseTokenAccount decodes one jsonParsed token account into the domain
// model. tokenProgram records which program the account was queried
// under, since both classic and Token-2022 accounts share the layout.
func parseTokenAccount(address, tokenProgram solana.PublicKey, raw json.RawMessage) (TokenAccount, error) {
	var p parsedTokenAccount
	if err := json.Unmarshal(raw, &p); err != nil {
		return TokenAccount{}, fmt.Errorf("failed to decode token account %s: %w", address, err)
	}
	if p.Parsed.Type != "account" {
		return TokenAccount{}, fmt.Errorf("account %s is not a token account (type %q)", address, p.Parsed.Type)
	}

	mint, err := solana.PublicKeyFromBase58(p.Parsed.Info.Mint)
	if err != nil {
		return TokenAccount{}, fmt.Errorf("invalid mint on account %s: %w", address, err)
	}
	owner, err := solana.PublicKeyFromBase58(p.Parsed.Info.Owner)
	if err != nil {
		return TokenAccount{}, fmt.Errorf("invalid owner on account %s: %w", address, err)
	}
	amount, err := strconv.ParseUint(p.Parsed.Info.TokenAmount.Amount, 10, 64)
	if err != nil {
		return TokenAccount{}, fmt.Errorf("invalid amount on account %s: %w", address, err)
	}

	return TokenAccount{
		Address:      address,
		Mint:         mint,
		Owner:        owner,
		TokenProgram: tokenProgram,
		Amount:       amount,
		Decimals:     p.Parsed.Info.TokenAmount.Decimals,
		UIAmount:     p.Parsed.Info.TokenAmount.UIAmount,
	}, nil
}
