package feed

import (
	"strings"
)

// WSOLMint is used when a swap leg is native SOL.
const WSOLMint = "So11111111111111111111111111111111111111112"

// KnownPrograms are addresses that can never be a user wallet. All
// comparisons are against lower-cased addresses; wallet identity is
// case-normalized throughout the system.
var KnownPrograms = map[string]struct{}{}

func init() {
	for _, addr := range []string{
		// System and token programs
		"11111111111111111111111111111111",
		"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
		"TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb",
		"ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL",
		"ComputeBudget111111111111111111111111111111",
		// Jupiter aggregator and referral programs
		"JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4",
		"JUP4Fb2cqiRUcaTHdrPC8h2gNsA2ETXiPDD33WcGuJB",
		"REFER4ZgmyYx9c6He5XfaTMiGfdLwRnkV4RPp9t9iF3",
	} {
		KnownPrograms[strings.ToLower(addr)] = struct{}{}
	}
}

// isCandidateWallet reports whether a lower-cased address could be a
// user wallet: not empty, not a known program, not our fee payer.
func isCandidateWallet(addr, feePayer string) bool {
	if addr == "" || addr == feePayer {
		return false
	}
	_, known := KnownPrograms[addr]
	return !known
}

// FindUserWallet identifies the trading wallet in a transaction. It
// scans token transfers, then native transfers, then touched accounts,
// returning the first lower-cased address that is neither a known
// program nor the configured fee payer. Returns "" when no candidate
// is found.
func FindUserWallet(tx *Transaction, feePayer string) string {
	feePayer = strings.ToLower(feePayer)

	for _, tt := range tx.TokenTransfers {
		for _, addr := range []string{tt.FromUserAccount, tt.ToUserAccount} {
			if a := strings.ToLower(addr); isCandidateWallet(a, feePayer) {
				return a
			}
		}
	}
	for _, nt := range tx.NativeTransfers {
		for _, addr := range []string{nt.FromUserAccount, nt.ToUserAccount} {
			if a := strings.ToLower(addr); isCandidateWallet(a, feePayer) {
				return a
			}
		}
	}
	for _, ad := range tx.AccountData {
		if a := strings.ToLower(ad.Account); isCandidateWallet(a, feePayer) {
			return a
		}
	}
	return ""
}

// SwapDetails are the two legs of a swap in raw units.
type SwapDetails struct {
	InputMint    string
	InputAmount  float64
	OutputMint   string
	OutputAmount float64
}

// ExtractSwapDetails pulls the input and output legs out of a
// transaction. The parsed swap event is authoritative when present;
// otherwise the legs are reconstructed from the user's token transfers
// (out of the wallet = input, into the wallet = output). Missing legs
// come back as empty mint and zero amount.
func ExtractSwapDetails(tx *Transaction, userWallet string) SwapDetails {
	var d SwapDetails

	if ev := tx.Events.Swap; ev != nil {
		switch {
		case ev.NativeInput != nil && numberToFloat(ev.NativeInput.Amount) > 0:
			d.InputMint = WSOLMint
			d.InputAmount = numberToFloat(ev.NativeInput.Amount)
		case len(ev.TokenInputs) > 0:
			d.InputMint = ev.TokenInputs[0].Mint
			d.InputAmount = numberToFloat(ev.TokenInputs[0].Amount)
		}

		switch {
		case ev.NativeOutput != nil && numberToFloat(ev.NativeOutput.Amount) > 0:
			d.OutputMint = WSOLMint
			d.OutputAmount = numberToFloat(ev.NativeOutput.Amount)
		case len(ev.TokenOutputs) > 0:
			d.OutputMint = ev.TokenOutputs[0].Mint
			d.OutputAmount = numberToFloat(ev.TokenOutputs[0].Amount)
		}

		if d.InputMint != "" || d.OutputMint != "" {
			return d
		}
	}

	// Fallback: infer legs from token transfers relative to the user.
	for _, tt := range tx.TokenTransfers {
		from := strings.ToLower(tt.FromUserAccount)
		to := strings.ToLower(tt.ToUserAccount)
		if d.InputMint == "" && from == userWallet {
			d.InputMint = tt.Mint
			d.InputAmount = tt.TokenAmount
		}
		if d.OutputMint == "" && to == userWallet {
			d.OutputMint = tt.Mint
			d.OutputAmount = tt.TokenAmount
		}
	}
	return d
}
