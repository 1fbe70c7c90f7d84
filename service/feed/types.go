package feed

import (
	"encoding/json"
)

// Transaction is an enhanced transaction as delivered by a Helius
// webhook. Only the fields we consume are modeled; everything else in
// the payload is ignored.
type Transaction struct {
	Signature       string           `json:"signature"`
	Type            string           `json:"type"`
	FeePayer        string           `json:"feePayer"`
	Timestamp       int64            `json:"timestamp"`
	TokenTransfers  []TokenTransfer  `json:"tokenTransfers"`
	NativeTransfers []NativeTransfer `json:"nativeTransfers"`
	AccountData     []AccountData    `json:"accountData"`
	Events          Events           `json:"events"`
}

// TokenTransfer is a token movement inside a transaction. The amount is
// in UI units, already scaled by the mint's decimals.
type TokenTransfer struct {
	FromUserAccount string  `json:"fromUserAccount"`
	ToUserAccount   string  `json:"toUserAccount"`
	Mint            string  `json:"mint"`
	TokenAmount     float64 `json:"tokenAmount"`
}

// NativeTransfer is a SOL movement in lamports.
type NativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          uint64 `json:"amount"`
}

// AccountData describes an account touched by the transaction.
type AccountData struct {
	Account             string `json:"account"`
	NativeBalanceChange int64  `json:"nativeBalanceChange"`
}

// Events holds the parsed event payloads Helius attaches to enhanced
// transactions.
type Events struct {
	Swap *SwapEvent `json:"swap"`
}

// SwapEvent is the parsed swap event. Amounts arrive as either JSON
// numbers or strings depending on the source, so they are kept as
// json.Number and converted on read.
type SwapEvent struct {
	NativeInput  *NativeIO `json:"nativeInput"`
	NativeOutput *NativeIO `json:"nativeOutput"`
	TokenInputs  []TokenIO `json:"tokenInputs"`
	TokenOutputs []TokenIO `json:"tokenOutputs"`
}

// NativeIO is a native SOL leg of a swap, in lamports.
type NativeIO struct {
	Account string      `json:"account"`
	Amount  json.Number `json:"amount"`
}

// TokenIO is a token leg of a swap, in raw base units.
type TokenIO struct {
	Mint   string      `json:"mint"`
	Amount json.Number `json:"amount"`
}

// numberToFloat converts a json.Number leg amount, treating malformed
// or absent values as zero rather than failing the whole event.
func numberToFloat(n json.Number) float64 {
	if n == "" {
		return 0
	}
	f, err := n.Float64()
	if err != nil {
		return 0
	}
	return f
}
