package settle

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// SwapOutcome is the result of an executed sweep swap.
type SwapOutcome struct {
	OutputAmount uint64
	Signature    string
}

// Executor is the execution boundary. The orchestrator builds
// instructions and amounts; the executor signs and submits them. This
// service never holds keys, so production deployments inject an
// implementation backed by an external signing service.
type Executor interface {
	// Submit signs and submits a single instruction, returning the
	// transaction signature.
	Submit(ctx context.Context, instruction solana.Instruction) (string, error)

	// Swap trades amount of inputMint into outputMint at market,
	// returning the output amount and signature.
	Swap(ctx context.Context, inputMint, outputMint solana.PublicKey, amount uint64) (SwapOutcome, error)

	// Transfer sends amount of mint to the destination wallet's
	// associated token account, returning the signature.
	Transfer(ctx context.Context, to, mint solana.PublicKey, amount uint64) (string, error)
}
