package jupiter

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ClaimParams are the accounts needed to build a claim or claimV2
// instruction. The caller derives ReferralTokenAccount with the
// derivation matching the vault's layout; everything else comes from the
// referral account's on-chain state and the project configuration.
type ClaimParams struct {
	Payer                    solana.PublicKey
	Project                  solana.PublicKey
	Admin                    solana.PublicKey
	ProjectAdminTokenAccount solana.PublicKey
	ReferralAccount          solana.PublicKey
	ReferralTokenAccount     solana.PublicKey
	Partner                  solana.PublicKey
	PartnerTokenAccount      solana.PublicKey
	Mint                     solana.PublicKey
	TokenProgram             solana.PublicKey
}

// claimAccounts builds the 12-account layout shared by claim and claimV2.
// Account order is fixed by the program; the payer must be first, signer
// and writable.
func claimAccounts(p ClaimParams) solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		solana.Meta(p.Payer).SIGNER().WRITE(),
		solana.Meta(p.Project),
		solana.Meta(p.Admin),
		solana.Meta(p.ProjectAdminTokenAccount).WRITE(),
		solana.Meta(p.ReferralAccount).WRITE(),
		solana.Meta(p.ReferralTokenAccount).WRITE(),
		solana.Meta(p.Partner),
		solana.Meta(p.PartnerTokenAccount).WRITE(),
		solana.Meta(p.Mint),
		solana.Meta(p.TokenProgram),
		solana.Meta(AssociatedTokenProgramID),
		solana.Meta(solana.SystemProgramID),
	}
}

// BuildClaim builds a v1 claim instruction against the referral program.
// The ReferralTokenAccount must be the program-seeded vault PDA.
func BuildClaim(p ClaimParams) solana.Instruction {
	return solana.NewInstruction(ReferralProgramID, claimAccounts(p), ClaimDiscriminator)
}

// BuildClaimV2 builds a claimV2 instruction. Identical account layout to
// BuildClaim; only the discriminator differs, and the
// ReferralTokenAccount must be the referral's ATA for the mint.
func BuildClaimV2(p ClaimParams) solana.Instruction {
	return solana.NewInstruction(ReferralProgramID, claimAccounts(p), ClaimV2Discriminator)
}

// BuildClaimForLayout dispatches to the claim variant matching the
// vault's resolved layout.
func BuildClaimForLayout(layout VaultLayout, p ClaimParams) (solana.Instruction, error) {
	switch layout {
	case VaultLayoutV1:
		return BuildClaim(p), nil
	case VaultLayoutV2:
		return BuildClaimV2(p), nil
	default:
		return nil, fmt.Errorf("unknown vault layout %v", layout)
	}
}

// createIdempotent is the associated-token-account program's
// CreateIdempotent instruction discriminator.
var createIdempotent = []byte{1}

// BuildCreateATAIdempotent builds a CreateIdempotent instruction for the
// owner's associated token account. It is a no-op on chain when the
// account already exists, so it is safe to prepend unconditionally before
// a transfer. Returns the instruction and the derived ATA.
func BuildCreateATAIdempotent(payer, owner, mint, tokenProgram solana.PublicKey) (solana.Instruction, solana.PublicKey, error) {
	ata, err := AssociatedTokenAddress(owner, mint, tokenProgram)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}

	accounts := solana.AccountMetaSlice{
		solana.Meta(payer).SIGNER().WRITE(),
		solana.Meta(ata).WRITE(),
		solana.Meta(owner),
		solana.Meta(mint),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(tokenProgram),
	}

	return solana.NewInstruction(AssociatedTokenProgramID, accounts, createIdempotent), ata, nil
}
