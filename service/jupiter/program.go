package jupiter

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Program addresses for the Jupiter referral program and the token
// programs it operates against. These are fixed mainnet addresses; a
// single wrong byte here makes every claim instruction unexecutable.
var (
	// ReferralProgramID is the Jupiter referral (fee sharing) program.
	ReferralProgramID = solana.MustPublicKeyFromBase58("REFER4ZgmyYx9c6He5XfaTMiGfdLwRnkV4RPp9t9iF3")

	// TokenProgramID is the classic SPL Token program.
	TokenProgramID = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

	// Token2022ProgramID is the Token Extensions program.
	Token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")

	// AssociatedTokenProgramID is the associated token account program.
	AssociatedTokenProgramID = solana.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")

	// WSOLMint is the wrapped SOL mint.
	WSOLMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
)

// Anchor instruction discriminators: the first 8 bytes of
// sha256("global:<instruction_name>"). The referral program rejects any
// instruction whose data does not begin with the matching discriminator.
var (
	ClaimDiscriminator   = AnchorDiscriminator("claim")
	ClaimV2Discriminator = AnchorDiscriminator("claim_v2")
)

// AnchorDiscriminator derives the 8-byte discriminator for an
// Anchor-generated instruction name.
func AnchorDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("global:" + name))
	return sum[:8]
}

// DeriveReferralTokenAccount derives the v1 per-mint fee vault for a
// referral account. The referral program owns these PDAs under the seed
// layout ("referral_ata", referral, mint).
func DeriveReferralTokenAccount(referral, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	seeds := [][]byte{
		[]byte("referral_ata"),
		referral.Bytes(),
		mint.Bytes(),
	}
	addr, bump, err := solana.FindProgramAddress(seeds, ReferralProgramID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("failed to derive referral token account: %w", err)
	}
	return addr, bump, nil
}

// AssociatedTokenAddress derives the canonical associated token account
// for an owner and mint under the given token program. Unlike
// solana.FindAssociatedTokenAddress this supports Token-2022 owners.
func AssociatedTokenAddress(owner, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	seeds := [][]byte{
		owner.Bytes(),
		tokenProgram.Bytes(),
		mint.Bytes(),
	}
	addr, _, err := solana.FindProgramAddress(seeds, AssociatedTokenProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive ATA for owner %s: %w", owner, err)
	}
	return addr, nil
}

// DeriveReferralTokenAccountV2 derives the v2 fee vault: the referral
// account's standard associated token account for the mint under the
// given token program. claimV2 referrals hold fees here instead of the
// program-seeded v1 PDA.
func DeriveReferralTokenAccountV2(referral, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	return AssociatedTokenAddress(referral, mint, tokenProgram)
}

// DeriveProjectAuthority derives the project authority PDA for a referral
// project account.
func DeriveProjectAuthority(project solana.PublicKey) (solana.PublicKey, uint8, error) {
	seeds := [][]byte{
		[]byte("project_authority"),
		project.Bytes(),
	}
	addr, bump, err := solana.FindProgramAddress(seeds, ReferralProgramID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("failed to derive project authority: %w", err)
	}
	return addr, bump, nil
}

// VaultLayout identifies which derivation produced a referral fee vault,
// and therefore which claim variant must be used to drain it. The layout
// is resolved once when an account is discovered, never re-guessed at
// claim time.
type VaultLayout uint8

const (
	// VaultLayoutV1 is the program-seeded PDA claimed via "claim".
	VaultLayoutV1 VaultLayout = iota + 1
	// VaultLayoutV2 is the associated token account claimed via "claim_v2".
	VaultLayoutV2
)

func (l VaultLayout) String() string {
	switch l {
	case VaultLayoutV1:
		return "v1"
	case VaultLayoutV2:
		return "v2"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(l))
	}
}

// ResolveVaultLayout determines whether a discovered token account is the
// referral's v1 vault PDA or its v2 ATA for the given mint. Accounts that
// match neither derivation are not claimable fee vaults.
func ResolveVaultLayout(referral, mint, tokenProgram, account solana.PublicKey) (VaultLayout, error) {
	v1, _, err := DeriveReferralTokenAccount(referral, mint)
	if err == nil && account.Equals(v1) {
		return VaultLayoutV1, nil
	}

	v2, err := DeriveReferralTokenAccountV2(referral, mint, tokenProgram)
	if err == nil && account.Equals(v2) {
		return VaultLayoutV2, nil
	}

	return 0, fmt.Errorf("account %s matches neither vault derivation for referral %s mint %s",
		account, referral, mint)
}

// referralAccountDataLen is discriminator + project + partner + share_bps.
const referralAccountDataLen = 8 + 32 + 32 + 2

// ReferralAccount is the on-chain state of a referral program entry,
// parsed from raw account data.
type ReferralAccount struct {
	Project  solana.PublicKey
	Partner  solana.PublicKey
	ShareBPS uint16
}

// ParseReferralAccount decodes a referral account from its raw Anchor
// account data: an 8-byte account discriminator followed by the project
// pubkey, partner pubkey, and a little-endian u16 share in basis points.
func ParseReferralAccount(data []byte) (*ReferralAccount, error) {
	if len(data) < referralAccountDataLen {
		return nil, fmt.Errorf("referral account data too short: got %d bytes, want at least %d",
			len(data), referralAccountDataLen)
	}
	return &ReferralAccount{
		Project:  solana.PublicKeyFromBytes(data[8:40]),
		Partner:  solana.PublicKeyFromBytes(data[40:72]),
		ShareBPS: binary.LittleEndian.Uint16(data[72:74]),
	}, nil
}
