package fees

import (
	"crypto/rand"
	"math/big"
)

// Fee configuration for the platform. All trades pay a flat 0.5% fee.
// Jupiter takes 20% of the gross fee off the top; the remaining 80% is
// split 55/25 between the platform and the trader's referrer. When the
// trader has no referrer, or the referrer has hit their lifetime cap,
// the platform keeps the referrer's share.
const (
	PlatformFee   = 0.005 // 0.5% flat fee on all trade volume
	JupiterSplit  = 0.20  // Jupiter's share of the gross fee
	PlatformSplit = 0.55  // platform's share of the remaining 80%
	ReferrerSplit = 0.25  // referrer's share of the remaining 80%

	// ReferralCap is the lifetime USD cap a referrer can earn per referee.
	ReferralCap = 300.0
)

// Split is the breakdown of a single trade's fee.
// GrossFee == Jupiter + Platform + Referrer (within float rounding).
type Split struct {
	GrossFee float64 `json:"gross_fee"`
	Jupiter  float64 `json:"jupiter_amount"`
	Platform float64 `json:"platform_amount"`
	Referrer float64 `json:"referrer_amount"`
}

// CalculateSplit computes the fee breakdown for a trade.
// hasReferrer and referrerCapped describe the trader's referral state at
// the time of the trade; a capped referrer earns nothing and the platform
// keeps the difference. The function is linear in volumeUSD and has no
// failure modes; callers are responsible for rejecting non-positive
// volumes before accrual.
func CalculateSplit(volumeUSD float64, hasReferrer, referrerCapped bool) Split {
	gross := volumeUSD * PlatformFee
	jupiter := gross * JupiterSplit
	remaining := gross - jupiter

	s := Split{
		GrossFee: gross,
		Jupiter:  jupiter,
	}
	if hasReferrer && !referrerCapped {
		s.Platform = remaining * PlatformSplit
		s.Referrer = remaining * ReferrerSplit
	} else {
		s.Platform = remaining * (PlatformSplit + ReferrerSplit)
	}
	return s
}

// referral codes use an unambiguous uppercase alphanumeric alphabet
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeLength is the length of generated referral codes.
const CodeLength = 8

// GenerateReferralCode returns a random referral code drawn from a
// crypto-grade source. Uniqueness is enforced by the storage layer, not
// here; collisions at 36^8 are retried by the caller on insert conflict.
func GenerateReferralCode() string {
	max := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, CodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails if the OS entropy source is broken;
			// nothing sensible to do but stop.
			panic(err)
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b)
}
