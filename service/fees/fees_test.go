package fees

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateSplit_NoReferrer(t *testing.T) {
	s := CalculateSplit(1000.0, false, false)

	assert.InDelta(t, 5.00, s.GrossFee, 1e-9)
	assert.InDelta(t, 1.00, s.Jupiter, 1e-9)
	assert.InDelta(t, 3.20, s.Platform, 1e-9)
	assert.Zero(t, s.Referrer)
}

func TestCalculateSplit_ActiveReferrer(t *testing.T) {
	s := CalculateSplit(1000.0, true, false)

	assert.InDelta(t, 5.00, s.GrossFee, 1e-9)
	assert.InDelta(t, 1.00, s.Jupiter, 1e-9)
	assert.InDelta(t, 2.20, s.Platform, 1e-9)
	assert.InDelta(t, 1.00, s.Referrer, 1e-9)
}

func TestCalculateSplit_CappedReferrerMatchesNoReferrer(t *testing.T) {
	// A capped referrer earns nothing; the platform keeps their share,
	// so the split must be identical to the no-referrer case.
	for _, volume := range []float64{0, 1, 99.99, 1000, 123456.78} {
		none := CalculateSplit(volume, false, false)
		capped := CalculateSplit(volume, true, true)

		assert.Equal(t, none.Platform, capped.Platform, "volume %v", volume)
		assert.Zero(t, capped.Referrer, "volume %v", volume)
	}
}

func TestCalculateSplit_Additivity(t *testing.T) {
	volumes := []float64{0, 0.01, 1, 42.5, 1000, 99999.99, 1e9}
	states := []struct {
		hasReferrer, capped bool
	}{
		{false, false},
		{true, false},
		{true, true},
	}

	for _, v := range volumes {
		for _, st := range states {
			s := CalculateSplit(v, st.hasReferrer, st.capped)
			sum := s.Jupiter + s.Platform + s.Referrer
			assert.InEpsilon(t, s.GrossFee+1, sum+1, 1e-9,
				"volume=%v hasReferrer=%v capped=%v", v, st.hasReferrer, st.capped)
		}
	}
}

func TestCalculateSplit_ScalesLinearly(t *testing.T) {
	small := CalculateSplit(100, true, false)
	large := CalculateSplit(200, true, false)

	assert.InDelta(t, small.GrossFee*2, large.GrossFee, 1e-9)
	assert.InDelta(t, small.Referrer*2, large.Referrer, 1e-9)
}

func TestGenerateReferralCode(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		code := GenerateReferralCode()
		require.Len(t, code, CodeLength)
		for _, r := range code {
			assert.Contains(t, codeAlphabet, string(r))
		}
		seen[code] = struct{}{}
	}
	// 100 draws from a 36^8 space should never collide.
	assert.Len(t, seen, 100)
}
