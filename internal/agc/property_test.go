package agc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Clamp01's output must stay in [0, 1] for any finite input, which
// every field the control bus promises to keep normalised depends on.
func TestClamp01AlwaysInUnitRangeRapid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		x := rapid.Float64Range(-1e9, 1e9).Draw(t, "x")
		got := Clamp01(x)
		require.GreaterOrEqual(t, got, 0.0)
		require.LessOrEqual(t, got, 1.0)
		if x >= 0 && x <= 1 {
			require.InDelta(t, x, got, 1e-12)
		}
	})
}

// The per-bin noise floor never drops below its epsilon regardless of
// how many silent or loud hops it sees (spec section 3's NoiseFloor
// invariant).
func TestNoiseFloorStaysAboveEpsilonRapid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numBins := rapid.IntRange(1, 8).Draw(t, "numBins")
		nf := NewNoiseFloor(numBins, 62.5)

		hops := rapid.IntRange(0, 200).Draw(t, "hops")
		mags := make([]float64, numBins)
		for h := 0; h < hops; h++ {
			for k := range mags {
				mags[k] = rapid.Float64Range(0, 10).Draw(t, "mag")
			}
			nf.Update(mags)
		}

		for k := 0; k < numBins; k++ {
			require.GreaterOrEqualf(t, nf.Floor(k), minFloor, "bin %d", k)
			require.False(t, math.IsNaN(nf.Floor(k)), "bin %d floor is NaN", k)
		}
	})
}

// AGC's gain is clamped to [0.01, 100] no matter how extreme the RMS
// input is, so a downstream magnitude scaled by it can never blow up
// to infinity or collapse to zero from the gain stage alone.
func TestAGCGainStaysBoundedRapid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := NewAGC(0.01, 0.5, 0.7, 62.5)
		steps := rapid.IntRange(1, 100).Draw(t, "steps")
		mags := make([]float64, 4)
		for i := 0; i < steps; i++ {
			rms := rapid.Float64Range(0, 1e6).Draw(t, "rms")
			a.Apply(rms, mags)
			require.GreaterOrEqual(t, a.Gain(), 0.01)
			require.LessOrEqual(t, a.Gain(), 100.0)
		}
	})
}
