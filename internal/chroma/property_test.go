package chroma

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Chroma bins are normalised by their own maximum, and key clarity is
// an EMA of a ratio of non-negative sums, so both must stay in [0, 1]
// for any non-negative magnitude input, however many hops accumulate.
func TestExtractorOutputsStayInUnitRangeRapid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numBins := rapid.IntRange(1, 64).Draw(t, "numBins")
		freqs := make([]float64, numBins)
		for i := range freqs {
			freqs[i] = rapid.Float64Range(55, 4200).Draw(t, "freqHz")
		}
		e := NewExtractor(freqs, 62.5)

		hops := rapid.IntRange(1, 50).Draw(t, "hops")
		mags := make([]float64, numBins)
		for h := 0; h < hops; h++ {
			for i := range mags {
				mags[i] = rapid.Float64Range(0, 5).Draw(t, "mag")
			}
			chroma, clarity := e.Update(mags)

			for i, v := range chroma {
				require.GreaterOrEqualf(t, v, 0.0, "chroma[%d]", i)
				require.LessOrEqualf(t, v, 1.0, "chroma[%d]", i)
			}
			require.GreaterOrEqual(t, clarity, 0.0)
			require.LessOrEqual(t, clarity, 1.0)
		}
	})
}
