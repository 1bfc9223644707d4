// Package novelty computes spectral-flux novelty over the rhythm
// bank's magnitudes, the primary evidence the tempo tracker uses for
// onsets. The half-wave-rectified delta pattern here is the same
// shape as the teacher's spectral flux feature (sum of positive
// magnitude deltas between consecutive frames), generalised to gate
// on the per-bin noise floor instead of an offline FFT spectrum.
package novelty

import "github.com/doismell-labs/musicd/internal/agc"

// Tracker keeps the previous hop's rhythm magnitudes to compute a
// half-wave-rectified flux each hop.
type Tracker struct {
	prevMag []float64
	seeded  bool
}

// NewTracker creates a novelty tracker sized for numBins rhythm bins.
func NewTracker(numBins int) *Tracker {
	return &Tracker{prevMag: make([]float64, numBins)}
}

// Update computes the combined novelty for this hop's rhythm
// magnitudes, gating each bin on the noise floor. The first call
// seeds prevMag and returns 0, per spec section 4.6.
func (t *Tracker) Update(mags []float64, floor *agc.NoiseFloor) float64 {
	if !t.seeded {
		copy(t.prevMag, mags)
		t.seeded = true
		return 0
	}

	var sum float64
	gated := 0
	for k, m := range mags {
		if !floor.IsAboveFloor(k, m, 2.0) {
			t.prevMag[k] = m
			continue
		}
		delta := m - t.prevMag[k]
		if delta > 0 {
			sum += delta
		}
		gated++
		t.prevMag[k] = m
	}

	if gated < 1 {
		gated = 1
	}
	return sum / float64(gated)
}
