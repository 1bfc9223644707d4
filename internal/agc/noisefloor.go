// Package agc implements the per-bin adaptive noise floor and the
// broadband fast-attack/slow-release automatic gain control, both
// grounded on the asymmetric decay-averaging pattern used for CW
// envelope tracking (fast attack toward a rising signal, slow decay
// otherwise).
package agc

import "math"

// minFloor is the epsilon floor that keeps division by a per-bin
// noise estimate well-defined (spec section 3, NoiseFloor invariant).
const minFloor = 1e-6

// NoiseFloor tracks a per-bin EMA noise estimate.
type NoiseFloor struct {
	floor []float64
	alpha float64
}

// NewNoiseFloor creates a floor tracker for numBins bins with a decay
// derived from a 1s time constant at hopRateHz (spec section 4.4).
func NewNoiseFloor(numBins int, hopRateHz float64) *NoiseFloor {
	nf := &NoiseFloor{
		floor: make([]float64, numBins),
		alpha: 1 / hopRateHz, // tau = 1s
	}
	nf.Reset()
	return nf
}

// Reset sets every bin back to the epsilon floor.
func (nf *NoiseFloor) Reset() {
	for i := range nf.floor {
		nf.floor[i] = minFloor
	}
}

// Update folds one hop's magnitudes into the floor estimate.
func (nf *NoiseFloor) Update(mags []float64) {
	for k, m := range mags {
		nf.floor[k] = (1-nf.alpha)*nf.floor[k] + nf.alpha*m
		if nf.floor[k] < minFloor {
			nf.floor[k] = minFloor
		}
	}
}

// Floor returns the current estimate for bin k.
func (nf *NoiseFloor) Floor(k int) float64 {
	return nf.floor[k]
}

// IsAboveFloor reports whether mag exceeds m times the bin's floor
// (default m = 2.0, about 6dB).
func (nf *NoiseFloor) IsAboveFloor(k int, mag, m float64) bool {
	return mag > m*nf.floor[k]
}

// ApplyFloor clamps magnitudes below 1x the bin floor up to the floor
// value itself, rather than to zero, so log-domain consumers never
// see a hard zero (spec section 4.3 tie-break rule).
func (nf *NoiseFloor) ApplyFloor(mags []float64) {
	for k, m := range mags {
		if m < nf.floor[k] {
			mags[k] = nf.floor[k]
		}
	}
}

// AGC is a broadband fast-attack/slow-release gain control. It
// operates on rhythm-bank magnitudes to preserve onset transients; it
// must never be applied to raw capture samples, which would destroy
// the capture pipeline's DC-removal behaviour (spec section 4.5).
type AGC struct {
	gain         float64
	targetLevel  float64
	attackAlpha  float64
	releaseAlpha float64
}

// NewAGC builds an AGC with attack/release time constants in seconds
// at the given hop rate, targeting targetLevel times full-scale RMS.
func NewAGC(attackTauSec, releaseTauSec, targetLevel, hopRateHz float64) *AGC {
	return &AGC{
		gain:         1.0,
		targetLevel:  targetLevel,
		attackAlpha:  timeConstantToAlpha(attackTauSec, hopRateHz),
		releaseAlpha: timeConstantToAlpha(releaseTauSec, hopRateHz),
	}
}

func timeConstantToAlpha(tauSec, hopRateHz float64) float64 {
	if tauSec <= 0 {
		return 1
	}
	return 1 / (tauSec * hopRateHz)
}

// Apply updates the gain from the hop's RMS level and scales mags in
// place. The gain chases targetLevel/rms: fast when the signal just
// got louder than the current gain would allow (attack), slow when
// it eases off and the gain is recovering (release).
func (a *AGC) Apply(rms float64, mags []float64) {
	const eps = 1e-6
	desired := a.targetLevel / math.Max(rms, eps)

	alpha := a.releaseAlpha
	if desired < a.gain {
		alpha = a.attackAlpha
	}
	a.gain += alpha * (desired - a.gain)

	if a.gain < 0.01 {
		a.gain = 0.01
	}
	if a.gain > 100 {
		a.gain = 100
	}
	for i := range mags {
		mags[i] *= a.gain
	}
}

// Gain returns the current broadband gain.
func (a *AGC) Gain() float64 {
	return a.gain
}

// Clamp01 restricts x to [0, 1], used pervasively when assembling
// fields that the control bus promises to keep normalised.
func Clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
