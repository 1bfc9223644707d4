package tempo

import "math"

// confidenceFactors are the four raw inputs combined into the
// tempo tracker's confidence score (spec section 4.9.6).
type confidenceFactors struct {
	onsetStrengthFactor float64
	tempoConsistency    float64
	stability           float64
	phaseCoherence      float64
}

// combine applies the fixed weighting from spec section 4.9.6.
func (f confidenceFactors) combine() float64 {
	return 0.4*f.onsetStrengthFactor +
		0.3*f.tempoConsistency +
		0.2*f.stability +
		0.1*f.phaseCoherence
}

// onsetStrengthFactor compares a recent onset's flux against the
// onset-history baseline, clamped to [0, 1].
func onsetStrengthFactor(recentFlux, baseline float64) float64 {
	if baseline <= 0 {
		return 0
	}
	return clamp(recentFlux/baseline, 0, 1)
}

// tempoConsistency derives 1 - CoV(recent intervals), clamped so a
// tightly clustered set of intervals drives confidence up.
func tempoConsistency(intervalsSec []float64) float64 {
	n := len(intervalsSec)
	if n < 2 {
		return 0
	}
	var mean float64
	for _, v := range intervalsSec {
		mean += v
	}
	mean /= float64(n)
	if mean <= 0 {
		return 0
	}
	var sumSq float64
	for _, v := range intervalsSec {
		d := v - mean
		sumSq += d * d
	}
	std := math.Sqrt(sumSq / float64(n))
	cov := std / mean
	return 1 - clamp(cov, 0, 1)
}

// stability reflects how dominant the winning density bin is
// relative to the raw vote scale (spec section 4.9.6).
func stability(votesInWinnerBin float64) float64 {
	return clamp(votesInWinnerBin/100, 0, 1)
}

// phaseCoherence turns the most recent PLL phase error into a
// confidence contribution.
func phaseCoherence(phaseError float64) float64 {
	return clamp(1-math.Abs(phaseError)*2, 0, 1)
}

// confidenceSmoother tracks the event-driven rise/fall confidence
// value and its EMA-smoothed output (spec section 4.9.6).
type confidenceSmoother struct {
	raw    float64
	smooth float64
}

const (
	confRise = 0.1
	confFallPerSec = 0.2
	confEMAAlpha   = 0.2
)

// onOnset bumps the raw confidence up by confRise, clamped to the
// freshly combined multi-factor value as a ceiling so a single
// spurious onset cannot overshoot what the factors support.
func (c *confidenceSmoother) onOnset(factors confidenceFactors) {
	target := factors.combine()
	c.raw += confRise
	if c.raw > target {
		c.raw = target
	}
	c.raw = clamp(c.raw, 0, 1)
	c.smooth += confEMAAlpha * (c.raw - c.smooth)
}

// decay applies the per-second fall rate scaled by dtSec, used every
// hop whether or not an onset fired.
func (c *confidenceSmoother) decay(dtSec float64) {
	c.raw -= confFallPerSec * dtSec
	c.raw = clamp(c.raw, 0, 1)
	c.smooth += confEMAAlpha * (c.raw - c.smooth)
}

func (c *confidenceSmoother) value() float64 {
	return c.smooth
}
