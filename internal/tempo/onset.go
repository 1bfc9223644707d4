package tempo

import (
	"math"
	"sort"

	"github.com/doismell-labs/musicd/internal/types"
	"gonum.org/v1/gonum/stat"
)

const (
	historyLen       = 40 // ~640ms of combined-flux history at 62.5 hops/s
	onsetBaselineMin = 1e-3
	onsetBaselineAlpha = 0.22
	fluxNormalizedMax  = 10
	onsetAbsoluteFloor = 0.02
)

// onsetState carries the EMA baselines and short flux history used to
// build an adaptive onset threshold (spec section 3, OnsetState).
type onsetState struct {
	vuBaseline   float64
	fluxBaseline float64

	history    [historyLen]float64
	historyLen int
	historyPos int

	lastOnsetSample uint64
	haveOnset       bool

	prevCombined     float64
	prevPrevCombined float64

	prevRMS float64
}

func newOnsetState() *onsetState {
	return &onsetState{
		vuBaseline:   onsetBaselineMin,
		fluxBaseline: onsetBaselineMin,
	}
}

// pushHistory appends a combined-flux sample to the circular history.
func (o *onsetState) pushHistory(v float64) {
	o.history[o.historyPos] = v
	o.historyPos = (o.historyPos + 1) % historyLen
	if o.historyLen < historyLen {
		o.historyLen++
	}
}

// thresholdStats returns median + sensitivity*stddev over the current
// flux history (spec section 4.9.2; sensitivity is the configured
// adaptiveThresholdSensitivity, default 1.5).
func (o *onsetState) thresholdStats(sensitivity float64) float64 {
	if o.historyLen == 0 {
		return onsetAbsoluteFloor
	}
	buf := make([]float64, o.historyLen)
	copy(buf, o.history[:o.historyLen])
	sort.Float64s(buf)
	median := stat.Quantile(0.5, stat.Empirical, buf, nil)
	std := stat.StdDev(buf, nil)
	return median + sensitivity*std
}

// combinedFlux normalises and blends the VU derivative and spectral
// flux signals 50/50, per spec section 4.9.2.
func (o *onsetState) combinedFlux(rms, flux float64) float64 {
	vuDeriv := math.Max(0, rms-o.prevRMS)
	o.prevRMS = rms

	o.vuBaseline += onsetBaselineAlpha * (vuDeriv - o.vuBaseline)
	if o.vuBaseline < onsetBaselineMin {
		o.vuBaseline = onsetBaselineMin
	}
	o.fluxBaseline += onsetBaselineAlpha * (flux - o.fluxBaseline)
	if o.fluxBaseline < onsetBaselineMin {
		o.fluxBaseline = onsetBaselineMin
	}

	combined := 0.5*(vuDeriv/o.vuBaseline) + 0.5*(flux/o.fluxBaseline)
	return clamp(combined, 0, fluxNormalizedMax)
}

// detect evaluates one hop's combined flux against the adaptive
// threshold and refractory window, returning whether an onset fired
// and, if so, its strength.
func (o *onsetState) detect(frame types.AudioFeatureFrame, thresholdMultiplier, sensitivity, refractorySamples float64) (onset bool, strength, threshold float64) {
	combined := o.combinedFlux(frame.RMS, frame.SpectralFlux)
	threshold = o.thresholdStats(sensitivity)
	o.pushHistory(combined)

	isPeak := combined > o.prevCombined && o.prevCombined > o.prevPrevCombined
	elapsed := float64(frame.Time.SampleIndex - o.lastOnsetSample)
	refractoryOK := !o.haveOnset || elapsed >= refractorySamples
	aboveThreshold := combined > threshold*thresholdMultiplier
	aboveFloor := combined > onsetAbsoluteFloor

	onset = aboveThreshold && isPeak && refractoryOK && aboveFloor
	if onset {
		strength = clamp(combined/math.Max(threshold, onsetBaselineMin), 0, 5)
		o.lastOnsetSample = frame.Time.SampleIndex
		o.haveOnset = true
	}

	o.prevPrevCombined = o.prevCombined
	o.prevCombined = combined
	return onset, strength, threshold
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

