// Package chroma folds the harmony Goertzel bank's magnitudes into
// twelve pitch-class bins and tracks how clearly a single key
// dominates over time.
package chroma

import (
	"math"

	"github.com/doismell-labs/musicd/internal/types"
)

// classOf maps a frequency to a pitch class with C = 0, by the
// equal-temperament rule in spec section 4.7: classify relative to
// A4 = 440Hz, then rotate by 9 semitones so C lands on 0.
func classOf(freqHz float64) int {
	raw := int(math.Round(12 * math.Log2(freqHz/440)))
	raw = ((raw % 12) + 12) % 12
	return (raw + 9) % 12
}

// Extractor folds harmony-bank magnitudes into chroma and smooths key
// clarity over a ~500ms horizon.
type Extractor struct {
	classes    []int // precomputed per-bin pitch class, parallel to the harmony bin list
	clarityEMA float64
	alpha      float64
}

// NewExtractor precomputes the pitch class of each harmony bin
// frequency and sets up the key-clarity smoother for the given hop
// rate.
func NewExtractor(binFreqsHz []float64, hopRateHz float64) *Extractor {
	classes := make([]int, len(binFreqsHz))
	for i, f := range binFreqsHz {
		classes[i] = classOf(f)
	}
	return &Extractor{
		classes: classes,
		alpha:   1 / (0.5 * hopRateHz), // tau ~= 500ms
	}
}

// Update folds mags (aligned with the bin frequencies passed to
// NewExtractor) into a normalised 12-bin chroma vector and returns the
// smoothed key clarity.
func (e *Extractor) Update(mags []float64) ([types.NumChroma]float64, float64) {
	var energy [types.NumChroma]float64
	var total float64
	for i, m := range mags {
		if i >= len(e.classes) {
			break
		}
		energy[e.classes[i]] += m
		total += m
	}

	var chroma [types.NumChroma]float64
	maxE := 0.0
	for _, v := range energy {
		if v > maxE {
			maxE = v
		}
	}
	if maxE > 0 {
		for i, v := range energy {
			chroma[i] = v / maxE
		}
	}

	dominant := 0.0
	for _, v := range energy {
		if v > dominant {
			dominant = v
		}
	}
	instantClarity := 0.0
	if total > 0 {
		instantClarity = dominant / total
	}
	e.clarityEMA += e.alpha * (instantClarity - e.clarityEMA)

	return chroma, e.clarityEMA
}
