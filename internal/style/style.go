// Package style accumulates rolling statistics over the feature
// stream and scores five coarse musical-style classes from them.
package style

import (
	"math"

	"github.com/doismell-labs/musicd/internal/config"
	"github.com/doismell-labs/musicd/internal/types"
)

// windowDecay is the per-hop forgetting factor applied to every
// accumulator once the analysis window has filled (spec section
// 4.10): old hops never drop out in one step, they fade out
// exponentially.
const windowDecay = 0.99

// Classifier holds the decayed running accumulators and the smoothed
// class weights (spec section 4.10). All accumulators are float64 and
// are only ever read back as ratios or truncated at the reporting
// boundary, per spec section 9(c), so the slow forgetting stays exact
// instead of being rounded away a hop at a time.
type Classifier struct {
	cfg *config.EngineConfig

	weight float64 // decayed count of hops folded in, used as the ratio denominator

	sumConf, sumConfSq float64
	sumFlux, sumFluxSq float64

	maxRMS, minRMS float64
	haveRMS        bool

	bass, mid, treble, total float64
	chordChanges             float64

	hopsAnalysed int
	weights      [5]float64 // indexed StyleClass-1
	dominant     types.StyleClass
}

// NewClassifier creates a classifier that starts decaying its
// accumulators once more than cfg.AnalysisWindowHops hops have been
// seen (default 600 hops ~ 9.6s at 62.5Hz).
func NewClassifier(cfg *config.EngineConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Update folds one hop's features into the decayed accumulators and
// returns the current classification. Results are unstable before
// minHopsForClassification hops have been seen.
func (c *Classifier) Update(frame types.AudioFeatureFrame, beatConfidence float64, chordChanged bool) types.StyleClassification {
	c.hopsAnalysed++
	if c.hopsAnalysed > c.cfg.AnalysisWindowHops {
		c.decay()
	}
	c.accumulate(frame, beatConfidence, chordChanged)

	feats := c.extractFeatures()
	scores := scoreClasses(feats)

	alpha := c.cfg.StyleAlpha
	for i := range c.weights {
		c.weights[i] += alpha * (scores[i] - c.weights[i])
	}

	c.updateDominant()

	conf := 0.0
	if c.hopsAnalysed >= c.cfg.MinHopsForClassification {
		conf = c.weights[c.dominant-1]
	}

	return types.StyleClassification{
		Dominant:       c.dominant,
		Weights:        c.weights,
		Confidence:     conf,
		FramesAnalysed: c.hopsAnalysed,
	}
}

// decay scales every accumulator by windowDecay, the exponential
// stand-in for evicting the oldest hop from a hard-cutoff window.
// maxRMS decays toward zero and minRMS relaxes upward so a stale
// extreme fades out instead of pinning dynamicRange forever.
func (c *Classifier) decay() {
	c.weight *= windowDecay
	c.sumConf *= windowDecay
	c.sumConfSq *= windowDecay
	c.sumFlux *= windowDecay
	c.sumFluxSq *= windowDecay
	c.bass *= windowDecay
	c.mid *= windowDecay
	c.treble *= windowDecay
	c.total *= windowDecay
	c.chordChanges *= windowDecay

	c.maxRMS *= windowDecay
	if c.minRMS > 0 {
		c.minRMS /= windowDecay
	}
}

func (c *Classifier) accumulate(frame types.AudioFeatureFrame, beatConfidence float64, chordChanged bool) {
	c.weight++
	c.sumConf += beatConfidence
	c.sumConfSq += beatConfidence * beatConfidence
	c.sumFlux += frame.SpectralFlux
	c.sumFluxSq += frame.SpectralFlux * frame.SpectralFlux

	if !c.haveRMS || frame.RMS > c.maxRMS {
		c.maxRMS = frame.RMS
	}
	if !c.haveRMS || frame.RMS < c.minRMS {
		c.minRMS = frame.RMS
	}
	c.haveRMS = true

	b := frame.Bands
	c.bass += b[0] + b[1]
	c.mid += b[2] + b[3] + b[4]
	c.treble += b[5] + b[6] + b[7]
	c.total += b[0] + b[1] + b[2] + b[3] + b[4] + b[5] + b[6] + b[7]

	if chordChanged {
		c.chordChanges++
	}
}

// updateDominant applies the hysteresis margin from spec section 4.10:
// the incumbent dominant class is kept unless a rival beats it by
// more than styleHysteresis.
func (c *Classifier) updateDominant() {
	if c.hopsAnalysed < c.cfg.MinHopsForClassification {
		c.dominant = types.StyleUnknown
		return
	}
	if c.dominant == types.StyleUnknown {
		c.dominant = argMaxClass(c.weights)
		return
	}
	best := argMaxClass(c.weights)
	if best == c.dominant {
		return
	}
	incumbentScore := c.weights[c.dominant-1]
	if c.weights[best-1] > incumbentScore+c.cfg.StyleHysteresis {
		c.dominant = best
	}
}

func argMaxClass(weights [5]float64) types.StyleClass {
	best := 0
	for i := 1; i < len(weights); i++ {
		if weights[i] > weights[best] {
			best = i
		}
	}
	return types.StyleClass(best + 1)
}

// features are the derived statistics spec section 4.10 scores on.
type features struct {
	beatConfAvg, beatConfVar float64
	bassRatio, midRatio, trebleRatio float64
	dynamicRange             float64
	fluxMean, fluxVariance   float64
	chordChangeRate          float64
}

// extractFeatures derives the spec section 4.10 statistics directly
// from the decayed accumulators; no pass over raw samples is needed
// since the sum-of-squares accumulators carry enough information for
// the variance terms (Var[X] = E[X^2] - E[X]^2).
func (c *Classifier) extractFeatures() features {
	if c.weight <= 0 {
		return features{}
	}

	confAvg := c.sumConf / c.weight
	confVar := c.sumConfSq/c.weight - confAvg*confAvg
	fluxMean := c.sumFlux / c.weight
	fluxVar := c.sumFluxSq/c.weight - fluxMean*fluxMean

	bassRatio, midRatio, trebleRatio := 0.0, 0.0, 0.0
	if c.total > 0 {
		bassRatio = c.bass / c.total
		midRatio = c.mid / c.total
		trebleRatio = c.treble / c.total
	}

	hopRateHz := 62.5
	chordChangeRate := c.chordChanges / (c.weight / hopRateHz)

	return features{
		beatConfAvg:     confAvg,
		beatConfVar:     math.Max(0, confVar),
		bassRatio:       bassRatio,
		midRatio:        midRatio,
		trebleRatio:     trebleRatio,
		dynamicRange:    c.maxRMS - c.minRMS,
		fluxMean:        fluxMean,
		fluxVariance:    math.Max(0, fluxVar),
		chordChangeRate: chordChangeRate,
	}
}

// scoreClasses implements the threshold-contribution table from spec
// section 4.10, one score per class in [0, 1], indexed by
// StyleClass-1 (RHYTHMIC, HARMONIC, MELODIC, TEXTURE, DYNAMIC).
func scoreClasses(f features) [5]float64 {
	var scores [5]float64

	rhythmic := 0.0
	if f.beatConfAvg > 0.45 {
		rhythmic += 0.5
	}
	if f.bassRatio > 0.35 {
		rhythmic += 0.3
	}
	if f.beatConfVar < 0.1 && f.beatConfAvg > 0.3 {
		rhythmic += 0.2
	}
	scores[types.StyleRhythmic-1] = clampUnit(rhythmic)

	harmonic := 0.0
	if f.chordChangeRate > 0.5 {
		harmonic += 0.5
	}
	if f.beatConfAvg < 0.45 {
		harmonic += 0.2
	}
	if f.midRatio > 0.4 {
		harmonic += 0.3
	}
	scores[types.StyleHarmonic-1] = clampUnit(harmonic)

	melodic := 0.0
	if f.trebleRatio > 0.25 {
		melodic += 0.5
	}
	if f.beatConfAvg > 0.2 && f.beatConfAvg < 0.6 {
		melodic += 0.3
	}
	if f.bassRatio < 0.35 {
		melodic += 0.2
	}
	scores[types.StyleMelodic-1] = clampUnit(melodic)

	texture := 0.0
	if f.fluxVariance > 0.05 {
		texture += 0.4
	}
	if f.beatConfAvg < 0.2 {
		texture += 0.3
	}
	texture += (1 - math.Abs(f.bassRatio-f.trebleRatio)) * 0.3
	scores[types.StyleTexture-1] = clampUnit(texture)

	dynamic := 0.0
	if f.dynamicRange > 0.3 {
		dynamic += 0.6
	}
	if f.beatConfVar > 0.15 {
		dynamic += 0.2
	}
	if f.midRatio > 0.5 {
		dynamic += 0.2
	}
	scores[types.StyleDynamic-1] = clampUnit(dynamic)

	return scores
}

func clampUnit(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
