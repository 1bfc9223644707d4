package style

import (
	"testing"

	"github.com/doismell-labs/musicd/internal/config"
	"github.com/doismell-labs/musicd/internal/types"
)

func rhythmicFrame() types.AudioFeatureFrame {
	f := types.AudioFeatureFrame{RMS: 0.5, SpectralFlux: 0.1}
	f.Bands[0] = 0.6
	f.Bands[1] = 0.2
	return f
}

func TestClassifierStaysUnknownBeforeWarmup(t *testing.T) {
	cfg := config.DefaultConfig()
	c := NewClassifier(cfg)
	var result types.StyleClassification
	for i := 0; i < cfg.MinHopsForClassification-1; i++ {
		result = c.Update(rhythmicFrame(), 0.5, false)
	}
	if result.Dominant != types.StyleUnknown {
		t.Errorf("expected UNKNOWN before warm-up, got %v", result.Dominant)
	}
}

func TestClassifierLeansRhythmicForHighBeatConfidenceAndBass(t *testing.T) {
	cfg := config.DefaultConfig()
	c := NewClassifier(cfg)
	var result types.StyleClassification
	for i := 0; i < cfg.MinHopsForClassification+50; i++ {
		result = c.Update(rhythmicFrame(), 0.6, false)
	}
	if result.Dominant != types.StyleRhythmic {
		t.Errorf("expected RHYTHMIC dominant, got %v (weights %v)", result.Dominant, result.Weights)
	}
}

func TestHysteresisResistsFlapping(t *testing.T) {
	cfg := config.DefaultConfig()
	c := NewClassifier(cfg)
	for i := 0; i < cfg.MinHopsForClassification+20; i++ {
		c.Update(rhythmicFrame(), 0.6, false)
	}
	locked := c.dominant

	// A single ambiguous hop should not flip the dominant class.
	ambiguous := types.AudioFeatureFrame{RMS: 0.3, SpectralFlux: 0.06}
	ambiguous.Bands[2] = 0.3
	c.Update(ambiguous, 0.4, true)
	if c.dominant != locked {
		t.Errorf("expected dominant class to resist a single ambiguous hop, was %v now %v", locked, c.dominant)
	}
}

// TestAccumulatorWeightConvergesPastWindow pins down the exponential-
// forgetting shape spec.md:221 asks for: once hopsAnalysed exceeds
// AnalysisWindowHops, the decayed weight denominator settles toward
// 1/(1-windowDecay), well below a hard-cutoff window that would just
// plateau at AnalysisWindowHops.
func TestAccumulatorWeightConvergesPastWindow(t *testing.T) {
	cfg := config.DefaultConfig()
	c := NewClassifier(cfg)
	for i := 0; i < cfg.AnalysisWindowHops+5000; i++ {
		c.Update(rhythmicFrame(), 0.6, false)
	}
	steadyState := 1.0 / (1.0 - windowDecay)
	if c.weight > steadyState*1.5 {
		t.Errorf("expected decayed weight near steady state %v, got %v", steadyState, c.weight)
	}
	if c.weight >= float64(cfg.AnalysisWindowHops) {
		t.Errorf("expected decay to shrink weight below the hard window size %d, got %v", cfg.AnalysisWindowHops, c.weight)
	}
}

// TestClassifierForgetsSilenceAfterWindow checks that a run of silence
// following sustained rhythmic content fades the dominant class's
// margin rather than holding it exactly until a buffer slot is
// overwritten — the observable difference between exponential
// forgetting and a hard-cutoff ring buffer.
func TestClassifierForgetsSilenceAfterWindow(t *testing.T) {
	cfg := config.DefaultConfig()
	c := NewClassifier(cfg)
	for i := 0; i < cfg.AnalysisWindowHops+50; i++ {
		c.Update(rhythmicFrame(), 0.6, false)
	}
	rhythmicWeight := c.weights[types.StyleRhythmic-1]

	silence := types.AudioFeatureFrame{}
	for i := 0; i < 400; i++ {
		c.Update(silence, 0.0, false)
	}
	if c.weights[types.StyleRhythmic-1] >= rhythmicWeight {
		t.Errorf("expected rhythmic weight to fade after silence, was %v now %v", rhythmicWeight, c.weights[types.StyleRhythmic-1])
	}
}

func TestWeightsStayInUnitRange(t *testing.T) {
	cfg := config.DefaultConfig()
	c := NewClassifier(cfg)
	var result types.StyleClassification
	for i := 0; i < 800; i++ {
		result = c.Update(rhythmicFrame(), 0.6, i%10 == 0)
	}
	for _, w := range result.Weights {
		if w < 0 || w > 1 {
			t.Errorf("expected weight in [0,1], got %v", w)
		}
	}
}
