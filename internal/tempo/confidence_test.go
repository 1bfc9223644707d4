package tempo

import (
	"math"
	"testing"
)

func TestCombineWeightsSumToOne(t *testing.T) {
	f := confidenceFactors{
		onsetStrengthFactor: 1,
		tempoConsistency:    1,
		stability:           1,
		phaseCoherence:      1,
	}
	if got := f.combine(); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("expected combine() = 1.0 for all-unity factors, got %v", got)
	}
}

func TestOnsetStrengthFactorClamped(t *testing.T) {
	if got := onsetStrengthFactor(5, 1); got != 1 {
		t.Errorf("expected clamp to 1, got %v", got)
	}
	if got := onsetStrengthFactor(0, 1); got != 0 {
		t.Errorf("expected 0 for zero flux, got %v", got)
	}
	if got := onsetStrengthFactor(1, 0); got != 0 {
		t.Errorf("expected 0 for zero baseline, got %v", got)
	}
}

func TestTempoConsistencyPerfectForIdenticalIntervals(t *testing.T) {
	got := tempoConsistency([]float64{0.5, 0.5, 0.5, 0.5})
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("expected consistency 1.0 for identical intervals, got %v", got)
	}
}

func TestTempoConsistencyLowForScattered(t *testing.T) {
	got := tempoConsistency([]float64{0.3, 0.9, 0.2, 1.1})
	if got > 0.6 {
		t.Errorf("expected low consistency for scattered intervals, got %v", got)
	}
}

func TestStabilityClampedAtHundredVotes(t *testing.T) {
	if got := stability(200); got != 1 {
		t.Errorf("expected stability clamped to 1, got %v", got)
	}
	if got := stability(50); got != 0.5 {
		t.Errorf("expected stability 0.5 at 50 votes, got %v", got)
	}
}

func TestPhaseCoherenceDropsWithError(t *testing.T) {
	if got := phaseCoherence(0); got != 1 {
		t.Errorf("expected coherence 1 at zero phase error, got %v", got)
	}
	if got := phaseCoherence(0.5); got != 0 {
		t.Errorf("expected coherence 0 at phase error 0.5, got %v", got)
	}
}

func TestConfidenceSmootherRisesOnOnsetAndDecaysOverTime(t *testing.T) {
	c := &confidenceSmoother{}
	strong := confidenceFactors{1, 1, 1, 1}
	for i := 0; i < 20; i++ {
		c.onOnset(strong)
	}
	if c.value() <= 0 {
		t.Fatalf("expected confidence to rise after repeated onsets, got %v", c.value())
	}
	before := c.value()
	for i := 0; i < 50; i++ {
		c.decay(1.0)
	}
	if c.value() >= before {
		t.Errorf("expected confidence to decay without onsets, before=%v after=%v", before, c.value())
	}
}
