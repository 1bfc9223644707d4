package novelty

import (
	"testing"

	"github.com/doismell-labs/musicd/internal/agc"
)

func TestFirstHopReturnsZero(t *testing.T) {
	tr := NewTracker(4)
	floor := agc.NewNoiseFloor(4, 62.5)
	got := tr.Update([]float64{0.5, 0.5, 0.5, 0.5}, floor)
	if got != 0 {
		t.Errorf("expected first hop to return 0, got %v", got)
	}
}

func TestRisingMagnitudeProducesPositiveNovelty(t *testing.T) {
	tr := NewTracker(2)
	floor := agc.NewNoiseFloor(2, 62.5)
	floor.Reset()
	// force both bins well above floor
	for i := 0; i < 10; i++ {
		floor.Update([]float64{0.01, 0.01})
	}

	tr.Update([]float64{0.1, 0.1}, floor)
	got := tr.Update([]float64{0.5, 0.5}, floor)
	if got <= 0 {
		t.Errorf("expected positive novelty for a rising magnitude, got %v", got)
	}
}

func TestFallingMagnitudeProducesZeroNovelty(t *testing.T) {
	tr := NewTracker(2)
	floor := agc.NewNoiseFloor(2, 62.5)
	for i := 0; i < 10; i++ {
		floor.Update([]float64{0.01, 0.01})
	}

	tr.Update([]float64{0.5, 0.5}, floor)
	got := tr.Update([]float64{0.1, 0.1}, floor)
	if got != 0 {
		t.Errorf("expected zero novelty for a falling magnitude, got %v", got)
	}
}
