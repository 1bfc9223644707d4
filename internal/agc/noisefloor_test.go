package agc

import "testing"

func TestNoiseFloorNeverBelowEpsilon(t *testing.T) {
	nf := NewNoiseFloor(4, 62.5)
	for i := 0; i < 1000; i++ {
		nf.Update([]float64{0, 0, 0, 0})
	}
	for k := 0; k < 4; k++ {
		if nf.Floor(k) < minFloor {
			t.Errorf("bin %d floor %v below epsilon %v", k, nf.Floor(k), minFloor)
		}
	}
}

func TestNoiseFloorTracksRisingMagnitude(t *testing.T) {
	nf := NewNoiseFloor(1, 62.5)
	for i := 0; i < 500; i++ {
		nf.Update([]float64{0.5})
	}
	if nf.Floor(0) < 0.4 {
		t.Errorf("expected floor to converge near 0.5, got %v", nf.Floor(0))
	}
}

func TestIsAboveFloorDefaultMargin(t *testing.T) {
	nf := NewNoiseFloor(1, 62.5)
	nf.floor[0] = 0.1
	if !nf.IsAboveFloor(0, 0.25, 2.0) {
		t.Error("0.25 should be above 2x floor of 0.1")
	}
	if nf.IsAboveFloor(0, 0.15, 2.0) {
		t.Error("0.15 should not be above 2x floor of 0.1")
	}
}

func TestApplyFloorClampsNotZero(t *testing.T) {
	nf := NewNoiseFloor(2, 62.5)
	nf.floor[0] = 0.2
	nf.floor[1] = 0.3
	mags := []float64{0.05, 0.5}
	nf.ApplyFloor(mags)
	if mags[0] != 0.2 {
		t.Errorf("expected below-floor bin clamped to floor 0.2, got %v", mags[0])
	}
	if mags[1] != 0.5 {
		t.Errorf("expected above-floor bin unchanged, got %v", mags[1])
	}
}

func TestAGCAttackFasterThanRelease(t *testing.T) {
	a := NewAGC(0.01, 0.5, 0.7, 62.5)
	mags := []float64{1.0}

	a.Apply(0.01, mags) // quiet signal, gain should rise (slow release toward high desired gain)
	afterQuiet := a.Gain()

	a2 := NewAGC(0.01, 0.5, 0.7, 62.5)
	mags2 := []float64{1.0}
	a2.Apply(1.0, mags2) // loud signal, desired gain < 1 triggers fast attack
	afterLoud := a2.Gain()

	if afterQuiet <= 1.0 {
		t.Errorf("expected gain to start rising above 1.0 for quiet input, got %v", afterQuiet)
	}
	if afterLoud >= 1.0 {
		t.Errorf("expected gain to drop below 1.0 for loud input, got %v", afterLoud)
	}
}

func TestClamp01(t *testing.T) {
	if Clamp01(-1) != 0 {
		t.Error("expected -1 clamped to 0")
	}
	if Clamp01(2) != 1 {
		t.Error("expected 2 clamped to 1")
	}
	if Clamp01(0.5) != 0.5 {
		t.Error("expected 0.5 unchanged")
	}
}
