package controlbus

import (
	"testing"

	"github.com/doismell-labs/musicd/internal/config"
	"github.com/doismell-labs/musicd/internal/types"
)

func TestFirstHopSeedsWithoutSmoothing(t *testing.T) {
	cfg := config.DefaultConfig()
	s := NewSmoother(cfg)
	frame := types.AudioFeatureFrame{RMS: 0.5, SpectralFlux: 0.2}
	out := s.Update(frame, false, 0)
	if out.RMS != 0.5 {
		t.Errorf("expected seeded RMS 0.5, got %v", out.RMS)
	}
}

func TestRisingRMSUsesAttack(t *testing.T) {
	cfg := config.DefaultConfig()
	s := NewSmoother(cfg)
	s.Update(types.AudioFeatureFrame{RMS: 0.1}, false, 0)
	out := s.Update(types.AudioFeatureFrame{RMS: 0.9}, false, 0)
	// attack = 0.3 -> rms should move noticeably towards 0.9 in one hop
	if out.RMS <= 0.1 || out.RMS >= 0.9 {
		t.Errorf("expected partial rise, got %v", out.RMS)
	}
	expected := 0.1 + cfg.Attack*(0.9-0.1)
	if diff := out.RMS - expected; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected rms %v, got %v", expected, out.RMS)
	}
}

func TestFallingRMSUsesRelease(t *testing.T) {
	cfg := config.DefaultConfig()
	s := NewSmoother(cfg)
	s.Update(types.AudioFeatureFrame{RMS: 0.9}, false, 0)
	out := s.Update(types.AudioFeatureFrame{RMS: 0.1}, false, 0)
	expected := 0.9 + cfg.Release*(0.1-0.9)
	if diff := out.RMS - expected; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected rms %v, got %v", expected, out.RMS)
	}
}

func TestOutputFieldsStayInUnitRange(t *testing.T) {
	cfg := config.DefaultConfig()
	s := NewSmoother(cfg)
	frame := types.AudioFeatureFrame{RMS: 5, SpectralFlux: -3}
	for i := range frame.Bands {
		frame.Bands[i] = 10
	}
	out := s.Update(frame, true, 1.0)
	if out.RMS > 1 || out.Flux > 1 || out.Flux < 0 {
		t.Errorf("expected clamped fields, got rms=%v flux=%v", out.RMS, out.Flux)
	}
	for _, b := range out.Bands {
		if b > 1 {
			t.Errorf("expected band clamped to 1, got %v", b)
		}
	}
}

func TestBeatFlagsPassThroughUnchanged(t *testing.T) {
	cfg := config.DefaultConfig()
	s := NewSmoother(cfg)
	out := s.Update(types.AudioFeatureFrame{}, true, 0.75)
	if !out.BeatDetected || out.BeatStrength != 0.75 {
		t.Errorf("expected beat flags to pass through, got %v %v", out.BeatDetected, out.BeatStrength)
	}
}
