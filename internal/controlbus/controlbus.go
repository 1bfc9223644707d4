// Package controlbus turns raw per-hop features into the smoothed
// ControlBusFrame that downstream consumers subscribe to.
package controlbus

import (
	"github.com/doismell-labs/musicd/internal/config"
	"github.com/doismell-labs/musicd/internal/types"
)

// Smoother owns the envelope memory for every field of a
// ControlBusFrame and the separate drive/punch envelopes (spec
// section 4.8).
type Smoother struct {
	cfg *config.EngineConfig

	rms    float64
	flux   float64
	bands  [types.NumBands]float64
	chroma [types.NumChroma]float64

	drive float64
	punch float64

	seeded bool
}

// NewSmoother creates a smoother using the attack/release coefficients
// from cfg.
func NewSmoother(cfg *config.EngineConfig) *Smoother {
	return &Smoother{cfg: cfg}
}

// ease applies y += alpha*(x-y) with attack chosen when x rises above
// y, release otherwise; a lower alpha means slower movement.
func ease(y, x, attack, release float64) float64 {
	alpha := release
	if x > y {
		alpha = attack
	}
	return y + alpha*(x-y)
}

// Update folds one hop's raw feature frame and the tempo tracker's
// beat output into a fully smoothed ControlBusFrame.
func (s *Smoother) Update(frame types.AudioFeatureFrame, beatDetected bool, beatStrength float64) types.ControlBusFrame {
	attack, release := s.cfg.Attack, s.cfg.Release

	if !s.seeded {
		s.rms = frame.RMS
		s.flux = frame.SpectralFlux
		s.bands = frame.Bands
		s.chroma = frame.Chroma
		s.drive = frame.RMS
		s.punch = 0
		s.seeded = true
	} else {
		s.rms = ease(s.rms, frame.RMS, attack, release)
		s.flux = ease(s.flux, frame.SpectralFlux, attack, release)
		for i := range s.bands {
			s.bands[i] = ease(s.bands[i], frame.Bands[i], attack, release)
		}
		for i := range s.chroma {
			s.chroma[i] = ease(s.chroma[i], frame.Chroma[i], attack, release)
		}
		s.drive = ease(s.drive, frame.RMS, attack, s.cfg.DriveRelease)

		positiveFlux := frame.SpectralFlux
		if positiveFlux < 0 {
			positiveFlux = 0
		}
		s.punch = ease(s.punch, positiveFlux, attack, s.cfg.PunchRelease)
	}

	return types.ControlBusFrame{
		Time:         frame.Time,
		RMS:          clampUnit(s.rms),
		Flux:         clampUnit(s.flux),
		Bands:        clampBands(s.bands),
		Chroma:       clampChroma(s.chroma),
		Drive:        clampUnit(s.drive),
		Punch:        clampUnit(s.punch),
		BeatDetected: beatDetected,
		BeatStrength: beatStrength,
	}
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

func clampBands(b [types.NumBands]float64) [types.NumBands]float64 {
	for i := range b {
		b[i] = clampUnit(b[i])
	}
	return b
}

func clampChroma(c [types.NumChroma]float64) [types.NumChroma]float64 {
	for i := range c {
		c[i] = clampUnit(c[i])
	}
	return c
}
