package tempo

import "math"

// pll is the second-order phase/tempo correction loop run on every
// onset (spec section 4.9.4). It nudges the beat phase prediction
// towards the observed onset time and feeds a slow tempo correction
// back through its integrator.
type pll struct {
	integrator float64
}

// wrapPhaseError wraps an error value to (-0.5, 0.5], so a phase error
// is always expressed as the shortest signed distance to the nearest
// beat.
func wrapPhaseError(e float64) float64 {
	e = math.Mod(e, 1.0)
	if e <= -0.5 {
		e += 1.0
	}
	if e > 0.5 {
		e -= 1.0
	}
	return e
}

// correct computes the phase and tempo corrections for one onset,
// given the wrapped phase error and the loop gains/clamps from
// configuration. It mutates the integrator state.
func (p *pll) correct(phaseError, kp, ki, maxPhaseCorrection, maxIntegral, maxTempoCorrection float64) (phaseCorrection, tempoCorrectionBPM float64) {
	phaseCorrection = clamp(kp*phaseError, -maxPhaseCorrection, maxPhaseCorrection)

	p.integrator += ki * phaseError
	p.integrator = clamp(p.integrator, -maxIntegral, maxIntegral)

	tempoCorrectionBPM = clamp(p.integrator, -maxTempoCorrection, maxTempoCorrection)
	return phaseCorrection, tempoCorrectionBPM
}

// reset clears the integrator, used on a tempo re-seed.
func (p *pll) reset() {
	p.integrator = 0
}
