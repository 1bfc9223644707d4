package tempo

import "github.com/doismell-labs/musicd/internal/types"

// stateParams bundles the per-state sensitivity knobs from the table
// in spec section 4.9.5.
type stateParams struct {
	onsetThresholdMultiplier float64
	useAttackAlpha           bool // true = bpmAlphaAttack, false = bpmAlphaRelease
}

// paramsFor returns the sensitivity parameters for a tempo state.
func paramsFor(s types.TempoState) stateParams {
	switch s {
	case types.TempoInitializing:
		return stateParams{1.0, true}
	case types.TempoSearching:
		return stateParams{0.8, true}
	case types.TempoLocking:
		return stateParams{1.0, true}
	case types.TempoLocked:
		return stateParams{1.2, false}
	case types.TempoUnlocking:
		return stateParams{1.1, false}
	default:
		return stateParams{1.0, true}
	}
}

// nextState applies the transition table from spec section 4.9.5.
// hopsSinceStart lets INITIALIZING exit after its fixed 50-hop warm-up
// regardless of confidence; every other transition is confidence
// gated.
func nextState(current types.TempoState, confidence float64, hopsSinceStart int) types.TempoState {
	switch current {
	case types.TempoInitializing:
		if hopsSinceStart >= 50 {
			if confidence > 0.3 {
				return types.TempoLocking
			}
			return types.TempoSearching
		}
		return types.TempoInitializing

	case types.TempoSearching:
		if confidence > 0.3 {
			return types.TempoLocking
		}
		return types.TempoSearching

	case types.TempoLocking:
		if confidence > 0.5 {
			return types.TempoLocked
		}
		if confidence < 0.2 {
			return types.TempoSearching
		}
		return types.TempoLocking

	case types.TempoLocked:
		if confidence < 0.4 {
			return types.TempoUnlocking
		}
		return types.TempoLocked

	case types.TempoUnlocking:
		if confidence >= 0.5 {
			return types.TempoLocked
		}
		if confidence < 0.2 {
			return types.TempoSearching
		}
		return types.TempoUnlocking

	default:
		return types.TempoInitializing
	}
}
