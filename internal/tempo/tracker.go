// Package tempo implements the onset-timing tempo tracker: adaptive
// onset detection, inter-onset interval voting into a tempo-density
// histogram, a five-state lock machine, a second-order PLL for phase
// and tempo refinement, and multi-factor confidence scoring.
package tempo

import (
	"github.com/doismell-labs/musicd/internal/config"
	"github.com/doismell-labs/musicd/internal/types"
	"gonum.org/v1/gonum/stat"
)

const jitterHistoryLen = 16

// BeatState is the tempo tracker's full persistent state (spec
// section 3, BeatState). It lives for the lifetime of the audio task
// and is mutated exclusively by Tracker.Update.
type BeatState struct {
	BPMSmoothed float64
	BPMRaw      float64
	BPMPrev     float64

	Phase01    float64
	Confidence float64

	LastUpdateSample uint64
	LastOnsetSample  uint64
	HaveLastOnset    bool

	PeriodEMASec float64

	bpmJitter   [jitterHistoryLen]float64
	phaseJitter [jitterHistoryLen]float64
	jitterPos   int
	jitterLen   int

	lowConfSeconds     float64
	stableSinceSample  uint64
	stableBaselineBPM  float64
}

// Tracker runs the three-layer pipeline (onset, beat tracking, output
// formatting) described in spec section 4.9.1 and owns all the
// private sub-state: onset detection, density histogram, PLL and
// state machine.
type Tracker struct {
	state BeatState
	onset *onsetState
	dens  *density
	loop  pll
	conf  confidenceSmoother

	trackerState   types.TempoState
	hopsSinceStart int

	softResetCount  uint64
	octaveFlipCount uint64
	lockStartSample uint64
	haveLockStart   bool

	lastPhaseError float64

	prevPhase01      float64
	havePrevPhase    bool
	lastTickSample   uint64
	haveLastTick     bool

	lastOnsetFired   bool
	lastOnsetStrength float64
	lastRejectReason types.RejectReason
}

// NewTracker returns a tracker in the INITIALIZING state.
func NewTracker() *Tracker {
	return &Tracker{
		onset:        newOnsetState(),
		dens:         newDensity(),
		trackerState: types.TempoInitializing,
	}
}

// Update runs one hop through the tempo pipeline. It returns whether
// an onset fired, whether a beat tick should be emitted this hop, and
// the tracker's current externally visible state.
func (tr *Tracker) Update(frame types.AudioFeatureFrame, cfg *config.EngineConfig) (onsetFired, beatTick bool, state types.TempoState, confidence, bpm, phase float64) {
	tr.hopsSinceStart++

	params := paramsFor(tr.trackerState)
	refractorySamples := cfg.RefractoryMs / 1000.0 * float64(types.SampleRateHz)

	thresholdMultiplier := cfg.OnsetThreshK * params.onsetThresholdMultiplier
	onsetFired, strength, _ := tr.onset.detect(frame, thresholdMultiplier, cfg.AdaptiveThresholdSensitivity, refractorySamples)

	dt := tr.dtSeconds(frame.Time.SampleIndex)
	tr.state.Phase01 += (tr.state.BPMSmoothed / 60.0) * dt
	rawPhase := tr.state.Phase01

	tr.dens.decay(cfg.DensityDecay)

	rejectReason := types.RejectNone
	if onsetFired {
		_, rejectReason = tr.processOnset(frame, strength, cfg)
	}

	peakBin, peakValue := tr.dens.peak()
	if peakValue > 0 {
		tr.state.BPMRaw = binToBPM(peakBin)
	}

	tr.applyBPMSmoothing(cfg)

	var phaseCorrection, tempoCorrection float64
	if onsetFired && rejectReason == types.RejectNone {
		phaseError := wrapPhaseError(rawPhase - roundNearest(rawPhase))
		tr.lastPhaseError = phaseError
		phaseCorrection, tempoCorrection = tr.loop.correct(
			phaseError, cfg.PLLKp, cfg.PLLKi,
			cfg.PLLMaxPhaseCorrection, cfg.PLLMaxIntegral, cfg.PLLMaxTempoCorrection)
		tr.state.Phase01 = wrapPhase01(rawPhase + phaseCorrection)
		tr.state.BPMSmoothed += tempoCorrection
	} else {
		tr.state.Phase01 = wrapPhase01(rawPhase)
	}

	tickWrapped := tr.detectBeatTick(frame.Time.SampleIndex)
	beatTick = tickWrapped && tr.trackerState == types.TempoLocked

	factors := tr.buildConfidenceFactors(peakValue, cfg)
	if onsetFired && rejectReason == types.RejectNone {
		tr.conf.onOnset(factors)
	} else {
		tr.conf.decay(dt)
	}
	tr.state.Confidence = tr.conf.value()

	tr.runSafetyNets(frame, cfg, dt)

	tr.trackerState = nextState(tr.trackerState, tr.state.Confidence, tr.hopsSinceStart)
	tr.trackLockTiming(frame.Time.SampleIndex)

	tr.pushJitter(tr.state.BPMSmoothed-tr.state.BPMPrev, tr.lastPhaseError)

	tr.state.LastUpdateSample = frame.Time.SampleIndex
	tr.state.BPMPrev = tr.state.BPMSmoothed

	tr.lastOnsetFired = onsetFired
	tr.lastOnsetStrength = strength
	tr.lastRejectReason = rejectReason

	return onsetFired, beatTick, tr.trackerState, tr.state.Confidence, tr.state.BPMSmoothed, tr.state.Phase01
}

// LastOnsetOutcome reports whether the most recent hop's onset (if
// any) was accepted into the density histogram and, if not, why —
// for the diagnostics onset/interval counters (spec section 6,
// Outputs).
func (tr *Tracker) LastOnsetOutcome() (fired bool, reject types.RejectReason) {
	return tr.lastOnsetFired, tr.lastRejectReason
}

// LastOnsetStrength reports the most recent hop's onset strength (0 if
// no onset fired), for populating AudioFeatureFrame.OnsetStrength.
func (tr *Tracker) LastOnsetStrength() float64 {
	return tr.lastOnsetStrength
}

// dtSeconds derives the hop's elapsed time from the sample-index
// delta rather than a fixed hop duration, so a dropped hop naturally
// appears as a longer dt without any wall-clock read (spec section
// 4.9.9, dropped-hop failure semantics).
func (tr *Tracker) dtSeconds(sampleIndex uint64) float64 {
	if tr.state.LastUpdateSample == 0 && sampleIndex == 0 {
		return float64(types.HopSize) / float64(types.SampleRateHz)
	}
	delta := sampleIndex - tr.state.LastUpdateSample
	if delta == 0 {
		delta = uint64(types.HopSize)
	}
	return float64(delta) / float64(types.SampleRateHz)
}

// processOnset computes the inter-onset interval, validates its
// range, and if accepted votes it (plus octave variants when
// confidence is still low) into the density histogram.
func (tr *Tracker) processOnset(frame types.AudioFeatureFrame, strength float64, cfg *config.EngineConfig) (intervalSec float64, reject types.RejectReason) {
	if !tr.state.HaveLastOnset {
		tr.state.LastOnsetSample = frame.Time.SampleIndex
		tr.state.HaveLastOnset = true
		return 0, types.RejectRefractory
	}

	intervalSec = float64(frame.Time.SampleIndex-tr.state.LastOnsetSample) / float64(types.SampleRateHz)
	tr.state.LastOnsetSample = frame.Time.SampleIndex

	if !intervalInRange(intervalSec, cfg.MinBPM, cfg.MaxBPM) {
		return intervalSec, types.RejectOutOfRange
	}

	bpm := bpmFromInterval(intervalSec)
	nowSec := frame.Time.Seconds()

	recency := 1.0
	if age := tr.dens.nearestMatchAge(bpm, nowSec); age >= 0 {
		recency = recencyWeight(age)
	}
	weight := onsetStrengthScale(strength) * tr.dens.consistencyBoost(bpm) * recency
	tr.dens.vote(bpm, weight)
	if tr.state.Confidence < cfg.OctaveVotingConfThreshold {
		tr.dens.voteOctaveVariants(bpm, weight, cfg.OctaveVariantWeight)
	}

	tr.dens.pushInterval(interval{seconds: intervalSec, bpm: bpm, atSec: nowSec}, nowSec)

	alpha := 1.0 / 5.0
	tr.state.PeriodEMASec += alpha * (intervalSec - tr.state.PeriodEMASec)

	if tr.dens.checkMismatch(bpm, cfg.IntervalMismatchThreshold, cfg.IntervalMismatchCount) {
		tr.dens.reseed()
		tr.loop.reset()
	}

	return intervalSec, types.RejectNone
}

// applyBPMSmoothing chases BPMRaw with the attack/release coefficient
// selected by the current tracker state (spec section 4.9.4/4.9.5):
// INITIALIZING/SEARCHING/LOCKING use the attack alpha, LOCKED/UNLOCKING
// use the release alpha, regardless of which direction BPMRaw moved.
func (tr *Tracker) applyBPMSmoothing(cfg *config.EngineConfig) {
	if tr.state.BPMRaw <= 0 {
		return
	}
	if tr.state.BPMSmoothed == 0 {
		tr.state.BPMSmoothed = tr.state.BPMRaw
		return
	}
	alpha := cfg.BPMAlphaRelease
	if paramsFor(tr.trackerState).useAttackAlpha {
		alpha = cfg.BPMAlphaAttack
	}
	tr.state.BPMSmoothed += alpha * (tr.state.BPMRaw - tr.state.BPMSmoothed)
}

// detectBeatTick fires on the hop where phase wraps from above 0.9 to
// below 0.1, debounced to 60% of the beat period so a jittery PLL
// correction cannot double-tick the same beat (spec section 4.9.8).
func (tr *Tracker) detectBeatTick(sampleIndex uint64) bool {
	wrapped := tr.havePrevPhase && tr.prevPhase01 > 0.9 && tr.state.Phase01 < 0.1
	tr.prevPhase01 = tr.state.Phase01
	tr.havePrevPhase = true

	if !wrapped || tr.state.BPMSmoothed <= 0 {
		return false
	}

	period := 60.0 / tr.state.BPMSmoothed
	debounceSamples := 0.6 * period * float64(types.SampleRateHz)
	if tr.haveLastTick && float64(sampleIndex-tr.lastTickSample) < debounceSamples {
		return false
	}

	tr.lastTickSample = sampleIndex
	tr.haveLastTick = true
	return true
}

// buildConfidenceFactors assembles the four confidence inputs for the
// current hop (spec section 4.9.6).
func (tr *Tracker) buildConfidenceFactors(peakValue float64, cfg *config.EngineConfig) confidenceFactors {
	recentIntervals := make([]float64, 0, validIntervals)
	for i := 0; i < tr.dens.recentLen; i++ {
		recentIntervals = append(recentIntervals, tr.dens.recent[i].seconds)
	}
	return confidenceFactors{
		onsetStrengthFactor: onsetStrengthFactor(tr.onset.prevCombined, tr.onset.fluxBaseline),
		tempoConsistency:    tempoConsistency(recentIntervals),
		stability:           stability(peakValue),
		phaseCoherence:      phaseCoherence(tr.lastPhaseError),
	}
}

// runSafetyNets applies the soft-reset, octave-flip resistance and
// interval-expiry guards from spec section 4.9.7.
func (tr *Tracker) runSafetyNets(frame types.AudioFeatureFrame, cfg *config.EngineConfig, dt float64) {
	if tr.state.Confidence < cfg.LowConfThreshold {
		tr.state.lowConfSeconds += dt
		if tr.state.lowConfSeconds >= cfg.LowConfResetTimeSec {
			tr.dens.softReset(cfg.DensitySoftResetFactor)
			tr.softResetCount++
			tr.state.lowConfSeconds = 0
		}
	} else {
		tr.state.lowConfSeconds = 0
	}

	tr.dens.pruneExpired(frame.Time.Seconds())

	if tr.state.stableBaselineBPM == 0 && tr.state.BPMSmoothed > 0 {
		tr.state.stableBaselineBPM = tr.state.BPMSmoothed
		tr.state.stableSinceSample = frame.Time.SampleIndex
	}
	ratio := 0.0
	if tr.state.stableBaselineBPM > 0 {
		ratio = tr.state.BPMSmoothed / tr.state.stableBaselineBPM
	}
	stableSeconds := float64(frame.Time.SampleIndex-tr.state.stableSinceSample) / float64(types.SampleRateHz)
	if ratio > 0 && (ratio < 0.55 || ratio > 1.8) {
		if stableSeconds >= 3.0 {
			tr.octaveFlipCount++
			tr.state.stableBaselineBPM = tr.state.BPMSmoothed
			tr.state.stableSinceSample = frame.Time.SampleIndex
		}
	} else if ratio != 0 && (ratio < 0.98 || ratio > 1.02) {
		tr.state.stableBaselineBPM = tr.state.BPMSmoothed
		tr.state.stableSinceSample = frame.Time.SampleIndex
	}
}

// trackLockTiming records when the tracker first reaches LOCKED, used
// to report lock time in diagnostics.
func (tr *Tracker) trackLockTiming(sampleIndex uint64) {
	if tr.trackerState == types.TempoLocked && !tr.haveLockStart {
		tr.lockStartSample = sampleIndex
		tr.haveLockStart = true
	}
	if tr.trackerState != types.TempoLocked {
		tr.haveLockStart = false
	}
}

// LockTimeSeconds reports elapsed seconds since the most recent entry
// into LOCKED, or 0 if not currently locked.
func (tr *Tracker) LockTimeSeconds(sampleIndex uint64) float64 {
	if !tr.haveLockStart {
		return 0
	}
	return float64(sampleIndex-tr.lockStartSample) / float64(types.SampleRateHz)
}

// pushJitter records one hop's BPM delta and phase error into the
// rolling jitter histories (spec section 3, BeatState).
func (tr *Tracker) pushJitter(bpmDelta, phaseError float64) {
	tr.state.bpmJitter[tr.state.jitterPos] = bpmDelta
	tr.state.phaseJitter[tr.state.jitterPos] = phaseError
	tr.state.jitterPos = (tr.state.jitterPos + 1) % jitterHistoryLen
	if tr.state.jitterLen < jitterHistoryLen {
		tr.state.jitterLen++
	}
}

// BPMJitter returns the standard deviation of recent hop-to-hop BPM
// deltas, used as a diagnostics stability signal.
func (tr *Tracker) BPMJitter() float64 {
	if tr.state.jitterLen < 2 {
		return 0
	}
	return stat.StdDev(tr.state.bpmJitter[:tr.state.jitterLen], nil)
}

// PhaseJitter returns the standard deviation of recent PLL phase
// errors.
func (tr *Tracker) PhaseJitter() float64 {
	if tr.state.jitterLen < 2 {
		return 0
	}
	return stat.StdDev(tr.state.phaseJitter[:tr.state.jitterLen], nil)
}

// State returns the BeatState snapshot for diagnostics/testing.
func (tr *Tracker) State() BeatState {
	return tr.state
}

// SoftResetCount and OctaveFlipCount expose the safety-net counters
// for the diagnostics snapshot.
func (tr *Tracker) SoftResetCount() uint64  { return tr.softResetCount }
func (tr *Tracker) OctaveFlipCount() uint64 { return tr.octaveFlipCount }

func roundNearest(x float64) float64 {
	if x >= 0 {
		return float64(int64(x + 0.5))
	}
	return float64(int64(x - 0.5))
}

func wrapPhase01(x float64) float64 {
	for x >= 1.0 {
		x -= 1.0
	}
	for x < 0 {
		x += 1.0
	}
	return x
}
