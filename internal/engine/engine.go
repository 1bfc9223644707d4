// Package engine wires the DSP and tempo-tracking stages into the
// single per-hop "audio engine" aggregate described in spec section 9's
// per-task confinement design note: every field below is touched only
// by the goroutine that calls RunHop, so none of it is protected by a
// mutex.
package engine

import (
	"context"
	"math"
	"time"

	"github.com/doismell-labs/musicd/internal/agc"
	"github.com/doismell-labs/musicd/internal/capture"
	"github.com/doismell-labs/musicd/internal/chroma"
	"github.com/doismell-labs/musicd/internal/config"
	"github.com/doismell-labs/musicd/internal/controlbus"
	"github.com/doismell-labs/musicd/internal/diag"
	"github.com/doismell-labs/musicd/internal/goertzel"
	"github.com/doismell-labs/musicd/internal/grid"
	"github.com/doismell-labs/musicd/internal/novelty"
	"github.com/doismell-labs/musicd/internal/ring"
	"github.com/doismell-labs/musicd/internal/snapshot"
	"github.com/doismell-labs/musicd/internal/style"
	"github.com/doismell-labs/musicd/internal/tempo"
	"github.com/doismell-labs/musicd/internal/types"
	"github.com/doismell-labs/musicd/internal/window"
)

// Bin frequency ranges for the two Goertzel banks (spec section 2).
const (
	rhythmMinHz  = 60
	rhythmMaxHz  = 600
	harmonyMinHz = 55
	harmonyMaxHz = 4200
)

// chordChangeThreshold is the L1 distance between consecutive
// normalised chroma vectors above which a chord change is declared
// for the style classifier's chordChangeRate feature.
const chordChangeThreshold = 2.0

// Engine is the per-hop pipeline aggregate: capture -> ring -> Goertzel
// banks -> noise floor/AGC -> novelty/chroma -> tempo/style ->
// control bus -> snapshot publish, in the exact order of spec section 2.
type Engine struct {
	cfg      *config.EngineConfig
	capturer *capture.Capture

	samples *ring.SampleRing

	rhythmBank  *goertzel.Bank
	harmonyBank *goertzel.Bank

	rhythmFloor  *agc.NoiseFloor
	harmonyFloor *agc.NoiseFloor
	gain         *agc.AGC

	rhythmNovelty   *novelty.Tracker
	harmonyNovelty  *novelty.Tracker
	chromaExtractor *chroma.Extractor

	tempoTracker    *tempo.Tracker
	styleClassifier *style.Classifier
	smoother        *controlbus.Smoother

	diagRecorder  *diag.Recorder
	diagPublisher *diag.Publisher
	controlBus    *snapshot.Cell[types.ControlBusFrame]
	tempoObs      *snapshot.Cell[grid.Observation]
	styleCell     *snapshot.Cell[types.StyleClassification]

	audioTime      types.AudioTime
	hopIndex       uint64
	lastTempoState types.TempoState

	hopScratch     []float64
	rhythmScratch  []float64
	harmonyScratch []float64
	bandScratch    []float64

	lastChroma      [types.NumChroma]float64
	haveLastChroma  bool
	lastKeyClarity  float64
	lastHarmonyFlux float64
}

// NewEngine builds an engine reading hops from src, with every scratch
// buffer and bank sized from cfg up front. RunHop still allocates each
// hop outside these buffers: capture returns a fresh sample slice and
// a timeout context, and each diagnostics publish copies the
// transition log.
func NewEngine(cfg *config.EngineConfig, src capture.Source) *Engine {
	hopRateHz := float64(cfg.SampleRate) / float64(cfg.HopSize)
	windows := window.NewBank()

	rhythmFreqs := logSpacedFreqs(rhythmMinHz, rhythmMaxHz, cfg.RhythmBins)
	rhythmBins := make([]goertzel.BinConfig, cfg.RhythmBins)
	for i, f := range rhythmFreqs {
		n := windowSizeFor(f, cfg.SampleRate, cfg.RingCapacity)
		rhythmBins[i] = goertzel.NewBinConfig(f, n, cfg.SampleRate)
	}

	harmonyFreqs := logSpacedFreqs(harmonyMinHz, harmonyMaxHz, cfg.HarmonyBins)
	harmonyBins := make([]goertzel.BinConfig, cfg.HarmonyBins)
	for i, f := range harmonyFreqs {
		n := windowSizeFor(f, cfg.SampleRate, cfg.RingCapacity)
		harmonyBins[i] = goertzel.NewBinConfig(f, n, cfg.SampleRate)
	}

	rec := diag.NewRecorder()

	return &Engine{
		cfg:      cfg,
		capturer: capture.NewCapture(src, cfg.HopSize),
		samples:  ring.New(cfg.RingCapacity),

		rhythmBank:  goertzel.NewBank(rhythmBins, windows),
		harmonyBank: goertzel.NewBank(harmonyBins, windows),

		rhythmFloor:  agc.NewNoiseFloor(cfg.RhythmBins, hopRateHz),
		harmonyFloor: agc.NewNoiseFloor(cfg.HarmonyBins, hopRateHz),
		gain:         agc.NewAGC(0.01, 0.5, 0.7, hopRateHz),

		rhythmNovelty:   novelty.NewTracker(cfg.RhythmBins),
		harmonyNovelty:  novelty.NewTracker(cfg.HarmonyBins),
		chromaExtractor: chroma.NewExtractor(harmonyFreqs, hopRateHz),

		tempoTracker:    tempo.NewTracker(),
		styleClassifier: style.NewClassifier(cfg),
		smoother:        controlbus.NewSmoother(cfg),

		diagRecorder:  rec,
		diagPublisher: diag.NewPublisher(rec),
		controlBus:    snapshot.NewCell[types.ControlBusFrame](),
		tempoObs:      snapshot.NewCell[grid.Observation](),
		styleCell:     snapshot.NewCell[types.StyleClassification](),

		audioTime:      types.AudioTime{SampleRateHz: cfg.SampleRate},
		lastTempoState: types.TempoInitializing,

		hopScratch:     make([]float64, cfg.HopSize),
		rhythmScratch:  make([]float64, cfg.RhythmBins),
		harmonyScratch: make([]float64, cfg.HarmonyBins),
		bandScratch:    make([]float64, cfg.RhythmBins),
	}
}

// ControlBus returns the snapshot cell carrying the latest published
// ControlBusFrame.
func (e *Engine) ControlBus() *snapshot.Cell[types.ControlBusFrame] { return e.controlBus }

// TempoObservations returns the snapshot cell a musical-grid consumer
// polls to derive beat/bar structure.
func (e *Engine) TempoObservations() *snapshot.Cell[grid.Observation] { return e.tempoObs }

// Style returns the snapshot cell carrying the latest style classification.
func (e *Engine) Style() *snapshot.Cell[types.StyleClassification] { return e.styleCell }

// Diagnostics returns the diagnostics publisher a consumer polls for
// engine health counters.
func (e *Engine) Diagnostics() *diag.Publisher { return e.diagPublisher }

// Config returns the engine's (read-only) tuning configuration.
func (e *Engine) Config() *config.EngineConfig { return e.cfg }

// Run drives the engine one hop at a time until ctx is cancelled. The
// only suspension point is inside captureHop (spec section 5); there
// is no cooperative cancellation mid-hop, so shutdown simply stops
// calling RunHop between hops.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		e.RunHop(ctx)
	}
}

// RunHop executes one full pipeline pass: capture, Goertzel analysis,
// signal conditioning, tempo/style tracking, envelope smoothing, and
// snapshot publication, in the control-flow order of spec section 2.
// It returns the published ControlBusFrame for callers (tests, a
// synchronous CLI mode) that want it directly rather than through the
// snapshot cell.
func (e *Engine) RunHop(ctx context.Context) types.ControlBusFrame {
	hopDuration := time.Duration(float64(e.cfg.HopSize) / float64(e.cfg.SampleRate) * float64(time.Second))

	result := e.capturer.CaptureHop(ctx, hopDuration)

	// The sample clock advances every hop regardless of capture outcome:
	// it represents elapsed real time, not whether a feature frame was
	// computed this hop (spec section 4.9.9, dropped-hop determinism).
	e.audioTime = e.audioTime.Advance(uint64(e.cfg.HopSize))
	e.hopIndex++

	e.diagRecorder.RecordHop(float64(result.ReadTime.Microseconds()), peakOf(result.Samples))

	if result.Kind == types.CaptureDMATimeout || result.Kind == types.CaptureReadError {
		e.diagRecorder.RecordCaptureError(result.Kind)
		e.diagPublisher.Publish(e.audioTime)
		last, _ := e.controlBus.Load()
		return last
	}
	if result.Kind == types.CapturePartialRead {
		e.diagRecorder.RecordCaptureError(result.Kind)
	}

	for i, s := range result.Samples {
		e.hopScratch[i] = float64(s) / 32768.0
	}
	rms := rmsOf(e.hopScratch)
	e.samples.PushHop(e.hopScratch)

	e.rhythmBank.Compute(e.samples, e.rhythmScratch)
	for i, m := range e.rhythmScratch {
		e.rhythmScratch[i] = goertzel.Normalize(m)
	}
	e.rhythmFloor.Update(e.rhythmScratch)
	e.rhythmFloor.ApplyFloor(e.rhythmScratch)
	rhythmNovelty := e.rhythmNovelty.Update(e.rhythmScratch, e.rhythmFloor)

	copy(e.bandScratch, e.rhythmScratch)
	e.gain.Apply(rms, e.bandScratch)
	bands := aggregateBands(e.bandScratch, e.cfg.RhythmBins)

	// Overload detection (spec section 4.3: drop the harmony tick if a
	// hop's compute exceeds the 2ms per-hop budget) is a real-hardware
	// concern; this replay engine never reads the wall clock in the
	// hot path so that two runs over the same sample stream are
	// bit-identical (spec section 8, T6). Harmony therefore always
	// runs on its scheduled cadence.
	runHarmony := e.hopIndex%2 == 1

	chordChanged := false
	if runHarmony {
		e.harmonyBank.Compute(e.samples, e.harmonyScratch)
		for i, m := range e.harmonyScratch {
			e.harmonyScratch[i] = goertzel.Normalize(m)
		}
		e.harmonyFloor.Update(e.harmonyScratch)
		e.harmonyFloor.ApplyFloor(e.harmonyScratch)
		e.lastHarmonyFlux = e.harmonyNovelty.Update(e.harmonyScratch, e.harmonyFloor)

		newChroma, keyClarity := e.chromaExtractor.Update(e.harmonyScratch)
		if e.haveLastChroma && chromaDistance(newChroma, e.lastChroma) > chordChangeThreshold {
			chordChanged = true
		}
		e.lastChroma = newChroma
		e.haveLastChroma = true
		e.lastKeyClarity = keyClarity
	}

	frame := types.AudioFeatureFrame{
		Time: e.audioTime,

		RMS: agc.Clamp01(rms),
		// Spectral flux and rhythm novelty are the same signal from
		// spec section 4.6 ("Novelty / spectral flux"); SpectralFlux
		// is the name the tempo tracker, style classifier and control
		// bus read; RhythmNovelty carries the same value and no stage
		// reads it.
		SpectralFlux:  rhythmNovelty,
		Bands:         bands,
		Chroma:        e.lastChroma,
		KeyClarity:    e.lastKeyClarity,
		RhythmNovelty: rhythmNovelty,
		HarmonyFlux:   e.lastHarmonyFlux,
	}

	onsetFired, beatTick, state, confidence, bpm, phase := e.tempoTracker.Update(frame, e.cfg)
	_, reject := e.tempoTracker.LastOnsetOutcome()
	frame.OnsetFlag = onsetFired
	frame.OnsetStrength = e.tempoTracker.LastOnsetStrength()
	if onsetFired {
		e.diagRecorder.RecordOnset(reject == types.RejectNone, reject)
	}

	e.diagRecorder.RecordStateTransition(e.audioTime, e.lastTempoState, state)
	e.lastTempoState = state
	e.diagRecorder.SetSoftResetCount(e.tempoTracker.SoftResetCount())
	e.diagRecorder.SetOctaveFlipCount(e.tempoTracker.OctaveFlipCount())
	e.diagRecorder.SetJitter(e.tempoTracker.BPMJitter(), e.tempoTracker.PhaseJitter())
	e.diagRecorder.SetLockTimeSec(e.tempoTracker.LockTimeSeconds(e.audioTime.SampleIndex))

	styleResult := e.styleClassifier.Update(frame, confidence, chordChanged)
	e.styleCell.Publish(styleResult)

	e.tempoObs.Publish(grid.Observation{
		Time:        e.audioTime,
		BPMSmoothed: bpm,
		Confidence:  confidence,
		Phase01:     phase,
		BeatTick:    beatTick,
	})

	cbFrame := e.smoother.Update(frame, beatTick, confidence)
	e.controlBus.Publish(cbFrame)
	e.diagPublisher.Publish(e.audioTime)

	return cbFrame
}

func rmsOf(samples []float64) float64 {
	var sumSq float64
	for _, s := range samples {
		sumSq += s * s
	}
	return math.Sqrt(sumSq / float64(len(samples)))
}

func peakOf(samples []int16) int16 {
	var peak int16
	for _, s := range samples {
		if s > peak {
			peak = s
		}
		if -s > peak {
			peak = -s
		}
	}
	return peak
}

func aggregateBands(mags []float64, numBins int) [types.NumBands]float64 {
	var sums [types.NumBands]float64
	var counts [types.NumBands]int
	for i, m := range mags {
		b := i * types.NumBands / numBins
		sums[b] += m
		counts[b]++
	}
	var bands [types.NumBands]float64
	for b := range bands {
		if counts[b] > 0 {
			bands[b] = agc.Clamp01(sums[b] / float64(counts[b]))
		}
	}
	return bands
}

func chromaDistance(a, b [types.NumChroma]float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum
}

// logSpacedFreqs returns n frequencies evenly spaced on a log scale
// between minHz and maxHz inclusive, used for both Goertzel banks'
// bin layouts (spec section 2: "~60-600 Hz", "semitone-spaced ~55-4200 Hz").
func logSpacedFreqs(minHz, maxHz float64, n int) []float64 {
	freqs := make([]float64, n)
	if n == 1 {
		freqs[0] = minHz
		return freqs
	}
	ratio := math.Pow(maxHz/minHz, 1/float64(n-1))
	f := minHz
	for i := 0; i < n; i++ {
		freqs[i] = f
		f *= ratio
	}
	return freqs
}

// windowSizeFor picks a power-of-two window length targeting ~4 cycles
// of freqHz, snapped to the nearest of the buckets the Goertzel bank's
// group-by-N optimisation amortises over (spec section 4.3, section 9
// "Group-by-N").
func windowSizeFor(freqHz float64, sampleRateHz, ringCapacity int) int {
	target := 4 * float64(sampleRateHz) / freqHz
	buckets := []int{256, 512, 1024, 2048}
	best := buckets[0]
	bestDiff := math.Abs(target - float64(buckets[0]))
	for _, n := range buckets[1:] {
		if n > ringCapacity {
			break
		}
		if d := math.Abs(target - float64(n)); d < bestDiff {
			best, bestDiff = n, d
		}
	}
	return best
}
