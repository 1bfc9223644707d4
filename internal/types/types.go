// Package types holds the data model shared across the audio engine's
// pipeline stages: the monotone sample clock and the frames that get
// passed from one stage to the next.
package types

// SampleRateHz is the fixed capture rate the whole pipeline is tuned for.
const SampleRateHz = 16000

// HopSize is the number of samples processed per pipeline tick (16ms at 16kHz).
const HopSize = 256

// AudioTime is a monotonic sample-counter clock. It never reads the
// system clock in the hot path, so replaying the same sample stream
// twice produces bit-identical timestamps.
type AudioTime struct {
	SampleIndex  uint64
	SampleRateHz int
	MonotonicUs  int64
}

// Advance returns the time n samples later. SampleIndex never decreases.
func (t AudioTime) Advance(n uint64) AudioTime {
	t.SampleIndex += n
	return t
}

// Seconds returns the elapsed time represented by the sample index, as
// seconds since the clock started.
func (t AudioTime) Seconds() float64 {
	if t.SampleRateHz == 0 {
		return 0
	}
	return float64(t.SampleIndex) / float64(t.SampleRateHz)
}

// NumBands is the number of aggregated energy bands (bass/low-mid/mid/
// upper-mid/treble and transition bins) carried on every frame.
const NumBands = 8

// NumChroma is the number of pitch classes in a chroma vector.
const NumChroma = 12

// AudioFeatureFrame is the compact per-hop artefact produced by the
// spectral and rhythm stages, before envelope smoothing.
type AudioFeatureFrame struct {
	Time AudioTime

	RMS          float64
	SpectralFlux float64
	Bands        [NumBands]float64
	Chroma       [NumChroma]float64
	KeyClarity   float64

	RhythmNovelty float64
	HarmonyFlux   float64

	OnsetStrength float64
	OnsetFlag     bool
}

// ControlBusFrame is the single product the engine publishes every hop.
// Every field is in [0, 1] once the envelope smoother has run.
type ControlBusFrame struct {
	Time AudioTime

	RMS    float64
	Flux   float64
	Bands  [NumBands]float64
	Chroma [NumChroma]float64

	Drive float64
	Punch float64

	BeatDetected bool
	BeatStrength float64
}

// TempoState enumerates the tempo tracker's lock state machine.
type TempoState int

const (
	TempoInitializing TempoState = iota
	TempoSearching
	TempoLocking
	TempoLocked
	TempoUnlocking
)

func (s TempoState) String() string {
	switch s {
	case TempoInitializing:
		return "INITIALIZING"
	case TempoSearching:
		return "SEARCHING"
	case TempoLocking:
		return "LOCKING"
	case TempoLocked:
		return "LOCKED"
	case TempoUnlocking:
		return "UNLOCKING"
	default:
		return "UNKNOWN"
	}
}

// MusicalGridSnapshot is the renderer-facing view of beat/bar timing,
// derived from the tempo tracker's observations.
type MusicalGridSnapshot struct {
	Time AudioTime

	BPMSmoothed       float64
	TempoConfidence   float64
	BeatIndex         uint64
	BeatPhase01       float64
	BeatTick          bool
	BarIndex          uint64
	BarPhase01        float64
	DownbeatTick      bool
	BeatInBar         int
	BeatsPerBar       int
}

// StyleClass is the coarse musical-style taxonomy.
type StyleClass int

const (
	StyleUnknown StyleClass = iota
	StyleRhythmic
	StyleHarmonic
	StyleMelodic
	StyleTexture
	StyleDynamic
)

func (c StyleClass) String() string {
	switch c {
	case StyleRhythmic:
		return "RHYTHMIC"
	case StyleHarmonic:
		return "HARMONIC"
	case StyleMelodic:
		return "MELODIC"
	case StyleTexture:
		return "TEXTURE"
	case StyleDynamic:
		return "DYNAMIC"
	default:
		return "UNKNOWN"
	}
}

// StyleClassification is the rolling output of the style detector.
type StyleClassification struct {
	Dominant        StyleClass
	Weights         [5]float64 // indexed by StyleClass - 1, UNKNOWN has no weight
	Confidence      float64
	FramesAnalysed  int
}

// CaptureErrorKind enumerates the recoverable capture failure modes from
// the microphone front-end.
type CaptureErrorKind int

const (
	CaptureOK CaptureErrorKind = iota
	CaptureNotInitialized
	CaptureDMATimeout
	CaptureReadError
	CapturePartialRead
)

// RejectReason records why an inter-onset interval was not voted into
// the tempo density histogram.
type RejectReason int

const (
	RejectNone RejectReason = iota
	RejectOutOfRange
	RejectRefractory
	RejectNotPeak
	RejectBelowFloor
)

func (r RejectReason) String() string {
	switch r {
	case RejectOutOfRange:
		return "out_of_range"
	case RejectRefractory:
		return "refractory"
	case RejectNotPeak:
		return "not_peak"
	case RejectBelowFloor:
		return "below_floor"
	default:
		return "none"
	}
}

// StateTransition records a single tempo-tracker state change for diagnostics.
type StateTransition struct {
	At   AudioTime
	From TempoState
	To   TempoState
}

// EngineDiagnostics is the low-rate counters snapshot exposed alongside
// the ControlBusFrame for introspection and testing.
type EngineDiagnostics struct {
	Time AudioTime

	HopsCaptured  uint64
	DMATimeouts   uint64
	ReadErrors    uint64
	PartialReads  uint64
	PeakSample    int16
	AvgReadTimeUs float64

	OnsetsTotal        uint64
	IntervalsAccepted  uint64
	IntervalsRejected  uint64
	RejectCounts       [5]uint64 // indexed by RejectReason

	DensityPeakValue float64
	DensityPeakBPM   float64

	OverloadCount   uint64
	SoftResetCount  uint64
	OctaveFlipCount uint64

	BPMJitter   float64
	PhaseJitter float64
	LockTimeSec float64

	State       TempoState
	Transitions []StateTransition
}
