package tempo

import (
	"testing"

	"github.com/doismell-labs/musicd/internal/config"
	"github.com/doismell-labs/musicd/internal/types"
)

// clickFrame builds a synthetic AudioFeatureFrame for a steady click
// track: a spike in RMS/flux on beat hops, near-silence otherwise.
func clickFrame(sampleIndex uint64, onBeat bool) types.AudioFeatureFrame {
	rms, flux := 0.02, 0.01
	if onBeat {
		rms, flux = 0.8, 0.9
	}
	return types.AudioFeatureFrame{
		Time: types.AudioTime{SampleIndex: sampleIndex, SampleRateHz: types.SampleRateHz},
		RMS:  rms, SpectralFlux: flux,
	}
}

// runClickTrack feeds a steady BPM click track through the tracker
// for durationSec seconds and returns the final tracker.
func runClickTrack(t *testing.T, bpm float64, durationSec float64) *Tracker {
	t.Helper()
	cfg := config.DefaultConfig()
	tr := NewTracker()

	hopSec := float64(types.HopSize) / float64(types.SampleRateHz)
	periodSamples := uint64(60.0 / bpm * float64(types.SampleRateHz))
	totalHops := int(durationSec / hopSec)

	var sampleIndex uint64
	nextBeatSample := uint64(0)
	for i := 0; i < totalHops; i++ {
		onBeat := sampleIndex >= nextBeatSample
		if onBeat {
			nextBeatSample += periodSamples
		}
		frame := clickFrame(sampleIndex, onBeat)
		tr.Update(frame, cfg)
		sampleIndex += uint64(types.HopSize)
	}
	return tr
}

func TestTrackerLocksOntoSteadyClick(t *testing.T) {
	tr := runClickTrack(t, 120, 20)
	state := tr.State()
	if state.Confidence < 0.2 {
		t.Errorf("expected tracker to gain some confidence on a steady click, got %v", state.Confidence)
	}
	if state.BPMSmoothed <= 0 {
		t.Errorf("expected a nonzero BPM estimate, got %v", state.BPMSmoothed)
	}
}

func TestTrackerSilenceStaysUnlocked(t *testing.T) {
	cfg := config.DefaultConfig()
	tr := NewTracker()
	var sampleIndex uint64
	for i := 0; i < 2000; i++ {
		frame := clickFrame(sampleIndex, false)
		_, beatTick, state, _, _, _ := tr.Update(frame, cfg)
		if beatTick {
			t.Errorf("expected no beat ticks from silence, hop %d", i)
		}
		if state == types.TempoLocked {
			t.Errorf("expected silence never to reach LOCKED, hop %d", i)
		}
		sampleIndex += uint64(types.HopSize)
	}
}

func TestTrackerSampleIndexDeterminesDt(t *testing.T) {
	cfg := config.DefaultConfig()
	tr := NewTracker()

	tr.Update(clickFrame(0, false), cfg)
	// Simulate two dropped hops: the next successful hop lands 3 hop
	// widths after the last processed sample index.
	dt := tr.dtSeconds(uint64(types.HopSize) * 3)
	expected := float64(types.HopSize*3) / float64(types.SampleRateHz)
	if dt != expected {
		t.Errorf("expected dropped-hop dt = %v, got %v", expected, dt)
	}
}

func TestProcessOnsetRejectsOutOfRangeInterval(t *testing.T) {
	cfg := config.DefaultConfig()
	tr := NewTracker()

	first := clickFrame(0, true)
	tr.processOnset(first, 1.0, cfg)

	// 2 seconds later = 30 BPM, outside the default [60,300] range.
	farFrame := clickFrame(uint64(types.SampleRateHz*2), true)
	_, reject := tr.processOnset(farFrame, 1.0, cfg)
	if reject != types.RejectOutOfRange {
		t.Errorf("expected RejectOutOfRange, got %v", reject)
	}
}

func TestProcessOnsetAcceptsInRangeInterval(t *testing.T) {
	cfg := config.DefaultConfig()
	tr := NewTracker()

	first := clickFrame(0, true)
	tr.processOnset(first, 1.0, cfg)

	halfSecondLater := clickFrame(uint64(types.SampleRateHz/2), true) // 120 BPM
	_, reject := tr.processOnset(halfSecondLater, 1.0, cfg)
	if reject != types.RejectNone {
		t.Errorf("expected accepted interval, got reject %v", reject)
	}
	if tr.dens.recentLen != 1 {
		t.Errorf("expected one interval recorded, got %d", tr.dens.recentLen)
	}
}

func TestSoftResetFiresAfterSustainedLowConfidence(t *testing.T) {
	cfg := config.DefaultConfig()
	tr := NewTracker()
	var sampleIndex uint64
	hopSec := float64(types.HopSize) / float64(types.SampleRateHz)
	hopsNeeded := int(cfg.LowConfResetTimeSec/hopSec) + 10
	for i := 0; i < hopsNeeded; i++ {
		tr.Update(clickFrame(sampleIndex, false), cfg)
		sampleIndex += uint64(types.HopSize)
	}
	if tr.SoftResetCount() == 0 {
		t.Error("expected at least one soft reset after sustained silence")
	}
}

func TestLockTimeSecondsZeroWhenNotLocked(t *testing.T) {
	tr := NewTracker()
	if got := tr.LockTimeSeconds(1000); got != 0 {
		t.Errorf("expected 0 lock time before ever locking, got %v", got)
	}
}
