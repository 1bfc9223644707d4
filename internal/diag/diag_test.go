package diag

import (
	"testing"

	"github.com/doismell-labs/musicd/internal/types"
)

func TestRecordHopTracksRollingAverage(t *testing.T) {
	r := NewRecorder()
	r.RecordHop(10, 100)
	r.RecordHop(20, 50)
	snap := r.Snapshot(types.AudioTime{})
	if snap.HopsCaptured != 2 {
		t.Errorf("expected 2 hops, got %d", snap.HopsCaptured)
	}
	if snap.AvgReadTimeUs != 15 {
		t.Errorf("expected avg read time 15, got %v", snap.AvgReadTimeUs)
	}
	if snap.PeakSample != 100 {
		t.Errorf("expected peak sample 100, got %v", snap.PeakSample)
	}
}

func TestRecordCaptureErrorTallies(t *testing.T) {
	r := NewRecorder()
	r.RecordCaptureError(types.CaptureDMATimeout)
	r.RecordCaptureError(types.CaptureReadError)
	r.RecordCaptureError(types.CapturePartialRead)
	snap := r.Snapshot(types.AudioTime{})
	if snap.DMATimeouts != 1 || snap.ReadErrors != 1 || snap.PartialReads != 1 {
		t.Errorf("expected one of each error kind, got %+v", snap)
	}
}

func TestRecordOnsetAcceptedVsRejected(t *testing.T) {
	r := NewRecorder()
	r.RecordOnset(true, types.RejectNone)
	r.RecordOnset(false, types.RejectOutOfRange)
	snap := r.Snapshot(types.AudioTime{})
	if snap.OnsetsTotal != 2 {
		t.Errorf("expected 2 onsets, got %d", snap.OnsetsTotal)
	}
	if snap.IntervalsAccepted != 1 || snap.IntervalsRejected != 1 {
		t.Errorf("expected 1 accepted 1 rejected, got %+v", snap)
	}
	if snap.RejectCounts[types.RejectOutOfRange] != 1 {
		t.Errorf("expected reject count tallied under RejectOutOfRange, got %+v", snap.RejectCounts)
	}
}

func TestRecordStateTransitionIgnoresNoOp(t *testing.T) {
	r := NewRecorder()
	r.RecordStateTransition(types.AudioTime{}, types.TempoSearching, types.TempoSearching)
	snap := r.Snapshot(types.AudioTime{})
	if len(snap.Transitions) != 0 {
		t.Errorf("expected no-op transition to be ignored, got %+v", snap.Transitions)
	}
	r.RecordStateTransition(types.AudioTime{}, types.TempoSearching, types.TempoLocking)
	snap = r.Snapshot(types.AudioTime{})
	if len(snap.Transitions) != 1 || snap.State != types.TempoLocking {
		t.Errorf("expected one recorded transition and updated state, got %+v", snap)
	}
}

func TestPublisherRoundTrips(t *testing.T) {
	r := NewRecorder()
	r.RecordHop(5, 10)
	p := NewPublisher(r)
	p.Publish(types.AudioTime{SampleIndex: 256})
	snap, seq := p.Load()
	if seq != 1 || snap.HopsCaptured != 1 || snap.Time.SampleIndex != 256 {
		t.Errorf("unexpected snapshot %+v seq %d", snap, seq)
	}
}
