// Package diag accumulates the low-rate engine diagnostics (hop
// counters, onset/interval rejection tallies, state transitions) and
// exposes them through the same SPSC snapshot mechanism as the
// control bus, separate from its per-hop publication rate (spec
// section 4, Outputs).
package diag

import (
	"github.com/doismell-labs/musicd/internal/snapshot"
	"github.com/doismell-labs/musicd/internal/types"
)

// Recorder accumulates the running counters for one engine instance.
// It is owned and mutated exclusively by the audio task; a snapshot
// is published for the diagnostics consumer on demand.
type Recorder struct {
	counters types.EngineDiagnostics

	readTimeSamples uint64
	readTimeSumUs   float64
}

// NewRecorder returns a zeroed diagnostics recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordHop increments the hop counter and folds a read-time sample
// into the rolling average.
func (r *Recorder) RecordHop(readTimeUs float64, peakSample int16) {
	r.counters.HopsCaptured++
	r.readTimeSamples++
	r.readTimeSumUs += readTimeUs
	r.counters.AvgReadTimeUs = r.readTimeSumUs / float64(r.readTimeSamples)
	if peakSample > r.counters.PeakSample {
		r.counters.PeakSample = peakSample
	}
	if peakSample < -r.counters.PeakSample {
		r.counters.PeakSample = -peakSample
	}
}

// RecordCaptureError tallies a recoverable capture failure kind.
func (r *Recorder) RecordCaptureError(kind types.CaptureErrorKind) {
	switch kind {
	case types.CaptureDMATimeout:
		r.counters.DMATimeouts++
	case types.CaptureReadError:
		r.counters.ReadErrors++
	case types.CapturePartialRead:
		r.counters.PartialReads++
	}
}

// RecordOnset tallies an onset detection, and if it produced an
// interval vote outcome, tallies the accept/reject count alongside
// the reject reason histogram.
func (r *Recorder) RecordOnset(accepted bool, reject types.RejectReason) {
	r.counters.OnsetsTotal++
	if accepted {
		r.counters.IntervalsAccepted++
		return
	}
	if reject == types.RejectNone {
		return
	}
	r.counters.IntervalsRejected++
	r.counters.RejectCounts[reject]++
}

// RecordDensityPeak updates the density peak value/BPM shown in
// diagnostics.
func (r *Recorder) RecordDensityPeak(bpm, value float64) {
	r.counters.DensityPeakBPM = bpm
	r.counters.DensityPeakValue = value
}

// RecordOverload tallies a per-hop compute overload (harmony tick
// dropped, spec section 7 RecoverableOverload).
func (r *Recorder) RecordOverload() {
	r.counters.OverloadCount++
}

// RecordStateTransition appends a tempo state change to the transition
// log and updates the current state. The log keeps every transition
// since start; it is not bounded.
func (r *Recorder) RecordStateTransition(at types.AudioTime, from, to types.TempoState) {
	if from == to {
		return
	}
	r.counters.Transitions = append(r.counters.Transitions, types.StateTransition{At: at, From: from, To: to})
	r.counters.State = to
}

// SetSoftResetCount and SetOctaveFlipCount mirror the tempo tracker's
// own counters into the diagnostics snapshot.
func (r *Recorder) SetSoftResetCount(n uint64)  { r.counters.SoftResetCount = n }
func (r *Recorder) SetOctaveFlipCount(n uint64) { r.counters.OctaveFlipCount = n }

// SetJitter mirrors the tempo tracker's jitter measurements.
func (r *Recorder) SetJitter(bpmJitter, phaseJitter float64) {
	r.counters.BPMJitter = bpmJitter
	r.counters.PhaseJitter = phaseJitter
}

// SetLockTimeSec mirrors the tempo tracker's lock duration.
func (r *Recorder) SetLockTimeSec(sec float64) {
	r.counters.LockTimeSec = sec
}

// Snapshot returns a copy of the current counters stamped with at.
func (r *Recorder) Snapshot(at types.AudioTime) types.EngineDiagnostics {
	out := r.counters
	out.Time = at
	out.Transitions = append([]types.StateTransition(nil), r.counters.Transitions...)
	return out
}

// Publisher wraps a diagnostics recorder with the SPSC cell used to
// hand the low-rate snapshot to a separate consumer task.
type Publisher struct {
	rec  *Recorder
	cell *snapshot.Cell[types.EngineDiagnostics]
}

// NewPublisher pairs a recorder with a fresh snapshot cell.
func NewPublisher(rec *Recorder) *Publisher {
	return &Publisher{rec: rec, cell: snapshot.NewCell[types.EngineDiagnostics]()}
}

// Publish snapshots the recorder's current counters and makes them
// visible to the consumer.
func (p *Publisher) Publish(at types.AudioTime) {
	p.cell.Publish(p.rec.Snapshot(at))
}

// Load returns the most recently published diagnostics snapshot.
func (p *Publisher) Load() (types.EngineDiagnostics, uint64) {
	return p.cell.Load()
}
