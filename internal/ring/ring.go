// Package ring implements the capture ring buffer: the most recent
// samples kept around so the Goertzel banks can look back over
// windows longer than a single hop.
package ring

import "fmt"

// SampleRing is a power-of-two, wrap-and-mask ring of normalised
// float samples. It has a single writer (capture) and any number of
// non-destructive in-process readers (the Goertzel banks); no reader
// ever advances the read position, so concurrent reads never race
// with the next write as long as they stay confined to one goroutine,
// which is the contract the audio task relies on (spec section 5).
type SampleRing struct {
	buf      []float64
	mask     uint64
	writePos uint64
}

// New creates a ring of the given capacity, which must be a power of
// two and at least as large as the largest window any reader will
// request via CopyLast.
func New(capacity int) *SampleRing {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic(fmt.Sprintf("ring: capacity %d must be a positive power of two", capacity))
	}
	return &SampleRing{
		buf:  make([]float64, capacity),
		mask: uint64(capacity - 1),
	}
}

// Capacity returns the ring's fixed size.
func (r *SampleRing) Capacity() int {
	return len(r.buf)
}

// Push appends one sample, overwriting the oldest entry once the ring
// has wrapped.
func (r *SampleRing) Push(sample float64) {
	r.buf[r.writePos&r.mask] = sample
	r.writePos++
}

// PushHop appends an entire hop of samples in order.
func (r *SampleRing) PushHop(samples []float64) {
	for _, s := range samples {
		r.Push(s)
	}
}

// Written returns the total number of samples ever pushed, which is
// always >= the number currently retained.
func (r *SampleRing) Written() uint64 {
	return r.writePos
}

// CopyLast writes the most recent n samples, in chronological order,
// into out (len(out) must be >= n). n must not exceed the ring's
// capacity or the number of samples written so far; callers that
// violate this get the best n samples available rather than garbage,
// since the ring has exclusive in-process readers and clamping is
// cheaper than erroring in the hot path (spec section 7, Invariant
// errors are clamped, not propagated).
func (r *SampleRing) CopyLast(n int, out []float64) {
	if n > len(r.buf) {
		n = len(r.buf)
	}
	if avail := r.writePos; uint64(n) > avail {
		n = int(avail)
	}
	start := r.writePos - uint64(n)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+uint64(i))&r.mask]
	}
}
