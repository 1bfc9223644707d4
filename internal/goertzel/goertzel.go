// Package goertzel implements the fixed-point multi-bin Goertzel
// filter bank used for both the rhythm and harmony banks. It is
// grounded on the single-bin Goertzel detector pattern used for CW
// tone detection (asymmetric envelope tracking feeding off a Goertzel
// magnitude), generalised here to many bins sharing windowed scratch
// buffers per spec section 4.3.
package goertzel

import (
	"math"
	"sort"

	"github.com/doismell-labs/musicd/internal/ring"
	"github.com/doismell-labs/musicd/internal/window"
)

// qScale is the Q14 fixed-point scale used for the recurrence
// coefficient, per spec section 3's GoertzelBinConfig definition.
const qScale = 16384

// pcmScale maps a windowed float sample in [-1, 1] onto the ±32767
// range the fixed-point recurrence expects, matching the int16
// capture pipeline's output range.
const pcmScale = 32767

// BinConfig is an immutable per-bin descriptor: a target frequency,
// its window length in samples, and the Q14 recurrence coefficient.
// A bank's BinConfig slice is built once and never mutated at
// runtime.
type BinConfig struct {
	FreqHz   float64
	N        int
	CoeffQ14 int64
}

// NewBinConfig derives the Q14 coefficient for a bin tuned to freqHz
// with a window of n samples at the given sample rate.
func NewBinConfig(freqHz float64, n, sampleRateHz int) BinConfig {
	c := 2 * math.Cos(2*math.Pi*freqHz/float64(sampleRateHz))
	return BinConfig{
		FreqHz:   freqHz,
		N:        n,
		CoeffQ14: int64(math.Round(c * qScale)),
	}
}

// Bank owns a set of bins and the scratch buffer they share. No
// per-frame allocation occurs once a Bank is built.
type Bank struct {
	bins     []BinConfig
	windows  *window.Bank
	scratch  []float64
	byN      map[int][]int
	uniqueNs []int
}

// NewBank groups bins sharing a window size so the ring copy and
// windowing pass run once per distinct N rather than once per bin
// (spec section 4.3's "group-by-N" optimisation contract).
func NewBank(bins []BinConfig, windows *window.Bank) *Bank {
	maxN := 0
	byN := make(map[int][]int)
	for i, b := range bins {
		if b.N > maxN {
			maxN = b.N
		}
		byN[b.N] = append(byN[b.N], i)
	}
	uniqueNs := make([]int, 0, len(byN))
	for n := range byN {
		uniqueNs = append(uniqueNs, n)
	}
	sort.Ints(uniqueNs)
	for _, n := range uniqueNs {
		windows.Table(n)
	}

	return &Bank{
		bins:     bins,
		windows:  windows,
		scratch:  make([]float64, maxN),
		byN:      byN,
		uniqueNs: uniqueNs,
	}
}

// Bins returns the bank's immutable bin descriptors.
func (b *Bank) Bins() []BinConfig {
	return b.bins
}

// ReferenceMagnitude is the raw magnitude goertzelMagnitude would
// produce for an unwindowed full-scale sine tone on a bin's frequency.
// Compute applies a Hann window, which halves that, so a full-scale
// tone comes out near pcmScale/4 and normalises to about 0.5.
// Callers divide by it to bring Compute's output back to a roughly
// [0, 1] amplitude scale for downstream stages that were tuned
// assuming unit-scale input (noise floor, AGC, novelty).
const ReferenceMagnitude = pcmScale / 2.0

// Normalize rescales a raw magnitude from Compute by ReferenceMagnitude.
func Normalize(mag float64) float64 {
	return mag / ReferenceMagnitude
}

// Compute fills out (len(out) == len(b.Bins())) with one magnitude per
// bin, reading the most recent samples from r.
func (b *Bank) Compute(r *ring.SampleRing, out []float64) {
	for _, n := range b.uniqueNs {
		samples := b.scratch[:n]
		r.CopyLast(n, samples)
		win := b.windows.Table(n)
		for _, idx := range b.byN[n] {
			out[idx] = goertzelMagnitude(samples, win, b.bins[idx].CoeffQ14, n)
		}
	}
}

// goertzelMagnitude runs the Q14 fixed-point recurrence over one
// windowed block and returns the normalised magnitude.
func goertzelMagnitude(samples, win []float64, coeffQ14 int64, n int) float64 {
	var q1, q2 int64
	for i := 0; i < n; i++ {
		windowed := samples[i] * win[i]
		s := int64(math.Round(windowed * pcmScale))
		if s > pcmScale {
			s = pcmScale
		} else if s < -pcmScale {
			s = -pcmScale
		}
		q0 := s + ((coeffQ14 * q1) >> 14) - q2
		q2 = q1
		q1 = q0
	}

	coeff := float64(coeffQ14) / qScale
	radicand := float64(q1*q1+q2*q2) - coeff*float64(q1)*float64(q2)
	if radicand < 0 {
		radicand = 0
	}
	return math.Sqrt(radicand) / float64(n)
}
