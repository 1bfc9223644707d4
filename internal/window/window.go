// Package window precomputes Hann window tables for the Goertzel
// bank, keyed by window size, so no trigonometry runs in the hot
// path once the bank is constructed.
package window

import "gonum.org/v1/gonum/dsp/window"

// Bank is a set of Hann tables, one per distinct window size seen so
// far. Goertzel bins that share a window size share a table.
type Bank struct {
	tables map[int][]float64
}

// NewBank creates an empty table bank.
func NewBank() *Bank {
	return &Bank{tables: make(map[int][]float64)}
}

// Table returns the Hann window of length n, computing and caching it
// on first request.
func (b *Bank) Table(n int) []float64 {
	if t, ok := b.tables[n]; ok {
		return t
	}
	seq := make([]float64, n)
	for i := range seq {
		seq[i] = 1
	}
	t := window.Hann(seq)
	b.tables[n] = t
	return t
}
