package tempo

import (
	"math"
)

// densityBins is the width of the tempo-density histogram: 60-180 BPM
// inclusive, one bin per BPM (spec section 3, section 4.9.3).
const (
	densityBins  = 121
	densityMinBPM = 60
	densityMaxBPM = 180
)

// validIntervals bounds the rolling window of recent inter-onset
// intervals kept for consistency-boost and mismatch-count checks.
const validIntervals = 5

// intervalExpirySec drops intervals from the rolling window once they
// are this old (spec section 4.9.7).
const intervalExpirySec = 10.0

// interval is one accepted inter-onset interval, kept long enough to
// feed the consistency boost and the mismatch counter.
type interval struct {
	seconds float64
	bpm     float64
	atSec   float64
}

// density holds the 121-bin tempo histogram and the short history of
// recently accepted intervals used to compute vote weights.
type density struct {
	hist [densityBins]float64

	recent    [validIntervals]interval
	recentLen int
	recentPos int

	mismatchStreak int
}

func newDensity() *density {
	return &density{}
}

// bpmToBin maps a BPM value onto the nearest histogram bin, or -1 if
// it falls outside the covered range.
func bpmToBin(bpm float64) int {
	bin := int(math.Round(bpm - densityMinBPM))
	if bin < 0 || bin >= densityBins {
		return -1
	}
	return bin
}

func binToBPM(bin int) float64 {
	return densityMinBPM + float64(bin)
}

// decay applies the per-hop forgetting factor (spec section 4.9.3,
// ~200s time constant at the default rate).
func (d *density) decay(factor float64) {
	for i := range d.hist {
		d.hist[i] *= factor
	}
}

// vote adds a triangular-kernel contribution centred on bpm, with the
// half-width and weights fixed by spec section 4.9.3: the centre bin
// gets the full weight, its two neighbours on each side get 0.5 and
// 0.25 respectively.
func (d *density) vote(bpm, weight float64) {
	centre := bpmToBin(bpm)
	if centre < 0 {
		return
	}
	kernel := [3]float64{1.0, 0.5, 0.25}
	for offset := -2; offset <= 2; offset++ {
		bin := centre + offset
		if bin < 0 || bin >= densityBins {
			continue
		}
		d.hist[bin] += weight * kernel[absInt(offset)]
	}
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// peak returns the bin and value of the current histogram maximum.
func (d *density) peak() (bin int, value float64) {
	for i, v := range d.hist {
		if v > value {
			value = v
			bin = i
		}
	}
	return bin, value
}

// pushInterval records an accepted interval into the rolling window,
// expiring anything older than intervalExpirySec relative to nowSec.
func (d *density) pushInterval(iv interval, nowSec float64) {
	d.recent[d.recentPos] = iv
	d.recentPos = (d.recentPos + 1) % validIntervals
	if d.recentLen < validIntervals {
		d.recentLen++
	}
	d.pruneExpired(nowSec)
}

func (d *density) pruneExpired(nowSec float64) {
	kept := 0
	var fresh [validIntervals]interval
	oldest := d.recentPos - d.recentLen + validIntervals
	for i := 0; i < d.recentLen; i++ {
		iv := d.recent[(oldest+i)%validIntervals]
		if nowSec-iv.atSec <= intervalExpirySec {
			fresh[kept] = iv
			kept++
		}
	}
	d.recent = fresh
	d.recentLen = kept
	d.recentPos = kept % validIntervals
}

// consistencyBoost returns 3 if bpm is within 15 BPM of at least one
// of the recent accepted intervals, else 1 (spec section 4.9.3).
func (d *density) consistencyBoost(bpm float64) float64 {
	for i := 0; i < d.recentLen; i++ {
		if math.Abs(d.recent[i].bpm-bpm) <= 15 {
			return 3
		}
	}
	return 1
}

// recencyWeight linearly decays from 1.0 (brand new) to 0.5 (at the
// expiry horizon) as an interval ages (spec section 4.9.3).
func recencyWeight(ageSec float64) float64 {
	w := 1.0 - 0.5*(ageSec/intervalExpirySec)
	return clamp(w, 0.5, 1.0)
}

// nearestMatchAge returns the age, relative to nowSec, of the freshest
// recent interval within 15 BPM of bpm (the same match consistencyBoost
// looks for), or -1 if none match. Feeds recencyWeight with the age of
// the evidence actually being corroborated, instead of the brand-new
// interval's own age (always zero).
func (d *density) nearestMatchAge(bpm, nowSec float64) float64 {
	best := -1.0
	for i := 0; i < d.recentLen; i++ {
		if math.Abs(d.recent[i].bpm-bpm) <= 15 {
			age := nowSec - d.recent[i].atSec
			if best < 0 || age < best {
				best = age
			}
		}
	}
	return best
}

// onsetStrengthScale expands the vote weight with onset strength
// above unity and contracts it below, per spec section 4.9.3.
func onsetStrengthScale(strength float64) float64 {
	scale := 1 + 0.5*(strength-1)
	return clamp(scale, 0.25, 3.0)
}

// checkMismatch tracks how many consecutive accepted intervals
// disagree with the current density peak by more than the configured
// threshold, returning true once the run hits the configured count
// (spec section 4.9.7, tempo-change re-seed trigger).
func (d *density) checkMismatch(bpm float64, mismatchThresholdBPM float64, mismatchCount int) bool {
	peakBin, peakValue := d.peak()
	if peakValue <= 0 {
		d.mismatchStreak = 0
		return false
	}
	peakBPM := binToBPM(peakBin)

	if math.Abs(bpm-peakBPM) > mismatchThresholdBPM {
		d.mismatchStreak++
	} else {
		d.mismatchStreak = 0
	}
	if d.mismatchStreak >= mismatchCount {
		d.mismatchStreak = 0
		return true
	}
	return false
}

// reseed clears the histogram and interval history, as done on a
// detected tempo change (spec section 4.9.7).
func (d *density) reseed() {
	d.hist = [densityBins]float64{}
	d.recent = [validIntervals]interval{}
	d.recentLen = 0
	d.recentPos = 0
	d.mismatchStreak = 0
}

// softReset scales the histogram down without clearing accepted
// BPM/period state, as required by the low-confidence safety net
// (spec section 4.9.7): density is multiplied by factor exactly once.
func (d *density) softReset(factor float64) {
	d.decay(factor)
	d.recent = [validIntervals]interval{}
	d.recentLen = 0
	d.recentPos = 0
	d.mismatchStreak = 0
}

// voteOctaveVariants additionally votes the half- and double-tempo
// hypotheses at reduced weight while confidence is still low, to help
// bootstrap the lock before the true tempo dominates the histogram
// (spec section 4.9.3).
func (d *density) voteOctaveVariants(bpm, weight, octaveWeight float64) {
	d.vote(bpm*0.5, weight*octaveWeight)
	d.vote(bpm*2.0, weight*octaveWeight)
}

// intervalInRange reports whether the interval (in seconds) falls
// within the configured min/max BPM range.
func intervalInRange(seconds, minBPM, maxBPM float64) bool {
	if maxBPM <= 0 || minBPM <= 0 {
		return false
	}
	minSec := 60.0 / maxBPM
	maxSec := 60.0 / minBPM
	return seconds >= minSec && seconds <= maxSec
}

// bpmFromInterval converts an inter-onset interval in seconds to BPM.
func bpmFromInterval(seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return 60.0 / seconds
}
