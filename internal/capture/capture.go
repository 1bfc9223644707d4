// Package capture implements the microphone front-end: converting
// raw 32-bit I2S slot words into normalised int16 hops, with the
// timeout/partial-read recovery policy from spec section 4.1.
package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"time"

	"github.com/doismell-labs/musicd/internal/types"
)

// Source produces exactly H raw 32-bit I2S slot words per hop. The
// device and synthetic sources below both implement it.
type Source interface {
	ReadHop(ctx context.Context, raw []int32) (n int, err error)
}

// Result carries one hop's converted samples plus the failure kind
// that applied, if any (spec section 4.1, Failure modes).
type Result struct {
	Samples  []int16
	Kind     types.CaptureErrorKind
	ReadTime time.Duration
}

const (
	shiftBits    = 14
	bias         = 7000
	clipRange    = 131072 // +-18 bit range
	offset       = 360
	preamp       = 4.0
	int16Max     = 32767
)

// Capture drives a Source through one hop at a time, applying the
// DC-bias-correcting conversion sequence and the timeout policy.
type Capture struct {
	src      Source
	hopSize  int
	rawBuf   []int32
}

// NewCapture wraps src with a scratch buffer sized to hopSize.
func NewCapture(src Source, hopSize int) *Capture {
	return &Capture{
		src:     src,
		hopSize: hopSize,
		rawBuf:  make([]int32, hopSize),
	}
}

// CaptureHop blocks up to 2*hopDuration for a full hop of raw slots,
// converts them, and reports the outcome. On DMA timeout the caller
// receives a CaptureDMATimeout result with no samples so the pipeline
// can skip ahead; on partial read the missing tail is zero-filled.
func (c *Capture) CaptureHop(ctx context.Context, hopDuration time.Duration) Result {
	start := time.Now()
	timeoutCtx, cancel := context.WithTimeout(ctx, 2*hopDuration)
	defer cancel()

	n, err := c.src.ReadHop(timeoutCtx, c.rawBuf)
	elapsed := time.Since(start)

	if errors.Is(err, context.DeadlineExceeded) {
		return Result{Kind: types.CaptureDMATimeout, ReadTime: elapsed}
	}
	if err != nil && err != io.EOF {
		return Result{Kind: types.CaptureReadError, ReadTime: elapsed}
	}

	kind := types.CaptureOK
	if n < c.hopSize {
		kind = types.CapturePartialRead
		for i := n; i < c.hopSize; i++ {
			c.rawBuf[i] = 0
		}
	}

	samples := make([]int16, c.hopSize)
	for i := 0; i < c.hopSize; i++ {
		samples[i] = convertSlot(c.rawBuf[i])
	}

	return Result{Samples: samples, Kind: kind, ReadTime: elapsed}
}

// convertSlot applies the exact fixed sequence from spec section 4.1:
// arithmetic right-shift 14, add bias, clip to the 18-bit range,
// subtract an empirically chosen offset, scale to float, pre-amplify
// 4x, then round back to int16 with clipping.
func convertSlot(slot int32) int16 {
	shifted := slot >> shiftBits
	biased := shifted + bias
	if biased > clipRange {
		biased = clipRange
	}
	if biased < -clipRange {
		biased = -clipRange
	}
	centred := biased - offset
	f := float64(centred) / float64(clipRange)
	f *= preamp

	scaled := f * int16Max
	if scaled > int16Max {
		scaled = int16Max
	}
	if scaled < -int16Max {
		scaled = -int16Max
	}
	return int16(math.Round(scaled))
}

// DeviceSource reads raw little-endian 32-bit I2S slot words from an
// io.Reader (a real driver's DMA buffer, a pipe, or a test fixture).
type DeviceSource struct {
	r   io.Reader
	buf []byte
}

// NewDeviceSource wraps r, assuming 4 bytes per slot.
func NewDeviceSource(r io.Reader) *DeviceSource {
	return &DeviceSource{r: r}
}

// ReadHop fills raw with up to len(raw) slots, returning the number
// actually read. A partial read is not itself an error; the caller
// decides the policy.
func (d *DeviceSource) ReadHop(ctx context.Context, raw []int32) (int, error) {
	need := len(raw) * 4
	if cap(d.buf) < need {
		d.buf = make([]byte, need)
	}
	buf := d.buf[:need]

	readDone := make(chan struct{})
	var n int
	var err error
	go func() {
		n, err = io.ReadFull(d.r, buf)
		close(readDone)
	}()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-readDone:
	}

	full := n / 4
	for i := 0; i < full; i++ {
		raw[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return full, io.EOF
	}
	return full, err
}

// SyntheticSource generates a deterministic stream of raw 32-bit slot
// words (which Capture then converts like device data), for tests and
// the --synthetic CLI mode where no microphone hardware is present.
type SyntheticSource struct {
	gen func(sampleIndex uint64) int32

	sampleIndex uint64
}

// NewSyntheticSource wraps a per-sample raw-slot generator function.
func NewSyntheticSource(gen func(sampleIndex uint64) int32) *SyntheticSource {
	return &SyntheticSource{gen: gen}
}

// ReadHop always fills the full buffer synchronously; context
// cancellation is honoured between samples so long hops remain
// interruptible.
func (s *SyntheticSource) ReadHop(ctx context.Context, raw []int32) (int, error) {
	for i := range raw {
		select {
		case <-ctx.Done():
			return i, ctx.Err()
		default:
		}
		raw[i] = s.gen(s.sampleIndex)
		s.sampleIndex++
	}
	return len(raw), nil
}
