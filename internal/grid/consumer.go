package grid

import (
	"context"
	"time"

	"github.com/doismell-labs/musicd/internal/snapshot"
	"github.com/doismell-labs/musicd/internal/types"
)

// DefaultPollHz is the render-side consumer's default poll rate. It
// is intentionally decoupled from the audio engine's hop rate: a grid
// consumer only needs to resample the latest tempo observation often
// enough for smooth on-screen motion, not on every hop.
const DefaultPollHz = 120

// Observation is the subset of per-hop tempo state a Consumer needs
// from the audio task, carried over a snapshot cell so the consumer
// goroutine never touches engine-owned memory directly.
type Observation struct {
	Time        types.AudioTime
	BPMSmoothed float64
	Confidence  float64
	Phase01     float64
	BeatTick    bool
}

// Source is satisfied by engine.Engine.TempoObservations's return
// type; declared here so this package never imports internal/engine.
type Source interface {
	Load() (Observation, uint64)
}

// Consumer is the second goroutine described by the snapshot
// ownership design: it polls a tempo observation cell on its own
// ticker and folds each new observation into its own Grid, publishing
// the resulting MusicalGridSnapshot to a cell of its own so further
// readers never contend with the audio task or with each other.
type Consumer struct {
	src      Source
	grid     *Grid
	pollHz   int
	lastSeen uint64

	out *snapshot.Cell[types.MusicalGridSnapshot]
}

// NewConsumer builds a consumer that polls src at pollHz (DefaultPollHz
// if pollHz <= 0) and derives a grid with the given time signature.
func NewConsumer(src Source, beatsPerBar int, pollHz int) *Consumer {
	if pollHz <= 0 {
		pollHz = DefaultPollHz
	}
	return &Consumer{
		src:    src,
		grid:   NewGrid(beatsPerBar),
		pollHz: pollHz,
		out:    snapshot.NewCell[types.MusicalGridSnapshot](),
	}
}

// Snapshots returns the cell a renderer reads the latest
// MusicalGridSnapshot from.
func (c *Consumer) Snapshots() *snapshot.Cell[types.MusicalGridSnapshot] {
	return c.out
}

// Run polls the tempo observation cell until ctx is cancelled. Each
// tick that has seen a new observation since the last poll folds it
// into the grid and republishes; a tick with nothing new is a no-op,
// since re-folding a stale observation that carries a beat tick would
// advance the grid's beat and bar counters a second time.
func (c *Consumer) Run(ctx context.Context) {
	interval := time.Second / time.Duration(c.pollHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.poll()
		}
	}
}

func (c *Consumer) poll() {
	obs, seq := c.src.Load()
	if seq == 0 || seq == c.lastSeen {
		return
	}
	c.lastSeen = seq
	snap := c.grid.Observe(obs.Time, obs.BPMSmoothed, obs.Confidence, obs.Phase01, obs.BeatTick)
	c.out.Publish(snap)
}
