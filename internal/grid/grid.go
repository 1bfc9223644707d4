// Package grid derives a renderer-facing MusicalGridSnapshot (beat
// and bar counters, phases, tick flags) from the tempo tracker's raw
// per-hop observations (spec section 3, MusicalGridSnapshot).
package grid

import "github.com/doismell-labs/musicd/internal/types"

// Grid is a per-consumer instance: each render/effects consumer can
// own one without contending with another (spec section 3 notes the
// grid is produced "on demand by the renderer-side grid").
type Grid struct {
	beatsPerBar int

	beatIndex uint64
	barIndex  uint64
	beatInBar int
}

// NewGrid creates a grid with the given time signature (beats per
// bar); 4 is the common default.
func NewGrid(beatsPerBar int) *Grid {
	if beatsPerBar <= 0 {
		beatsPerBar = 4
	}
	return &Grid{beatsPerBar: beatsPerBar}
}

// Observe folds one hop's tempo-tracker output into the grid and
// returns the updated snapshot.
func (g *Grid) Observe(at types.AudioTime, bpmSmoothed, confidence, phase01 float64, beatTick bool) types.MusicalGridSnapshot {
	downbeat := false
	if beatTick {
		downbeat = g.beatInBar == 0
		g.beatIndex++
		if downbeat {
			g.barIndex++
		}
		g.beatInBar = (g.beatInBar + 1) % g.beatsPerBar
	}

	barPhase := (float64(g.beatInBar) + phase01) / float64(g.beatsPerBar)

	return types.MusicalGridSnapshot{
		Time:            at,
		BPMSmoothed:     bpmSmoothed,
		TempoConfidence: confidence,
		BeatIndex:       g.beatIndex,
		BeatPhase01:     phase01,
		BeatTick:        beatTick,
		BarIndex:        g.barIndex,
		BarPhase01:      barPhase,
		DownbeatTick:    downbeat,
		BeatInBar:       g.beatInBar,
		BeatsPerBar:     g.beatsPerBar,
	}
}
