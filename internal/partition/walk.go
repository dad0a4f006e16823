package partition

import (
	"fmt"
	"strings"
)

// Walk selects the wavefront geometry.
type Walk int

const (
	// WalkDiagonal advances one row per diagonal step. Each LCU waits on its
	// west, north-west, north and north-east neighbours.
	WalkDiagonal Walk = iota
	// WalkZigzag covers two rows per diagonal step and additionally waits on
	// the row two above.
	WalkZigzag
)

// String returns the walk name.
func (w Walk) String() string {
	switch w {
	case WalkDiagonal:
		return "diagonal"
	case WalkZigzag:
		return "zigzag"
	default:
		return fmt.Sprintf("Walk(%d)", int(w))
	}
}

// ParseWalk converts a walk name to a Walk.
func ParseWalk(s string) (Walk, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "diagonal", "45", "wave":
		return WalkDiagonal, nil
	case "zigzag", "26", "wave26":
		return WalkZigzag, nil
	default:
		return 0, fmt.Errorf("%w: %q (valid: diagonal, zigzag)", ErrInvalidWalk, s)
	}
}

// Valid reports whether w is a known geometry.
func (w Walk) Valid() bool {
	return w == WalkDiagonal || w == WalkZigzag
}

// UnitRows is the row alignment the walk needs from slice boundaries.
func (w Walk) UnitRows() int {
	if w == WalkZigzag {
		return 2
	}
	return 1
}

// MinRegionCols is the narrowest region the walk supports.
func (w Walk) MinRegionCols() int {
	if w == WalkZigzag {
		return 2
	}
	return 1
}

// Wave returns the wavefront index of the LCU at (x, y) relative to the
// top-left of its slice. LCUs sharing a wave index may run concurrently.
func (w Walk) Wave(x, y int) int {
	if w == WalkZigzag {
		return 2*x + 3*(y%2) + 6*(y/2)
	}
	return x + 2*y
}

// Waves returns how many wave indices a width x height block spans.
func (w Walk) Waves(width, height int) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	return w.Wave(width-1, height-1) + 1
}

// MaxDeltas is the scoreboard capacity.
const MaxDeltas = 8

// Delta is a relative (column, row) offset to an LCU that must complete first.
type Delta struct {
	DX int `json:"dx" yaml:"dx"`
	DY int `json:"dy" yaml:"dy"`
}

// Scoreboard is the dependency set emitted to the dispatcher.
type Scoreboard struct {
	Deltas [MaxDeltas]Delta `json:"deltas"`
	Mask   uint8            `json:"mask"`
}

// Active returns the enabled deltas in order.
func (s Scoreboard) Active() []Delta {
	out := make([]Delta, 0, MaxDeltas)
	for i, d := range s.Deltas {
		if s.Mask&(1<<i) != 0 {
			out = append(out, d)
		}
	}
	return out
}

var diagonalDeltas = [...]Delta{
	{-1, 0}, {-1, -1}, {0, -1}, {1, -1},
}

var zigzagDeltas = [...]Delta{
	{-1, 0}, {-1, -1}, {0, -1}, {1, -1},
	{-1, -2}, {0, -2}, {1, -2}, {2, -2},
}

// ScoreboardFor returns the dependency deltas of a walk.
func ScoreboardFor(w Walk) Scoreboard {
	var sb Scoreboard
	src := diagonalDeltas[:]
	if w == WalkZigzag {
		src = zigzagDeltas[:]
	}
	for i, d := range src {
		sb.Deltas[i] = d
		sb.Mask |= 1 << i
	}
	return sb
}
