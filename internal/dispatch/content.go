package dispatch

import (
	"github.com/five82/brcplan/internal/orchestrator"
	"github.com/five82/brcplan/internal/ratecontrol"
)

// DefaultComplexity is the bits a 64x64 P-frame LCU of average content
// costs at QP 4.
const DefaultComplexity = 4000.0

// Content scale per coding type.
var typeFactor = map[ratecontrol.FrameType]float64{
	ratecontrol.FrameI:  3.0,
	ratecontrol.FrameP:  1.0,
	ratecontrol.FrameB:  0.6,
	ratecontrol.FrameB1: 0.5,
	ratecontrol.FrameB2: 0.4,
}

// contentModel synthesizes per-LCU coding cost from a seed, so the same
// seed and plan always produce the same statistics.
type contentModel struct {
	seed       uint64
	complexity float64
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// activity returns a value in [0.5, 1.5) for an LCU of a frame.
func (m contentModel) activity(frame int64, col, row int) float64 {
	h := splitmix64(m.seed ^ splitmix64(uint64(frame)) ^ uint64(col)<<32 ^ uint64(row))
	return 0.5 + float64(h>>11)/(1<<53)
}

type lcuResult struct {
	bits       float64
	qp         int
	distortion float64
}

// code returns the cost of one LCU at qp.
func (m contentModel) code(f orchestrator.FrameDescriptor, col, row, qp int) lcuResult {
	a := m.activity(f.FrameNumber, col, row)
	scale := float64(f.LCUSize()*f.LCUSize()) / (64 * 64)
	tf, ok := typeFactor[f.Type]
	if !ok {
		tf = 1
	}
	q := ratecontrol.QStep(float64(qp))
	return lcuResult{
		bits:       m.complexity * scale * tf * a / q,
		qp:         qp,
		distortion: q * q / 12 * a,
	}
}
