package ratecontrol

import (
	"math"

	"github.com/five82/brcplan/internal/costmodel"
)

// QStep returns the quantizer step size for qp. It doubles every 6 QP.
func QStep(qp float64) float64 {
	return math.Pow(2, (qp-4)/6)
}

// QPForComplexity inverts bits = complexity / qstep.
func QPForComplexity(complexity, bits float64) float64 {
	return 4 + 6*math.Log2(complexity/bits)
}

// Relative frame sizes per level used to share the GOP budget.
var levelWeights = [NumLevels]float64{
	LevelPOrLB: 1.0,
	LevelB:     0.6,
	LevelI:     3.0,
	LevelB1:    0.45,
	LevelB2:    0.35,
}

// Bits per pixel expected at seedQP before any feedback arrives.
var seedBitsPerPixel = [NumLevels]float64{
	LevelPOrLB: 0.12,
	LevelB:     0.07,
	LevelI:     0.45,
	LevelB1:    0.05,
	LevelB2:    0.04,
}

const seedQP = 26

// QP offsets per level for the constant-quality modes.
var qualityOffset = [NumLevels]int{
	LevelPOrLB: 0,
	LevelB:     1,
	LevelI:     -1,
	LevelB1:    2,
	LevelB2:    3,
}

// complexityAlpha weights the newest observation in the smoothed complexity.
const complexityAlpha = 0.5

// FrameBudget returns the bits a frame of level l may spend when the GOP's
// budget is shared by level weight.
func FrameBudget(s Setup, l Level) float64 {
	g := s.GOP
	size := 1 + g.P + g.B + g.B1 + g.B2
	if size <= 1 {
		return s.BitsPerFrame
	}
	total := levelWeights[LevelI] +
		float64(g.P)*levelWeights[LevelPOrLB] +
		float64(g.B)*levelWeights[LevelB] +
		float64(g.B1)*levelWeights[LevelB1] +
		float64(g.B2)*levelWeights[LevelB2]
	return s.BitsPerFrame * float64(size) * levelWeights[l] / total
}

// DeviationDelta maps a buffer deviation in percent of the buffer to a QP
// step in [-4, 4] using the eight thresholds of a class.
func DeviationDelta(dev float64, th [8]int) int {
	switch {
	case dev < float64(th[0]):
		return 4
	case dev < float64(th[1]):
		return 3
	case dev < float64(th[2]):
		return 2
	case dev < float64(th[3]):
		return 1
	case dev > float64(th[7]):
		return -4
	case dev > float64(th[6]):
		return -3
	case dev > float64(th[5]):
		return -2
	case dev > float64(th[4]):
		return -1
	}
	return 0
}

// GlobalDelta maps the cumulative actual to target ratio (percent) to a QP
// step. The step is bounded by the number of start frames already passed,
// so the correction grows in as the stream converges.
func GlobalDelta(ga GlobalAdjust, frame int64, ratio float64) int {
	gates := 0
	for _, f := range ga.StartFrames {
		if frame >= int64(f) {
			gates++
		}
	}
	if gates == 0 {
		return 0
	}

	rr := ga.RateRatio
	d := 0
	switch {
	case ratio < float64(rr[0]):
		d = -3
	case ratio < float64(rr[1]):
		d = -2
	case ratio < float64(rr[2]):
		d = -1
	case ratio > float64(rr[5]):
		d = 3
	case ratio > float64(rr[4]):
		d = 2
	case ratio > float64(rr[3]):
		d = 1
	}
	return max(-gates, min(d, gates))
}

// QPDecision explains how a frame QP was reached.
type QPDecision struct {
	QP             int     `json:"qp"`
	BaseQP         float64 `json:"base_qp"`
	Budget         float64 `json:"budget"`
	Deviation      float64 `json:"deviation"` // percent of buffer, negative when overspent
	DeviationDelta int     `json:"deviation_delta"`
	GlobalDelta    int     `json:"global_delta"`
	Panic          bool    `json:"panic"`
}

func (c *Controller) seedComplexity(l Level) float64 {
	w, h := c.params.FrameWidth, c.params.FrameHeight
	if w <= 0 || h <= 0 {
		w, h = 1920, 1088
	}
	return seedBitsPerPixel[l] * float64(w*h) * QStep(seedQP)
}

func (c *Controller) complexity(l Level) float64 {
	if v := c.state.Complexity[l]; v > 0 {
		return v
	}
	return c.seedComplexity(l)
}

func (c *Controller) observe(l Level, bits int64, avgQP float64) {
	if bits <= 0 {
		return
	}
	obs := float64(bits) * QStep(avgQP)
	if prev := c.state.Complexity[l]; prev > 0 {
		obs = complexityAlpha*obs + (1-complexityAlpha)*prev
	}
	c.state.Complexity[l] = obs
}

func (c *Controller) decideQP(l Level) QPDecision {
	bounds := c.params.rangeFor(l)
	clamp := func(qp int) int {
		return max(0, min(bounds.clamp(qp), costmodel.MaxQP))
	}

	switch c.setup.Mode {
	case ModeCQP:
		return QPDecision{QP: clamp(c.cqp(l))}
	case ModeICQ:
		return QPDecision{QP: clamp(c.setup.ACQPBuffer + qualityOffset[l])}
	}

	d := QPDecision{Budget: FrameBudget(c.setup, l)}
	d.BaseQP = QPForComplexity(c.complexity(l), d.Budget)

	if c.setup.BufferSize > 0 {
		d.Deviation = 100 * (c.state.BufferFullness - float64(c.setup.InitialFullness)) / float64(c.setup.BufferSize)
	}
	th := c.setup.Thresholds.PB
	switch {
	case l == LevelI:
		th = c.setup.Thresholds.I
	case c.setup.Mode.variable():
		th = c.setup.Thresholds.VBR
	}
	d.DeviationDelta = DeviationDelta(d.Deviation, th)

	if c.state.TargetBits > 0 {
		ratio := 100 * float64(c.state.ActualBits) / float64(c.state.TargetBits)
		d.GlobalDelta = GlobalDelta(c.setup.GlobalAdjust, c.state.FramesPlanned, ratio)
	}

	qp := int(math.Round(d.BaseQP)) + d.DeviationDelta + d.GlobalDelta
	if c.setup.Mode == ModeQVBR {
		qp = max(qp, c.setup.ACQPBuffer+qualityOffset[l])
	}
	if c.setup.PanicMode && c.state.BufferFullness < c.setup.BitsPerFrame {
		qp = bounds.Max
		d.Panic = true
	}
	d.QP = clamp(qp)
	return d
}

func (c *Controller) cqp(l Level) int {
	switch l {
	case LevelI:
		return c.params.CQP.I
	case LevelPOrLB:
		return c.params.CQP.P
	case LevelB1:
		return c.params.CQP.B + 1
	case LevelB2:
		return c.params.CQP.B + 2
	default:
		return c.params.CQP.B
	}
}
