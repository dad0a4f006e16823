package ratecontrol

import (
	"fmt"

	"github.com/five82/brcplan/internal/costmodel"
)

// GOP describes the group-of-pictures structure.
type GOP struct {
	PicSize      int  `yaml:"pic_size" json:"pic_size"`         // frames per GOP including the I frame
	RefDist      int  `yaml:"ref_dist" json:"ref_dist"`         // distance between anchor frames; 1 means no B frames
	Hierarchical bool `yaml:"hierarchical" json:"hierarchical"` // B pyramid
}

// QPRange is an inclusive QP interval.
type QPRange struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// FullQPRange covers every valid QP.
var FullQPRange = QPRange{Min: 0, Max: costmodel.MaxQP}

func (r QPRange) clamp(qp int) int {
	return max(r.Min, min(qp, r.Max))
}

func (r QPRange) validate() error {
	if r.Min < 0 || r.Max > costmodel.MaxQP || r.Min > r.Max {
		return fmt.Errorf("%w: [%d,%d]", ErrQPRange, r.Min, r.Max)
	}
	return nil
}

// CQPValues are the fixed QPs used by ModeCQP. B1 and B2 frames add one
// and two to B.
type CQPValues struct {
	I int `yaml:"i" json:"i"`
	P int `yaml:"p" json:"p"`
	B int `yaml:"b" json:"b"`
}

// Params configures Init and Reset. Bitrates are in bits per second, buffer
// sizes in bits.
type Params struct {
	Mode Mode

	TargetBitrate int64
	MaxBitrate    int64

	FrameRateNum uint32
	FrameRateDen uint32

	BufferSize      int64
	InitialFullness int64 // 0 selects 7/8 of the buffer

	FrameWidth  int
	FrameHeight int

	GOP       GOP
	LowDelay  bool
	Tolerance Tolerance

	ICQQuality      int // ICQ constant quality and QVBR quality floor, 1..51
	AVBRAccuracy    int // 0 selects DefaultAVBRAccuracy
	AVBRConvergence int // 0 selects DefaultAVBRConvergence

	QPI QPRange
	QPP QPRange
	QPB QPRange
	CQP CQPValues

	RegionControl     bool
	PanicMode         bool
	ParallelBRC       bool
	SlidingWindowSize int
	LTRInterval       int
	EnableLTR         bool
	PassCount         int // PAK passes per frame, at least 1
}

// Defaults for the AVBR global adjustment.
const (
	DefaultAVBRAccuracy    = 30
	DefaultAVBRConvergence = 150
)

// DefaultParams returns CBR parameters for a 1080p30 stream at 4 Mbps.
func DefaultParams() Params {
	return Params{
		Mode:          ModeCBR,
		TargetBitrate: 4_000_000,
		MaxBitrate:    4_000_000,
		FrameRateNum:  30,
		FrameRateDen:  1,
		BufferSize:    4_000_000,
		FrameWidth:    1920,
		FrameHeight:   1088,
		GOP:           GOP{PicSize: 32, RefDist: 1},
		ICQQuality:    26,
		QPI:           FullQPRange,
		QPP:           FullQPRange,
		QPB:           FullQPRange,
		CQP:           CQPValues{I: 24, P: 26, B: 28},
		PassCount:     1,
	}
}

// Validate checks params for configuration errors.
func (p *Params) Validate() error {
	if !p.Mode.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidMode, int(p.Mode))
	}
	if p.FrameRateNum == 0 || p.FrameRateDen == 0 {
		return fmt.Errorf("%w: %d/%d", ErrFrameRate, p.FrameRateNum, p.FrameRateDen)
	}
	if p.Mode.UsesBitrate() && p.TargetBitrate <= 0 {
		return fmt.Errorf("%w: target %d", ErrBitrate, p.TargetBitrate)
	}
	if p.MaxBitrate < 0 {
		return fmt.Errorf("%w: max %d", ErrBitrate, p.MaxBitrate)
	}
	if p.Mode.requiresBuffer() && p.BufferSize <= 0 {
		return fmt.Errorf("%w: %d bits for %v", ErrBufferSize, p.BufferSize, p.Mode)
	}
	if p.BufferSize < 0 {
		return fmt.Errorf("%w: %d bits", ErrBufferSize, p.BufferSize)
	}
	if p.InitialFullness < 0 {
		return fmt.Errorf("%w: %d bits", ErrInitialFullness, p.InitialFullness)
	}
	if (p.Mode == ModeICQ || p.Mode == ModeQVBR) && (p.ICQQuality < 1 || p.ICQQuality > costmodel.MaxQP) {
		return fmt.Errorf("%w: %d", ErrQuality, p.ICQQuality)
	}
	if p.GOP.PicSize < 1 || p.GOP.RefDist < 1 || (p.GOP.PicSize > 1 && p.GOP.RefDist > p.GOP.PicSize) {
		return fmt.Errorf("%w: size %d ref dist %d", ErrGOP, p.GOP.PicSize, p.GOP.RefDist)
	}
	for _, r := range []QPRange{p.QPI, p.QPP, p.QPB} {
		if err := r.validate(); err != nil {
			return err
		}
	}
	if p.Mode == ModeCQP {
		for _, qp := range []int{p.CQP.I, p.CQP.P, p.CQP.B} {
			if err := costmodel.ValidateQP(qp); err != nil {
				return fmt.Errorf("%w: CQP %v", ErrQPRange, err)
			}
		}
	}
	if p.PassCount < 0 || p.SlidingWindowSize < 0 || p.LTRInterval < 0 {
		return fmt.Errorf("%w: negative pass count, window or LTR interval", ErrParams)
	}
	return nil
}

// rangeFor returns the QP bounds of a level. B1 and B2 share the B bounds.
func (p *Params) rangeFor(l Level) QPRange {
	switch l {
	case LevelI:
		return p.QPI
	case LevelPOrLB:
		return p.QPP
	default:
		return p.QPB
	}
}
