package ratecontrol

import "math"

// LongTermRefFlag is reported as the LTR interval when long-term
// references are enabled without an explicit interval.
const LongTermRefFlag = 0x8000

// Thresholds are the buffer deviation thresholds, negative side first.
type Thresholds struct {
	PB  [8]int `json:"pb" yaml:"pb"`
	VBR [8]int `json:"vbr" yaml:"vbr"`
	I   [8]int `json:"i" yaml:"i"`
}

var (
	pbNeg  = [4]float64{0.90, 0.66, 0.46, 0.3}
	pbPos  = [4]float64{0.3, 0.46, 0.7, 0.9}
	vbrNeg = [4]float64{0.9, 0.7, 0.5, 0.3}
	vbrPos = [4]float64{0.4, 0.5, 0.75, 0.9}
	iNeg   = [4]float64{0.8, 0.6, 0.34, 0.2}
	iPos   = [4]float64{0.2, 0.4, 0.66, 0.9}
)

func thresholdRow(neg, pos [4]float64, negScale, posScale, ratio float64) [8]int {
	var out [8]int
	for i := range 4 {
		out[i] = int(negScale * math.Pow(neg[i], ratio))
		out[4+i] = int(posScale * math.Pow(pos[i], ratio))
	}
	return out
}

// DeriveThresholds computes the deviation thresholds for a bps ratio.
func DeriveThresholds(bpsRatio float64) Thresholds {
	return Thresholds{
		PB:  thresholdRow(pbNeg, pbPos, -50, 50, bpsRatio),
		VBR: thresholdRow(vbrNeg, vbrPos, -50, 100, bpsRatio),
		I:   thresholdRow(iNeg, iPos, -50, 50, bpsRatio),
	}
}

// BPSRatio is bits per frame relative to a nominal 30-frame buffer window,
// clamped to [0.1, 3.5].
func BPSRatio(bitsPerFrame float64, bufferSize int64) float64 {
	if bufferSize <= 0 {
		return 3.5
	}
	r := bitsPerFrame / (float64(bufferSize) / 30)
	return max(0.1, min(r, 3.5))
}

// GOPParams are the frame counts per GOP used to share the bit budget.
type GOPParams struct {
	P        int  `json:"p" yaml:"p"`
	B        int  `json:"b" yaml:"b"`
	B1       int  `json:"b1" yaml:"b1"`
	B2       int  `json:"b2" yaml:"b2"`
	MaxLevel int  `json:"max_level" yaml:"max_level"`
	Pyramid  bool `json:"pyramid" yaml:"pyramid"`
}

var (
	pyramidB  = [9]int{0, 0, 1, 1, 1, 1, 1, 1, 1}
	pyramidB1 = [9]int{0, 0, 0, 1, 2, 2, 2, 2, 2}
	pyramidB2 = [9]int{0, 0, 0, 0, 0, 1, 2, 3, 4}
)

// DeriveGOP computes the GOP parameters. A hierarchical GOP with a
// reference distance of 2 to 8 uses the pyramid tables; anything else is
// treated as a flat P/B structure.
func DeriveGOP(g GOP) GOPParams {
	size, dist := g.PicSize, g.RefDist
	if g.Hierarchical && dist > 1 && dist <= 8 {
		n := (size - 1) / dist
		rem := (size - 1) % dist
		gp := GOPParams{
			P:       n*pyramidB[dist] + pyramidB[rem+1],
			B:       n*pyramidB[dist] + pyramidB[rem],
			B1:      n*pyramidB1[dist] + pyramidB1[rem],
			B2:      n*pyramidB2[dist] + pyramidB2[rem],
			Pyramid: true,
		}
		if dist <= 4 || gp.B2 == 0 {
			gp.MaxLevel = 3
		} else {
			gp.MaxLevel = 4
		}
		return gp
	}

	gp := GOPParams{MaxLevel: 1}
	if dist > 0 {
		gp.P = (size - 1 + dist - 1) / dist
	}
	gp.B = size - 1 - gp.P
	return gp
}

// GlobalAdjust gates and scales the cumulative rate correction.
type GlobalAdjust struct {
	StartFrames [4]int `json:"start_frames" yaml:"start_frames"`
	RateRatio   [6]int `json:"rate_ratio" yaml:"rate_ratio"` // percent; three below 100, three above
}

// DefaultGlobalAdjust is used by every mode except AVBR.
var DefaultGlobalAdjust = GlobalAdjust{
	StartFrames: [4]int{10, 50, 100, 150},
	RateRatio:   [6]int{40, 75, 97, 103, 125, 160},
}

// DeriveAVBRAdjust computes the AVBR gates from convergence (frames) and
// the thresholds from accuracy (percent scaled by 30).
func DeriveAVBRAdjust(accuracy, convergence int) GlobalAdjust {
	var ga GlobalAdjust
	for i, f := range [4]float64{10, 50, 100, 150} {
		ga.StartFrames[i] = int(f * float64(convergence) / 150)
	}
	acc := float64(accuracy) / 30
	for i, t := range [3]float64{40, 75, 97} {
		ga.RateRatio[i] = int(100 - acc*(100-t))
	}
	for i, t := range [3]float64{103, 125, 160} {
		ga.RateRatio[3+i] = int(100 + acc*(t-100))
	}
	return ga
}

// Setup is the normalized configuration produced by Init and Reset.
type Setup struct {
	Mode            Mode         `json:"mode" yaml:"mode"`
	TargetBitrate   int64        `json:"target_bitrate" yaml:"target_bitrate"`
	MaxBitrate      int64        `json:"max_bitrate" yaml:"max_bitrate"`
	BufferSize      int64        `json:"buffer_size" yaml:"buffer_size"`
	InitialFullness int64        `json:"initial_fullness" yaml:"initial_fullness"`
	BitsPerFrame    float64      `json:"bits_per_frame" yaml:"bits_per_frame"`
	BPSRatio        float64      `json:"bps_ratio" yaml:"bps_ratio"`
	Thresholds      Thresholds   `json:"thresholds" yaml:"thresholds"`
	GOP             GOPParams    `json:"gop" yaml:"gop"`
	GlobalAdjust    GlobalAdjust `json:"global_adjust" yaml:"global_adjust"`

	ACQPBuffer       int  `json:"acqp_buffer" yaml:"acqp_buffer"` // quality factor for ICQ and QVBR, 1 otherwise
	DisableMBBRC     bool `json:"disable_mbbrc" yaml:"disable_mbbrc"`
	PanicMode        bool `json:"panic_mode" yaml:"panic_mode"`
	RandomAccess     bool `json:"random_access" yaml:"random_access"`
	LongTermInterval int  `json:"long_term_interval" yaml:"long_term_interval"`
	SlidingWindow    int  `json:"sliding_window" yaml:"sliding_window"`
}

// NewSetup validates params and normalizes them. roiEnabled reports whether
// the stream carries ROI rectangles, which disables LCU-level BRC.
func NewSetup(p Params, roiEnabled bool) (Setup, error) {
	if err := p.Validate(); err != nil {
		return Setup{}, err
	}

	s := Setup{
		Mode:             p.Mode,
		TargetBitrate:    p.TargetBitrate,
		MaxBitrate:       p.MaxBitrate,
		BufferSize:       p.BufferSize,
		InitialFullness:  p.InitialFullness,
		ACQPBuffer:       1,
		DisableMBBRC:     roiEnabled || !p.RegionControl,
		PanicMode:        p.PanicMode,
		RandomAccess:     !p.LowDelay,
		SlidingWindow:    p.SlidingWindowSize,
		GOP:              DeriveGOP(p.GOP),
		GlobalAdjust:     DefaultGlobalAdjust,
		LongTermInterval: longTermInterval(p),
	}

	switch p.Mode {
	case ModeCBR, ModeVCM:
		s.MaxBitrate = s.TargetBitrate
	case ModeVBR:
		if s.MaxBitrate < s.TargetBitrate {
			s.MaxBitrate = 2 * s.TargetBitrate
		}
	case ModeAVBR:
		s.MaxBitrate = s.TargetBitrate
		accuracy, convergence := p.AVBRAccuracy, p.AVBRConvergence
		if accuracy == 0 {
			accuracy = DefaultAVBRAccuracy
		}
		if convergence == 0 {
			convergence = DefaultAVBRConvergence
		}
		s.GlobalAdjust = DeriveAVBRAdjust(accuracy, convergence)
	case ModeICQ:
		s.ACQPBuffer = p.ICQQuality
		if s.MaxBitrate < s.TargetBitrate {
			s.MaxBitrate = s.TargetBitrate
		}
	case ModeQVBR:
		if s.MaxBitrate < s.TargetBitrate {
			s.MaxBitrate = s.TargetBitrate
		}
		s.ACQPBuffer = p.ICQQuality
	case ModeCQP:
		s.TargetBitrate, s.MaxBitrate = 0, 0
		s.BufferSize, s.InitialFullness = 0, 0
		return s, nil
	}

	rate := s.MaxBitrate
	if p.Mode == ModeICQ {
		rate = s.TargetBitrate
	}
	s.BitsPerFrame = float64(rate) * float64(p.FrameRateDen) / float64(p.FrameRateNum)

	floor := int64(s.BitsPerFrame) * 4
	if s.BufferSize < floor {
		s.BufferSize = floor
	}
	if s.InitialFullness == 0 {
		s.InitialFullness = 7 * s.BufferSize / 8
	}
	if lo := int64(s.BitsPerFrame * 2); s.InitialFullness < lo {
		s.InitialFullness = lo
	}
	if s.InitialFullness > s.BufferSize {
		s.InitialFullness = s.BufferSize
	}
	if p.Mode == ModeAVBR {
		s.BufferSize = 2 * s.TargetBitrate
		s.InitialFullness = int64(0.75 * float64(s.BufferSize))
	}

	s.BPSRatio = BPSRatio(s.BitsPerFrame, s.BufferSize)
	s.Thresholds = DeriveThresholds(s.BPSRatio)
	return s, nil
}

func longTermInterval(p Params) int {
	switch {
	case p.Tolerance == ToleranceExtremelyLow:
		return 0
	case p.EnableLTR && p.LTRInterval > 0:
		return p.LTRInterval
	case p.EnableLTR:
		return LongTermRefFlag
	default:
		return 0
	}
}
