package ratecontrol

import (
	"errors"
	"math"
	"testing"
)

func cbrParams() Params {
	p := DefaultParams()
	p.BufferSize = 2_000_000
	return p
}

func TestNewSetupCBRBufferFloor(t *testing.T) {
	tests := []struct {
		name         string
		buffer       int64
		wantBuffer   int64
		wantFullness int64
	}{
		{"2 Mb buffer is above the floor", 2_000_000, 2_000_000, 1_750_000},
		{"small buffer raised to 4x bits per frame", 400_000, 533_332, 466_665},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := cbrParams()
			p.BufferSize = tt.buffer
			s, err := NewSetup(p, false)
			if err != nil {
				t.Fatalf("NewSetup() error = %v", err)
			}
			if s.BufferSize != tt.wantBuffer {
				t.Errorf("BufferSize = %d, want %d", s.BufferSize, tt.wantBuffer)
			}
			if s.BufferSize < int64(s.BitsPerFrame)*4 {
				t.Errorf("BufferSize %d below 4x bits per frame %v", s.BufferSize, s.BitsPerFrame)
			}
			if s.InitialFullness != tt.wantFullness {
				t.Errorf("InitialFullness = %d, want %d", s.InitialFullness, tt.wantFullness)
			}
			if math.Abs(s.BitsPerFrame-4_000_000.0/30) > 1e-6 {
				t.Errorf("BitsPerFrame = %v, want %v", s.BitsPerFrame, 4_000_000.0/30)
			}
		})
	}
}

func TestNewSetupModeNormalization(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Params)
		wantMax     int64
		wantBuffer  int64
		wantInitial int64
		wantACQP    int
	}{
		{
			name:        "cbr forces max to target",
			mutate:      func(p *Params) { p.MaxBitrate = 9_000_000 },
			wantMax:     4_000_000,
			wantBuffer:  2_000_000,
			wantInitial: 1_750_000,
			wantACQP:    1,
		},
		{
			name: "vbr doubles a low max",
			mutate: func(p *Params) {
				p.Mode = ModeVBR
				p.MaxBitrate = 3_000_000
			},
			wantMax:     8_000_000,
			wantBuffer:  2_000_000,
			wantInitial: 1_750_000,
			wantACQP:    1,
		},
		{
			name: "vbr keeps a higher max",
			mutate: func(p *Params) {
				p.Mode = ModeVBR
				p.MaxBitrate = 6_000_000
			},
			wantMax:     6_000_000,
			wantBuffer:  2_000_000,
			wantInitial: 1_750_000,
			wantACQP:    1,
		},
		{
			name: "avbr buffer is twice the target",
			mutate: func(p *Params) {
				p.Mode = ModeAVBR
				p.MaxBitrate = 6_000_000
			},
			wantMax:     4_000_000,
			wantBuffer:  8_000_000,
			wantInitial: 6_000_000,
			wantACQP:    1,
		},
		{
			name: "icq carries the quality factor",
			mutate: func(p *Params) {
				p.Mode = ModeICQ
				p.ICQQuality = 30
				p.BufferSize = 0
			},
			wantMax:     4_000_000,
			wantBuffer:  533_332,
			wantInitial: 466_665,
			wantACQP:    30,
		},
		{
			name: "vcm forces max to target",
			mutate: func(p *Params) {
				p.Mode = ModeVCM
				p.MaxBitrate = 1
			},
			wantMax:     4_000_000,
			wantBuffer:  2_000_000,
			wantInitial: 1_750_000,
			wantACQP:    1,
		},
		{
			name: "qvbr raises max to target",
			mutate: func(p *Params) {
				p.Mode = ModeQVBR
				p.MaxBitrate = 1_000_000
				p.ICQQuality = 24
			},
			wantMax:     4_000_000,
			wantBuffer:  2_000_000,
			wantInitial: 1_750_000,
			wantACQP:    24,
		},
		{
			name:        "cqp has no bitrate",
			mutate:      func(p *Params) { p.Mode = ModeCQP },
			wantMax:     0,
			wantBuffer:  0,
			wantInitial: 0,
			wantACQP:    1,
		},
		{
			name:        "initial fullness raised to two frames",
			mutate:      func(p *Params) { p.InitialFullness = 100 },
			wantMax:     4_000_000,
			wantBuffer:  2_000_000,
			wantInitial: 266_666,
			wantACQP:    1,
		},
		{
			name:        "initial fullness capped at buffer",
			mutate:      func(p *Params) { p.InitialFullness = 5_000_000 },
			wantMax:     4_000_000,
			wantBuffer:  2_000_000,
			wantInitial: 2_000_000,
			wantACQP:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := cbrParams()
			tt.mutate(&p)
			s, err := NewSetup(p, false)
			if err != nil {
				t.Fatalf("NewSetup() error = %v", err)
			}
			if s.MaxBitrate != tt.wantMax {
				t.Errorf("MaxBitrate = %d, want %d", s.MaxBitrate, tt.wantMax)
			}
			if s.BufferSize != tt.wantBuffer {
				t.Errorf("BufferSize = %d, want %d", s.BufferSize, tt.wantBuffer)
			}
			if s.InitialFullness != tt.wantInitial {
				t.Errorf("InitialFullness = %d, want %d", s.InitialFullness, tt.wantInitial)
			}
			if s.ACQPBuffer != tt.wantACQP {
				t.Errorf("ACQPBuffer = %d, want %d", s.ACQPBuffer, tt.wantACQP)
			}
		})
	}
}

func TestNewSetupAVBRAdjust(t *testing.T) {
	p := cbrParams()
	p.Mode = ModeAVBR
	p.AVBRAccuracy = 15
	p.AVBRConvergence = 300
	s, err := NewSetup(p, false)
	if err != nil {
		t.Fatal(err)
	}
	want := GlobalAdjust{
		StartFrames: [4]int{20, 100, 200, 300},
		RateRatio:   [6]int{70, 87, 98, 101, 112, 130},
	}
	if s.GlobalAdjust != want {
		t.Errorf("GlobalAdjust = %+v, want %+v", s.GlobalAdjust, want)
	}

	if got := DeriveAVBRAdjust(DefaultAVBRAccuracy, DefaultAVBRConvergence); got != DefaultGlobalAdjust {
		t.Errorf("DeriveAVBRAdjust(defaults) = %+v, want %+v", got, DefaultGlobalAdjust)
	}

	cbr, err := NewSetup(cbrParams(), false)
	if err != nil {
		t.Fatal(err)
	}
	if cbr.GlobalAdjust != DefaultGlobalAdjust {
		t.Errorf("CBR GlobalAdjust = %+v, want defaults", cbr.GlobalAdjust)
	}
}

func TestNewSetupFlags(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Params)
		roi        bool
		wantMBBRC  bool // DisableMBBRC
		wantLTR    int
		wantRandom bool
	}{
		{"defaults", func(p *Params) {}, false, true, 0, true},
		{"region control", func(p *Params) { p.RegionControl = true }, false, false, 0, true},
		{"region control with roi", func(p *Params) { p.RegionControl = true }, true, true, 0, true},
		{"ltr flag", func(p *Params) { p.EnableLTR = true }, false, true, LongTermRefFlag, true},
		{"ltr interval", func(p *Params) { p.EnableLTR, p.LTRInterval = true, 8 }, false, true, 8, true},
		{"low delay tolerance drops ltr", func(p *Params) {
			p.EnableLTR, p.LTRInterval = true, 8
			p.Tolerance = ToleranceExtremelyLow
		}, false, true, 0, true},
		{"low delay gop", func(p *Params) { p.LowDelay = true }, false, true, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := cbrParams()
			tt.mutate(&p)
			s, err := NewSetup(p, tt.roi)
			if err != nil {
				t.Fatal(err)
			}
			if s.DisableMBBRC != tt.wantMBBRC {
				t.Errorf("DisableMBBRC = %v, want %v", s.DisableMBBRC, tt.wantMBBRC)
			}
			if s.LongTermInterval != tt.wantLTR {
				t.Errorf("LongTermInterval = %d, want %d", s.LongTermInterval, tt.wantLTR)
			}
			if s.RandomAccess != tt.wantRandom {
				t.Errorf("RandomAccess = %v, want %v", s.RandomAccess, tt.wantRandom)
			}
		})
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Params)
		wantErr error
	}{
		{"valid", func(p *Params) {}, nil},
		{"bad mode", func(p *Params) { p.Mode = Mode(42) }, ErrInvalidMode},
		{"zero frame rate", func(p *Params) { p.FrameRateNum = 0 }, ErrFrameRate},
		{"zero denominator", func(p *Params) { p.FrameRateDen = 0 }, ErrFrameRate},
		{"no target", func(p *Params) { p.TargetBitrate = 0 }, ErrBitrate},
		{"zero buffer cbr", func(p *Params) { p.BufferSize = 0 }, ErrBufferSize},
		{"zero buffer vbr", func(p *Params) { p.Mode, p.BufferSize = ModeVBR, 0 }, ErrBufferSize},
		{"zero buffer vcm is fine", func(p *Params) { p.Mode, p.BufferSize = ModeVCM, 0 }, nil},
		{"negative fullness", func(p *Params) { p.InitialFullness = -1 }, ErrInitialFullness},
		{"icq quality", func(p *Params) { p.Mode, p.ICQQuality = ModeICQ, 0 }, ErrQuality},
		{"qvbr quality", func(p *Params) { p.Mode, p.ICQQuality = ModeQVBR, 52 }, ErrQuality},
		{"gop size", func(p *Params) { p.GOP.PicSize = 0 }, ErrGOP},
		{"gop ref dist", func(p *Params) { p.GOP.RefDist = 0 }, ErrGOP},
		{"inverted qp range", func(p *Params) { p.QPP = QPRange{Min: 40, Max: 30} }, ErrQPRange},
		{"qp range too high", func(p *Params) { p.QPI = QPRange{Min: 0, Max: 52} }, ErrQPRange},
		{"cqp value", func(p *Params) { p.Mode, p.CQP.B = ModeCQP, 60 }, ErrQPRange},
		{"cqp ignores bitrate", func(p *Params) { p.Mode, p.TargetBitrate, p.BufferSize = ModeCQP, 0, 0 }, nil},
		{"negative passes", func(p *Params) { p.PassCount = -1 }, ErrParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := cbrParams()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBPSRatio(t *testing.T) {
	tests := []struct {
		bpf    float64
		buffer int64
		want   float64
	}{
		{4_000_000.0 / 30, 2_000_000, 2.0},
		{1000, 100_000_000, 0.1},
		{1_000_000, 1_000_000, 3.5},
		{1000, 0, 3.5},
	}
	for _, tt := range tests {
		if got := BPSRatio(tt.bpf, tt.buffer); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("BPSRatio(%v, %d) = %v, want %v", tt.bpf, tt.buffer, got, tt.want)
		}
	}
}

func TestDeriveThresholds(t *testing.T) {
	th := DeriveThresholds(2.0)

	checks := []struct {
		name string
		got  int
		want int
	}{
		{"PB[0]", th.PB[0], -40},
		{"PB[3]", th.PB[3], -4},
		{"PB[4]", th.PB[4], 4},
		{"PB[7]", th.PB[7], 40},
		{"VBR[0]", th.VBR[0], -40},
		{"VBR[4]", th.VBR[4], 16},
		{"VBR[7]", th.VBR[7], 81},
		{"I[0]", th.I[0], -32},
		{"I[3]", th.I[3], -2},
		{"I[7]", th.I[7], 40},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}

	for _, ratio := range []float64{0.1, 0.5, 1, 2, 3.5} {
		th := DeriveThresholds(ratio)
		for _, row := range [][8]int{th.PB, th.VBR, th.I} {
			for i := 1; i < 8; i++ {
				if row[i] < row[i-1] {
					t.Errorf("DeriveThresholds(%v) row %v not ascending", ratio, row)
					break
				}
			}
		}
	}
}

func TestDeriveGOP(t *testing.T) {
	tests := []struct {
		name string
		gop  GOP
		want GOPParams
	}{
		{"intra only", GOP{PicSize: 1, RefDist: 1}, GOPParams{MaxLevel: 1}},
		{"ipp", GOP{PicSize: 32, RefDist: 1}, GOPParams{P: 31, MaxLevel: 1}},
		{"flat ibbp", GOP{PicSize: 30, RefDist: 3}, GOPParams{P: 10, B: 19, MaxLevel: 1}},
		{"hierarchical ref dist 1 is flat", GOP{PicSize: 16, RefDist: 1, Hierarchical: true}, GOPParams{P: 15, MaxLevel: 1}},
		{"pyramid 4", GOP{PicSize: 32, RefDist: 4, Hierarchical: true},
			GOPParams{P: 8, B: 8, B1: 15, B2: 0, MaxLevel: 3, Pyramid: true}},
		{"pyramid 8", GOP{PicSize: 33, RefDist: 8, Hierarchical: true},
			GOPParams{P: 4, B: 4, B1: 8, B2: 16, MaxLevel: 4, Pyramid: true}},
		{"pyramid 2", GOP{PicSize: 9, RefDist: 2, Hierarchical: true},
			GOPParams{P: 4, B: 4, MaxLevel: 3, Pyramid: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveGOP(tt.gop); got != tt.want {
				t.Errorf("DeriveGOP(%+v) = %+v, want %+v", tt.gop, got, tt.want)
			}
		})
	}
}

func TestFrameLevel(t *testing.T) {
	tests := []struct {
		lowDelay bool
		ft       FrameType
		plus1    int
		want     Level
		wantErr  bool
	}{
		{false, FrameI, 0, LevelI, false},
		{false, FrameP, 0, LevelPOrLB, false},
		{false, FrameB, 0, LevelB, false},
		{false, FrameB1, 0, LevelB1, false},
		{false, FrameB2, 0, LevelB2, false},
		{false, FrameType(9), 0, 0, true},
		{true, FrameI, 0, LevelI, false},
		{true, FrameI, 1, 0, true},
		{true, FrameP, 0, LevelPOrLB, false},
		{true, FrameB, 0, LevelPOrLB, false},
		{true, FrameB, 1, LevelB, false},
		{true, FrameP, 2, LevelB1, false},
		{true, FrameB, 3, 0, true},
		{true, FrameB1, 0, 0, true},
		{true, FrameB2, 1, 0, true},
	}

	for _, tt := range tests {
		got, err := FrameLevel(tt.lowDelay, tt.ft, tt.plus1)
		if (err != nil) != tt.wantErr {
			t.Errorf("FrameLevel(%v, %v, %d) error = %v, wantErr %v", tt.lowDelay, tt.ft, tt.plus1, err, tt.wantErr)
			continue
		}
		if err != nil {
			if !errors.Is(err, ErrFrameLevel) {
				t.Errorf("FrameLevel(%v, %v, %d) error = %v, want ErrFrameLevel", tt.lowDelay, tt.ft, tt.plus1, err)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("FrameLevel(%v, %v, %d) = %v, want %v", tt.lowDelay, tt.ft, tt.plus1, got, tt.want)
		}
	}
}

func TestParseMode(t *testing.T) {
	for m := ModeCBR; m <= ModeQVBR; m++ {
		got, err := ParseMode(m.String())
		if err != nil || got != m {
			t.Errorf("ParseMode(%q) = %v, %v, want %v", m.String(), got, err, m)
		}
	}
	if got, err := ParseMode(" AVBR "); err != nil || got != ModeAVBR {
		t.Errorf("ParseMode(\" AVBR \") = %v, %v, want avbr", got, err)
	}
	if _, err := ParseMode("crf"); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("ParseMode(\"crf\") error = %v, want ErrInvalidMode", err)
	}
}

func TestParseTolerance(t *testing.T) {
	tests := []struct {
		in      string
		want    Tolerance
		wantErr bool
	}{
		{"", ToleranceNormal, false},
		{"low", ToleranceLow, false},
		{"extremely-low", ToleranceExtremelyLow, false},
		{"tiny", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseTolerance(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseTolerance(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}
}
