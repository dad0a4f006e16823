package ratecontrol

import (
	"errors"
	"math"
	"testing"

	brcerrors "github.com/five82/brcplan/internal/errors"
	"github.com/five82/brcplan/internal/logging"
)

func newController(t *testing.T, p Params) *Controller {
	t.Helper()
	c := New(logging.Discard())
	if err := c.Init(p, false); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return c
}

// step plans frame n and feeds back bits produced at the chosen QP.
func step(t *testing.T, c *Controller, n int64, ft FrameType, bits int64) FrameDecision {
	t.Helper()
	d, err := c.UpdateFrame(FrameInput{FrameNumber: n, Type: ft})
	if err != nil {
		t.Fatalf("UpdateFrame(%d) error = %v", n, err)
	}
	if err := c.ApplyFeedback(Feedback{FrameNumber: n, Level: d.Level, Bits: bits, AverageQP: float64(d.QP)}); err != nil {
		t.Fatalf("ApplyFeedback(%d) error = %v", n, err)
	}
	return d
}

func frameType(n int64) FrameType {
	if n == 0 {
		return FrameI
	}
	return FrameP
}

func TestInitThenFirstFrameTargetsInitialFullness(t *testing.T) {
	c := newController(t, cbrParams())
	if c.Phase() != PhaseInitialized {
		t.Fatalf("Phase() = %v, want initialized", c.Phase())
	}

	d, err := c.UpdateFrame(FrameInput{FrameNumber: 0, Type: FrameI})
	if err != nil {
		t.Fatal(err)
	}
	if d.TargetSize != c.Setup().InitialFullness {
		t.Errorf("TargetSize = %d, want %d", d.TargetSize, c.Setup().InitialFullness)
	}
	if d.TargetSizeFlag {
		t.Error("TargetSizeFlag set on first frame")
	}
	if d.Level != LevelI {
		t.Errorf("Level = %v, want I", d.Level)
	}
	if d.PassCount != 1 {
		t.Errorf("PassCount = %d, want 1", d.PassCount)
	}
	if c.Phase() != PhaseFrameUpdated {
		t.Errorf("Phase() = %v, want frame-updated", c.Phase())
	}
}

func TestTargetSizeSawtooth(t *testing.T) {
	c := newController(t, cbrParams())
	bpf := int64(c.Setup().BitsPerFrame)
	buf := c.Setup().BufferSize

	wraps := 0
	for n := int64(0); n < 40; n++ {
		d := step(t, c, n, frameType(n), bpf)
		if d.TargetSize > buf {
			t.Fatalf("frame %d TargetSize = %d above buffer %d", n, d.TargetSize, buf)
		}
		if d.TargetSizeFlag {
			wraps++
		}
		if n == 2 {
			if !d.TargetSizeFlag {
				t.Error("frame 2 should wrap the target accumulator")
			}
			if d.TargetSize != 16666 {
				t.Errorf("frame 2 TargetSize = %d, want 16666", d.TargetSize)
			}
		}
	}
	if wraps < 2 {
		t.Errorf("wraps = %d, want at least 2 over 40 frames", wraps)
	}
}

func TestSkippedFramesAccounting(t *testing.T) {
	c := newController(t, DefaultParams())
	bpf := c.Setup().BitsPerFrame
	step(t, c, 0, FrameI, int64(bpf))
	before := c.State().BufferFullness

	d, err := c.UpdateFrame(FrameInput{FrameNumber: 1, Type: FrameP, SkippedFrames: 2, SkippedSize: 100_000})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(d.TargetSize)-3_900_000) > 1 {
		t.Errorf("TargetSize = %d, want about 3900000", d.TargetSize)
	}
	if d.SkippedFrames != 2 || d.SkippedSize != 100_000 {
		t.Errorf("skips = (%d, %d), want (2, 100000)", d.SkippedFrames, d.SkippedSize)
	}

	s := c.State()
	if s.SkippedFrames != 2 || s.SkippedSize != 100_000 {
		t.Errorf("state skips = (%d, %d), want (2, 100000)", s.SkippedFrames, s.SkippedSize)
	}
	if want := before + 2*bpf - 100_000; math.Abs(s.BufferFullness-want) > 1e-6 {
		t.Errorf("BufferFullness = %v, want %v", s.BufferFullness, want)
	}
}

func TestNegativeSkipIsConfigError(t *testing.T) {
	c := newController(t, cbrParams())
	_, err := c.UpdateFrame(FrameInput{FrameNumber: 0, Type: FrameI, SkippedSize: -5})
	if !errors.Is(err, ErrParams) {
		t.Fatalf("UpdateFrame() error = %v, want ErrParams", err)
	}
	if !brcerrors.IsKind(err, brcerrors.KindConfig) {
		t.Errorf("UpdateFrame() error kind = %v, want config", err)
	}
}

func TestFeedbackOrdering(t *testing.T) {
	tests := []struct {
		name     string
		parallel bool
		// planned frames 0..n-1 before the failing update; feedback for none
		planned int64
		wantErr bool
	}{
		{"serial second frame needs first feedback", false, 1, true},
		{"parallel second frame may run ahead", true, 1, false},
		{"parallel third frame needs first feedback", true, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := cbrParams()
			p.ParallelBRC = tt.parallel
			c := newController(t, p)
			for n := int64(0); n < tt.planned; n++ {
				if _, err := c.UpdateFrame(FrameInput{FrameNumber: n, Type: frameType(n)}); err != nil {
					t.Fatalf("UpdateFrame(%d) error = %v", n, err)
				}
			}
			_, err := c.UpdateFrame(FrameInput{FrameNumber: tt.planned, Type: FrameP})
			if (err != nil) != tt.wantErr {
				t.Fatalf("UpdateFrame(%d) error = %v, wantErr %v", tt.planned, err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrMissingFeedback) {
					t.Errorf("error = %v, want ErrMissingFeedback", err)
				}
				if !brcerrors.IsKind(err, brcerrors.KindState) {
					t.Errorf("error kind = %v, want state", err)
				}
			}
		})
	}
}

func TestRequiredFeedback(t *testing.T) {
	tests := []struct {
		frame int64
		lag   int
		want  int64
	}{
		{0, 1, 0},
		{1, 1, 1},
		{5, 1, 5},
		{0, 2, 0},
		{1, 2, 0},
		{2, 2, 1},
		{9, 2, 8},
	}
	for _, tt := range tests {
		if got := RequiredFeedback(tt.frame, tt.lag); got != tt.want {
			t.Errorf("RequiredFeedback(%d, %d) = %d, want %d", tt.frame, tt.lag, got, tt.want)
		}
	}
}

func TestFrameOutOfOrder(t *testing.T) {
	c := newController(t, cbrParams())
	_, err := c.UpdateFrame(FrameInput{FrameNumber: 5, Type: FrameP})
	if !errors.Is(err, ErrPhase) {
		t.Errorf("UpdateFrame(5) error = %v, want ErrPhase", err)
	}
}

func TestStaleFeedback(t *testing.T) {
	c := newController(t, cbrParams())
	if _, err := c.UpdateFrame(FrameInput{FrameNumber: 0, Type: FrameI}); err != nil {
		t.Fatal(err)
	}

	if err := c.ApplyFeedback(Feedback{FrameNumber: 1, Level: LevelPOrLB, Bits: 1000}); !errors.Is(err, ErrStaleFeedback) {
		t.Errorf("feedback for unplanned frame error = %v, want ErrStaleFeedback", err)
	}
	if err := c.ApplyFeedback(Feedback{FrameNumber: 0, Level: LevelI, Bits: 1000, AverageQP: 30}); err != nil {
		t.Fatalf("ApplyFeedback(0) error = %v", err)
	}
	if err := c.ApplyFeedback(Feedback{FrameNumber: 0, Level: LevelI, Bits: 1000}); !errors.Is(err, ErrStaleFeedback) {
		t.Errorf("duplicate feedback error = %v, want ErrStaleFeedback", err)
	}
}

func TestUninitialized(t *testing.T) {
	c := New(logging.Discard())
	if _, err := c.UpdateFrame(FrameInput{}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("UpdateFrame() error = %v, want ErrNotInitialized", err)
	}
	if err := c.ApplyFeedback(Feedback{}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("ApplyFeedback() error = %v, want ErrNotInitialized", err)
	}
	if _, err := c.UpdateRegions(RegionInput{WidthLCU: 4, HeightLCU: 4}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("UpdateRegions() error = %v, want ErrNotInitialized", err)
	}
}

func TestInitRejectsInvalidParams(t *testing.T) {
	p := cbrParams()
	p.FrameRateDen = 0
	err := New(logging.Discard()).Init(p, false)
	if !errors.Is(err, ErrFrameRate) {
		t.Errorf("Init() error = %v, want ErrFrameRate", err)
	}
	if !brcerrors.IsKind(err, brcerrors.KindConfig) {
		t.Errorf("Init() error kind = %v, want config", err)
	}
}

func runStream(t *testing.T, p Params, frames int64, bitsFactor float64) (*Controller, FrameDecision) {
	t.Helper()
	c := newController(t, p)
	bits := int64(bitsFactor * c.Setup().BitsPerFrame)
	var last FrameDecision
	for n := int64(0); n < frames; n++ {
		last = step(t, c, n, frameType(n), bits)
	}
	return c, last
}

func TestQPRespondsToSpending(t *testing.T) {
	over, overLast := runStream(t, DefaultParams(), 60, 3)
	under, underLast := runStream(t, DefaultParams(), 60, 0.3)

	if overLast.QP <= underLast.QP {
		t.Errorf("over-spender QP %d not above under-spender QP %d", overLast.QP, underLast.QP)
	}
	if overLast.DeviationDelta <= 0 {
		t.Errorf("over-spender DeviationDelta = %d, want positive", overLast.DeviationDelta)
	}
	if underLast.DeviationDelta > 0 {
		t.Errorf("under-spender DeviationDelta = %d, want zero or negative", underLast.DeviationDelta)
	}
	if overLast.GlobalDelta <= 0 || underLast.GlobalDelta >= 0 {
		t.Errorf("GlobalDelta = (%d, %d), want (+, -)", overLast.GlobalDelta, underLast.GlobalDelta)
	}
	if over.State().Underflows == 0 {
		t.Error("over-spender never underflowed the buffer")
	}
	if under.State().Overflows == 0 {
		t.Error("under-spender never overflowed the buffer")
	}
	if under.State().BufferFullness > float64(under.Setup().BufferSize) {
		t.Errorf("BufferFullness %v above buffer %d", under.State().BufferFullness, under.Setup().BufferSize)
	}
}

func TestQPStaysInLevelRange(t *testing.T) {
	p := DefaultParams()
	p.QPP = QPRange{Min: 30, Max: 35}

	for _, factor := range []float64{0.1, 1, 5} {
		c := newController(t, p)
		bits := int64(factor * c.Setup().BitsPerFrame)
		for n := int64(0); n < 30; n++ {
			d := step(t, c, n, frameType(n), bits)
			if n == 0 {
				continue
			}
			if d.QP < 30 || d.QP > 35 {
				t.Fatalf("factor %v frame %d QP = %d, want in [30,35]", factor, n, d.QP)
			}
			if d.MinQP != 30 || d.MaxQP != 35 {
				t.Fatalf("frame %d bounds = [%d,%d], want [30,35]", n, d.MinQP, d.MaxQP)
			}
		}
	}
}

func TestPanicMode(t *testing.T) {
	p := DefaultParams()
	p.PanicMode = true
	c := newController(t, p)

	step(t, c, 0, FrameI, 10_000_000)
	d, err := c.UpdateFrame(FrameInput{FrameNumber: 1, Type: FrameP})
	if err != nil {
		t.Fatal(err)
	}
	if !d.Panic {
		t.Error("Panic not set with an empty buffer")
	}
	if d.QP != 51 {
		t.Errorf("QP = %d, want 51", d.QP)
	}
	if got := c.State().Underflows; got != 1 {
		t.Errorf("Underflows = %d, want 1", got)
	}
}

func TestConstantQPModes(t *testing.T) {
	cqp := DefaultParams()
	cqp.Mode = ModeCQP
	cqp.QPB = QPRange{Min: 0, Max: 29}

	icq := DefaultParams()
	icq.Mode = ModeICQ
	icq.ICQQuality = 30

	tests := []struct {
		name   string
		params Params
		want   []int // QP for I, P, B, B1, B2
	}{
		{"cqp", cqp, []int{24, 26, 28, 29, 29}},
		{"icq", icq, []int{29, 30, 31, 32, 33}},
	}

	types := []FrameType{FrameI, FrameP, FrameB, FrameB1, FrameB2}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newController(t, tt.params)
			for i, ft := range types {
				d := step(t, c, int64(i), ft, 50_000)
				if d.QP != tt.want[i] {
					t.Errorf("%v QP = %d, want %d", ft, d.QP, tt.want[i])
				}
			}
		})
	}
}

func TestCQPHasNoTarget(t *testing.T) {
	p := DefaultParams()
	p.Mode = ModeCQP
	c := newController(t, p)
	d := step(t, c, 0, FrameI, 80_000)
	if d.TargetSize != 0 {
		t.Errorf("TargetSize = %d, want 0", d.TargetSize)
	}
	s := c.State()
	if s.BufferFullness != 0 || s.TargetBits != 0 {
		t.Errorf("buffer model moved under CQP: fullness %v target bits %d", s.BufferFullness, s.TargetBits)
	}
	if s.ActualBits != 80_000 {
		t.Errorf("ActualBits = %d, want 80000", s.ActualBits)
	}
}

func TestQVBRQualityFloor(t *testing.T) {
	p := DefaultParams()
	p.Mode = ModeQVBR
	p.ICQQuality = 40
	c := newController(t, p)
	for n := int64(0); n < 10; n++ {
		d := step(t, c, n, frameType(n), 1000)
		floor := 40 + qualityOffset[d.Level]
		if d.QP < floor {
			t.Fatalf("frame %d QP = %d below quality floor %d", n, d.QP, floor)
		}
	}
}

func TestReset(t *testing.T) {
	c, _ := runStream(t, DefaultParams(), 3, 1)

	p := DefaultParams()
	p.TargetBitrate = 2_000_000
	p.MaxBitrate = 2_000_000
	p.BufferSize = 1_000_000
	if err := c.Reset(p, false, false); err != nil {
		t.Fatal(err)
	}
	s := c.State()
	if s.FramesPlanned != 3 || s.FeedbackApplied != 3 {
		t.Errorf("counters after Reset = (%d, %d), want (3, 3)", s.FramesPlanned, s.FeedbackApplied)
	}
	if s.BufferFullness != 1_000_000 {
		t.Errorf("BufferFullness = %v, want clamped to 1000000", s.BufferFullness)
	}
	if c.Phase() != PhaseInitialized {
		t.Errorf("Phase() = %v, want initialized", c.Phase())
	}
	if _, err := c.UpdateFrame(FrameInput{FrameNumber: 3, Type: FrameP}); err != nil {
		t.Errorf("UpdateFrame(3) after Reset error = %v", err)
	}

	if err := c.Reset(p, false, true); err != nil {
		t.Fatal(err)
	}
	s = c.State()
	if s.FramesPlanned != 0 || s.ActualBits != 0 {
		t.Errorf("full reset kept history: planned %d actual %d", s.FramesPlanned, s.ActualBits)
	}
	if s.BufferFullness != 875_000 {
		t.Errorf("BufferFullness after full reset = %v, want 875000", s.BufferFullness)
	}
}

func TestResetUninitializedIsInit(t *testing.T) {
	c := New(logging.Discard())
	if err := c.Reset(cbrParams(), false, false); err != nil {
		t.Fatal(err)
	}
	if c.Phase() != PhaseInitialized {
		t.Errorf("Phase() = %v, want initialized", c.Phase())
	}
}

func TestUpdateRegionsPhases(t *testing.T) {
	c := newController(t, cbrParams())
	roi := []ROI{{Left: 0, Top: 0, Right: 2, Bottom: 2, DeltaQP: -4}}

	if _, err := c.UpdateRegions(RegionInput{WidthLCU: 8, HeightLCU: 8, ROIs: roi}); !errors.Is(err, ErrPhase) {
		t.Errorf("UpdateRegions before frame error = %v, want ErrPhase", err)
	}
	if _, err := c.UpdateFrame(FrameInput{FrameNumber: 0, Type: FrameI}); err != nil {
		t.Fatal(err)
	}

	_, err := c.UpdateRegions(RegionInput{WidthLCU: 8, HeightLCU: 8})
	if !errors.Is(err, ErrRegionControl) || !brcerrors.IsKind(err, brcerrors.KindConfig) {
		t.Errorf("UpdateRegions without control error = %v, want ErrRegionControl", err)
	}

	m, err := c.UpdateRegions(RegionInput{WidthLCU: 8, HeightLCU: 8, ROIs: roi})
	if err != nil {
		t.Fatal(err)
	}
	if w, d := m.At(1, 1); w != WeightInside || d != -4 {
		t.Errorf("At(1,1) = (%d, %d), want (15, -4)", w, d)
	}
	if c.Phase() != PhaseRegionUpdated {
		t.Errorf("Phase() = %v, want region-updated", c.Phase())
	}
	if _, err := c.UpdateRegions(RegionInput{WidthLCU: 8, HeightLCU: 8, ROIs: roi}); !errors.Is(err, ErrPhase) {
		t.Errorf("second UpdateRegions error = %v, want ErrPhase", err)
	}
}

func TestUpdateRegionsWithRegionControl(t *testing.T) {
	p := cbrParams()
	p.RegionControl = true
	c := newController(t, p)
	if c.Setup().DisableMBBRC {
		t.Error("DisableMBBRC set with region control and no ROI")
	}
	if _, err := c.UpdateFrame(FrameInput{FrameNumber: 0, Type: FrameI}); err != nil {
		t.Fatal(err)
	}
	m, err := c.UpdateRegions(RegionInput{WidthLCU: 4, HeightLCU: 3})
	if err != nil {
		t.Fatalf("UpdateRegions() error = %v", err)
	}
	if len(m.Weights) != 12 || m.ROIRatio != 0 {
		t.Errorf("map = %d weights ratio %d, want 12 and 0", len(m.Weights), m.ROIRatio)
	}
}

func TestFrameLevelErrorFromUpdate(t *testing.T) {
	p := cbrParams()
	p.LowDelay = true
	c := newController(t, p)
	_, err := c.UpdateFrame(FrameInput{FrameNumber: 0, Type: FrameB1})
	if !errors.Is(err, ErrFrameLevel) || !brcerrors.IsKind(err, brcerrors.KindConfig) {
		t.Errorf("UpdateFrame(B1, low delay) error = %v, want config ErrFrameLevel", err)
	}
}

func TestPhaseString(t *testing.T) {
	if got := PhaseRegionUpdated.String(); got != "region-updated" {
		t.Errorf("String() = %q", got)
	}
	if got := Phase(9).String(); got != "Phase(9)" {
		t.Errorf("String() = %q", got)
	}
}
