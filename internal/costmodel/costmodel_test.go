package costmodel

import (
	"errors"
	"math"
	"testing"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) < eps
}

func TestDeriveLambdaMonotonic(t *testing.T) {
	for _, st := range []SliceType{SliceIntra, SlicePredicted, SliceBiPredicted} {
		for _, tr := range []Transform{TransformDefault, TransformHadamard} {
			prevMD, prevME := -1.0, -1.0
			for qp := 0; qp <= MaxQP; qp++ {
				md, me := DeriveLambda(st, qp, tr)
				if md < prevMD || me < prevME {
					t.Fatalf("DeriveLambda(%v, %d, %v) = (%v, %v), decreased from (%v, %v)",
						st, qp, tr, md, me, prevMD, prevME)
				}
				prevMD, prevME = md, me
			}
		}
	}
}

func TestDeriveLambdaValues(t *testing.T) {
	tests := []struct {
		name      string
		sliceType SliceType
		qp        int
		transform Transform
		wantMD    float64
	}{
		{"intra qp12 default", SliceIntra, 12, TransformDefault, math.Sqrt(0.85) * 0.95 * 2.0},
		{"intra qp12 hadamard", SliceIntra, 12, TransformHadamard, math.Sqrt(0.85) * 1.67},
		{"intra qp24 default", SliceIntra, 24, TransformDefault, math.Sqrt(0.85*16) * 0.95 * 2.0},
		{"inter flat region", SlicePredicted, 10, TransformDefault, 2.0},
		{"inter qp15 edge", SliceBiPredicted, 15, TransformDefault, 2.0},
		{"inter qp51", SlicePredicted, 51, TransformDefault, 90.5097 * 2.0},
		{"inter qp51 hadamard", SliceBiPredicted, 51, TransformHadamard, 90.5097 * 1.67},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md, _ := DeriveLambda(tt.sliceType, tt.qp, tt.transform)
			if !almostEqual(md, tt.wantMD, 1e-6) {
				t.Errorf("DeriveLambda() md = %v, want %v", md, tt.wantMD)
			}
		})
	}
}

func TestIntraLambdaMatchesMEAndMD(t *testing.T) {
	md, me := DeriveLambda(SliceIntra, 30, TransformDefault)
	if md != me {
		t.Errorf("intra lambdas differ: md %v, me %v", md, me)
	}
}

func TestDeriveLambdaPanicsOutOfRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("DeriveLambda(qp=52) did not panic")
		}
	}()
	DeriveLambda(SlicePredicted, 52, TransformDefault)
}

func TestValidateQP(t *testing.T) {
	tests := []struct {
		qp      int
		wantErr bool
	}{
		{-1, true},
		{0, false},
		{26, false},
		{51, false},
		{52, true},
	}

	for _, tt := range tests {
		err := ValidateQP(tt.qp)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateQP(%d) error = %v, wantErr %v", tt.qp, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrQPOutOfRange) {
			t.Errorf("ValidateQP(%d) error = %v, want ErrQPOutOfRange", tt.qp, err)
		}
	}
}

func TestQuantizeCost(t *testing.T) {
	tests := []struct {
		value float64
		mask  uint8
		want  uint8
	}{
		{0, Mask6F, 0},
		{-3, Mask6F, 0},
		{7, Mask6F, 0x07},
		{7.4, Mask6F, 0x07},
		{15, Mask8F, 0x0f},
		{20, Mask6F, 0x1a},
		{31, Mask6F, 0x28},  // mantissa carry: 16<<1 becomes 8<<2
		{100, Mask6F, 0x3d}, // 13<<3
		{959, Mask6F, 0x6f},
		{960, Mask6F, 0x6f},
		{5000, Mask6F, 0x6f},
		{3000, Mask8F, 0x8c}, // 12<<8
		{5000, Mask8F, 0x8f},
	}

	for _, tt := range tests {
		got := QuantizeCost(tt.value, tt.mask)
		if got != tt.want {
			t.Errorf("QuantizeCost(%v, %#x) = %#x, want %#x", tt.value, tt.mask, got, tt.want)
		}
	}
}

func TestQuantizeCostRelativeError(t *testing.T) {
	for v := 1; v < 960; v++ {
		packed := QuantizeCost(float64(v), Mask6F)
		got := float64(DecodeCost(packed))
		if math.Abs(got-float64(v))/float64(v) > 0.0625+1e-9 {
			t.Fatalf("DecodeCost(QuantizeCost(%d)) = %v, error above 1/16", v, got)
		}
	}
}

func TestDeriveModeCostsIntraLeavesInterZero(t *testing.T) {
	md, _ := DeriveLambda(SliceIntra, 30, TransformDefault)
	costs := DeriveModeCosts(SliceIntra, md)

	for i := ModeInter16x16; i < NumModeCosts; i++ {
		if costs[i] != 0 {
			t.Errorf("intra mode cost[%d] = %#x, want 0", i, costs[i])
		}
	}
	if costs[ModeIntra4x4] == 0 {
		t.Error("intra 4x4 cost should be non-zero")
	}
}

func TestDeriveModeCostsOrdering(t *testing.T) {
	md, _ := DeriveLambda(SlicePredicted, 32, TransformDefault)
	costs := DeriveModeCosts(SlicePredicted, md)

	// Larger partitions signal fewer bits than smaller ones.
	if DecodeCost(costs[ModeIntra16x16]) > DecodeCost(costs[ModeIntra4x4]) {
		t.Errorf("intra16x16 cost %d > intra4x4 cost %d", DecodeCost(costs[ModeIntra16x16]), DecodeCost(costs[ModeIntra4x4]))
	}
	if DecodeCost(costs[ModeSkip]) > DecodeCost(costs[ModeInter16x16]) {
		t.Errorf("skip cost %d > inter16x16 cost %d", DecodeCost(costs[ModeSkip]), DecodeCost(costs[ModeInter16x16]))
	}
}

func TestDeriveMotionCosts(t *testing.T) {
	_, me := DeriveLambda(SlicePredicted, 26, TransformDefault)
	costs := DeriveMotionCosts(me)

	if costs[0] != 0 {
		t.Errorf("zero-length MV cost = %#x, want 0", costs[0])
	}
	for i := 1; i < NumMVCosts; i++ {
		if DecodeCost(costs[i]) < DecodeCost(costs[i-1]) {
			t.Errorf("MV cost[%d] = %d below cost[%d] = %d", i, DecodeCost(costs[i]), i-1, DecodeCost(costs[i-1]))
		}
	}
}

func TestDeriveIntraHasNoMVCosts(t *testing.T) {
	tbl := Derive(SliceIntra, 22, TransformDefault)
	if tbl.MVCosts != [NumMVCosts]uint8{} {
		t.Errorf("intra MVCosts = %v, want zeros", tbl.MVCosts)
	}
	if tbl.FixedLambdaMD != FixedPointLambda(tbl.LambdaMD) {
		t.Errorf("FixedLambdaMD = %d, want %d", tbl.FixedLambdaMD, FixedPointLambda(tbl.LambdaMD))
	}
}

func TestFixedPointLambda(t *testing.T) {
	if got := FixedPointLambda(1.0); got != 1024 {
		t.Errorf("FixedPointLambda(1.0) = %d, want 1024", got)
	}
	if got := FixedPointLambda(2.0); got != 4096 {
		t.Errorf("FixedPointLambda(2.0) = %d, want 4096", got)
	}
}

func TestCache(t *testing.T) {
	c := NewCache()

	a := c.Get(SlicePredicted, 30, TransformDefault)
	b := c.Get(SlicePredicted, 30, TransformDefault)
	if a != b {
		t.Error("cached tables differ")
	}
	c.Get(SliceBiPredicted, 30, TransformDefault)

	hits, misses := c.Stats()
	if hits != 1 || misses != 2 {
		t.Errorf("Stats() = (%d, %d), want (1, 2)", hits, misses)
	}

	c.Reset()
	c.Get(SlicePredicted, 30, TransformDefault)
	if _, misses = c.Stats(); misses != 3 {
		t.Errorf("misses after Reset = %d, want 3", misses)
	}
}

func TestSliceTypeString(t *testing.T) {
	tests := []struct {
		st   SliceType
		want string
	}{
		{SliceIntra, "I"},
		{SlicePredicted, "P"},
		{SliceBiPredicted, "B"},
		{SliceType(7), "SliceType(7)"},
	}
	for _, tt := range tests {
		if got := tt.st.String(); got != tt.want {
			t.Errorf("SliceType(%d).String() = %q, want %q", int(tt.st), got, tt.want)
		}
	}
}
