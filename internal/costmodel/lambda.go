// Package costmodel derives Lagrangian multipliers and the quantized
// mode and motion-vector cost tables that bias the encoder's search.
//
// Everything here is a pure function of (slice type, QP, transform).
// Out-of-range QP is a programming error and panics; callers that accept
// QP from outside use ValidateQP first.
package costmodel

import (
	"fmt"
	"math"
)

// MaxQP is the largest valid quantization parameter.
const MaxQP = 51

// NumQP is the number of entries in per-QP tables.
const NumQP = MaxQP + 1

// SliceType selects the lambda derivation.
type SliceType int

const (
	SliceIntra SliceType = iota
	SlicePredicted
	SliceBiPredicted
)

// String returns the short slice type name.
func (s SliceType) String() string {
	switch s {
	case SliceIntra:
		return "I"
	case SlicePredicted:
		return "P"
	case SliceBiPredicted:
		return "B"
	default:
		return fmt.Sprintf("SliceType(%d)", int(s))
	}
}

// Transform selects the SAD transform used by the search; it scales both lambdas.
type Transform int

const (
	// TransformDefault is the plain (Haar) transform.
	TransformDefault Transform = iota
	// TransformHadamard is the alternate Hadamard-like transform.
	TransformHadamard
)

// String returns the transform name.
func (t Transform) String() string {
	if t == TransformHadamard {
		return "hadamard"
	}
	return "default"
}

// Bias returns the factor multiplied into both lambdas.
func (t Transform) Bias() float64 {
	if t == TransformHadamard {
		return 1.67
	}
	return 2.0
}

// Mode-decision lambda for P and B slices, indexed by QP.
var interLambdaMD = [NumQP]float64{
	1.0000, 1.0000, 1.0000, 1.0000, 1.0000, 1.0000, 1.0000, 1.0000,
	1.0000, 1.0000, 1.0000, 1.0000, 1.0000, 1.0000, 1.0000, 1.0000,
	1.1333, 1.2844, 1.4557, 1.6497, 1.8697, 2.1189, 2.4014, 2.7216,
	3.0844, 3.4956, 3.9617, 4.4898, 5.0884, 5.7668, 6.5357, 7.4070,
	8.3945, 9.5137, 10.7820, 12.2195, 13.8486, 15.6949, 17.7873, 20.1587,
	22.8463, 25.8922, 29.3441, 33.2563, 37.6900, 42.7149, 48.4096, 54.8636,
	62.1780, 70.4676, 79.8624, 90.5097,
}

// Motion-search lambda for P and B slices, indexed by QP.
var interLambdaME = [NumQP]float64{
	1.0000, 1.0000, 1.0000, 1.0000, 1.0000, 1.0000, 1.0000, 1.0000,
	1.0000, 1.0000, 1.0000, 1.0000, 1.0000, 1.0000, 1.0000, 1.0000,
	1.1225, 1.2599, 1.4142, 1.5874, 1.7818, 2.0000, 2.2449, 2.5198,
	2.8284, 3.1748, 3.5636, 4.0000, 4.4898, 5.0397, 5.6569, 6.3496,
	7.1272, 8.0000, 8.9797, 10.0794, 11.3137, 12.6992, 14.2544, 16.0000,
	17.9594, 20.1587, 22.6274, 25.3984, 28.5088, 32.0000, 35.9188, 40.3175,
	45.2548, 50.7968, 57.0175, 64.0000,
}

// ValidateQP returns ErrQPOutOfRange when qp is outside [0, MaxQP].
func ValidateQP(qp int) error {
	if qp < 0 || qp > MaxQP {
		return fmt.Errorf("%w: %d not in [0,%d]", ErrQPOutOfRange, qp, MaxQP)
	}
	return nil
}

func mustQP(qp int) {
	if qp < 0 || qp > MaxQP {
		panic(fmt.Sprintf("costmodel: qp %d out of range", qp))
	}
}

// IntraLambda returns the analytic intra lambda before the transform bias.
func IntraLambda(qp int, transform Transform) float64 {
	mustQP(qp)
	l := math.Sqrt(0.85 * math.Pow(2, float64(qp-12)/3))
	if transform != TransformHadamard {
		l *= 0.95
	}
	return l
}

// DeriveLambda returns the mode-decision and motion-search lambdas.
func DeriveLambda(sliceType SliceType, qp int, transform Transform) (md, me float64) {
	mustQP(qp)
	bias := transform.Bias()
	if sliceType == SliceIntra {
		l := IntraLambda(qp, transform) * bias
		return l, l
	}
	return interLambdaMD[qp] * bias, interLambdaME[qp] * bias
}

// FixedPointLambda converts a lambda to the squared 10-bit fixed point
// form carried in region parameter sets.
func FixedPointLambda(lambda float64) uint32 {
	return uint32(lambda * lambda * (1 << 10))
}
