package costmodel

import (
	"math"
	"math/bits"
)

// Field masks understood by QuantizeCost. The low nibble is the largest
// mantissa and the high nibble the largest shift.
const (
	Mask6F uint8 = 0x6f
	Mask8F uint8 = 0x8f
)

// QuantizeCost rounds value and packs it into the 4.4 shift/mantissa form
// used by search cost tables. Negative values quantize to zero.
func QuantizeCost(value float64, mask uint8) uint8 {
	if value <= 0 || math.IsNaN(value) {
		return 0
	}
	if value >= math.MaxUint32 {
		return mask
	}
	return mapLUT44(uint32(math.Round(value)), mask)
}

// mapLUT44 encodes v as mantissa<<shift, saturating at the mask's maximum.
func mapLUT44(v uint32, mask uint8) uint8 {
	if v == 0 {
		return 0
	}
	maxCost := uint32(mask&0x0f) << (mask >> 4)
	if v >= maxCost {
		return mask
	}

	shift := bits.Len32(v) - 1 - 3
	if shift < 0 {
		shift = 0
	}
	round := uint32(0)
	if shift > 0 {
		round = 1 << (shift - 1)
	}
	ret := uint8(shift<<4) + uint8((v+round)>>shift)
	if ret&0x0f == 0 {
		ret |= 0x08
	}
	return ret
}

// DecodeCost expands a packed cost back to its integer value.
func DecodeCost(packed uint8) uint32 {
	return uint32(packed&0x0f) << (packed >> 4)
}
