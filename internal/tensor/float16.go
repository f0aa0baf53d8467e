package tensor

import "math"

// Float16ToFloat32 converts an IEEE 754 half-precision value to float32.
func Float16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := int32(h>>10) & 0x1F
	mant := uint32(h) & 0x3FF

	var result uint32

	switch exp {
	case 0:
		if mant == 0 {
			// Zero.
			result = sign << 31
			break
		}
		// Subnormal number - normalize it.
		exp = 1
		for mant&0x400 == 0 {
			mant <<= 1
			exp--
		}
		mant &= 0x3FF
		result = sign<<31 | uint32(exp+127-15)<<23 | mant<<13
	case 0x1F:
		// Inf or NaN.
		result = sign<<31 | 0x7F800000 | mant<<13
	default:
		result = sign<<31 | uint32(exp+127-15)<<23 | mant<<13
	}

	return math.Float32frombits(result)
}
