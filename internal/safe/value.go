package safe

import (
	"math"
)

// Uint64ToInt64 safely converts an uint64 value to int64, clamping to math.MaxInt64 if overflow
// would occur.
// Returns the converted value and a boolean indicating whether clamping occurred.
func Uint64ToInt64(val uint64) (int64, bool) {
	if val > math.MaxInt64 {
		return math.MaxInt64, true
	}
	return int64(val), false
}

// IntToUint16 converts a non-negative int to uint16, clamping to math.MaxUint16.
// Negative inputs clamp to zero.
// Returns the converted value and a boolean indicating whether clamping occurred.
func IntToUint16(val int) (uint16, bool) {
	if val < 0 {
		return 0, true
	}
	if val > math.MaxUint16 {
		return math.MaxUint16, true
	}
	return uint16(val), false
}

// IntToUint8 converts a non-negative int to uint8, clamping to math.MaxUint8.
// Negative inputs clamp to zero.
// Returns the converted value and a boolean indicating whether clamping occurred.
func IntToUint8(val int) (uint8, bool) {
	if val < 0 {
		return 0, true
	}
	if val > math.MaxUint8 {
		return math.MaxUint8, true
	}
	return uint8(val), false
}
