// Package safeconv provides safe integer type conversion functions that panic on overflow.
package safeconv

import "math"

// MustUint64ToInt64 converts uint64 to int64, panics on overflow.
// Use only when overflow is logically impossible.
func MustUint64ToInt64(v uint64) int64 {
	if v > uint64(math.MaxInt64) {
		panic("safeconv: uint64 to int64 overflow")
	}

	return int64(v)
}

// MustIntToUint64 converts int to uint64, panics if negative.
// Use only when negative values are logically impossible.
func MustIntToUint64(v int) uint64 {
	if v < 0 {
		panic("safeconv: negative int to uint64 conversion")
	}

	return uint64(v)
}

// MustUint64ToInt converts uint64 to int, panics on overflow.
// Use only when overflow is logically impossible.
func MustUint64ToInt(v uint64) int {
	if v > uint64(math.MaxInt) {
		panic("safeconv: uint64 to int overflow")
	}

	return int(v)
}
