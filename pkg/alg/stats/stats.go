// Package stats provides incremental sufficient statistics for streaming
// aggregation. Standard deviation uses the sample formula (÷(n−1), not ÷n),
// with a deterministic 0 for single-observation groups.
package stats

import (
	"cmp"
	"math"
)

// Mean returns the arithmetic mean of values.
// Returns 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64

	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

// MeanStdDev returns the arithmetic mean and sample standard deviation.
// Returns (0, 0) for an empty slice and (mean, 0) for a single observation.
func MeanStdDev(values []float64) (mean, stddev float64) {
	count := len(values)
	if count == 0 {
		return 0, 0
	}

	mean = Mean(values)

	if count < 2 {
		return mean, 0
	}

	var sumSq float64

	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}

	return mean, math.Sqrt(sumSq / float64(count-1))
}

// Min returns the smallest element in values.
// Returns the zero value of T for an empty slice.
func Min[T cmp.Ordered](values []T) T {
	if len(values) == 0 {
		var zero T

		return zero
	}

	result := values[0]

	for _, v := range values[1:] {
		if v < result {
			result = v
		}
	}

	return result
}

// Max returns the largest element in values.
// Returns the zero value of T for an empty slice.
func Max[T cmp.Ordered](values []T) T {
	if len(values) == 0 {
		var zero T

		return zero
	}

	result := values[0]

	for _, v := range values[1:] {
		if v > result {
			result = v
		}
	}

	return result
}
