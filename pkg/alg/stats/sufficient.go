package stats

import "math"

// Sufficient is the minimal per-group accumulator from which count, mean,
// min, max, and standard deviation can be derived without revisiting raw
// values. It is closed under Merge: folding observations one at a time and
// merging independently accumulated partials produce the same result, modulo
// floating-point summation order.
type Sufficient struct {
	Count uint64
	Sum   float64
	SumSq float64
	Min   float64
	Max   float64
}

// Observe folds a single value into the accumulator.
// The caller is responsible for excluding NaN values upstream.
func (s *Sufficient) Observe(v float64) {
	if s.Count == 0 {
		s.Min = v
		s.Max = v
	} else {
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}

	s.Count++
	s.Sum += v
	s.SumSq += v * v
}

// Merge folds another accumulator into s. The operation is associative and
// commutative, so partials may be combined in any order.
func (s *Sufficient) Merge(o Sufficient) {
	if o.Count == 0 {
		return
	}

	if s.Count == 0 {
		*s = o

		return
	}

	s.Count += o.Count
	s.Sum += o.Sum
	s.SumSq += o.SumSq
	s.Min = math.Min(s.Min, o.Min)
	s.Max = math.Max(s.Max, o.Max)
}

// Mean returns the arithmetic mean of the observed values.
// Returns 0 when no values have been observed.
func (s Sufficient) Mean() float64 {
	if s.Count == 0 {
		return 0
	}

	return s.Sum / float64(s.Count)
}

// StdDev returns the sample standard deviation derived from the
// sum-of-squares form: variance = (sum_sq − count·mean²) / (count − 1).
// The variance is clamped at zero to absorb floating-point cancellation.
// A single observation yields 0, not NaN.
func (s Sufficient) StdDev() float64 {
	if s.Count < 2 {
		return 0
	}

	mean := s.Mean()
	variance := (s.SumSq - float64(s.Count)*mean*mean) / float64(s.Count-1)

	return math.Sqrt(math.Max(variance, 0))
}

// Finalized is the reportable, read-only view of an accumulator.
type Finalized struct {
	Count uint64
	Mean  float64
	Min   float64
	Max   float64
	Std   float64
}

// Finalize derives the reportable statistics tuple from the accumulator.
func (s Sufficient) Finalize() Finalized {
	return Finalized{
		Count: s.Count,
		Mean:  s.Mean(),
		Min:   s.Min,
		Max:   s.Max,
		Std:   s.StdDev(),
	}
}
