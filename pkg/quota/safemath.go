package quota

import "math"

// SafeDiv divides num by den after flooring den at floor. A non-finite
// result is reported as 0 so nothing downstream ever sees NaN or Inf.
func SafeDiv(num, den, floor float64) float64 {
	if !(den >= floor) {
		den = floor
	}
	if den == 0 {
		return 0
	}
	return Finite(num / den)
}

// Clamp bounds v into [lo, hi]. NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Finite returns v, or 0 when v is NaN or infinite.
func Finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Prob clamps a probability into [0, 1].
func Prob(v float64) float64 {
	return Clamp(v, 0, 1)
}
