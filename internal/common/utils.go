package common

import "math"

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampInt bounds v to [lo, hi].
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Interpolate maps x linearly from [x0, x1] onto [0, maxOut], saturating at
// both ends. A degenerate range returns 0 below x1 and maxOut at or above it.
func Interpolate(x, x0, x1, maxOut float64) float64 {
	if x1 <= x0 {
		if x >= x1 {
			return maxOut
		}
		return 0
	}
	return Clamp((x-x0)/(x1-x0), 0, 1) * maxOut
}

// Lerp interpolates between a and b by t in [0, 1].
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*Clamp(t, 0, 1)
}

// IsMissing reports whether a telemetry sample is absent.
func IsMissing(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// Mean averages the present samples of values. ok is false when none are present.
func Mean(values []float64) (mean float64, ok bool) {
	var sum float64
	n := 0
	for _, v := range values {
		if IsMissing(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// Sum adds the present samples of values and returns how many were present.
func Sum(values []float64) (sum float64, n int) {
	for _, v := range values {
		if IsMissing(v) {
			continue
		}
		sum += v
		n++
	}
	return sum, n
}
