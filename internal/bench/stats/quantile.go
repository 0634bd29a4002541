package stats

import (
	"math"
	"time"
)

// Quantile returns the q-quantile (0 <= q <= 1) of values sorted ascending.
//
// The method is fixed: h = q*(n-1), interpolated linearly between
// sorted[floor(h)] and sorted[ceil(h)]. It returns NaN for an empty slice.
func Quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[n-1]
	}

	h := q * float64(n-1)
	lo := int(math.Floor(h))
	hi := int(math.Ceil(h))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[hi]-sorted[lo])
}

// toDuration rounds a nanosecond value to the nearest time.Duration.
func toDuration(ns float64) time.Duration {
	return time.Duration(math.Round(ns))
}
