package stats

import (
	"math"
	"time"
)

// Bin is one histogram bucket. Lower is inclusive; Upper is exclusive except
// for the last bin, which includes the maximum.
type Bin struct {
	Lower time.Duration `json:"lower"`
	Upper time.Duration `json:"upper"`
	Count int           `json:"count"`
}

// binCount resolves the number of bins for n values.
func (p HistogramPolicy) binCount(n int) int {
	if n <= 0 {
		return 0
	}
	if p.Bins > 0 {
		return p.Bins
	}
	switch p.Rule {
	case BinSturges:
		return int(math.Ceil(math.Log2(float64(n)))) + 1
	default:
		return int(math.Ceil(math.Sqrt(float64(n))))
	}
}

// histogram bins sorted nanosecond values over [min, max]. Boundaries are
// shared between neighbours, so the bins are contiguous.
func histogram(sorted []float64, policy HistogramPolicy) []Bin {
	n := len(sorted)
	if n == 0 {
		return nil
	}

	lo, hi := sorted[0], sorted[n-1]
	if lo == hi {
		return []Bin{{Lower: toDuration(lo), Upper: toDuration(hi), Count: n}}
	}

	k := policy.binCount(n)
	width := (hi - lo) / float64(k)

	bins := make([]Bin, k)
	for i := range bins {
		bins[i].Lower = toDuration(lo + float64(i)*width)
		if i > 0 {
			bins[i-1].Upper = bins[i].Lower
		}
	}
	bins[k-1].Upper = toDuration(hi)

	for _, v := range sorted {
		idx := int((v - lo) / width)
		if idx >= k {
			idx = k - 1
		}
		if idx < 0 {
			idx = 0
		}
		// Snap to the rounded boundaries.
		d := toDuration(v)
		for idx > 0 && d < bins[idx].Lower {
			idx--
		}
		for idx < k-1 && d >= bins[idx+1].Lower {
			idx++
		}
		bins[idx].Count++
	}
	return bins
}
