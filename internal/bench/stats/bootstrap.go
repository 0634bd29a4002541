package stats

import (
	"math"
	"math/rand"
	"sort"
	"time"

	moremath "github.com/aclements/go-moremath/stats"
)

// bootstrap resamples xs with replacement and reports the spread of the
// resampled means. The interval uses the percentile method.
func bootstrap(xs []float64, policy BootstrapPolicy, level float64) Bootstrap {
	draw := policy.DrawSize
	if draw <= 0 {
		draw = len(xs)
	}
	rng := rand.New(rand.NewSource(policy.Seed))

	means := make([]float64, policy.Resamples)
	for i := range means {
		var total float64
		for j := 0; j < draw; j++ {
			total += xs[rng.Intn(len(xs))]
		}
		means[i] = total / float64(draw)
	}
	sort.Float64s(means)

	sample := moremath.Sample{Xs: means, Sorted: true}
	tail := (1 - level) / 2
	b := Bootstrap{
		Resamples: policy.Resamples,
		DrawSize:  draw,
		Mean:      toDuration(sample.Mean()),
		Lower:     toDuration(Quantile(means, tail)),
		Upper:     toDuration(Quantile(means, 1-tail)),
		Means:     make([]time.Duration, len(means)),
	}
	if len(means) >= 2 {
		b.StdError = toDuration(math.Sqrt(sample.Variance()))
	}
	for i, m := range means {
		b.Means[i] = toDuration(m)
	}
	return b
}
