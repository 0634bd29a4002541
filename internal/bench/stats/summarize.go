package stats

import (
	"math"
	"sort"
	"time"

	moremath "github.com/aclements/go-moremath/stats"

	"github.com/wesleyorama2/volley/internal/bench"
)

// maxQQPoints caps the number of Q-Q points in a Summary.
const maxQQPoints = 100

// Summarize reduces the measured samples of a store to a Summary. It never
// fails: missing data shows up as absent values. The store is not modified.
func Summarize(store *bench.Store, opts Options) *Summary {
	if store == nil {
		return Empty("")
	}
	s := FromSamples(store.TargetID(), store.Measured(), opts)
	s.Cancelled = store.Cancelled()
	return s
}

// observation is one duration that takes part in the distribution statistics.
type observation struct {
	seq    uint64
	worker int
	ns     float64
}

// FromSamples summarizes a slice of measured samples.
func FromSamples(targetID string, samples []bench.Sample, opts Options) *Summary {
	opts = opts.WithDefaults()

	sum := Empty(targetID)
	sum.TimeoutPolicy = opts.TimeoutPolicy
	sum.ConfidenceLevel = opts.ConfidenceLevel
	if len(samples) == 0 {
		return sum
	}

	obs := make([]observation, 0, len(samples))
	for _, smp := range samples {
		sum.Counts.Total++
		sum.TotalBytes += smp.Bytes

		if smp.Outcome.IsSuccess() {
			sum.Counts.Success++
			obs = append(obs, observation{seq: smp.Seq, worker: smp.Worker, ns: float64(smp.Elapsed)})
			continue
		}

		sum.Counts.Failure++
		sum.Counts.ByReason[smp.Outcome.Reason]++
		if smp.Outcome.Reason == bench.ReasonUnexpectedStatus {
			sum.Counts.FailedStatus[smp.Outcome.StatusCode]++
		}
		if smp.Outcome.Reason == bench.ReasonTimeout && opts.TimeoutPolicy == TimeoutCensor {
			sum.Counts.Censored++
			obs = append(obs, observation{seq: smp.Seq, worker: smp.Worker, ns: float64(smp.Elapsed)})
		}
	}

	sum.Throughput = throughput(samples)
	if opts.IncludeSeries {
		sum.Series = series(samples)
	}

	sum.Percentiles = make([]PercentileValue, len(opts.Percentiles))
	for i, p := range opts.Percentiles {
		sum.Percentiles[i] = PercentileValue{Percentile: p, Value: None[time.Duration]()}
	}

	// Censored timeouts shape the distribution but never satisfy the
	// success-count gates on their own.
	if sum.Counts.Success == 0 {
		return sum
	}

	sort.SliceStable(obs, func(i, j int) bool { return obs[i].ns < obs[j].ns })
	xs := make([]float64, len(obs))
	for i, o := range obs {
		xs[i] = o.ns
	}
	n := len(xs)
	sample := moremath.Sample{Xs: xs, Sorted: true}
	mean := sample.Mean()

	sum.Mean = Some(toDuration(mean))
	sum.Median = Some(toDuration(Quantile(xs, 0.5)))
	sum.Min = Some(toDuration(xs[0]))
	sum.Max = Some(toDuration(xs[n-1]))
	q1, q3 := Quantile(xs, 0.25), Quantile(xs, 0.75)
	sum.Q1 = Some(toDuration(q1))
	sum.Q3 = Some(toDuration(q3))

	for i, p := range opts.Percentiles {
		sum.Percentiles[i].Value = Some(toDuration(Quantile(xs, clampPercent(p)/100)))
	}

	sum.Histogram = histogram(xs, opts.Histogram)
	sum.Workers = workerStats(obs)

	if sum.Counts.Success < 2 {
		return sum
	}

	variance := sample.Variance()
	sd := math.Sqrt(variance)
	sum.Variance = Some(variance)
	sum.StdDev = Some(toDuration(sd))

	iqr := q3 - q1
	lowerFence, upperFence := q1-1.5*iqr, q3+1.5*iqr
	sum.IQR = Some(toDuration(iqr))
	sum.Fences = Some(Fences{Lower: toDuration(lowerFence), Upper: toDuration(upperFence)})
	for _, o := range obs {
		if o.ns < lowerFence || o.ns > upperFence {
			sum.Outliers = append(sum.Outliers, Outlier{Seq: o.seq, Elapsed: toDuration(o.ns)})
		}
	}
	sort.Slice(sum.Outliers, func(i, j int) bool { return sum.Outliers[i].Seq < sum.Outliers[j].Seq })

	if c, ok := criticalValue(opts.CIMethod, opts.ConfidenceLevel, n); ok {
		half := c * sd / math.Sqrt(float64(n))
		sum.ConfidenceInterval = Some(Interval{
			Level:  opts.ConfidenceLevel,
			Method: opts.CIMethod,
			Lower:  toDuration(mean - half),
			Upper:  toDuration(mean + half),
		})
	}

	if sd > 0 {
		sum.QQ = qqPoints(xs, mean, sd)
	}

	if opts.Bootstrap.Resamples > 0 {
		sum.Bootstrap = Some(bootstrap(xs, opts.Bootstrap, opts.ConfidenceLevel))
	}
	return sum
}

// criticalValue returns the two-sided critical value for the given level.
func criticalValue(method CIMethod, level float64, n int) (float64, bool) {
	if level <= 0 || level >= 1 || n < 2 {
		return 0, false
	}
	p := 1 - (1-level)/2

	var c float64
	switch method {
	case CIStudentT:
		c = moremath.InvCDF(moremath.TDist{V: float64(n - 1)})(p)
	default:
		c = moremath.StdNormal.InvCDF(p)
	}
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return 0, false
	}
	return c, true
}

func qqPoints(xs []float64, mean, sd float64) []QQPoint {
	m := len(xs)
	if m > maxQQPoints {
		m = maxQQPoints
	}
	points := make([]QQPoint, m)
	for j := range points {
		p := (float64(j) + 0.5) / float64(m)
		points[j] = QQPoint{
			Probability: p,
			Theoretical: toDuration(mean + moremath.StdNormal.InvCDF(p)*sd),
			Observed:    toDuration(Quantile(xs, p)),
		}
	}
	return points
}

// workerStats groups sorted observations by worker.
func workerStats(obs []observation) []WorkerStats {
	byWorker := make(map[int][]float64)
	for _, o := range obs {
		byWorker[o.worker] = append(byWorker[o.worker], o.ns)
	}

	out := make([]WorkerStats, 0, len(byWorker))
	for w, xs := range byWorker {
		sample := moremath.Sample{Xs: xs, Sorted: true}
		ws := WorkerStats{
			Worker: w,
			Count:  len(xs),
			Mean:   toDuration(sample.Mean()),
			Min:    toDuration(xs[0]),
			Max:    toDuration(xs[len(xs)-1]),
		}
		if len(xs) >= 2 {
			ws.StdDev = Some(toDuration(sample.StdDev()))
		}
		out = append(out, ws)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Worker < out[j].Worker })
	return out
}

// throughput is completed requests per second over the wall span of the
// phase, from the first issue to the last completion.
func throughput(samples []bench.Sample) Optional[float64] {
	first, last := samples[0].Start, samples[0].End()
	for _, s := range samples[1:] {
		if s.Start < first {
			first = s.Start
		}
		if s.End() > last {
			last = s.End()
		}
	}
	span := last - first
	if span <= 0 {
		return None[float64]()
	}
	return Some(float64(len(samples)) / span.Seconds())
}

func series(samples []bench.Sample) []SeriesPoint {
	out := make([]SeriesPoint, len(samples))
	for i, s := range samples {
		out[i] = SeriesPoint{Seq: s.Seq, Start: s.Start, Elapsed: s.Elapsed, Success: s.Outcome.IsSuccess()}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func clampPercent(p float64) float64 {
	return math.Max(0, math.Min(100, p))
}
