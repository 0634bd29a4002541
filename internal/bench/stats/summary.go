package stats

import (
	"time"

	"github.com/wesleyorama2/volley/internal/bench"
)

// Counts tallies measured samples by outcome.
type Counts struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failure int `json:"failure"`

	// ByReason has an entry for every failure reason, zero included.
	ByReason map[bench.FailureReason]int `json:"byReason"`

	// FailedStatus counts unexpected_status failures by received code.
	FailedStatus map[int]int `json:"failedStatus"`

	// Censored is the number of timeout durations included in the duration
	// statistics under the censor policy.
	Censored int `json:"censored"`
}

// PercentileValue is one entry of the configured percentile set.
type PercentileValue struct {
	Percentile float64                 `json:"percentile"`
	Value      Optional[time.Duration] `json:"value"`
}

// Fences are the 1.5*IQR outlier boundaries.
type Fences struct {
	Lower time.Duration `json:"lower"`
	Upper time.Duration `json:"upper"`
}

// Outlier is a duration strictly outside the fences.
type Outlier struct {
	Seq     uint64        `json:"seq"`
	Elapsed time.Duration `json:"elapsed"`
}

// Interval is a confidence interval for the mean.
type Interval struct {
	Level  float64       `json:"level"`
	Method CIMethod      `json:"method"`
	Lower  time.Duration `json:"lower"`
	Upper  time.Duration `json:"upper"`
}

// Bootstrap is the distribution of resampled means with a percentile
// interval at the Summary's confidence level.
type Bootstrap struct {
	Resamples int           `json:"resamples"`
	DrawSize  int           `json:"drawSize"`
	Mean      time.Duration `json:"mean"`
	StdError  time.Duration `json:"stdError"`
	Lower     time.Duration `json:"lower"`
	Upper     time.Duration `json:"upper"`

	// Means holds every resampled mean, sorted.
	Means []time.Duration `json:"means,omitempty"`
}

// WorkerStats summarizes the successful requests of one concurrency slot.
type WorkerStats struct {
	Worker int                     `json:"worker"`
	Count  int                     `json:"count"`
	Mean   time.Duration           `json:"mean"`
	StdDev Optional[time.Duration] `json:"stdDev"`
	Min    time.Duration           `json:"min"`
	Max    time.Duration           `json:"max"`
}

// QQPoint pairs a theoretical normal quantile with the observed one.
type QQPoint struct {
	Probability float64       `json:"probability"`
	Theoretical time.Duration `json:"theoretical"`
	Observed    time.Duration `json:"observed"`
}

// SeriesPoint is one measured request in issue order.
type SeriesPoint struct {
	Seq     uint64        `json:"seq"`
	Start   time.Duration `json:"start"`
	Elapsed time.Duration `json:"elapsed"`
	Success bool          `json:"success"`
}

// Summary is the statistical description of one target's measured samples.
// It is derived from a Store and never modified afterwards.
type Summary struct {
	TargetID string `json:"targetId"`

	// Cancelled echoes whether the campaign stopped early.
	Cancelled bool `json:"cancelled"`

	Counts Counts `json:"counts"`

	// Policy echoes the options that produced the Summary.
	TimeoutPolicy   TimeoutPolicy `json:"timeoutPolicy"`
	ConfidenceLevel float64       `json:"confidenceLevel"`

	Mean     Optional[time.Duration] `json:"mean"`
	Median   Optional[time.Duration] `json:"median"`
	Min      Optional[time.Duration] `json:"min"`
	Max      Optional[time.Duration] `json:"max"`
	Q1       Optional[time.Duration] `json:"q1"`
	Q3       Optional[time.Duration] `json:"q3"`
	IQR      Optional[time.Duration] `json:"iqr"`
	StdDev   Optional[time.Duration] `json:"stdDev"`
	Variance Optional[float64]       `json:"variance"`

	Percentiles []PercentileValue `json:"percentiles"`
	Histogram   []Bin             `json:"histogram"`

	Fences   Optional[Fences] `json:"fences"`
	Outliers []Outlier        `json:"outliers"`

	ConfidenceInterval Optional[Interval] `json:"confidenceInterval"`

	// Bootstrap is present when enabled in Options and success count >= 2.
	Bootstrap Optional[Bootstrap] `json:"bootstrap"`

	TotalBytes int64 `json:"totalBytes"`

	// Throughput is completed requests per second over the phase wall span.
	Throughput Optional[float64] `json:"throughput"`

	Workers []WorkerStats `json:"workers"`
	QQ      []QQPoint     `json:"qq"`
	Series  []SeriesPoint `json:"series,omitempty"`
}

// Empty returns the empty variant for a target: zero counts and every
// distribution field absent.
func Empty(targetID string) *Summary {
	return &Summary{
		TargetID: targetID,
		Counts:   newCounts(),
	}
}

// IsEmpty reports whether the Summary describes no measured samples.
func (s *Summary) IsEmpty() bool {
	return s == nil || s.Counts.Total == 0
}

// Percentile returns the value for percentile p (in percent) if p is in the
// configured set and a value is present.
func (s *Summary) Percentile(p float64) Optional[time.Duration] {
	for _, pv := range s.Percentiles {
		if pv.Percentile == p {
			return pv.Value
		}
	}
	return None[time.Duration]()
}

// HasPercentile reports whether p is part of the Summary's percentile set.
func (s *Summary) HasPercentile(p float64) bool {
	for _, pv := range s.Percentiles {
		if pv.Percentile == p {
			return true
		}
	}
	return false
}

func newCounts() Counts {
	c := Counts{
		ByReason:     make(map[bench.FailureReason]int, len(bench.FailureReasons)),
		FailedStatus: make(map[int]int),
	}
	for _, r := range bench.FailureReasons {
		c.ByReason[r] = 0
	}
	return c
}
