// Package compare derives a Comparison Result from two statistics summaries:
// baseline and candidate.
package compare

import (
	"errors"
	"fmt"
	"math"
	"time"

	moremath "github.com/aclements/go-moremath/stats"

	"github.com/wesleyorama2/volley/internal/bench/stats"
)

const (
	// DefaultKeyPercentile is the percentile that decides regressions.
	DefaultKeyPercentile = 95.0

	// DefaultThreshold is the relative slowdown tolerated before a
	// regression is flagged.
	DefaultThreshold = 0.10

	// DefaultAlpha is the significance level of the Welch t-test.
	DefaultAlpha = 0.05
)

// ComparisonError reports that two summaries cannot be compared.
type ComparisonError struct {
	Baseline  string
	Candidate string
	Reason    string
}

func (e *ComparisonError) Error() string {
	return fmt.Sprintf("cannot compare %q with %q: %s", e.Baseline, e.Candidate, e.Reason)
}

// Options configures Compare.
type Options struct {
	// Threshold is a relative fraction, e.g. 0.10 for +10%.
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// KeyPercentile in percent; it must be in both summaries' percentile sets.
	KeyPercentile float64 `json:"keyPercentile" yaml:"keyPercentile"`

	// Alpha is the significance level for the means test.
	Alpha float64 `json:"alpha" yaml:"alpha"`
}

// DefaultOptions returns the default comparison policy.
func DefaultOptions() Options {
	return Options{
		Threshold:     DefaultThreshold,
		KeyPercentile: DefaultKeyPercentile,
		Alpha:         DefaultAlpha,
	}
}

func (o Options) withDefaults() Options {
	if o.KeyPercentile == 0 {
		o.KeyPercentile = DefaultKeyPercentile
	}
	if o.Alpha <= 0 || o.Alpha >= 1 {
		o.Alpha = DefaultAlpha
	}
	return o
}

// Validate checks the option ranges.
func (o Options) Validate() error {
	if o.Threshold < 0 {
		return fmt.Errorf("regression threshold must be non-negative, got %g", o.Threshold)
	}
	if o.KeyPercentile < 0 || o.KeyPercentile > 100 {
		return fmt.Errorf("key percentile %g must be within [0, 100]", o.KeyPercentile)
	}
	if o.Alpha < 0 || o.Alpha >= 1 {
		return fmt.Errorf("alpha %g must be within (0, 1)", o.Alpha)
	}
	return nil
}

// Delta is the change of one metric from baseline to candidate.
type Delta struct {
	Metric    string                        `json:"metric"`
	Baseline  stats.Optional[time.Duration] `json:"baseline"`
	Candidate stats.Optional[time.Duration] `json:"candidate"`
	Absolute  stats.Optional[time.Duration] `json:"absolute"`
	Relative  stats.Optional[float64]       `json:"relative"`
}

// Verdict is the outcome of the significance test.
type Verdict string

const (
	VerdictRegressed Verdict = "regressed"
	VerdictImproved  Verdict = "improved"
	VerdictNoChange  Verdict = "no-change"
)

// Significance is a two-sample Welch t-test on the means.
type Significance struct {
	PValue  float64 `json:"pValue"`
	Alpha   float64 `json:"alpha"`
	Verdict Verdict `json:"verdict"`
}

// Result is the comparison of a candidate Summary against a baseline.
type Result struct {
	Baseline      string  `json:"baseline"`
	Candidate     string  `json:"candidate"`
	Threshold     float64 `json:"threshold"`
	KeyPercentile float64 `json:"keyPercentile"`

	Deltas []Delta `json:"deltas"`

	// Regressed is true iff the candidate key percentile exceeds the
	// baseline one by more than Threshold.
	Regressed bool `json:"regressed"`

	Significance stats.Optional[Significance] `json:"significance"`
}

// Delta returns the delta for a metric name such as "mean" or "p95".
func (r *Result) Delta(metric string) (Delta, bool) {
	for _, d := range r.Deltas {
		if d.Metric == metric {
			return d, true
		}
	}
	return Delta{}, false
}

// Compare computes candidate minus baseline for mean, median and every
// percentile present in both summaries.
func Compare(baseline, candidate *stats.Summary, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	if baseline.IsEmpty() || candidate.IsEmpty() {
		return nil, &ComparisonError{
			Baseline:  targetID(baseline),
			Candidate: targetID(candidate),
			Reason:    "summary has no measured samples",
		}
	}
	if !baseline.HasPercentile(opts.KeyPercentile) || !candidate.HasPercentile(opts.KeyPercentile) {
		return nil, &ComparisonError{
			Baseline:  baseline.TargetID,
			Candidate: candidate.TargetID,
			Reason:    fmt.Sprintf("key percentile p%s is not in both percentile sets", formatPercentile(opts.KeyPercentile)),
		}
	}

	res := &Result{
		Baseline:      baseline.TargetID,
		Candidate:     candidate.TargetID,
		Threshold:     opts.Threshold,
		KeyPercentile: opts.KeyPercentile,
	}

	res.Deltas = append(res.Deltas,
		delta("mean", baseline.Mean, candidate.Mean),
		delta("median", baseline.Median, candidate.Median),
	)
	for _, pv := range baseline.Percentiles {
		if !candidate.HasPercentile(pv.Percentile) {
			continue
		}
		res.Deltas = append(res.Deltas, delta("p"+formatPercentile(pv.Percentile), pv.Value, candidate.Percentile(pv.Percentile)))
	}

	b, bok := baseline.Percentile(opts.KeyPercentile).Get()
	c, cok := candidate.Percentile(opts.KeyPercentile).Get()
	if bok && cok {
		res.Regressed = float64(c) > float64(b)*(1+opts.Threshold)
	}

	res.Significance = significance(baseline, candidate, opts.Alpha)
	return res, nil
}

func delta(metric string, baseline, candidate stats.Optional[time.Duration]) Delta {
	d := Delta{
		Metric:    metric,
		Baseline:  baseline,
		Candidate: candidate,
		Absolute:  stats.None[time.Duration](),
		Relative:  stats.None[float64](),
	}
	b, bok := baseline.Get()
	c, cok := candidate.Get()
	if !bok || !cok {
		return d
	}
	d.Absolute = stats.Some(c - b)
	if b != 0 {
		d.Relative = stats.Some(float64(c-b) / float64(b))
	}
	return d
}

// moments adapts a Summary to the t-test sample interface.
type moments struct {
	n        float64
	mean     float64
	variance float64
}

func (m moments) Weight() float64   { return m.n }
func (m moments) Mean() float64     { return m.mean }
func (m moments) Variance() float64 { return m.variance }

func momentsOf(s *stats.Summary) (moments, bool) {
	mean, ok := s.Mean.Get()
	if !ok {
		return moments{}, false
	}
	variance, ok := s.Variance.Get()
	if !ok {
		return moments{}, false
	}
	n := s.Counts.Success + s.Counts.Censored
	return moments{n: float64(n), mean: float64(mean), variance: variance}, true
}

func significance(baseline, candidate *stats.Summary, alpha float64) stats.Optional[Significance] {
	bm, ok := momentsOf(baseline)
	if !ok {
		return stats.None[Significance]()
	}
	cm, ok := momentsOf(candidate)
	if !ok {
		return stats.None[Significance]()
	}

	res, err := moremath.TwoSampleWelchTTest(bm, cm, moremath.LocationDiffers)
	if err != nil || math.IsNaN(res.P) {
		// Too few samples or zero variance on both sides.
		return stats.None[Significance]()
	}

	sig := Significance{PValue: res.P, Alpha: alpha, Verdict: VerdictNoChange}
	if res.P < alpha {
		if cm.mean > bm.mean {
			sig.Verdict = VerdictRegressed
		} else {
			sig.Verdict = VerdictImproved
		}
	}
	return stats.Some(sig)
}

func targetID(s *stats.Summary) string {
	if s == nil {
		return ""
	}
	return s.TargetID
}

func formatPercentile(p float64) string {
	return fmt.Sprintf("%g", p)
}

// IsComparisonError reports whether err is a *ComparisonError.
func IsComparisonError(err error) bool {
	var ce *ComparisonError
	return errors.As(err, &ce)
}
