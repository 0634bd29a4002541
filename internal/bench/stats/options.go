package stats

import (
	"fmt"
	"strings"
)

// TimeoutPolicy decides whether timed-out requests contribute to duration
// statistics.
type TimeoutPolicy string

const (
	// TimeoutExclude counts timeouts as failures only.
	TimeoutExclude TimeoutPolicy = "exclude"

	// TimeoutCensor includes each timeout's elapsed time as a censored value:
	// a lower bound on the real latency.
	TimeoutCensor TimeoutPolicy = "censor"
)

// CIMethod selects the critical value used for the confidence interval of
// the mean.
type CIMethod string

const (
	// CINormal uses the standard normal quantile. It assumes the sampling
	// distribution of the mean is approximately normal, which holds for
	// moderately large success counts.
	CINormal CIMethod = "normal"

	// CIStudentT uses Student's t with n-1 degrees of freedom. It is wider
	// for small samples and assumes approximately normal latencies.
	CIStudentT CIMethod = "student-t"
)

// BinRule chooses the histogram bin count from the sample count.
type BinRule string

const (
	// BinSqrt uses ceil(sqrt(n)) bins.
	BinSqrt BinRule = "sqrt"

	// BinSturges uses ceil(log2(n)) + 1 bins.
	BinSturges BinRule = "sturges"
)

// HistogramPolicy configures histogram binning. A positive Bins takes
// precedence over Rule.
type HistogramPolicy struct {
	Bins int     `json:"bins,omitempty" yaml:"bins,omitempty"`
	Rule BinRule `json:"rule,omitempty" yaml:"rule,omitempty"`
}

// BootstrapPolicy enables the bootstrap estimate of the mean. It is off
// while Resamples is zero.
type BootstrapPolicy struct {
	// Resamples is the number of resampled means.
	Resamples int `json:"resamples,omitempty" yaml:"resamples,omitempty"`

	// DrawSize is the number of durations drawn per resample; zero draws as
	// many as there are durations.
	DrawSize int `json:"drawSize,omitempty" yaml:"drawSize,omitempty"`

	// Seed makes the resampling reproducible.
	Seed int64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// DefaultPercentiles is the percentile set used when none is configured.
var DefaultPercentiles = []float64{50, 90, 95, 99}

// DefaultConfidenceLevel is the confidence level used when none is configured.
const DefaultConfidenceLevel = 0.95

// Options configures Summarize.
type Options struct {
	// Percentiles in percent, each within [0, 100].
	Percentiles []float64 `json:"percentiles" yaml:"percentiles"`

	// ConfidenceLevel for the mean, within (0, 1).
	ConfidenceLevel float64 `json:"confidenceLevel" yaml:"confidenceLevel"`

	CIMethod      CIMethod        `json:"ciMethod" yaml:"ciMethod"`
	Histogram     HistogramPolicy `json:"histogram" yaml:"histogram"`
	TimeoutPolicy TimeoutPolicy   `json:"timeoutPolicy" yaml:"timeoutPolicy"`

	Bootstrap BootstrapPolicy `json:"bootstrap,omitempty" yaml:"bootstrap,omitempty"`

	// IncludeSeries adds the issue-order time series to the Summary.
	IncludeSeries bool `json:"includeSeries,omitempty" yaml:"includeSeries,omitempty"`
}

// DefaultOptions returns the canonical statistics policy.
func DefaultOptions() Options {
	return Options{
		Percentiles:     append([]float64(nil), DefaultPercentiles...),
		ConfidenceLevel: DefaultConfidenceLevel,
		CIMethod:        CINormal,
		Histogram:       HistogramPolicy{Rule: BinSqrt},
		TimeoutPolicy:   TimeoutExclude,
	}
}

// WithDefaults fills zero fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if len(o.Percentiles) == 0 {
		o.Percentiles = d.Percentiles
	}
	if o.ConfidenceLevel == 0 {
		o.ConfidenceLevel = d.ConfidenceLevel
	}
	if o.CIMethod == "" {
		o.CIMethod = d.CIMethod
	}
	if o.Histogram.Bins <= 0 && o.Histogram.Rule == "" {
		o.Histogram.Rule = d.Histogram.Rule
	}
	if o.TimeoutPolicy == "" {
		o.TimeoutPolicy = d.TimeoutPolicy
	}
	return o
}

// Validate reports the first invalid option.
func (o Options) Validate() error {
	for _, p := range o.Percentiles {
		if p < 0 || p > 100 {
			return fmt.Errorf("percentile %g must be within [0, 100]", p)
		}
	}
	if o.ConfidenceLevel != 0 && (o.ConfidenceLevel <= 0 || o.ConfidenceLevel >= 1) {
		return fmt.Errorf("confidence level %g must be within (0, 1)", o.ConfidenceLevel)
	}
	switch o.CIMethod {
	case "", CINormal, CIStudentT:
	default:
		return fmt.Errorf("unknown confidence interval method %q (want normal or student-t)", o.CIMethod)
	}
	switch o.Histogram.Rule {
	case "", BinSqrt, BinSturges:
	default:
		return fmt.Errorf("unknown histogram rule %q (want sqrt or sturges)", o.Histogram.Rule)
	}
	if o.Histogram.Bins < 0 {
		return fmt.Errorf("histogram bins must be non-negative, got %d", o.Histogram.Bins)
	}
	if o.Bootstrap.Resamples < 0 {
		return fmt.Errorf("bootstrap resamples must be non-negative, got %d", o.Bootstrap.Resamples)
	}
	if o.Bootstrap.DrawSize < 0 {
		return fmt.Errorf("bootstrap draw size must be non-negative, got %d", o.Bootstrap.DrawSize)
	}
	switch o.TimeoutPolicy {
	case "", TimeoutExclude, TimeoutCensor:
	default:
		return fmt.Errorf("unknown timeout policy %q (want exclude or censor)", o.TimeoutPolicy)
	}
	return nil
}

// ParseTimeoutPolicy parses a policy name, case-insensitively.
func ParseTimeoutPolicy(s string) (TimeoutPolicy, error) {
	switch p := TimeoutPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case TimeoutExclude, TimeoutCensor:
		return p, nil
	}
	return "", fmt.Errorf("unknown timeout policy %q (want exclude or censor)", s)
}
