// Package config parses and validates campaign files.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/volley/internal/bench/compare"
	"github.com/wesleyorama2/volley/internal/bench/stats"
)

// Config is the root of a campaign file.
//
// Example YAML:
//
//	name: "API latency"
//	settings:
//	  baseUrl: "https://api.example.com"
//	  timeout: 10s
//	defaults:
//	  warmup: 10
//	  iterations: 300
//	  concurrency: 4
//	targets:
//	  - id: users
//	    url: "{{baseUrl}}/users"
//	  - id: users-v2
//	    url: "{{baseUrl}}/v2/users"
//	compare:
//	  - baseline: users
//	    candidate: users-v2
type Config struct {
	// Name of the campaign (for reporting and history)
	Name string `json:"name" yaml:"name"`

	// Description of the campaign (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Settings configure the HTTP transport shared by all targets
	Settings Settings `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Variables are substituted as {{name}} in target URLs, headers and bodies
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`

	// Defaults is the plan applied to targets that do not override it
	Defaults PlanConfig `json:"defaults,omitempty" yaml:"defaults,omitempty"`

	// Targets are the endpoints to benchmark
	Targets []*TargetConfig `json:"targets" yaml:"targets"`

	// Statistics configures the summaries
	Statistics stats.Options `json:"statistics,omitempty" yaml:"statistics,omitempty"`

	// Comparison configures regression detection
	Comparison ComparisonConfig `json:"comparison,omitempty" yaml:"comparison,omitempty"`

	// Compare lists target pairs to compare after the campaign
	Compare []ComparePair `json:"compare,omitempty" yaml:"compare,omitempty"`

	// Options for campaign execution
	Options Options `json:"options,omitempty" yaml:"options,omitempty"`
}

// Settings contains transport settings.
type Settings struct {
	// BaseURL is available to targets as {{baseUrl}}
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`

	// Timeout is the default per-request timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Protocol is h1, h2 or h3
	Protocol string `json:"protocol,omitempty" yaml:"protocol,omitempty"`

	// MaxIdleConnsPerHost sizes the connection pool
	MaxIdleConnsPerHost int `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`

	// UserAgent is the default User-Agent header
	UserAgent string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`

	// Headers are sent with every request
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// ComparisonConfig configures regression detection. Nil fields take the
// compare package defaults; an explicit zero is kept.
type ComparisonConfig struct {
	Threshold     *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	KeyPercentile *float64 `json:"keyPercentile,omitempty" yaml:"keyPercentile,omitempty"`
	Alpha         *float64 `json:"alpha,omitempty" yaml:"alpha,omitempty"`
}

// Options resolves the block against compare.DefaultOptions.
func (c ComparisonConfig) Options() compare.Options {
	o := compare.DefaultOptions()
	if c.Threshold != nil {
		o.Threshold = *c.Threshold
	}
	if c.KeyPercentile != nil {
		o.KeyPercentile = *c.KeyPercentile
	}
	if c.Alpha != nil {
		o.Alpha = *c.Alpha
	}
	return o
}

// PlanConfig is the campaign shape for a target. Nil fields inherit.
type PlanConfig struct {
	Warmup        *int     `json:"warmup,omitempty" yaml:"warmup,omitempty"`
	Iterations    *int     `json:"iterations,omitempty" yaml:"iterations,omitempty"`
	Concurrency   *int     `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	WarmupRetries *int     `json:"warmupRetries,omitempty" yaml:"warmupRetries,omitempty"`
	Rate          *float64 `json:"rate,omitempty" yaml:"rate,omitempty"`

	// MaxDuration bounds the whole campaign of a target
	MaxDuration *Duration `json:"maxDuration,omitempty" yaml:"maxDuration,omitempty"`
}

// TargetConfig defines one endpoint.
type TargetConfig struct {
	ID           string            `json:"id" yaml:"id"`
	Name         string            `json:"name,omitempty" yaml:"name,omitempty"`
	Method       string            `json:"method,omitempty" yaml:"method,omitempty"`
	URL          string            `json:"url" yaml:"url"`
	Headers      map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body         string            `json:"body,omitempty" yaml:"body,omitempty"`
	ExpectStatus []int             `json:"expectStatus,omitempty" yaml:"expectStatus,omitempty"`

	// Timeout is the per-request timeout for this target
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Plan overrides the campaign defaults
	PlanConfig `yaml:",inline"`
}

// ComparePair names a baseline and candidate target.
type ComparePair struct {
	Baseline  string `json:"baseline" yaml:"baseline"`
	Candidate string `json:"candidate" yaml:"candidate"`
}

// Options controls execution.
type Options struct {
	// Sequential runs targets one after another instead of in parallel
	Sequential bool `json:"sequential,omitempty" yaml:"sequential,omitempty"`

	// DisplayUnit is the console duration unit: ns, us, ms or s
	DisplayUnit string `json:"displayUnit,omitempty" yaml:"displayUnit,omitempty"`
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings
// such as "30s" or bare integer seconds.
type Duration time.Duration

// GetDuration returns the duration or a default if zero.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		*d = 0
		return nil
	}
	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	dur, err := ParseDurationString(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
