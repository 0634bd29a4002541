package config

import (
	"time"

	"github.com/wesleyorama2/volley/internal/bench"
	"github.com/wesleyorama2/volley/internal/bench/runner"
)

// ToTarget converts a target definition into the runner's Target.
func (t *TargetConfig) ToTarget(settings *Settings) *bench.Target {
	target := &bench.Target{
		ID:           t.ID,
		Name:         t.Name,
		Method:       t.Method,
		URL:          t.URL,
		Timeout:      t.Timeout.GetDuration(0),
		ExpectStatus: append([]int(nil), t.ExpectStatus...),
	}
	if settings != nil && target.Timeout == 0 {
		target.Timeout = settings.Timeout.GetDuration(0)
	}
	if len(t.Headers) > 0 {
		target.Headers = make(map[string]string, len(t.Headers))
		for k, v := range t.Headers {
			target.Headers[k] = v
		}
	}
	if t.Body != "" {
		target.Body = []byte(t.Body)
	}
	return target
}

// PlanFor merges the target's overrides onto the campaign defaults.
func (c *Config) PlanFor(t *TargetConfig) runner.Plan {
	merged := c.Defaults
	if t != nil {
		merged = merged.merge(t.PlanConfig)
	}

	plan := runner.Plan{
		Measured:    DefaultIterations,
		Concurrency: DefaultConcurrency,
	}
	if merged.Warmup != nil {
		plan.Warmup = *merged.Warmup
	}
	if merged.Iterations != nil {
		plan.Measured = *merged.Iterations
	}
	if merged.Concurrency != nil {
		plan.Concurrency = *merged.Concurrency
	}
	if merged.WarmupRetries != nil {
		plan.WarmupRetries = *merged.WarmupRetries
	}
	if merged.Rate != nil {
		plan.Rate = *merged.Rate
	}
	if merged.MaxDuration != nil {
		plan.Timeout = time.Duration(*merged.MaxDuration)
	}
	return plan
}

// merge returns p with every field set in o taking precedence.
func (p PlanConfig) merge(o PlanConfig) PlanConfig {
	if o.Warmup != nil {
		p.Warmup = o.Warmup
	}
	if o.Iterations != nil {
		p.Iterations = o.Iterations
	}
	if o.Concurrency != nil {
		p.Concurrency = o.Concurrency
	}
	if o.WarmupRetries != nil {
		p.WarmupRetries = o.WarmupRetries
	}
	if o.Rate != nil {
		p.Rate = o.Rate
	}
	if o.MaxDuration != nil {
		p.MaxDuration = o.MaxDuration
	}
	return p
}

// Target returns the target with the given id.
func (c *Config) Target(id string) (*TargetConfig, bool) {
	for _, t := range c.Targets {
		if t != nil && t.ID == id {
			return t, true
		}
	}
	return nil, false
}
