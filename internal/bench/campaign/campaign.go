// Package campaign runs every target of a configuration and assembles the
// resulting Report.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/volley/internal/bench"
	"github.com/wesleyorama2/volley/internal/bench/compare"
	"github.com/wesleyorama2/volley/internal/bench/config"
	"github.com/wesleyorama2/volley/internal/bench/report"
	"github.com/wesleyorama2/volley/internal/bench/runner"
	"github.com/wesleyorama2/volley/internal/bench/stats"
	volleyhttp "github.com/wesleyorama2/volley/internal/http"
)

// Observer is a runner.Observer that also wants to know each target's
// planned request count up front, like metrics.Monitor.
type Observer interface {
	runner.Observer
	Register(targetID string, expected int)
}

// Campaign runs the targets of one configuration.
type Campaign struct {
	cfg       *config.Config
	transport runner.Transport
	observer  Observer
	logger    *slog.Logger
}

// Option configures a Campaign.
type Option func(*Campaign)

// WithTransport replaces the HTTP client built from the settings.
func WithTransport(t runner.Transport) Option {
	return func(c *Campaign) {
		c.transport = t
	}
}

// WithObserver attaches a live progress observer.
func WithObserver(o Observer) Option {
	return func(c *Campaign) {
		c.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Campaign) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New validates cfg and returns a Campaign for it. Defaults must already
// have been applied with config.ApplyDefaults.
func New(cfg *config.Config, opts ...Option) (*Campaign, error) {
	if cfg == nil {
		return nil, errors.New("campaign: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Campaign{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewClient builds the HTTP transport described by the settings.
func NewClient(settings config.Settings, logger *slog.Logger) (*volleyhttp.Client, error) {
	protocol, err := volleyhttp.ParseProtocol(settings.Protocol)
	if err != nil {
		return nil, err
	}

	options := []volleyhttp.ClientOption{
		volleyhttp.WithProtocol(protocol),
		volleyhttp.WithTimeout(settings.Timeout.GetDuration(config.DefaultTimeout)),
		volleyhttp.WithInsecureSkipVerify(settings.InsecureSkipVerify),
		volleyhttp.WithMaxIdleConnsPerHost(settings.MaxIdleConnsPerHost),
		volleyhttp.WithLogger(logger),
	}
	if settings.UserAgent != "" {
		options = append(options, volleyhttp.WithHeader("User-Agent", settings.UserAgent))
	}
	for k, v := range settings.Headers {
		options = append(options, volleyhttp.WithHeader(k, v))
	}
	return volleyhttp.NewClient(options...), nil
}

type job struct {
	info   report.TargetInfo
	target *bench.Target
	plan   runner.Plan
}

// Run executes every target, then the configured comparisons.
//
// Targets run in parallel unless options.sequential is set. A target with an
// invalid plan records the error on its entry and keeps the empty Summary.
// Cancelling ctx stops issuing; the report still covers what ran and its
// summaries are marked cancelled.
func (c *Campaign) Run(ctx context.Context) (*report.Report, error) {
	transport := c.transport
	if transport == nil {
		client, err := NewClient(c.cfg.Settings, c.logger)
		if err != nil {
			return nil, fmt.Errorf("create http client: %w", err)
		}
		defer client.Close()
		transport = client
	}

	runnerOpts := []runner.Option{runner.WithLogger(c.logger)}
	if c.observer != nil {
		runnerOpts = append(runnerOpts, runner.WithObserver(c.observer))
	}
	r := runner.New(transport, runnerOpts...)

	statsOpts := c.cfg.Statistics.WithDefaults()

	meta := report.NewMetadata(c.cfg.Name)
	meta.Description = c.cfg.Description
	meta.Statistics = statsOpts
	meta.Comparison = c.compareOptions()

	jobs := make([]job, 0, len(c.cfg.Targets))
	for _, tc := range c.cfg.Targets {
		target := tc.ToTarget(&c.cfg.Settings)
		j := job{
			info: report.TargetInfo{
				ID:     target.ID,
				Name:   target.Name,
				Method: target.HTTPMethod(),
				URL:    target.URL,
			},
			target: target,
			plan:   c.cfg.PlanFor(tc),
		}
		j.info.Plan = j.plan
		jobs = append(jobs, j)
		if c.observer != nil {
			c.observer.Register(target.ID, j.plan.Measured)
		}
	}

	c.logger.Info("campaign starting",
		slog.String("name", meta.Name),
		slog.String("id", meta.ID),
		slog.Int("targets", len(jobs)),
		slog.Bool("sequential", c.cfg.Options.Sequential),
	)

	summaries := make([]*stats.Summary, len(jobs))
	runOne := func(i int) {
		j := &jobs[i]
		store, err := r.Run(ctx, j.target, j.plan)
		if err != nil {
			j.info.Error = err.Error()
			c.logger.Error("target cannot run",
				slog.String("target", j.target.ID),
				slog.Any("error", err),
			)
			if c.observer != nil {
				c.observer.PhaseChanged(j.target.ID, bench.PhaseDone)
			}
			return
		}
		summaries[i] = stats.Summarize(store, statsOpts)
	}

	if c.cfg.Options.Sequential {
		for i := range jobs {
			if ctx.Err() != nil {
				break
			}
			runOne(i)
		}
	} else {
		var g errgroup.Group
		for i := range jobs {
			g.Go(func() error {
				runOne(i)
				return nil
			})
		}
		_ = g.Wait()
	}

	meta.FinishedAt = time.Now().UTC()
	for _, j := range jobs {
		meta.Targets = append(meta.Targets, j.info)
	}

	rep := report.Build(meta, summaries, nil)
	for _, pair := range c.cfg.Compare {
		c.comparePair(rep, pair)
	}
	if ctx.Err() != nil {
		rep.AddNote(fmt.Sprintf("campaign cancelled: %v", context.Cause(ctx)))
	}

	c.logger.Info("campaign finished",
		slog.String("name", meta.Name),
		slog.Duration("elapsed", rep.Duration()),
		slog.Bool("regressed", rep.Regressed()),
	)
	return rep, nil
}

func (c *Campaign) comparePair(rep *report.Report, pair config.ComparePair) {
	baseline, ok := rep.Find(pair.Baseline)
	if !ok {
		rep.AddNote(fmt.Sprintf("comparison %s vs %s skipped: baseline not found", pair.Baseline, pair.Candidate))
		return
	}
	candidate, ok := rep.Find(pair.Candidate)
	if !ok {
		rep.AddNote(fmt.Sprintf("comparison %s vs %s skipped: candidate not found", pair.Baseline, pair.Candidate))
		return
	}

	result, err := compare.Compare(baseline.Summary, candidate.Summary, c.compareOptions())
	if err != nil {
		rep.AddNote(err.Error())
		c.logger.Warn("comparison skipped", slog.Any("error", err))
		return
	}
	rep.Comparisons = append(rep.Comparisons, result)
}

func (c *Campaign) compareOptions() compare.Options {
	return c.cfg.Comparison.Options()
}

// CompareReports compares every target present in both reports, baseline
// first. Targets that cannot be compared are described in the returned notes.
func CompareReports(baseline, candidate *report.Report, opts compare.Options) ([]*compare.Result, []string) {
	var (
		results []*compare.Result
		notes   []string
	)
	for _, res := range candidate.Results {
		base, ok := baseline.Find(res.Target.ID)
		if !ok {
			notes = append(notes, fmt.Sprintf("target %q has no baseline", res.Target.ID))
			continue
		}
		result, err := compare.Compare(base.Summary, res.Summary, opts)
		if err != nil {
			notes = append(notes, err.Error())
			continue
		}
		results = append(results, result)
	}
	return results, notes
}
