// Package runner executes a measurement campaign against one target.
//
// A campaign has two phases. The warmup phase issues requests whose samples
// are kept apart for diagnostics; the measured phase issues exactly the
// planned number of requests with at most Concurrency in flight and appends
// one Sample per completed request to the Store.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/volley/internal/bench"
	"github.com/wesleyorama2/volley/internal/bench/rate"
)

// Transport issues one request and classifies its outcome. Implementations
// must be safe for concurrent use.
type Transport interface {
	Issue(ctx context.Context, target *bench.Target) bench.Attempt
}

// Observer receives live progress events. It must not block.
type Observer interface {
	PhaseChanged(targetID string, phase bench.Phase)
	RequestIssued(targetID string)
	SampleRecorded(targetID string, s bench.Sample)
}

// Plan is the validated shape of one campaign.
type Plan struct {
	// Warmup is the number of warmup requests.
	Warmup int `json:"warmup"`

	// Measured is the number of measured requests.
	Measured int `json:"measured"`

	// Concurrency bounds the requests in flight. 1 issues strictly
	// sequentially.
	Concurrency int `json:"concurrency"`

	// WarmupRetries is how many times a failed warmup request is retried.
	WarmupRetries int `json:"warmupRetries"`

	// Rate paces issuance in requests per second; 0 disables pacing.
	Rate float64 `json:"rate,omitempty"`

	// Timeout bounds the whole campaign; 0 means no bound. Expiry stops
	// issuing like a cancellation.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// CampaignError reports a structurally invalid target or plan. It is
// returned before any request is issued.
type CampaignError struct {
	TargetID string
	Field    string
	Message  string
}

func (e *CampaignError) Error() string {
	if e.TargetID == "" {
		return fmt.Sprintf("invalid campaign: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid campaign for target %q: %s: %s", e.TargetID, e.Field, e.Message)
}

// Validate checks the target and plan.
func Validate(target *bench.Target, plan Plan) error {
	if target == nil {
		return &CampaignError{Field: "target", Message: "is required"}
	}
	fail := func(field, format string, args ...any) error {
		return &CampaignError{TargetID: target.ID, Field: field, Message: fmt.Sprintf(format, args...)}
	}

	switch {
	case target.ID == "":
		return fail("target.id", "is required")
	case target.URL == "":
		return fail("target.url", "is required")
	case !validMethod(target.HTTPMethod()):
		return fail("target.method", "invalid HTTP method %q", target.Method)
	case target.Timeout < 0:
		return fail("target.timeout", "must be non-negative, got %s", target.Timeout)
	case plan.Concurrency < 1:
		return fail("concurrency", "must be at least 1, got %d", plan.Concurrency)
	case plan.Measured < 1:
		return fail("iterations", "must be at least 1, got %d", plan.Measured)
	case plan.Warmup < 0:
		return fail("warmup", "must be non-negative, got %d", plan.Warmup)
	case plan.WarmupRetries < 0:
		return fail("warmupRetries", "must be non-negative, got %d", plan.WarmupRetries)
	case plan.Rate < 0:
		return fail("rate", "must be non-negative, got %g", plan.Rate)
	case plan.Timeout < 0:
		return fail("timeout", "must be non-negative, got %s", plan.Timeout)
	}
	if msg := checkURL(target.URL); msg != "" {
		return fail("target.url", "%s", msg)
	}
	return nil
}

// checkURL returns a description of what is wrong with raw, or "".
func checkURL(raw string) string {
	if strings.Contains(raw, "{{") {
		return fmt.Sprintf("unresolved variable in %q", raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err.Error()
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Sprintf("scheme must be http or https in %q", raw)
	}
	if u.Host == "" {
		return fmt.Sprintf("missing host in %q", raw)
	}
	return ""
}

// validMethod reports whether m is an HTTP token (RFC 9110, section 5.6.2).
func validMethod(m string) bool {
	if m == "" {
		return false
	}
	for _, r := range m {
		if r > 0x7e || r <= ' ' || strings.ContainsRune("\"(),/:;<=>?@[\\]{}", r) {
			return false
		}
	}
	return true
}

// Runner runs campaigns over a shared transport.
type Runner struct {
	transport Transport
	observer  Observer
	logger    *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithObserver attaches a live progress observer.
func WithObserver(o Observer) Option {
	return func(r *Runner) {
		r.observer = o
	}
}

// New creates a Runner that issues requests through t.
func New(t Transport, opts ...Option) *Runner {
	r := &Runner{
		transport: t,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the campaign and returns its sealed Store.
//
// Cancelling ctx, or reaching plan.Timeout, stops issuing new requests.
// Requests already in flight run to completion or to their own timeout and
// are recorded; the partial Store is returned without error and reports
// Cancelled. The only error is a *CampaignError for an invalid target or
// plan.
func (r *Runner) Run(ctx context.Context, target *bench.Target, plan Plan) (*bench.Store, error) {
	if err := Validate(target, plan); err != nil {
		return nil, err
	}

	if plan.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, plan.Timeout)
		defer cancel()
	}

	store := bench.NewStore(target.ID, plan.Measured)
	pacer := rate.NewPacer(plan.Rate)
	logger := r.logger.With(slog.String("target", target.ID))

	logger.Info("campaign starting",
		slog.String("url", target.URL),
		slog.Int("warmup", plan.Warmup),
		slog.Int("iterations", plan.Measured),
		slog.Int("concurrency", plan.Concurrency),
		slog.Float64("rate", plan.Rate),
	)
	started := time.Now()

	defer func() {
		store.Seal()
		r.phaseChanged(target.ID, bench.PhaseDone)
	}()

	if plan.Warmup > 0 {
		r.phaseChanged(target.ID, bench.PhaseWarmup)
		issued := r.runPhase(ctx, target, phase{
			name:        bench.PhaseWarmup,
			count:       plan.Warmup,
			concurrency: plan.Concurrency,
			attempts:    1 + plan.WarmupRetries,
			pacer:       pacer,
			record:      store.AppendWarmup,
			logger:      logger,
		})
		if issued < plan.Warmup {
			store.MarkCancelled()
			logger.Warn("campaign cancelled during warmup",
				slog.Int("warmupIssued", issued),
				slog.Duration("elapsed", time.Since(started)),
			)
			return store, nil
		}
	}

	r.phaseChanged(target.ID, bench.PhaseMeasured)
	issued := r.runPhase(ctx, target, phase{
		name:        bench.PhaseMeasured,
		count:       plan.Measured,
		concurrency: plan.Concurrency,
		attempts:    1,
		pacer:       pacer,
		record:      store.Append,
		logger:      logger,
	})

	if issued < plan.Measured {
		store.MarkCancelled()
		logger.Warn("campaign cancelled",
			slog.Int("issued", issued),
			slog.Int("planned", plan.Measured),
			slog.Duration("elapsed", time.Since(started)),
		)
		return store, nil
	}

	logger.Info("campaign complete",
		slog.Int("samples", store.Len()),
		slog.Duration("elapsed", time.Since(started)),
	)
	return store, nil
}

type phase struct {
	name        bench.Phase
	count       int
	concurrency int
	attempts    int
	pacer       *rate.Pacer
	record      func(bench.Sample) error
	logger      *slog.Logger
}

// runPhase issues p.count requests from min(concurrency, count) workers that
// share one issue counter. It returns how many requests were issued.
func (r *Runner) runPhase(ctx context.Context, target *bench.Target, p phase) int {
	var (
		next   atomic.Int64
		issued atomic.Int64
		wg     sync.WaitGroup
	)
	phaseStart := time.Now()

	workers := p.concurrency
	if workers > p.count {
		workers = p.count
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				seq := next.Add(1) - 1
				if seq >= int64(p.count) {
					return
				}
				if err := p.pacer.Wait(ctx); err != nil {
					return
				}
				issued.Add(1)

				for attempt := 0; attempt < p.attempts; attempt++ {
					s := r.issue(ctx, target, uint64(seq), worker, phaseStart)
					if err := p.record(s); err != nil {
						p.logger.Error("dropping sample", slog.Any("error", err))
					}
					if s.Outcome.IsSuccess() || ctx.Err() != nil {
						break
					}
					if attempt+1 < p.attempts {
						p.logger.Debug("retrying warmup request",
							slog.Uint64("seq", uint64(seq)),
							slog.Int("attempt", attempt+1),
							slog.String("outcome", s.Outcome.String()),
						)
					}
				}
			}
		}(w)
	}
	wg.Wait()

	return int(issued.Load())
}

// issue sends one request detached from cancellation, so an in-flight
// request is never aborted by a campaign stop.
func (r *Runner) issue(ctx context.Context, target *bench.Target, seq uint64, worker int, phaseStart time.Time) bench.Sample {
	if r.observer != nil {
		r.observer.RequestIssued(target.ID)
	}

	start := time.Since(phaseStart)
	attempt := r.transport.Issue(context.WithoutCancel(ctx), target)

	elapsed := attempt.Elapsed
	if elapsed < 0 {
		elapsed = 0
	}
	s := bench.Sample{
		Seq:     seq,
		Worker:  worker,
		Start:   start,
		Elapsed: elapsed,
		Outcome: attempt.Outcome,
		Bytes:   attempt.Bytes,
	}

	if !s.Outcome.IsSuccess() {
		r.logger.Debug("request failed",
			slog.String("target", target.ID),
			slog.Uint64("seq", seq),
			slog.String("outcome", s.Outcome.String()),
			slog.Duration("elapsed", s.Elapsed),
		)
	}
	if r.observer != nil {
		r.observer.SampleRecorded(target.ID, s)
	}
	return s
}

func (r *Runner) phaseChanged(targetID string, p bench.Phase) {
	if r.observer != nil {
		r.observer.PhaseChanged(targetID, p)
	}
}
