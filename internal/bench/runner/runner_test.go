package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/volley/internal/bench"
)

// fakeTransport sleeps for delay and answers with outcome(n), where n counts
// calls from zero.
type fakeTransport struct {
	delay   time.Duration
	outcome func(n int64) bench.Outcome

	calls       atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
	ctxErrs     atomic.Int64
}

func (f *fakeTransport) Issue(ctx context.Context, _ *bench.Target) bench.Attempt {
	n := f.calls.Add(1) - 1
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		prev := f.maxInFlight.Load()
		if cur <= prev || f.maxInFlight.CompareAndSwap(prev, cur) {
			break
		}
	}

	start := time.Now()
	time.Sleep(f.delay)
	if ctx.Err() != nil {
		f.ctxErrs.Add(1)
	}

	outcome := bench.Success(200)
	if f.outcome != nil {
		outcome = f.outcome(n)
	}
	return bench.Attempt{Elapsed: time.Since(start), Outcome: outcome, Bytes: 2}
}

func target() *bench.Target {
	return &bench.Target{ID: "api", URL: "http://example.test/"}
}

func TestRun_StructuralErrors(t *testing.T) {
	valid := Plan{Measured: 10, Concurrency: 1}

	tests := []struct {
		name   string
		target *bench.Target
		plan   Plan
		field  string
	}{
		{name: "zero iterations", target: target(), plan: Plan{Measured: 0, Concurrency: 1}, field: "iterations"},
		{name: "zero concurrency", target: target(), plan: Plan{Measured: 10, Concurrency: 0}, field: "concurrency"},
		{name: "negative warmup", target: target(), plan: Plan{Measured: 10, Concurrency: 1, Warmup: -1}, field: "warmup"},
		{name: "negative retries", target: target(), plan: Plan{Measured: 10, Concurrency: 1, WarmupRetries: -1}, field: "warmupRetries"},
		{name: "negative rate", target: target(), plan: Plan{Measured: 10, Concurrency: 1, Rate: -5}, field: "rate"},
		{name: "missing url", target: &bench.Target{ID: "api"}, plan: valid, field: "target.url"},
		{name: "ftp scheme", target: &bench.Target{ID: "api", URL: "ftp://example.com/x"}, plan: valid, field: "target.url"},
		{name: "unresolved variable", target: &bench.Target{ID: "api", URL: "{{baseUrl}}/users"}, plan: valid, field: "target.url"},
		{name: "no scheme", target: &bench.Target{ID: "api", URL: "localhost:8080/health"}, plan: valid, field: "target.url"},
		{name: "no host", target: &bench.Target{ID: "api", URL: "http:///health"}, plan: valid, field: "target.url"},
		{name: "method with space", target: &bench.Target{ID: "api", Method: "GE T", URL: "http://x/"}, plan: valid, field: "target.method"},
		{name: "method with separator", target: &bench.Target{ID: "api", Method: "GET/1", URL: "http://x/"}, plan: valid, field: "target.method"},
		{name: "missing id", target: &bench.Target{URL: "http://x/"}, plan: valid, field: "target.id"},
		{name: "nil target", target: nil, plan: valid, field: "target"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := &fakeTransport{}
			store, err := New(ft).Run(context.Background(), tt.target, tt.plan)

			assert.Nil(t, store)
			var ce *CampaignError
			require.True(t, errors.As(err, &ce), "error = %v", err)
			assert.Equal(t, tt.field, ce.Field)
			assert.Zero(t, ft.calls.Load(), "no request may be issued")
		})
	}
}

func TestValidate_AcceptsWellFormedTargets(t *testing.T) {
	plan := Plan{Measured: 1, Concurrency: 1}
	for _, tg := range []*bench.Target{
		{ID: "a", URL: "http://example.test/"},
		{ID: "b", URL: "https://example.test:8443/items?q=1"},
		{ID: "c", Method: "PURGE", URL: "http://127.0.0.1:8080"},
		{ID: "d", Method: "M-SEARCH", URL: "http://[::1]/"},
	} {
		assert.NoError(t, Validate(tg, plan), tg.URL)
	}
}

func TestRun_ConcurrentSuccesses(t *testing.T) {
	ft := &fakeTransport{delay: 10 * time.Millisecond}

	store, err := New(ft).Run(context.Background(), target(), Plan{Measured: 50, Concurrency: 5})
	require.NoError(t, err)

	samples := store.Measured()
	require.Len(t, samples, 50)
	seqs := make(map[uint64]bool)
	for _, s := range samples {
		assert.True(t, s.Outcome.IsSuccess())
		assert.Less(t, s.Worker, 5)
		seqs[s.Seq] = true
	}
	assert.Len(t, seqs, 50, "every issue index must be distinct")
	assert.LessOrEqual(t, ft.maxInFlight.Load(), int64(5))
	assert.True(t, store.Sealed())
	assert.False(t, store.Cancelled())
}

func TestRun_SequentialIsStrict(t *testing.T) {
	ft := &fakeTransport{delay: time.Millisecond}

	store, err := New(ft).Run(context.Background(), target(), Plan{Measured: 20, Concurrency: 1})
	require.NoError(t, err)

	assert.Equal(t, int64(1), ft.maxInFlight.Load())
	for i, s := range store.Measured() {
		assert.Equal(t, uint64(i), s.Seq, "sequential samples complete in issue order")
		assert.Equal(t, 0, s.Worker)
	}
}

func TestRun_FailuresDoNotAbort(t *testing.T) {
	ft := &fakeTransport{outcome: func(n int64) bench.Outcome {
		switch n % 3 {
		case 0:
			return bench.Failure(bench.ReasonTimeout)
		case 1:
			return bench.UnexpectedStatus(500)
		}
		return bench.Success(200)
	}}

	store, err := New(ft).Run(context.Background(), target(), Plan{Measured: 30, Concurrency: 3})
	require.NoError(t, err)
	assert.Equal(t, 30, store.Len())

	failures := 0
	for _, s := range store.Measured() {
		if !s.Outcome.IsSuccess() {
			failures++
		}
	}
	assert.Equal(t, 20, failures)
}

func TestRun_WarmupKeptApart(t *testing.T) {
	ft := &fakeTransport{}

	store, err := New(ft).Run(context.Background(), target(), Plan{Warmup: 5, Measured: 10, Concurrency: 2})
	require.NoError(t, err)

	assert.Len(t, store.Warmup(), 5)
	assert.Equal(t, 10, store.Len())
	assert.Equal(t, int64(15), ft.calls.Load())
}

func TestRun_WarmupRetries(t *testing.T) {
	// Calls 0..2 fail; the first warmup request is retried until call 3
	// succeeds. Measured requests start at call 4.
	ft := &fakeTransport{outcome: func(n int64) bench.Outcome {
		if n < 3 {
			return bench.Failure(bench.ReasonConnection)
		}
		return bench.Success(200)
	}}

	store, err := New(ft).Run(context.Background(), target(), Plan{Warmup: 1, WarmupRetries: 5, Measured: 4, Concurrency: 1})
	require.NoError(t, err)

	warmup := store.Warmup()
	require.Len(t, warmup, 4)
	for _, s := range warmup[:3] {
		assert.False(t, s.Outcome.IsSuccess())
	}
	assert.True(t, warmup[3].Outcome.IsSuccess())

	for _, s := range store.Measured() {
		assert.True(t, s.Outcome.IsSuccess())
	}
}

func TestRun_WarmupRetryBudgetExhausted(t *testing.T) {
	ft := &fakeTransport{outcome: func(int64) bench.Outcome { return bench.Failure(bench.ReasonConnection) }}

	store, err := New(ft).Run(context.Background(), target(), Plan{Warmup: 2, WarmupRetries: 1, Measured: 3, Concurrency: 1})
	require.NoError(t, err)

	assert.Len(t, store.Warmup(), 4, "two requests, two attempts each")
	assert.Equal(t, 3, store.Len())
}

func TestRun_CancellationRecordsInFlight(t *testing.T) {
	ft := &fakeTransport{delay: 50 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())

	var once sync.Once
	obs := &recordingObserver{onIssue: func() {
		once.Do(func() {
			go func() {
				time.Sleep(10 * time.Millisecond)
				cancel()
			}()
		})
	}}

	store, err := New(ft, WithObserver(obs)).Run(ctx, target(), Plan{Measured: 1000, Concurrency: 4})
	require.NoError(t, err)

	assert.True(t, store.Cancelled())
	assert.True(t, store.Sealed())
	assert.Less(t, store.Len(), 1000)
	assert.Equal(t, int(ft.calls.Load()), store.Len(), "every issued request must be recorded")
	assert.Zero(t, ft.ctxErrs.Load(), "in-flight requests must not see the cancellation")
}

func TestRun_PlanTimeoutStopsIssuing(t *testing.T) {
	ft := &fakeTransport{delay: 5 * time.Millisecond}

	store, err := New(ft).Run(context.Background(), target(), Plan{Measured: 100000, Concurrency: 2, Timeout: 30 * time.Millisecond})
	require.NoError(t, err)

	assert.True(t, store.Cancelled())
	assert.Equal(t, int(ft.calls.Load()), store.Len())
}

func TestRun_Paced(t *testing.T) {
	ft := &fakeTransport{}

	start := time.Now()
	store, err := New(ft).Run(context.Background(), target(), Plan{Measured: 6, Concurrency: 3, Rate: 100})
	require.NoError(t, err)

	assert.Equal(t, 6, store.Len())
	assert.GreaterOrEqual(t, time.Since(start), 45*time.Millisecond, "6 requests at 100/s span 50ms")
}

func TestRun_ObserverSeesPhases(t *testing.T) {
	obs := &recordingObserver{}

	_, err := New(&fakeTransport{}, WithObserver(obs)).Run(context.Background(), target(), Plan{Warmup: 2, Measured: 3, Concurrency: 1})
	require.NoError(t, err)

	assert.Equal(t, []bench.Phase{bench.PhaseWarmup, bench.PhaseMeasured, bench.PhaseDone}, obs.phases)
	assert.Equal(t, int64(5), obs.issued.Load())
	assert.Equal(t, int64(5), obs.recorded.Load())
}

type recordingObserver struct {
	onIssue func()

	mu       sync.Mutex
	phases   []bench.Phase
	issued   atomic.Int64
	recorded atomic.Int64
}

func (o *recordingObserver) PhaseChanged(_ string, p bench.Phase) {
	o.mu.Lock()
	o.phases = append(o.phases, p)
	o.mu.Unlock()
}

func (o *recordingObserver) RequestIssued(string) {
	o.issued.Add(1)
	if o.onIssue != nil {
		o.onIssue()
	}
}

func (o *recordingObserver) SampleRecorded(string, bench.Sample) {
	o.recorded.Add(1)
}
