package campaign

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/volley/internal/bench"
	"github.com/wesleyorama2/volley/internal/bench/compare"
	"github.com/wesleyorama2/volley/internal/bench/config"
	"github.com/wesleyorama2/volley/internal/bench/metrics"
	"github.com/wesleyorama2/volley/internal/bench/report"
	"github.com/wesleyorama2/volley/internal/bench/runner"
)

func newServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/slow":
			time.Sleep(20 * time.Millisecond)
			w.Write([]byte("slow"))
		case "/broken":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.Write([]byte("ok"))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func intPtr(v int) *int { return &v }

func buildConfig(baseURL string) *config.Config {
	cfg := &config.Config{
		Name:     "campaign-test",
		Settings: config.Settings{BaseURL: baseURL},
		Defaults: config.PlanConfig{Iterations: intPtr(20), Concurrency: intPtr(2)},
		Targets: []*config.TargetConfig{
			{ID: "fast", URL: "{{baseUrl}}/fast"},
			{ID: "slow", URL: "{{baseUrl}}/slow", PlanConfig: config.PlanConfig{Iterations: intPtr(5)}},
			{ID: "broken", URL: "{{baseUrl}}/broken"},
		},
		Compare: []config.ComparePair{
			{Baseline: "fast", Candidate: "slow"},
			{Baseline: "fast", Candidate: "broken"},
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestCampaign_Run(t *testing.T) {
	srv, hits := newServer(t)
	cfg := buildConfig(srv.URL)

	monitor := metrics.NewMonitor()
	c, err := New(cfg, WithObserver(monitor))
	require.NoError(t, err)

	rep, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(45), hits.Load())
	assert.Equal(t, "campaign-test", rep.Campaign.Name)
	assert.False(t, rep.Campaign.FinishedAt.Before(rep.Campaign.StartedAt))
	require.Len(t, rep.Results, 3)

	fast, ok := rep.Find("fast")
	require.True(t, ok)
	assert.Equal(t, 20, fast.Summary.Counts.Success)
	assert.Equal(t, srv.URL+"/fast", fast.Target.URL)
	assert.Equal(t, 2, fast.Target.Plan.Concurrency)

	broken, _ := rep.Find("broken")
	assert.Equal(t, 20, broken.Summary.Counts.Failure)
	assert.Equal(t, 20, broken.Summary.Counts.FailedStatus[http.StatusServiceUnavailable])
	assert.False(t, broken.Summary.Mean.Present())

	require.Len(t, rep.Comparisons, 2)
	assert.Equal(t, "fast", rep.Comparisons[0].Baseline)
	assert.Equal(t, "slow", rep.Comparisons[0].Candidate)
	assert.True(t, rep.Comparisons[0].Regressed)
	assert.False(t, rep.Comparisons[1].Regressed, "no key percentile on the all-failure side")
	assert.True(t, rep.Regressed())
	assert.Empty(t, rep.Notes)

	snap := monitor.Snapshot()
	assert.True(t, snap.Done())
	require.Len(t, snap.Targets, 3)
}

func TestCampaign_Sequential(t *testing.T) {
	srv, hits := newServer(t)
	cfg := buildConfig(srv.URL)
	cfg.Options.Sequential = true
	cfg.Compare = nil

	c, err := New(cfg)
	require.NoError(t, err)
	rep, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(45), hits.Load())
	assert.Empty(t, rep.Comparisons)
	assert.Empty(t, rep.Notes)
}

func TestCampaign_MalformedURLIsolated(t *testing.T) {
	srv, hits := newServer(t)
	cfg := buildConfig(srv.URL)
	cfg.Targets[1].URL = "{{apiUrl}}/slow"
	cfg.Compare = cfg.Compare[:1]

	c, err := New(cfg)
	require.NoError(t, err)
	rep, err := c.Run(context.Background())
	require.NoError(t, err)

	slow, ok := rep.Find("slow")
	require.True(t, ok)
	assert.Contains(t, slow.Target.Error, "target.url")
	assert.True(t, slow.Summary.IsEmpty())
	assert.True(t, rep.Failed())

	fast, _ := rep.Find("fast")
	assert.Equal(t, 20, fast.Summary.Counts.Total)
	assert.Equal(t, int64(40), hits.Load(), "the malformed target issues no request")
}

func TestCampaign_InvalidPlanIsolated(t *testing.T) {
	srv, _ := newServer(t)
	cfg := buildConfig(srv.URL)
	cfg.Targets[1].Concurrency = intPtr(0)
	cfg.Compare = cfg.Compare[:1]

	c, err := New(cfg)
	require.NoError(t, err)
	rep, err := c.Run(context.Background())
	require.NoError(t, err)

	slow, ok := rep.Find("slow")
	require.True(t, ok)
	assert.Contains(t, slow.Target.Error, "concurrency")
	assert.True(t, slow.Summary.IsEmpty())
	assert.True(t, rep.Failed())

	fast, _ := rep.Find("fast")
	assert.Equal(t, 20, fast.Summary.Counts.Total, "other targets still run")

	assert.Empty(t, rep.Comparisons)
	require.Len(t, rep.Notes, 1)
	assert.Contains(t, rep.Notes[0], "no measured samples")
}

func TestCampaign_InvalidConfig(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	_, err = New(&config.Config{})
	var verrs *config.ValidationErrors
	assert.True(t, errors.As(err, &verrs))
}

type blockingTransport struct {
	issued atomic.Int64
}

func (b *blockingTransport) Issue(ctx context.Context, _ *bench.Target) bench.Attempt {
	b.issued.Add(1)
	time.Sleep(5 * time.Millisecond)
	return bench.Attempt{Elapsed: 5 * time.Millisecond, Outcome: bench.Success(200)}
}

func TestCampaign_Cancelled(t *testing.T) {
	cfg := &config.Config{
		Targets:  []*config.TargetConfig{{ID: "a", URL: "http://unused.test"}},
		Defaults: config.PlanConfig{Iterations: intPtr(10_000)},
	}
	config.ApplyDefaults(cfg)

	transport := &blockingTransport{}
	c, err := New(cfg, WithTransport(transport))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	rep, err := c.Run(ctx)
	require.NoError(t, err)

	a, _ := rep.Find("a")
	assert.True(t, a.Summary.Cancelled)
	assert.Less(t, a.Summary.Counts.Total, 10_000)
	assert.Equal(t, int64(a.Summary.Counts.Total), transport.issued.Load())
	require.NotEmpty(t, rep.Notes)
	assert.True(t, strings.HasPrefix(rep.Notes[len(rep.Notes)-1], "campaign cancelled"))
}

func TestCompareReports(t *testing.T) {
	srv, _ := newServer(t)
	cfg := buildConfig(srv.URL)
	cfg.Compare = nil

	run := func() *report.Report {
		c, err := New(cfg, WithTransport(mustClient(t, cfg)))
		require.NoError(t, err)
		rep, err := c.Run(context.Background())
		require.NoError(t, err)
		return rep
	}
	baseline := run()
	candidate := run()
	candidate.Results = append(candidate.Results, report.Result{
		Target:  report.TargetInfo{ID: "new"},
		Summary: baseline.Results[0].Summary,
	})

	results, notes := CompareReports(baseline, candidate, compare.DefaultOptions())
	require.Len(t, results, 3)
	assert.Equal(t, "fast", results[0].Baseline)
	assert.Equal(t, "fast", results[0].Candidate)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], `"new" has no baseline`)
}

func TestCampaign_ComparisonOptions(t *testing.T) {
	srv, _ := newServer(t)

	zero, keyPercentile := 0.0, 50.0
	cfg := buildConfig(srv.URL)
	cfg.Compare = cfg.Compare[:1]
	cfg.Comparison = config.ComparisonConfig{Threshold: &zero, KeyPercentile: &keyPercentile}

	c, err := New(cfg)
	require.NoError(t, err)
	rep, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, compare.Options{Threshold: 0, KeyPercentile: 50, Alpha: compare.DefaultAlpha}, rep.Campaign.Comparison)
	require.Len(t, rep.Comparisons, 1)
	assert.Equal(t, 0.0, rep.Comparisons[0].Threshold, "an explicit zero threshold is not replaced")
	assert.Equal(t, 50.0, rep.Comparisons[0].KeyPercentile)

	cfg = buildConfig(srv.URL)
	cfg.Compare = nil
	c, err = New(cfg)
	require.NoError(t, err)
	rep, err = c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, compare.DefaultOptions(), rep.Campaign.Comparison)
}

func mustClient(t *testing.T, cfg *config.Config) runner.Transport {
	t.Helper()
	client, err := NewClient(cfg.Settings, nil)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}
