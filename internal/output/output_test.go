package output

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/volley/internal/bench"
	"github.com/wesleyorama2/volley/internal/bench/compare"
	"github.com/wesleyorama2/volley/internal/bench/metrics"
	"github.com/wesleyorama2/volley/internal/bench/report"
	"github.com/wesleyorama2/volley/internal/bench/stats"
)

func summaryOf(id string, ms ...int) *stats.Summary {
	opts := stats.DefaultOptions()
	opts.IncludeSeries = true
	samples := make([]bench.Sample, len(ms))
	for i, v := range ms {
		samples[i] = bench.Sample{
			Seq:     uint64(i),
			Start:   time.Duration(i) * time.Millisecond,
			Elapsed: time.Duration(v) * time.Millisecond,
			Outcome: bench.Success(200),
			Bytes:   512,
		}
	}
	return stats.FromSamples(id, samples, opts)
}

func sampleReport(t *testing.T) *report.Report {
	t.Helper()
	base := summaryOf("users", 10, 12, 11, 13, 10, 12, 11)
	cand := summaryOf("users-v2", 20, 22, 21, 23, 20, 22, 24)
	cmp, err := compare.Compare(base, cand, compare.DefaultOptions())
	require.NoError(t, err)

	meta := report.NewMetadata("api <latency>")
	meta.Statistics = stats.DefaultOptions()
	meta.FinishedAt = meta.StartedAt.Add(3 * time.Second)
	meta.Targets = []report.TargetInfo{
		{ID: "users", Method: "GET", URL: "http://example.test/users"},
		{ID: "users-v2", Method: "GET", URL: "http://example.test/v2/users"},
		{ID: "broken", Method: "GET", URL: "http://example.test/broken", Error: "invalid campaign: concurrency: must be at least 1, got 0"},
	}
	rep := report.Build(meta, []*stats.Summary{base, cand}, []*compare.Result{cmp})
	rep.AddNote("something to know")
	return rep
}

func TestUnit_Format(t *testing.T) {
	d := 1500 * time.Microsecond
	tests := []struct {
		unit Unit
		want string
	}{
		{UnitNanosecond, "1500000ns"},
		{UnitMicrosecond, "1500.00µs"},
		{UnitMillisecond, "1.50ms"},
		{UnitAuto, "1.50ms"},
	}
	for _, tt := range tests {
		t.Run(string(tt.unit), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.unit.Format(d))
		})
	}

	assert.Equal(t, "-", UnitAuto.FormatOptional(stats.None[time.Duration]()))
	assert.Equal(t, "2.00s", UnitAuto.Format(2*time.Second))
	assert.Equal(t, "2.500s", UnitSecond.Format(2500*time.Millisecond))
	assert.Equal(t, "12.5µs", UnitAuto.Format(12500*time.Nanosecond))
}

func TestParseUnit(t *testing.T) {
	for in, want := range map[string]Unit{"": UnitAuto, "NS": UnitNanosecond, "µs": UnitMicrosecond, "ms": UnitMillisecond, "s": UnitSecond} {
		got, err := ParseUnit(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseUnit("fortnight")
	assert.Error(t, err)
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "1,234,567", formatNumber(1234567))
	assert.Equal(t, "-1,000", formatNumber(-1000))
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "+12.5%", formatRelative(stats.Some(0.125)))
	assert.Equal(t, "-", formatRelative(stats.None[float64]()))
	assert.Equal(t, "1m 05s", formatDuration(65*time.Second))
	assert.Equal(t, "[█████░░░░░]", renderProgressBar(0.5, 10))
}

func TestConsole_PrintReport(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, NoColor: true, Unit: UnitMillisecond})

	require.NoError(t, c.PrintReport(sampleReport(t)))
	out := buf.String()

	assert.Contains(t, out, "api <latency> - FAILED")
	assert.Contains(t, out, "users-v2")
	assert.Contains(t, out, "concurrency: must be at least 1")
	assert.Contains(t, out, "Histogram:")
	assert.Contains(t, out, "Comparisons:")
	assert.Contains(t, out, "REGRESSED")
	assert.Contains(t, out, "something to know")
	assert.Contains(t, out, "10.00ms")
	assert.NotContains(t, out, "\033[", "no escape codes without color")
}

func TestConsole_PrintReportBootstrap(t *testing.T) {
	opts := stats.DefaultOptions()
	opts.Bootstrap = stats.BootstrapPolicy{Resamples: 200, Seed: 1}
	samples := make([]bench.Sample, 6)
	for i := range samples {
		samples[i] = bench.Sample{Seq: uint64(i), Elapsed: time.Duration(10+i) * time.Millisecond, Outcome: bench.Success(200)}
	}

	meta := report.NewMetadata("bootstrap")
	meta.Statistics = opts
	meta.Targets = []report.TargetInfo{{ID: "users", Method: "GET", URL: "http://example.test/users"}}
	rep := report.Build(meta, []*stats.Summary{stats.FromSamples("users", samples, opts)}, nil)

	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, NoColor: true, Unit: UnitMillisecond})
	require.NoError(t, c.PrintReport(rep))
	assert.Contains(t, buf.String(), "from 200 resampled means")
}

func TestConsole_Quiet(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, Quiet: true, NoColor: true})

	c.PrintHeader(2)
	c.Update(&metrics.Snapshot{})
	require.NoError(t, c.PrintReport(sampleReport(t)))
	assert.Equal(t, "FAILED ✗\n", buf.String())

	buf.Reset()
	require.NoError(t, c.PrintComparisons([]*compare.Result{{Regressed: true}}, nil))
	assert.Equal(t, "REGRESSED\n", buf.String())
}

func snapshot() *metrics.Snapshot {
	return &metrics.Snapshot{
		Elapsed: 2 * time.Second,
		Targets: []metrics.TargetSnapshot{
			{TargetID: "users", Phase: bench.PhaseMeasured, Expected: 100, Succeeded: 40, Failed: 10, RPS: 25, P95: 12 * time.Millisecond},
			{TargetID: "done", Phase: bench.PhaseDone, Expected: 10, Succeeded: 10},
		},
	}
}

func TestConsole_NonInteractiveUpdate(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, NoColor: true})
	require.False(t, c.IsTTY())

	c.PrintNonInteractiveUpdate(snapshot())
	out := buf.String()
	assert.Contains(t, out, "users measured | Progress: 50%")
	assert.Contains(t, out, "Failed: 10")
	assert.NotContains(t, out, "done", "finished targets are skipped")
}

func TestConsole_LiveRedraw(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, NoColor: true, ForceTTY: true})

	c.Update(snapshot())
	first := buf.String()
	assert.Contains(t, first, "users")
	assert.Equal(t, 3, strings.Count(first, "\n"))

	c.Update(snapshot())
	assert.Contains(t, buf.String()[len(first):], "\033[3A", "second draw moves the cursor back up")

	c.Clear()
	assert.Zero(t, c.linesOutput)
}

type fixedSource struct{ snap *metrics.Snapshot }

func (f fixedSource) Snapshot() *metrics.Snapshot { return f.snap }

func TestConsole_Watch(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, NoColor: true, UpdateInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	c.Watch(ctx, fixedSource{snapshot()})

	assert.Contains(t, buf.String(), "users measured")
}

func TestGenerateHTMLString(t *testing.T) {
	html, err := GenerateHTMLString(sampleReport(t))
	require.NoError(t, err)

	assert.Contains(t, html, "api &lt;latency&gt;", "names are escaped")
	assert.Contains(t, html, "<th>p95</th>")
	assert.Contains(t, html, "users-v2")
	assert.Contains(t, html, `"histogram":[`)
	assert.Contains(t, html, "something to know")

	_, err = GenerateHTMLString(nil)
	assert.Error(t, err)
}

func TestGenerateHTML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, GenerateHTML(sampleReport(t), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "<!DOCTYPE html>"))
}

func TestWriteJSON(t *testing.T) {
	rep := sampleReport(t)
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, rep))

	decoded, err := report.Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, rep.Campaign.ID, decoded.Campaign.ID)
}
