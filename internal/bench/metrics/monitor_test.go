package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/wesleyorama2/volley/internal/bench"
)

func TestMonitor_CountsAndPercentiles(t *testing.T) {
	m := NewMonitor()
	m.Register("api", 100)
	m.PhaseChanged("api", bench.PhaseMeasured)

	for i := 1; i <= 100; i++ {
		m.RequestIssued("api")
		outcome := bench.Success(200)
		if i%10 == 0 {
			outcome = bench.Failure(bench.ReasonTimeout)
		}
		m.SampleRecorded("api", bench.Sample{Elapsed: time.Duration(i) * time.Millisecond, Outcome: outcome, Bytes: 10})
	}

	snap := m.Snapshot()
	if len(snap.Targets) != 1 {
		t.Fatalf("len(Targets) = %d, want 1", len(snap.Targets))
	}
	ts := snap.Targets[0]

	if ts.Issued != 100 || ts.Succeeded != 90 || ts.Failed != 10 {
		t.Errorf("counts = %d/%d/%d, want 100/90/10", ts.Issued, ts.Succeeded, ts.Failed)
	}
	if ts.InFlight != 0 {
		t.Errorf("InFlight = %d, want 0", ts.InFlight)
	}
	if ts.Bytes != 1000 {
		t.Errorf("Bytes = %d, want 1000", ts.Bytes)
	}
	if ts.Progress() != 1 {
		t.Errorf("Progress() = %v, want 1", ts.Progress())
	}
	// HDR values carry 3 significant figures.
	if ts.P50 < 45*time.Millisecond || ts.P50 > 55*time.Millisecond {
		t.Errorf("P50 = %v, want ~50ms", ts.P50)
	}
	if ts.P99 < ts.P95 || ts.P95 < ts.P50 {
		t.Errorf("percentiles not ordered: p50=%v p95=%v p99=%v", ts.P50, ts.P95, ts.P99)
	}
}

func TestMonitor_MeasuredPhaseClearsWarmup(t *testing.T) {
	m := NewMonitor()
	m.Register("api", 5)
	m.PhaseChanged("api", bench.PhaseWarmup)

	m.RequestIssued("api")
	m.SampleRecorded("api", bench.Sample{Elapsed: time.Second, Outcome: bench.Success(200)})

	m.PhaseChanged("api", bench.PhaseMeasured)

	ts := m.Snapshot().Targets[0]
	if ts.Phase != bench.PhaseMeasured {
		t.Errorf("Phase = %s, want measured", ts.Phase)
	}
	if ts.Issued != 0 || ts.Succeeded != 0 {
		t.Errorf("warmup counts leaked into measured: %+v", ts)
	}
	if ts.P99 != 0 {
		t.Errorf("P99 = %v, want 0 after reset", ts.P99)
	}
}

func TestMonitor_ConcurrentUse(t *testing.T) {
	m := NewMonitor()
	targets := []string{"a", "b", "c"}
	for _, id := range targets {
		m.Register(id, 200)
		m.PhaseChanged(id, bench.PhaseMeasured)
	}

	var wg sync.WaitGroup
	for _, id := range targets {
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					m.RequestIssued(id)
					m.SampleRecorded(id, bench.Sample{Elapsed: time.Millisecond, Outcome: bench.Success(200)})
				}
			}(id)
		}
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				_ = m.Snapshot()
			}
		}
	}()
	wg.Wait()
	close(done)

	snap := m.Snapshot()
	for i, ts := range snap.Targets {
		if ts.TargetID != targets[i] {
			t.Errorf("Targets[%d] = %s, want %s", i, ts.TargetID, targets[i])
		}
		if ts.Succeeded != 200 {
			t.Errorf("%s Succeeded = %d, want 200", ts.TargetID, ts.Succeeded)
		}
	}
}

func TestSnapshot_Done(t *testing.T) {
	m := NewMonitor()
	if m.Snapshot().Done() {
		t.Error("empty snapshot should not be done")
	}

	m.Register("a", 1)
	m.Register("b", 1)
	m.PhaseChanged("a", bench.PhaseDone)
	if m.Snapshot().Done() {
		t.Error("snapshot with a running target should not be done")
	}

	m.PhaseChanged("b", bench.PhaseDone)
	if !m.Snapshot().Done() {
		t.Error("all targets done, Done() = false")
	}
}
