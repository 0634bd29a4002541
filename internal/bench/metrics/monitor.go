// Package metrics keeps live, approximate counters for progress display.
//
// The numbers here come from HDR histograms with microsecond resolution and
// are never used for the reported statistics, which are computed exactly from
// the sample store once a campaign drains.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/wesleyorama2/volley/internal/bench"
)

const (
	// Histogram range: 1 microsecond to 1 hour, 3 significant figures.
	histMin     = 1
	histMax     = 3_600_000_000
	histSigFigs = 3
)

// Monitor tracks every target of a campaign while it runs.
//
// Counters are atomic; histograms are guarded by a per-target mutex because
// hdrhistogram is not safe for concurrent recording. Monitor is safe for
// concurrent use.
type Monitor struct {
	startTime time.Time

	mu      sync.RWMutex
	targets map[string]*targetMetrics
}

type targetMetrics struct {
	expected int

	issued    atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	inFlight  atomic.Int64
	bytes     atomic.Int64

	phaseMu    sync.RWMutex
	phase      bench.Phase
	phaseStart time.Time

	histMu sync.Mutex
	hist   *hdrhistogram.Histogram
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{
		startTime: time.Now(),
		targets:   make(map[string]*targetMetrics),
	}
}

// Register announces a target and the number of measured requests it will
// issue. Registering twice resets the target.
func (m *Monitor) Register(targetID string, expected int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets[targetID] = &targetMetrics{
		expected:   expected,
		phase:      bench.PhaseInit,
		phaseStart: time.Now(),
		hist:       hdrhistogram.New(histMin, histMax, histSigFigs),
	}
}

func (m *Monitor) target(targetID string) *targetMetrics {
	m.mu.RLock()
	tm, ok := m.targets[targetID]
	m.mu.RUnlock()
	if ok {
		return tm
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if tm, ok = m.targets[targetID]; !ok {
		tm = &targetMetrics{
			phase:      bench.PhaseInit,
			phaseStart: time.Now(),
			hist:       hdrhistogram.New(histMin, histMax, histSigFigs),
		}
		m.targets[targetID] = tm
	}
	return tm
}

// PhaseChanged records a phase transition. Entering the measured phase
// clears the warmup counters.
func (m *Monitor) PhaseChanged(targetID string, phase bench.Phase) {
	tm := m.target(targetID)

	tm.phaseMu.Lock()
	tm.phase = phase
	tm.phaseStart = time.Now()
	tm.phaseMu.Unlock()

	if phase == bench.PhaseMeasured {
		tm.issued.Store(0)
		tm.succeeded.Store(0)
		tm.failed.Store(0)
		tm.bytes.Store(0)
		tm.histMu.Lock()
		tm.hist.Reset()
		tm.histMu.Unlock()
	}
}

// RequestIssued marks one request as in flight.
func (m *Monitor) RequestIssued(targetID string) {
	tm := m.target(targetID)
	tm.issued.Add(1)
	tm.inFlight.Add(1)
}

// SampleRecorded marks one request as complete.
func (m *Monitor) SampleRecorded(targetID string, s bench.Sample) {
	tm := m.target(targetID)
	tm.inFlight.Add(-1)
	tm.bytes.Add(s.Bytes)

	if !s.Outcome.IsSuccess() {
		tm.failed.Add(1)
		return
	}
	tm.succeeded.Add(1)

	micros := s.Elapsed.Microseconds()
	if micros < histMin {
		micros = histMin
	}
	if micros > histMax {
		micros = histMax
	}
	tm.histMu.Lock()
	_ = tm.hist.RecordValue(micros)
	tm.histMu.Unlock()
}

// TargetSnapshot is a point-in-time view of one target.
type TargetSnapshot struct {
	TargetID  string        `json:"targetId"`
	Phase     bench.Phase   `json:"phase"`
	Expected  int           `json:"expected"`
	Issued    int64         `json:"issued"`
	Succeeded int64         `json:"succeeded"`
	Failed    int64         `json:"failed"`
	InFlight  int64         `json:"inFlight"`
	Bytes     int64         `json:"bytes"`
	RPS       float64       `json:"rps"`
	P50       time.Duration `json:"p50"`
	P95       time.Duration `json:"p95"`
	P99       time.Duration `json:"p99"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Completed returns the number of finished requests in the current phase.
func (s TargetSnapshot) Completed() int64 {
	return s.Succeeded + s.Failed
}

// Progress returns the measured-phase completion ratio in [0, 1].
func (s TargetSnapshot) Progress() float64 {
	switch {
	case s.Phase == bench.PhaseDone:
		return 1
	case s.Phase != bench.PhaseMeasured || s.Expected <= 0:
		return 0
	}
	p := float64(s.Completed()) / float64(s.Expected)
	if p > 1 {
		p = 1
	}
	return p
}

// Snapshot is a point-in-time view of the whole campaign.
type Snapshot struct {
	Targets   []TargetSnapshot `json:"targets"`
	Elapsed   time.Duration    `json:"elapsed"`
	Timestamp time.Time        `json:"timestamp"`
}

// Done reports whether every target has finished.
func (s *Snapshot) Done() bool {
	for _, t := range s.Targets {
		if t.Phase != bench.PhaseDone {
			return false
		}
	}
	return len(s.Targets) > 0
}

// Snapshot returns the current state of every target, ordered by id.
func (m *Monitor) Snapshot() *Snapshot {
	m.mu.RLock()
	ids := make([]string, 0, len(m.targets))
	for id := range m.targets {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)

	now := time.Now()
	snap := &Snapshot{
		Targets:   make([]TargetSnapshot, 0, len(ids)),
		Elapsed:   now.Sub(m.startTime),
		Timestamp: now,
	}
	for _, id := range ids {
		snap.Targets = append(snap.Targets, m.target(id).snapshot(id, now))
	}
	return snap
}

func (tm *targetMetrics) snapshot(id string, now time.Time) TargetSnapshot {
	tm.phaseMu.RLock()
	phase, phaseStart := tm.phase, tm.phaseStart
	tm.phaseMu.RUnlock()

	ts := TargetSnapshot{
		TargetID:  id,
		Phase:     phase,
		Expected:  tm.expected,
		Issued:    tm.issued.Load(),
		Succeeded: tm.succeeded.Load(),
		Failed:    tm.failed.Load(),
		InFlight:  tm.inFlight.Load(),
		Bytes:     tm.bytes.Load(),
		Elapsed:   now.Sub(phaseStart),
	}
	if secs := ts.Elapsed.Seconds(); secs > 0 && phase != bench.PhaseDone {
		ts.RPS = float64(ts.Completed()) / secs
	}

	tm.histMu.Lock()
	if tm.hist.TotalCount() > 0 {
		ts.P50 = time.Duration(tm.hist.ValueAtQuantile(50)) * time.Microsecond
		ts.P95 = time.Duration(tm.hist.ValueAtQuantile(95)) * time.Microsecond
		ts.P99 = time.Duration(tm.hist.ValueAtQuantile(99)) * time.Microsecond
	}
	tm.histMu.Unlock()
	return ts
}
