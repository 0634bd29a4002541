package rate

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestNewPacer(t *testing.T) {
	tests := []struct {
		name     string
		rate     float64
		wantNil  bool
		interval time.Duration
	}{
		{name: "positive rate", rate: 100, interval: 10 * time.Millisecond},
		{name: "fractional rate", rate: 0.5, interval: 2 * time.Second},
		{name: "zero rate disables pacing", rate: 0, wantNil: true},
		{name: "negative rate disables pacing", rate: -3, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPacer(tt.rate)
			if (p == nil) != tt.wantNil {
				t.Fatalf("NewPacer(%v) nil = %v, want %v", tt.rate, p == nil, tt.wantNil)
			}
			if got := p.Interval(); got != tt.interval {
				t.Errorf("Interval() = %v, want %v", got, tt.interval)
			}
		})
	}
}

func TestPacer_ReserveSpacesSlots(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewPacer(100)
	p.now = func() time.Time { return base }

	for i := 0; i < 5; i++ {
		want := base.Add(time.Duration(i) * 10 * time.Millisecond)
		if got := p.Reserve(); !got.Equal(want) {
			t.Errorf("Reserve() #%d = %v, want %v", i, got.Sub(base), want.Sub(base))
		}
	}

	if got := p.Stats().Reserved; got != 5 {
		t.Errorf("Stats().Reserved = %d, want 5", got)
	}
	// 0 + 10 + 20 + 30 + 40 ms waited.
	if got := p.Stats().Waited; got != 100*time.Millisecond {
		t.Errorf("Stats().Waited = %v, want 100ms", got)
	}
}

func TestPacer_NoBurstAfterIdle(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	p := NewPacer(10)
	p.now = func() time.Time { return now }

	p.Reserve()
	now = base.Add(5 * time.Second)

	if got := p.Reserve(); !got.Equal(now) {
		t.Errorf("Reserve() after idle = %v, want now", got.Sub(base))
	}
	if got := p.Reserve(); !got.Equal(now.Add(100 * time.Millisecond)) {
		t.Errorf("Reserve() = %v, want now+100ms", got.Sub(base))
	}
}

func TestPacer_WaitRespectsContext(t *testing.T) {
	p := NewPacer(1)
	_ = p.Reserve()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.Wait(ctx)
	if err != context.DeadlineExceeded {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Wait() took %v after cancellation", elapsed)
	}
}

func TestPacer_NilNeverBlocks(t *testing.T) {
	var p *Pacer
	if err := p.Wait(context.Background()); err != nil {
		t.Errorf("Wait() on nil pacer = %v", err)
	}
	if s := p.Stats(); s.Reserved != 0 {
		t.Errorf("Stats() on nil pacer = %+v", s)
	}
}

func TestPacer_ConcurrentRate(t *testing.T) {
	p := NewPacer(200)

	const workers = 4
	const perWorker = 10

	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if err := p.Wait(context.Background()); err != nil {
					t.Errorf("Wait() error = %v", err)
				}
			}
		}()
	}
	wg.Wait()

	// 40 slots at 5ms spacing: the last starts 195ms after the first.
	if elapsed := time.Since(start); elapsed < 180*time.Millisecond {
		t.Errorf("40 paced waits finished in %v, want at least ~195ms", elapsed)
	}
}
