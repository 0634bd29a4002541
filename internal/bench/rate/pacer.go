// Package rate paces request issuance for a campaign.
package rate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Pacer is a leaky bucket that hands out evenly spaced issue slots.
//
// Each Reserve claims the next slot: the later of now and the previous slot
// plus one interval. A caller that falls behind is not compensated with a
// burst; the schedule restarts from now. Workers of one target share a
// Pacer, so the combined issue rate stays at the configured value whatever
// the concurrency.
//
// Pacer is safe for concurrent use.
type Pacer struct {
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	next time.Time

	reserved atomic.Int64
	waited   atomic.Int64
}

// NewPacer creates a pacer for rate requests per second. A non-positive rate
// yields a nil Pacer, which never blocks.
func NewPacer(rate float64) *Pacer {
	if rate <= 0 {
		return nil
	}
	return &Pacer{
		interval: time.Duration(float64(time.Second) / rate),
		now:      time.Now,
	}
}

// Interval returns the spacing between slots.
func (p *Pacer) Interval() time.Duration {
	if p == nil {
		return 0
	}
	return p.interval
}

// Reserve claims the next slot and returns when it starts.
func (p *Pacer) Reserve() time.Time {
	now := p.now()

	p.mu.Lock()
	slot := p.next
	if slot.Before(now) {
		slot = now
	}
	p.next = slot.Add(p.interval)
	p.mu.Unlock()

	p.reserved.Add(1)
	if wait := slot.Sub(now); wait > 0 {
		p.waited.Add(int64(wait))
	}
	return slot
}

// Wait blocks until the caller's slot starts. It returns ctx.Err() if the
// context ends first; the slot is then lost.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return ctx.Err()
	}

	wait := time.Until(p.Reserve())
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Stats describes what a Pacer has done so far.
type Stats struct {
	Rate     float64       `json:"rate"`
	Reserved int64         `json:"reserved"`
	Waited   time.Duration `json:"waited"`
}

// Stats returns a snapshot of the pacer counters.
func (p *Pacer) Stats() Stats {
	if p == nil {
		return Stats{}
	}
	return Stats{
		Rate:     float64(time.Second) / float64(p.interval),
		Reserved: p.reserved.Load(),
		Waited:   time.Duration(p.waited.Load()),
	}
}
