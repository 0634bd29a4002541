package bench

import (
	"errors"
	"sync"
)

// ErrSealed is returned when appending to a Store whose campaign has completed.
var ErrSealed = errors.New("sample store is sealed")

// Store is the append-only collection of Samples for one target.
//
// Warmup samples are kept for diagnostics only. Measured samples are kept in
// completion order. Appends are serialized by a single mutex; network latency
// dominates, so a lock-free structure buys nothing here.
//
// Store is safe for concurrent use.
type Store struct {
	targetID string

	mu        sync.Mutex
	warmup    []Sample
	measured  []Sample
	sealed    bool
	cancelled bool
}

// NewStore creates an empty store for the given target. capacity is a hint
// for the expected number of measured samples.
func NewStore(targetID string, capacity int) *Store {
	if capacity < 0 {
		capacity = 0
	}
	return &Store{
		targetID: targetID,
		measured: make([]Sample, 0, capacity),
	}
}

// TargetID returns the identifier of the target that produced the samples.
func (s *Store) TargetID() string {
	return s.targetID
}

// AppendWarmup records a warmup sample.
func (s *Store) AppendWarmup(sample Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return ErrSealed
	}
	s.warmup = append(s.warmup, sample)
	return nil
}

// Append records a measured sample.
func (s *Store) Append(sample Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return ErrSealed
	}
	s.measured = append(s.measured, sample)
	return nil
}

// Seal marks the campaign as complete. Further appends fail with ErrSealed.
func (s *Store) Seal() {
	s.mu.Lock()
	s.sealed = true
	s.mu.Unlock()
}

// Sealed reports whether the store has been sealed.
func (s *Store) Sealed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sealed
}

// MarkCancelled records that the campaign stopped issuing requests early.
func (s *Store) MarkCancelled() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
}

// Cancelled reports whether the campaign was cancelled before issuing every
// measured request.
func (s *Store) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Measured returns a copy of the measured samples in completion order.
func (s *Store) Measured() []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Sample, len(s.measured))
	copy(out, s.measured)
	return out
}

// Warmup returns a copy of the warmup samples in completion order.
func (s *Store) Warmup() []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Sample, len(s.warmup))
	copy(out, s.warmup)
	return out
}

// Len returns the number of measured samples.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.measured)
}
