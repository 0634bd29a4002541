// Package report assembles campaign metadata, summaries and comparisons into
// the serializable Report that renderers consume.
package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/wesleyorama2/volley/internal/bench/compare"
	"github.com/wesleyorama2/volley/internal/bench/runner"
	"github.com/wesleyorama2/volley/internal/bench/stats"
)

// SchemaVersion is the version of the JSON document written by Encode.
const SchemaVersion = 1

// TargetInfo identifies a target and the plan it ran with.
type TargetInfo struct {
	ID     string      `json:"id"`
	Name   string      `json:"name,omitempty"`
	Method string      `json:"method,omitempty"`
	URL    string      `json:"url,omitempty"`
	Plan   runner.Plan `json:"plan"`

	// Error is set when the target could not run, e.g. an invalid plan.
	Error string `json:"error,omitempty"`
}

// Metadata describes one campaign.
type Metadata struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`

	Targets []TargetInfo `json:"targets"`

	Statistics stats.Options   `json:"statistics"`
	Comparison compare.Options `json:"comparison"`
}

// NewMetadata returns metadata with a fresh campaign id and start time.
func NewMetadata(name string) Metadata {
	return Metadata{
		ID:        uuid.NewString(),
		Name:      name,
		StartedAt: time.Now().UTC(),
	}
}

// Result pairs a target with its Summary.
type Result struct {
	Target  TargetInfo     `json:"target"`
	Summary *stats.Summary `json:"summary"`
}

// Report is the complete outcome of a campaign.
type Report struct {
	SchemaVersion int               `json:"schemaVersion"`
	Campaign      Metadata          `json:"campaign"`
	Results       []Result          `json:"results"`
	Comparisons   []*compare.Result `json:"comparisons"`
	Notes         []string          `json:"notes"`
}

// Build assembles a Report. It computes nothing: every target in
// meta.Targets gets exactly one Summary, the empty variant when none was
// given, and the first Summary wins when a target appears twice. Summaries
// for targets missing from meta.Targets are appended with a synthesized
// target entry.
func Build(meta Metadata, summaries []*stats.Summary, comparisons []*compare.Result) *Report {
	byTarget := make(map[string]*stats.Summary, len(summaries))
	var order []string
	for _, s := range summaries {
		if s == nil {
			continue
		}
		if _, dup := byTarget[s.TargetID]; dup {
			continue
		}
		byTarget[s.TargetID] = s
		order = append(order, s.TargetID)
	}

	r := &Report{
		SchemaVersion: SchemaVersion,
		Campaign:      meta,
		Results:       make([]Result, 0, len(meta.Targets)),
		Comparisons:   make([]*compare.Result, 0, len(comparisons)),
		Notes:         []string{},
	}
	r.Campaign.Targets = append([]TargetInfo(nil), meta.Targets...)

	known := make(map[string]bool, len(meta.Targets))
	for _, t := range meta.Targets {
		if known[t.ID] {
			continue
		}
		known[t.ID] = true

		s, ok := byTarget[t.ID]
		if !ok {
			s = stats.Empty(t.ID)
		}
		r.Results = append(r.Results, Result{Target: t, Summary: s})
	}

	for _, id := range order {
		if known[id] {
			continue
		}
		t := TargetInfo{ID: id}
		r.Campaign.Targets = append(r.Campaign.Targets, t)
		r.Results = append(r.Results, Result{Target: t, Summary: byTarget[id]})
	}

	for _, c := range comparisons {
		if c != nil {
			r.Comparisons = append(r.Comparisons, c)
		}
	}
	return r
}

// AddNote appends a free-form note, e.g. a comparison that could not run.
func (r *Report) AddNote(note string) {
	r.Notes = append(r.Notes, note)
}

// Find returns the result for a target.
func (r *Report) Find(targetID string) (*Result, bool) {
	for i := range r.Results {
		if r.Results[i].Target.ID == targetID {
			return &r.Results[i], true
		}
	}
	return nil, false
}

// Regressed reports whether any comparison flagged a regression.
func (r *Report) Regressed() bool {
	for _, c := range r.Comparisons {
		if c.Regressed {
			return true
		}
	}
	return false
}

// Failed reports whether any target could not run.
func (r *Report) Failed() bool {
	for _, res := range r.Results {
		if res.Target.Error != "" {
			return true
		}
	}
	return false
}

// Duration returns the campaign wall time.
func (r *Report) Duration() time.Duration {
	if r.Campaign.FinishedAt.IsZero() {
		return 0
	}
	return r.Campaign.FinishedAt.Sub(r.Campaign.StartedAt)
}
