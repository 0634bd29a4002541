package history

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/volley/internal/bench"
	"github.com/wesleyorama2/volley/internal/bench/report"
	"github.com/wesleyorama2/volley/internal/bench/stats"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func makeReport(name string, started time.Time, ms ...int) *report.Report {
	samples := make([]bench.Sample, len(ms))
	for i, v := range ms {
		samples[i] = bench.Sample{Seq: uint64(i), Elapsed: time.Duration(v) * time.Millisecond, Outcome: bench.Success(200)}
	}
	meta := report.NewMetadata(name)
	meta.StartedAt = started
	meta.FinishedAt = started.Add(time.Second)
	meta.Targets = []report.TargetInfo{{ID: "api", URL: "http://example.test"}}
	return report.Build(meta, []*stats.Summary{stats.FromSamples("api", samples, stats.DefaultOptions())}, nil)
}

func TestStore_PutGet(t *testing.T) {
	s := newStore(t)
	r := makeReport("nightly", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), 10, 20, 30)

	key, err := s.Put(r)
	require.NoError(t, err)
	assert.Equal(t, Key(r), key)

	got, err := s.Get(key)
	require.NoError(t, err)
	assert.Equal(t, r.Campaign.ID, got.Campaign.ID)
	res, ok := got.Find("api")
	require.True(t, ok)
	assert.Equal(t, 20*time.Millisecond, res.Summary.Median.Or(0))
}

func TestStore_GetMissing(t *testing.T) {
	s := newStore(t)
	_, err := s.Get("report/none/x/y")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStore_Latest(t *testing.T) {
	s := newStore(t)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	older := makeReport("nightly", base, 10)
	newer := makeReport("nightly", base.Add(24*time.Hour), 20)
	other := makeReport("nightly-v2", base.Add(48*time.Hour), 30)
	for _, r := range []*report.Report{newer, older, other} {
		_, err := s.Put(r)
		require.NoError(t, err)
	}

	latest, err := s.Latest("nightly")
	require.NoError(t, err)
	assert.Equal(t, newer.Campaign.ID, latest.Campaign.ID, "a name is not a prefix match")

	_, err = s.Latest("weekly")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStore_List(t *testing.T) {
	s := newStore(t)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := s.Put(makeReport("api/users", base.Add(time.Duration(i)*time.Minute), 10))
		require.NoError(t, err)
	}
	_, err := s.Put(makeReport("other", base, 10))
	require.NoError(t, err)

	entries, err := s.List("api/users")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "api/users", entries[0].Name)
	assert.True(t, entries[0].StartedAt.After(entries[1].StartedAt), "newest first")
	assert.True(t, entries[1].StartedAt.After(entries[2].StartedAt))
	assert.Positive(t, entries[0].Size)

	all, err := s.List("")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestOpen_Persistent(t *testing.T) {
	dir := t.TempDir()
	r := makeReport("nightly", time.Now().UTC(), 1, 2, 3)

	s, err := Open(dir)
	require.NoError(t, err)
	key, err := s.Put(r)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(key)
	require.NoError(t, err)
	assert.Equal(t, r.Campaign.ID, got.Campaign.ID)

	_, err = Open("")
	assert.Error(t, err)
}

func TestParseKey(t *testing.T) {
	started := time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)
	key := "report/a%2Fb/" + started.Format(timeLayout) + "/id-1"

	entry, ok := parseKey(key)
	require.True(t, ok)
	assert.Equal(t, "a/b", entry.Name)
	assert.Equal(t, "id-1", entry.ID)
	assert.True(t, started.Equal(entry.StartedAt))

	_, ok = parseKey("report/short")
	assert.False(t, ok)
	_, ok = parseKey("report/a/not-a-time/id")
	assert.False(t, ok)
}
