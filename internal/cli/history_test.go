package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/volley/internal/bench/report"
	"github.com/wesleyorama2/volley/internal/bench/stats"
	"github.com/wesleyorama2/volley/internal/history"
)

func seedHistory(t *testing.T, dir string) []string {
	t.Helper()
	store, err := history.Open(dir)
	require.NoError(t, err)
	defer store.Close()

	var keys []string
	for i, name := range []string{"nightly", "nightly", "smoke"} {
		meta := report.NewMetadata(name)
		meta.Statistics = stats.DefaultOptions()
		meta.StartedAt = time.Date(2026, 1, 1+i, 2, 0, 0, 0, time.UTC)
		meta.FinishedAt = meta.StartedAt.Add(time.Minute)
		meta.Targets = []report.TargetInfo{{ID: "users", Method: "GET", URL: "http://example.test/users"}}
		rep := report.Build(meta, []*stats.Summary{summaryOf("users", 10, 11, 12)}, nil)

		key, err := store.Put(rep)
		require.NoError(t, err)
		keys = append(keys, key)
	}
	return keys
}

func TestHistoryList(t *testing.T) {
	dir := t.TempDir()
	keys := seedHistory(t, dir)

	out, err := execute(t, "history", "list", "nightly", "--history", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "2026-01-01")
	assert.Contains(t, out, "2026-01-02")
	assert.NotContains(t, out, "smoke")
	assert.Less(t, strings.Index(out, "2026-01-02"), strings.Index(out, "2026-01-01"), "newest first")

	out, err = execute(t, "history", "list", "--history", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "smoke")
	assert.Contains(t, out, keys[2])

	out, err = execute(t, "history", "list", "nothing", "--history", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "No stored runs")
}

func TestHistoryShow(t *testing.T) {
	dir := t.TempDir()
	keys := seedHistory(t, dir)

	out, err := execute(t, "history", "show", keys[0], "--history", dir, "--json")
	require.NoError(t, err)
	rep, err := report.Decode([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, "nightly", rep.Campaign.Name)

	out, err = execute(t, "history", "show", keys[2], "--history", dir, "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "smoke - PASSED")

	_, err = execute(t, "history", "show", "report/none/x/y", "--history", dir)
	require.ErrorIs(t, err, history.ErrNotFound)
}

func TestHistory_RequiresStore(t *testing.T) {
	_, err := execute(t, "history", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history")
}
