package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/a-marczewski/huntdedup/internal/hunt"
	"github.com/a-marczewski/huntdedup/internal/similarity"
	"github.com/a-marczewski/huntdedup/internal/storage"
)

// countingFinder records how often the real search runs
type countingFinder struct {
	inner similarity.Finder
	calls int
}

func (f *countingFinder) FindSimilar(candidate hunt.Record, corpus []hunt.Record, threshold float64) []similarity.Match {
	f.calls++
	return f.inner.FindSimilar(candidate, corpus, threshold)
}

func (f *countingFinder) Weights() similarity.Weights {
	return f.inner.(*similarity.Detector).Weights()
}

var corpus = []hunt.Record{
	{ID: "H001", Title: "PowerShell script execution detection", Tactic: "Execution"},
	{ID: "H002", Title: "DNS tunneling detection", Tactic: "Exfiltration"},
}

var candidate = hunt.Record{Hypothesis: "Detect PowerShell script execution patterns", Tactic: "Execution"}

func newFinder(opts ...similarity.Option) *countingFinder {
	return &countingFinder{inner: similarity.NewDetector(opts...)}
}

func TestCacheHitsMemory(t *testing.T) {
	finder := newFinder()
	c := New(nil, finder, time.Hour, zap.NewNop())

	first := c.FindSimilar(candidate, corpus, 0.5)
	second := c.FindSimilar(candidate, corpus, 0.5)

	assert.Equal(t, 1, finder.calls)
	assert.Equal(t, first, second)
	require.Len(t, second, 1)
	assert.Equal(t, "H001", second[0].Record.ID)

	stats, err := c.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Hits)
	assert.Equal(t, 1, stats.Misses)
	assert.Equal(t, 1, stats.MemoryEntries)
}

func TestCacheKeyIncludesThreshold(t *testing.T) {
	finder := newFinder()
	c := New(nil, finder, time.Hour, nil)

	c.FindSimilar(candidate, corpus, 0.5)
	assert.Empty(t, c.FindSimilar(candidate, corpus, 0.95))
	assert.Equal(t, 2, finder.calls)
	assert.NotEqual(t, Key(candidate, 0.5, ""), Key(candidate, 0.95, ""))
}

func TestCacheInvalidatedByCorpusChange(t *testing.T) {
	finder := newFinder()
	c := New(nil, finder, time.Hour, nil)

	c.FindSimilar(candidate, corpus, 0.5)

	changed := append([]hunt.Record(nil), corpus...)
	changed[1].Title = "PowerShell script execution monitoring"
	matches := c.FindSimilar(candidate, changed, 0.5)

	assert.Equal(t, 2, finder.calls)
	assert.Len(t, matches, 2)
}

func TestCacheDisabled(t *testing.T) {
	finder := newFinder()
	c := New(nil, finder, 0, nil)

	c.FindSimilar(candidate, corpus, 0.5)
	c.FindSimilar(candidate, corpus, 0.5)
	assert.Equal(t, 2, finder.calls)

	stats, err := c.GetStats()
	require.NoError(t, err)
	assert.False(t, stats.Enabled)
}

func TestCacheExpires(t *testing.T) {
	finder := newFinder()
	c := New(nil, finder, time.Hour, nil)

	c.FindSimilar(candidate, corpus, 0.5)
	for _, e := range c.memory {
		e.Timestamp = time.Now().Add(-2 * time.Hour)
	}
	c.FindSimilar(candidate, corpus, 0.5)
	assert.Equal(t, 2, finder.calls)
}

func TestCachePersistsToDatabase(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "huntdedup.sqlite3"))
	require.NoError(t, err)
	defer db.Close()

	finder := newFinder()
	first := New(db.GetConnection(), finder, time.Hour, nil)
	want := first.FindSimilar(candidate, corpus, 0.5)
	require.Equal(t, 1, finder.calls)

	// A new cache over the same database starts with an empty memory map.
	second := New(db.GetConnection(), finder, time.Hour, nil)
	got := second.FindSimilar(candidate, corpus, 0.5)
	assert.Equal(t, 1, finder.calls)
	require.Len(t, got, len(want))
	assert.Equal(t, want[0].Index, got[0].Index)
	assert.InDelta(t, want[0].Score.Overall, got[0].Score.Overall, 1e-12)

	stats, err := second.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.StoredEntries)

	require.NoError(t, second.Clear())
	stats, err = second.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.StoredEntries)
	assert.Equal(t, 0, stats.MemoryEntries)
}

func TestCacheKeyedByWeights(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "huntdedup.sqlite3"))
	require.NoError(t, err)
	defer db.Close()

	defaults := newFinder()
	first := New(db.GetConnection(), defaults, time.Hour, nil)
	stale := first.FindSimilar(candidate, corpus, 0.3)
	require.NotEmpty(t, stale)

	keywordHeavy := similarity.Weights{Lexical: 0.1, Semantic: 0.1, Structural: 0.1, Keyword: 0.7}
	reweighted := newFinder(similarity.WithWeights(keywordHeavy))
	second := New(db.GetConnection(), reweighted, time.Hour, nil)
	got := second.FindSimilar(candidate, corpus, 0.3)

	assert.Equal(t, 1, reweighted.calls)
	want := similarity.NewDetector(similarity.WithWeights(keywordHeavy)).FindSimilar(candidate, corpus, 0.3)
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i].Score.Overall, got[i].Score.Overall, 1e-12)
	}
	assert.NotEqual(t, stale[0].Score.Overall, got[0].Score.Overall)

	stats, err := second.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.StoredEntries)
}
