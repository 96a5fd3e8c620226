// Package cache memoises corpus similarity searches so repeated checks of
// the same candidate against an unchanged corpus skip the scorers.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/a-marczewski/huntdedup/internal/hunt"
	"github.com/a-marczewski/huntdedup/internal/similarity"
)

// Cache wraps a similarity.Finder. Entries are keyed by candidate content,
// threshold and scorer weights, and are only served while the corpus
// fingerprint and the TTL still match.
type Cache struct {
	db      *sql.DB
	inner   similarity.Finder
	scorer  string
	memory  map[string]*entry
	mu      sync.RWMutex
	ttl     time.Duration
	enabled bool
	logger  *zap.Logger
	hits    int
	misses  int
}

// entry is a cached search result
type entry struct {
	Key               string
	CorpusFingerprint string
	Matches           []storedMatch
	Timestamp         time.Time
}

// storedMatch refers to the corpus by index so the payload stays small.
type storedMatch struct {
	Index int              `json:"index"`
	Score similarity.Score `json:"score"`
}

// Stats reports cache usage
type Stats struct {
	Enabled       bool `json:"enabled"`
	MemoryEntries int  `json:"memory_entries"`
	StoredEntries int  `json:"stored_entries"`
	Hits          int  `json:"hits"`
	Misses        int  `json:"misses"`
}

// New creates a cache in front of inner. db may be nil for a memory-only
// cache. A non-positive ttl disables caching.
func New(db *sql.DB, inner similarity.Finder, ttl time.Duration, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		db:      db,
		inner:   inner,
		scorer:  scorerSignature(inner),
		memory:  make(map[string]*entry),
		ttl:     ttl,
		enabled: ttl > 0 && inner != nil,
		logger:  logger,
	}
}

// weighted is implemented by finders whose scores depend on a weighting,
// such as *similarity.Detector.
type weighted interface {
	Weights() similarity.Weights
}

// scorerSignature identifies the scoring configuration of inner so entries
// written under other weights are never served.
func scorerSignature(inner similarity.Finder) string {
	w, ok := inner.(weighted)
	if !ok {
		return ""
	}
	weights := w.Weights()
	parts := []float64{weights.Lexical, weights.Semantic, weights.Structural, weights.Keyword}
	out := make([]byte, 0, 64)
	for i, v := range parts {
		if i > 0 {
			out = append(out, '/')
		}
		out = strconv.AppendFloat(out, v, 'g', -1, 64)
	}
	return string(out)
}

// Key identifies a search for candidate at threshold by a scorer with the
// given signature.
func Key(candidate hunt.Record, threshold float64, scorer string) string {
	h := sha256.New()
	h.Write([]byte(candidate.Hash()))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(threshold, 'g', -1, 64)))
	h.Write([]byte{0})
	h.Write([]byte(scorer))
	return hex.EncodeToString(h.Sum(nil))
}

// FindSimilar implements similarity.Finder.
func (c *Cache) FindSimilar(candidate hunt.Record, corpus []hunt.Record, threshold float64) []similarity.Match {
	if !c.enabled {
		return c.inner.FindSimilar(candidate, corpus, threshold)
	}

	key := Key(candidate, threshold, c.scorer)
	fingerprint := hunt.Fingerprint(corpus)

	c.mu.RLock()
	cached, exists := c.memory[key]
	c.mu.RUnlock()
	if exists && c.valid(cached, fingerprint) {
		if matches, ok := resolve(cached.Matches, corpus); ok {
			c.recordHit()
			return matches
		}
	}

	if c.db != nil {
		if stored, err := c.getFromDB(key, fingerprint); err == nil && stored != nil {
			if matches, ok := resolve(stored.Matches, corpus); ok {
				c.mu.Lock()
				c.memory[key] = stored
				c.hits++
				c.mu.Unlock()
				return matches
			}
		}
	}

	matches := c.inner.FindSimilar(candidate, corpus, threshold)
	fresh := &entry{
		Key:               key,
		CorpusFingerprint: fingerprint,
		Matches:           make([]storedMatch, len(matches)),
		Timestamp:         time.Now(),
	}
	for i, m := range matches {
		fresh.Matches[i] = storedMatch{Index: m.Index, Score: m.Score}
	}

	if c.db != nil {
		if err := c.storeInDB(fresh); err != nil {
			c.logger.Warn("Failed to store similarity cache entry", zap.Error(err))
		}
	}

	c.mu.Lock()
	c.memory[key] = fresh
	c.misses++
	c.mu.Unlock()

	return matches
}

func (c *Cache) valid(e *entry, fingerprint string) bool {
	return e.CorpusFingerprint == fingerprint && time.Since(e.Timestamp) < c.ttl
}

func (c *Cache) recordHit() {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
}

func resolve(stored []storedMatch, corpus []hunt.Record) ([]similarity.Match, bool) {
	out := make([]similarity.Match, 0, len(stored))
	for _, s := range stored {
		if s.Index < 0 || s.Index >= len(corpus) {
			return nil, false
		}
		out = append(out, similarity.Match{Index: s.Index, Record: corpus[s.Index], Score: s.Score})
	}
	return out, true
}

// getFromDB returns a stored entry, or nil when it is missing or stale.
func (c *Cache) getFromDB(key, fingerprint string) (*entry, error) {
	var storedFingerprint, payload, createdAt string
	err := c.db.QueryRow(`
		SELECT corpus_fingerprint, payload, created_at
		FROM similarity_cache
		WHERE cache_key = ?
	`, key).Scan(&storedFingerprint, &payload, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query similarity cache: %w", err)
	}

	timestamp, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("malformed cache timestamp: %w", err)
	}

	e := &entry{Key: key, CorpusFingerprint: storedFingerprint, Timestamp: timestamp}
	if !c.valid(e, fingerprint) {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(payload), &e.Matches); err != nil {
		return nil, fmt.Errorf("malformed cache payload: %w", err)
	}
	return e, nil
}

func (c *Cache) storeInDB(e *entry) error {
	payload, err := json.Marshal(e.Matches)
	if err != nil {
		return err
	}
	_, err = c.db.Exec(`
		INSERT OR REPLACE INTO similarity_cache (cache_key, corpus_fingerprint, payload, created_at)
		VALUES (?, ?, ?, ?)
	`, e.Key, e.CorpusFingerprint, string(payload), e.Timestamp.UTC().Format(time.RFC3339Nano))
	return err
}

// Clear removes every cached entry.
func (c *Cache) Clear() error {
	c.mu.Lock()
	c.memory = make(map[string]*entry)
	c.hits, c.misses = 0, 0
	c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	_, err := c.db.Exec("DELETE FROM similarity_cache")
	return err
}

// GetStats returns cache statistics
func (c *Cache) GetStats() (Stats, error) {
	c.mu.RLock()
	stats := Stats{
		Enabled:       c.enabled,
		MemoryEntries: len(c.memory),
		Hits:          c.hits,
		Misses:        c.misses,
	}
	c.mu.RUnlock()

	if c.db == nil {
		return stats, nil
	}
	if err := c.db.QueryRow("SELECT COUNT(*) FROM similarity_cache").Scan(&stats.StoredEntries); err != nil {
		return stats, err
	}
	return stats, nil
}
