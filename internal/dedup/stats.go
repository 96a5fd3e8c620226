package dedup

import (
	"sync"
	"time"
)

// Stats summarises the attempts seen by a Deduplicator
type Stats struct {
	TotalAttempts   int       `json:"total_attempts"`
	Approved        int       `json:"approved"`
	Rejected        int       `json:"rejected"`
	GeneratorErrors int       `json:"generator_errors"`
	Generations     int       `json:"generations"`
	Fallbacks       int       `json:"fallbacks"`
	AvgScore        float64   `json:"avg_score"`
	ApprovalRate    float64   `json:"approval_rate"`
	LastUpdated     time.Time `json:"last_updated"`

	totalScore       float64
	scoredCandidates int
}

// StatsTracker tracks loop statistics in memory
type StatsTracker struct {
	mu    sync.RWMutex
	stats Stats
}

// NewStatsTracker creates a new stats tracker
func NewStatsTracker() *StatsTracker {
	return &StatsTracker{stats: Stats{LastUpdated: time.Now()}}
}

// RecordAttempt records a scored candidate
func (s *StatsTracker) RecordAttempt(score float64, approved bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.TotalAttempts++
	s.stats.scoredCandidates++
	s.stats.totalScore += score
	if approved {
		s.stats.Approved++
	} else {
		s.stats.Rejected++
	}
	s.stats.LastUpdated = time.Now()
}

// RecordError records an attempt that produced no usable candidate
func (s *StatsTracker) RecordError() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.TotalAttempts++
	s.stats.GeneratorErrors++
	s.stats.LastUpdated = time.Now()
}

// RecordGeneration records the end of a generation run
func (s *StatsTracker) RecordGeneration(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Generations++
	if status == StatusFallback {
		s.stats.Fallbacks++
	}
	s.stats.LastUpdated = time.Now()
}

// GetStats returns the current statistics
func (s *StatsTracker) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.stats
	if out.scoredCandidates > 0 {
		out.AvgScore = out.totalScore / float64(out.scoredCandidates)
		out.ApprovalRate = float64(out.Approved) / float64(out.scoredCandidates)
	}
	return out
}

// Reset clears all statistics
func (s *StatsTracker) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats = Stats{LastUpdated: time.Now()}
}
