// Package dedup decides whether a candidate hunt hypothesis is new enough to
// keep, and drives the bounded regeneration loop around a Generator.
package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/a-marczewski/huntdedup/internal/hunt"
	"github.com/a-marczewski/huntdedup/internal/similarity"
	"github.com/a-marczewski/huntdedup/internal/ttp"
)

// Deduplicator owns the TTP history of one generation session. It is not
// safe for concurrent use; run one per session.
type Deduplicator struct {
	detector  *similarity.Detector
	finder    similarity.Finder
	checker   *ttp.Checker
	generator Generator
	recorder  Recorder
	corpus    []hunt.Record
	opts      Options
	sessionID string
	logger    *zap.Logger
	meter     metric.Meter
	metrics   *loopMetrics
	stats     *StatsTracker
	attempts  []Attempt
}

// Option configures a Deduplicator
type Option func(*Deduplicator)

func WithOptions(o Options) Option {
	return func(d *Deduplicator) {
		d.opts = o
	}
}

// WithCorpus sets the existing hunts candidates are compared against.
func WithCorpus(records []hunt.Record) Option {
	return func(d *Deduplicator) {
		d.corpus = records
	}
}

// WithFinder replaces the detector as the corpus search, e.g. with a cache.
func WithFinder(f similarity.Finder) Option {
	return func(d *Deduplicator) {
		if f != nil {
			d.finder = f
		}
	}
}

func WithGenerator(g Generator) Option {
	return func(d *Deduplicator) {
		d.generator = g
	}
}

func WithRecorder(r Recorder) Option {
	return func(d *Deduplicator) {
		d.recorder = r
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(d *Deduplicator) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithMeter(m metric.Meter) Option {
	return func(d *Deduplicator) {
		d.meter = m
	}
}

func WithSessionID(id string) Option {
	return func(d *Deduplicator) {
		if id != "" {
			d.sessionID = id
		}
	}
}

// New creates a Deduplicator with an empty TTP history.
func New(detector *similarity.Detector, opts ...Option) *Deduplicator {
	if detector == nil {
		detector = similarity.NewDetector()
	}
	d := &Deduplicator{
		detector:  detector,
		finder:    detector,
		opts:      DefaultOptions(),
		sessionID: uuid.NewString(),
		logger:    zap.NewNop(),
		stats:     NewStatsTracker(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.opts.MaxAttempts <= 0 {
		d.opts.MaxAttempts = DefaultMaxAttempts
	}
	if d.opts.TopN <= 0 {
		d.opts.TopN = DefaultTopN
	}
	d.checker = ttp.NewChecker(d.opts.TTPThreshold, d.opts.TTPWeights)
	d.metrics = newLoopMetrics(d.meter)
	return d
}

// SessionID identifies the attempts recorded by this Deduplicator.
func (d *Deduplicator) SessionID() string {
	return d.sessionID
}

// Options returns the effective options.
func (d *Deduplicator) Options() Options {
	return d.opts
}

// Corpus returns the hunts candidates are compared against.
func (d *Deduplicator) Corpus() []hunt.Record {
	return d.corpus
}

// CheckUniqueness validates candidate and checks it against the corpus and
// the session history. An accepted candidate is added to the history.
func (d *Deduplicator) CheckUniqueness(ctx context.Context, candidate hunt.Candidate) (Result, error) {
	if err := candidate.Validate(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return d.check(candidate, true), nil
}

// Evaluate checks candidate without touching the session history.
func (d *Deduplicator) Evaluate(candidate hunt.Candidate) (Result, error) {
	if err := candidate.Validate(); err != nil {
		return Result{}, err
	}
	return d.check(candidate, false), nil
}

func (d *Deduplicator) check(candidate hunt.Candidate, record bool) Result {
	rec := candidate.Record()
	res := Result{
		Threshold:    d.opts.SimilarityThreshold,
		TTPThreshold: d.opts.TTPThreshold,
	}

	var matches []similarity.Match
	if d.opts.CheckCorpus && len(d.corpus) > 0 {
		matches = d.finder.FindSimilar(rec, d.corpus, d.opts.SimilarityThreshold)
	}
	corpusDuplicate := len(matches) > 0
	res.SimilarHuntsCount = len(matches)
	if corpusDuplicate {
		res.MaxSimilarityScore = matches[0].Score.Overall
		top := matches
		if len(top) > d.opts.TopN {
			top = top[:d.opts.TopN]
		}
		res.SimilarHunts = append([]similarity.Match(nil), top...)
	}

	if d.opts.CheckTTP {
		var overlap ttp.Overlap
		if record && !corpusDuplicate {
			overlap = d.checker.Check(candidate.Hypothesis, candidate.Tactic)
		} else {
			overlap = d.checker.Evaluate(candidate.Hypothesis, candidate.Tactic)
		}
		res.TTPOverlap = &overlap
	}

	res.IsDuplicate = corpusDuplicate || (res.TTPOverlap != nil && res.TTPOverlap.TooSimilar)
	res.Recommendation = recommend(res.IsDuplicate, res.Score())
	res.Report = d.report(rec, matches, res)
	return res
}

func (d *Deduplicator) report(rec hunt.Record, matches []similarity.Match, res Result) string {
	var sb strings.Builder
	if d.opts.CheckCorpus {
		sb.WriteString(d.detector.Report(rec, matches))
		sb.WriteString("\n")
	}
	if res.TTPOverlap != nil {
		sb.WriteString(fmt.Sprintf("TTP overlap: %.1f%% (%s)\n", res.TTPOverlap.Score*100, res.TTPOverlap.Explanation))
	}
	sb.WriteString(fmt.Sprintf("Recommendation: %s - %s", res.Recommendation, res.Recommendation.Message()))
	return sb.String()
}

// Seed loads up to limit of the most recent corpus hunts into the TTP
// history so the first generated candidate is already compared against
// them. Records are taken from the end of the slice. It returns the number
// of records that entered the history.
func (d *Deduplicator) Seed(records []hunt.Record, limit int) int {
	if limit <= 0 || limit > len(records) {
		limit = len(records)
	}
	seeded := 0
	for _, r := range records[len(records)-limit:] {
		if strings.TrimSpace(r.Text()) == "" {
			continue
		}
		if o := d.checker.Check(r.Text(), r.Tactic); !o.TooSimilar {
			seeded++
		}
	}
	d.logger.Debug("Seeded TTP history", zap.Int("records", limit), zap.Int("seeded", seeded))
	return seeded
}

// UsedTactics lists the tactics already in the session history.
func (d *Deduplicator) UsedTactics() []string {
	return d.checker.UsedTactics()
}

// TTPStats exposes the session history statistics.
func (d *Deduplicator) TTPStats() ttp.Stats {
	return d.checker.Stats()
}

// Suggestions lists tactics and targets the session has not covered.
func (d *Deduplicator) Suggestions() ttp.Suggestions {
	return d.checker.Suggestions()
}

// Attempts returns every attempt made in this session.
func (d *Deduplicator) Attempts() []Attempt {
	out := make([]Attempt, len(d.attempts))
	copy(out, d.attempts)
	return out
}

func (d *Deduplicator) Stats() Stats {
	return d.stats.GetStats()
}

// Clear resets the session: history, attempts and statistics.
func (d *Deduplicator) Clear() {
	d.checker.Clear()
	d.attempts = nil
	d.stats.Reset()
}

func (d *Deduplicator) newAttempt(index int) Attempt {
	return Attempt{
		ID:        uuid.NewString(),
		SessionID: d.sessionID,
		Index:     index,
		Timestamp: time.Now().UTC(),
	}
}
