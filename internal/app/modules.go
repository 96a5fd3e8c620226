package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/a-marczewski/huntdedup/internal/cache"
	"github.com/a-marczewski/huntdedup/internal/config"
	"github.com/a-marczewski/huntdedup/internal/corpus"
	"github.com/a-marczewski/huntdedup/internal/dedup"
	"github.com/a-marczewski/huntdedup/internal/hunt"
	"github.com/a-marczewski/huntdedup/internal/llm"
	"github.com/a-marczewski/huntdedup/internal/similarity"
	"github.com/a-marczewski/huntdedup/internal/storage"
	"github.com/a-marczewski/huntdedup/internal/telemetry"
)

// CoreModule holds the core application components
type CoreModule struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *storage.DB
	Metrics *telemetry.Provider
}

// EngineModule holds the similarity engine and its persistence
type EngineModule struct {
	Detector *similarity.Detector
	Cache    *cache.Cache
	History  *storage.AttemptStore
}

// App holds the core components of the application with better separation of concerns.
type App struct {
	Core   CoreModule
	Engine EngineModule
	Ctx    context.Context
	Cancel context.CancelFunc
}

// DedupOptions maps the configuration onto the engine options.
func (a *App) DedupOptions() dedup.Options {
	cfg := a.Core.Config
	opts := dedup.DefaultOptions()
	opts.SimilarityThreshold = cfg.SimilarityThreshold
	opts.TTPThreshold = cfg.TTPThreshold
	opts.TTPWeights = cfg.TTPWeights
	opts.MaxAttempts = cfg.MaxAttempts
	opts.TopN = cfg.ReportTopN
	return opts
}

// LoadCorpus loads path, or the configured corpus when path is empty. A
// missing corpus yields an empty list.
func (a *App) LoadCorpus(path string) ([]hunt.Record, error) {
	if path == "" {
		path = a.Core.Config.CorpusPath
	}
	if path == "" {
		a.Core.Logger.Warn("No corpus configured, comparing against an empty corpus")
		return nil, nil
	}

	records, err := corpus.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus %s: %w", path, err)
	}
	a.Core.Logger.Info("Corpus loaded", zap.String("path", path), zap.Int("hunts", len(records)))
	return records, nil
}

// NewDeduplicator builds a Deduplicator wired to the cache and the attempt
// history. Extra options are applied last.
func (a *App) NewDeduplicator(records []hunt.Record, opts ...dedup.Option) *dedup.Deduplicator {
	base := []dedup.Option{
		dedup.WithOptions(a.DedupOptions()),
		dedup.WithCorpus(records),
		dedup.WithFinder(a.Engine.Cache),
		dedup.WithRecorder(&HistoryRecorder{Store: a.Engine.History}),
		dedup.WithLogger(a.Core.Logger),
		dedup.WithMeter(a.Core.Metrics.Meter()),
	}
	return dedup.New(a.Engine.Detector, append(base, opts...)...)
}

// NewGenerator builds the LLM-backed generator from the configuration.
func (a *App) NewGenerator() (dedup.Generator, error) {
	cfg := a.Core.Config
	completer, err := llm.NewCompleter(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return llm.NewHypothesisGenerator(completer,
		llm.WithModel(cfg.LLMModel),
		llm.WithMaxRetries(cfg.LLMMaxRetries),
		llm.WithLogger(a.Core.Logger),
	), nil
}

// HistoryRecorder stores loop attempts in the attempt history.
type HistoryRecorder struct {
	Store *storage.AttemptStore
}

// RecordAttempts implements dedup.Recorder.
func (r *HistoryRecorder) RecordAttempts(ctx context.Context, sessionID string, attempts []dedup.Attempt) error {
	if r.Store == nil {
		return nil
	}
	records := make([]storage.AttemptRecord, len(attempts))
	for i, att := range attempts {
		records[i] = toAttemptRecord(sessionID, att)
	}
	return r.Store.SaveAttempts(ctx, records)
}

func toAttemptRecord(sessionID string, att dedup.Attempt) storage.AttemptRecord {
	if att.SessionID != "" {
		sessionID = att.SessionID
	}
	return storage.AttemptRecord{
		ID:              att.ID,
		SessionID:       sessionID,
		Index:           att.Index,
		Hypothesis:      att.Candidate.Hypothesis,
		Tactic:          att.Candidate.Tactic,
		Tags:            att.Candidate.Tags,
		Score:           att.Score,
		TTPScore:        att.TTPScore,
		CorpusScore:     att.CorpusScore,
		Approved:        att.Approved,
		RejectionReason: att.RejectionReason,
		Error:           att.Error,
		CreatedAt:       att.Timestamp,
	}
}
