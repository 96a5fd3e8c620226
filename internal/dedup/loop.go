package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/a-marczewski/huntdedup/internal/hunt"
)

// GenerateUnique asks the generator for candidates until one passes both
// checks or the attempt budget runs out. It never returns nil. When every
// candidate was rejected the least similar one is returned with
// StatusExhausted; when no candidate was produced at all the fallback
// hypothesis is used.
func (d *Deduplicator) GenerateUnique(ctx context.Context, req Request) *Generation {
	start := time.Now()
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = d.opts.MaxAttempts
	}

	gen := &Generation{SessionID: d.sessionID, Status: StatusExhausted}
	base := req.BasePrompt()
	var rejected []Attempt

	for i := 0; i < maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			d.logger.Warn("Generation cancelled", zap.Int("attempt", i), zap.Error(err))
			break
		}
		if d.generator == nil {
			break
		}

		d.logger.Info("Generation attempt started", zap.String("session", d.sessionID), zap.Int("attempt", i+1), zap.Int("max_attempts", maxAttempts))
		gen.AttemptsMade = i + 1
		d.metrics.attempt(ctx)
		attempt := d.newAttempt(i)

		prompt := BuildAttemptPrompt(base, i, d.checker.UsedTactics())
		candidate, err := d.generator.Generate(ctx, prompt, i)
		if err != nil {
			genErr := &hunt.GenerationError{Attempt: i, Err: err}
			d.logger.Warn("Generator failed", zap.Int("attempt", i+1), zap.Error(genErr))
			d.metrics.generatorError(ctx)
			d.stats.RecordError()
			attempt.Error = genErr.Error()
			gen.Attempts = append(gen.Attempts, attempt)
			continue
		}

		candidate.Hypothesis = strings.TrimSpace(candidate.Hypothesis)
		candidate.Tactic = strings.TrimSpace(candidate.Tactic)
		attempt.Candidate = candidate
		if err := candidate.Validate(); err != nil {
			d.logger.Warn("Generator returned an unusable candidate", zap.Int("attempt", i+1), zap.Error(err))
			d.stats.RecordError()
			if candidate.IsEmpty() {
				attempt.Error = hunt.ErrNoCandidate.Error()
			} else {
				attempt.Error = err.Error()
			}
			gen.Attempts = append(gen.Attempts, attempt)
			continue
		}

		res := d.check(candidate, true)
		attempt.result = &res
		attempt.Score = res.Score()
		attempt.CorpusScore = res.MaxSimilarityScore
		if res.TTPOverlap != nil {
			attempt.TTPScore = res.TTPOverlap.Score
		}
		attempt.Approved = !res.IsDuplicate
		d.stats.RecordAttempt(attempt.Score, attempt.Approved)

		if attempt.Approved {
			d.logger.Info("Candidate accepted", zap.Int("attempt", i+1), zap.Float64("score", attempt.Score))
			gen.Attempts = append(gen.Attempts, attempt)
			gen.Status = StatusAccepted
			gen.Candidate = candidate
			gen.Result = res
			return d.finish(ctx, gen, start)
		}

		attempt.RejectionReason = rejectionReason(res)
		d.logger.Info("Candidate rejected", zap.Int("attempt", i+1), zap.String("reason", attempt.RejectionReason))
		d.metrics.rejection(ctx, rejectionKind(res))
		gen.Attempts = append(gen.Attempts, attempt)
		rejected = append(rejected, attempt)
	}

	if len(rejected) > 0 {
		best := rejected[0]
		for _, a := range rejected[1:] {
			if a.Score < best.Score {
				best = a
			}
		}
		gen.Status = StatusExhausted
		gen.Candidate = best.Candidate
		gen.Result = *best.result
		gen.Result.IsDuplicate = true
		gen.Result.Recommendation = RecommendBestEffort
		d.logger.Warn("Attempts exhausted, returning least similar candidate",
			zap.Int("attempt", best.Index+1), zap.Float64("score", best.Score))
		return d.finish(ctx, gen, start)
	}

	fallback := FallbackCandidate(d.checker.UsedTactics())
	gen.Status = StatusFallback
	gen.Candidate = fallback
	gen.Result = d.check(fallback, true)
	d.logger.Warn("No candidate generated, using fallback", zap.String("tactic", fallback.Tactic))
	return d.finish(ctx, gen, start)
}

func (d *Deduplicator) finish(ctx context.Context, gen *Generation, start time.Time) *Generation {
	gen.Duration = time.Since(start)
	d.attempts = append(d.attempts, gen.Attempts...)
	d.stats.RecordGeneration(gen.Status)
	d.metrics.finished(ctx, gen.Status, gen.Duration)

	if d.recorder != nil && len(gen.Attempts) > 0 {
		// The run is complete even if the context was cancelled mid-loop.
		if err := d.recorder.RecordAttempts(context.WithoutCancel(ctx), d.sessionID, gen.Attempts); err != nil {
			d.logger.Warn("Failed to record attempts", zap.Error(err))
		}
	}

	d.logger.Info("Generation finished",
		zap.String("session", d.sessionID),
		zap.String("status", string(gen.Status)),
		zap.Int("attempts", gen.AttemptsMade),
		zap.Duration("duration", gen.Duration))
	return gen
}

// BatchGenerate runs GenerateUnique for each request in order. Accepted
// candidates from earlier requests are part of the history for later ones.
func (d *Deduplicator) BatchGenerate(ctx context.Context, reqs []Request) []*Generation {
	out := make([]*Generation, 0, len(reqs))
	for _, req := range reqs {
		if ctx.Err() != nil {
			break
		}
		out = append(out, d.GenerateUnique(ctx, req))
	}
	return out
}

func rejectionKind(res Result) string {
	if res.SimilarHuntsCount > 0 {
		return "corpus"
	}
	return "ttp"
}

func rejectionReason(res Result) string {
	var reasons []string
	if res.SimilarHuntsCount > 0 {
		reasons = append(reasons, fmt.Sprintf("similar to %d existing hunt(s), max similarity %.2f", res.SimilarHuntsCount, res.MaxSimilarityScore))
	}
	if res.TTPOverlap != nil && res.TTPOverlap.TooSimilar {
		reasons = append(reasons, fmt.Sprintf("TTP overlap %.2f exceeds %.2f: %s", res.TTPOverlap.Score, res.TTPThreshold, res.TTPOverlap.Explanation))
	}
	return strings.Join(reasons, "; ")
}
