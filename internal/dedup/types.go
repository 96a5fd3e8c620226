package dedup

import (
	"context"
	"strings"
	"time"

	"github.com/a-marczewski/huntdedup/internal/hunt"
	"github.com/a-marczewski/huntdedup/internal/similarity"
	"github.com/a-marczewski/huntdedup/internal/ttp"
)

const (
	DefaultSimilarityThreshold = 0.7
	DefaultMaxAttempts         = 5
	DefaultTopN                = 3
)

// Status is the outcome of a generation run
type Status string

const (
	// StatusAccepted means a generated candidate passed every check.
	StatusAccepted Status = "accepted"
	// StatusExhausted means every attempt was rejected and the least similar
	// candidate is returned. It is still a duplicate.
	StatusExhausted Status = "exhausted"
	// StatusFallback means no attempt produced a candidate and the rule-based
	// fallback was used instead.
	StatusFallback Status = "fallback"
)

// Options tunes the uniqueness checks
type Options struct {
	SimilarityThreshold float64
	TTPThreshold        float64
	TTPWeights          ttp.Weights
	MaxAttempts         int
	TopN                int
	CheckCorpus         bool
	CheckTTP            bool
}

// DefaultOptions enables both the corpus and the TTP check.
func DefaultOptions() Options {
	return Options{
		SimilarityThreshold: DefaultSimilarityThreshold,
		TTPThreshold:        ttp.DefaultThreshold,
		TTPWeights:          ttp.DefaultWeights(),
		MaxAttempts:         DefaultMaxAttempts,
		TopN:                DefaultTopN,
		CheckCorpus:         true,
		CheckTTP:            true,
	}
}

// Generator produces a candidate hypothesis for one attempt. Implementations
// should return promptly once ctx is done.
type Generator interface {
	Generate(ctx context.Context, prompt string, attempt int) (hunt.Candidate, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string, attempt int) (hunt.Candidate, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string, attempt int) (hunt.Candidate, error) {
	return f(ctx, prompt, attempt)
}

// Recorder persists the attempts of a generation run.
type Recorder interface {
	RecordAttempts(ctx context.Context, sessionID string, attempts []Attempt) error
}

// Request describes one generation run
type Request struct {
	Prompt      string
	MaxAttempts int
	// Feedback from a reviewer is folded into the base prompt.
	Feedback string
}

// BasePrompt returns the prompt used verbatim by the first attempt.
func (r Request) BasePrompt() string {
	feedback := strings.TrimSpace(r.Feedback)
	if feedback == "" {
		return r.Prompt
	}
	return r.Prompt + "\n\nREVIEWER FEEDBACK (address this in the new hypothesis):\n" + feedback
}

// Result is the uniqueness verdict for one candidate
type Result struct {
	IsDuplicate        bool               `json:"is_duplicate"`
	Threshold          float64            `json:"similarity_threshold"`
	TTPThreshold       float64            `json:"ttp_threshold"`
	MaxSimilarityScore float64            `json:"max_similarity_score"`
	SimilarHuntsCount  int                `json:"similar_hunts_count"`
	SimilarHunts       []similarity.Match `json:"similar_hunts"`
	TTPOverlap         *ttp.Overlap       `json:"ttp_overlap,omitempty"`
	Recommendation     Recommendation     `json:"recommendation"`
	Report             string             `json:"report"`
}

// Score is the larger of the corpus similarity and the TTP overlap.
func (r Result) Score() float64 {
	score := r.MaxSimilarityScore
	if r.TTPOverlap != nil && r.TTPOverlap.Score > score {
		score = r.TTPOverlap.Score
	}
	return score
}

// Attempt records one pass of the regeneration loop
type Attempt struct {
	ID              string         `json:"attempt_id"`
	SessionID       string         `json:"session_id"`
	Index           int            `json:"index"`
	Timestamp       time.Time      `json:"timestamp"`
	Candidate       hunt.Candidate `json:"candidate"`
	Score           float64        `json:"score"`
	TTPScore        float64        `json:"ttp_score"`
	CorpusScore     float64        `json:"corpus_score"`
	Approved        bool           `json:"approved"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
	Error           string         `json:"error,omitempty"`

	result *Result
}

// Generation is the outcome of GenerateUnique. Callers must check
// Result.IsDuplicate: only StatusAccepted guarantees a diverse candidate.
type Generation struct {
	SessionID    string         `json:"session_id"`
	Status       Status         `json:"status"`
	Candidate    hunt.Candidate `json:"candidate"`
	Result       Result         `json:"result"`
	AttemptsMade int            `json:"attempts_made"`
	Attempts     []Attempt      `json:"attempts"`
	Duration     time.Duration  `json:"duration"`
}

// Accepted reports whether the candidate passed every check.
func (g *Generation) Accepted() bool {
	return g.Status == StatusAccepted && !g.Result.IsDuplicate
}
