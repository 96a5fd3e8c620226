// Package similarity scores how close a candidate hunt is to existing hunts.
package similarity

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/a-marczewski/huntdedup/internal/hunt"
	"github.com/a-marczewski/huntdedup/internal/textproc"
	"go.uber.org/zap"
)

// confidenceWords is the average word count at which confidence saturates.
const confidenceWords = 20.0

// Finder locates corpus entries similar to a candidate.
type Finder interface {
	FindSimilar(candidate hunt.Record, corpus []hunt.Record, threshold float64) []Match
}

// Detector combines the lexical, semantic and structural scorers.
// It holds no mutable state and is safe for concurrent use.
type Detector struct {
	pre        *textproc.Preprocessor
	lexical    *Lexical
	semantic   *Semantic
	structural *Structural
	weights    Weights
	logger     *zap.Logger
}

// Option configures a Detector
type Option func(*Detector)

// WithWeights overrides the default weighting.
func WithWeights(w Weights) Option {
	return func(d *Detector) {
		d.weights = w
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDetector creates a detector with the default dictionaries.
func NewDetector(opts ...Option) *Detector {
	pre := textproc.New()
	d := &Detector{
		pre:        pre,
		lexical:    NewLexical(pre),
		semantic:   NewSemantic(pre),
		structural: NewStructural(pre),
		weights:    DefaultWeights(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Weights returns the weighting in use.
func (d *Detector) Weights() Weights {
	return d.weights
}

// Preprocessor exposes the shared text preprocessor.
func (d *Detector) Preprocessor() *textproc.Preprocessor {
	return d.pre
}

// Compare calculates the similarity of two hunts. A hunt without text
// produces an all-zero score instead of an error.
func (d *Detector) Compare(a, b hunt.Record) Score {
	textA, textB := a.Text(), b.Text()
	if strings.TrimSpace(textA) == "" || strings.TrimSpace(textB) == "" {
		return Score{}
	}

	var degraded []string
	measure := func(name string, fn func() float64) float64 {
		v, ok := d.measure(name, fn)
		if !ok {
			degraded = append(degraded, name)
		}
		return v
	}

	jaccard := measure("keyword_jaccard", func() float64 { return d.lexical.Jaccard(textA, textB) })
	cosine := measure("keyword_cosine", func() float64 { return d.lexical.Cosine(textA, textB) })
	edit := measure("edit_ratio", func() float64 { return d.lexical.EditRatio(textA, textB) })
	phrase := measure("phrase_overlap", func() float64 { return d.lexical.PhraseOverlap(textA, textB) })
	lexical := (jaccard + cosine + edit + phrase) / 4

	concept := measure("concept", func() float64 { return d.semantic.ConceptSimilarity(textA, textB) })
	tactic := measure("tactic", func() float64 { return d.semantic.TacticSimilarity(a.Tactic, b.Tactic) })
	semantic := (concept + tactic) / 2

	pattern := measure("sentence_structure", func() float64 { return d.structural.SentenceStructure(textA, textB) })
	length := measure("length", func() float64 { return d.structural.Length(textA, textB) })
	structural := (pattern + length) / 2

	overall := d.weights.Lexical*lexical +
		d.weights.Semantic*semantic +
		d.weights.Structural*structural +
		d.weights.Keyword*jaccard

	avgWords := float64(textproc.WordCount(textA)+textproc.WordCount(textB)) / 2

	return Score{
		Overall:        clamp01(overall),
		Lexical:        lexical,
		Semantic:       semantic,
		Structural:     structural,
		KeywordOverlap: jaccard,
		Confidence:     math.Min(avgWords/confidenceWords, 1.0),
		Degraded:       degraded,
	}
}

// measure runs one scorer. A scorer that panics or yields a value outside
// [0,1] is reported as failed and contributes NeutralScore.
func (d *Detector) measure(name string, fn func() float64) (score float64, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("Scorer failed, using neutral score",
				zap.String("scorer", name),
				zap.String("panic", fmt.Sprint(r)))
			score, ok = NeutralScore, false
		}
	}()

	v := fn()
	if math.IsNaN(v) || v < 0 || v > 1 {
		d.logger.Warn("Scorer produced out of range value, using neutral score",
			zap.String("scorer", name),
			zap.Float64("value", v))
		return NeutralScore, false
	}
	return v, true
}

// FindSimilar compares candidate against every corpus entry and returns the
// entries whose overall score reaches threshold, best first. Ties keep
// corpus order.
func (d *Detector) FindSimilar(candidate hunt.Record, corpus []hunt.Record, threshold float64) []Match {
	var matches []Match
	for i, record := range corpus {
		score := d.Compare(candidate, record)
		if score.IsSimilar(threshold) {
			matches = append(matches, Match{Index: i, Record: record, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score.Overall > matches[j].Score.Overall
	})

	d.logger.Debug("Similarity scan complete",
		zap.Int("corpus_size", len(corpus)),
		zap.Int("matches", len(matches)),
		zap.Float64("threshold", threshold))
	return matches
}
