package similarity

import (
	"fmt"
	"math"

	"github.com/a-marczewski/huntdedup/internal/hunt"
)

// NeutralScore replaces the output of a scorer that failed on its input.
const NeutralScore = 0.0

// Score is the multi-signal similarity of two hunts
type Score struct {
	Overall        float64  `json:"overall"`
	Lexical        float64  `json:"lexical"`
	Semantic       float64  `json:"semantic"`
	Structural     float64  `json:"structural"`
	KeywordOverlap float64  `json:"keyword_overlap"`
	Confidence     float64  `json:"confidence"`
	Degraded       []string `json:"degraded,omitempty"`
}

// IsSimilar reports whether the overall score reaches threshold.
func (s Score) IsSimilar(threshold float64) bool {
	return s.Overall >= threshold
}

// Weights controls how the component scores combine into Overall
type Weights struct {
	Lexical    float64 `json:"lexical" toml:"lexical"`
	Semantic   float64 `json:"semantic" toml:"semantic"`
	Structural float64 `json:"structural" toml:"structural"`
	Keyword    float64 `json:"keyword" toml:"keyword"`
}

// DefaultWeights returns the reference weighting 0.4/0.3/0.2/0.1.
func DefaultWeights() Weights {
	return Weights{Lexical: 0.4, Semantic: 0.3, Structural: 0.2, Keyword: 0.1}
}

// Validate requires non-negative weights summing to 1.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"lexical": w.Lexical, "semantic": w.Semantic, "structural": w.Structural, "keyword": w.Keyword,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("similarity weight %s must be between 0 and 1, got %.3f", name, v)
		}
	}
	if sum := w.Lexical + w.Semantic + w.Structural + w.Keyword; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("similarity weights must sum to 1, got %.3f", sum)
	}
	return nil
}

// Match is a corpus entry that scored at or above the search threshold
type Match struct {
	Index  int         `json:"index"`
	Record hunt.Record `json:"record"`
	Score  Score       `json:"score"`
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
