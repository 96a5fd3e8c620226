package ttp

import (
	"fmt"
	"math"
	"strings"

	"github.com/a-marczewski/huntdedup/internal/textproc"
)

const (
	// DefaultThreshold is the overlap above which a hypothesis is rejected.
	DefaultThreshold = 0.5

	firstHypothesisExplanation = "First hypothesis - no previous attempts to compare"
	maxTargetSuggestions       = 5
)

// Weights controls how facet overlaps combine into an overlap score
type Weights struct {
	Tactic    float64 `json:"tactic" toml:"tactic"`
	Technique float64 `json:"technique" toml:"technique"`
	Procedure float64 `json:"procedure" toml:"procedure"`
	Tool      float64 `json:"tool" toml:"tool"`
	Target    float64 `json:"target" toml:"target"`
}

// DefaultWeights returns 0.30/0.25/0.20/0.15/0.10.
func DefaultWeights() Weights {
	return Weights{Tactic: 0.30, Technique: 0.25, Procedure: 0.20, Tool: 0.15, Target: 0.10}
}

// Validate requires non-negative weights summing to 1.
func (w Weights) Validate() error {
	for _, v := range []float64{w.Tactic, w.Technique, w.Procedure, w.Tool, w.Target} {
		if v < 0 || v > 1 {
			return fmt.Errorf("ttp weights must be between 0 and 1")
		}
	}
	if sum := w.Tactic + w.Technique + w.Procedure + w.Tool + w.Target; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("ttp weights must sum to 1, got %.3f", sum)
	}
	return nil
}

// Overlap describes how much a candidate's TTPs repeat an earlier profile
type Overlap struct {
	Score            float64 `json:"overlap_score"`
	TacticMatch      bool    `json:"tactic_match"`
	TechniqueOverlap float64 `json:"technique_overlap"`
	ProcedureOverlap float64 `json:"procedure_overlap"`
	ToolOverlap      float64 `json:"tool_overlap"`
	TargetOverlap    float64 `json:"target_overlap"`
	Explanation      string  `json:"explanation"`
	// TooSimilar is Score > the checker threshold at decision time.
	TooSimilar bool `json:"too_similar"`
	// MatchedIndex is the history position of the closest profile, -1 if none.
	MatchedIndex int `json:"matched_index"`
	Candidate    Set `json:"candidate"`
}

// IsTooSimilar uses a strict comparison: a score equal to threshold passes.
func (o Overlap) IsTooSimilar(threshold float64) bool {
	return o.Score > threshold
}

// Compare computes the pairwise overlap of two profiles.
func Compare(a, b Set, w Weights) Overlap {
	o := Overlap{
		TacticMatch:      a.Tactic == b.Tactic,
		TechniqueOverlap: facetOverlap(a.Techniques, b.Techniques),
		ProcedureOverlap: facetOverlap(a.Procedures, b.Procedures),
		ToolOverlap:      facetOverlap(a.Tools, b.Tools),
		TargetOverlap:    facetOverlap(a.Targets, b.Targets),
		MatchedIndex:     -1,
		Candidate:        a,
	}

	tactic := 0.0
	if o.TacticMatch {
		tactic = 1.0
	}
	score := w.Tactic*tactic +
		w.Technique*o.TechniqueOverlap +
		w.Procedure*o.ProcedureOverlap +
		w.Tool*o.ToolOverlap +
		w.Target*o.TargetOverlap
	o.Score = math.Max(0, math.Min(1, score))
	o.Explanation = explain(o)
	return o
}

// facetOverlap is Jaccard similarity, except that two empty facets share
// nothing: absence of evidence is not overlap.
func facetOverlap(a, b textproc.Set) float64 {
	if a.Len() == 0 || b.Len() == 0 {
		return 0.0
	}
	return float64(a.IntersectionSize(b)) / float64(a.UnionSize(b))
}

func explain(o Overlap) string {
	var parts []string
	if o.TacticMatch {
		parts = append(parts, "Same MITRE ATT&CK tactic")
	}
	switch {
	case o.TechniqueOverlap > 0.5:
		parts = append(parts, "High technique overlap")
	case o.TechniqueOverlap > 0.2:
		parts = append(parts, "Some technique overlap")
	}
	if o.ProcedureOverlap > 0.5 {
		parts = append(parts, "Similar procedures")
	}
	if o.ToolOverlap > 0.5 {
		parts = append(parts, "Similar tools")
	}
	if o.TargetOverlap > 0.5 {
		parts = append(parts, "Similar targets")
	}
	if len(parts) == 0 {
		return "TTPs appear diverse with minimal overlap"
	}
	return strings.Join(parts, "; ")
}

// Checker keeps the TTP profiles accepted during one generation session.
//
// A Checker is not safe for concurrent use. Sessions that run in parallel
// must each own a Checker.
type Checker struct {
	history   []Set
	threshold float64
	weights   Weights
}

// NewChecker creates an empty checker.
func NewChecker(threshold float64, weights Weights) *Checker {
	return &Checker{threshold: threshold, weights: weights}
}

func (c *Checker) Threshold() float64 {
	return c.threshold
}

// Check scores hypothesis against every accepted profile and appends its
// profile to the history when it is diverse enough. The first hypothesis of
// a session is always accepted.
func (c *Checker) Check(hypothesis, tacticHint string) Overlap {
	o := c.Evaluate(hypothesis, tacticHint)
	if !o.TooSimilar {
		c.history = append(c.history, o.Candidate)
	}
	return o
}

// Evaluate makes the same decision as Check without recording anything.
func (c *Checker) Evaluate(hypothesis, tacticHint string) Overlap {
	candidate := Extract(hypothesis, tacticHint)

	if len(c.history) == 0 {
		return Overlap{
			Explanation:  firstHypothesisExplanation,
			MatchedIndex: -1,
			Candidate:    candidate,
		}
	}

	var best Overlap
	for i, prior := range c.history {
		o := Compare(candidate, prior, c.weights)
		if i == 0 || o.Score > best.Score {
			best = o
			best.MatchedIndex = i
		}
	}
	best.TooSimilar = best.IsTooSimilar(c.threshold)
	return best
}

// History returns a copy of the accepted profiles in acceptance order.
func (c *Checker) History() []Set {
	return append([]Set(nil), c.history...)
}

func (c *Checker) Len() int {
	return len(c.history)
}

// Clear ends the session.
func (c *Checker) Clear() {
	c.history = nil
}

// UsedTactics lists tactics in the order they were first accepted.
func (c *Checker) UsedTactics() []string {
	seen := make(textproc.Set)
	var out []string
	for _, s := range c.history {
		if !seen.Has(s.Tactic) {
			seen.Add(s.Tactic)
			out = append(out, s.Tactic)
		}
	}
	return out
}

// Stats summarizes the session history
type Stats struct {
	TotalAttempts    int      `json:"total_attempts"`
	UniqueTactics    int      `json:"unique_tactics"`
	UniqueTechniques int      `json:"unique_techniques"`
	UniqueTools      int      `json:"unique_tools"`
	TacticsUsed      []string `json:"tactics_used"`
}

func (c *Checker) Stats() Stats {
	techniques := make(textproc.Set)
	toolSet := make(textproc.Set)
	for _, s := range c.history {
		for t := range s.Techniques {
			techniques.Add(t)
		}
		for t := range s.Tools {
			toolSet.Add(t)
		}
	}
	used := c.UsedTactics()
	return Stats{
		TotalAttempts:    len(c.history),
		UniqueTactics:    len(used),
		UniqueTechniques: techniques.Len(),
		UniqueTools:      toolSet.Len(),
		TacticsUsed:      used,
	}
}

// Suggestions points the next generation toward unexplored ground
type Suggestions struct {
	UnusedTactics []string `json:"unused_tactics"`
	UnusedTargets []string `json:"unused_targets"`
}

// Suggestions lists every tactic and a few targets not yet used.
func (c *Checker) Suggestions() Suggestions {
	usedTactics := textproc.NewSet(c.UsedTactics()...)
	usedTargets := make(textproc.Set)
	for _, s := range c.history {
		for t := range s.Targets {
			usedTargets.Add(t)
		}
	}

	var out Suggestions
	for _, t := range Tactics {
		if !usedTactics.Has(t) {
			out.UnusedTactics = append(out.UnusedTactics, t)
		}
	}
	for _, t := range Targets {
		if len(out.UnusedTargets) == maxTargetSuggestions {
			break
		}
		if !usedTargets.Has(t) {
			out.UnusedTargets = append(out.UnusedTargets, t)
		}
	}
	return out
}
