package dedup

import (
	"context"
	"fmt"
	"strings"

	"github.com/a-marczewski/huntdedup/internal/hunt"
	"github.com/a-marczewski/huntdedup/internal/textproc"
	"github.com/a-marczewski/huntdedup/internal/ttp"
)

const genericFallbackHypothesis = "Adversaries may chain several intrusion stages together in ways that existing hunts do not yet cover"

// FallbackCandidate builds a hypothesis without calling a model. It names
// the first tactic missing from used, or returns a generic multi-stage
// hypothesis when every tactic has been used.
func FallbackCandidate(used []string) hunt.Candidate {
	c, _ := FallbackCandidateAt(used, 0)
	return c
}

// FallbackCandidateAt skips the first skip unused tactics, so successive
// attempts of one request never repeat a rejected hypothesis. Once the
// unused tactics run out the generic hypothesis is offered once; after
// that ok is false.
func FallbackCandidateAt(used []string, skip int) (c hunt.Candidate, ok bool) {
	seen := make(textproc.Set)
	for _, t := range used {
		seen.Add(strings.ToLower(strings.TrimSpace(t)))
	}

	var unused []string
	for _, tactic := range ttp.Tactics {
		if !seen.Has(tactic) {
			unused = append(unused, tactic)
		}
	}

	switch {
	case skip < 0:
		return hunt.Candidate{}, false
	case skip < len(unused):
		tactic := unused[skip]
		title := ttp.TacticTitle(tactic)
		return hunt.Candidate{
			Hypothesis: fmt.Sprintf("Adversaries may be conducting %s activity that deviates from the established baseline of this environment", strings.ToLower(title)),
			Tactic:     title,
			Tags:       []string{strings.ReplaceAll(tactic, " ", "-"), "fallback"},
		}, true
	case skip == len(unused):
		return hunt.Candidate{
			Hypothesis: genericFallbackHypothesis,
			Tags:       []string{"multi-stage", "fallback"},
		}, true
	}
	return hunt.Candidate{}, false
}

// OfflineGenerator generates rule-based candidates. used reports the
// tactics already accepted in the session; attempt n of a request offers
// the n-th unused tactic.
func OfflineGenerator(used func() []string) Generator {
	return GeneratorFunc(func(ctx context.Context, prompt string, attempt int) (hunt.Candidate, error) {
		c, ok := FallbackCandidateAt(used(), attempt)
		if !ok {
			return hunt.Candidate{}, fmt.Errorf("no unused tactic left for attempt %d: %w", attempt+1, hunt.ErrNoCandidate)
		}
		return c, nil
	})
}
