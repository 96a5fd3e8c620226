package dedup

import (
	"fmt"
	"strings"

	"github.com/a-marczewski/huntdedup/internal/ttp"
)

// diversityInstructions escalate with each retry. The last entry repeats
// for any further attempts.
var diversityInstructions = []string{
	"Use a different MITRE ATT&CK tactic than the previous attempts.",
	"Focus on a different technique or attack vector described in the threat intelligence.",
	"Target different tools, platforms or infrastructure than the previous attempts.",
	"Explore advanced or novel techniques that the previous attempts did not cover.",
}

// BuildAttemptPrompt returns the prompt for attempt. Attempt 0 receives base
// unchanged.
func BuildAttemptPrompt(base string, attempt int, usedTactics []string) string {
	if attempt <= 0 {
		return base
	}

	idx := attempt - 1
	if idx >= len(diversityInstructions) {
		idx = len(diversityInstructions) - 1
	}

	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString(fmt.Sprintf("\n\nDIVERSITY REQUIREMENT (attempt %d): %s", attempt+1, diversityInstructions[idx]))

	if len(usedTactics) > 0 {
		titles := make([]string, len(usedTactics))
		for i, t := range usedTactics {
			titles[i] = ttp.TacticTitle(t)
		}
		sb.WriteString(fmt.Sprintf("\nCRITICAL: Previous attempts used these tactics: %s. You MUST use a completely different MITRE ATT&CK tactic and technique.",
			strings.Join(titles, ", ")))
	}
	return sb.String()
}
