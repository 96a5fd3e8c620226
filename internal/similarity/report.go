package similarity

import (
	"fmt"
	"strings"

	"github.com/a-marczewski/huntdedup/internal/hunt"
)

// ReportLimit bounds the number of matches listed in a report.
const ReportLimit = 5

const reportTextWidth = 100

// Report renders a human readable summary of the matches for candidate.
func (d *Detector) Report(candidate hunt.Record, matches []Match) string {
	if len(matches) == 0 {
		return "✅ No similar hunts found. This hypothesis appears to be unique."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("⚠️ Found %d potentially similar hunt(s)", len(matches)))
	if text := strings.TrimSpace(candidate.Text()); text != "" {
		sb.WriteString(fmt.Sprintf(" for %q", truncate(text, reportTextWidth)))
	}
	sb.WriteString(":\n")

	for i, m := range matches {
		if i == ReportLimit {
			sb.WriteString(fmt.Sprintf("\n... and %d more\n", len(matches)-ReportLimit))
			break
		}
		name := m.Record.ID
		if m.Record.Filepath != "" {
			name = fmt.Sprintf("%s (%s)", name, m.Record.Filepath)
		}
		sb.WriteString(fmt.Sprintf("\n%d. %s\n", i+1, name))
		sb.WriteString(fmt.Sprintf("   Overall similarity: %.1f%%\n", m.Score.Overall*100))
		sb.WriteString(fmt.Sprintf("   Lexical: %.1f%% | Semantic: %.1f%% | Structural: %.1f%%\n",
			m.Score.Lexical*100, m.Score.Semantic*100, m.Score.Structural*100))
		if m.Record.Tactic != "" {
			sb.WriteString(fmt.Sprintf("   Tactic: %s\n", m.Record.Tactic))
		}
		if text := strings.TrimSpace(m.Record.Text()); text != "" {
			sb.WriteString(fmt.Sprintf("   Text: %s\n", truncate(text, reportTextWidth)))
		}
	}
	return sb.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
