package dedup

import (
	"github.com/a-marczewski/huntdedup/internal/textproc"
	"github.com/a-marczewski/huntdedup/internal/ttp"
)

// DiversityReport summarises how far apart a batch of generated hunts are
type DiversityReport struct {
	Count             int            `json:"count"`
	Pairs             int            `json:"pairs"`
	AverageSimilarity float64        `json:"average_similarity"`
	MaxSimilarity     float64        `json:"max_similarity"`
	DiversityScore    float64        `json:"diversity_score"`
	Tactics           []string       `json:"tactics"`
	Statuses          map[Status]int `json:"statuses"`
}

// DiversityReport compares every pair of generated candidates with the
// detector. A single candidate is perfectly diverse.
func (d *Deduplicator) DiversityReport(gens []*Generation) DiversityReport {
	report := DiversityReport{Statuses: make(map[Status]int)}
	tactics := make(textproc.Set)

	var candidates []*Generation
	for _, g := range gens {
		if g == nil || g.Candidate.IsEmpty() {
			continue
		}
		candidates = append(candidates, g)
		report.Statuses[g.Status]++
		tactics.Add(ttp.Extract(g.Candidate.Hypothesis, g.Candidate.Tactic).Tactic)
	}
	report.Count = len(candidates)

	total := 0.0
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			s := d.detector.Compare(candidates[i].Candidate.Record(), candidates[j].Candidate.Record()).Overall
			total += s
			report.Pairs++
			if s > report.MaxSimilarity {
				report.MaxSimilarity = s
			}
		}
	}
	if report.Pairs > 0 {
		report.AverageSimilarity = total / float64(report.Pairs)
	}
	report.DiversityScore = 1 - report.AverageSimilarity
	report.Tactics = tactics.Sorted()
	return report
}
