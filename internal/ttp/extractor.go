// Package ttp extracts ATT&CK tactics, techniques and procedures from hunt
// hypotheses and tracks how diverse a generation session has been.
package ttp

import (
	"strings"

	"github.com/a-marczewski/huntdedup/internal/textproc"
)

// Set is the TTP profile of one hypothesis. It is never mutated after
// Extract returns it.
type Set struct {
	Tactic      string       `json:"tactic"`
	Techniques  textproc.Set `json:"techniques"`
	Procedures  textproc.Set `json:"procedures"`
	Tools       textproc.Set `json:"tools"`
	Targets     textproc.Set `json:"targets"`
	DataSources textproc.Set `json:"data_sources"`
}

// Extract derives the TTP profile of a hypothesis. tacticHint is used when
// it names a canonical tactic.
func Extract(hypothesis, tacticHint string) Set {
	text := strings.ToLower(hypothesis)
	return Set{
		Tactic:      extractTactic(text, tacticHint),
		Techniques:  extractTechniques(text),
		Procedures:  extractProcedures(text),
		Tools:       matchVocabulary(text, tools),
		Targets:     matchVocabulary(text, Targets),
		DataSources: matchVocabulary(text, dataSources),
	}
}

func extractTactic(text, hint string) string {
	if tactic, ok := CanonicalTactic(hint); ok {
		return tactic
	}

	for _, tactic := range Tactics {
		if strings.Contains(text, tactic) {
			return tactic
		}
	}

	for _, row := range tacticHints {
		if containsAny(text, row.words) {
			return row.tactic
		}
	}

	return DefaultTactic
}

func extractTechniques(text string) textproc.Set {
	techniques := make(textproc.Set)
	for _, kw := range techniqueKeywords {
		if strings.Contains(text, kw.keyword) {
			techniques.Add(kw.id)
		}
	}
	for _, p := range techniquePatterns {
		if p.pattern.MatchString(text) {
			techniques.Add(p.id)
		}
	}
	return techniques
}

func extractProcedures(text string) textproc.Set {
	procedures := make(textproc.Set)
	for _, rule := range procedureRules {
		if !containsAll(text, rule.all) {
			continue
		}
		if len(rule.any) > 0 && !containsAny(text, rule.any) {
			continue
		}
		procedures.Add(rule.procedure)
	}
	return procedures
}

func matchVocabulary(text string, vocabulary []string) textproc.Set {
	found := make(textproc.Set)
	for _, term := range vocabulary {
		if strings.Contains(text, term) {
			found.Add(term)
		}
	}
	return found
}

func containsAll(text string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(text, w) {
			return false
		}
	}
	return true
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
