// Package textproc normalizes hunt hypothesis text before it is compared.
//
// Normalization lowercases, collapses whitespace, maps threat-hunting
// synonyms onto one canonical term and strips the boilerplate that almost
// every hypothesis opens or closes with, so that scorers compare what the
// hypothesis actually claims.
package textproc

import (
	"regexp"
	"sort"
	"strings"
)

// DefaultPhraseSize is the window length used for phrase extraction.
const DefaultPhraseSize = 3

type synonymRule struct {
	canonical string
	pattern   *regexp.Regexp
}

// canonicalTerms maps each canonical term to the variants replaced by it.
// Rules apply in this order.
var canonicalTerms = []struct {
	canonical string
	variants  []string
}{
	{"adversary", []string{"adversaries", "attacker", "attackers", "threat actor", "threat actors"}},
	{"malware", []string{"malicious software", "malicious code", "malicious payload"}},
	{"c2", []string{"command and control", "command-and-control", "c&c"}},
	{"persistence", []string{"maintain access", "persistent access"}},
	{"privilege escalation", []string{"elevate privileges", "gain elevated access"}},
	{"lateral movement", []string{"move laterally", "pivot"}},
	{"reconnaissance", []string{"recon", "discovery", "enumeration"}},
	{"exfiltration", []string{"data theft", "steal data", "extract data"}},
	{"defense evasion", []string{"evade detection", "bypass security"}},
}

var stopWords = NewSet(
	"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for", "of",
	"with", "by", "from", "as", "is", "are", "was", "were", "be", "been",
	"have", "has", "had", "do", "does", "did", "will", "would", "could",
	"should", "may", "might", "can", "that", "this", "these", "those",
	"they", "them", "their", "there", "where", "when", "why", "how", "what",
	"which", "who", "whom", "whose",
)

var (
	whitespacePattern = regexp.MustCompile(`\s+`)
	prefixPattern     = regexp.MustCompile(`^(?:adversary|adversaries|threat actors?|attackers?)\s+(?:are\s+)?`)
	suffixPattern     = regexp.MustCompile(`\s+(?:to\s+)?(?:gain|achieve|maintain|establish)\s+.*$`)
	keywordPattern    = regexp.MustCompile(`\b[a-z]{3,}\b`)
)

// Preprocessor holds the compiled dictionaries used for normalization.
// It is immutable after construction and safe for concurrent use.
type Preprocessor struct {
	synonyms  []synonymRule
	stopWords Set
}

// New compiles the built-in dictionaries.
func New() *Preprocessor {
	rules := make([]synonymRule, 0, len(canonicalTerms))
	for _, term := range canonicalTerms {
		variants := append([]string(nil), term.variants...)
		// Longest first so "attackers" is not consumed as "attacker" + "s".
		sort.SliceStable(variants, func(i, j int) bool {
			return len(variants[i]) > len(variants[j])
		})
		quoted := make([]string, len(variants))
		for i, v := range variants {
			quoted[i] = regexp.QuoteMeta(v)
		}
		rules = append(rules, synonymRule{
			canonical: term.canonical,
			pattern:   regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`),
		})
	}
	return &Preprocessor{synonyms: rules, stopWords: stopWords}
}

// Normalize lowercases text, canonicalizes domain terms and strips
// boilerplate prefixes and suffixes.
func (p *Preprocessor) Normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = whitespacePattern.ReplaceAllString(text, " ")

	for _, rule := range p.synonyms {
		text = rule.pattern.ReplaceAllLiteralString(text, rule.canonical)
	}

	text = prefixPattern.ReplaceAllString(text, "")
	text = suffixPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// Keywords extracts alphabetic words of three or more letters from the
// normalized text, excluding stop words.
func (p *Preprocessor) Keywords(text string) Set {
	keywords := make(Set)
	for _, word := range keywordPattern.FindAllString(p.Normalize(text), -1) {
		if !p.stopWords.Has(word) {
			keywords.Add(word)
		}
	}
	return keywords
}

// Phrases returns every n-word window of the normalized text that contains
// no stop word. A non-positive n uses DefaultPhraseSize.
func (p *Preprocessor) Phrases(text string, n int) Set {
	if n <= 0 {
		n = DefaultPhraseSize
	}
	words := strings.Fields(p.Normalize(text))
	phrases := make(Set)

window:
	for i := 0; i+n <= len(words); i++ {
		for _, w := range words[i : i+n] {
			if p.stopWords.Has(w) {
				continue window
			}
		}
		phrases.Add(strings.Join(words[i:i+n], " "))
	}
	return phrases
}

// IsStopWord reports whether word is in the stop-word list.
func (p *Preprocessor) IsStopWord(word string) bool {
	return p.stopWords.Has(strings.ToLower(word))
}

// WordCount counts whitespace separated tokens of the raw text.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
