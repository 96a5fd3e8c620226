package similarity

import (
	"strings"

	"github.com/a-marczewski/huntdedup/internal/hunt"
	"github.com/a-marczewski/huntdedup/internal/textproc"
)

// conceptGroups are coarse ATT&CK-inspired buckets. A keyword belongs to a
// bucket when it is one of the bucket words or contains one of them.
var conceptGroups = []struct {
	name  string
	words []string
}{
	{"persistence", []string{"persistence", "maintain", "establish", "backdoor", "foothold"}},
	{"execution", []string{"execute", "run", "launch", "invoke", "trigger"}},
	{"defense_evasion", []string{"evade", "bypass", "hide", "obfuscate", "mask"}},
	{"credential_access", []string{"credentials", "passwords", "tokens", "authentication"}},
	{"discovery", []string{"enumerate", "scan", "probe", "reconnaissance", "survey"}},
	{"lateral_movement", []string{"pivot", "move", "spread", "propagate"}},
	{"collection", []string{"collect", "gather", "harvest", "capture"}},
	{"command_control", []string{"c2", "command", "control", "communication"}},
	{"exfiltration", []string{"exfiltrate", "steal", "extract", "transfer"}},
	{"impact", []string{"damage", "destroy", "disrupt", "modify", "delete"}},
}

// Semantic compares what two hunts are about rather than how they are worded.
type Semantic struct {
	pre *textproc.Preprocessor
}

func NewSemantic(pre *textproc.Preprocessor) *Semantic {
	return &Semantic{pre: pre}
}

// Concepts maps the keywords of text onto concept buckets.
func (s *Semantic) Concepts(text string) textproc.Set {
	concepts := make(textproc.Set)
	for keyword := range s.pre.Keywords(text) {
		for _, group := range conceptGroups {
			if matchesConcept(keyword, group.words) {
				concepts.Add(group.name)
			}
		}
	}
	return concepts
}

func matchesConcept(keyword string, words []string) bool {
	for _, w := range words {
		if keyword == w || strings.Contains(keyword, w) {
			return true
		}
	}
	return false
}

// ConceptSimilarity is the Jaccard similarity of the concept buckets.
func (s *Semantic) ConceptSimilarity(a, b string) float64 {
	return JaccardSets(s.Concepts(a), s.Concepts(b))
}

// TacticSimilarity compares comma separated tactic lists case-insensitively.
func (s *Semantic) TacticSimilarity(tacticA, tacticB string) float64 {
	return JaccardSets(tacticSet(tacticA), tacticSet(tacticB))
}

// Score is the mean of concept and tactic similarity.
func (s *Semantic) Score(a, b hunt.Record) float64 {
	return (s.ConceptSimilarity(a.Text(), b.Text()) + s.TacticSimilarity(a.Tactic, b.Tactic)) / 2
}

func tacticSet(tactic string) textproc.Set {
	set := make(textproc.Set)
	for _, t := range hunt.SplitTactics(tactic) {
		set.Add(strings.ToLower(t))
	}
	return set
}
