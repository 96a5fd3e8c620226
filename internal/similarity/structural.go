package similarity

import (
	"regexp"

	"github.com/a-marczewski/huntdedup/internal/textproc"
)

// Placeholders are upper case so they never collide with normalized text.
var structurePatterns = []struct {
	pattern     *regexp.Regexp
	placeholder string
}{
	{regexp.MustCompile(`\b(?:powershell|cmd|bash|python|javascript)\b`), "TOOL"},
	{regexp.MustCompile(`\b(?:file|registry|process|network|service)\b`), "OBJECT"},
	{regexp.MustCompile(`\b(?:create|modify|delete|execute|access)\b`), "ACTION"},
	{regexp.MustCompile(`\b\w+\.(?:exe|dll|bat|ps1|sh)\b`), "EXECUTABLE"},
}

// Structural compares the shape of two hypotheses.
type Structural struct {
	pre *textproc.Preprocessor
}

func NewStructural(pre *textproc.Preprocessor) *Structural {
	return &Structural{pre: pre}
}

// Pattern abstracts tools, objects, actions and executables in the
// normalized text into placeholder tokens.
func (s *Structural) Pattern(text string) string {
	pattern := s.pre.Normalize(text)
	for _, p := range structurePatterns {
		pattern = p.pattern.ReplaceAllLiteralString(pattern, p.placeholder)
	}
	return pattern
}

// SentenceStructure is the edit ratio between the two placeholder patterns.
func (s *Structural) SentenceStructure(a, b string) float64 {
	return EditRatio(s.Pattern(a), s.Pattern(b))
}

// Length is the ratio of the shorter word count to the longer one.
func (s *Structural) Length(a, b string) float64 {
	na, nb := textproc.WordCount(a), textproc.WordCount(b)
	if na == 0 && nb == 0 {
		return 1.0
	}
	if na == 0 || nb == 0 {
		return 0.0
	}
	if na > nb {
		na, nb = nb, na
	}
	return float64(na) / float64(nb)
}

// Score is the mean of sentence structure and length similarity.
func (s *Structural) Score(a, b string) float64 {
	return (s.SentenceStructure(a, b) + s.Length(a, b)) / 2
}
