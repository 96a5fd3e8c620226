package similarity

import (
	"math"
	"strings"

	"github.com/a-marczewski/huntdedup/internal/textproc"
	"github.com/pmezard/go-difflib/difflib"
)

// Lexical compares the surface wording of two texts.
type Lexical struct {
	pre *textproc.Preprocessor
}

// NewLexical creates a lexical scorer sharing the given preprocessor.
func NewLexical(pre *textproc.Preprocessor) *Lexical {
	return &Lexical{pre: pre}
}

// Jaccard is the keyword-set Jaccard similarity.
func (l *Lexical) Jaccard(a, b string) float64 {
	return JaccardSets(l.pre.Keywords(a), l.pre.Keywords(b))
}

// Cosine treats each keyword set as a binary presence vector.
func (l *Lexical) Cosine(a, b string) float64 {
	return CosineSets(l.pre.Keywords(a), l.pre.Keywords(b))
}

// EditRatio compares the normalized strings character by character.
func (l *Lexical) EditRatio(a, b string) float64 {
	return EditRatio(l.pre.Normalize(a), l.pre.Normalize(b))
}

// PhraseOverlap is the Jaccard similarity of stop-word free 3-word phrases.
func (l *Lexical) PhraseOverlap(a, b string) float64 {
	return JaccardSets(l.pre.Phrases(a, textproc.DefaultPhraseSize), l.pre.Phrases(b, textproc.DefaultPhraseSize))
}

// Score is the unweighted mean of the four lexical scorers.
func (l *Lexical) Score(a, b string) float64 {
	return (l.Jaccard(a, b) + l.Cosine(a, b) + l.EditRatio(a, b) + l.PhraseOverlap(a, b)) / 4
}

// JaccardSets returns |A∩B| / |A∪B|; two empty sets are identical and
// exactly one empty set shares nothing.
func JaccardSets(a, b textproc.Set) float64 {
	if a.Len() == 0 && b.Len() == 0 {
		return 1.0
	}
	if a.Len() == 0 || b.Len() == 0 {
		return 0.0
	}
	return float64(a.IntersectionSize(b)) / float64(a.UnionSize(b))
}

// CosineSets is cosine similarity over binary vectors on the union
// vocabulary, which reduces to |A∩B| / sqrt(|A|·|B|).
func CosineSets(a, b textproc.Set) float64 {
	if a.Len() == 0 && b.Len() == 0 {
		return 1.0
	}
	if a.Len() == 0 || b.Len() == 0 {
		return 0.0
	}
	return float64(a.IntersectionSize(b)) / math.Sqrt(float64(a.Len())*float64(b.Len()))
}

// EditRatio is the difflib matching-blocks ratio averaged over both
// argument orders, since a single SequenceMatcher pass is not symmetric.
func EditRatio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	ra, rb := strings.Split(a, ""), strings.Split(b, "")
	forward := difflib.NewMatcher(ra, rb).Ratio()
	backward := difflib.NewMatcher(rb, ra).Ratio()
	return (forward + backward) / 2
}
