package similarity

import (
	"strings"
	"testing"

	"github.com/a-marczewski/huntdedup/internal/hunt"
	"github.com/a-marczewski/huntdedup/internal/textproc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var samplePairs = [][2]string{
	{"Adversaries use PowerShell Invoke-WebRequest to download payloads", "Threat actors leverage PowerShell for remote command execution"},
	{"Detect PowerShell script execution patterns", "DNS tunneling detection"},
	{"Attackers use scheduled tasks for persistence", "Adversaries create services to maintain access"},
	{"", "DNS tunneling detection"},
	{"the of and", "is a to"},
	{"🔥 Ünïcödé adversaries!!! ??? ---", "((( powershell.exe ))) ;;; C&C"},
	{"short", strings.Repeat("Adversaries pivot through SMB shares using stolen credentials. ", 40)},
}

func TestScorersAreSymmetric(t *testing.T) {
	pre := textproc.New()
	lex := NewLexical(pre)
	sem := NewSemantic(pre)
	st := NewStructural(pre)

	scorers := map[string]func(a, b string) float64{
		"jaccard":            lex.Jaccard,
		"cosine":             lex.Cosine,
		"edit_ratio":         lex.EditRatio,
		"phrase_overlap":     lex.PhraseOverlap,
		"concept":            sem.ConceptSimilarity,
		"tactic":             sem.TacticSimilarity,
		"sentence_structure": st.SentenceStructure,
		"length":             st.Length,
	}

	for name, score := range scorers {
		t.Run(name, func(t *testing.T) {
			for _, pair := range samplePairs {
				assert.Equal(t, score(pair[0], pair[1]), score(pair[1], pair[0]), "pair %q / %q", pair[0], pair[1])
			}
		})
	}
}

func TestEmptyInputConvention(t *testing.T) {
	pre := textproc.New()
	lex := NewLexical(pre)
	sem := NewSemantic(pre)

	tests := []struct {
		name     string
		score    func(a, b string) float64
		bothA    string
		bothB    string
		nonEmpty string
	}{
		{"keyword", lex.Jaccard, "", "the of and", "DNS tunneling detection"},
		{"cosine", lex.Cosine, "", "is a", "DNS tunneling detection"},
		{"phrase", lex.PhraseOverlap, "two words", "", "DNS tunneling detection"},
		{"concept", sem.ConceptSimilarity, "DNS tunneling detection", "", "Adversaries launch implants"},
		{"tactic", sem.TacticSimilarity, "", " , ", "Execution"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, 1.0, tt.score(tt.bothA, tt.bothB), "both empty")
			assert.Equal(t, 0.0, tt.score(tt.bothA, tt.nonEmpty), "one empty")
			assert.Equal(t, 0.0, tt.score(tt.nonEmpty, tt.bothA), "one empty, reversed")
		})
	}
}

func TestEditRatio(t *testing.T) {
	assert.Equal(t, 1.0, EditRatio("abc", "abc"))
	assert.Equal(t, 1.0, EditRatio("", ""))
	assert.Equal(t, 0.0, EditRatio("abc", ""))
	assert.InDelta(t, 0.5, EditRatio("abcd", "abxy"), 1e-9)
	assert.Equal(t, EditRatio("tunnel", "tunneling"), EditRatio("tunneling", "tunnel"))
}

func TestConcepts(t *testing.T) {
	sem := NewSemantic(textproc.New())

	assert.Equal(t, []string{"execution"}, sem.Concepts("Adversaries use PowerShell Invoke-WebRequest to download payloads").Sorted())
	assert.Equal(t, []string{"command_control"}, sem.Concepts("Threat actors leverage PowerShell for remote command execution").Sorted())
	assert.Equal(t, []string{"credential_access", "exfiltration"}, sem.Concepts("Adversaries steal browser credentials").Sorted())
	assert.Equal(t, 1.0, sem.TacticSimilarity("Execution, Persistence", "persistence,execution"))
	assert.InDelta(t, 1.0/3.0, sem.TacticSimilarity("Execution, Persistence", "Execution, Discovery"), 1e-9)
}

func TestStructuralPattern(t *testing.T) {
	st := NewStructural(textproc.New())

	assert.Equal(t, "use TOOL to ACTION OBJECT via EXECUTABLE",
		st.Pattern("Adversaries use PowerShell to modify registry via evil.exe"))
	assert.Equal(t, 1.0, st.SentenceStructure(
		"Adversaries use PowerShell to modify registry",
		"Adversaries use bash to delete file"))
	assert.Equal(t, 0.5, st.Length("a b c", "a b c d e f"))
	assert.Equal(t, 1.0, st.Length("", " "))
	assert.Equal(t, 0.0, st.Length("", "one"))
}

func TestCompareIdentity(t *testing.T) {
	d := NewDetector()
	h := hunt.Record{ID: "H001", Hypothesis: "Adversaries use PowerShell Invoke-WebRequest to download payloads", Tactic: "Execution"}

	score := d.Compare(h, h)
	assert.InDelta(t, 1.0, score.Lexical, 1e-9)
	assert.InDelta(t, 1.0, score.Structural, 1e-9)
	assert.InDelta(t, 1.0, score.Semantic, 1e-9)
	assert.InDelta(t, 1.0, score.Overall, 1e-9)
	assert.InDelta(t, 0.35, score.Confidence, 1e-9)
	assert.Empty(t, score.Degraded)
}

func TestCompareMissingTextIsZero(t *testing.T) {
	d := NewDetector()
	full := hunt.Record{Title: "DNS tunneling detection", Tactic: "Exfiltration"}

	assert.Equal(t, Score{}, d.Compare(full, hunt.Record{Tactic: "Exfiltration"}))
	assert.Equal(t, Score{}, d.Compare(hunt.Record{Title: "  "}, full))
}

func TestScoresStayInRange(t *testing.T) {
	d := NewDetector()
	inRange := func(t *testing.T, name string, v float64) {
		t.Helper()
		assert.GreaterOrEqual(t, v, 0.0, name)
		assert.LessOrEqual(t, v, 1.0, name)
	}

	for _, pair := range samplePairs {
		score := d.Compare(hunt.Record{Hypothesis: pair[0], Tactic: "Execution"}, hunt.Record{Hypothesis: pair[1], Tactic: "Impact, Execution"})
		inRange(t, "overall", score.Overall)
		inRange(t, "lexical", score.Lexical)
		inRange(t, "semantic", score.Semantic)
		inRange(t, "structural", score.Structural)
		inRange(t, "keyword_overlap", score.KeywordOverlap)
		inRange(t, "confidence", score.Confidence)
	}
}

func TestFindSimilarRanksCorpus(t *testing.T) {
	d := NewDetector()
	corpus := []hunt.Record{
		{ID: "H001", Title: "PowerShell script execution detection", Tactic: "Execution"},
		{ID: "H002", Title: "DNS tunneling detection", Tactic: "Exfiltration"},
	}
	candidate := hunt.Record{Title: "Detect PowerShell script execution patterns", Tactic: "Execution"}

	matches := d.FindSimilar(candidate, corpus, 0.3)
	require.Len(t, matches, 1)
	assert.Equal(t, "H001", matches[0].Record.ID)
	assert.Equal(t, 0, matches[0].Index)
	assert.InDelta(t, 0.723, matches[0].Score.Overall, 0.01)

	assert.Empty(t, d.FindSimilar(candidate, corpus, 0.9))
	assert.Len(t, d.FindSimilar(candidate, corpus, 0.0), 2)
}

func TestFindSimilarKeepsCorpusOrderOnTies(t *testing.T) {
	d := NewDetector()
	rec := hunt.Record{Title: "Kerberoasting detection", Tactic: "Credential Access"}
	corpus := []hunt.Record{
		{ID: "first", Title: rec.Title, Tactic: rec.Tactic},
		{ID: "second", Title: rec.Title, Tactic: rec.Tactic},
		{ID: "other", Title: "Unrelated ransomware hunt", Tactic: "Impact"},
	}

	matches := d.FindSimilar(rec, corpus, 0.5)
	require.Len(t, matches, 2)
	assert.Equal(t, "first", matches[0].Record.ID)
	assert.Equal(t, "second", matches[1].Record.ID)
}

func TestMeasureFallsBackToNeutral(t *testing.T) {
	d := NewDetector()

	v, ok := d.measure("boom", func() float64 { panic("malformed input") })
	assert.False(t, ok)
	assert.Equal(t, NeutralScore, v)

	v, ok = d.measure("overflow", func() float64 { return 1.5 })
	assert.False(t, ok)
	assert.Equal(t, NeutralScore, v)

	v, ok = d.measure("fine", func() float64 { return 0.25 })
	assert.True(t, ok)
	assert.Equal(t, 0.25, v)
}

func TestWeightsValidate(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())
	assert.Error(t, Weights{Lexical: 0.5, Semantic: 0.5, Structural: 0.5}.Validate())
	assert.Error(t, Weights{Lexical: 1.2, Semantic: -0.2}.Validate())

	d := NewDetector(WithWeights(Weights{Lexical: 1}))
	assert.Equal(t, 1.0, d.Weights().Lexical)
}

func TestReport(t *testing.T) {
	d := NewDetector()
	candidate := hunt.Record{Title: "Detect PowerShell script execution patterns"}

	assert.Contains(t, d.Report(candidate, nil), "No similar hunts")

	var matches []Match
	for i := 0; i < 7; i++ {
		matches = append(matches, Match{Index: i, Record: hunt.Record{ID: "H00" + string(rune('0'+i)), Title: "x"}, Score: Score{Overall: 0.8}})
	}
	report := d.Report(candidate, matches)
	assert.Contains(t, report, "Found 7")
	assert.Contains(t, report, "H004")
	assert.NotContains(t, report, "H005")
	assert.Contains(t, report, "2 more")
}
