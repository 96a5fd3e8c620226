package ttp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	downloadHypothesis = "Adversaries use PowerShell Invoke-WebRequest to download payloads"
	remoteHypothesis   = "Threat actors leverage PowerShell for remote command execution"
	scheduleHypothesis = "Attackers use scheduled tasks for persistence"
	mimikatzHypothesis = "Adversaries use mimikatz to dump lsass credentials"
)

func TestExtractTacticFallbackChain(t *testing.T) {
	tests := []struct {
		name       string
		hypothesis string
		hint       string
		expected   string
	}{
		{"hint wins", "Something unrelated happening", "Impact", "impact"},
		{"hint is case-insensitive", "Adversaries perform lateral movement via SMB", "  PERSISTENCE ", "persistence"},
		{"tactic named in text", "Adversaries perform lateral movement via SMB", "", "lateral movement"},
		{"unknown hint falls through to text", "Adversaries perform lateral movement via SMB", "Lateral Moves", "lateral movement"},
		{"keyword inference", "Attackers abuse the registry", "", "persistence"},
		{"inference table order", mimikatzHypothesis, "", "credential access"},
		{"beacon implies c2", "Hunt sysmon and dns logs for beaconing", "", "command and control"},
		{"default", "Something unrelated happening", "", DefaultTactic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Extract(tt.hypothesis, tt.hint).Tactic)
		})
	}
}

func TestExtractFacets(t *testing.T) {
	s := Extract(downloadHypothesis, "Execution")
	assert.Equal(t, "execution", s.Tactic)
	assert.Equal(t, []string{"T1059.001"}, s.Techniques.Sorted())
	assert.Equal(t, []string{"invoke-webrequest download"}, s.Procedures.Sorted())
	assert.Equal(t, []string{"powershell"}, s.Tools.Sorted())
	assert.Equal(t, 0, s.Targets.Len())

	s = Extract(mimikatzHypothesis, "")
	assert.Equal(t, []string{"T1003", "T1003.001"}, s.Techniques.Sorted())
	assert.Equal(t, []string{"mimikatz"}, s.Tools.Sorted())

	s = Extract("Adversaries tunnel traffic through chisel to bypass egress filtering", "")
	assert.Equal(t, []string{"chisel tunneling tool usage", "network tunneling bypass"}, s.Procedures.Sorted())
	assert.Equal(t, []string{"T1090"}, s.Techniques.Sorted())

	s = Extract("Phishing email with a malicious macro attachment", "")
	assert.Equal(t, []string{"T1059", "T1566"}, s.Techniques.Sorted())

	s = Extract("Adversaries perform DLL injection into explorer", "")
	assert.Equal(t, []string{"T1055"}, s.Techniques.Sorted())
	assert.Equal(t, []string{"dll injection"}, s.Procedures.Sorted())

	s = Extract("Adversaries install a new service to survive reboots", "")
	assert.Equal(t, []string{"service installation"}, s.Procedures.Sorted())

	s = Extract("Hunt sysmon and dns logs for beaconing", "")
	assert.Equal(t, []string{"dns logs", "sysmon"}, s.DataSources.Sorted())
	assert.Equal(t, []string{"dns"}, s.Targets.Sorted())
}

func TestExtractEmptyHypothesis(t *testing.T) {
	s := Extract("", "")
	assert.Equal(t, DefaultTactic, s.Tactic)
	assert.NotNil(t, s.Techniques)
	assert.Equal(t, 0, s.Techniques.Len())
	assert.Equal(t, 0, s.Procedures.Len())
	assert.Equal(t, 0, s.Tools.Len())
	assert.Equal(t, 0, s.Targets.Len())
	assert.Equal(t, 0, s.DataSources.Len())
}

func TestCheckFirstHypothesisAccepted(t *testing.T) {
	for _, hyp := range []string{downloadHypothesis, "x", mimikatzHypothesis} {
		c := NewChecker(DefaultThreshold, DefaultWeights())
		o := c.Check(hyp, "")
		assert.False(t, o.TooSimilar)
		assert.Equal(t, 0.0, o.Score)
		assert.Equal(t, -1, o.MatchedIndex)
		assert.Contains(t, o.Explanation, "First hypothesis")
		assert.Equal(t, 1, c.Len())
	}
}

func TestCheckDuplicateRejection(t *testing.T) {
	c := NewChecker(DefaultThreshold, DefaultWeights())
	c.Check(downloadHypothesis, "Execution")

	o := c.Check(remoteHypothesis, "Execution")
	assert.True(t, o.TooSimilar)
	assert.True(t, o.IsTooSimilar(DefaultThreshold))
	assert.True(t, o.TacticMatch)
	assert.Equal(t, 1.0, o.TechniqueOverlap)
	assert.Equal(t, 0.5, o.ToolOverlap)
	assert.InDelta(t, 0.625, o.Score, 1e-9)
	assert.Equal(t, 0, o.MatchedIndex)
	assert.Contains(t, o.Explanation, "Same MITRE ATT&CK tactic")
	assert.Equal(t, 1, c.Len(), "rejected candidates are not recorded")
}

func TestCheckDiverseAcceptance(t *testing.T) {
	c := NewChecker(DefaultThreshold, DefaultWeights())
	c.Check(downloadHypothesis, "Execution")

	o := c.Check(scheduleHypothesis, "Persistence")
	assert.False(t, o.TooSimilar)
	assert.False(t, o.TacticMatch)
	assert.Equal(t, 0.0, o.Score)
	assert.Equal(t, "TTPs appear diverse with minimal overlap", o.Explanation)
	assert.Equal(t, 2, c.Len())
}

func TestCheckUsesMaximumOverHistory(t *testing.T) {
	c := NewChecker(1.0, DefaultWeights())
	history := []struct{ hyp, hint string }{
		{mimikatzHypothesis, ""},
		{downloadHypothesis, "Execution"},
		{scheduleHypothesis, "Persistence"},
	}
	for _, h := range history {
		c.Check(h.hyp, h.hint)
	}
	require.Equal(t, 3, c.Len())

	candidate := Extract(remoteHypothesis, "Execution")
	var scores []float64
	for _, prior := range c.History() {
		scores = append(scores, Compare(candidate, prior, DefaultWeights()).Score)
	}

	o := c.Evaluate(remoteHypothesis, "Execution")
	maxScore, sum := 0.0, 0.0
	for _, s := range scores {
		if s > maxScore {
			maxScore = s
		}
		sum += s
	}
	assert.Equal(t, maxScore, o.Score)
	assert.NotEqual(t, sum/float64(len(scores)), o.Score)
	assert.Equal(t, 1, o.MatchedIndex)
	assert.Equal(t, 3, c.Len(), "evaluate does not record")
}

func TestThresholdBoundaryIsStrict(t *testing.T) {
	c := NewChecker(0.3, DefaultWeights())
	c.Check("Something unrelated happening", "Impact")

	// Same tactic with no other facets scores exactly the tactic weight.
	o := c.Evaluate("Nothing else noteworthy", "Impact")
	assert.Equal(t, 0.3, o.Score)
	assert.False(t, o.TooSimilar)

	o = c.Check("Nothing else noteworthy", "Impact")
	assert.False(t, o.TooSimilar)
	assert.Equal(t, 2, c.Len())

	strict := NewChecker(0.29, DefaultWeights())
	strict.Check("Something unrelated happening", "Impact")
	o = strict.Check("Nothing else noteworthy", "Impact")
	assert.True(t, o.TooSimilar)
	assert.Equal(t, 1, strict.Len())
}

func TestEmptyHypothesisOverlapIsTacticOnly(t *testing.T) {
	c := NewChecker(DefaultThreshold, DefaultWeights())
	c.Check("", "")

	o := c.Evaluate("", "")
	assert.True(t, o.TacticMatch)
	assert.Equal(t, 0.0, o.TechniqueOverlap)
	assert.Equal(t, 0.0, o.ProcedureOverlap)
	assert.Equal(t, 0.0, o.ToolOverlap)
	assert.Equal(t, 0.0, o.TargetOverlap)
	assert.Equal(t, 0.3, o.Score)
	assert.False(t, o.TooSimilar)
}

func TestHistoryMonotonicity(t *testing.T) {
	c := NewChecker(DefaultThreshold, DefaultWeights())
	inputs := []struct{ hyp, hint string }{
		{downloadHypothesis, "Execution"},
		{remoteHypothesis, "Execution"},
		{scheduleHypothesis, "Persistence"},
		{downloadHypothesis, "Execution"},
		{mimikatzHypothesis, ""},
		{"Adversaries perform lateral movement via SMB", ""},
		{"", ""},
	}

	for _, in := range inputs {
		before := c.Len()
		o := c.Check(in.hyp, in.hint)
		if o.TooSimilar {
			assert.Equal(t, before, c.Len(), "rejected %q", in.hyp)
		} else {
			assert.Equal(t, before+1, c.Len(), "accepted %q", in.hyp)
		}
	}
}

func TestOverlapScoresInRange(t *testing.T) {
	hyps := []string{"", downloadHypothesis, remoteHypothesis, "🔥🔥 ;;; c2 proxy socks tunnel chisel ngrok rdp smb ssh", "Ünïcödé"}
	for _, a := range hyps {
		for _, b := range hyps {
			o := Compare(Extract(a, ""), Extract(b, ""), DefaultWeights())
			for _, v := range []float64{o.Score, o.TechniqueOverlap, o.ProcedureOverlap, o.ToolOverlap, o.TargetOverlap} {
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 1.0)
			}
		}
	}
}

func TestStatsAndSuggestions(t *testing.T) {
	c := NewChecker(DefaultThreshold, DefaultWeights())
	c.Check(downloadHypothesis, "Execution")
	c.Check(scheduleHypothesis, "Persistence")
	c.Check(remoteHypothesis, "Execution")

	stats := c.Stats()
	assert.Equal(t, 2, stats.TotalAttempts)
	assert.Equal(t, 2, stats.UniqueTactics)
	assert.Equal(t, []string{"execution", "persistence"}, stats.TacticsUsed)
	assert.Equal(t, 2, stats.UniqueTechniques)

	s := c.Suggestions()
	assert.Len(t, s.UnusedTactics, 10)
	assert.Equal(t, "initial access", s.UnusedTactics[0])
	assert.NotContains(t, s.UnusedTactics, "execution")
	assert.Len(t, s.UnusedTargets, 5)

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.UsedTactics())
}

func TestWeightsValidate(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())
	assert.Error(t, Weights{Tactic: 0.5}.Validate())
	assert.Error(t, Weights{Tactic: -0.5, Technique: 1.5}.Validate())
}

func TestTacticTitle(t *testing.T) {
	assert.Equal(t, "Command and Control", TacticTitle("command and control"))
	assert.Equal(t, "Custom", TacticTitle("Custom"))
	_, ok := CanonicalTactic("Lateral Movement")
	assert.True(t, ok)
}
