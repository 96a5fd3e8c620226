package hunt

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordText(t *testing.T) {
	assert.Equal(t, "Title wins", Record{Title: "Title wins", Hypothesis: "ignored"}.Text())
	assert.Equal(t, "Falls back", Record{Title: "   ", Hypothesis: "Falls back"}.Text())
	assert.Equal(t, "", Record{}.Text())
}

func TestSplitTactics(t *testing.T) {
	assert.Equal(t, []string{"Execution", "Persistence"}, SplitTactics(" Execution, Persistence ,"))
	assert.Nil(t, SplitTactics(""))
}

func TestCandidateValidate(t *testing.T) {
	tests := []struct {
		name      string
		candidate Candidate
		field     string
	}{
		{"valid", Candidate{Hypothesis: "Adversaries abuse WMI", Tactic: "Execution"}, ""},
		{"no tactic is fine", Candidate{Hypothesis: "Adversaries abuse WMI"}, ""},
		{"blank hypothesis", Candidate{Hypothesis: "  "}, "hypothesis"},
		{"malformed tactic list", Candidate{Hypothesis: "Adversaries abuse WMI", Tactic: "Execution,,Persistence"}, "tactic"},
		{"blank tag", Candidate{Hypothesis: "Adversaries abuse WMI", Tags: []string{"wmi", ""}}, "tags"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.candidate.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			assert.True(t, IsValidation(fmt.Errorf("wrapped: %w", err)))
		})
	}
}

func TestFingerprint(t *testing.T) {
	corpus := []Record{
		{ID: "H001", Title: "PowerShell script execution detection", Tactic: "Execution"},
		{ID: "H002", Title: "DNS tunneling detection", Tactic: "Exfiltration"},
	}

	fp := Fingerprint(corpus)
	assert.Equal(t, fp, Fingerprint(corpus))
	assert.Len(t, fp, 64)

	edited := append([]Record(nil), corpus...)
	edited[1].Tactic = "Command and Control"
	assert.NotEqual(t, fp, Fingerprint(edited))

	reordered := []Record{corpus[1], corpus[0]}
	assert.NotEqual(t, fp, Fingerprint(reordered))
	assert.NotEqual(t, Fingerprint(nil), fp)
}

func TestFingerprintSeparatesTags(t *testing.T) {
	joined := []Record{{ID: "H001", Title: "DNS tunneling detection", Tags: []string{"a,b"}}}
	split := []Record{{ID: "H001", Title: "DNS tunneling detection", Tags: []string{"a", "b"}}}
	assert.NotEqual(t, Fingerprint(joined), Fingerprint(split))

	empty := []Record{{ID: "H001", Title: "DNS tunneling detection", Tags: []string{""}}}
	none := []Record{{ID: "H001", Title: "DNS tunneling detection"}}
	assert.NotEqual(t, Fingerprint(empty), Fingerprint(none))
}

func TestGenerationErrorUnwrap(t *testing.T) {
	cause := errors.New("rate limited")
	err := &GenerationError{Attempt: 2, Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "attempt 2")
}
