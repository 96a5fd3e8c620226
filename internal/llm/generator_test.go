package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a-marczewski/huntdedup/internal/hunt"
)

// scriptedCompleter returns the queued replies in order
type scriptedCompleter struct {
	replies  []string
	errs     []error
	requests []ChatCompletionRequest
}

func (s *scriptedCompleter) ChatCompletions(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	i := len(s.requests)
	s.requests = append(s.requests, req)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	content := ""
	if i < len(s.replies) {
		content = s.replies[i]
	}
	return &ChatCompletionResponse{Choices: []Choice{{Message: Message{Role: "assistant", Content: content}}}}, nil
}

const validReply = `{"hypothesis": "Adversaries abuse scheduled tasks to persist on servers", "tactic": "persistence", "tags": ["Scheduled-Task", " windows "]}`

func newTestGenerator(c Completer, retries int) *HypothesisGenerator {
	return NewHypothesisGenerator(c,
		WithModel("test-model"),
		WithMaxRetries(retries),
		WithInitialInterval(time.Millisecond))
}

func TestTemperature(t *testing.T) {
	assert.InDelta(t, 0.3, Temperature(0), 1e-9)
	assert.InDelta(t, 0.5, Temperature(2), 1e-9)
	assert.InDelta(t, 0.9, Temperature(6), 1e-9)
	assert.InDelta(t, 0.9, Temperature(20), 1e-9)
}

func TestGenerate(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{validReply}}
	gen := newTestGenerator(completer, 0)

	candidate, err := gen.Generate(context.Background(), "hunt for persistence", 1)
	require.NoError(t, err)
	assert.Equal(t, "Adversaries abuse scheduled tasks to persist on servers", candidate.Hypothesis)
	assert.Equal(t, "Persistence", candidate.Tactic)
	assert.Equal(t, []string{"scheduled-task", "windows"}, candidate.Tags)

	require.Len(t, completer.requests, 1)
	req := completer.requests[0]
	assert.Equal(t, "test-model", req.Model)
	assert.InDelta(t, 0.4, req.Temperature, 1e-9)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "hunt for persistence", req.Messages[1].Content)
}

func TestGenerateRetriesTransientErrors(t *testing.T) {
	completer := &scriptedCompleter{
		errs: []error{
			&StatusError{StatusCode: http.StatusServiceUnavailable},
			errors.New("connection reset"),
		},
		replies: []string{"", "", validReply},
	}
	gen := newTestGenerator(completer, 3)

	candidate, err := gen.Generate(context.Background(), "p", 0)
	require.NoError(t, err)
	assert.Equal(t, "Persistence", candidate.Tactic)
	assert.Len(t, completer.requests, 3)
}

func TestGenerateStopsOnPermanentError(t *testing.T) {
	completer := &scriptedCompleter{
		errs: []error{&StatusError{StatusCode: http.StatusUnauthorized, Body: "bad key"}},
	}
	gen := newTestGenerator(completer, 3)

	_, err := gen.Generate(context.Background(), "p", 0)
	require.Error(t, err)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Len(t, completer.requests, 1)
}

func TestGenerateGivesUpAfterMaxRetries(t *testing.T) {
	unavailable := &StatusError{StatusCode: http.StatusBadGateway}
	completer := &scriptedCompleter{errs: []error{unavailable, unavailable, unavailable, unavailable}}
	gen := newTestGenerator(completer, 2)

	_, err := gen.Generate(context.Background(), "p", 0)
	require.Error(t, err)
	assert.Len(t, completer.requests, 3)
}

func TestGenerateInvalidReply(t *testing.T) {
	gen := newTestGenerator(&scriptedCompleter{replies: []string{"I cannot help with that."}}, 0)

	_, err := gen.Generate(context.Background(), "p", 0)
	require.Error(t, err)
	assert.True(t, hunt.IsValidation(err))
}

func TestParseCandidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    hunt.Candidate
		wantErr bool
	}{
		{
			name:    "fenced json",
			content: "```json\n" + `{"hypothesis": "Attackers tunnel data over DNS queries", "tactic": "Exfiltration", "tags": "dns, Tunneling"}` + "\n```",
			want:    hunt.Candidate{Hypothesis: "Attackers tunnel data over DNS queries", Tactic: "Exfiltration", Tags: []string{"dns", "tunneling"}},
		},
		{
			name:    "prose around object",
			content: `Here you go: {"hypothesis": "Adversaries dump LSASS memory for credentials"} Hope this helps.`,
			want:    hunt.Candidate{Hypothesis: "Adversaries dump LSASS memory for credentials"},
		},
		{
			name:    "unknown tactic kept verbatim",
			content: `{"hypothesis": "Adversaries abuse cloud APIs for staging", "tactic": "Cloud Abuse"}`,
			want:    hunt.Candidate{Hypothesis: "Adversaries abuse cloud APIs for staging", Tactic: "Cloud Abuse"},
		},
		{name: "too short", content: `{"hypothesis": "short"}`, wantErr: true},
		{name: "bad tags", content: `{"hypothesis": "Adversaries abuse WMI for execution", "tags": 7}`, wantErr: true},
		{name: "not json", content: "no object here", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCandidate(tt.content)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, hunt.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
