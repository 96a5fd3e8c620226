package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/a-marczewski/huntdedup/internal/config"
	"github.com/a-marczewski/huntdedup/internal/hunt"
	"github.com/a-marczewski/huntdedup/internal/ttp"
)

// minHypothesisLength rejects replies that are clearly not a hypothesis.
const minHypothesisLength = 10

const systemPrompt = `You are a threat hunting analyst. Write ONE testable threat hunting hypothesis.
Reply with a single JSON object and nothing else:
{"hypothesis": "<one or two sentences>", "tactic": "<MITRE ATT&CK tactic>", "tags": ["<tag>", "..."]}`

// Completer is the chat completion surface shared by the HTTP and CLI clients.
type Completer interface {
	ChatCompletions(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error)
}

// NewCompleter picks the CLI client when a CLI provider is configured and
// the HTTP client otherwise.
func NewCompleter(cfg *config.Config) (Completer, error) {
	if cfg.LLMProvider != "" && IsCLIProvider(cfg.LLMProvider) {
		return NewCLIClient(cfg.LLMProvider, cfg.LLMModel)
	}
	return NewClient(cfg), nil
}

// HypothesisGenerator asks a model for candidate hypotheses. It satisfies
// dedup.Generator.
type HypothesisGenerator struct {
	client          Completer
	model           string
	maxRetries      int
	initialInterval time.Duration
	logger          *zap.Logger
}

// GeneratorOption configures a HypothesisGenerator
type GeneratorOption func(*HypothesisGenerator)

// WithModel sets the model requested from the server.
func WithModel(model string) GeneratorOption {
	return func(g *HypothesisGenerator) {
		g.model = model
	}
}

// WithMaxRetries sets how often a transient failure is retried.
func WithMaxRetries(n int) GeneratorOption {
	return func(g *HypothesisGenerator) {
		if n >= 0 {
			g.maxRetries = n
		}
	}
}

// WithInitialInterval sets the first retry delay.
func WithInitialInterval(d time.Duration) GeneratorOption {
	return func(g *HypothesisGenerator) {
		if d > 0 {
			g.initialInterval = d
		}
	}
}

// WithLogger sets the logger used for retry notices.
func WithLogger(logger *zap.Logger) GeneratorOption {
	return func(g *HypothesisGenerator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewHypothesisGenerator wraps client.
func NewHypothesisGenerator(client Completer, opts ...GeneratorOption) *HypothesisGenerator {
	g := &HypothesisGenerator{
		client:          client,
		maxRetries:      config.DefaultLLMMaxRetries,
		initialInterval: 500 * time.Millisecond,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Temperature rises with the attempt number so later attempts wander further.
func Temperature(attempt int) float64 {
	return math.Min(0.3+0.1*float64(attempt), 0.9)
}

// Generate requests one candidate for prompt.
func (g *HypothesisGenerator) Generate(ctx context.Context, prompt string, attempt int) (hunt.Candidate, error) {
	req := ChatCompletionRequest{
		Model: g.model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: Temperature(attempt),
	}

	var resp *ChatCompletionResponse
	operation := func() error {
		r, err := g.client.ChatCompletions(ctx, req)
		if err != nil {
			if !isTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	}

	var policy backoff.BackOff = &backoff.StopBackOff{}
	if g.maxRetries > 0 {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = g.initialInterval
		policy = backoff.WithMaxRetries(b, uint64(g.maxRetries))
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		g.logger.Warn("LLM request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))
	})
	if err != nil {
		return hunt.Candidate{}, err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return hunt.Candidate{}, hunt.ErrNoCandidate
	}

	return ParseCandidate(resp.Choices[0].Message.Content)
}

// isTransient reports whether err is worth another request.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return true
}

// rawCandidate mirrors the JSON reply. Tags may be a list or a comma string.
type rawCandidate struct {
	Hypothesis string          `json:"hypothesis"`
	Tactic     string          `json:"tactic"`
	Tags       json.RawMessage `json:"tags"`
}

// ParseCandidate decodes a model reply into a candidate.
func ParseCandidate(content string) (hunt.Candidate, error) {
	body := stripCodeFence(content)
	if start, end := strings.Index(body, "{"), strings.LastIndex(body, "}"); start >= 0 && end > start {
		body = body[start : end+1]
	}

	var raw rawCandidate
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return hunt.Candidate{}, &hunt.ValidationError{Field: "response", Message: fmt.Sprintf("reply is not a JSON object: %v", err)}
	}

	hypothesis := strings.TrimSpace(raw.Hypothesis)
	if len(hypothesis) < minHypothesisLength {
		return hunt.Candidate{}, &hunt.ValidationError{Field: "hypothesis", Value: hypothesis, Message: "hypothesis is too short"}
	}

	tags, err := parseTags(raw.Tags)
	if err != nil {
		return hunt.Candidate{}, err
	}

	tactic := strings.TrimSpace(raw.Tactic)
	if canonical, ok := ttp.CanonicalTactic(tactic); ok {
		tactic = ttp.TacticTitle(canonical)
	}

	return hunt.Candidate{Hypothesis: hypothesis, Tactic: tactic, Tags: tags}, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.Index(s, "\n"); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

func parseTags(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var items []string
	if err := json.Unmarshal(raw, &items); err != nil {
		var joined string
		if err := json.Unmarshal(raw, &joined); err != nil {
			return nil, &hunt.ValidationError{Field: "tags", Value: string(raw), Message: "tags must be a list or a comma separated string"}
		}
		items = strings.Split(joined, ",")
	}

	tags := make([]string, 0, len(items))
	for _, item := range items {
		tag := strings.ToLower(strings.TrimSpace(item))
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags, nil
}
