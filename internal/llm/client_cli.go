package llm

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CLIClient wraps CLI-based LLM tools (Claude, Gemini, etc.)
// Provides the same interface as HTTP client but executes shell commands
type CLIClient struct {
	command     string   // e.g., "claude", "gemini", "sgpt"
	args        []string // base arguments
	model       string
	contextMode string // "stdin" or "args"
}

// CLIProviderConfig defines how to invoke a specific CLI tool
type CLIProviderConfig struct {
	Command     string
	BaseArgs    []string
	Model       string
	ContextMode string
}

// Predefined CLI provider configurations
var CLIProviders = map[string]CLIProviderConfig{
	"claude": {
		Command:     "claude",
		BaseArgs:    []string{"-p"},
		ContextMode: "stdin",
	},
	"gemini": {
		Command:     "gemini",
		BaseArgs:    []string{"-p"},
		ContextMode: "args",
	},
	"sgpt": {
		Command:     "sgpt",
		BaseArgs:    []string{"--no-cache"},
		ContextMode: "args",
	},
	"aichat": {
		Command:     "aichat",
		ContextMode: "stdin",
	},
}

// NewCLIClient creates a new CLI-based LLM client. provider is one of the
// CLIProviders keys or a custom command, optionally prefixed with "cli:".
func NewCLIClient(provider, model string) (*CLIClient, error) {
	provider = ParseCLIProvider(strings.TrimSpace(provider))
	if provider == "" {
		return nil, fmt.Errorf("CLI provider command is empty")
	}

	if cfg, exists := CLIProviders[provider]; exists {
		if model != "" {
			cfg.Model = model
		}
		return &CLIClient{
			command:     cfg.Command,
			args:        cfg.BaseArgs,
			model:       cfg.Model,
			contextMode: cfg.ContextMode,
		}, nil
	}

	// Treat as custom command
	fields := strings.Fields(provider)
	return &CLIClient{
		command:     fields[0],
		args:        fields[1:],
		model:       model,
		contextMode: "stdin",
	}, nil
}

// ChatCompletions runs the CLI tool once with the flattened conversation.
func (c *CLIClient) ChatCompletions(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	prompt := formatMessages(req.Messages)

	cmdArgs := append([]string{}, c.args...)
	var cmd *exec.Cmd
	if c.contextMode == "stdin" {
		cmd = exec.CommandContext(ctx, c.command, cmdArgs...)
		cmd.Stdin = strings.NewReader(prompt)
	} else {
		cmdArgs = append(cmdArgs, prompt)
		cmd = exec.CommandContext(ctx, c.command, cmdArgs...)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("CLI command failed: %w (output: %s)", err, strings.TrimSpace(string(output)))
	}

	return &ChatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   c.model,
		Choices: []Choice{
			{
				Index: 0,
				Message: Message{
					Role:    "assistant",
					Content: strings.TrimSpace(string(output)),
				},
			},
		},
	}, nil
}

// GetModel returns the configured model
func (c *CLIClient) GetModel() string {
	return c.model
}

// formatMessages converts message array into a single prompt string
func formatMessages(messages []Message) string {
	var sb strings.Builder

	for i, msg := range messages {
		switch msg.Role {
		case "system":
			sb.WriteString("## Context\n")
			sb.WriteString(msg.Content)
			sb.WriteString("\n\n")
		case "user":
			if i > 0 && sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n\n") {
				sb.WriteString("\n\n")
			}
			sb.WriteString(msg.Content)
		case "assistant":
			sb.WriteString("\n\nAssistant: ")
			sb.WriteString(msg.Content)
		}
	}

	return sb.String()
}

// IsCLIProvider checks if a provider string is a CLI provider
func IsCLIProvider(provider string) bool {
	if _, exists := CLIProviders[provider]; exists {
		return true
	}
	return strings.HasPrefix(provider, "cli:")
}

// ParseCLIProvider parses a provider string for CLI mode
// Format: "cli:command" or just "claude", "gemini", etc.
func ParseCLIProvider(provider string) string {
	return strings.TrimPrefix(provider, "cli:")
}
