package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/a-marczewski/huntdedup/internal/app"
	"github.com/a-marczewski/huntdedup/internal/dedup"
	"github.com/a-marczewski/huntdedup/internal/hunt"
	"github.com/a-marczewski/huntdedup/internal/ttp"
)

var (
	generateCorpus      string
	generatePrompt      string
	generatePromptFile  string
	generateMaxAttempts int
	generateFeedback    string
	generateOffline     bool
	generateSeed        bool
	generateCount       int
	generateJSON        bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a hypothesis that is unique against the corpus and the session",
}

func init() {
	generateCmd.Flags().StringVar(&generateCorpus, "corpus", "", "Corpus file or directory (defaults to the configured corpus)")
	generateCmd.Flags().StringVar(&generatePrompt, "prompt", "", "Generation prompt")
	generateCmd.Flags().StringVar(&generatePromptFile, "prompt-file", "", "Read the generation prompt from a file")
	generateCmd.Flags().IntVar(&generateMaxAttempts, "max-attempts", 0, "Attempt budget per hypothesis (0 uses the configured value)")
	generateCmd.Flags().StringVar(&generateFeedback, "feedback", "", "Reviewer feedback to address")
	generateCmd.Flags().BoolVar(&generateOffline, "offline", false, "Use rule-based hypotheses instead of the LLM")
	generateCmd.Flags().BoolVar(&generateSeed, "seed", false, "Seed the session with the most recent corpus hunts")
	generateCmd.Flags().IntVar(&generateCount, "count", 1, "Number of hypotheses to generate in one session")
	generateCmd.Flags().BoolVar(&generateJSON, "json", false, "Print the generations as JSON")
	generateCmd.MarkFlagsMutuallyExclusive("prompt", "prompt-file")
}

func runGenerateCmd(a *app.App, cmd *cobra.Command, args []string) error {
	prompt, err := resolvePrompt(generatePrompt, generatePromptFile)
	if err != nil {
		return err
	}
	if generateCount <= 0 {
		return &hunt.ValidationError{Field: "count", Value: fmt.Sprint(generateCount), Message: "must be positive"}
	}

	records, err := a.LoadCorpus(generateCorpus)
	if err != nil {
		return err
	}

	var d *dedup.Deduplicator
	var generator dedup.Generator
	if generateOffline {
		// Offline runs walk the kill chain through the rule-based fallback.
		generator = dedup.OfflineGenerator(func() []string { return d.UsedTactics() })
	} else {
		generator, err = a.NewGenerator()
		if err != nil {
			return err
		}
	}
	d = a.NewDeduplicator(records, dedup.WithGenerator(generator))

	if generateSeed {
		seeded := d.Seed(records, a.Core.Config.SeedLimit)
		a.Core.Logger.Info("Seeded session history", zap.Int("hunts", seeded))
	}

	reqs := make([]dedup.Request, generateCount)
	for i := range reqs {
		reqs[i] = dedup.Request{Prompt: prompt, MaxAttempts: generateMaxAttempts, Feedback: generateFeedback}
	}
	ctx := commandContext(a, cmd)
	gens := d.BatchGenerate(ctx, reqs)

	metrics, err := a.Core.Metrics.Snapshot(ctx)
	if err != nil {
		a.Core.Logger.Warn("Failed to collect metrics", zap.Error(err))
	}

	out := cmd.OutOrStdout()
	if generateJSON {
		payload := struct {
			SessionID   string                `json:"session_id"`
			Generations []*dedup.Generation   `json:"generations"`
			Stats       dedup.Stats           `json:"stats"`
			Diversity   dedup.DiversityReport `json:"diversity"`
			TTPStats    ttp.Stats             `json:"ttp_stats"`
			Suggestions ttp.Suggestions       `json:"suggestions"`
			Metrics     map[string]int64      `json:"metrics,omitempty"`
		}{d.SessionID(), gens, d.Stats(), d.DiversityReport(gens), d.TTPStats(), d.Suggestions(), metrics}
		return printJSON(out, payload)
	}

	for i, gen := range gens {
		printGeneration(out, i+1, gen)
	}
	if len(gens) > 1 {
		printDiversity(out, d.DiversityReport(gens))
	}
	printTTPAnalysis(out, d.TTPStats(), d.Suggestions())
	fmt.Fprintf(out, "\nSession: %s\n", d.SessionID())
	return nil
}

// resolvePrompt returns the inline prompt or the contents of file.
func resolvePrompt(prompt, file string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt file: %w", err)
		}
		prompt = string(data)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", &hunt.ValidationError{Field: "prompt", Message: "a prompt or prompt file is required"}
	}
	return prompt, nil
}

func printGeneration(w io.Writer, n int, gen *dedup.Generation) {
	symbol := "✅"
	if !gen.Accepted() {
		symbol = "⚠️"
	}
	fmt.Fprintf(w, "%s Hypothesis %d [%s after %d attempt(s), %s]\n", symbol, n, gen.Status, gen.AttemptsMade, gen.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "   %s\n", gen.Candidate.Hypothesis)
	if gen.Candidate.Tactic != "" {
		fmt.Fprintf(w, "   Tactic: %s\n", gen.Candidate.Tactic)
	}
	if len(gen.Candidate.Tags) > 0 {
		fmt.Fprintf(w, "   Tags: %s\n", strings.Join(gen.Candidate.Tags, ", "))
	}
	for _, att := range gen.Attempts {
		switch {
		case att.Error != "":
			fmt.Fprintf(w, "   - attempt %d: error: %s\n", att.Index+1, att.Error)
		case att.Approved:
			fmt.Fprintf(w, "   - attempt %d: approved (score %.2f)\n", att.Index+1, att.Score)
		default:
			fmt.Fprintf(w, "   - attempt %d: rejected: %s\n", att.Index+1, att.RejectionReason)
		}
	}
	fmt.Fprintf(w, "   Recommendation: %s - %s\n", gen.Result.Recommendation, gen.Result.Recommendation.Message())
}

func printTTPAnalysis(w io.Writer, stats ttp.Stats, suggestions ttp.Suggestions) {
	fmt.Fprintf(w, "\nTTP analysis: %d hypotheses, %d tactic(s), %d technique(s), %d tool(s)\n",
		stats.TotalAttempts, stats.UniqueTactics, stats.UniqueTechniques, stats.UniqueTools)
	if len(stats.TacticsUsed) > 0 {
		fmt.Fprintf(w, "Tactics used: %s\n", strings.Join(stats.TacticsUsed, ", "))
	}
	if len(suggestions.UnusedTactics) > 0 {
		fmt.Fprintf(w, "Unexplored tactics: %s\n", strings.Join(suggestions.UnusedTactics, ", "))
	}
	if len(suggestions.UnusedTargets) > 0 {
		fmt.Fprintf(w, "Unexplored targets: %s\n", strings.Join(suggestions.UnusedTargets, ", "))
	}
}

func printDiversity(w io.Writer, r dedup.DiversityReport) {
	fmt.Fprintf(w, "\nDiversity across %d hypotheses: %.1f%% (avg similarity %.1f%%, max %.1f%%)\n",
		r.Count, r.DiversityScore*100, r.AverageSimilarity*100, r.MaxSimilarity*100)
	if len(r.Tactics) > 0 {
		fmt.Fprintf(w, "Tactics: %s\n", strings.Join(r.Tactics, ", "))
	}
}
