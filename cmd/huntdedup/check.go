package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/a-marczewski/huntdedup/internal/app"
	"github.com/a-marczewski/huntdedup/internal/dedup"
	"github.com/a-marczewski/huntdedup/internal/hunt"
	"github.com/a-marczewski/huntdedup/internal/similarity"
	"github.com/a-marczewski/huntdedup/internal/ttp"
)

// errDuplicate makes --strict checks exit non-zero.
var errDuplicate = errors.New("candidate is a duplicate")

var (
	checkCorpus     string
	checkHypothesis string
	checkTactic     string
	checkTags       []string
	checkThreshold  float64
	checkJSON       bool
	checkStrict     bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check one hypothesis against the hunt corpus",
}

func init() {
	checkCmd.Flags().StringVar(&checkCorpus, "corpus", "", "Corpus file or directory (defaults to the configured corpus)")
	checkCmd.Flags().StringVar(&checkHypothesis, "hypothesis", "", "Hypothesis text to check (required)")
	checkCmd.Flags().StringVar(&checkTactic, "tactic", "", "Declared ATT&CK tactic")
	checkCmd.Flags().StringSliceVar(&checkTags, "tags", nil, "Comma separated tags")
	checkCmd.Flags().Float64Var(&checkThreshold, "threshold", 0, "Similarity threshold override (defaults to the configured value)")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Print the result as JSON")
	checkCmd.Flags().BoolVar(&checkStrict, "strict", false, "Exit non-zero when the hypothesis is a duplicate")
	_ = checkCmd.MarkFlagRequired("hypothesis")
}

func runCheckCmd(a *app.App, cmd *cobra.Command, args []string) error {
	records, err := a.LoadCorpus(checkCorpus)
	if err != nil {
		return err
	}

	opts := a.DedupOptions()
	if cmd.Flags().Changed("threshold") {
		if checkThreshold < 0 || checkThreshold > 1 {
			return &hunt.ValidationError{Field: "threshold", Value: fmt.Sprint(checkThreshold), Message: "must be between 0 and 1"}
		}
		opts.SimilarityThreshold = checkThreshold
	}
	// A single check has no session to compare against.
	opts.CheckTTP = false

	d := a.NewDeduplicator(records, dedup.WithOptions(opts))
	candidate := hunt.Candidate{Hypothesis: checkHypothesis, Tactic: checkTactic, Tags: checkTags}
	result, err := d.CheckUniqueness(commandContext(a, cmd), candidate)
	if err != nil {
		return err
	}

	a.Core.Logger.Info("Checked hypothesis",
		zap.Bool("duplicate", result.IsDuplicate),
		zap.Float64("max_similarity", result.MaxSimilarityScore),
		zap.Int("corpus_size", len(records)))

	if checkJSON {
		if err := printJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), result.Report)
	}

	if checkStrict && result.IsDuplicate {
		return errDuplicate
	}
	return nil
}

var (
	compareA       string
	compareB       string
	compareTacticA string
	compareTacticB string
	compareJSON    bool
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Score the similarity of two hypotheses",
}

func init() {
	compareCmd.Flags().StringVar(&compareA, "a", "", "First hypothesis (required)")
	compareCmd.Flags().StringVar(&compareB, "b", "", "Second hypothesis (required)")
	compareCmd.Flags().StringVar(&compareTacticA, "tactic-a", "", "Tactic of the first hypothesis")
	compareCmd.Flags().StringVar(&compareTacticB, "tactic-b", "", "Tactic of the second hypothesis")
	compareCmd.Flags().BoolVar(&compareJSON, "json", false, "Print the scores as JSON")
	_ = compareCmd.MarkFlagRequired("a")
	_ = compareCmd.MarkFlagRequired("b")
}

func runCompareCmd(a *app.App, cmd *cobra.Command, args []string) error {
	left := hunt.Record{ID: "a", Hypothesis: compareA, Tactic: compareTacticA}
	right := hunt.Record{ID: "b", Hypothesis: compareB, Tactic: compareTacticB}

	score := a.Engine.Detector.Compare(left, right)
	overlap := ttp.Compare(ttp.Extract(compareA, compareTacticA), ttp.Extract(compareB, compareTacticB), a.Core.Config.TTPWeights)

	out := cmd.OutOrStdout()
	if compareJSON {
		return printJSON(out, struct {
			Similarity similarity.Score `json:"similarity"`
			TTP        ttp.Overlap      `json:"ttp_overlap"`
		}{score, overlap})
	}

	fmt.Fprintf(out, "Overall similarity: %.1f%%\n", score.Overall*100)
	fmt.Fprintf(out, "  Lexical:    %.1f%%\n", score.Lexical*100)
	fmt.Fprintf(out, "  Semantic:   %.1f%%\n", score.Semantic*100)
	fmt.Fprintf(out, "  Structural: %.1f%%\n", score.Structural*100)
	fmt.Fprintf(out, "  Keywords:   %.1f%%\n", score.KeywordOverlap*100)
	fmt.Fprintf(out, "  Confidence: %.1f%%\n", score.Confidence*100)
	if len(score.Degraded) > 0 {
		fmt.Fprintf(out, "  Degraded:   %s\n", strings.Join(score.Degraded, ", "))
	}
	fmt.Fprintf(out, "TTP overlap: %.1f%% (%s)\n", overlap.Score*100, overlap.Explanation)
	return nil
}

var (
	ttpHypothesis string
	ttpTactic     string
)

var ttpCmd = &cobra.Command{
	Use:   "ttp",
	Short: "Extract the TTP profile of a hypothesis",
}

func init() {
	ttpCmd.Flags().StringVar(&ttpHypothesis, "hypothesis", "", "Hypothesis text (required)")
	ttpCmd.Flags().StringVar(&ttpTactic, "tactic", "", "Declared ATT&CK tactic")
	_ = ttpCmd.MarkFlagRequired("hypothesis")
}

func runTTPCmd(a *app.App, cmd *cobra.Command, args []string) error {
	if strings.TrimSpace(ttpHypothesis) == "" {
		return &hunt.ValidationError{Field: "hypothesis", Message: "hypothesis is empty"}
	}
	return printJSON(cmd.OutOrStdout(), ttp.Extract(ttpHypothesis, ttpTactic))
}
