package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/a-marczewski/huntdedup/internal/app"
	"github.com/a-marczewski/huntdedup/internal/hunt"
	"github.com/a-marczewski/huntdedup/internal/storage"
)

var (
	historySession   string
	historyLimit     int
	historyPruneDays int
	historyJSON      bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded generation attempts and statistics",
}

func init() {
	historyCmd.Flags().StringVar(&historySession, "session", "", "Only show attempts of this session")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of recent attempts to show")
	historyCmd.Flags().IntVar(&historyPruneDays, "prune-days", 0, "Delete attempts older than this many days before listing")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print the history as JSON")
}

func runHistoryCmd(a *app.App, cmd *cobra.Command, args []string) error {
	ctx := commandContext(a, cmd)
	store := a.Engine.History

	if historyPruneDays < 0 {
		return &hunt.ValidationError{Field: "prune-days", Value: fmt.Sprint(historyPruneDays), Message: "cannot be negative"}
	}
	if historyPruneDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -historyPruneDays)
		removed, err := store.Prune(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to prune history: %w", err)
		}
		a.Core.Logger.Info("Pruned generation history", zap.Int64("removed", removed), zap.Time("cutoff", cutoff))
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d attempt(s) older than %d day(s)\n", removed, historyPruneDays)
	}

	var records []storage.AttemptRecord
	var err error
	if historySession != "" {
		records, err = store.ListSession(ctx, historySession)
	} else {
		records, err = store.ListRecent(ctx, historyLimit)
	}
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to compute history stats: %w", err)
	}

	out := cmd.OutOrStdout()
	if historyJSON {
		return printJSON(out, struct {
			Attempts []storage.AttemptRecord `json:"attempts"`
			Stats    storage.HistoryStats    `json:"stats"`
		}{records, stats})
	}

	printHistory(out, records)
	fmt.Fprintf(out, "\n📊 %d attempt(s) across %d session(s): %d approved, %d rejected, %d error(s)\n",
		stats.TotalAttempts, stats.Sessions, stats.Approved, stats.Rejected, stats.Errors)
	fmt.Fprintf(out, "   Approval rate: %.1f%% | Average score: %.2f\n", stats.ApprovalRate*100, stats.AvgScore)
	return nil
}

func printHistory(w io.Writer, records []storage.AttemptRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No attempts recorded.")
		return
	}
	for _, r := range records {
		state := "rejected"
		switch {
		case r.Error != "":
			state = "error"
		case r.Approved:
			state = "approved"
		}
		fmt.Fprintf(w, "%s  %s #%d  %-8s  %.2f  %s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"), shortID(r.SessionID), r.Index+1, state, r.Score, summary(r))
	}
}

func summary(r storage.AttemptRecord) string {
	text := r.Hypothesis
	if r.Error != "" {
		text = r.Error
	}
	if len(text) > 80 {
		text = text[:77] + "..."
	}
	return text
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

var cacheClear bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Show or clear the similarity cache",
}

func init() {
	cacheCmd.Flags().BoolVar(&cacheClear, "clear", false, "Remove every cached similarity search")
}

func runCacheCmd(a *app.App, cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if cacheClear {
		if err := a.Engine.Cache.Clear(); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		fmt.Fprintln(out, "Similarity cache cleared.")
	}

	stats, err := a.Engine.Cache.GetStats()
	if err != nil {
		return fmt.Errorf("failed to read cache stats: %w", err)
	}
	fmt.Fprintf(out, "Enabled: %t\nStored entries: %d\n", stats.Enabled, stats.StoredEntries)
	return nil
}
