package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/a-marczewski/huntdedup/internal/app"
	"github.com/a-marczewski/huntdedup/internal/doctor"
	"github.com/a-marczewski/huntdedup/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "huntdedup",
	Short: "huntdedup - keep generated threat hunts unique",
	Long: `huntdedup scores candidate threat hunting hypotheses against an existing hunt
corpus and against the tactics already used in a session, and regenerates
candidates until one is diverse enough.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(ttpCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(completionCmd)
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate the autocompletion script for the specified shell",
	Long: `Generate the autocompletion script for huntdedup for the specified shell.
See each command's help for details on how to use the generated script.
	`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(out)
		case "zsh":
			return cmd.Root().GenZshCompletion(out)
		case "fish":
			return cmd.Root().GenFishCompletion(out, true)
		default:
			return cmd.Root().GenPowerShellCompletionWithDesc(out)
		}
	},
}

var versionCheck bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
}

func init() {
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "Check GitHub for a newer release")
}

func runVersionCmd(a *app.App, cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "huntdedup v%s\n", version.Version)
	if !versionCheck {
		return nil
	}

	update, err := version.NewChecker(version.ReleasesURL).Latest(commandContext(a, cmd))
	if err != nil {
		a.Core.Logger.Warn("Version check failed", zap.Error(err))
		return fmt.Errorf("version check failed: %w", err)
	}
	if update == nil {
		fmt.Fprintln(out, "You are running the latest release.")
		return nil
	}
	fmt.Fprintf(out, "A newer release is available: v%s\n", update.Latest)
	if update.URL != "" {
		fmt.Fprintf(out, "  %s\n", update.URL)
	}
	return nil
}

var doctorJSON bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostics on storage, configuration and corpus",
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "Print the diagnostics as JSON")
}

func runDoctorCmd(a *app.App, cmd *cobra.Command, args []string) error {
	diag := doctor.NewRunner(a.Core.Config, a.Core.DB).RunAll()
	if doctorJSON {
		if err := printJSON(cmd.OutOrStdout(), diag); err != nil {
			return err
		}
	} else {
		diag.PrintReport(cmd.OutOrStdout())
	}
	if len(diag.Issues) > 0 {
		return fmt.Errorf("%d diagnostic issue(s) found", len(diag.Issues))
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newAppRunner creates a Cobra RunE closure with the app.App instance.
func newAppRunner(a *app.App, runFunc func(*app.App, *cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return runFunc(a, cmd, args)
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	appInstance, err := app.NewApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		return 1
	}
	defer appInstance.Close()

	versionCmd.RunE = newAppRunner(appInstance, runVersionCmd)
	doctorCmd.RunE = newAppRunner(appInstance, runDoctorCmd)
	checkCmd.RunE = newAppRunner(appInstance, runCheckCmd)
	compareCmd.RunE = newAppRunner(appInstance, runCompareCmd)
	ttpCmd.RunE = newAppRunner(appInstance, runTTPCmd)
	generateCmd.RunE = newAppRunner(appInstance, runGenerateCmd)
	historyCmd.RunE = newAppRunner(appInstance, runHistoryCmd)
	cacheCmd.RunE = newAppRunner(appInstance, runCacheCmd)

	ctx, stop := signal.NotifyContext(appInstance.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		appInstance.Core.Logger.Error("Command failed", zap.Error(err))
		return 1
	}
	return 0
}

// commandContext returns the command context, falling back to the app context.
func commandContext(a *app.App, cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return a.Ctx
}
