package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"kiln/internal/logging"
	"kiln/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "kiln",
	Short: "kiln bundles JavaScript applications",
	Long: `kiln resolves every module reachable from the configured entries, runs
them through the loader rules and writes hashed chunks, an HTML page and an
asset manifest. watch and serve rebuild incrementally on file changes.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupGlobals,
	PersistentPostRun: func(*cobra.Command, []string) { runCleanups() },
}

var cleanups []func()

func runCleanups() {
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
	cleanups = nil
}

// main registers the subcommands and global flags, then runs the root
// command with a context cancelled on SIGINT or SIGTERM.
func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)

	// Глобальные флаги
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to kiln.toml or kiln.yaml (default: discovered from the working directory)")
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().Bool("verbose", false, "log debug details")
	rootCmd.PersistentFlags().Int("max-diagnostics", 100, "maximum number of diagnostics to show")
	rootCmd.PersistentFlags().String("trace", "", "write trace events to a file (- for stderr)")
	rootCmd.PersistentFlags().String("trace-level", "off", "trace level (off|error|phase|detail|debug)")
	rootCmd.PersistentFlags().String("trace-mode", "stream", "trace storage (stream|ring|both)")
	rootCmd.PersistentFlags().Int("trace-ring-size", 4096, "events kept in ring mode")
	rootCmd.PersistentFlags().Duration("trace-heartbeat", 0, "emit a heartbeat event at this interval")
	rootCmd.PersistentFlags().String("cpu-profile", "", "write a CPU profile to this file")
	rootCmd.PersistentFlags().String("mem-profile", "", "write a heap profile to this file on exit")
	rootCmd.PersistentFlags().String("runtime-trace", "", "write a Go runtime trace to this file")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	// PersistentPostRun is skipped when a command fails
	runCleanups()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// setupGlobals applies the colour mode, installs the logger and starts
// tracing before any subcommand runs.
func setupGlobals(cmd *cobra.Command, _ []string) error {
	useColor, err := colorEnabled(cmd)
	if err != nil {
		return err
	}
	color.NoColor = !useColor

	quiet, _ := cmd.Root().PersistentFlags().GetBool("quiet")
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logger := logging.Setup(cmd.ErrOrStderr(), logging.Options{Dev: verbose, Quiet: quiet, Color: useColor})
	cmd.SetContext(logging.Into(cmd.Context(), logger))

	stopProfiles, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	cleanups = append(cleanups, stopProfiles)

	stopTrace, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	cleanups = append(cleanups, stopTrace)
	return nil
}

func colorEnabled(cmd *cobra.Command) (bool, error) {
	mode, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return false, err
	}
	switch mode {
	case "on":
		return true, nil
	case "off":
		return false, nil
	case "auto", "":
		return isTerminal(os.Stderr) && os.Getenv("NO_COLOR") == "", nil
	}
	return false, &flagError{flag: "color", value: mode, want: "auto|on|off"}
}

type flagError struct {
	flag, value, want string
}

func (e *flagError) Error() string {
	return "invalid --" + e.flag + " value \"" + e.value + "\" (expected " + e.want + ")"
}

// isTerminal проверяет, является ли файл терминалом
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
