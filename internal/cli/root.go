package cli

import (
	"errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// ErrCheckFailed is returned when a campaign completed but a target could not
// run or a comparison regressed. The process exits with status 1.
var ErrCheckFailed = errors.New("benchmark check failed")

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "volley",
		Short:   "Benchmark HTTP endpoints and compare latency distributions",
		Version: version,
		Long: `Volley issues measured batches of HTTP requests against one or more targets,
summarizes the latency distribution of each (percentiles, confidence interval,
outliers, histogram) and compares targets or runs against each other to flag
regressions.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			verbose, _ := cmd.Flags().GetBool("verbose")
			setupLogging(cmd.ErrOrStderr(), verbose)
		},
		Run: func(cmd *cobra.Command, args []string) {
			// If no subcommand is provided, print help
			cmd.Help()
		},
	}

	root.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().Bool("no-color", false, "Disable colored output")

	root.AddCommand(newRunCmd())
	root.AddCommand(newCompareCmd())
	root.AddCommand(newHistoryCmd())
	return root
}

// Execute runs the command line. It is called by main.main().
func Execute() error {
	return NewRootCmd().Execute()
}

// setupLogging installs the process-wide logger. Warnings and errors are
// shown by default; --verbose enables everything down to debug.
func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}
