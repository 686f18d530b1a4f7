package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/nvmeprep/internal/adapters/logging"
	"github.com/felixgeelhaar/nvmeprep/internal/app"
	"github.com/felixgeelhaar/nvmeprep/internal/domain/config"
	"github.com/felixgeelhaar/nvmeprep/internal/domain/step"
	"github.com/felixgeelhaar/nvmeprep/internal/ports"
)

var (
	// Global flags
	cfgFile string
	verbose bool
	dryRun  bool
	jsonLog bool
)

var rootCmd = &cobra.Command{
	Use:   "nvmeprep",
	Short: "Prepare a Linux host for userspace NVMe storage",
	Long: `Nvmeprep provisions a Linux host for a userspace NVMe storage framework.

Invoked bare, it runs the full idempotent sequence: install build
dependencies, stage IOMMU kernel parameters, reserve hugepages, bind
NVMe controllers to a userspace driver, build the framework from
source, and smoke-test the result. Already-satisfied steps are
skipped, so re-running after a fix or a reboot is always safe.`,
	RunE:          runProvision,
	SilenceErrors: true, // We handle error formatting ourselves
	SilenceUsage:  true, // Don't show usage on error
}

// exitCode is set by the command that ran; Execute returns it.
var exitCode int

// Execute runs the root command and returns the process exit code.
// 0 means success or degraded, 1 a hard failure, 2 a pending reboot.
func Execute() int {
	exitCode = 0
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		return 1
	}
	return exitCode
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: nvmeprep.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonLog, "json-log", false, "emit log lines as JSON")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "check only, change nothing")

	_ = rootCmd.RegisterFlagCompletionFunc("config", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"yaml", "yml"}, cobra.ShellCompDirectiveFilterFileExt
	})
}

// configPath resolves the --config flag to a loadable path.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath
}

// newLogger builds the run logger from the global flags. Logs go to
// stderr; stdout carries the report.
func newLogger() ports.Logger {
	level := ports.LevelWarn
	if verbose {
		level = ports.LevelDebug
	}
	return logging.NewConsoleLogger(
		logging.WithOutput(os.Stderr),
		logging.WithLevel(level),
		logging.WithJSONFormat(jsonLog),
	)
}

func runProvision(cmd *cobra.Command, _ []string) error {
	cfg, err := config.NewLoader().Load(configPath())
	if err != nil {
		return err
	}

	p := app.NewProvisioner(cfg,
		app.WithLogger(newLogger()),
		app.WithDryRun(dryRun))

	report, err := p.Run(cmd.Context())
	if err != nil {
		return err
	}

	printReport(cmd.OutOrStdout(), report)
	exitCode = app.ExitCode(report.Verdict())
	return nil
}

// formatError returns a user-friendly error message.
// With verbose=false: shows only the user message and suggestion.
// With verbose=true: also shows the underlying technical error.
func formatError(err error) string {
	var userErr *config.UserError
	if errors.As(err, &userErr) {
		msg := userErr.Message
		if userErr.Context != "" {
			msg += fmt.Sprintf(" (at %s)", userErr.Context)
		}
		if userErr.Suggestion != "" {
			msg += fmt.Sprintf("\n\nSuggestion: %s", userErr.Suggestion)
		}
		if verbose && userErr.Underlying != nil {
			msg += fmt.Sprintf("\n\nTechnical details: %v", userErr.Underlying)
		}
		return msg
	}

	var stepErr *step.StepError
	if errors.As(err, &stepErr) {
		msg := stepErr.Message
		if stepErr.Suggestion != "" {
			msg += fmt.Sprintf("\n\nSuggestion: %s", stepErr.Suggestion)
		}
		if verbose && stepErr.Underlying != nil {
			msg += fmt.Sprintf("\n\nTechnical details: %v", stepErr.Underlying)
		}
		return msg
	}
	return err.Error()
}

// printError prints an error message to stderr with proper formatting.
func printError(err error) {
	printErrorTo(os.Stderr, err)
}

// printErrorTo prints an error message to the given writer.
func printErrorTo(w io.Writer, err error) {
	_, _ = fmt.Fprintf(w, "Error: %s\n", formatError(err))
}
