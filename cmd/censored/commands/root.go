package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool

	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	buildVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "censored",
		Short: "censored - unified survival model fitting and prediction",
		Long: `censored fits parametric and semi-parametric survival models for
censored data through one interface and returns standardized predictions.

Features:
  - Model specifications in CUE with deferred Starlark arguments
  - Accelerated failure time and proportional hazards engines
  - Regularization paths with single or multi-strength prediction
  - Fitted models and a prediction audit trail stored in SQLite`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newEnginesCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newFitCommand())
	rootCmd.AddCommand(newPredictCommand())
	rootCmd.AddCommand(newFitsCommand())

	return rootCmd
}
