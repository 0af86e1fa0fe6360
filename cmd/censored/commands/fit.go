package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tidysurv/censored/pkg/config"
)

func newFitCommand() *cobra.Command {
	var (
		specPath    string
		dataPath    string
		catchErrors bool
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit a model specification to training data",
		Long: `Fit a CUE model specification to a CSV file of training data and store
the fitted model.

With --catch-errors a failure of the fitting routine is stored on the fitted
model instead of aborting; predicting from such a fit reports the failure.`,
		Example: `  # Fit and store a model
  censored fit --spec model.cue --data train.csv

  # Keep failed fits for inspection
  censored fit --spec model.cue --data train.csv --catch-errors`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			parser, err := config.NewSpecParser()
			if err != nil {
				return err
			}
			mf, err := parser.ParseFile(specPath)
			if err != nil {
				return err
			}
			data, err := readFrame(dataPath)
			if err != nil {
				return err
			}

			a.logger.WithEngine(mf.Spec.Family, mf.Spec.Engine).
				WithField("rows", data.NRow()).
				Info("Fitting model")

			fitted, err := a.fitter(catchErrors).Fit(ctx, mf.Spec, mf.Formula, data)
			if err != nil {
				return err
			}

			if !dryRun {
				if err := a.store.SaveFit(ctx, fitted); err != nil {
					return err
				}
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"id":      fitted.ID,
					"family":  fitted.Spec.Family,
					"engine":  fitted.Spec.Engine,
					"kind":    fitted.Kind,
					"penalty": fitted.Penalty,
					"path":    fitted.PathPenalties(),
					"elapsed": fitted.Elapsed.String(),
					"failed":  fitted.Failed(),
					"stored":  !dryRun,
				})
			}

			out := cmd.OutOrStdout()
			if fitted.Failed() {
				fmt.Fprintf(out, "✗ Fit %s failed: %v\n", fitted.ID, fitted.FitErr)
			} else {
				fmt.Fprintf(out, "✓ Fitted %s in %s\n", fitted.Spec, fitted.Elapsed)
			}
			if path := fitted.PathPenalties(); len(path) > 0 {
				fmt.Fprintf(out, "  path: %d strengths in [%g, %g]\n", len(path), minOf(path), maxOf(path))
			}
			if !dryRun {
				fmt.Fprintf(out, "  id:   %s\n", fitted.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&specPath, "spec", "s", "", "model specification file (CUE)")
	cmd.Flags().StringVarP(&dataPath, "data", "d", "", "training data (CSV with header)")
	cmd.Flags().BoolVar(&catchErrors, "catch-errors", false, "store fitting failures instead of aborting")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "fit without storing the model")
	_ = cmd.MarkFlagRequired("spec")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}
