package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/tidysurv/censored/pkg/model"
	"github.com/tidysurv/censored/pkg/stores"
)

func newPredictCommand() *cobra.Command {
	var (
		fitID     string
		dataPath  string
		typ       string
		evalTime  []float64
		quantile  []float64
		pen       float64
		multi     bool
		penalties []float64
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict from a stored fit",
		Long: `Predict from a stored fit for every row of a CSV file.

Prediction types:
  - time:        predicted survival time
  - survival:    survival probability at each --eval-time
  - hazard:      hazard at each --eval-time
  - quantile:    survival time quantiles at each --quantile level
  - linear_pred: linear predictor, larger means longer survival

Path models (proportional_hazards/glmnet) predict at the strength chosen at
specification time unless --penalty is given. --multi predicts at every
strength in --penalties, or at every trained strength when none are given.`,
		Example: `  censored predict --fit <id> --data new.csv --type time
  censored predict --fit <id> --data new.csv --type survival --eval-time 1,5,10
  censored predict --fit <id> --data new.csv --type linear_pred --multi --penalties 0.1,0.01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			pt, err := model.ParsePredictionType(typ)
			if err != nil {
				return err
			}
			opts := model.PredictOptions{
				Type:      pt,
				EvalTime:  evalTime,
				Quantile:  quantile,
				Multi:     multi,
				Penalties: penalties,
			}
			if cmd.Flags().Changed("penalty") {
				opts.Penalty = &pen
			}

			fitted, err := a.store.GetFit(ctx, fitID)
			if err != nil {
				return err
			}
			data, err := readFrame(dataPath)
			if err != nil {
				return err
			}

			start := time.Now()
			res, predErr := a.router.Predict(ctx, fitted, data, opts)

			rec := &stores.PredictionRecord{
				FitID:     fitted.ID,
				Type:      pt,
				Multi:     multi,
				Penalties: penalties,
				Elapsed:   time.Since(start),
			}
			if predErr != nil {
				msg := predErr.Error()
				rec.Error = &msg
			} else {
				rec.Rows = res.Len()
			}
			if err := a.store.RecordPrediction(ctx, rec); err != nil {
				a.logger.WithError(err).Warn("Failed to record prediction")
			}

			if predErr != nil {
				return predErr
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), res)
			}
			return writeResult(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&fitID, "fit", "", "id of the stored fit")
	cmd.Flags().StringVarP(&dataPath, "data", "d", "", "new data (CSV with header)")
	cmd.Flags().StringVarP(&typ, "type", "t", string(model.TypeTime), "prediction type")
	cmd.Flags().Float64SliceVar(&evalTime, "eval-time", nil, "evaluation times for survival and hazard")
	cmd.Flags().Float64SliceVar(&quantile, "quantile", nil, "quantile levels in (0, 1)")
	cmd.Flags().Float64Var(&pen, "penalty", 0, "penalty strength for path models")
	cmd.Flags().BoolVar(&multi, "multi", false, "predict at several penalty strengths")
	cmd.Flags().Float64SliceVar(&penalties, "penalties", nil, "strengths for --multi")
	_ = cmd.MarkFlagRequired("fit")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}
