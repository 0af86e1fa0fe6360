package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newFitsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fits",
		Short: "Manage stored fits",
		Long: `List, inspect and delete fitted models stored in the fit database.`,
	}

	cmd.AddCommand(newFitsListCommand())
	cmd.AddCommand(newFitsShowCommand())
	cmd.AddCommand(newFitsDeleteCommand())

	return cmd
}

func newFitsListCommand() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored fits",
		Example: `  censored fits list
  censored fits list --limit 10 --offset 10 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			fits, err := a.store.ListFits(ctx, limit, offset)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), fits)
			}

			t := newTable(cmd.OutOrStdout(), "ID", "FAMILY", "ENGINE", "KIND", "STATUS", "FITTED", "FORMULA")
			for _, f := range fits {
				t.row(f.ID, f.Family, f.Engine, f.Kind, f.Status, f.FittedAt.Local().Format("2006-01-02 15:04:05"), f.Formula)
			}
			return t.flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of fits")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of fits to skip")

	return cmd
}

func newFitsShowCommand() *cobra.Command {
	var history int

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored fit and its recent predictions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			rec, err := a.store.GetFitRecord(ctx, args[0])
			if err != nil {
				return err
			}
			fitted, err := a.store.GetFit(ctx, args[0])
			if err != nil {
				return err
			}
			preds, err := a.store.ListPredictions(ctx, args[0], history, 0)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"fit":         rec,
					"spec":        fitted.Spec,
					"native_args": fitted.NativeArgs,
					"blueprint":   fitted.Blueprint,
					"penalty":     fitted.Penalty,
					"path":        fitted.PathPenalties(),
					"predictions": preds,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:       %s\n", rec.ID)
			fmt.Fprintf(out, "Model:    %s\n", fitted.Spec)
			fmt.Fprintf(out, "Formula:  %s\n", rec.Formula)
			fmt.Fprintf(out, "Kind:     %s\n", rec.Kind)
			fmt.Fprintf(out, "Status:   %s\n", rec.Status)
			if rec.Error != nil {
				fmt.Fprintf(out, "Error:    %s\n", *rec.Error)
			}
			fmt.Fprintf(out, "Elapsed:  %s\n", rec.Elapsed)
			if fitted.Penalty != nil {
				fmt.Fprintf(out, "Penalty:  %g\n", *fitted.Penalty)
			}
			if path := fitted.PathPenalties(); len(path) > 0 {
				fmt.Fprintf(out, "Path:     %d strengths in [%g, %g]\n", len(path), minOf(path), maxOf(path))
			}

			if len(preds) == 0 {
				return nil
			}
			fmt.Fprintln(out, "\nRecent predictions:")
			t := newTable(out, "TIME", "TYPE", "ROWS", "MULTI", "STATUS", "ELAPSED", "ERROR")
			for _, p := range preds {
				t.row(p.Timestamp.Local().Format("2006-01-02 15:04:05"), p.Type, p.Rows, p.Multi, p.Status, p.Elapsed, p.Error)
			}
			return t.flush()
		},
	}

	cmd.Flags().IntVar(&history, "history", 10, "number of recent predictions to show")

	return cmd
}

func newFitsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored fit and its prediction history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.store.DeleteFit(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted fit %s\n", args[0])
			return nil
		},
	}
}
