package commands

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tidysurv/censored/pkg/config"
	"github.com/tidysurv/censored/pkg/engines"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <spec.cue>",
		Short: "Validate a model specification file",
		Long: `Validate a CUE model specification file.

This command checks:
  - CUE syntax and the #ModelSpec schema
  - The survival formula
  - That the family and engine combination is registered`,
		Example: `  censored validate model.cue`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Info().Str("path", args[0]).Msg("Validating model specification")

			parser, err := config.NewSpecParser()
			if err != nil {
				return err
			}
			mf, err := parser.ParseFile(args[0])
			if err != nil {
				var sfe *config.SpecFileError
				if errors.As(err, &sfe) && !jsonOutput {
					for _, e := range sfe.Errors {
						fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", e)
					}
				}
				return err
			}

			reg, err := engines.Default()
			if err != nil {
				return err
			}
			if _, err := reg.Lookup(mf.Spec.Family, mf.Spec.Engine); err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"valid":   true,
					"spec":    mf.Spec,
					"formula": mf.Formula.String(),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is valid: %s with %s\n", args[0], mf.Spec, mf.Formula)
			return nil
		},
	}

	return cmd
}
