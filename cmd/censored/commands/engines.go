package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/tidysurv/censored/pkg/engines"
)

func newEnginesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "List registered model engines",
		Long: `List every registered family and engine combination together with its
engine kind and supported prediction types.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := engines.Default()
			if err != nil {
				return err
			}
			infos := reg.Engines()
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), infos)
			}

			tw := newTable(cmd.OutOrStdout(), "FAMILY", "ENGINE", "KIND", "TYPES")
			for _, info := range infos {
				types := make([]string, len(info.Types))
				for i, t := range info.Types {
					types[i] = string(t)
				}
				tw.row(info.Family, info.Engine, info.Kind, strings.Join(types, ","))
			}
			return tw.flush()
		},
	}
}
