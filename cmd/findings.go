package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"optipy.dev/pkg/optipy/internal/domain"
)

var findingsHiThresholdFlag int64

// findingsCmd represents the findings command.
var findingsCmd = newFindingsCmd()

func newFindingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "findings [paths...]",
		Short: "Analyze scripts without rewriting or executing them",
		Long: `Detect inefficient patterns in the given paths and print them as a table.
Nothing is rewritten and no script is executed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			workflow := buildWorkflow(cmd, "")

			return workflow.Findings(cmd.Context(), domain.OptimizeArgs{
				Paths:     parsePaths(args),
				Recursive: viper.GetBool(recursiveConfigKey),
				Exclude:   viper.GetStringSlice(excludeConfigKey),
			})
		},
	}

	cmd.Flags().Int64Var(&findingsHiThresholdFlag, hiThresholdFlagName, viper.GetInt64(hiThresholdConfigKey), "iteration count above which a loop is reported")
	bindFlagToConfig(cmd.Flags().Lookup(hiThresholdFlagName), hiThresholdConfigKey)

	return cmd
}

func init() {
	rootCmd.AddCommand(findingsCmd)
}
