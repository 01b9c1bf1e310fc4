package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	m "optipy.dev/pkg/optipy/internal/model"
)

// reportCmd represents the report command.
var reportCmd = newReportCmd()

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Re-display a saved optimization report",
		Long:  `Load the outcome report from the reports directory and display it again.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			workflow := buildWorkflow(cmd, "")

			return workflow.Report(cmd.Context(), m.Path(viper.GetString(outputFlagName)))
		},
	}
}

func init() {
	rootCmd.AddCommand(reportCmd)
}
