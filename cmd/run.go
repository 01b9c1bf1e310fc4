package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"optipy.dev/pkg/optipy/internal/domain"
	m "optipy.dev/pkg/optipy/internal/model"
)

var runParallelFlag int
var runTimeoutFlag int64
var runThresholdFlag float64
var runPythonFlag string
var runOptimizedDirFlag string
var runRulesFlag []string

// runCmd represents the run command.
var runCmd = newRunCmd()

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [paths...]",
		Short: "Analyze, rewrite and validate Python scripts",
		Long: `Run the full optimization pipeline for the given paths (default: current
directory). Each accepted rewrite is written next to the configured
optimized-code directory as <name>_optimized.py; originals are untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			workflow := buildWorkflow(cmd, m.Path(viper.GetString(optimizedDirConfigKey)))

			return workflow.Optimize(cmd.Context(), domain.OptimizeArgs{
				Paths:     parsePaths(args),
				Recursive: viper.GetBool(recursiveConfigKey),
				Exclude:   viper.GetStringSlice(excludeConfigKey),
				Reports:   m.Path(viper.GetString(outputFlagName)),
			})
		},
	}

	configureRunFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func configureRunFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&runParallelFlag, runParallelFlagName, "p", viper.GetInt(runParallelConfigKey), "number of parallel file workers")
	bindFlagToConfig(cmd.Flags().Lookup(runParallelFlagName), runParallelConfigKey)

	cmd.Flags().Int64VarP(&runTimeoutFlag, timeoutFlagName, "t", viper.GetInt64(timeoutConfigKey), "per-script execution timeout in seconds")
	bindFlagToConfig(cmd.Flags().Lookup(timeoutFlagName), timeoutConfigKey)

	cmd.Flags().Float64Var(&runThresholdFlag, thresholdFlagName, viper.GetFloat64(thresholdConfigKey), "minimum relative runtime improvement to accept a rewrite")
	bindFlagToConfig(cmd.Flags().Lookup(thresholdFlagName), thresholdConfigKey)

	cmd.Flags().StringVar(&runPythonFlag, pythonFlagName, viper.GetString(pythonConfigKey), "python interpreter used for validation runs")
	bindFlagToConfig(cmd.Flags().Lookup(pythonFlagName), pythonConfigKey)

	cmd.Flags().StringVar(&runOptimizedDirFlag, optimizedDirFlagName, viper.GetString(optimizedDirConfigKey), "directory for optimized script copies")
	bindFlagToConfig(cmd.Flags().Lookup(optimizedDirFlagName), optimizedDirConfigKey)

	cmd.Flags().StringSliceVar(&runRulesFlag, rulesFlagName, viper.GetStringSlice(rulesConfigKey), "finding kinds to rewrite (others are report-only)")
	bindFlagToConfig(cmd.Flags().Lookup(rulesFlagName), rulesConfigKey)
}
