// Package cmd provides the root command and CLI setup for optipy.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"optipy.dev/pkg/optipy/internal/adapter"
	"optipy.dev/pkg/optipy/internal/controller"
	"optipy.dev/pkg/optipy/internal/domain"
	m "optipy.dev/pkg/optipy/internal/model"
)

var pythonAdapter adapter.PythonFileAdapter
var fsAdapter adapter.SourceFSAdapter
var reportStore adapter.ReportStore

// reportsOutputDirFlag is a root-level flag shared by commands that read/write reports.
var reportsOutputDirFlag string

// excludePatterns is a root-level flag that filters files for applicable commands.
var excludePatterns []string

var recursiveFlag bool
var plainFlag bool
var verboseFlag bool

func init() {
	configureRootFlags(rootCmd)

	// Initialize shared dependencies.
	pythonAdapter = adapter.NewLocalPythonFileAdapter()
	fsAdapter = adapter.NewLocalSourceFSAdapter()
	reportStore = adapter.NewReportStore()
}

const rootLongDescription = `Optipy analyzes Python scripts for inefficient patterns (high-iteration
loops, nested loops, repeated computations, vectorizable loops), rewrites
them using itertools, functools and NumPy, and keeps a rewrite only when an
isolated execution proves it reproduces the original output faster.

Originals are never modified; accepted rewrites are written as
<name>_optimized.py.`

// rootCmd represents the base command when called without any subcommands.
var rootCmd = baseRootCmd()

func baseRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "optipy",
		Short: "Python script optimizer with empirical validation",
		Long:  rootLongDescription,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			configureLogger("", verboseFlag)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
}

func configureRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringVarP(
			&reportsOutputDirFlag, outputFlagName, "o",
			viper.GetString(outputFlagName),
			"output directory for optimization reports",
		)
	bindFlagToConfig(cmd.PersistentFlags().Lookup(outputFlagName), outputFlagName)

	cmd.PersistentFlags().StringArrayVarP(&excludePatterns, excludeFlagName, "x", viper.GetStringSlice(excludeConfigKey), "exclude files matching regex (can be repeated)")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(excludeFlagName), excludeConfigKey)

	cmd.PersistentFlags().BoolVarP(&recursiveFlag, recursiveFlagName, "r", viper.GetBool(recursiveConfigKey), "descend into subdirectories")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(recursiveFlagName), recursiveConfigKey)

	cmd.PersistentFlags().BoolVar(&plainFlag, plainFlagName, false, "force plain text output (no TUI)")
	cmd.PersistentFlags().BoolVarP(&verboseFlag, verboseFlagName, "v", false, "enable debug logging")
}

// bindFlagToConfig wires a Cobra flag to a Viper key so config/env values feed the flag.
func bindFlagToConfig(flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}

	cobra.CheckErr(viper.BindPFlag(key, flag))
}

// buildWorkflow assembles the workflow for one command invocation from the
// effective configuration.
func buildWorkflow(cmd *cobra.Command, optimizedDir m.Path) domain.Workflow {
	threads := viper.GetInt(runParallelConfigKey)

	cfg := domain.Config{
		HighIterationThreshold: viper.GetInt64(hiThresholdConfigKey),
		ImprovementThreshold:   viper.GetFloat64(thresholdConfigKey),
		CandidateTimeout:       time.Duration(viper.GetInt64(timeoutConfigKey)) * time.Second,
		EnabledRules:           enabledRuleKinds(),
		Threads:                threads,
		PythonBin:              viper.GetString(pythonConfigKey),
		OptimizedDir:           optimizedDir,
	}

	runner := adapter.NewLocalScriptRunnerAdapter(cfg.PythonBin)
	pipeline := domain.NewPipeline(cfg, pythonAdapter, fsAdapter, runner)
	ui := controller.NewUI(cmd, plainFlag)

	return domain.NewWorkflow(fsAdapter, reportStore, ui, pipeline, threads)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func parsePaths(args []string) []m.Path {
	if len(args) == 0 {
		return []m.Path{m.Path(".")}
	}

	paths := make([]m.Path, 0, len(args))
	for _, arg := range args {
		paths = append(paths, m.Path(arg))
	}

	return paths
}
