package cmd

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	m "optipy.dev/pkg/optipy/internal/model"
)

const (
	configVersionKey     = "version"
	currentConfigVersion = 1

	configBaseName   = "optipy"
	configFileName   = configBaseName + ".yaml"
	configFolderPath = "."

	outputFlagName       = "output"
	excludeFlagName      = "exclude"
	recursiveFlagName    = "recursive"
	plainFlagName        = "plain"
	verboseFlagName      = "verbose"
	runParallelFlagName  = "parallel"
	timeoutFlagName      = "timeout"
	thresholdFlagName    = "threshold"
	pythonFlagName       = "python"
	optimizedDirFlagName = "optimized-dir"
	rulesFlagName        = "rules"
	hiThresholdFlagName  = "high-iteration-threshold"

	runParallelConfigKey  = "run.parallel"
	timeoutConfigKey      = "run.candidate_timeout"
	thresholdConfigKey    = "run.improvement_threshold"
	pythonConfigKey       = "run.python_bin"
	optimizedDirConfigKey = "run.optimized_dir"
	hiThresholdConfigKey  = "analysis.high_iteration_threshold"
	rulesConfigKey        = "analysis.rules"
	excludeConfigKey      = "paths.exclude"
	recursiveConfigKey    = "paths.recursive"

	defaultReportsDir       = ".optipy-reports"
	defaultOptimizedDir     = "optimized_code"
	defaultRunParallel      = 1
	defaultCandidateTimeout = 30 * time.Second
	defaultThreshold        = 0.05
	defaultPythonBin        = "python3"
	defaultHiThreshold      = 1000

	envPrefix = "OPTIPY"

	logFilenameKey   = "log.filename"
	logLevelKey      = "log.level"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultLogFilename   = ".optipy.log"
	defaultLogLevel      = int(slog.LevelInfo)
	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

var globalLogger *slog.Logger

func init() {
	viper.SetConfigName(configBaseName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configFolderPath)
	viper.SetConfigFile(filepath.Join(configFolderPath, configFileName))
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.SetDefault(configVersionKey, currentConfigVersion)
	viper.SetDefault(outputFlagName, defaultReportsDir)
	viper.SetDefault(runParallelConfigKey, defaultRunParallel)
	viper.SetDefault(timeoutConfigKey, int64(defaultCandidateTimeout.Seconds()))
	viper.SetDefault(thresholdConfigKey, defaultThreshold)
	viper.SetDefault(pythonConfigKey, defaultPythonBin)
	viper.SetDefault(optimizedDirConfigKey, defaultOptimizedDir)
	viper.SetDefault(hiThresholdConfigKey, defaultHiThreshold)
	viper.SetDefault(rulesConfigKey, defaultRuleNames())
	viper.SetDefault(excludeConfigKey, []string{})
	viper.SetDefault(recursiveConfigKey, true)

	// Logging defaults (used by config/env and as fallbacks for flags).
	viper.SetDefault(logFilenameKey, defaultLogFilename)
	viper.SetDefault(logLevelKey, defaultLogLevel)
	viper.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	viper.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	viper.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	viper.SetDefault(logCompressKey, defaultLogCompress)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return
		}

		return
	}
}

func defaultRuleNames() []string {
	names := make([]string, 0, len(m.AllFindingKinds))
	for _, kind := range m.AllFindingKinds {
		names = append(names, string(kind))
	}

	return names
}

// enabledRuleKinds parses the configured rule names, ignoring unknown ones.
func enabledRuleKinds() []m.FindingKind {
	names := viper.GetStringSlice(rulesConfigKey)
	kinds := make([]m.FindingKind, 0, len(names))

	for _, name := range names {
		kind, ok := m.ParseFindingKind(strings.TrimSpace(name))
		if !ok {
			slog.Warn("ignoring unknown rule name", "name", name)
			continue
		}

		kinds = append(kinds, kind)
	}

	return kinds
}

func parseSlogLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	if level == "" {
		return defaultLevel
	}

	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	// Allow numeric slog levels as well (e.g. -4 for debug).
	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}

	return defaultLevel
}

// configureLogger configures the global slog logger.
//
// By default it logs at Info; if verbose is true it logs at Debug.
func configureLogger(logPath string, verbose bool) {
	if strings.TrimSpace(logPath) == "" {
		logPath = viper.GetString(logFilenameKey)
	}

	if strings.TrimSpace(logPath) == "" {
		logPath = defaultLogFilename
	}

	var logLevel slog.Level
	if verbose {
		logLevel = slog.LevelDebug
	} else {
		logLevel = parseSlogLevel(viper.GetString(logLevelKey), slog.LevelInfo)
	}

	logWriter := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    viper.GetInt(logMaxSizeKey),
		MaxBackups: viper.GetInt(logMaxBackupsKey),
		MaxAge:     viper.GetInt(logMaxAgeKey),
		Compress:   viper.GetBool(logCompressKey),
	}

	handler := slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel,
	})

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)
}
