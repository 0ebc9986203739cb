// Package env resolves command settings from cobra flags, the environment and
// fallback values, in that order.
package env

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/agentuity/go-cacheable/logger"
	"github.com/spf13/cobra"
)

// FlagOrEnv will try and get a flag from the cobra.Command and if not set, look it up in the environment
// and fallback to defaultValue if none found
func FlagOrEnv(cmd *cobra.Command, flagName string, envName string, defaultValue string) string {
	if flag := cmd.Flags().Lookup(flagName); flag != nil && flag.Changed {
		return flag.Value.String()
	}
	if val, ok := os.LookupEnv(envName); ok && val != "" {
		return val
	}
	return defaultValue
}

// IntFlagOrEnv is FlagOrEnv for integer settings. Values that do not parse are an error.
func IntFlagOrEnv(cmd *cobra.Command, flagName string, envName string, defaultValue int) (int, error) {
	val := FlagOrEnv(cmd, flagName, envName, strconv.Itoa(defaultValue))
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// LogLevel reads the log-level flag, then AGENTUITY_LOG_LEVEL, defaulting to info.
func LogLevel(cmd *cobra.Command) logger.LogLevel {
	level, ok := logger.ParseLevel(FlagOrEnv(cmd, "log-level", logger.LevelEnv, "info"))
	if !ok {
		return logger.LevelInfo
	}
	return level
}

// LogFormat reads the log-format flag, then AGENTUITY_LOG_FORMAT, defaulting to text.
func LogFormat(cmd *cobra.Command) string {
	return strings.ToLower(FlagOrEnv(cmd, "log-format", "AGENTUITY_LOG_FORMAT", "text"))
}

// NewLogger returns a logger writing to the command's error stream. The level
// comes from the log-level flag, then AGENTUITY_LOG_LEVEL, falling back to
// info. A log-format of json selects one JSON object per line, anything else
// the console logger.
func NewLogger(cmd *cobra.Command) logger.Logger {
	level := LogLevel(cmd)
	if LogFormat(cmd) == "json" {
		return logger.NewJSONLoggerWithSink(cmd.ErrOrStderr(), level)
	}
	log.SetFlags(0)
	log.SetOutput(cmd.ErrOrStderr())
	return logger.NewConsoleLogger(level)
}
