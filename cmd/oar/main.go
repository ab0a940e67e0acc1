// Package main provides the oar CLI entry point.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version is set at build time via ldflags
var Version = "dev"

// humanOutput controls whether to use human-readable output
var humanOutput bool

// logLevel overrides the configured log level when set
var logLevel string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "oar",
	Short: "Open-access registry reconciler",
	Long: `oar reconciles external open-access datasets against a canonical
registry of journals, publishers and conferences.

Incoming entities are matched by ISSN and name, resolved into the
registry's synonym families, and their open-access policies merged
without clobbering curated data. All commands output JSON by default
for easy integration with other tools.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.Version = Version
}

// getWorkRoot returns the directory to search for a workspace from, or
// exits with an error.
func getWorkRoot() (string, int) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", outputError(ExitError, "getting current directory: %v", err)
	}

	// Check OAR_ROOT environment variable first
	if root := os.Getenv("OAR_ROOT"); root != "" {
		cwd = root
	}

	return cwd, 0
}

// newLogger builds the process logger. Structured lines go to stderr so
// stdout stays parseable.
func newLogger(level string) (*zap.Logger, error) {
	if logLevel != "" {
		level = logLevel
	}
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		lvl = parsed
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if humanOutput {
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	return cfg.Build()
}
