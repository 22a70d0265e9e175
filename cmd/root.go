// Package cmd contains the gatewise command-line entry points.
package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/gatewise/gatewise/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "gatewise",
	Short: "Gatewise - airport concierge service",
	Long: `Gatewise is a conversational airport concierge backed by a
vector-searchable amenity catalog. Running gatewise without a
subcommand starts the HTTP server.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

// Execute runs the root command. Called from main.
func Execute() error {
	// Local development convenience; absence of .env is not an error.
	_ = godotenv.Load()

	logger := initLogger()
	slog.SetDefault(logger)

	return rootCmd.Execute()
}

// initLogger builds the process logger. DEBUG enables debug level;
// GATEWISE_LOG_JSON switches to JSON output for log aggregation.
func initLogger() *slog.Logger {
	cfg := log.Config{Level: slog.LevelInfo}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}
	if os.Getenv("GATEWISE_LOG_JSON") != "" {
		cfg.JSON = true
	}
	return log.New(cfg)
}
