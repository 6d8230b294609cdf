package cmd

import (
	"fmt"
	"os"

	"github.com/callmetrics/callmetrics-api/internal/logger"
	"github.com/callmetrics/callmetrics-api/pkg/config"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "callmetrics-api",
	Short: "CallMetrics API server",
	Long: `CallMetrics API - sales call ingestion and scoring

Submitted call recordings are located, transcribed and scored against a
nine dimension sales rubric. Results are stored per recording so coaches
can review transcripts, scores and insights.

Features:
  • Direct upload, remote URL and pre-transcribed ingestion
  • Synchronous or webhook driven transcription
  • Rubric scoring with coaching insights
  • Background processing with retries`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd creates a new root command (exported for testing)
func NewRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error), overrides config")
	rootCmd.PersistentFlags().Bool("json-logs", false, "enable JSON formatted logs")
}

// loadConfig initializes the configuration for commands that need it.
// version and help never call it.
func loadConfig() (*config.Config, error) {
	if err := config.Init(); err != nil {
		return nil, fmt.Errorf("error initializing config: %w", err)
	}
	return config.GetConfig()
}

// newLogger builds the process logger from config, letting the persistent
// flags win when set.
func newLogger(cmd *cobra.Command, cfg *config.Config) *logger.Logger {
	opts := logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cmd.ErrOrStderr(),
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		opts.Level = level
	}
	if jsonLogs, _ := cmd.Flags().GetBool("json-logs"); jsonLogs {
		opts.Format = "json"
	}
	return logger.New(opts)
}
