package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// processCmd runs the pipeline for one record in the foreground
var processCmd = &cobra.Command{
	Use:   "process <videoId>",
	Short: "Process one recording now",
	Long: `Run acquisition, transcription and scoring for one recording without
going through the HTTP API or the job queue. The outcome is printed as JSON.

In async transcription mode the command returns once the provider job is
submitted; scoring happens when the webhook arrives at a running server.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cmd, cfg)

	application, err := buildApp(cfg, log)
	if err != nil {
		return err
	}
	defer application.close()

	outcome, err := application.pipeline.Process(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("processing %s: %w", args[0], err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(outcome)
}
