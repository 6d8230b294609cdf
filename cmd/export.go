package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/callmetrics/callmetrics-api/internal/models"
	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"
)

const analysesSheet = "Analyses"

var analysisHeader = []interface{}{
	"Video ID", "Created At", "Model", "Global Score",
	"Rapport", "Situation", "Problem", "Implication", "Need Payoff",
	"Presentation", "Closing", "Objection Handling", "Payment Commitment",
	"Strengths", "Weaknesses", "Recommendations",
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored results",
}

var exportAnalysesCmd = &cobra.Command{
	Use:   "analyses",
	Short: "Export analyses to an Excel workbook",
	Long: `Write every analysis created since --since to an .xlsx workbook, one row
per analysis with the nine rubric scores and the coaching insights.

Example:
  callmetrics-api export analyses --since 720h --out scores.xlsx`,
	RunE: runExportAnalyses,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.AddCommand(exportAnalysesCmd)

	exportAnalysesCmd.Flags().Duration("since", 30*24*time.Hour, "export analyses newer than this")
	exportAnalysesCmd.Flags().Int("limit", 1000, "maximum number of analyses")
	exportAnalysesCmd.Flags().StringP("out", "o", "analyses.xlsx", "output file, - for stdout")
}

func runExportAnalyses(cmd *cobra.Command, args []string) error {
	since, _ := cmd.Flags().GetDuration("since")
	limit, _ := cmd.Flags().GetInt("limit")
	out, _ := cmd.Flags().GetString("out")

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

	analyses, err := application.scoring.ListSince(cmd.Context(), time.Now().Add(-since), limit)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if out != "-" {
		file, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		defer file.Close()
		w = file
	}

	if err := writeAnalysesWorkbook(w, analyses); err != nil {
		return err
	}
	log.WithField("rows", len(analyses)).Info("analyses exported")
	return nil
}

// writeAnalysesWorkbook renders analyses as a single sheet workbook
func writeAnalysesWorkbook(w io.Writer, analyses []models.Analysis) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", analysesSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(analysesSheet, "A1", &analysisHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, analysis := range analyses {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := analysisRow(analysis)
		if err := f.SetSheetRow(analysesSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func analysisRow(a models.Analysis) []interface{} {
	row := []interface{}{a.VideoID, a.CreatedAt.UTC().Format(time.RFC3339), a.Model, ""}
	if a.GlobalScore != nil {
		row[3] = *a.GlobalScore
	}
	for _, score := range a.Scores.Values() {
		if score == nil {
			row = append(row, "")
			continue
		}
		row = append(row, *score)
	}

	insights := a.Insights.Data()
	return append(row,
		strings.Join(insights.Strengths, "\n"),
		strings.Join(insights.Weaknesses, "\n"),
		strings.Join(insights.Recommendations, "\n"),
	)
}
