package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/callmetrics/callmetrics-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/datatypes"
)

func intPtr(v int) *int { return &v }

func TestWriteAnalysesWorkbook(t *testing.T) {
	global := 62.5
	analyses := []models.Analysis{
		{
			VideoID:     "v-1",
			Model:       "gpt-4o-mini",
			GlobalScore: &global,
			Scores: models.Scores{
				Rapport: intPtr(80),
				Problem: intPtr(45),
			},
			Insights: datatypes.NewJSONType(models.Insights{
				Strengths:  []string{"Clear agenda", "Good rapport"},
				Weaknesses: []string{"No close"},
			}),
			CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			VideoID:   "v-2",
			Model:     "gpt-4o-mini",
			CreatedAt: time.Date(2025, 3, 2, 9, 30, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, writeAnalysesWorkbook(&buf, analyses))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{analysesSheet}, f.GetSheetList())

	rows, err := f.GetRows(analysesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "Video ID", rows[0][0])
	assert.Equal(t, "Recommendations", rows[0][len(rows[0])-1])

	first := rows[1]
	assert.Equal(t, "v-1", first[0])
	assert.Equal(t, "2025-03-01T12:00:00Z", first[1])
	assert.Equal(t, "62.5", first[3])
	assert.Equal(t, "80", first[4])
	assert.Equal(t, "", first[5])
	assert.Equal(t, "45", first[6])
	assert.Equal(t, "Clear agenda\nGood rapport", first[13])
	assert.Equal(t, "No close", first[14])

	second := rows[2]
	assert.Equal(t, "v-2", second[0])
	assert.Equal(t, "gpt-4o-mini", second[2])
}

func TestWriteAnalysesWorkbook_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeAnalysesWorkbook(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(analysesSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
