package supabase

import (
	"context"
	"fmt"
	"time"

	"github.com/callmetrics/callmetrics-api/internal/models"
	"github.com/callmetrics/callmetrics-api/internal/services/transcription"
	"github.com/google/uuid"
	"github.com/supabase-community/postgrest-go"
)

// TranscriptionRepository implements transcription.Repository over PostgREST
type TranscriptionRepository struct {
	client *postgrest.Client
}

var _ transcription.Repository = (*TranscriptionRepository)(nil)

func NewTranscriptionRepository(client *postgrest.Client) *TranscriptionRepository {
	return &TranscriptionRepository{client: client}
}

func (r *TranscriptionRepository) Create(ctx context.Context, t *models.Transcription) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.WordCount == 0 {
		t.WordCount = models.CountWords(t.Text)
	}
	t.CreatedAt = time.Now().UTC()

	var rows []models.Transcription
	if _, err := r.client.From(transcriptionsTable).Insert(t, false, "", "representation", "").ExecuteTo(&rows); err != nil {
		return fmt.Errorf("creating transcription: %w", err)
	}
	return nil
}

func (r *TranscriptionRepository) ExistsByProviderJobID(ctx context.Context, jobID string) (bool, error) {
	var rows []struct {
		ID string `json:"id"`
	}
	_, err := r.client.From(transcriptionsTable).
		Select("id", "", false).
		Eq("provider_job_id", jobID).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return false, fmt.Errorf("checking transcription: %w", err)
	}
	return len(rows) > 0, nil
}

func (r *TranscriptionRepository) ListByVideo(ctx context.Context, videoID string) ([]models.Transcription, error) {
	var rows []models.Transcription
	_, err := r.client.From(transcriptionsTable).
		Select("*", "", false).
		Eq("video_id", videoID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("listing transcriptions: %w", err)
	}
	return rows, nil
}
