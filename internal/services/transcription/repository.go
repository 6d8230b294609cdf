package transcription

import (
	"context"
	"fmt"

	"github.com/callmetrics/callmetrics-api/internal/models"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

// NewRepository creates a gorm backed transcript repository
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, transcription *models.Transcription) error {
	if err := r.db.WithContext(ctx).Create(transcription).Error; err != nil {
		return fmt.Errorf("creating transcription: %w", err)
	}
	return nil
}

func (r *repository) ExistsByProviderJobID(ctx context.Context, jobID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Transcription{}).
		Where("provider_job_id = ?", jobID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking transcription job: %w", err)
	}
	return count > 0, nil
}

func (r *repository) ListByVideo(ctx context.Context, videoID string) ([]models.Transcription, error) {
	var transcriptions []models.Transcription
	err := r.db.WithContext(ctx).
		Where("video_id = ?", videoID).
		Order("created_at DESC").
		Find(&transcriptions).Error
	if err != nil {
		return nil, fmt.Errorf("listing transcriptions: %w", err)
	}
	return transcriptions, nil
}
