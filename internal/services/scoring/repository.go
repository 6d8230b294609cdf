package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/callmetrics/callmetrics-api/internal/models"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

// NewRepository creates a gorm backed analysis repository
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, analysis *models.Analysis) error {
	if err := r.db.WithContext(ctx).Create(analysis).Error; err != nil {
		return fmt.Errorf("creating analysis: %w", err)
	}
	return nil
}

func (r *repository) ListByVideo(ctx context.Context, videoID string) ([]models.Analysis, error) {
	var analyses []models.Analysis
	err := r.db.WithContext(ctx).
		Where("video_id = ?", videoID).
		Order("created_at DESC").
		Find(&analyses).Error
	if err != nil {
		return nil, fmt.Errorf("listing analyses: %w", err)
	}
	return analyses, nil
}

func (r *repository) LatestByVideo(ctx context.Context, videoID string) (*models.Analysis, error) {
	var analysis models.Analysis
	err := r.db.WithContext(ctx).
		Where("video_id = ?", videoID).
		Order("created_at DESC").
		First(&analysis).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("getting analysis: %w", err)
	}
	return &analysis, nil
}

func (r *repository) ListSince(ctx context.Context, since time.Time, limit int) ([]models.Analysis, error) {
	var analyses []models.Analysis
	query := r.db.WithContext(ctx).Where("created_at >= ?", since).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&analyses).Error; err != nil {
		return nil, fmt.Errorf("listing analyses: %w", err)
	}
	return analyses, nil
}
