package videos

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

// NewRepository creates a gorm backed video repository
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, video *models.Video) error {
	if err := r.db.WithContext(ctx).Create(video).Error; err != nil {
		return fmt.Errorf("creating video: %w", err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*models.Video, error) {
	var video models.Video
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&video).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVideoNotFound
		}
		return nil, fmt.Errorf("getting video: %w", err)
	}
	return &video, nil
}

func (r *repository) UpdateIf(ctx context.Context, id string, status models.VideoStatus, attempt int, updates map[string]interface{}) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Video{}).
		Where("id = ? AND status = ? AND attempt = ?", id, status, attempt).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("updating video: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&models.Video{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("updating video: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrVideoNotFound
	}
	return nil
}

func (r *repository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]models.Video, int64, error) {
	var (
		videos []models.Video
		total  int64
	)

	query := r.db.WithContext(ctx).Model(&models.Video{}).Where("user_id = ?", ownerID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting videos: %w", err)
	}

	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&videos).Error; err != nil {
		return nil, 0, fmt.Errorf("listing videos: %w", err)
	}
	return videos, total, nil
}

func (r *repository) ListStale(ctx context.Context, startedBefore time.Time, limit int) ([]models.Video, error) {
	var videos []models.Video
	err := r.db.WithContext(ctx).
		Where("status = ? AND processing_started_at < ?", models.VideoStatusProcessing, startedBefore).
		Order("processing_started_at ASC").
		Limit(limit).
		Find(&videos).Error
	if err != nil {
		return nil, fmt.Errorf("listing stale videos: %w", err)
	}
	return videos, nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Video{})
	if result.Error != nil {
		return fmt.Errorf("deleting video: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrVideoNotFound
	}
	return nil
}
