package videos

import (
	"context"
	"errors"
	"time"

	"github.com/callmetrics/callmetrics-api/internal/models"
)

var (
	ErrVideoNotFound     = errors.New("video not found")
	ErrAttemptInProgress = errors.New("video is already being processed")
	ErrStatusChanged     = errors.New("video status changed concurrently")
	ErrInvalidTransition = models.ErrInvalidTransition
)

// Repository defines data access for ingestion records. Every status write
// goes through UpdateIf so a concurrent writer is never overwritten.
type Repository interface {
	Create(ctx context.Context, video *models.Video) error
	GetByID(ctx context.Context, id string) (*models.Video, error)

	// UpdateIf applies updates only while the row still has the observed
	// status and attempt. It reports whether a row was changed.
	UpdateIf(ctx context.Context, id string, status models.VideoStatus, attempt int, updates map[string]interface{}) (bool, error)
	Update(ctx context.Context, id string, updates map[string]interface{}) error

	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]models.Video, int64, error)
	ListStale(ctx context.Context, startedBefore time.Time, limit int) ([]models.Video, error)
	Delete(ctx context.Context, id string) error
}

// Service defines ingestion record operations
type Service interface {
	Create(ctx context.Context, ownerID string, mode models.AcquisitionMode, locator, title string, opts ...CreateOption) (*models.Video, error)
	Get(ctx context.Context, id string) (*models.Video, error)
	SetStatus(ctx context.Context, id string, status models.VideoStatus, errorMessage string) (*models.Video, error)

	BeginAttempt(ctx context.Context, id string) (*models.Video, error)
	FinishAttempt(ctx context.Context, claimed *models.Video, status models.VideoStatus, errorMessage string) (*models.Video, error)
	Resubmit(ctx context.Context, id string) (*models.Video, error)
	SetProviderJob(ctx context.Context, claimed *models.Video, jobID string) error
	SetDuration(ctx context.Context, id string, seconds int) error

	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]models.Video, int64, error)
	Delete(ctx context.Context, id string) error
	FailStale(ctx context.Context, olderThan time.Duration) (int, error)
}
