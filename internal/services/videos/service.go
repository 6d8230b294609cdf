package videos

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/callmetrics/callmetrics-api/internal/logger"
	"github.com/callmetrics/callmetrics-api/internal/models"
	apperrors "github.com/callmetrics/callmetrics-api/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	staleBatchSize       = 100
	staleMessage         = "processing timed out, please try again"
	defaultFailedMessage = "processing failed"
)

// CreateOption sets optional fields on a new record
type CreateOption func(*models.Video)

// WithMimeType records the declared media type
func WithMimeType(mimeType string) CreateOption {
	return func(v *models.Video) { v.MimeType = mimeType }
}

// WithFileSize records the declared size in bytes
func WithFileSize(size int64) CreateOption {
	return func(v *models.Video) { v.FileSize = &size }
}

// WithDuration records a known duration in seconds
func WithDuration(seconds int) CreateOption {
	return func(v *models.Video) { v.DurationSeconds = &seconds }
}

// ServiceOption configures the service
type ServiceOption func(*service)

// WithLogger sets the logger
func WithLogger(l *logger.Logger) ServiceOption {
	return func(s *service) { s.log = l }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) ServiceOption {
	return func(s *service) { s.now = now }
}

type service struct {
	repo Repository
	log  *logger.Logger
	now  func() time.Time
}

// NewService creates the ingestion record service
func NewService(repo Repository, opts ...ServiceOption) Service {
	s := &service{
		repo: repo,
		log:  logger.Discard(),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Create(ctx context.Context, ownerID string, mode models.AcquisitionMode, locator, title string, opts ...CreateOption) (*models.Video, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperrors.MissingFieldError("user_id")
	}
	if !mode.Valid() {
		return nil, apperrors.ValidationError("mode", "must be one of direct-upload, remote-url, cloud-drive-legacy, already-transcribed")
	}

	locator = strings.TrimSpace(locator)
	video := &models.Video{
		UserID: ownerID,
		Mode:   mode,
		Title:  strings.TrimSpace(title),
		Status: models.VideoStatusPending,
	}

	switch {
	case mode.NeedsStoragePath():
		if locator == "" {
			return nil, apperrors.MissingFieldError("storage_path")
		}
		video.StoragePath = &locator
	case mode.NeedsURL():
		if locator == "" {
			return nil, apperrors.MissingFieldError("source_url")
		}
		video.SourceURL = &locator
	}

	for _, opt := range opts {
		opt(video)
	}

	if err := s.repo.Create(ctx, video); err != nil {
		return nil, apperrors.DatabaseError("create video", err)
	}
	return video, nil
}

func (s *service) Get(ctx context.Context, id string) (*models.Video, error) {
	return s.repo.GetByID(ctx, id)
}

// SetStatus moves a record to status after checking the transition against
// the status it currently has. errorMessage is stored only for failed.
func (s *service) SetStatus(ctx context.Context, id string, status models.VideoStatus, errorMessage string) (*models.Video, error) {
	video, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, video, status, errorMessage)
}

// transition writes status conditionally on the status and attempt observed
// in video
func (s *service) transition(ctx context.Context, video *models.Video, status models.VideoStatus, errorMessage string) (*models.Video, error) {
	id := video.ID
	if !models.CanTransition(video.Status, status) {
		return nil, &models.TransitionError{From: video.Status, To: status}
	}

	updates := map[string]interface{}{"status": status}
	attempt := video.Attempt
	var startedAt *time.Time
	var message *string

	switch status {
	case models.VideoStatusProcessing:
		now := s.now()
		startedAt = &now
		attempt++
		updates["attempt"] = attempt
		updates["processing_started_at"] = startedAt
		updates["error_message"] = nil
		updates["provider_job_id"] = nil
	case models.VideoStatusFailed:
		if errorMessage == "" {
			errorMessage = defaultFailedMessage
		}
		message = &errorMessage
		updates["error_message"] = errorMessage
		startedAt = video.ProcessingStartedAt
	default:
		updates["error_message"] = nil
		startedAt = video.ProcessingStartedAt
	}

	ok, err := s.repo.UpdateIf(ctx, id, video.Status, video.Attempt, updates)
	if err != nil {
		return nil, apperrors.DatabaseError("update video status", err)
	}
	if !ok {
		return nil, ErrStatusChanged
	}

	s.log.With(logrus.Fields{
		"video_id": id,
		"from":     video.Status,
		"to":       status,
		"attempt":  attempt,
	}).Info("video status changed")

	video.Status = status
	video.Attempt = attempt
	video.ErrorMessage = message
	video.ProcessingStartedAt = startedAt
	if status == models.VideoStatusProcessing {
		video.ProviderJobID = nil
	}
	return video, nil
}

// BeginAttempt claims the record for one pipeline pass. Only one caller can
// win for a given attempt; the others get ErrAttemptInProgress.
func (s *service) BeginAttempt(ctx context.Context, id string) (*models.Video, error) {
	video, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if video.Status == models.VideoStatusProcessing {
		return nil, ErrAttemptInProgress
	}

	claimed, err := s.transition(ctx, video, models.VideoStatusProcessing, "")
	if errors.Is(err, ErrStatusChanged) {
		return nil, ErrAttemptInProgress
	}
	return claimed, err
}

// FinishAttempt moves the attempt opened by BeginAttempt to a terminal
// status. It returns ErrStatusChanged when that attempt is no longer the
// current one, e.g. the stale sweeper already failed it.
func (s *service) FinishAttempt(ctx context.Context, claimed *models.Video, status models.VideoStatus, errorMessage string) (*models.Video, error) {
	if claimed.Status != models.VideoStatusProcessing || !status.IsTerminal() {
		return nil, &models.TransitionError{From: claimed.Status, To: status}
	}
	snapshot := *claimed
	return s.transition(ctx, &snapshot, status, errorMessage)
}

// Resubmit returns a failed record to pending
func (s *service) Resubmit(ctx context.Context, id string) (*models.Video, error) {
	return s.SetStatus(ctx, id, models.VideoStatusPending, "")
}

// SetProviderJob records the async transcript job submitted by the attempt
// in claimed. It returns ErrStatusChanged when that attempt has ended.
func (s *service) SetProviderJob(ctx context.Context, claimed *models.Video, jobID string) error {
	if jobID == "" {
		return apperrors.MissingFieldError("provider_job_id")
	}
	ok, err := s.repo.UpdateIf(ctx, claimed.ID, models.VideoStatusProcessing, claimed.Attempt,
		map[string]interface{}{"provider_job_id": jobID})
	if err != nil {
		return apperrors.DatabaseError("update video", err)
	}
	if !ok {
		return ErrStatusChanged
	}
	claimed.ProviderJobID = &jobID
	return nil
}

func (s *service) SetDuration(ctx context.Context, id string, seconds int) error {
	if seconds < 0 {
		return apperrors.ValidationError("duration_seconds", "must not be negative")
	}
	return s.repo.Update(ctx, id, map[string]interface{}{"duration_seconds": seconds})
}

func (s *service) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]models.Video, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByOwner(ctx, ownerID, limit, offset)
}

// Delete soft deletes a record that is not being processed
func (s *service) Delete(ctx context.Context, id string) error {
	video, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if video.Status == models.VideoStatusProcessing {
		return ErrAttemptInProgress
	}
	return s.repo.Delete(ctx, id)
}

// FailStale fails records that have been processing for longer than
// olderThan. It returns how many records were changed.
func (s *service) FailStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)

	stale, err := s.repo.ListStale(ctx, cutoff, staleBatchSize)
	if err != nil {
		return 0, err
	}

	failed := 0
	for i := range stale {
		video := &stale[i]
		if _, err := s.transition(ctx, video, models.VideoStatusFailed, staleMessage); err != nil {
			if errors.Is(err, ErrStatusChanged) {
				continue
			}
			return failed, err
		}
		failed++
		s.log.With(logrus.Fields{
			"video_id": video.ID,
			"attempt":  video.Attempt,
		}).Warn("failed stale processing record")
	}
	return failed, nil
}
