package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/callmetrics/callmetrics-api/internal/logger"
	"github.com/callmetrics/callmetrics-api/internal/models"
	apperrors "github.com/callmetrics/callmetrics-api/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxRetries = 3
	DefaultPriority   = 0
)

// PayloadVideoID is the payload key carrying the record a job works on
const PayloadVideoID = "video_id"

type service struct {
	repo Repository
	log  *logger.Logger
}

// NewService creates the job queue service
func NewService(repo Repository, log *logger.Logger) Service {
	if log == nil {
		log = logger.Discard()
	}
	return &service{
		repo: repo,
		log:  log,
	}
}

func (s *service) enqueue(ctx context.Context, jobType models.JobType, payload models.JobPayload, opts ...JobOption) (*models.Job, error) {
	cfg := &jobConfig{
		MaxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	job := &models.Job{
		Type:       jobType,
		Status:     models.JobStatusPending,
		Payload:    payload,
		Priority:   DefaultPriority,
		MaxRetries: cfg.MaxRetries,
		CreatedBy:  cfg.CreatedBy,
	}

	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	s.log.With(logrus.Fields{"job_id": job.ID, "type": jobType, "priority": job.Priority}).Debug("job enqueued")
	return job, nil
}

// EnqueueUniqueJob returns the existing job when one with the same payload
// value is still pending or running
func (s *service) EnqueueUniqueJob(ctx context.Context, jobType models.JobType, payload models.JobPayload, uniqueKey string, opts ...JobOption) (*models.Job, error) {
	uniqueValue, ok := payload[uniqueKey]
	if !ok {
		return nil, fmt.Errorf("unique key %s not found in payload", uniqueKey)
	}

	existing, err := s.repo.GetLatestJobByPayload(ctx, jobType, uniqueKey, fmt.Sprintf("%v", uniqueValue))
	if err == nil && !existing.IsTerminal() {
		s.log.With(logrus.Fields{"job_id": existing.ID, "type": jobType, "status": existing.Status}).
			Debug("job already queued")
		return existing, nil
	}
	if err != nil && !errors.Is(err, ErrJobNotFound) {
		return nil, err
	}

	return s.enqueue(ctx, jobType, payload, opts...)
}

// GetJobForVideo returns the newest processing job of a record
func (s *service) GetJobForVideo(ctx context.Context, videoID string) (*models.Job, error) {
	return s.repo.GetLatestJobByPayload(ctx, models.JobTypeVideoProcessing, PayloadVideoID, videoID)
}

func (s *service) ClaimNextJob(ctx context.Context, workerID string, jobTypes []models.JobType) (*models.Job, error) {
	job, err := s.repo.ClaimNextJob(ctx, workerID, jobTypes)
	if err != nil {
		if errors.Is(err, ErrNoJobsAvailable) {
			return nil, err
		}
		return nil, fmt.Errorf("claiming job: %w", err)
	}

	s.log.With(logrus.Fields{"worker_id": workerID, "job_id": job.ID, "type": job.Type}).Debug("job claimed")
	return job, nil
}

func (s *service) CompleteJob(ctx context.Context, jobID uint, result models.JobResult) error {
	if err := s.repo.CompleteJob(ctx, jobID, result); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return err
		}
		return fmt.Errorf("completing job: %w", err)
	}

	s.log.WithField("job_id", jobID).Debug("job completed")
	return nil
}

// FailJob records err on the job. Errors a rerun cannot fix fail the job
// permanently.
func (s *service) FailJob(ctx context.Context, jobID uint, err error) error {
	code := apperrors.GetCode(err)
	msg := apperrors.UserMessage(err, "")

	job, failErr := s.repo.FailJob(ctx, jobID, string(code), msg, !Retryable(err))
	if failErr != nil {
		if errors.Is(failErr, ErrJobNotFound) {
			return failErr
		}
		return fmt.Errorf("failing job: %w", failErr)
	}

	entry := s.log.With(logrus.Fields{
		"job_id":      jobID,
		"error_code":  code,
		"retry_count": job.RetryCount,
		"max_retries": job.MaxRetries,
	}).WithError(err)
	if job.Status == models.JobStatusPermanentlyFailed {
		entry.Error("job failed permanently")
	} else {
		entry.Warn("job failed, will retry")
	}
	return nil
}

func (s *service) ReleaseJob(ctx context.Context, jobID uint) error {
	if err := s.repo.ReleaseJob(ctx, jobID); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return err
		}
		return fmt.Errorf("releasing job: %w", err)
	}

	s.log.WithField("job_id", jobID).Debug("job released back to pending")
	return nil
}

func (s *service) CleanupOldJobs(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive")
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	deleted, err := s.repo.DeleteOldJobs(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleaning up old jobs: %w", err)
	}

	if deleted > 0 {
		s.log.With(logrus.Fields{"deleted": deleted, "retention_days": retentionDays}).Info("old jobs deleted")
	}
	return deleted, nil
}

// Retryable reports whether running the job again could succeed. Provider
// outages and unclassified errors are retried; bad input, missing
// configuration and conflicts are not.
func Retryable(err error) bool {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeAcquisition,
		apperrors.ErrCodeDataQuality,
		apperrors.ErrCodeConfigRequired,
		apperrors.ErrCodeConflict,
		apperrors.ErrCodeNotFound,
		apperrors.ErrCodeValidation,
		apperrors.ErrCodeMissingField,
		apperrors.ErrCodeUnauthorized:
		return false
	}
	return true
}
