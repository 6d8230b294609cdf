package pipeline

import (
	"context"

	"github.com/callmetrics/callmetrics-api/internal/models"
	"github.com/callmetrics/callmetrics-api/internal/services/jobs"
	apperrors "github.com/callmetrics/callmetrics-api/pkg/errors"
)

// Processor runs queued video_processing jobs through the pipeline
type Processor struct {
	pipeline *Service
}

// NewProcessor creates a job processor backed by the pipeline
func NewProcessor(pipeline *Service) *Processor {
	return &Processor{pipeline: pipeline}
}

// CanProcess returns true for video processing jobs
func (p *Processor) CanProcess(jobType models.JobType) bool {
	return jobType == models.JobTypeVideoProcessing
}

// ProcessJob runs one pipeline attempt for the record in the job payload
func (p *Processor) ProcessJob(ctx context.Context, job *models.Job) (models.JobResult, error) {
	videoID, ok := job.GetPayloadString(jobs.PayloadVideoID)
	if !ok || videoID == "" {
		return nil, apperrors.MissingFieldError(jobs.PayloadVideoID)
	}

	out, err := p.pipeline.Process(ctx, videoID)
	if err != nil {
		return nil, err
	}

	result := models.JobResult{
		"video_id": videoID,
		"status":   string(out.Video.Status),
		"pending":  out.Pending,
	}
	if out.Analysis != nil {
		result["analysis_id"] = out.Analysis.ID
		if out.Analysis.GlobalScore != nil {
			result["global_score"] = *out.Analysis.GlobalScore
		}
	}
	if out.ProviderJobID != "" {
		result["provider_job_id"] = out.ProviderJobID
	}
	return result, nil
}
