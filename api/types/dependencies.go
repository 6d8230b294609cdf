package types

import (
	"context"

	"github.com/callmetrics/callmetrics-api/internal/database"
	"github.com/callmetrics/callmetrics-api/internal/logger"
	"github.com/callmetrics/callmetrics-api/internal/models"
	"github.com/callmetrics/callmetrics-api/internal/services/auth"
	"github.com/callmetrics/callmetrics-api/internal/services/pipeline"
	"github.com/callmetrics/callmetrics-api/internal/services/transcription"
	"github.com/callmetrics/callmetrics-api/internal/services/videos"
)

// Pipeline runs and schedules processing of a record
type Pipeline interface {
	Process(ctx context.Context, videoID string) (*pipeline.Outcome, error)
	VerifyCallbackKey(key string) error
	HandleCallback(ctx context.Context, videoID, key string, payload transcription.CallbackPayload) (*pipeline.Outcome, error)
	Enqueue(ctx context.Context, videoID, requestedBy string) (*models.Job, error)
}

// TranscriptionLister reads the stored transcripts of a record
type TranscriptionLister interface {
	List(ctx context.Context, videoID string) ([]models.Transcription, error)
}

// AnalysisLister reads the stored analyses of a record
type AnalysisLister interface {
	List(ctx context.Context, videoID string) ([]models.Analysis, error)
	Latest(ctx context.Context, videoID string) (*models.Analysis, error)
}

// JobLookup finds the newest background job of a record
type JobLookup interface {
	GetJobForVideo(ctx context.Context, videoID string) (*models.Job, error)
}

// TokenValidator checks bearer tokens
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// Dependencies holds all the dependencies needed by handlers
type Dependencies struct {
	DB             *database.DB
	Videos         videos.Service
	Pipeline       Pipeline
	Transcriptions TranscriptionLister
	Analyses       AnalysisLister
	Jobs           JobLookup
	Auth           TokenValidator
	Logger         *logger.Logger
	StorageDriver  string
}

// Log returns the configured logger or one that discards everything
func (d *Dependencies) Log() *logger.Logger {
	if d == nil || d.Logger == nil {
		return logger.Discard()
	}
	return d.Logger
}
