package pipeline

import (
	"context"

	"github.com/callmetrics/callmetrics-api/internal/models"
	"github.com/callmetrics/callmetrics-api/internal/services/acquisition"
	"github.com/callmetrics/callmetrics-api/internal/services/jobs"
	"github.com/callmetrics/callmetrics-api/internal/services/transcription"
)

// Resolver turns a record into a fetchable audio URL
type Resolver interface {
	Resolve(ctx context.Context, video *models.Video) (*acquisition.Result, error)
}

// Transcriber is the transcription stage in either mode
type Transcriber interface {
	Async() bool
	TranscribeSync(ctx context.Context, video *models.Video, audioURL string) (*models.Transcription, error)
	Submit(ctx context.Context, video *models.Video, audioURL string) (string, error)
	VerifyCallbackKey(key string) error
	HandleCallback(ctx context.Context, video *models.Video, payload transcription.CallbackPayload) (*models.Transcription, error)
}

// Scorer is the scoring stage
type Scorer interface {
	Score(ctx context.Context, videoID, transcript string) (*models.Analysis, error)
}

// Enqueuer queues background jobs
type Enqueuer interface {
	EnqueueUniqueJob(ctx context.Context, jobType models.JobType, payload models.JobPayload, uniqueKey string, opts ...jobs.JobOption) (*models.Job, error)
}

// Outcome is the result of one pipeline pass. Pending is set when the
// transcript will arrive through the provider webhook.
type Outcome struct {
	Video         *models.Video         `json:"video"`
	Transcription *models.Transcription `json:"transcription,omitempty"`
	Analysis      *models.Analysis      `json:"analysis,omitempty"`
	Pending       bool                  `json:"pending"`
	ProviderJobID string                `json:"provider_job_id,omitempty"`
}
