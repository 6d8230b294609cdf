package transcription

import (
	"context"

	"github.com/callmetrics/callmetrics-api/internal/models"
	"github.com/callmetrics/callmetrics-api/pkg/download"
)

// Repository defines data access for transcripts
type Repository interface {
	Create(ctx context.Context, transcription *models.Transcription) error
	ExistsByProviderJobID(ctx context.Context, jobID string) (bool, error)
	ListByVideo(ctx context.Context, videoID string) ([]models.Transcription, error)
}

// ChunkResult is the provider answer for one audio window
type ChunkResult struct {
	Text     string
	Duration float64
	Language string
}

// ChunkTranscriber transcribes one audio window synchronously
type ChunkTranscriber interface {
	Name() string
	Configured() bool
	TranscribeChunk(ctx context.Context, chunk []byte, filename string) (*ChunkResult, error)
}

// AsyncTranscript is a transcript job as reported by the async provider
type AsyncTranscript struct {
	ID         string      `json:"id"`
	Status     string      `json:"status"`
	Text       string      `json:"text"`
	Error      string      `json:"error"`
	Duration   float64     `json:"audio_duration"`
	Language   string      `json:"language_code"`
	Utterances []Utterance `json:"utterances"`
}

// Utterance is one diarized speaker turn
type Utterance struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	Start   int64  `json:"start"`
	End     int64  `json:"end"`
}

// AsyncProvider submits transcript jobs that report back through a webhook
type AsyncProvider interface {
	Name() string
	Configured() bool
	Submit(ctx context.Context, audioURL, webhookURL string) (string, error)
	Get(ctx context.Context, jobID string) (*AsyncTranscript, error)
}

// MediaFetcher probes and downloads audio
type MediaFetcher interface {
	Probe(ctx context.Context, url string) (*download.ProbeResult, error)
	Fetch(ctx context.Context, url string) (*download.Result, error)
}

// CallbackPayload is the body the async provider posts to the webhook
type CallbackPayload struct {
	TranscriptID string `json:"transcript_id" binding:"required"`
	Status       string `json:"status" binding:"required"`
	Error        string `json:"error,omitempty"`

	// Attempt comes from the webhook URL the job was submitted with
	Attempt int `json:"-"`
}

// Async provider job statuses
const (
	AsyncStatusQueued     = "queued"
	AsyncStatusProcessing = "processing"
	AsyncStatusCompleted  = "completed"
	AsyncStatusError      = "error"
)
