package types

import "github.com/callmetrics/callmetrics-api/internal/models"

// SuccessResponse wraps every successful payload
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

// ErrorResponse for detailed error information
type ErrorResponse struct {
	Error   string      `json:"error"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// ListResponse is the data of a paginated list
type ListResponse struct {
	Items  interface{} `json:"items"`
	Total  int64       `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// JobAccepted is the data returned when processing was queued
type JobAccepted struct {
	JobID   uint   `json:"job_id"`
	VideoID string `json:"video_id"`
	Status  string `json:"status"`
}

// JobStatus summarizes the background job of a record
type JobStatus struct {
	ID         uint   `json:"id"`
	Status     string `json:"status"`
	RetryCount int    `json:"retry_count"`
	MaxRetries int    `json:"max_retries"`
	Error      string `json:"error,omitempty"`
}

// NewJobStatus builds the summary of job
func NewJobStatus(job *models.Job) *JobStatus {
	return &JobStatus{
		ID:         job.ID,
		Status:     string(job.Status),
		RetryCount: job.RetryCount,
		MaxRetries: job.MaxRetries,
		Error:      job.Error,
	}
}

// VideoDetail is the data of GET /api/v1/videos/{id}: the record, its
// newest analysis and its newest background job
type VideoDetail struct {
	*models.Video
	LatestAnalysis *models.Analysis `json:"latest_analysis,omitempty"`
	Job            *JobStatus       `json:"job,omitempty"`
}

// WebhookAck is the answer given to the transcription provider. Error is set
// when the notification was authentic but could not be applied.
type WebhookAck struct {
	Received bool   `json:"received"`
	Error    string `json:"error,omitempty"`
}

// CreateVideoRequest is the body of POST /api/v1/videos
type CreateVideoRequest struct {
	Mode            string `json:"mode" binding:"required"`
	StoragePath     string `json:"storage_path"`
	SourceURL       string `json:"source_url"`
	Title           string `json:"title"`
	MimeType        string `json:"mime_type"`
	FileSize        int64  `json:"file_size" binding:"gte=0"`
	DurationSeconds int    `json:"duration_seconds" binding:"gte=0"`
}

// ProcessVideoRequest is the body of POST /api/v1/process-video
type ProcessVideoRequest struct {
	VideoID string `json:"videoId" binding:"required"`
}
