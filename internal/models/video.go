package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VideoStatus is the lifecycle state of an ingestion record
type VideoStatus string

const (
	VideoStatusPending    VideoStatus = "pending"
	VideoStatusProcessing VideoStatus = "processing"
	VideoStatusCompleted  VideoStatus = "completed"
	VideoStatusFailed     VideoStatus = "failed"
)

// IsTerminal returns true for completed and failed
func (s VideoStatus) IsTerminal() bool {
	return s == VideoStatusCompleted || s == VideoStatusFailed
}

// Valid reports whether s is a known status
func (s VideoStatus) Valid() bool {
	switch s {
	case VideoStatusPending, VideoStatusProcessing, VideoStatusCompleted, VideoStatusFailed:
		return true
	}
	return false
}

// transitions lists every allowed status change. failed -> processing is a
// resubmission and claim performed in a single write.
var transitions = map[VideoStatus][]VideoStatus{
	VideoStatusPending:    {VideoStatusProcessing, VideoStatusFailed},
	VideoStatusProcessing: {VideoStatusCompleted, VideoStatusFailed},
	VideoStatusFailed:     {VideoStatusPending, VideoStatusProcessing},
}

// CanTransition reports whether a record may move from one status to another
func CanTransition(from, to VideoStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition is matched by every TransitionError
var ErrInvalidTransition = errors.New("invalid status transition")

// TransitionError describes a rejected status change
type TransitionError struct {
	From VideoStatus
	To   VideoStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// AcquisitionMode is how the source media of a record is located
type AcquisitionMode string

const (
	ModeDirectUpload       AcquisitionMode = "direct-upload"
	ModeRemoteURL          AcquisitionMode = "remote-url"
	ModeCloudDriveLegacy   AcquisitionMode = "cloud-drive-legacy"
	ModeAlreadyTranscribed AcquisitionMode = "already-transcribed"
)

// Valid reports whether m is a known acquisition mode
func (m AcquisitionMode) Valid() bool {
	switch m {
	case ModeDirectUpload, ModeRemoteURL, ModeCloudDriveLegacy, ModeAlreadyTranscribed:
		return true
	}
	return false
}

// NeedsStoragePath is true for modes located by a storage object path
func (m AcquisitionMode) NeedsStoragePath() bool {
	return m == ModeDirectUpload
}

// NeedsURL is true for modes located by a remote URL
func (m AcquisitionMode) NeedsURL() bool {
	return m == ModeRemoteURL || m == ModeCloudDriveLegacy
}

// Video is the ingestion record for one submitted call recording
type Video struct {
	ID                  string          `json:"id" gorm:"primaryKey;type:uuid"`
	UserID              string          `json:"user_id" gorm:"not null;index"`
	Mode                AcquisitionMode `json:"mode" gorm:"column:mode;not null"`
	StoragePath         *string         `json:"storage_path,omitempty"`
	SourceURL           *string         `json:"source_url,omitempty"`
	Title               string          `json:"title"`
	DurationSeconds     *int            `json:"duration_seconds,omitempty"`
	MimeType            string          `json:"mime_type,omitempty"`
	FileSize            *int64          `json:"file_size,omitempty"`
	Status              VideoStatus     `json:"status" gorm:"not null;default:'pending';index"`
	ErrorMessage        *string         `json:"error_message,omitempty"`
	Attempt             int             `json:"attempt" gorm:"not null;default:0"`
	ProcessingStartedAt *time.Time      `json:"processing_started_at,omitempty" gorm:"index"`
	ProviderJobID       *string         `json:"provider_job_id,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	DeletedAt           gorm.DeletedAt  `json:"-" gorm:"index"`
}

// BeforeCreate assigns an id when the caller did not
func (v *Video) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}

// Locator returns the storage path or URL the record points at
func (v *Video) Locator() string {
	switch {
	case v.StoragePath != nil && *v.StoragePath != "":
		return *v.StoragePath
	case v.SourceURL != nil:
		return *v.SourceURL
	}
	return ""
}

// TableName specifies the table name for GORM
func (Video) TableName() string {
	return "videos"
}
