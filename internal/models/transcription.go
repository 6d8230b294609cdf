package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Transcription is the persisted speech-to-text result for a video.
// Rows are immutable; a new attempt writes a new row.
type Transcription struct {
	ID              string         `json:"id" gorm:"primaryKey;type:uuid"`
	VideoID         string         `json:"video_id" gorm:"not null;index"`
	Text            string         `json:"text" gorm:"type:text;not null"`
	Provider        string         `json:"provider"`
	Language        string         `json:"language"`
	DurationSeconds float64        `json:"duration_seconds"`
	WordCount       int            `json:"word_count"`
	Speakers        datatypes.JSON `json:"speakers,omitempty"`
	ProviderJobID   *string        `json:"provider_job_id,omitempty" gorm:"uniqueIndex"`
	CreatedAt       time.Time      `json:"created_at"`
}

// BeforeCreate assigns an id and derives the word count
func (t *Transcription) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.WordCount == 0 {
		t.WordCount = CountWords(t.Text)
	}
	return nil
}

// CountWords counts whitespace separated words
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// TableName specifies the table name for GORM
func (Transcription) TableName() string {
	return "transcriptions"
}
