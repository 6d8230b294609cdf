package scoring

import (
	"context"
	"errors"
	"time"

	"github.com/callmetrics/callmetrics-api/internal/models"
)

var ErrAnalysisNotFound = errors.New("analysis not found")

// Repository defines data access for analyses
type Repository interface {
	Create(ctx context.Context, analysis *models.Analysis) error
	ListByVideo(ctx context.Context, videoID string) ([]models.Analysis, error)
	LatestByVideo(ctx context.Context, videoID string) (*models.Analysis, error)
	ListSince(ctx context.Context, since time.Time, limit int) ([]models.Analysis, error)
}

// ChatCompleter sends one system and user turn to a chat model and returns
// the text of the first choice
type ChatCompleter interface {
	Model() string
	Configured() bool
	Complete(ctx context.Context, system, user string) (string, error)
}
