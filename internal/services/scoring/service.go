package scoring

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/callmetrics/callmetrics-api/internal/logger"
	"github.com/callmetrics/callmetrics-api/internal/models"
	apperrors "github.com/callmetrics/callmetrics-api/pkg/errors"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// output is the JSON document the model is asked to produce
type output struct {
	Scores          *models.Scores     `json:"scores" validate:"required"`
	Summary         string             `json:"summary"`
	Strengths       []string           `json:"strengths"`
	Weaknesses      []string           `json:"weaknesses"`
	Recommendations []string           `json:"recommendations"`
	Timeline        []models.Moment    `json:"timeline" validate:"dive"`
	Objections      []models.Objection `json:"objections" validate:"dive"`
}

// Option configures the Service
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithClock overrides time.Now for duration measurement
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service runs the scoring stage
type Service struct {
	repo     Repository
	chat     ChatCompleter
	validate *validator.Validate
	log      *logger.Logger
	now      func() time.Time
}

// NewService creates the scoring stage
func NewService(repo Repository, chat ChatCompleter, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		chat:     chat,
		validate: validator.New(),
		log:      logger.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score asks the model to evaluate transcript and stores the result as a
// new analysis of videoID
func (s *Service) Score(ctx context.Context, videoID, transcript string) (*models.Analysis, error) {
	if s.chat == nil || !s.chat.Configured() {
		return nil, apperrors.NotConfigured("analysis", "ai.api_key")
	}
	if strings.TrimSpace(transcript) == "" {
		return nil, apperrors.DataQualityError("transcript is empty", nil)
	}

	log := s.log.With(logrus.Fields{"video_id": videoID, "stage": "analysis", "model": s.chat.Model()})
	start := s.now()

	content, err := s.chat.Complete(ctx, SystemPrompt(), UserPrompt(transcript))
	if err != nil {
		return nil, err
	}

	result, err := s.parse(content)
	if err != nil {
		log.WithError(err).WithField("content_len", len(content)).Warn("analysis output rejected")
		return nil, err
	}

	analysis := &models.Analysis{
		VideoID: videoID,
		Scores:  *result.Scores,
		Insights: datatypes.NewJSONType(models.Insights{
			Summary:         result.Summary,
			Strengths:       nonNil(result.Strengths),
			Weaknesses:      nonNil(result.Weaknesses),
			Recommendations: nonNil(result.Recommendations),
			Timeline:        result.Timeline,
			Objections:      result.Objections,
		}),
		Model:        s.chat.Model(),
		ProcessingMS: s.now().Sub(start).Milliseconds(),
	}
	analysis.GlobalScore = analysis.Scores.Global()

	if err := s.repo.Create(ctx, analysis); err != nil {
		return nil, apperrors.DatabaseError("save analysis", err)
	}

	fields := logrus.Fields{"processing_ms": analysis.ProcessingMS}
	if analysis.GlobalScore != nil {
		fields["global_score"] = *analysis.GlobalScore
	}
	log.WithFields(fields).Info("analysis stored")
	return analysis, nil
}

// parse extracts, decodes and validates the model answer. Any defect makes
// the whole answer unusable.
func (s *Service) parse(content string) (*output, error) {
	raw, ok := ExtractJSON(content)
	if !ok {
		return nil, apperrors.DataQualityError("analysis returned no JSON object", nil)
	}

	var result output
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, apperrors.DataQualityError("analysis returned malformed JSON", err)
	}

	if err := s.validate.Struct(&result); err != nil {
		return nil, apperrors.DataQualityError("analysis returned out of range values", err)
	}
	if !result.Scores.InBounds() {
		return nil, apperrors.DataQualityError("analysis returned out of range values", nil)
	}

	return &result, nil
}

// List returns every analysis of a record, newest first
func (s *Service) List(ctx context.Context, videoID string) ([]models.Analysis, error) {
	return s.repo.ListByVideo(ctx, videoID)
}

// Latest returns the newest analysis of a record, or ErrAnalysisNotFound
func (s *Service) Latest(ctx context.Context, videoID string) (*models.Analysis, error) {
	return s.repo.LatestByVideo(ctx, videoID)
}

// ListSince returns analyses created at or after since, oldest first
func (s *Service) ListSince(ctx context.Context, since time.Time, limit int) ([]models.Analysis, error) {
	return s.repo.ListSince(ctx, since, limit)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
