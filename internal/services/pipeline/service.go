package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/callmetrics/callmetrics-api/internal/logger"
	"github.com/callmetrics/callmetrics-api/internal/models"
	"github.com/callmetrics/callmetrics-api/internal/services/jobs"
	"github.com/callmetrics/callmetrics-api/internal/services/transcription"
	"github.com/callmetrics/callmetrics-api/internal/services/videos"
	apperrors "github.com/callmetrics/callmetrics-api/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	defaultFailureMessage = "processing failed, please try again"
	panicMessage          = "processing failed unexpectedly, please try again"
	defaultSettleTimeout  = 10 * time.Second
)

// Option configures the Service
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithEnqueuer enables background runs through the job queue
func WithEnqueuer(q Enqueuer, maxRetries int) Option {
	return func(s *Service) {
		s.queue = q
		s.maxRetries = maxRetries
	}
}

// WithSettleTimeout bounds the write that records a failed attempt
func WithSettleTimeout(d time.Duration) Option {
	return func(s *Service) { s.settleTimeout = d }
}

// Service chains acquisition, transcription and scoring for one record
type Service struct {
	videos        videos.Service
	resolver      Resolver
	transcriber   Transcriber
	scorer        Scorer
	queue         Enqueuer
	maxRetries    int
	settleTimeout time.Duration
	log           *logger.Logger
}

// NewService creates the pipeline
func NewService(videoService videos.Service, resolver Resolver, transcriber Transcriber, scorer Scorer, opts ...Option) *Service {
	s := &Service{
		videos:        videoService,
		resolver:      resolver,
		transcriber:   transcriber,
		scorer:        scorer,
		settleTimeout: defaultSettleTimeout,
		log:           logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process runs one attempt over a record. Any error or panic after the
// attempt is opened leaves the record failed with a readable message.
func (s *Service) Process(ctx context.Context, videoID string) (out *Outcome, err error) {
	video, err := s.videos.BeginAttempt(ctx, videoID)
	if err != nil {
		return nil, claimError(err)
	}

	log := s.log.With(logrus.Fields{"video_id": video.ID, "attempt": video.Attempt, "mode": video.Mode})
	log.Info("processing started")
	start := time.Now()

	defer s.settle(video, log, &err)

	result, err := s.resolver.Resolve(ctx, video)
	if err != nil {
		return nil, err
	}

	if result.Skip {
		done, err := s.videos.FinishAttempt(ctx, video, models.VideoStatusCompleted, "")
		if err != nil {
			return nil, err
		}
		log.Info("record already transcribed, nothing to process")
		return &Outcome{Video: done}, nil
	}

	if s.transcriber.Async() {
		jobID, err := s.transcriber.Submit(ctx, video, result.URL)
		if err != nil {
			return nil, err
		}
		if err := s.videos.SetProviderJob(ctx, video, jobID); err != nil {
			if !errors.Is(err, videos.ErrStatusChanged) {
				return nil, err
			}
			// the webhook, or the sweeper, already ended this attempt
			log.WithField("job_id", jobID).Info("attempt ended before the job id was stored")
			current, getErr := s.videos.Get(ctx, video.ID)
			if getErr != nil {
				return nil, getErr
			}
			return &Outcome{Video: current, ProviderJobID: jobID}, nil
		}
		log.WithField("job_id", jobID).Info("waiting for transcription webhook")
		return &Outcome{Video: video, Pending: true, ProviderJobID: jobID}, nil
	}

	transcript, err := s.transcriber.TranscribeSync(ctx, video, result.URL)
	if err != nil {
		return nil, err
	}
	s.recordDuration(ctx, video, transcript, log)

	out, err = s.finish(ctx, video, transcript)
	if err != nil {
		return nil, err
	}

	log.WithField("duration_ms", time.Since(start).Milliseconds()).Info("processing completed")
	return out, nil
}

// VerifyCallbackKey checks the secret carried by a webhook call
func (s *Service) VerifyCallbackKey(key string) error {
	return s.transcriber.VerifyCallbackKey(key)
}

// HandleCallback authenticates a provider notification and applies it to
// the record named by videoID. A nil error with a nil Transcription in the
// outcome means the notification needed no work.
func (s *Service) HandleCallback(ctx context.Context, videoID, key string, payload transcription.CallbackPayload) (*Outcome, error) {
	if err := s.transcriber.VerifyCallbackKey(key); err != nil {
		return nil, err
	}

	video, err := s.videos.Get(ctx, videoID)
	if err != nil {
		if errors.Is(err, videos.ErrVideoNotFound) {
			return nil, apperrors.NotFound("video", videoID)
		}
		return nil, err
	}

	log := s.log.With(logrus.Fields{"video_id": video.ID, "attempt": video.Attempt, "job_id": payload.TranscriptID})

	transcript, err := s.callbackTranscript(ctx, video, payload, log)
	if err != nil {
		return nil, err
	}
	if transcript == nil {
		return &Outcome{Video: video}, nil
	}

	return s.CompleteFromWebhook(ctx, video, transcript)
}

// callbackTranscript runs the transcription side of a callback and fails the
// attempt when it cannot produce a transcript
func (s *Service) callbackTranscript(ctx context.Context, video *models.Video, payload transcription.CallbackPayload, log *logger.Logger) (transcript *models.Transcription, err error) {
	if video.Status == models.VideoStatusProcessing {
		defer s.settle(video, log, &err)
	}
	return s.transcriber.HandleCallback(ctx, video, payload)
}

// CompleteFromWebhook scores a transcript delivered by the async provider
// and completes the attempt it belongs to
func (s *Service) CompleteFromWebhook(ctx context.Context, video *models.Video, transcript *models.Transcription) (out *Outcome, err error) {
	log := s.log.With(logrus.Fields{"video_id": video.ID, "attempt": video.Attempt})
	defer s.settle(video, log, &err)

	s.recordDuration(ctx, video, transcript, log)

	out, err = s.finish(ctx, video, transcript)
	if err != nil {
		return nil, err
	}
	log.Info("processing completed from webhook")
	return out, nil
}

// Enqueue schedules a background run of the record
func (s *Service) Enqueue(ctx context.Context, videoID, requestedBy string) (*models.Job, error) {
	if s.queue == nil {
		return nil, apperrors.NotConfigured("background processing", "processing.workers")
	}

	video, err := s.videos.Get(ctx, videoID)
	if err != nil {
		return nil, claimError(err)
	}
	switch video.Status {
	case models.VideoStatusProcessing:
		return nil, claimError(videos.ErrAttemptInProgress)
	case models.VideoStatusCompleted:
		return nil, claimError(&models.TransitionError{From: video.Status, To: models.VideoStatusProcessing})
	}

	job, err := s.queue.EnqueueUniqueJob(ctx, models.JobTypeVideoProcessing,
		models.JobPayload{jobs.PayloadVideoID: video.ID}, jobs.PayloadVideoID,
		jobs.WithMaxRetries(s.maxRetries), jobs.WithCreatedBy(requestedBy))
	if err != nil {
		return nil, apperrors.DatabaseError("enqueue job", err)
	}

	s.log.With(logrus.Fields{"video_id": video.ID, "job_id": job.ID}).Info("processing queued")
	return job, nil
}

// finish scores the transcript and completes the attempt
func (s *Service) finish(ctx context.Context, video *models.Video, transcript *models.Transcription) (*Outcome, error) {
	analysis, err := s.scorer.Score(ctx, video.ID, transcript.Text)
	if err != nil {
		return nil, err
	}

	done, err := s.videos.FinishAttempt(ctx, video, models.VideoStatusCompleted, "")
	if err != nil {
		return nil, err
	}

	return &Outcome{Video: done, Transcription: transcript, Analysis: analysis}, nil
}

func (s *Service) recordDuration(ctx context.Context, video *models.Video, transcript *models.Transcription, log *logger.Logger) {
	if video.DurationSeconds != nil || transcript.DurationSeconds <= 0 {
		return
	}
	seconds := int(math.Round(transcript.DurationSeconds))
	if err := s.videos.SetDuration(ctx, video.ID, seconds); err != nil {
		log.WithError(err).Warn("could not store recording duration")
		return
	}
	video.DurationSeconds = &seconds
}

// settle runs deferred after a stage. It turns a panic into an error and
// writes failed for the attempt with a context that outlives the request.
func (s *Service) settle(claimed *models.Video, log *logger.Logger, errp *error) {
	if r := recover(); r != nil {
		log.WithField("panic", fmt.Sprint(r)).Error("pipeline panicked")
		*errp = apperrors.New(apperrors.ErrCodeInternal, panicMessage)
	}
	if *errp == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.settleTimeout)
	defer cancel()

	message := apperrors.UserMessage(*errp, defaultFailureMessage)
	if _, err := s.videos.FinishAttempt(ctx, claimed, models.VideoStatusFailed, message); err != nil {
		log.WithError(err).Warn("could not record failed attempt")
		return
	}
	log.WithError(*errp).WithField("error_code", apperrors.GetCode(*errp)).Warn("processing failed")
}

// claimError maps record lookup and claim errors to API errors
func claimError(err error) error {
	switch {
	case errors.Is(err, videos.ErrVideoNotFound):
		return apperrors.NotFound("video", nil)
	case errors.Is(err, videos.ErrAttemptInProgress):
		return apperrors.Conflict("video is already being processed")
	case errors.Is(err, videos.ErrInvalidTransition):
		return apperrors.Conflict("video has already been processed")
	}
	return err
}
