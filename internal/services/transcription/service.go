package transcription

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/callmetrics/callmetrics-api/internal/logger"
	"github.com/callmetrics/callmetrics-api/internal/models"
	"github.com/callmetrics/callmetrics-api/pkg/config"
	"github.com/callmetrics/callmetrics-api/pkg/download"
	apperrors "github.com/callmetrics/callmetrics-api/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const (
	ModeSync  = "sync"
	ModeAsync = "async"

	WebhookPath = "/api/v1/webhooks/transcription"
)

// Option configures the Service
type Option func(*Service)

// WithSyncProvider sets the chunked synchronous provider
func WithSyncProvider(p ChunkTranscriber) Option {
	return func(s *Service) { s.sync = p }
}

// WithAsyncProvider sets the webhook driven provider
func WithAsyncProvider(p AsyncProvider) Option {
	return func(s *Service) { s.async = p }
}

// WithPublicURL sets the externally reachable base URL used for webhooks
func WithPublicURL(u string) Option {
	return func(s *Service) { s.publicURL = strings.TrimRight(u, "/") }
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

// Service runs the transcription stage in either mode
type Service struct {
	repo      Repository
	fetcher   MediaFetcher
	sync      ChunkTranscriber
	async     AsyncProvider
	cfg       config.TranscriptionConfig
	publicURL string
	log       *logger.Logger
}

// NewService creates the transcription stage
func NewService(repo Repository, fetcher MediaFetcher, cfg config.TranscriptionConfig, opts ...Option) *Service {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 5 * 1024 * 1024
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 200 * 1024 * 1024
	}
	if cfg.MinTranscriptChars <= 0 {
		cfg.MinTranscriptChars = 50
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeSync
	}

	s := &Service{
		repo:    repo,
		fetcher: fetcher,
		cfg:     cfg,
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Async reports whether the stage runs through the webhook provider
func (s *Service) Async() bool {
	return s.cfg.Mode == ModeAsync
}

func (s *Service) tooLarge() error {
	return apperrors.AcquisitionError(
		fmt.Sprintf("recording is larger than %d MB, please compress it and try again", s.cfg.MaxFileSize/(1024*1024)), nil)
}

// TranscribeSync downloads the audio, transcribes it window by window and
// stores one transcript. Nothing is stored if any window fails.
func (s *Service) TranscribeSync(ctx context.Context, video *models.Video, audioURL string) (*models.Transcription, error) {
	if s.sync == nil || !s.sync.Configured() {
		return nil, apperrors.NotConfigured("transcription", "transcription.api_key")
	}

	log := s.log.With(logrus.Fields{"video_id": video.ID, "stage": "transcription", "attempt": video.Attempt})

	probe, err := s.fetcher.Probe(ctx, audioURL)
	if err != nil {
		return nil, apperrors.AcquisitionError("could not reach the recording, please check the link", err)
	}
	if !probe.OK() {
		return nil, apperrors.AcquisitionError(
			fmt.Sprintf("the recording could not be accessed (HTTP %d)", probe.StatusCode), nil)
	}
	if probe.ContentLength > s.cfg.MaxFileSize {
		return nil, s.tooLarge()
	}

	media, err := s.fetcher.Fetch(ctx, audioURL)
	if err != nil {
		if errors.Is(err, download.ErrTooLarge) {
			return nil, s.tooLarge()
		}
		return nil, apperrors.AcquisitionError("could not download the recording, please try again", err)
	}

	contentType := media.ContentType
	if contentType == "" {
		contentType = probe.ContentType
	}
	if contentType == "" {
		contentType = video.MimeType
	}
	ext := audioExtension(contentType, audioURL)
	total := download.ChunkCount(int64(len(media.Data)), int(s.cfg.ChunkSize))

	log.WithFields(logrus.Fields{"bytes": len(media.Data), "chunks": total}).Info("transcribing recording")
	start := time.Now()

	var (
		texts    []string
		duration float64
		language string
		index    int
	)
	for chunk, err := range download.Chunks(bytes.NewReader(media.Data), int(s.cfg.ChunkSize)) {
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to read recording")
		}

		filename := fmt.Sprintf("chunk-%03d%s", index, ext)
		result, err := s.sync.TranscribeChunk(ctx, chunk, filename)
		if err != nil {
			log.WithError(err).WithField("chunk", index).Warn("chunk transcription failed")
			return nil, err
		}

		if text := strings.TrimSpace(result.Text); text != "" {
			texts = append(texts, text)
		}
		duration += result.Duration
		if language == "" {
			language = result.Language
		}
		index++
	}

	text := strings.Join(texts, " ")
	if text == "" {
		return nil, apperrors.DataQualityError("transcription returned no text, the recording may be silent", nil)
	}
	if language == "" {
		language = s.cfg.Language
	}

	transcription := &models.Transcription{
		VideoID:         video.ID,
		Text:            text,
		Provider:        s.sync.Name(),
		Language:        language,
		DurationSeconds: duration,
	}
	if err := s.repo.Create(ctx, transcription); err != nil {
		return nil, apperrors.DatabaseError("save transcription", err)
	}

	log.WithFields(logrus.Fields{
		"chunks":      index,
		"words":       transcription.WordCount,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("transcription stored")
	return transcription, nil
}

// WebhookURL is the callback address handed to the async provider for one
// attempt of a record
func (s *Service) WebhookURL(videoID string, attempt int) (string, error) {
	if s.publicURL == "" {
		return "", apperrors.NotConfigured("transcription webhook", "server.public_url")
	}
	if s.cfg.Async.WebhookSecret == "" {
		return "", apperrors.NotConfigured("transcription webhook", "transcription.async.webhook_secret")
	}

	q := url.Values{}
	q.Set("videoId", videoID)
	q.Set("attempt", strconv.Itoa(attempt))
	q.Set("key", s.cfg.Async.WebhookSecret)
	return s.publicURL + WebhookPath + "?" + q.Encode(), nil
}

// Submit starts an async transcript job. The record stays processing until
// the provider calls back.
func (s *Service) Submit(ctx context.Context, video *models.Video, audioURL string) (string, error) {
	if s.async == nil || !s.async.Configured() {
		return "", apperrors.NotConfigured("transcription", "transcription.async.api_key")
	}

	webhookURL, err := s.WebhookURL(video.ID, video.Attempt)
	if err != nil {
		return "", err
	}

	jobID, err := s.async.Submit(ctx, audioURL, webhookURL)
	if err != nil {
		return "", err
	}

	s.log.With(logrus.Fields{"video_id": video.ID, "stage": "transcription", "job_id": jobID}).
		Info("transcript job submitted")
	return jobID, nil
}

// VerifyCallbackKey compares key with the webhook secret in constant time
func (s *Service) VerifyCallbackKey(key string) error {
	secret := s.cfg.Async.WebhookSecret
	if secret == "" || key == "" {
		return apperrors.Unauthorized("invalid webhook key")
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(secret)) != 1 {
		return apperrors.Unauthorized("invalid webhook key")
	}
	return nil
}

// HandleCallback processes a provider notification for video, whose key has
// already been verified. It returns the stored transcript, or nil when the
// notification needs no work: an intermediate status, a record no longer
// processing, a job of an earlier attempt, or a job that was already stored.
func (s *Service) HandleCallback(ctx context.Context, video *models.Video, payload CallbackPayload) (*models.Transcription, error) {
	log := s.log.With(logrus.Fields{
		"video_id": video.ID,
		"stage":    "transcription",
		"job_id":   payload.TranscriptID,
		"status":   payload.Status,
	})

	if payload.Status != AsyncStatusCompleted && payload.Status != AsyncStatusError {
		log.Debug("ignoring intermediate transcript status")
		return nil, nil
	}

	if video.Status != models.VideoStatusProcessing {
		log.WithField("video_status", video.Status).Info("record is not processing, ignoring callback")
		return nil, nil
	}

	if !CurrentJob(video, payload) {
		log.WithFields(logrus.Fields{"attempt": video.Attempt, "callback_attempt": payload.Attempt}).
			Info("callback belongs to an earlier attempt, ignoring")
		return nil, nil
	}

	if payload.Status == AsyncStatusError {
		return nil, apperrors.ProviderError("transcription", payload.Error, nil)
	}

	exists, err := s.repo.ExistsByProviderJobID(ctx, payload.TranscriptID)
	if err != nil {
		return nil, apperrors.DatabaseError("check transcription", err)
	}
	if exists {
		log.Info("transcript already stored, ignoring duplicate callback")
		return nil, nil
	}

	if s.async == nil || !s.async.Configured() {
		return nil, apperrors.NotConfigured("transcription", "transcription.async.api_key")
	}

	job, err := s.async.Get(ctx, payload.TranscriptID)
	if err != nil {
		return nil, err
	}
	if job.Status == AsyncStatusError {
		return nil, apperrors.ProviderError("transcription", job.Error, nil)
	}

	text := strings.TrimSpace(job.Text)
	if len([]rune(text)) < s.cfg.MinTranscriptChars {
		return nil, apperrors.DataQualityError("transcript too short", nil).
			WithDetail("chars", len([]rune(text)))
	}

	jobID := payload.TranscriptID
	transcription := &models.Transcription{
		VideoID:         video.ID,
		Text:            text,
		Provider:        s.async.Name(),
		Language:        job.Language,
		DurationSeconds: job.Duration,
		ProviderJobID:   &jobID,
	}
	if len(job.Utterances) > 0 {
		if speakers, err := json.Marshal(job.Utterances); err == nil {
			transcription.Speakers = datatypes.JSON(speakers)
		}
	}

	if err := s.repo.Create(ctx, transcription); err != nil {
		// A concurrent delivery of the same job may have won the unique index
		if exists, checkErr := s.repo.ExistsByProviderJobID(ctx, jobID); checkErr == nil && exists {
			log.Info("transcript stored by a concurrent callback")
			return nil, nil
		}
		return nil, apperrors.DatabaseError("save transcription", err)
	}

	log.WithField("words", transcription.WordCount).Info("transcription stored")
	return transcription, nil
}

// CurrentJob reports whether a notification belongs to the attempt the
// record is on. The stored provider job decides once it is known; before
// that the attempt carried in the webhook URL does.
func CurrentJob(video *models.Video, payload CallbackPayload) bool {
	if video.ProviderJobID != nil && *video.ProviderJobID != "" {
		return *video.ProviderJobID == payload.TranscriptID
	}
	return payload.Attempt == video.Attempt
}

// List returns every transcript of a record, newest first
func (s *Service) List(ctx context.Context, videoID string) ([]models.Transcription, error) {
	return s.repo.ListByVideo(ctx, videoID)
}

// audioExtension picks a filename extension the provider can use to detect
// the container format
func audioExtension(contentType, rawURL string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case "audio/mpeg", "audio/mp3":
			return ".mp3"
		case "audio/mp4", "audio/x-m4a", "audio/m4a":
			return ".m4a"
		case "audio/wav", "audio/x-wav", "audio/wave":
			return ".wav"
		case "audio/ogg":
			return ".ogg"
		case "audio/webm", "video/webm":
			return ".webm"
		case "video/mp4":
			return ".mp4"
		case "audio/flac":
			return ".flac"
		}
	}

	if u, err := url.Parse(rawURL); err == nil {
		switch ext := strings.ToLower(path.Ext(u.Path)); ext {
		case ".mp3", ".m4a", ".wav", ".ogg", ".webm", ".mp4", ".flac", ".mpeg", ".mpga":
			return ext
		}
	}
	return ".mp3"
}
