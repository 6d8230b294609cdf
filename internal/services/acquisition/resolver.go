package acquisition

import (
	"context"
	"fmt"

	"github.com/callmetrics/callmetrics-api/internal/logger"
	"github.com/callmetrics/callmetrics-api/internal/models"
	"github.com/callmetrics/callmetrics-api/pkg/download"
	apperrors "github.com/callmetrics/callmetrics-api/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	msgCheckSharing   = "check link sharing permissions"
	msgInvalidDrive   = "invalid Google Drive link"
	msgMissingStorage = "recording storage path is missing"
	msgMissingURL     = "recording link is missing"
)

// Prober inspects a URL without downloading it
type Prober interface {
	Probe(ctx context.Context, url string) (*download.ProbeResult, error)
}

// Result is where the audio of a record can be fetched from. Skip is set
// for records that already carry a transcript.
type Result struct {
	URL           string
	ContentType   string
	ContentLength int64
	Skip          bool
}

// Option configures a Resolver
type Option func(*Resolver)

// WithSigner sets the storage signer used for direct uploads
func WithSigner(signer Signer) Option {
	return func(r *Resolver) { r.signer = signer }
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

// Resolver turns an ingestion record into a fetchable audio URL
type Resolver struct {
	prober Prober
	signer Signer
	log    *logger.Logger
}

// NewResolver creates a resolver that validates remote links with prober
func NewResolver(prober Prober, opts ...Option) *Resolver {
	r := &Resolver{
		prober: prober,
		log:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the audio location for video. Every error is an AppError
// whose message can be shown to the record owner.
func (r *Resolver) Resolve(ctx context.Context, video *models.Video) (*Result, error) {
	log := r.log.With(logrus.Fields{"video_id": video.ID, "mode": video.Mode, "stage": "acquisition"})

	switch video.Mode {
	case models.ModeAlreadyTranscribed:
		log.Debug("record already transcribed, skipping acquisition")
		return &Result{Skip: true}, nil

	case models.ModeDirectUpload:
		return r.resolveUpload(ctx, video)

	case models.ModeRemoteURL:
		if video.SourceURL == nil || *video.SourceURL == "" {
			return nil, apperrors.AcquisitionError(msgMissingURL, nil)
		}
		target := normalizeRemoteURL(*video.SourceURL)
		log.WithField("url", target).Debug("probing remote recording")
		return r.probe(ctx, target, log)

	case models.ModeCloudDriveLegacy:
		if video.SourceURL == nil || *video.SourceURL == "" {
			return nil, apperrors.AcquisitionError(msgMissingURL, nil)
		}
		target, ok := RewriteDriveURL(*video.SourceURL)
		if !ok {
			return nil, apperrors.AcquisitionError(msgInvalidDrive, nil)
		}
		return r.probe(ctx, target, log)
	}

	return nil, apperrors.AcquisitionError(fmt.Sprintf("unsupported acquisition mode %q", video.Mode), nil)
}

func (r *Resolver) resolveUpload(ctx context.Context, video *models.Video) (*Result, error) {
	if video.StoragePath == nil || *video.StoragePath == "" {
		return nil, apperrors.AcquisitionError(msgMissingStorage, nil)
	}
	if r.signer == nil {
		return nil, apperrors.NotConfigured("storage", "supabase.service_key")
	}

	signed, err := r.signer.SignedURL(ctx, *video.StoragePath)
	if err != nil {
		return nil, apperrors.AcquisitionError("could not access the uploaded recording, please upload it again", err)
	}

	result := &Result{URL: signed, ContentType: video.MimeType, ContentLength: -1}
	if video.FileSize != nil {
		result.ContentLength = *video.FileSize
	}
	return result, nil
}

// probe checks that target answers with media rather than an error or a
// sign-in page. Nothing is downloaded. Other non-media types are logged
// and let through.
func (r *Resolver) probe(ctx context.Context, target string, log *logger.Logger) (*Result, error) {
	res, err := r.prober.Probe(ctx, target)
	if err != nil {
		return nil, apperrors.AcquisitionError("could not reach the recording link, "+msgCheckSharing, err)
	}

	if !res.OK() {
		return nil, apperrors.AcquisitionError(
			fmt.Sprintf("the recording link returned HTTP %d, %s", res.StatusCode, msgCheckSharing), nil).
			WithDetail("status_code", res.StatusCode)
	}

	if res.IsHTML() {
		return nil, apperrors.AcquisitionError(
			"the recording link returned a web page instead of a media file, "+msgCheckSharing, nil)
	}

	if res.ContentType != "" && !download.IsMediaContentType(res.ContentType) {
		log.WithField("content_type", res.ContentType).Warn("recording link did not answer with a media type")
	}

	return &Result{
		URL:           target,
		ContentType:   res.ContentType,
		ContentLength: res.ContentLength,
	}, nil
}
