package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/callmetrics/callmetrics-api/api/types"
	"github.com/callmetrics/callmetrics-api/internal/database"
	"github.com/callmetrics/callmetrics-api/internal/logger"
	"github.com/callmetrics/callmetrics-api/internal/services/acquisition"
	"github.com/callmetrics/callmetrics-api/internal/services/auth"
	"github.com/callmetrics/callmetrics-api/internal/services/cache"
	"github.com/callmetrics/callmetrics-api/internal/services/jobs"
	"github.com/callmetrics/callmetrics-api/internal/services/pipeline"
	"github.com/callmetrics/callmetrics-api/internal/services/scoring"
	"github.com/callmetrics/callmetrics-api/internal/services/transcription"
	"github.com/callmetrics/callmetrics-api/internal/services/videos"
	"github.com/callmetrics/callmetrics-api/internal/services/workers"
	"github.com/callmetrics/callmetrics-api/internal/store/supabase"
	"github.com/callmetrics/callmetrics-api/pkg/config"
	"github.com/callmetrics/callmetrics-api/pkg/download"
	"github.com/sirupsen/logrus"
)

// app holds the wired services shared by serve, process and export
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *database.DB
	videos   videos.Service
	pipeline *pipeline.Service
	transcr  *transcription.Service
	scoring  *scoring.Service
	jobs     jobs.Service
	auth     *auth.Service
	urlCache *cache.MemoryCache
}

const signedURLCacheEntries = 1024

type repositories struct {
	videos         videos.Repository
	transcriptions transcription.Repository
	analyses       scoring.Repository
}

// buildApp connects storage and wires every stage from cfg
func buildApp(cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	repos, err := a.openStorage()
	if err != nil {
		return nil, err
	}

	a.videos = videos.NewService(repos.videos, videos.WithLogger(log))

	downloadOpts := download.DefaultOptions()
	if cfg.Transcription.MaxFileSize > 0 {
		downloadOpts.MaxSize = cfg.Transcription.MaxFileSize
	}
	if cfg.Transcription.Timeout > 0 {
		downloadOpts.Timeout = cfg.Transcription.Timeout
	}
	downloader := download.NewDownloader(downloadOpts)

	resolverOpts := []acquisition.Option{acquisition.WithLogger(log)}
	signer, err := acquisition.NewSupabaseSigner(cfg.Supabase)
	switch {
	case err != nil:
		a.close()
		return nil, err
	case signer == nil:
		log.Warn("storage signing disabled, direct uploads cannot be processed")
	default:
		a.urlCache = cache.NewMemoryCache(signedURLCacheEntries, time.Minute)
		resolverOpts = append(resolverOpts,
			acquisition.WithSigner(acquisition.NewCachingSigner(signer, a.urlCache, signer.Expiry())))
	}
	resolver := acquisition.NewResolver(downloader, resolverOpts...)

	a.transcr = transcription.NewService(repos.transcriptions, downloader, cfg.Transcription,
		transcription.WithSyncProvider(transcription.NewSyncClient(cfg.Transcription)),
		transcription.WithAsyncProvider(transcription.NewAsyncClient(cfg.Transcription)),
		transcription.WithPublicURL(cfg.Server.PublicURL),
		transcription.WithLogger(log),
	)

	a.scoring = scoring.NewService(repos.analyses, scoring.NewChatClient(cfg.AI), scoring.WithLogger(log))

	pipelineOpts := []pipeline.Option{pipeline.WithLogger(log)}
	if a.db != nil {
		a.jobs = jobs.NewService(jobs.NewRepository(a.db.DB), log)
		pipelineOpts = append(pipelineOpts, pipeline.WithEnqueuer(a.jobs, cfg.Processing.MaxRetries))
	}
	a.pipeline = pipeline.NewService(a.videos, resolver, a.transcr, a.scoring, pipelineOpts...)

	if svc, err := auth.NewService(cfg.Auth); err == nil {
		a.auth = svc
	} else {
		log.WithError(err).Warn("bearer token validation disabled, protected routes will answer 503")
	}

	return a, nil
}

// openStorage picks the gorm or the Supabase REST repositories
func (a *app) openStorage() (*repositories, error) {
	if a.cfg.Database.Driver == database.DriverSupabase {
		client, err := supabase.NewClient(a.cfg.Supabase)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to supabase: %w", err)
		}
		a.log.Info("using supabase REST storage, background jobs are disabled")
		return &repositories{
			videos:         supabase.NewVideoRepository(client),
			transcriptions: supabase.NewTranscriptionRepository(client),
			analyses:       supabase.NewAnalysisRepository(client),
		}, nil
	}

	db, err := database.Open(a.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	a.db = db
	a.log.WithField("driver", db.Driver).Info("database ready")

	return &repositories{
		videos:         videos.NewRepository(db.DB),
		transcriptions: transcription.NewRepository(db.DB),
		analyses:       scoring.NewRepository(db.DB),
	}, nil
}

// dependencies returns the handler dependencies
func (a *app) dependencies() *types.Dependencies {
	deps := &types.Dependencies{
		DB:             a.db,
		Videos:         a.videos,
		Pipeline:       a.pipeline,
		Transcriptions: a.transcr,
		Analyses:       a.scoring,
		Logger:         a.log,
		StorageDriver:  a.cfg.Database.Driver,
	}
	if a.auth != nil {
		deps.Auth = a.auth
	}
	if a.jobs != nil {
		deps.Jobs = a.jobs
	}
	return deps
}

// startBackground starts the worker pool and the stale sweeper. The returned
// function stops both.
func (a *app) startBackground(ctx context.Context) (func(), error) {
	var pool *workers.WorkerPool
	if a.jobs != nil && a.cfg.Processing.Workers > 0 {
		pool = workers.NewWorkerPool(a.jobs, a.cfg.Processing.Workers,
			a.cfg.Processing.PollInterval, a.cfg.Processing.JobTimeout, a.log)
		pool.RegisterProcessor(pipeline.NewProcessor(a.pipeline))
		if err := pool.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start workers: %w", err)
		}
	}

	var cleaner pipeline.JobCleaner
	if a.jobs != nil {
		cleaner = a.jobs
	}
	sweeper := pipeline.NewSweeper(a.videos, cleaner, a.cfg.Processing.JobRetentionDays,
		a.cfg.Processing.StaleAfter, a.cfg.Processing.SweepInterval, a.log)
	sweeper.Start(ctx)

	a.log.WithFields(logrus.Fields{
		"workers":     a.cfg.Processing.Workers,
		"stale_after": a.cfg.Processing.StaleAfter.String(),
	}).Info("background processing started")

	return func() {
		sweeper.Stop()
		if pool != nil {
			pool.Stop()
		}
	}, nil
}

// close releases the database connection and stops the URL cache
func (a *app) close() {
	if a.urlCache != nil {
		a.urlCache.Stop()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("failed to close database")
		}
	}
}
