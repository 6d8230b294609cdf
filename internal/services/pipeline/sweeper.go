package pipeline

import (
	"context"
	"time"

	"github.com/callmetrics/callmetrics-api/internal/logger"
	"github.com/sirupsen/logrus"
)

// StaleFailer fails records stuck in processing
type StaleFailer interface {
	FailStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// JobCleaner removes finished jobs
type JobCleaner interface {
	CleanupOldJobs(ctx context.Context, retentionDays int) (int64, error)
}

// Sweeper periodically fails records whose attempt outlived staleAfter, so a
// crashed process cannot leave them processing, and prunes finished jobs
type Sweeper struct {
	videos        StaleFailer
	jobs          JobCleaner
	retentionDays int
	staleAfter    time.Duration
	interval      time.Duration
	log           *logger.Logger
	cancel        context.CancelFunc
	done          chan struct{}
}

// NewSweeper creates a sweeper. jobs may be nil.
func NewSweeper(videos StaleFailer, jobs JobCleaner, retentionDays int, staleAfter, interval time.Duration, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.Discard()
	}
	return &Sweeper{
		videos:        videos,
		jobs:          jobs,
		retentionDays: retentionDays,
		staleAfter:    staleAfter,
		interval:      interval,
		log:           log.With(logrus.Fields{"component": "sweeper"}),
	}
}

// Start runs one sweep immediately and then one per interval until Stop
func (s *Sweeper) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.Sweep(ctx)

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.Sweep(ctx)
			case <-ctx.Done():
				s.log.Info("sweeper stopped")
				return
			}
		}
	}()

	s.log.WithFields(logrus.Fields{"interval": s.interval, "stale_after": s.staleAfter}).Info("sweeper started")
}

// Stop stops the sweeper and waits for the loop to exit
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
	}
}

// Sweep runs a single pass
func (s *Sweeper) Sweep(ctx context.Context) {
	failed, err := s.videos.FailStale(ctx, s.staleAfter)
	if err != nil {
		s.log.WithError(err).Error("stale sweep failed")
	} else if failed > 0 {
		s.log.WithField("failed", failed).Warn("stale records failed")
	}

	if s.jobs == nil || s.retentionDays <= 0 {
		return
	}
	if _, err := s.jobs.CleanupOldJobs(ctx, s.retentionDays); err != nil {
		s.log.WithError(err).Error("job cleanup failed")
	}
}
