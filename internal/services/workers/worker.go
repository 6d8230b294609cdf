package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/callmetrics/callmetrics-api/internal/logger"
	"github.com/callmetrics/callmetrics-api/internal/models"
	"github.com/callmetrics/callmetrics-api/internal/services/jobs"
	"github.com/sirupsen/logrus"
)

// JobProcessor defines the interface for processing different job types
type JobProcessor interface {
	ProcessJob(ctx context.Context, job *models.Job) (models.JobResult, error)
	CanProcess(jobType models.JobType) bool
}

// Worker represents a background worker that processes jobs
type Worker struct {
	id           string
	jobService   jobs.Service
	processors   []JobProcessor
	stopChan     chan struct{}
	wg           sync.WaitGroup
	pollInterval time.Duration
	jobTimeout   time.Duration
	log          *logger.Logger
}

// NewWorker creates a new worker instance
func NewWorker(id string, jobService jobs.Service, pollInterval, jobTimeout time.Duration, log *logger.Logger) *Worker {
	if log == nil {
		log = logger.Discard()
	}
	return &Worker{
		id:           id,
		jobService:   jobService,
		processors:   make([]JobProcessor, 0),
		stopChan:     make(chan struct{}),
		pollInterval: pollInterval,
		jobTimeout:   jobTimeout,
		log:          log.With(logrus.Fields{"worker_id": id}),
	}
}

// RegisterProcessor registers a job processor
func (w *Worker) RegisterProcessor(processor JobProcessor) {
	w.processors = append(w.processors, processor)
}

// Start starts the worker in a goroutine
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop stops the worker and waits for the current job
func (w *Worker) Stop() {
	close(w.stopChan)
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	w.log.Info("worker starting")
	defer w.log.Info("worker stopped")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			if err := w.processNextJob(ctx); err != nil {
				w.log.WithError(err).Warn("job processing error")
			}
		}
	}
}

func (w *Worker) supportedTypes() []models.JobType {
	var supported []models.JobType
	for _, jobType := range models.JobTypes {
		for _, p := range w.processors {
			if p.CanProcess(jobType) {
				supported = append(supported, jobType)
				break
			}
		}
	}
	return supported
}

// processNextJob claims and runs at most one job
func (w *Worker) processNextJob(ctx context.Context) error {
	supportedTypes := w.supportedTypes()
	if len(supportedTypes) == 0 {
		return fmt.Errorf("no job processors registered")
	}

	job, err := w.jobService.ClaimNextJob(ctx, w.id, supportedTypes)
	if err != nil {
		if errors.Is(err, jobs.ErrNoJobsAvailable) {
			return nil
		}
		return err
	}

	log := w.log.With(logrus.Fields{"job_id": job.ID, "type": job.Type})
	log.Info("job claimed")

	var processor JobProcessor
	for _, p := range w.processors {
		if p.CanProcess(job.Type) {
			processor = p
			break
		}
	}
	if processor == nil {
		return fmt.Errorf("no processor found for job type %s", job.Type)
	}

	jobCtx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	result, err := processor.ProcessJob(jobCtx, job)

	// Book keeping must land even when the worker is shutting down
	bookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err != nil {
		if ctx.Err() != nil {
			if releaseErr := w.jobService.ReleaseJob(bookCtx, job.ID); releaseErr != nil {
				log.WithError(releaseErr).Warn("failed to release job on shutdown")
			}
			return nil
		}
		if failErr := w.jobService.FailJob(bookCtx, job.ID, err); failErr != nil {
			log.WithError(failErr).Error("failed to mark job as failed")
		}
		return fmt.Errorf("job processing failed: %w", err)
	}

	if err := w.jobService.CompleteJob(bookCtx, job.ID, result); err != nil {
		return fmt.Errorf("completing job %d: %w", job.ID, err)
	}
	log.Info("job completed")
	return nil
}

// WorkerPool manages multiple workers
type WorkerPool struct {
	workers    []*Worker
	jobService jobs.Service
	log        *logger.Logger
	mu         sync.RWMutex
	started    bool
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(jobService jobs.Service, workerCount int, pollInterval, jobTimeout time.Duration, log *logger.Logger) *WorkerPool {
	if log == nil {
		log = logger.Discard()
	}
	pool := &WorkerPool{
		jobService: jobService,
		workers:    make([]*Worker, workerCount),
		log:        log,
	}

	for i := 0; i < workerCount; i++ {
		workerID := fmt.Sprintf("worker-%d", i+1)
		pool.workers[i] = NewWorker(workerID, jobService, pollInterval, jobTimeout, log)
	}

	return pool
}

// RegisterProcessor registers a processor with all workers
func (p *WorkerPool) RegisterProcessor(processor JobProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, worker := range p.workers {
		worker.RegisterProcessor(processor)
	}
}

// Start starts all workers
func (p *WorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("worker pool already started")
	}

	p.log.WithField("workers", len(p.workers)).Info("starting worker pool")

	for _, worker := range p.workers {
		worker.Start(ctx)
	}

	p.started = true
	return nil
}

// Stop stops all workers gracefully
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.log.Info("stopping worker pool")

	for _, worker := range p.workers {
		worker.Stop()
	}

	p.started = false
}
