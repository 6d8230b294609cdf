package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/callmetrics/callmetrics-api/internal/database"
	"github.com/callmetrics/callmetrics-api/internal/models"
	"github.com/callmetrics/callmetrics-api/internal/services/jobs"
	apperrors "github.com/callmetrics/callmetrics-api/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	err   error
	calls int
}

func (p *fakeProcessor) CanProcess(jobType models.JobType) bool {
	return jobType == models.JobTypeVideoProcessing
}

func (p *fakeProcessor) ProcessJob(ctx context.Context, job *models.Job) (models.JobResult, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	videoID, _ := job.GetPayloadString(jobs.PayloadVideoID)
	return models.JobResult{"video_id": videoID}, nil
}

func setupJobs(t *testing.T) jobs.Service {
	t.Helper()

	db, err := database.Initialize(":memory:", false)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	return jobs.NewService(jobs.NewRepository(db.DB), nil)
}

func TestWorker_ProcessNextJob(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus models.JobStatus
		wantErr    bool
	}{
		{name: "success", wantStatus: models.JobStatusCompleted},
		{name: "retryable failure", err: errors.New("connection reset"), wantStatus: models.JobStatusFailed, wantErr: true},
		{
			name:       "permanent failure",
			err:        apperrors.DataQualityError("transcript too short", nil),
			wantStatus: models.JobStatusPermanentlyFailed,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := setupJobs(t)
			ctx := context.Background()

			_, err := svc.EnqueueUniqueJob(ctx, models.JobTypeVideoProcessing, models.JobPayload{jobs.PayloadVideoID: "v-1"}, jobs.PayloadVideoID)
			require.NoError(t, err)

			processor := &fakeProcessor{err: tt.err}
			worker := NewWorker("worker-1", svc, time.Hour, time.Minute, nil)
			worker.RegisterProcessor(processor)

			err = worker.processNextJob(ctx)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, 1, processor.calls)

			stored, err := svc.GetJobForVideo(ctx, "v-1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, stored.Status)
			if tt.wantStatus == models.JobStatusCompleted {
				assert.Equal(t, "v-1", stored.Result["video_id"])
				assert.NotNil(t, stored.CompletedAt)
			}
		})
	}
}

func TestWorker_NoJobs(t *testing.T) {
	svc := setupJobs(t)
	worker := NewWorker("worker-1", svc, time.Hour, 0, nil)

	assert.Error(t, worker.processNextJob(context.Background()), "no processors registered")

	processor := &fakeProcessor{}
	worker.RegisterProcessor(processor)
	assert.NoError(t, worker.processNextJob(context.Background()))
	assert.Zero(t, processor.calls)
}

func TestWorkerPool_StartStop(t *testing.T) {
	svc := setupJobs(t)
	ctx := context.Background()

	_, err := svc.EnqueueUniqueJob(ctx, models.JobTypeVideoProcessing, models.JobPayload{jobs.PayloadVideoID: "v-1"}, jobs.PayloadVideoID)
	require.NoError(t, err)

	pool := NewWorkerPool(svc, 1, 10*time.Millisecond, time.Minute, nil)
	processor := &fakeProcessor{}
	pool.RegisterProcessor(processor)

	require.NoError(t, pool.Start(ctx))
	assert.Error(t, pool.Start(ctx))

	assert.Eventually(t, func() bool {
		stored, err := svc.GetJobForVideo(ctx, "v-1")
		return err == nil && stored.Status == models.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	pool.Stop()
	pool.Stop()
}
