package videos

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/callmetrics/callmetrics-api/internal/database"
	"github.com/callmetrics/callmetrics-api/internal/models"
	apperrors "github.com/callmetrics/callmetrics-api/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestService(t *testing.T, opts ...ServiceOption) (Service, *database.DB) {
	t.Helper()

	db, err := database.Initialize(":memory:", false)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	return NewService(NewRepository(db.DB), opts...), db
}

func TestService_Create(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		mode     models.AcquisitionMode
		locator  string
		wantCode apperrors.ErrorCode
	}{
		{name: "direct upload", mode: models.ModeDirectUpload, locator: "user-1/call.mp3"},
		{name: "remote url", mode: models.ModeRemoteURL, locator: "https://example.com/call.mp3"},
		{name: "legacy drive", mode: models.ModeCloudDriveLegacy, locator: "https://drive.google.com/file/d/abc/view"},
		{name: "already transcribed", mode: models.ModeAlreadyTranscribed},
		{name: "unknown mode", mode: "ftp", locator: "x", wantCode: apperrors.ErrCodeValidation},
		{name: "upload without path", mode: models.ModeDirectUpload, wantCode: apperrors.ErrCodeMissingField},
		{name: "remote without url", mode: models.ModeRemoteURL, locator: "  ", wantCode: apperrors.ErrCodeMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			video, err := svc.Create(ctx, "user-1", tt.mode, tt.locator, "Discovery call", WithMimeType("audio/mpeg"))
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, apperrors.GetCode(err))
				return
			}

			require.NoError(t, err)
			assert.NotEmpty(t, video.ID)
			assert.Equal(t, models.VideoStatusPending, video.Status)
			assert.Equal(t, "audio/mpeg", video.MimeType)
			assert.Equal(t, tt.locator, video.Locator())

			stored, err := svc.Get(ctx, video.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.mode, stored.Mode)
		})
	}
}

func TestService_SetStatus(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	video, err := svc.Create(ctx, "user-1", models.ModeRemoteURL, "https://example.com/a.mp3", "")
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, video.ID, models.VideoStatusCompleted, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	processing, err := svc.SetStatus(ctx, video.ID, models.VideoStatusProcessing, "")
	require.NoError(t, err)
	assert.Equal(t, 1, processing.Attempt)
	assert.NotNil(t, processing.ProcessingStartedAt)

	failed, err := svc.SetStatus(ctx, video.ID, models.VideoStatusFailed, "transcription failed")
	require.NoError(t, err)
	require.NotNil(t, failed.ErrorMessage)
	assert.Equal(t, "transcription failed", *failed.ErrorMessage)

	stored, err := svc.Get(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VideoStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "transcription failed", *stored.ErrorMessage)

	pending, err := svc.Resubmit(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VideoStatusPending, pending.Status)

	stored, err = svc.Get(ctx, video.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ErrorMessage)
}

func TestService_SetStatus_NotFound(t *testing.T) {
	svc, _ := setupTestService(t)

	_, err := svc.SetStatus(context.Background(), "missing", models.VideoStatusProcessing, "")
	assert.ErrorIs(t, err, ErrVideoNotFound)
}

func TestService_BeginAttempt(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	video, err := svc.Create(ctx, "user-1", models.ModeRemoteURL, "https://example.com/a.mp3", "")
	require.NoError(t, err)

	claimed, err := svc.BeginAttempt(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VideoStatusProcessing, claimed.Status)
	assert.Equal(t, 1, claimed.Attempt)

	_, err = svc.BeginAttempt(ctx, video.ID)
	assert.ErrorIs(t, err, ErrAttemptInProgress)

	_, err = svc.SetStatus(ctx, video.ID, models.VideoStatusFailed, "boom")
	require.NoError(t, err)

	again, err := svc.BeginAttempt(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Attempt)
	assert.Nil(t, again.ErrorMessage)

	_, err = svc.SetStatus(ctx, video.ID, models.VideoStatusCompleted, "")
	require.NoError(t, err)

	_, err = svc.BeginAttempt(ctx, video.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestService_BeginAttempt_Concurrent(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	video, err := svc.Create(ctx, "user-1", models.ModeRemoteURL, "https://example.com/a.mp3", "")
	require.NoError(t, err)

	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.BeginAttempt(ctx, video.ID); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrAttemptInProgress)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	stored, err := svc.Get(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Attempt)
}

func TestService_FailStale(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now.Add(-time.Hour)
	svc, _ := setupTestService(t, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	old, err := svc.Create(ctx, "user-1", models.ModeRemoteURL, "https://example.com/old.mp3", "")
	require.NoError(t, err)
	_, err = svc.BeginAttempt(ctx, old.ID)
	require.NoError(t, err)

	clock = now.Add(-time.Minute)
	fresh, err := svc.Create(ctx, "user-1", models.ModeRemoteURL, "https://example.com/new.mp3", "")
	require.NoError(t, err)
	_, err = svc.BeginAttempt(ctx, fresh.ID)
	require.NoError(t, err)

	clock = now
	count, err := svc.FailStale(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stored, err := svc.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VideoStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "timed out")

	stored, err = svc.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VideoStatusProcessing, stored.Status)
}

func TestService_ListAndDelete(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, "owner-a", models.ModeAlreadyTranscribed, "", "call")
		require.NoError(t, err)
	}
	other, err := svc.Create(ctx, "owner-b", models.ModeAlreadyTranscribed, "", "call")
	require.NoError(t, err)

	list, total, err := svc.ListByOwner(ctx, "owner-a", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, list, 2)

	require.NoError(t, svc.Delete(ctx, other.ID))
	_, err = svc.Get(ctx, other.ID)
	assert.ErrorIs(t, err, ErrVideoNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, other.ID), ErrVideoNotFound)

	busy, err := svc.Create(ctx, "owner-a", models.ModeRemoteURL, "https://example.com/a.mp3", "")
	require.NoError(t, err)
	_, err = svc.BeginAttempt(ctx, busy.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Delete(ctx, busy.ID), ErrAttemptInProgress)
}

func TestService_SetDuration(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	video, err := svc.Create(ctx, "user-1", models.ModeAlreadyTranscribed, "", "")
	require.NoError(t, err)

	require.NoError(t, svc.SetDuration(ctx, video.ID, 312))
	stored, err := svc.Get(ctx, video.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.DurationSeconds)
	assert.Equal(t, 312, *stored.DurationSeconds)

	assert.Error(t, svc.SetDuration(ctx, video.ID, -1))
	assert.ErrorIs(t, svc.SetDuration(ctx, "missing", 10), ErrVideoNotFound)
}

func TestService_FinishAttempt(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	video, err := svc.Create(ctx, "user-1", models.ModeRemoteURL, "https://example.com/call.mp3", "")
	require.NoError(t, err)

	_, err = svc.FinishAttempt(ctx, video, models.VideoStatusCompleted, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	first, err := svc.BeginAttempt(ctx, video.ID)
	require.NoError(t, err)

	// The sweeper fails the first attempt and the user starts a second one
	_, err = svc.SetStatus(ctx, video.ID, models.VideoStatusFailed, "processing timed out, please try again")
	require.NoError(t, err)
	second, err := svc.BeginAttempt(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Attempt)

	_, err = svc.FinishAttempt(ctx, first, models.VideoStatusFailed, "late failure")
	assert.ErrorIs(t, err, ErrStatusChanged)
	assert.Equal(t, models.VideoStatusProcessing, first.Status)

	_, err = svc.FinishAttempt(ctx, second, models.VideoStatusPending, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	done, err := svc.FinishAttempt(ctx, second, models.VideoStatusCompleted, "")
	require.NoError(t, err)
	assert.Equal(t, models.VideoStatusCompleted, done.Status)

	stored, err := svc.Get(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VideoStatusCompleted, stored.Status)
	assert.Nil(t, stored.ErrorMessage)
}

func TestService_SetProviderJob(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	video, err := svc.Create(ctx, "user-1", models.ModeRemoteURL, "https://example.com/call.mp3", "")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.SetProviderJob(ctx, video, "tr-0"), ErrStatusChanged)

	first, err := svc.BeginAttempt(ctx, video.ID)
	require.NoError(t, err)
	require.NoError(t, svc.SetProviderJob(ctx, first, "tr-1"))
	require.NotNil(t, first.ProviderJobID)
	assert.Equal(t, "tr-1", *first.ProviderJobID)

	stored, err := svc.Get(ctx, video.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ProviderJobID)
	assert.Equal(t, "tr-1", *stored.ProviderJobID)

	_, err = svc.SetStatus(ctx, video.ID, models.VideoStatusFailed, "processing timed out, please try again")
	require.NoError(t, err)
	second, err := svc.BeginAttempt(ctx, video.ID)
	require.NoError(t, err)
	assert.Nil(t, second.ProviderJobID)

	stored, err = svc.Get(ctx, video.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ProviderJobID)

	// The first attempt can no longer claim a job
	assert.ErrorIs(t, svc.SetProviderJob(ctx, first, "tr-late"), ErrStatusChanged)
	assert.Equal(t, apperrors.ErrCodeMissingField, apperrors.GetCode(svc.SetProviderJob(ctx, second, "")))
}

type staleRepo struct {
	Repository
	stale    []models.Video
	updateOK bool
	updates  int
}

func (r *staleRepo) ListStale(ctx context.Context, startedBefore time.Time, limit int) ([]models.Video, error) {
	return r.stale, nil
}

func (r *staleRepo) UpdateIf(ctx context.Context, id string, status models.VideoStatus, attempt int, updates map[string]interface{}) (bool, error) {
	r.updates++
	return r.updateOK, nil
}

func TestService_FailStale_Transitions(t *testing.T) {
	t.Run("terminal record is not rewritten", func(t *testing.T) {
		repo := &staleRepo{stale: []models.Video{{ID: "v-1", Status: models.VideoStatusCompleted, Attempt: 1}}, updateOK: true}
		svc := NewService(repo)

		count, err := svc.FailStale(context.Background(), time.Minute)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Zero(t, count)
		assert.Zero(t, repo.updates)
	})

	t.Run("record finished concurrently", func(t *testing.T) {
		repo := &staleRepo{stale: []models.Video{{ID: "v-1", Status: models.VideoStatusProcessing, Attempt: 1}}}
		svc := NewService(repo)

		count, err := svc.FailStale(context.Background(), time.Minute)
		require.NoError(t, err)
		assert.Zero(t, count)
		assert.Equal(t, 1, repo.updates)
	})
}
