package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/callmetrics/callmetrics-api/internal/database"
	"github.com/callmetrics/callmetrics-api/internal/models"
	"github.com/callmetrics/callmetrics-api/pkg/config"
	"github.com/callmetrics/callmetrics-api/pkg/download"
	apperrors "github.com/callmetrics/callmetrics-api/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const longTranscript = "Bom dia, aqui é o Carlos da Acme. Queria entender como vocês fazem a gestão das vendas hoje."

func setupRepo(t *testing.T) (Repository, *database.DB) {
	t.Helper()

	db, err := database.Initialize(":memory:", false)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	return NewRepository(db.DB), db
}

func countTranscriptions(t *testing.T, db *database.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.Transcription{}).Count(&count).Error)
	return count
}

func newMediaServer(t *testing.T, data []byte, announcedSize int64) (*httptest.Server, *int32) {
	t.Helper()

	var gets int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Length", strconv.FormatInt(announcedSize, 10))
		if r.Method == http.MethodGet {
			atomic.AddInt32(&gets, 1)
			w.Write(data)
		}
	}))
	t.Cleanup(server.Close)
	return server, &gets
}

// newWhisperServer answers each chunk with "part<n>" and a 1.5s duration.
// failOn makes the n-th call (1 based) answer with status.
func newWhisperServer(t *testing.T, failOn int, status int) (*httptest.Server, *int32) {
	t.Helper()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&calls, 1))

		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if !assert.NoError(t, r.ParseMultipartForm(32<<20)) {
			return
		}
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "pt", r.FormValue("language"))
		assert.Equal(t, "verbose_json", r.FormValue("response_format"))

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		assert.True(t, strings.HasSuffix(header.Filename, ".mp3"))
		_, _ = io.Copy(io.Discard, file)

		if n == failOn {
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"message": "audio chunk rejected"}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"text": fmt.Sprintf(" part%d ", n), "duration": 1.5, "language": "portuguese"})
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func syncConfig(apiURL string) config.TranscriptionConfig {
	return config.TranscriptionConfig{
		Mode:               ModeSync,
		APIKey:             "test-key",
		APIURL:             apiURL,
		Model:              "whisper-1",
		Language:           "pt",
		ResponseFormat:     "verbose_json",
		ChunkSize:          5 * 1024,
		MaxFileSize:        64 * 1024,
		MaxRetries:         2,
		MinTranscriptChars: 50,
		Timeout:            5 * time.Second,
	}
}

func newSyncService(t *testing.T, repo Repository, cfg config.TranscriptionConfig) *Service {
	t.Helper()
	client := NewSyncClient(cfg, WithSyncRetryInterval(time.Millisecond))
	fetcher := download.NewDownloader(download.Options{MaxSize: cfg.MaxFileSize, Timeout: 5 * time.Second})
	return NewService(repo, fetcher, cfg, WithSyncProvider(client))
}

func TestTranscribeSync_JoinsChunksInOrder(t *testing.T) {
	repo, db := setupRepo(t)
	data := make([]byte, 12*1024)
	media, _ := newMediaServer(t, data, int64(len(data)))
	whisper, calls := newWhisperServer(t, 0, 0)

	svc := newSyncService(t, repo, syncConfig(whisper.URL))
	video := &models.Video{ID: "video-1"}

	result, err := svc.TranscribeSync(context.Background(), video, media.URL+"/call.mp3")
	require.NoError(t, err)

	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	assert.Equal(t, "part1 part2 part3", result.Text)
	assert.InDelta(t, 4.5, result.DurationSeconds, 0.001)
	assert.Equal(t, 3, result.WordCount)
	assert.Equal(t, "portuguese", result.Language)
	assert.Equal(t, "whisper:whisper-1", result.Provider)
	assert.Equal(t, int64(1), countTranscriptions(t, db))
}

func TestTranscribeSync_ChunkFailureStoresNothing(t *testing.T) {
	repo, db := setupRepo(t)
	data := make([]byte, 12*1024)
	media, _ := newMediaServer(t, data, int64(len(data)))
	whisper, calls := newWhisperServer(t, 2, http.StatusBadRequest)

	svc := newSyncService(t, repo, syncConfig(whisper.URL))

	_, err := svc.TranscribeSync(context.Background(), &models.Video{ID: "video-1"}, media.URL+"/call.mp3")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeProvider, apperrors.GetCode(err))
	assert.Equal(t, "audio chunk rejected", apperrors.UserMessage(err, ""))

	assert.Equal(t, int32(2), atomic.LoadInt32(calls), "a 4xx is not retried and later chunks are not sent")
	assert.Equal(t, int64(0), countTranscriptions(t, db))
}

func TestTranscribeSync_RetriesServerErrors(t *testing.T) {
	repo, _ := setupRepo(t)
	data := make([]byte, 3*1024)
	media, _ := newMediaServer(t, data, int64(len(data)))
	whisper, calls := newWhisperServer(t, 1, http.StatusServiceUnavailable)

	svc := newSyncService(t, repo, syncConfig(whisper.URL))

	result, err := svc.TranscribeSync(context.Background(), &models.Video{ID: "video-1"}, media.URL+"/call.mp3")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
	assert.Equal(t, "part2", result.Text)
}

func TestTranscribeSync_TooLarge(t *testing.T) {
	repo, db := setupRepo(t)
	cfg := syncConfig("http://unused.invalid")

	media, gets := newMediaServer(t, nil, cfg.MaxFileSize+1)
	svc := newSyncService(t, repo, cfg)

	_, err := svc.TranscribeSync(context.Background(), &models.Video{ID: "video-1"}, media.URL+"/big.mp3")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeAcquisition, apperrors.GetCode(err))
	assert.Contains(t, apperrors.UserMessage(err, ""), "compress")
	assert.Equal(t, int32(0), atomic.LoadInt32(gets))
	assert.Equal(t, int64(0), countTranscriptions(t, db))
}

func TestTranscribeSync_NotConfigured(t *testing.T) {
	repo, _ := setupRepo(t)
	cfg := syncConfig("http://unused.invalid")
	cfg.APIKey = ""

	svc := newSyncService(t, repo, cfg)
	_, err := svc.TranscribeSync(context.Background(), &models.Video{ID: "video-1"}, "http://unused.invalid/a.mp3")
	assert.Equal(t, apperrors.ErrCodeConfigRequired, apperrors.GetCode(err))
	assert.Equal(t, "transcription not configured", apperrors.UserMessage(err, ""))
}

// fakeAsyncProvider is an in-memory AsyncProvider
type fakeAsyncProvider struct {
	jobs        map[string]*AsyncTranscript
	submitted   []string
	gets        int
	lastWebhook string
}

func (f *fakeAsyncProvider) Name() string     { return "assemblyai" }
func (f *fakeAsyncProvider) Configured() bool { return true }

func (f *fakeAsyncProvider) Submit(ctx context.Context, audioURL, webhookURL string) (string, error) {
	f.submitted = append(f.submitted, audioURL)
	f.lastWebhook = webhookURL
	return "job-1", nil
}

func (f *fakeAsyncProvider) Get(ctx context.Context, jobID string) (*AsyncTranscript, error) {
	f.gets++
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, apperrors.ProviderError("transcription", "transcript not found", nil)
	}
	return job, nil
}

func newAsyncService(repo Repository, provider AsyncProvider) *Service {
	cfg := config.TranscriptionConfig{
		Mode:               ModeAsync,
		MinTranscriptChars: 50,
		Async:              config.AsyncConfig{WebhookSecret: "s3cret"},
	}
	return NewService(repo, nil, cfg, WithAsyncProvider(provider), WithPublicURL("https://api.example.com/"))
}

func strPtr(s string) *string { return &s }

func TestSubmit_BuildsWebhookURL(t *testing.T) {
	repo, _ := setupRepo(t)
	provider := &fakeAsyncProvider{}
	svc := newAsyncService(repo, provider)

	jobID, err := svc.Submit(context.Background(), &models.Video{ID: "video-9", Attempt: 3}, "https://cdn.example.com/a.mp3")
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)

	u, err := url.Parse(provider.lastWebhook)
	require.NoError(t, err)
	assert.Equal(t, "api.example.com", u.Host)
	assert.Equal(t, WebhookPath, u.Path)
	assert.Equal(t, "video-9", u.Query().Get("videoId"))
	assert.Equal(t, "3", u.Query().Get("attempt"))
	assert.Equal(t, "s3cret", u.Query().Get("key"))
}

func TestWebhookURL_NotConfigured(t *testing.T) {
	repo, _ := setupRepo(t)
	svc := NewService(repo, nil, config.TranscriptionConfig{Mode: ModeAsync}, WithAsyncProvider(&fakeAsyncProvider{}))

	_, err := svc.WebhookURL("video-1", 1)
	assert.Equal(t, apperrors.ErrCodeConfigRequired, apperrors.GetCode(err))
}

func TestVerifyCallbackKey(t *testing.T) {
	repo, _ := setupRepo(t)
	svc := newAsyncService(repo, &fakeAsyncProvider{})

	assert.NoError(t, svc.VerifyCallbackKey("s3cret"))
	assert.Equal(t, apperrors.ErrCodeUnauthorized, apperrors.GetCode(svc.VerifyCallbackKey("wrong")))
	assert.Equal(t, apperrors.ErrCodeUnauthorized, apperrors.GetCode(svc.VerifyCallbackKey("")))

	unset := NewService(repo, nil, config.TranscriptionConfig{})
	assert.Error(t, unset.VerifyCallbackKey(""))
}

func TestHandleCallback(t *testing.T) {
	processing := &models.Video{ID: "video-1", Status: models.VideoStatusProcessing}

	tests := []struct {
		name      string
		video     *models.Video
		payload   CallbackPayload
		jobs      map[string]*AsyncTranscript
		wantCode  apperrors.ErrorCode
		wantMsg   string
		wantStore bool
		wantGets  int
	}{
		{
			name:     "provider error",
			video:    processing,
			payload:  CallbackPayload{TranscriptID: "job-1", Status: AsyncStatusError, Error: "Download error, unable to download audio"},
			wantCode: apperrors.ErrCodeProvider,
			wantMsg:  "Download error, unable to download audio",
		},
		{
			name:    "intermediate status",
			video:   processing,
			payload: CallbackPayload{TranscriptID: "job-1", Status: AsyncStatusProcessing},
		},
		{
			name:    "job of an earlier attempt",
			video:   &models.Video{ID: "video-1", Status: models.VideoStatusProcessing, Attempt: 2, ProviderJobID: strPtr("job-2")},
			payload: CallbackPayload{TranscriptID: "job-1", Status: AsyncStatusCompleted, Attempt: 1},
			jobs:    map[string]*AsyncTranscript{"job-1": {ID: "job-1", Status: AsyncStatusCompleted, Text: longTranscript}},
		},
		{
			name:    "error of an earlier attempt",
			video:   &models.Video{ID: "video-1", Status: models.VideoStatusProcessing, Attempt: 2, ProviderJobID: strPtr("job-2")},
			payload: CallbackPayload{TranscriptID: "job-1", Status: AsyncStatusError, Error: "late failure"},
		},
		{
			name:    "earlier attempt before the job id is stored",
			video:   &models.Video{ID: "video-1", Status: models.VideoStatusProcessing, Attempt: 2},
			payload: CallbackPayload{TranscriptID: "job-1", Status: AsyncStatusCompleted, Attempt: 1},
			jobs:    map[string]*AsyncTranscript{"job-1": {ID: "job-1", Status: AsyncStatusCompleted, Text: longTranscript}},
		},
		{
			name:    "current attempt before the job id is stored",
			video:   &models.Video{ID: "video-1", Status: models.VideoStatusProcessing, Attempt: 2},
			payload: CallbackPayload{TranscriptID: "job-1", Status: AsyncStatusCompleted, Attempt: 2},
			jobs: map[string]*AsyncTranscript{"job-1": {
				ID: "job-1", Status: AsyncStatusCompleted, Text: longTranscript,
				Utterances: []Utterance{{Speaker: "A", Text: "Bom dia", Start: 0, End: 900}},
			}},
			wantStore: true,
			wantGets:  1,
		},
		{
			name:    "record no longer processing",
			video:   &models.Video{ID: "video-1", Status: models.VideoStatusCompleted},
			payload: CallbackPayload{TranscriptID: "job-1", Status: AsyncStatusCompleted},
		},
		{
			name:     "transcript too short",
			video:    processing,
			payload:  CallbackPayload{TranscriptID: "job-1", Status: AsyncStatusCompleted},
			jobs:     map[string]*AsyncTranscript{"job-1": {ID: "job-1", Status: AsyncStatusCompleted, Text: "alô?"}},
			wantCode: apperrors.ErrCodeDataQuality,
			wantMsg:  "transcript too short",
			wantGets: 1,
		},
		{
			name:    "completed",
			video:   processing,
			payload: CallbackPayload{TranscriptID: "job-1", Status: AsyncStatusCompleted},
			jobs: map[string]*AsyncTranscript{"job-1": {
				ID: "job-1", Status: AsyncStatusCompleted, Text: longTranscript, Duration: 95, Language: "pt",
				Utterances: []Utterance{{Speaker: "A", Text: "Bom dia", Start: 0, End: 900}},
			}},
			wantStore: true,
			wantGets:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, db := setupRepo(t)
			provider := &fakeAsyncProvider{jobs: tt.jobs}
			svc := newAsyncService(repo, provider)

			result, err := svc.HandleCallback(context.Background(), tt.video, tt.payload)

			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, apperrors.GetCode(err))
				assert.Equal(t, tt.wantMsg, apperrors.UserMessage(err, ""))
			} else {
				require.NoError(t, err)
			}

			if tt.wantStore {
				require.NotNil(t, result)
				require.NotNil(t, result.ProviderJobID)
				assert.Equal(t, "job-1", *result.ProviderJobID)
				assert.Equal(t, "assemblyai", result.Provider)
				assert.JSONEq(t, `[{"speaker":"A","text":"Bom dia","start":0,"end":900}]`, string(result.Speakers))
				assert.Equal(t, int64(1), countTranscriptions(t, db))
			} else {
				assert.Nil(t, result)
				assert.Equal(t, int64(0), countTranscriptions(t, db))
			}
			assert.Equal(t, tt.wantGets, provider.gets)
		})
	}
}

func TestHandleCallback_DuplicateDeliveryIsNoop(t *testing.T) {
	repo, db := setupRepo(t)
	provider := &fakeAsyncProvider{jobs: map[string]*AsyncTranscript{
		"job-1": {ID: "job-1", Status: AsyncStatusCompleted, Text: longTranscript},
	}}
	svc := newAsyncService(repo, provider)
	video := &models.Video{ID: "video-1", Status: models.VideoStatusProcessing}
	payload := CallbackPayload{TranscriptID: "job-1", Status: AsyncStatusCompleted}

	first, err := svc.HandleCallback(context.Background(), video, payload)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := svc.HandleCallback(context.Background(), video, payload)
	require.NoError(t, err)
	assert.Nil(t, second)

	assert.Equal(t, 1, provider.gets)
	assert.Equal(t, int64(1), countTranscriptions(t, db))
}

func TestAudioExtension(t *testing.T) {
	assert.Equal(t, ".m4a", audioExtension("audio/mp4", ""))
	assert.Equal(t, ".mp3", audioExtension("audio/mpeg; charset=binary", ""))
	assert.Equal(t, ".wav", audioExtension("application/octet-stream", "https://x.test/call.WAV?sig=1"))
	assert.Equal(t, ".mp3", audioExtension("", "https://x.test/download"))
}
