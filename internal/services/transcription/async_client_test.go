package transcription

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/callmetrics/callmetrics-api/pkg/config"
	apperrors "github.com/callmetrics/callmetrics-api/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncClient_SubmitAndGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "async-key", r.Header.Get("Authorization"))

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/transcript":
			var body submitRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "https://cdn.example.com/a.mp3", body.AudioURL)
			assert.Equal(t, "https://api.example.com/hook", body.WebhookURL)
			assert.Equal(t, "pt", body.LanguageCode)
			assert.True(t, body.SpeakerLabels)
			json.NewEncoder(w).Encode(map[string]string{"id": "job-7", "status": "queued"})
		case r.Method == http.MethodGet && r.URL.Path == "/transcript/job-7":
			json.NewEncoder(w).Encode(map[string]any{
				"id": "job-7", "status": "completed", "text": "olá", "audio_duration": 12.5,
				"utterances": []map[string]any{{"speaker": "B", "text": "olá", "start": 10, "end": 500}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "transcript not found"})
		}
	}))
	defer server.Close()

	client := NewAsyncClient(config.TranscriptionConfig{
		Language:   "pt",
		MaxRetries: 1,
		Async:      config.AsyncConfig{APIKey: "async-key", BaseURL: server.URL + "/", SpeakerLabels: true},
	}, WithAsyncRetryInterval(time.Millisecond))

	ctx := context.Background()
	jobID, err := client.Submit(ctx, "https://cdn.example.com/a.mp3", "https://api.example.com/hook")
	require.NoError(t, err)
	assert.Equal(t, "job-7", jobID)

	job, err := client.Get(ctx, "job-7")
	require.NoError(t, err)
	assert.Equal(t, AsyncStatusCompleted, job.Status)
	assert.InDelta(t, 12.5, job.Duration, 0.001)
	require.Len(t, job.Utterances, 1)
	assert.Equal(t, "B", job.Utterances[0].Speaker)

	_, err = client.Get(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeProvider, apperrors.GetCode(err))
	assert.Equal(t, "transcript not found", apperrors.UserMessage(err, ""))
}

func TestAsyncClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "job-1"})
	}))
	defer server.Close()

	client := NewAsyncClient(config.TranscriptionConfig{
		MaxRetries: 2,
		Async:      config.AsyncConfig{APIKey: "k", BaseURL: server.URL},
	}, WithAsyncRetryInterval(time.Millisecond))

	jobID, err := client.Submit(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestAsyncClient_NotConfigured(t *testing.T) {
	client := NewAsyncClient(config.TranscriptionConfig{})
	assert.False(t, client.Configured())

	_, err := client.Submit(context.Background(), "a", "b")
	assert.Equal(t, apperrors.ErrCodeConfigRequired, apperrors.GetCode(err))
}
