package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/callmetrics/callmetrics-api/pkg/config"
	apperrors "github.com/callmetrics/callmetrics-api/pkg/errors"
	"github.com/callmetrics/callmetrics-api/pkg/retry"
)

const defaultAsyncURL = "https://api.assemblyai.com/v2"

// AsyncClient talks to an AssemblyAI compatible transcript API
type AsyncClient struct {
	httpClient    *http.Client
	baseURL       string
	apiKey        string
	language      string
	speakerLabels bool
	maxRetries    int
	retryInterval time.Duration
}

// AsyncOption configures an AsyncClient
type AsyncOption func(*AsyncClient)

// WithAsyncHTTPClient replaces the HTTP client
func WithAsyncHTTPClient(c *http.Client) AsyncOption {
	return func(a *AsyncClient) { a.httpClient = c }
}

// WithAsyncRetryInterval sets the first backoff interval
func WithAsyncRetryInterval(d time.Duration) AsyncOption {
	return func(a *AsyncClient) { a.retryInterval = d }
}

// NewAsyncClient creates a client from the transcription settings
func NewAsyncClient(cfg config.TranscriptionConfig, opts ...AsyncOption) *AsyncClient {
	baseURL := strings.TrimRight(cfg.Async.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultAsyncURL
	}

	c := &AsyncClient{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		baseURL:       baseURL,
		apiKey:        cfg.Async.APIKey,
		language:      cfg.Language,
		speakerLabels: cfg.Async.SpeakerLabels,
		maxRetries:    cfg.MaxRetries,
		retryInterval: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *AsyncClient) Name() string {
	return "assemblyai"
}

func (c *AsyncClient) Configured() bool {
	return c.apiKey != ""
}

type submitRequest struct {
	AudioURL      string `json:"audio_url"`
	WebhookURL    string `json:"webhook_url"`
	LanguageCode  string `json:"language_code,omitempty"`
	SpeakerLabels bool   `json:"speaker_labels,omitempty"`
}

// Submit starts a transcript job. The provider calls webhookURL when the
// job finishes.
func (c *AsyncClient) Submit(ctx context.Context, audioURL, webhookURL string) (string, error) {
	payload, err := json.Marshal(submitRequest{
		AudioURL:      audioURL,
		WebhookURL:    webhookURL,
		LanguageCode:  c.language,
		SpeakerLabels: c.speakerLabels,
	})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to encode transcript request")
	}

	var job AsyncTranscript
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/transcript", payload, &job); err != nil {
		return "", err
	}
	if job.ID == "" {
		return "", apperrors.ProviderError("transcription", "transcription provider returned no job id", nil)
	}
	return job.ID, nil
}

// Get fetches a transcript job by id
func (c *AsyncClient) Get(ctx context.Context, jobID string) (*AsyncTranscript, error) {
	var job AsyncTranscript
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/transcript/"+url.PathEscape(jobID), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *AsyncClient) do(ctx context.Context, method, endpoint string, body []byte, out interface{}) error {
	if !c.Configured() {
		return apperrors.NotConfigured("transcription", "transcription.async.api_key")
	}

	op := func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Authorization", c.apiKey)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return apperrors.ProviderError("transcription", "", err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return apperrors.ProviderError("transcription", "", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			perr := apperrors.ProviderError("transcription", asyncErrorMessage(raw), fmt.Errorf("status %d", resp.StatusCode)).
				WithDetail("status_code", resp.StatusCode)
			if retry.RetryableStatus(resp.StatusCode) {
				return perr
			}
			return retry.Permanent(perr)
		}

		if err := json.Unmarshal(raw, out); err != nil {
			return retry.Permanent(apperrors.ProviderError("transcription", "transcription returned an unreadable response", err))
		}
		return nil
	}

	return retry.Do(ctx, c.maxRetries, c.retryInterval, op)
}

// asyncErrorMessage reads {"error": "..."} bodies
func asyncErrorMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return body.Error
}
