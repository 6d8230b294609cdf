package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/callmetrics/callmetrics-api/pkg/config"
	apperrors "github.com/callmetrics/callmetrics-api/pkg/errors"
	"github.com/callmetrics/callmetrics-api/pkg/retry"
	"github.com/callmetrics/callmetrics-api/pkg/transcript"
)

const defaultSyncURL = "https://api.openai.com/v1/audio/transcriptions"

// SyncClient talks to a Whisper compatible transcription endpoint
type SyncClient struct {
	httpClient     *http.Client
	apiURL         string
	apiKey         string
	model          string
	language       string
	responseFormat string
	maxRetries     int
	retryInterval  time.Duration
}

// SyncOption configures a SyncClient
type SyncOption func(*SyncClient)

// WithSyncHTTPClient replaces the HTTP client
func WithSyncHTTPClient(c *http.Client) SyncOption {
	return func(s *SyncClient) { s.httpClient = c }
}

// WithSyncRetryInterval sets the first backoff interval
func WithSyncRetryInterval(d time.Duration) SyncOption {
	return func(s *SyncClient) { s.retryInterval = d }
}

// NewSyncClient creates a client from the transcription settings
func NewSyncClient(cfg config.TranscriptionConfig, opts ...SyncOption) *SyncClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = defaultSyncURL
	}
	format := cfg.ResponseFormat
	if format == "" {
		format = string(transcript.FormatVerboseJSON)
	}

	c := &SyncClient{
		httpClient:     &http.Client{Timeout: timeout},
		apiURL:         apiURL,
		apiKey:         cfg.APIKey,
		model:          cfg.Model,
		language:       cfg.Language,
		responseFormat: format,
		maxRetries:     cfg.MaxRetries,
		retryInterval:  time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *SyncClient) Name() string {
	return "whisper:" + c.model
}

func (c *SyncClient) Configured() bool {
	return c.apiKey != ""
}

type providerErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// TranscribeChunk uploads one window as multipart form data. Transport
// failures, 429 and 5xx are retried; other client errors are not.
func (c *SyncClient) TranscribeChunk(ctx context.Context, chunk []byte, filename string) (*ChunkResult, error) {
	if !c.Configured() {
		return nil, apperrors.NotConfigured("transcription", "transcription.api_key")
	}

	body, contentType, err := c.buildForm(chunk, filename)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to build transcription request")
	}

	var result *ChunkResult
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", contentType)

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
			perr := apperrors.ProviderError("transcription", providerMessage(raw), fmt.Errorf("status %d", resp.StatusCode)).
				WithDetail("status_code", resp.StatusCode)
			if retry.RetryableStatus(resp.StatusCode) {
				return perr
			}
			return retry.Permanent(perr)
		}

		parsed, err := transcript.Parse(raw, transcript.Format(c.responseFormat))
		if err != nil {
			return retry.Permanent(apperrors.ProviderError("transcription", "transcription returned an unreadable response", err))
		}

		result = &ChunkResult{Text: parsed.Text, Duration: parsed.Duration.Seconds(), Language: parsed.Language}
		return nil
	}

	if err := retry.Do(ctx, c.maxRetries, c.retryInterval, op); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *SyncClient) buildForm(chunk []byte, filename string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(chunk); err != nil {
		return nil, "", err
	}

	fields := map[string]string{
		"model":           c.model,
		"language":        c.language,
		"response_format": c.responseFormat,
	}
	for key, value := range fields {
		if value == "" {
			continue
		}
		if err := w.WriteField(key, value); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// providerMessage extracts error.message from an OpenAI style error body
func providerMessage(raw []byte) string {
	var body providerErrorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return body.Error.Message
}
