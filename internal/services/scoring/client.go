package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/callmetrics/callmetrics-api/pkg/config"
	apperrors "github.com/callmetrics/callmetrics-api/pkg/errors"
	"github.com/callmetrics/callmetrics-api/pkg/retry"
)

const defaultChatURL = "https://api.openai.com/v1/chat/completions"

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ChatClient calls an OpenAI compatible chat completions endpoint
type ChatClient struct {
	httpClient    *http.Client
	apiURL        string
	apiKey        string
	model         string
	temperature   float64
	maxRetries    int
	retryInterval time.Duration
}

// ClientOption configures a ChatClient
type ClientOption func(*ChatClient)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cc *ChatClient) { cc.httpClient = c }
}

// WithRetryInterval sets the first backoff interval
func WithRetryInterval(d time.Duration) ClientOption {
	return func(cc *ChatClient) { cc.retryInterval = d }
}

// NewChatClient creates a client from the AI settings
func NewChatClient(cfg config.AIConfig, opts ...ClientOption) *ChatClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = defaultChatURL
	}

	c := &ChatClient{
		httpClient:    &http.Client{Timeout: timeout},
		apiURL:        apiURL,
		apiKey:        cfg.APIKey,
		model:         cfg.Model,
		temperature:   cfg.Temperature,
		maxRetries:    cfg.MaxRetries,
		retryInterval: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ChatClient) Model() string {
	return c.model
}

func (c *ChatClient) Configured() bool {
	return c.apiKey != ""
}

// Complete returns choices[0].message.content
func (c *ChatClient) Complete(ctx context.Context, system, user string) (string, error) {
	if !c.Configured() {
		return "", apperrors.NotConfigured("analysis", "ai.api_key")
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.temperature,
	})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to encode analysis request")
	}

	var content string
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return apperrors.ProviderError("analysis", "", err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return apperrors.ProviderError("analysis", "", err)
		}

		var parsed chatResponse
		decodeErr := json.Unmarshal(raw, &parsed)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			providerText := ""
			if decodeErr == nil && parsed.Error != nil {
				providerText = parsed.Error.Message
			}
			perr := apperrors.ProviderError("analysis", providerText, fmt.Errorf("status %d", resp.StatusCode)).
				WithDetail("status_code", resp.StatusCode)
			if retry.RetryableStatus(resp.StatusCode) {
				return perr
			}
			return retry.Permanent(perr)
		}

		if decodeErr != nil {
			return retry.Permanent(apperrors.ProviderError("analysis", "analysis returned an unreadable response", decodeErr))
		}
		if len(parsed.Choices) == 0 {
			return retry.Permanent(apperrors.DataQualityError("analysis returned no choices", nil))
		}

		content = parsed.Choices[0].Message.Content
		return nil
	}

	if err := retry.Do(ctx, c.maxRetries, c.retryInterval, op); err != nil {
		return "", err
	}
	return content, nil
}
