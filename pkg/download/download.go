package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

// ErrTooLarge is returned when a body exceeds Options.MaxSize
var ErrTooLarge = errors.New("download exceeds maximum size")

// Options configures the download behavior
type Options struct {
	MaxSize   int64         // Maximum body size in bytes (0 = no limit)
	Timeout   time.Duration // Whole request timeout
	UserAgent string
}

// DefaultOptions returns default download options
func DefaultOptions() Options {
	return Options{
		MaxSize:   200 * 1024 * 1024,
		Timeout:   5 * time.Minute,
		UserAgent: "callmetrics-api/1.0",
	}
}

// StatusError reports a non-2xx response
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d", e.StatusCode)
}

// ProbeResult holds the response headers of a HEAD request
type ProbeResult struct {
	StatusCode    int
	ContentType   string
	ContentLength int64 // -1 when unknown
}

// OK reports a 2xx status
func (p *ProbeResult) OK() bool {
	return p.StatusCode >= 200 && p.StatusCode < 300
}

// IsHTML reports whether the server answered with a web page
func (p *ProbeResult) IsHTML() bool {
	return IsHTML(p.ContentType)
}

// Result contains a fully buffered download
type Result struct {
	Data        []byte
	ContentType string
}

// Downloader fetches remote media over HTTP
type Downloader struct {
	client  *http.Client
	options Options
}

// NewDownloader creates a new downloader with the given options
func NewDownloader(options Options) *Downloader {
	return &Downloader{
		client: &http.Client{
			Timeout: options.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				DisableCompression:  true, // Don't compress audio
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		options: options,
	}
}

// NewDownloaderWithClient uses the given client instead of building one
func NewDownloaderWithClient(client *http.Client, options Options) *Downloader {
	return &Downloader{client: client, options: options}
}

// Probe issues a HEAD request. Non-2xx answers are not errors; callers
// inspect the result.
func (d *Downloader) Probe(ctx context.Context, url string) (*ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	d.setHeaders(req)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", hostOf(url), err)
	}
	defer resp.Body.Close()

	return &ProbeResult{
		StatusCode:    resp.StatusCode,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}

// Fetch downloads url into memory, failing with ErrTooLarge as soon as the
// body passes MaxSize.
func (d *Downloader) Fetch(ctx context.Context, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	d.setHeaders(req)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	if d.options.MaxSize > 0 && resp.ContentLength > d.options.MaxSize {
		return nil, ErrTooLarge
	}

	data, err := d.readBounded(resp.Body, resp.ContentLength)
	if err != nil {
		return nil, err
	}

	return &Result{
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

func (d *Downloader) setHeaders(req *http.Request) {
	if d.options.UserAgent != "" {
		req.Header.Set("User-Agent", d.options.UserAgent)
	}
	req.Header.Set("Accept", "audio/*,video/*,*/*")
}

// readBounded reads at most MaxSize bytes, one byte more is read to detect
// an oversized body whose length was not announced
func (d *Downloader) readBounded(body io.Reader, total int64) ([]byte, error) {
	reader := body
	if d.options.MaxSize > 0 {
		reader = io.LimitReader(reader, d.options.MaxSize+1)
	}

	capacity := total
	if capacity <= 0 || (d.options.MaxSize > 0 && capacity > d.options.MaxSize) {
		capacity = 512 * 1024
	}
	buf := make([]byte, 0, capacity)

	chunk := make([]byte, 32*1024)
	for {
		n, err := reader.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if d.options.MaxSize > 0 && int64(len(buf)) > d.options.MaxSize {
			return nil, ErrTooLarge
		}
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read body: %w", err)
		}
	}
}

// IsHTML reports whether contentType is an HTML page
func IsHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// IsMediaContentType checks if content type can carry audio
func IsMediaContentType(contentType string) bool {
	contentType = strings.ToLower(contentType)
	return strings.HasPrefix(contentType, "audio/") ||
		strings.HasPrefix(contentType, "video/") ||
		strings.HasPrefix(contentType, "application/octet-stream") // Some servers use this for audio
}

func hostOf(rawURL string) string {
	s := rawURL
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return s
}
