package acquisition

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/callmetrics/callmetrics-api/internal/services/cache"
	"github.com/callmetrics/callmetrics-api/pkg/config"
	supa "github.com/supabase-community/supabase-go"
)

// Signer exchanges a storage object path for a time-limited URL
type Signer interface {
	SignedURL(ctx context.Context, path string) (string, error)
}

// SupabaseSigner signs objects in a Supabase Storage bucket
type SupabaseSigner struct {
	client  *supa.Client
	baseURL string
	bucket  string
	expiry  time.Duration
}

// NewSupabaseSigner builds a signer from the supabase settings. It returns
// nil, nil when storage is not configured.
func NewSupabaseSigner(cfg config.SupabaseConfig) (*SupabaseSigner, error) {
	if cfg.URL == "" || cfg.ServiceKey == "" {
		return nil, nil
	}

	client, err := supa.NewClient(cfg.URL, cfg.ServiceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing supabase client: %w", err)
	}

	expiry := cfg.SignedURLExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}

	return &SupabaseSigner{
		client:  client,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		bucket:  cfg.Bucket,
		expiry:  expiry,
	}, nil
}

// Expiry is the lifetime of the URLs this signer creates
func (s *SupabaseSigner) Expiry() time.Duration {
	return s.expiry
}

// SignedURL returns an absolute signed download URL for path
func (s *SupabaseSigner) SignedURL(ctx context.Context, path string) (string, error) {
	path = strings.TrimPrefix(path, "/")
	path = strings.TrimPrefix(path, s.bucket+"/")

	resp, err := s.client.Storage.CreateSignedUrl(s.bucket, path, int(s.expiry.Seconds()))
	if err != nil {
		return "", fmt.Errorf("creating signed url: %w", err)
	}
	if resp.SignedURL == "" {
		return "", fmt.Errorf("storage returned an empty signed url")
	}

	return absoluteStorageURL(s.baseURL, resp.SignedURL), nil
}

// absoluteStorageURL prefixes relative signed paths with the storage API root
func absoluteStorageURL(baseURL, signed string) string {
	if strings.HasPrefix(signed, "http://") || strings.HasPrefix(signed, "https://") {
		return signed
	}
	if !strings.HasPrefix(signed, "/") {
		signed = "/" + signed
	}
	if strings.HasPrefix(signed, "/storage/v1/") {
		return baseURL + signed
	}
	return baseURL + "/storage/v1" + signed
}

// CachingSigner reuses signed URLs while at least half of their lifetime
// remains, so retries of the same upload do not re-sign.
type CachingSigner struct {
	signer Signer
	cache  cache.Cache
	ttl    time.Duration
}

// NewCachingSigner wraps signer. URLs are kept for half of expiry.
func NewCachingSigner(signer Signer, c cache.Cache, expiry time.Duration) *CachingSigner {
	return &CachingSigner{signer: signer, cache: c, ttl: expiry / 2}
}

// SignedURL returns a cached URL for path or signs a new one
func (s *CachingSigner) SignedURL(ctx context.Context, path string) (string, error) {
	key := "signed:" + path
	if url, ok := s.cache.Get(ctx, key); ok {
		return url, nil
	}

	url, err := s.signer.SignedURL(ctx, path)
	if err != nil {
		return "", err
	}
	s.cache.Set(ctx, key, url, s.ttl)
	return url, nil
}
