package cache

import (
	"context"
	"time"
)

// Cache stores short lived string values by key
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

// Stats provides statistics about cache usage
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int
}
