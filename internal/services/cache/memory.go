package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryCache is a bounded in-process Cache. When full, expired entries are
// dropped first, then the entry closest to expiry.
type MemoryCache struct {
	mu         sync.RWMutex
	items      map[string]entry
	maxEntries int
	now        func() time.Time

	hits      int64
	misses    int64
	evictions int64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type entry struct {
	value  string
	expiry time.Time
}

// NewMemoryCache creates a cache holding at most maxEntries values. A
// janitor removes expired values every sweepInterval; zero disables it.
func NewMemoryCache(maxEntries int, sweepInterval time.Duration) *MemoryCache {
	mc := &MemoryCache{
		items:      make(map[string]entry),
		maxEntries: maxEntries,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}

	if sweepInterval > 0 {
		mc.wg.Add(1)
		go mc.janitor(sweepInterval)
	}
	return mc
}

// Get returns the value stored under key if it has not expired
func (mc *MemoryCache) Get(ctx context.Context, key string) (string, bool) {
	mc.mu.RLock()
	item, ok := mc.items[key]
	mc.mu.RUnlock()

	if !ok || !mc.now().Before(item.expiry) {
		atomic.AddInt64(&mc.misses, 1)
		return "", false
	}
	atomic.AddInt64(&mc.hits, 1)
	return item.value, true
}

// Set stores value under key for ttl. A non-positive ttl is ignored.
func (mc *MemoryCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, exists := mc.items[key]; !exists && mc.maxEntries > 0 && len(mc.items) >= mc.maxEntries {
		mc.evictLocked()
	}
	mc.items[key] = entry{value: value, expiry: mc.now().Add(ttl)}
}

// Delete removes key
func (mc *MemoryCache) Delete(ctx context.Context, key string) {
	mc.mu.Lock()
	delete(mc.items, key)
	mc.mu.Unlock()
}

// Stats returns cache statistics
func (mc *MemoryCache) Stats() Stats {
	mc.mu.RLock()
	entries := len(mc.items)
	mc.mu.RUnlock()

	return Stats{
		Hits:      atomic.LoadInt64(&mc.hits),
		Misses:    atomic.LoadInt64(&mc.misses),
		Evictions: atomic.LoadInt64(&mc.evictions),
		Entries:   entries,
	}
}

// Stop ends the janitor. It is safe to call more than once.
func (mc *MemoryCache) Stop() {
	mc.stopOnce.Do(func() { close(mc.stopCh) })
	mc.wg.Wait()
}

func (mc *MemoryCache) janitor(interval time.Duration) {
	defer mc.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			mc.mu.Lock()
			mc.removeExpiredLocked()
			mc.mu.Unlock()
		case <-mc.stopCh:
			return
		}
	}
}

func (mc *MemoryCache) removeExpiredLocked() int {
	now := mc.now()
	removed := 0
	for key, item := range mc.items {
		if !now.Before(item.expiry) {
			delete(mc.items, key)
			removed++
		}
	}
	atomic.AddInt64(&mc.evictions, int64(removed))
	return removed
}

func (mc *MemoryCache) evictLocked() {
	if mc.removeExpiredLocked() > 0 {
		return
	}

	var oldestKey string
	var oldest time.Time
	for key, item := range mc.items {
		if oldestKey == "" || item.expiry.Before(oldest) {
			oldestKey, oldest = key, item.expiry
		}
	}
	if oldestKey != "" {
		delete(mc.items, oldestKey)
		atomic.AddInt64(&mc.evictions, 1)
	}
}
