package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hszk-dev/avatarrelay/internal/domain/model"
	"github.com/hszk-dev/avatarrelay/internal/domain/repository"
	"github.com/hszk-dev/avatarrelay/internal/infrastructure/metrics"
)

// ResponseCacheConfig holds configuration for ResponseCache.
type ResponseCacheConfig struct {
	// TTL is how long an entry stays valid after its last use.
	TTL time.Duration
}

// DefaultResponseCacheConfig returns the default configuration.
func DefaultResponseCacheConfig() ResponseCacheConfig {
	return ResponseCacheConfig{TTL: model.DefaultTTL}
}

// CacheStats summarizes the persisted cache.
type CacheStats struct {
	ChatEntries    int
	VideoEntries   int
	ExpiredEntries int
	TotalUsage     int
	Oldest         time.Time
	Newest         time.Time
}

// ResponseCache stores provider answers and rendered video URLs.
//
// Every operation reloads the full snapshot from the store, applies its
// change and writes the snapshot back. The mutex serializes these cycles
// within one process; separate processes sharing a store can still lose
// updates.
type ResponseCache struct {
	store repository.SnapshotStore
	ttl   time.Duration
	now   func() time.Time

	mu sync.Mutex
}

// NewResponseCache creates a cache on top of store.
func NewResponseCache(store repository.SnapshotStore, cfg ResponseCacheConfig) *ResponseCache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = model.DefaultTTL
	}
	return &ResponseCache{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
}

// TTL returns the configured entry lifetime.
func (c *ResponseCache) TTL() time.Duration {
	return c.ttl
}

// Load returns the persisted snapshot. Missing or corrupt content yields an
// empty snapshot; the failure is logged.
func (c *ResponseCache) Load(ctx context.Context) model.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.loadLocked(ctx)
	if err != nil {
		slog.Warn("cache load failed", "error", err)
	}
	return snap
}

// Cleanup removes expired entries and persists the result when anything was
// removed. The pruned snapshot is returned even when saving fails.
func (c *ResponseCache) Cleanup(ctx context.Context) (model.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cleanupLocked(ctx)
}

// Expire is Cleanup reporting how many entries it removed and how many
// remain, both taken from the same load and save.
func (c *ResponseCache) Expire(ctx context.Context) (removed, remaining int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, n, err := c.pruneLocked(ctx)
	return n, len(snap), err
}

// Lookup runs a cleanup and returns the live entry for key, or nil on a miss.
func (c *ResponseCache) Lookup(ctx context.Context, key string) (*model.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lookupLocked(ctx, key, metrics.CacheNamespaceChat)
}

// Record inserts or replaces the entry under key and persists it.
func (c *ResponseCache) Record(ctx context.Context, key string, entry *model.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.recordLocked(ctx, key, entry, metrics.CacheNamespaceChat)
}

// Touch counts one more use of the entry under key and refreshes its
// timestamp. It returns repository.ErrEntryNotFound when key is absent.
func (c *ResponseCache) Touch(ctx context.Context, key string) (*model.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.cleanupLocked(ctx)
	if err != nil && !errors.Is(err, errSaveFailed) {
		c.observe(metrics.CacheOpTouch, metrics.CacheStatusError, metrics.CacheNamespaceChat)
		return nil, err
	}

	entry, ok := snap.Get(key)
	if !ok {
		c.observe(metrics.CacheOpTouch, metrics.CacheStatusMiss, metrics.CacheNamespaceChat)
		return nil, fmt.Errorf("%w: %s", repository.ErrEntryNotFound, key)
	}

	entry.Touch(c.now())
	if err := c.store.Save(ctx, snap); err != nil {
		c.observe(metrics.CacheOpTouch, metrics.CacheStatusError, metrics.CacheNamespaceChat)
		return entry, fmt.Errorf("save snapshot: %w", err)
	}

	c.observe(metrics.CacheOpTouch, metrics.CacheStatusSuccess, metrics.CacheNamespaceChat)
	return entry, nil
}

// RecordVideo stores the rendered video for an answer in the video namespace.
func (c *ResponseCache) RecordVideo(ctx context.Context, answer, videoURL, talkID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := model.NewVideoEntry(videoURL, talkID, c.now())
	return c.recordLocked(ctx, model.VideoKey(answer), entry, metrics.CacheNamespaceVideo)
}

// LookupVideo returns the live video entry for an answer, or nil on a miss.
func (c *ResponseCache) LookupVideo(ctx context.Context, answer string) (*model.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lookupLocked(ctx, model.VideoKey(answer), metrics.CacheNamespaceVideo)
}

// Stats reports what is currently persisted, including entries that have
// expired but were not yet cleaned up. It does not modify the store.
func (c *ResponseCache) Stats(ctx context.Context) (CacheStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.loadLocked(ctx)
	if err != nil && !errors.Is(err, repository.ErrCorruptSnapshot) {
		return CacheStats{}, err
	}

	now := c.now()
	var st CacheStats
	for key, e := range snap {
		if e == nil {
			st.ExpiredEntries++
			continue
		}
		if model.IsVideoKey(key) {
			st.VideoEntries++
		} else {
			st.ChatEntries++
			st.TotalUsage += e.UsageCount
		}
		if e.ExpiredAt(now, c.ttl) {
			st.ExpiredEntries++
		}
		if e.Timestamp.IsZero() {
			continue
		}
		if st.Oldest.IsZero() || e.Timestamp.Before(st.Oldest) {
			st.Oldest = e.Timestamp
		}
		if e.Timestamp.After(st.Newest) {
			st.Newest = e.Timestamp
		}
	}
	return st, err
}

// Purge deletes every entry and returns how many were removed.
func (c *ResponseCache) Purge(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.loadLocked(ctx)
	if err != nil && !errors.Is(err, repository.ErrCorruptSnapshot) {
		return 0, err
	}

	if err := c.store.Save(ctx, model.NewSnapshot()); err != nil {
		c.observe(metrics.CacheOpPurge, metrics.CacheStatusError, metrics.CacheNamespaceChat)
		return 0, fmt.Errorf("save snapshot: %w", err)
	}
	c.observe(metrics.CacheOpPurge, metrics.CacheStatusSuccess, metrics.CacheNamespaceChat)
	return len(snap), nil
}

var errSaveFailed = errors.New("cache save failed")

// loadLocked returns the stored snapshot. A corrupt snapshot is reported as
// an error wrapping repository.ErrCorruptSnapshot together with an empty,
// usable snapshot; callers may overwrite it. Any other error means the store
// could not be read and must not be overwritten.
func (c *ResponseCache) loadLocked(ctx context.Context) (model.Snapshot, error) {
	snap, err := c.store.Load(ctx)
	if snap == nil {
		snap = model.NewSnapshot()
	}
	if err != nil {
		return snap, fmt.Errorf("load snapshot: %w", err)
	}
	return snap, nil
}

func (c *ResponseCache) cleanupLocked(ctx context.Context) (model.Snapshot, error) {
	snap, _, err := c.pruneLocked(ctx)
	return snap, err
}

func (c *ResponseCache) pruneLocked(ctx context.Context) (model.Snapshot, int, error) {
	snap, err := c.loadLocked(ctx)
	if err != nil {
		if !errors.Is(err, repository.ErrCorruptSnapshot) {
			c.observe(metrics.CacheOpCleanup, metrics.CacheStatusError, metrics.CacheNamespaceChat)
			return snap, 0, err
		}
		slog.Warn("cache snapshot is corrupt, starting empty", "error", err)
	}

	removed := len(snap.Prune(c.now(), c.ttl))
	if removed == 0 {
		return snap, 0, nil
	}

	metrics.CacheEntriesExpiredTotal.Add(float64(removed))
	slog.Debug("expired cache entries removed", "count", removed)

	if err := c.store.Save(ctx, snap); err != nil {
		c.observe(metrics.CacheOpCleanup, metrics.CacheStatusError, metrics.CacheNamespaceChat)
		return snap, removed, fmt.Errorf("%w: %w", errSaveFailed, err)
	}
	c.observe(metrics.CacheOpCleanup, metrics.CacheStatusSuccess, metrics.CacheNamespaceChat)
	return snap, removed, nil
}

func (c *ResponseCache) lookupLocked(ctx context.Context, key, namespace string) (*model.Entry, error) {
	snap, err := c.cleanupLocked(ctx)
	if err != nil && !errors.Is(err, errSaveFailed) {
		c.observe(metrics.CacheOpLookup, metrics.CacheStatusError, namespace)
		return nil, err
	}
	if err != nil {
		slog.Warn("cache cleanup could not be saved", "error", err)
	}

	entry, ok := snap.Get(key)
	if !ok {
		c.observe(metrics.CacheOpLookup, metrics.CacheStatusMiss, namespace)
		return nil, nil
	}
	c.observe(metrics.CacheOpLookup, metrics.CacheStatusHit, namespace)
	return entry, nil
}

func (c *ResponseCache) recordLocked(ctx context.Context, key string, entry *model.Entry, namespace string) error {
	snap, err := c.cleanupLocked(ctx)
	if err != nil && !errors.Is(err, errSaveFailed) {
		c.observe(metrics.CacheOpRecord, metrics.CacheStatusError, namespace)
		return err
	}

	snap.Put(key, entry)
	if err := c.store.Save(ctx, snap); err != nil {
		c.observe(metrics.CacheOpRecord, metrics.CacheStatusError, namespace)
		return fmt.Errorf("save snapshot: %w", err)
	}

	c.observe(metrics.CacheOpRecord, metrics.CacheStatusSuccess, namespace)
	return nil
}

func (c *ResponseCache) observe(op, status, namespace string) {
	metrics.CacheOperationsTotal.WithLabelValues(op, status, namespace).Inc()
}
