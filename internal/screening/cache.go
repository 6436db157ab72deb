package screening

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/acuityrisk/sanctionscan/pkg/metrics"
)

// SnapshotStore persists parsed entity lists across process restarts so a
// restart inside the TTL window does not redownload a multi-megabyte export.
// Implementations are best-effort; failures must not break a refresh.
type SnapshotStore interface {
	Load(ctx context.Context, source string) (entities []ListEntity, fetchedAt time.Time, ok bool)
	Save(ctx context.Context, source string, fetchedAt time.Time, entities []ListEntity)
}

type cacheEntry struct {
	fetchedAt time.Time
	entities  []ListEntity
}

// ListCache is the per-source, time-boxed cache of parsed list entities.
//
// A fresh entry is served verbatim. On expiry the refresh happens inline in
// the calling goroutine, coalesced through singleflight so N concurrent
// misses on the same source share one download. Replacement is atomic under
// the mutex: readers see either the old complete list or the new one, never
// a mix.
//
// On refresh failure a previously successful entry is served stale (flagged)
// rather than discarded; a failure with no prior data yields an empty
// universe, remembered only for a short backoff window so a dead endpoint is
// retried eventually but not hammered per call.
type ListCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	failed  map[string]time.Time

	group     singleflight.Group
	ttl       time.Duration
	backoff   time.Duration
	snapshots SnapshotStore
	logger    *zap.SugaredLogger
}

// NewListCache creates a cache with the given TTL and failure backoff.
// snapshots may be nil.
func NewListCache(ttl, failureBackoff time.Duration, snapshots SnapshotStore, logger *zap.SugaredLogger) *ListCache {
	return &ListCache{
		entries:   make(map[string]*cacheEntry),
		failed:    make(map[string]time.Time),
		ttl:       ttl,
		backoff:   failureBackoff,
		snapshots: snapshots,
		logger:    logger,
	}
}

// GetOrRefresh returns the entity universe for the source, refreshing it if
// the cached copy is missing or older than the TTL. The returned stale flag
// is set when expired data is served because the refresh failed. Fetch
// failures are not surfaced as errors: with no data at all the universe is
// simply empty, which callers treat as "no matches".
func (c *ListCache) GetOrRefresh(ctx context.Context, src LocalSource) (entities []ListEntity, stale bool) {
	name := src.Name()

	c.mu.RLock()
	entry := c.entries[name]
	failedAt, failed := c.failed[name]
	c.mu.RUnlock()

	now := time.Now()
	if entry != nil && now.Sub(entry.fetchedAt) < c.ttl {
		return entry.entities, false
	}
	if failed && now.Sub(failedAt) < c.backoff {
		if entry != nil {
			metrics.StaleServes.WithLabelValues(name).Inc()
			return entry.entities, true
		}
		return nil, false
	}

	result, _, _ := c.group.Do(name, func() (interface{}, error) {
		return c.refresh(ctx, src), nil
	})

	res := result.(refreshResult)
	return res.entities, res.stale
}

type refreshResult struct {
	entities []ListEntity
	stale    bool
}

func (c *ListCache) refresh(ctx context.Context, src LocalSource) refreshResult {
	name := src.Name()

	// Another caller may have completed the refresh while this one was
	// queued on the singleflight group.
	c.mu.RLock()
	entry := c.entries[name]
	c.mu.RUnlock()
	if entry != nil && time.Since(entry.fetchedAt) < c.ttl {
		return refreshResult{entities: entry.entities}
	}

	// On a cold start, a persisted snapshot can stand in for the download.
	if entry == nil && c.snapshots != nil {
		if snap, fetchedAt, ok := c.snapshots.Load(ctx, name); ok {
			entry = &cacheEntry{fetchedAt: fetchedAt, entities: snap}
			c.store(name, entry)
			if time.Since(fetchedAt) < c.ttl {
				c.logger.Infow("Serving sanctions list from snapshot",
					"source", name, "entities", len(snap), "fetched_at", fetchedAt)
				return refreshResult{entities: snap}
			}
		}
	}

	entities, err := src.FetchAndParse(ctx)
	if err != nil {
		metrics.ListRefreshes.WithLabelValues(name, "failure").Inc()
		c.mu.Lock()
		c.failed[name] = time.Now()
		c.mu.Unlock()

		if entry != nil {
			c.logger.Warnw("Sanctions list refresh failed, serving stale data",
				"source", name, "age", time.Since(entry.fetchedAt), "error", err)
			metrics.StaleServes.WithLabelValues(name).Inc()
			return refreshResult{entities: entry.entities, stale: true}
		}
		c.logger.Warnw("Sanctions list refresh failed with no cached data, treating universe as empty",
			"source", name, "error", err)
		return refreshResult{}
	}

	metrics.ListRefreshes.WithLabelValues(name, "success").Inc()
	fresh := &cacheEntry{fetchedAt: time.Now(), entities: entities}
	c.store(name, fresh)

	if c.snapshots != nil {
		c.snapshots.Save(ctx, name, fresh.fetchedAt, entities)
	}

	c.logger.Infow("Refreshed sanctions list", "source", name, "entities", len(entities))
	return refreshResult{entities: entities}
}

func (c *ListCache) store(name string, entry *cacheEntry) {
	c.mu.Lock()
	c.entries[name] = entry
	delete(c.failed, name)
	c.mu.Unlock()
	metrics.CachedEntities.WithLabelValues(name).Set(float64(len(entry.entities)))
}

// Invalidate drops the cached entry for a source, forcing the next call to
// refresh.
func (c *ListCache) Invalidate(source string) {
	c.mu.Lock()
	delete(c.entries, source)
	delete(c.failed, source)
	c.mu.Unlock()
}
