package usecase

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yukimura/gminor/internal/domain"
	"github.com/yukimura/gminor/internal/store"
)

// DefaultCacheTTL bounds how long a computed weekly series is served
// without recomputation.
const DefaultCacheTTL = 1 * time.Hour

// CacheStats is a point-in-time snapshot of cache effectiveness.
type CacheStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

type cacheEntry struct {
	series    []domain.WeeklyAggregate
	expiresAt time.Time
}

// AggregateCache serves weekly series from a two-level cache: a TTL-bound
// in-memory map in front of the weekly_aggregates relation. Computed
// series are written through to sqlite so a fresh process starts warm.
// Invalidation after a sync commit drops both levels for the affected
// set keys.
type AggregateCache struct {
	aggregator *Aggregator
	records    *store.RecordStore
	ttl        time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	entries map[string]cacheEntry

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	now func() time.Time
}

// NewAggregateCache creates a cache over the given aggregator. A zero
// ttl selects DefaultCacheTTL.
func NewAggregateCache(aggregator *Aggregator, records *store.RecordStore, ttl time.Duration, logger *slog.Logger) *AggregateCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &AggregateCache{
		aggregator: aggregator,
		records:    records,
		ttl:        ttl,
		logger:     logger,
		entries:    make(map[string]cacheEntry),
		now:        time.Now,
	}
}

func cacheKey(setKey, timezone string, from, to time.Time) string {
	return setKey + "|" + timezone + "|" + from.UTC().Format(time.RFC3339) + "|" + to.UTC().Format(time.RFC3339)
}

// WeeklySeries returns the series for the set over [from, to], serving
// from memory when fresh, from the persisted rows when the process is
// cold, and recomputing otherwise.
func (c *AggregateCache) WeeklySeries(ctx context.Context, set domain.RepoSet, from, to time.Time) ([]domain.WeeklyAggregate, error) {
	tz := c.aggregator.Resolver().Timezone()
	key := cacheKey(set.Key, tz, from, to)

	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && c.now().Before(entry.expiresAt) {
		c.mu.Unlock()
		c.hits.Add(1)
		return entry.series, nil
	}
	if ok {
		delete(c.entries, key)
		c.evictions.Add(1)
	}
	c.mu.Unlock()
	c.misses.Add(1)

	weeks := c.aggregator.Resolver().Weeks(from, to)
	if len(weeks) > 0 {
		rangeFrom := weeks[0]
		rangeTo := weeks[len(weeks)-1].AddDate(0, 0, 7)
		persisted, err := c.records.GetWeeklySeries(ctx, set.Key, tz, rangeFrom, rangeTo)
		if err != nil {
			return nil, err
		}
		// Persisted rows are usable only when they cover the full range and
		// are inside the TTL; a partial cover means the range was never
		// computed as a whole.
		if len(persisted) == len(weeks) && c.now().Sub(persisted[0].ComputedAt) < c.ttl {
			c.memoize(key, persisted)
			return persisted, nil
		}
	}

	series, err := c.aggregator.ComputeWeeklySeries(ctx, set, from, to)
	if err != nil {
		return nil, err
	}
	if len(series) > 0 {
		rangeFrom := series[0].WeekStart
		rangeTo := series[len(series)-1].WeekEnd
		if err := c.records.ReplaceWeeklySeries(ctx, set.Key, tz, rangeFrom, rangeTo, series); err != nil {
			// The computed series is still valid; persistence is an
			// optimization for the next process.
			c.logger.Warn("weekly series write-through failed", "set", set.Key, "error", err)
		}
	}
	c.memoize(key, series)
	return series, nil
}

func (c *AggregateCache) memoize(key string, series []domain.WeeklyAggregate) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{series: series, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Invalidate drops every cached series that could include the given
// repository: its single-repo key and the combined key. It satisfies the
// coordinator's Invalidator contract and runs after each successful
// repository sync.
func (c *AggregateCache) Invalidate(ctx context.Context, repository string) error {
	keys := []string{repository, domain.CombinedKey}

	c.mu.Lock()
	for key := range c.entries {
		for _, setKey := range keys {
			if strings.HasPrefix(key, setKey+"|") {
				delete(c.entries, key)
				c.evictions.Add(1)
				break
			}
		}
	}
	c.mu.Unlock()

	if _, err := c.records.DeleteWeeklySeries(ctx, keys); err != nil {
		return err
	}
	c.logger.Debug("aggregate cache invalidated", "repository", repository)
	return nil
}

// Stats reports cumulative hit, miss, and eviction counters plus the
// current in-memory entry count.
func (c *AggregateCache) Stats() CacheStats {
	c.mu.Lock()
	entries := len(c.entries)
	c.mu.Unlock()
	return CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Entries:   entries,
	}
}
