// Package cache is a Redis read-through cache for scheduled-item listings.
// Concurrent misses for the same surface and date collapse into one store
// query via singleflight; schedule mutations invalidate the affected surface.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/curation-tools/corpus-platform/internal/curation"
	"github.com/curation-tools/corpus-platform/internal/events"
	"github.com/curation-tools/corpus-platform/pkg/config"
	"github.com/curation-tools/corpus-platform/pkg/metrics"
	pkgredis "github.com/curation-tools/corpus-platform/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "schedule:"

type ScheduleCache struct {
	client  *pkgredis.Client
	cfg     config.RedisConfig
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(client *pkgredis.Client, cfg config.RedisConfig, m *metrics.Metrics) *ScheduleCache {
	return &ScheduleCache{
		client:  client,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "schedule-cache"),
	}
}

// Get returns the cached listing for a surface and date, if present.
func (c *ScheduleCache) Get(ctx context.Context, surfaceGUID string, date time.Time) ([]curation.ScheduledItem, bool) {
	key := c.buildKey(surfaceGUID, date)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.metrics.CacheMissesTotal.Inc()
		return nil, false
	}
	var items []curation.ScheduledItem
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.metrics.CacheMissesTotal.Inc()
		return nil, false
	}
	c.metrics.CacheHitsTotal.Inc()
	c.logger.Debug("cache hit", "key", key)
	return items, true
}

// Set stores a listing with the configured TTL.
func (c *ScheduleCache) Set(ctx context.Context, surfaceGUID string, date time.Time, items []curation.ScheduledItem) {
	key := c.buildKey(surfaceGUID, date)
	data, err := json.Marshal(items)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached listing or computes and caches it,
// collapsing concurrent misses for the same key.
func (c *ScheduleCache) GetOrCompute(
	ctx context.Context,
	surfaceGUID string,
	date time.Time,
	computeFn func() ([]curation.ScheduledItem, error),
) ([]curation.ScheduledItem, bool, error) {
	if items, ok := c.Get(ctx, surfaceGUID, date); ok {
		return items, true, nil
	}
	key := c.buildKey(surfaceGUID, date)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if items, ok := c.Get(ctx, surfaceGUID, date); ok {
			return items, nil
		}
		items, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, surfaceGUID, date, items)
		return items, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]curation.ScheduledItem), false, nil
}

// InvalidateSurface drops every cached listing for a surface.
func (c *ScheduleCache) InvalidateSurface(ctx context.Context, surfaceGUID string) {
	pattern := keyPrefix + surfaceGUID + ":*"
	deleted, err := c.client.FlushByPattern(ctx, pattern)
	if err != nil {
		c.logger.Error("cache invalidation failed", "pattern", pattern, "error", err)
		return
	}
	c.logger.Debug("cache invalidated", "surface", surfaceGUID, "keys", deleted)
}

func (c *ScheduleCache) buildKey(surfaceGUID string, date time.Time) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, surfaceGUID, date.UTC().Format(events.ScheduledDateLayout))
}
