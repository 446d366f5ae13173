// Package cache holds the redis-backed completion summary cache. Summaries
// are derived data: a cache failure is only ever a miss, never an error
// surfaced to the caller.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"stageflow/internal/progression"
)

type SummaryCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewSummaryCache(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *SummaryCache {
	return &SummaryCache{rdb: rdb, ttl: ttl, logger: logger}
}

func summaryKey(project string) string {
	return fmt.Sprintf("summary:%s", project)
}

func (c *SummaryCache) Get(ctx context.Context, project string) (*progression.Summary, bool) {
	data, err := c.rdb.Get(ctx, summaryKey(project)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("Summary cache read failed",
				zap.String("project", project),
				zap.Error(err),
			)
		}
		return nil, false
	}
	var s progression.Summary
	if err := json.Unmarshal(data, &s); err != nil {
		c.logger.Warn("Summary cache entry corrupt, dropping",
			zap.String("project", project),
			zap.Error(err),
		)
		c.Invalidate(ctx, project)
		return nil, false
	}
	return &s, true
}

func (c *SummaryCache) Set(ctx context.Context, project string, s progression.Summary) {
	data, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, summaryKey(project), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Summary cache write failed",
			zap.String("project", project),
			zap.Error(err),
		)
	}
}

func (c *SummaryCache) Invalidate(ctx context.Context, project string) {
	if err := c.rdb.Del(ctx, summaryKey(project)).Err(); err != nil {
		c.logger.Warn("Summary cache invalidation failed",
			zap.String("project", project),
			zap.Error(err),
		)
	}
}
