package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper suppresses duplicate notification deliveries using a redis SETNX
// marker with a TTL.
type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// IsDuplicate returns true if the key has already been seen within the TTL.
// On redis failure it returns false: a duplicate email beats a dropped one.
func (d *Deduper) IsDuplicate(ctx context.Context, key string) bool {
	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("Deduper redis error, treating as not duplicate",
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return false
	}
	return !ok
}

// FormatNotificationKey builds a dedupe key for a notification event.
func FormatNotificationKey(kind, project string, stage int, recipient string) string {
	return fmt.Sprintf("dedupe:%s:%s:%d:%s", kind, project, stage, recipient)
}
