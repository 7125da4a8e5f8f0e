package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: nil,
	}
}

// NewDeduperWithLogger creates a deduper with logger support
func NewDeduperWithLogger(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// AcquireOnce tries to acquire a dedup lock for a given handler + emailID
// returns true if this is the FIRST time processing
// returns false if it's a duplicate
func (d *Deduper) AcquireOnce(ctx context.Context, handler string, emailID int64) bool {
	key := fmt.Sprintf("dedup:%s:%d", handler, emailID)
	return d.acquire(ctx, handler, key)
}

// AcquireOnceKey is AcquireOnce for string-keyed identities, such as
// provider message ids seen during inbox sync.
func (d *Deduper) AcquireOnceKey(ctx context.Context, handler, id string) bool {
	key := fmt.Sprintf("dedup:%s:%s", handler, id)
	return d.acquire(ctx, handler, key)
}

// Release drops the dedup lock so a failed message can be reprocessed on
// redelivery.
func (d *Deduper) Release(ctx context.Context, handler string, emailID int64) {
	d.release(ctx, handler, fmt.Sprintf("dedup:%s:%d", handler, emailID))
}

// ReleaseKey is Release for string-keyed identities.
func (d *Deduper) ReleaseKey(ctx context.Context, handler, id string) {
	d.release(ctx, handler, fmt.Sprintf("dedup:%s:%s", handler, id))
}

func (d *Deduper) release(ctx context.Context, handler, key string) {
	if err := d.rdb.Del(ctx, key).Err(); err != nil && d.logger != nil {
		d.logger.Warn("Failed to release dedup lock",
			zap.String("handler", handler),
			zap.String("dedup_key", key),
			zap.Error(err),
		)
	}
}

func (d *Deduper) acquire(ctx context.Context, handler, key string) bool {
	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		// Redis 挂了？为了安全：当 redis 不可用时，不阻止处理，返回 true
		if d.logger != nil {
			d.logger.Warn("Redis dedup check failed, allowing processing",
				zap.String("handler", handler),
				zap.String("dedup_key", key),
				zap.Error(err),
			)
		}
		return true
	}

	if !ok && d.logger != nil {
		d.logger.Info("Skipped duplicated event",
			zap.String("handler", handler),
			zap.String("dedup_key", key),
		)
	}

	return ok
}
