package throttle

import (
	"context"
	"errors"
	"fmt"

	"github.com/dascribs/authcore/internal/common"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "authcore:login:"

// RedisLimiter shares counters between server replicas. The window starts at
// the first failure: INCR and EXPIRE NX run in one MULTI/EXEC, so a counter
// never lives without a TTL and later failures do not extend it.
type RedisLimiter struct {
	rdb redis.UniversalClient
	cfg Config
}

// NewRedisLimiter constructs a RedisLimiter that keeps its counters in rdb.
func NewRedisLimiter(rdb redis.UniversalClient, cfg Config) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, cfg: cfg}
}

func (l *RedisLimiter) Check(ctx context.Context, key string) error {
	count, err := l.rdb.Get(ctx, keyPrefix+key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count >= int64(l.cfg.MaxAttempts) {
		return common.ErrRateLimited
	}
	return nil
}

func (l *RedisLimiter) Fail(ctx context.Context, key string) error {
	k := keyPrefix + key
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, l.cfg.Window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.rdb.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
