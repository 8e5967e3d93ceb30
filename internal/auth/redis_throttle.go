package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	attemptKeyPrefix = "login:attempts:"
	lockKeyPrefix    = "login:lock:"
)

// RedisThrottle は複数インスタンス間で失敗回数を共有する Throttle です。
type RedisThrottle struct {
	rdb *redis.Client
}

// NewRedisThrottle は REDIS_URL から RedisThrottle を作成します。
func NewRedisThrottle(redisURL string) (*RedisThrottle, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisThrottle{rdb: redis.NewClient(opt)}, nil
}

func (t *RedisThrottle) Locked(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := t.rdb.PTTL(ctx, lockKeyPrefix+key).Result()
	if err != nil {
		return 0, err
	}
	// キーが無い場合は -2、期限なしの場合は -1 が返る
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (t *RedisThrottle) Fail(ctx context.Context, key string) (int, error) {
	attemptKey := attemptKeyPrefix + key

	tx := t.rdb.TxPipeline()
	incr := tx.Incr(ctx, attemptKey)
	tx.ExpireNX(ctx, attemptKey, loginWindow)
	if _, err := tx.Exec(ctx); err != nil {
		return 0, err
	}

	count := int(incr.Val())
	if count >= maxLoginAttempts {
		lock := t.rdb.TxPipeline()
		lock.Set(ctx, lockKeyPrefix+key, 1, lockDuration)
		lock.Del(ctx, attemptKey)
		if _, err := lock.Exec(ctx); err != nil {
			return 0, err
		}
		return 0, nil
	}
	return maxLoginAttempts - count, nil
}

func (t *RedisThrottle) Reset(ctx context.Context, key string) error {
	return t.rdb.Del(ctx, attemptKeyPrefix+key, lockKeyPrefix+key).Err()
}

// Close は Redis 接続を閉じます。
func (t *RedisThrottle) Close() error {
	return t.rdb.Close()
}
