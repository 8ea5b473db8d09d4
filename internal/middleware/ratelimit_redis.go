package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindowLimiter はRedisの固定ウィンドウカウンタによるAuthLimiter実装。
// 複数インスタンス間で同じ上限を共有する。
type RedisWindowLimiter struct {
	client redis.Cmdable
	prefix string
	limit  int64
	window time.Duration
}

// NewRedisWindowLimiter はRedisWindowLimiterを生成する。
func NewRedisWindowLimiter(client redis.Cmdable, prefix string, limit int, window time.Duration) *RedisWindowLimiter {
	return &RedisWindowLimiter{client: client, prefix: prefix, limit: int64(limit), window: window}
}

// AllowAuth はキーのカウンタを増やし、ウィンドウ内の上限以内かを返す。
// カウンタの有効期限は最初のリクエストでのみ設定する。
func (l *RedisWindowLimiter) AllowAuth(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.ExpireNX(ctx, redisKey, l.window)
		ttl = pipe.TTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("failed to update rate limit counter: %w", err)
	}

	if incr.Val() <= l.limit {
		return true, 0, nil
	}
	wait := ttl.Val()
	if wait <= 0 {
		wait = l.window
	}
	return false, wait, nil
}
