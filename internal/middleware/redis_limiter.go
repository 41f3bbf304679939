package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// windowScript は固定ウィンドウのカウンターを進め、現在のカウントと残りTTL（ミリ秒）を返す。
var windowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {count, ttl}
`)

// RedisWindowLimiter はRedisの固定ウィンドウカウンターによるKeyedLimiter。
// 複数のAPIインスタンスでアカウント操作の制限を共有する。
type RedisWindowLimiter struct {
	client redis.Scripter
	prefix string
	limit  int
	window time.Duration
}

// NewRedisWindowLimiter はwindowあたりlimit回までを許可するリミッターを生成する。
func NewRedisWindowLimiter(client redis.Scripter, prefix string, limit int, window time.Duration) *RedisWindowLimiter {
	return &RedisWindowLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

// Allow はキーのカウンターを進め、ウィンドウ内の上限を超えていないかを返す。
func (l *RedisWindowLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	res, err := windowScript.Run(ctx, l.client, []string{l.prefix + ":" + key}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("failed to run rate limit script: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("unexpected rate limit script result: %v", res)
	}

	count, ttl := res[0], res[1]
	if count > int64(l.limit) {
		retryAfter := time.Duration(ttl) * time.Millisecond
		if retryAfter <= 0 {
			retryAfter = l.window
		}
		return false, retryAfter, nil
	}
	return true, 0, nil
}
