package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/booklog/internal/model"
)

// KeyedLimiter はキーごとにリクエストの可否を判定するレートリミッター。
// 拒否した場合は再試行までの推定待ち時間を返す。
type KeyedLimiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）
	GeneralBurst    int           // API全般のバーストサイズ
	AccountRate     rate.Limit    // アカウント操作（登録・ログイン・トークン発行）のレート（req/sec）
	AccountBurst    int           // アカウント操作のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min、アカウント操作 10 req/hour。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0),
		GeneralBurst:    120,
		AccountRate:     rate.Limit(10.0 / 3600.0),
		AccountBurst:    10,
		CleanupInterval: 5 * time.Minute,
	}
}

// keyedEntry はキーごとのレートリミッターとアクセス時刻を保持する。
type keyedEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// memoryLimiter はプロセス内のトークンバケットによるKeyedLimiter。
type memoryLimiter struct {
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

func newMemoryLimiter(limit rate.Limit, burst int) *memoryLimiter {
	return &memoryLimiter{limit: limit, burst: burst, entries: make(map[string]*keyedEntry)}
}

// Allow はキーのバケットからトークンを1つ消費する。
func (m *memoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &keyedEntry{limiter: rate.NewLimiter(m.limit, m.burst)}
		m.entries[key] = e
	}
	e.lastAccess = time.Now()
	m.mu.Unlock()

	if e.limiter.Allow() {
		return true, 0, nil
	}
	return false, refillInterval(m.limit), nil
}

func (m *memoryLimiter) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// sweep は最終アクセスからttlを超えたエントリを削除する。
func (m *memoryLimiter) sweep(now time.Time, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, e := range m.entries {
		if now.Sub(e.lastAccess) > ttl {
			delete(m.entries, key)
		}
	}
}

// refillInterval は1トークンが補充されるまでの時間を返す。
func refillInterval(limit rate.Limit) time.Duration {
	if limit <= 0 {
		return time.Second
	}
	return time.Duration(math.Round(float64(time.Second) / float64(limit)))
}

// RateLimiter は主体（未認証の場合はクライアントIP）ごとのレート制限を管理する。
// API全般とアカウント操作の2段階を提供する。
type RateLimiter struct {
	config RateLimiterConfig

	general *memoryLimiter
	account *memoryLimiter
	// accountStore はアカウント操作の判定に使うリミッター。既定はaccount。
	accountStore KeyedLimiter

	stopCh chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		general: newMemoryLimiter(config.GeneralRate, config.GeneralBurst),
		account: newMemoryLimiter(config.AccountRate, config.AccountBurst),
		stopCh:  make(chan struct{}),
	}
	rl.accountStore = rl.account

	go rl.cleanupLoop()

	return rl
}

// WithAccountLimiter はアカウント操作のリミッターを差し替える。
// 複数インスタンス間で制限を共有する場合にRedisWindowLimiterを渡す。
func (rl *RateLimiter) WithAccountLimiter(l KeyedLimiter) *RateLimiter {
	rl.accountStore = l
	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// NewPrincipalMiddlewareの後段に配置する。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return limitMiddleware("general", rl.general)
}

// AccountActionsMiddleware は登録・ログイン・アカウント操作トークン発行用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) AccountActionsMiddleware() func(next http.Handler) http.Handler {
	return limitMiddleware("account_actions", rl.accountStore)
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.size()
}

// AccountLimiterCount は現在管理されているアカウント操作リミッターのエントリ数を返す。
func (rl *RateLimiter) AccountLimiterCount() int {
	return rl.account.size()
}

func limitMiddleware(limitType string, limiter KeyedLimiter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitKey(r)
			allowed, retryAfter, err := limiter.Allow(r.Context(), limitType+":"+key)
			if err != nil {
				// ストア障害時は制限せずに通す
				slog.Warn("rate limiter unavailable",
					slog.String("limit_type", limitType),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				slog.Warn("rate limit exceeded",
					slog.String("key", key),
					slog.String("limit_type", limitType),
				)
				writeRateLimitResponse(w, retryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitKey は認証済みならユーザーID、匿名ならクライアントIPからキーを作る。
// RemoteAddrはchiのRealIPミドルウェアで補正されている前提。
func rateLimitKey(r *http.Request) string {
	if userID, err := UserIDFromContext(r.Context()); err == nil {
		return "user:" + userID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := time.Now()
	rl.general.sweep(now, ttl)
	rl.account.sweep(now, ttl)
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーには再試行までの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, retryAfter time.Duration) {
	retryAfterSec := int(math.Ceil(retryAfter.Seconds()))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
}
