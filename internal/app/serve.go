package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/hitoshi/booklog/internal/account"
	"github.com/hitoshi/booklog/internal/auth"
	"github.com/hitoshi/booklog/internal/config"
	"github.com/hitoshi/booklog/internal/database"
	"github.com/hitoshi/booklog/internal/handler"
	"github.com/hitoshi/booklog/internal/journal"
	"github.com/hitoshi/booklog/internal/metrics"
	"github.com/hitoshi/booklog/internal/middleware"
	"github.com/hitoshi/booklog/internal/notify"
	"github.com/hitoshi/booklog/internal/password"
	"github.com/hitoshi/booklog/internal/repository"
	"github.com/hitoshi/booklog/internal/security"
	"github.com/hitoshi/booklog/internal/token"
	"github.com/hitoshi/booklog/internal/user"
)

// accountLimiterPrefix はRedis上のアカウント操作レート制限キーの接頭辞。
const accountLimiterPrefix = "booklog:ratelimit"

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. 通知の送信手段
	sender, closeSender, err := newSender(cfg)
	if err != nil {
		return err
	}
	defer closeSender()

	// 3. 複数インスタンス共有のレート制限ストア
	var limiterStore redis.Scripter
	if cfg.RedisAddr != "" {
		client := newRedisClient(cfg)
		defer client.Close()
		limiterStore = client
	}

	// 4. ルーターの構築
	router, stop := newServerHandler(cfg, db, sender, limiterStore, prometheus.NewRegistry())
	defer stop()

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// newServerHandler はリポジトリ・サービス・ハンドラーを組み立ててルーターを返す。
// 返り値のstopはレートリミッターのバックグラウンド処理を停止する。
// limiterStoreがnilの場合、アカウント操作のレート制限はプロセス内で完結する。
func newServerHandler(
	cfg *config.Config,
	db *sql.DB,
	sender notify.Sender,
	limiterStore redis.Scripter,
	reg *prometheus.Registry,
) (http.Handler, func()) {
	collector := metrics.NewCollector(reg)

	// リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)

	// 横断的な依存
	hasher := password.NewHasher(cfg.BcryptCost)
	sanitizer := security.NewTextSanitizer()

	// ドメインサービスの初期化
	authService := auth.NewService(userRepo, sessionRepo, hasher,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	).WithEmailVerification(auth.EmailVerification{
		Tokens: token.NewEmailConfirmTokens(cfg.SecretKey),
		Sender: sender,
		Links:  notify.Links{FrontendURL: cfg.FrontendURL},
		MaxAge: cfg.EmailConfirmExpiry,
	})
	userService := user.NewService(userRepo, sessionRepo, sanitizer, collector)
	journalService := journal.NewService(journal.Deps{
		Authors:   repository.NewPostgresAuthorRepo(db),
		Genres:    repository.NewPostgresGenreRepo(db),
		Books:     repository.NewPostgresBookRepo(db),
		Logs:      repository.NewPostgresBookLogRepo(db),
		Quotes:    repository.NewPostgresQuoteRepo(db),
		Likes:     repository.NewPostgresLikeRepo(db),
		Shares:    repository.NewPostgresShareRepo(db),
		Sanitizer: sanitizer,
		Metrics:   collector,
	})
	accountService := account.NewService(account.Deps{
		Users:          userRepo,
		EmailChanges:   repository.NewPostgresEmailChangeRepo(db),
		PasswordResets: repository.NewPostgresPasswordResetRepo(db),
		Sender:         sender,
		Links:          notify.Links{FrontendURL: cfg.FrontendURL},
		Hasher:         hasher,
		Tokens:         token.NewDeletionTokens(cfg.SecretKey),
		Withdrawer:     userService,
		Metrics:        collector,
	}, account.Config{
		RequestTTL:     cfg.AccountRequestTTL,
		DeletionMaxAge: cfg.DeletionTokenExpiry,
	})

	// レートリミッター
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	if limiterStore != nil {
		rateLimiter.WithAccountLimiter(middleware.NewRedisWindowLimiter(
			limiterStore, accountLimiterPrefix, cfg.RateLimitAccountActions, time.Hour,
		))
	}

	journalAdapter := handler.NewJournalServiceAdapter(journalService)
	deps := &handler.RouterDeps{
		HealthChecker:     db,
		Resolver:          authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,
		Logger:      slog.Default(),
		Metrics:     collector,
		Gatherer:    reg,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		UserService:    userService,
		AccountService: accountService,

		CatalogueService: journalAdapter,
		JournalService:   journalAdapter,
	}

	return handler.NewRouter(deps), rateLimiter.Stop
}

// rateLimiterConfig は設定値（req/min, req/hour）をトークンバケットのレートに変換する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rl := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rl.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rl.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitAccountActions > 0 {
		rl.AccountRate = rate.Limit(float64(cfg.RateLimitAccountActions) / 3600.0)
		rl.AccountBurst = cfg.RateLimitAccountActions
	}
	return rl
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return db, nil
}

// newRedisClient はRedisクライアントを生成する。
// 接続できなくても起動は継続する（レート制限は障害時に通過させる）。
func newRedisClient(cfg *config.Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("redis is unreachable, account rate limiting will fail open",
			slog.String("addr", cfg.RedisAddr),
			slog.String("error", err.Error()),
		)
	} else {
		slog.Info("redis connection established", slog.String("addr", cfg.RedisAddr))
	}
	return client
}

// newSender はNOTIFY_BACKENDに応じたメール送信手段を返す。
// 返り値のcloseは接続を保持するバックエンドの後始末を行う。
func newSender(cfg *config.Config) (notify.Sender, func(), error) {
	switch cfg.NotifyBackend {
	case config.NotifyBackendSMTP:
		return notify.NewSMTPSender(smtpConfig(cfg)), func() {}, nil
	case config.NotifyBackendAMQP:
		conn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to message broker: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("failed to open broker channel: %w", err)
		}
		publisher, err := notify.NewQueuePublisher(ch, cfg.MailQueue)
		if err != nil {
			ch.Close()
			conn.Close()
			return nil, nil, err
		}
		slog.Info("mail queue publisher ready", slog.String("queue", cfg.MailQueue))
		return publisher, func() {
			ch.Close()
			conn.Close()
		}, nil
	default:
		return notify.NewLogSender(), func() {}, nil
	}
}

func smtpConfig(cfg *config.Config) notify.SMTPConfig {
	return notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.DefaultFromEmail,
	}
}
