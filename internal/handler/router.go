package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/booklog/internal/metrics"
	"github.com/hitoshi/booklog/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	Resolver          middleware.PrincipalResolver
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	Gatherer          prometheus.Gatherer

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ユーザー・アカウント操作
	UserService    UserServiceInterface
	AccountService AccountServiceInterface

	// カタログ・読書記録
	CatalogueService CatalogueServiceInterface
	JournalService   JournalServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Recovery → SecurityHeaders → CORS → Metrics → Logging → Principal → CSRF → RateLimit(General)
//
// 主体の解決は任意で、認証の要否は各エンドポイントの権限判定に委ねる。
// 登録・ログイン・トークン発行にはアカウント操作用のレート制限を追加で適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	// --- 運用エンドポイント（主体の解決・レート制限の外側） ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService)
	accountHandler := NewAccountHandler(deps.AccountService)
	catalogueHandler := NewCatalogueHandler(deps.CatalogueService)
	journalHandler := NewJournalHandler(deps.JournalService)

	throttled := deps.RateLimiter.AccountActionsMiddleware()

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
		r.Use(middleware.NewPrincipalMiddleware(deps.Resolver))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		// 認証
		r.Route("/auth", func(r chi.Router) {
			r.With(throttled).Post("/register", authHandler.Register)
			r.With(throttled).Post("/login", authHandler.Login)
			r.With(throttled).Post("/confirm-email", authHandler.ConfirmEmail)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})

		userHandler.Routes(r)
		accountHandler.Routes(r, middleware.RequireAuthenticated, throttled)
		catalogueHandler.Routes(r)
		journalHandler.Routes(r)
	})

	return r
}
