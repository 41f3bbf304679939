package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/booklog/internal/model"
	"github.com/hitoshi/booklog/internal/rbac"
)

// RequestIDHeader はレスポンスに付与するリクエストIDのヘッダー名。
const RequestIDHeader = "X-Request-ID"

// requestPrincipal は後段で解決された主体をアクセスログへ渡す入れ物。
type requestPrincipal struct {
	user *model.User
}

var requestPrincipalKey = contextKey("request_principal")

// notePrincipal はアクセスログ用に主体を記録する。ロギングミドルウェアの外では何もしない。
func notePrincipal(ctx context.Context, user *model.User) {
	if rp, ok := ctx.Value(requestPrincipalKey).(*requestPrincipal); ok {
		rp.user = user
	}
}

// accessLogLevel はステータスコードからログレベルを決める。
func accessLogLevel(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// NewLoggingMiddleware はリクエストごとにJSONアクセスログを1行出力するミドルウェアを返す。
// request_id, method, path, status, bytes, duration_msを必ず含み、
// 主体がいればuser_idとroleを加える。chiのRequestIDの後段に置く。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := chimw.GetReqID(r.Context())
			if reqID != "" {
				w.Header().Set(RequestIDHeader, reqID)
			}

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			rp := &requestPrincipal{}
			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), requestPrincipalKey, rp)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			attrs := []slog.Attr{
				slog.String("request_id", reqID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
			}
			switch {
			case rp.user != nil:
				attrs = append(attrs,
					slog.String("user_id", rp.user.ID),
					slog.String("role", string(rbac.ResolveRole(rp.user))),
				)
			default:
				if userID, err := UserIDFromContext(r.Context()); err == nil {
					attrs = append(attrs, slog.String("user_id", userID))
				}
			}

			logger.LogAttrs(r.Context(), accessLogLevel(status), "http_request", attrs...)
		})
	}
}
