// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/booklog/internal/model"
	"github.com/hitoshi/booklog/internal/rbac"
)

// SessionCookieName はログインセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// principalContextKey はリクエストの主体（ユーザー）を格納するためのキー。
	principalContextKey = contextKey("principal")
)

// PrincipalResolver はセッションIDから主体を解決するインターフェース。
// auth.ServiceのGetCurrentUserを想定する。セッションがない場合はnilを返す。
type PrincipalResolver interface {
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// NewPrincipalMiddleware はHTTP Only Cookieからセッションを読み取り、
// 主体をリクエストコンテキストに注入するミドルウェアを返す。
// セッションがない・無効・非アクティブなユーザーの場合は匿名として後続に渡す。
// 認証が必要かどうかは各エンドポイントの権限判定に委ねる。
func NewPrincipalMiddleware(resolver PrincipalResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := resolver.GetCurrentUser(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("failed to resolve principal",
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			if rbac.ResolveRole(user) == model.RoleAnon {
				next.ServeHTTP(w, r)
				return
			}

			notePrincipal(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), user)))
		})
	}
}

// RequireAuthenticated は匿名リクエストに401を返すミドルウェア。
// NewPrincipalMiddlewareの後段に置く。
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFromContext(r.Context()) == nil {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PrincipalFromContext はリクエストコンテキストから主体を取得する。
// 匿名リクエストの場合はnilを返す。
func PrincipalFromContext(ctx context.Context) *model.User {
	user, _ := ctx.Value(principalContextKey).(*model.User)
	return user
}

// ContextWithPrincipal はコンテキストに主体とそのユーザーIDを注入する。
func ContextWithPrincipal(ctx context.Context, user *model.User) context.Context {
	ctx = context.WithValue(ctx, principalContextKey, user)
	return ContextWithUserID(ctx, user.ID)
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証済みのリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
