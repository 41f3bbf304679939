package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/booklog/internal/model"
)

// newChainRouter は本番と同じ順序でミドルウェアを組んだルーターを返す。
func newChainRouter(t *testing.T) http.Handler {
	t.Helper()
	user := &model.User{ID: "user-router-test", Role: "READER", IsActive: true}
	resolver := resolverFor("router-test-session", user)
	csrfConfig := CSRFConfig{}

	r := chi.NewRouter()
	r.Use(NewRecoveryMiddleware(slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))))
	r.Use(NewSecurityHeadersMiddleware())
	r.Use(NewCORSMiddleware("http://localhost:3000"))
	r.Use(NewLoggingMiddleware(slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))))
	r.Use(NewPrincipalMiddleware(resolver))
	r.Use(NewCSRFMiddleware(csrfConfig))

	r.Get("/api/csrf-token", NewCSRFTokenHandler(csrfConfig).ServeHTTP)
	r.Get("/api/books", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/api/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	r.Group(func(r chi.Router) {
		r.Use(RequireAuthenticated)
		r.Post("/api/profile-delete/request", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := UserIDFromContext(r.Context())
			json.NewEncoder(w).Encode(map[string]string{"user_id": userID})
		})
	})
	return r
}

// TestRouterIntegration_MiddlewareChain はPrincipal -> CSRF -> RequireAuthenticated の
// チェーンがchi.Routerで正しく動作することを検証する。
func TestRouterIntegration_MiddlewareChain(t *testing.T) {
	r := newChainRouter(t)

	t.Run("public GET without session", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/books", nil))
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
		}
		if w.Header().Get("X-Frame-Options") != "DENY" {
			t.Error("security headers should be set")
		}
	})

	t.Run("protected POST with session and csrf", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/profile-delete/request", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "router-test-session"})
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "test-csrf-token"})
		req.Header.Set(csrfHeaderName, "test-csrf-token")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		var body map[string]string
		json.NewDecoder(w.Body).Decode(&body)
		if body["user_id"] != "user-router-test" {
			t.Errorf("user_id = %q, want %q", body["user_id"], "user-router-test")
		}
	})

	t.Run("protected POST with session without csrf", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/profile-delete/request", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "router-test-session"})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
		}
	})

	t.Run("protected POST without session", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/profile-delete/request", nil))

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("csrf token endpoint", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil || body.Token == "" {
			t.Errorf("token = %q, err = %v", body.Token, err)
		}
	})

	t.Run("panic recovered", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/panic", nil))

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
		}
		var body ErrorResponseBody
		json.NewDecoder(w.Body).Decode(&body)
		if body.Code != model.ErrCodeInternal {
			t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInternal)
		}
	})
}
