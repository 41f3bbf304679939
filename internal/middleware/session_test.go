package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/booklog/internal/model"
)

// --- モック定義 ---

type mockPrincipalResolver struct {
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockPrincipalResolver) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, sessionID)
	}
	return nil, nil
}

func resolverFor(sessionID string, user *model.User) *mockPrincipalResolver {
	return &mockPrincipalResolver{
		getCurrentUserFn: func(ctx context.Context, id string) (*model.User, error) {
			if id == sessionID {
				return user, nil
			}
			return nil, nil
		},
	}
}

// serveWithPrincipal はミドルウェアを通し、後段で観測した主体を返す。
func serveWithPrincipal(t *testing.T, resolver PrincipalResolver, cookie *http.Cookie) (*model.User, int) {
	t.Helper()
	var captured *model.User
	called := false
	handler := NewPrincipalMiddleware(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		captured = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !called {
		t.Fatal("handler should be called")
	}
	return captured, w.Code
}

// --- テスト ---

func TestPrincipalMiddleware_ValidSession_InjectsPrincipal(t *testing.T) {
	user := &model.User{ID: "user-123", Role: "READER", IsActive: true}
	resolver := resolverFor("valid-session-id", user)

	var capturedUserID string
	handler := NewPrincipalMiddleware(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := UserIDFromContext(r.Context())
		if err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		capturedUserID = userID
		if PrincipalFromContext(r.Context()) != user {
			t.Error("principal should be injected")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-session-id"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if capturedUserID != "user-123" {
		t.Errorf("userID = %q, want %q", capturedUserID, "user-123")
	}
}

func TestPrincipalMiddleware_Anonymous(t *testing.T) {
	active := &model.User{ID: "user-1", Role: "READER", IsActive: true}
	inactive := &model.User{ID: "user-2", Role: "ADMIN", IsActive: false}

	tests := []struct {
		name     string
		resolver PrincipalResolver
		cookie   *http.Cookie
	}{
		{"no cookie", resolverFor("s", active), nil},
		{"empty cookie", resolverFor("s", active), &http.Cookie{Name: SessionCookieName, Value: ""}},
		{"unknown session", resolverFor("s", active), &http.Cookie{Name: SessionCookieName, Value: "expired"}},
		{"inactive user", resolverFor("s", inactive), &http.Cookie{Name: SessionCookieName, Value: "s"}},
		{"resolver error", &mockPrincipalResolver{
			getCurrentUserFn: func(ctx context.Context, id string) (*model.User, error) {
				return nil, errors.New("database error")
			},
		}, &http.Cookie{Name: SessionCookieName, Value: "s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			principal, status := serveWithPrincipal(t, tt.resolver, tt.cookie)
			if principal != nil {
				t.Errorf("principal = %+v, want anonymous", principal)
			}
			if status != http.StatusOK {
				t.Errorf("status = %d, want %d", status, http.StatusOK)
			}
		})
	}
}

func TestRequireAuthenticated_Anonymous_Returns401(t *testing.T) {
	handler := RequireAuthenticated(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/profile-delete/request", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != model.ErrCodeUnauthorized {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUnauthorized)
	}
}

func TestRequireAuthenticated_Authenticated_PassesThrough(t *testing.T) {
	called := false
	handler := RequireAuthenticated(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/profile-delete/request", nil)
	req = req.WithContext(ContextWithPrincipal(req.Context(), &model.User{ID: "user-1", Role: "READER", IsActive: true}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !called || w.Code != http.StatusNoContent {
		t.Errorf("called = %v, status = %d", called, w.Code)
	}
}

func TestUserIDFromContext_NoUserID_ReturnsError(t *testing.T) {
	_, err := UserIDFromContext(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}
