package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/booklog/internal/middleware"
	"github.com/hitoshi/booklog/internal/model"
)

var (
	testReader     = &model.User{ID: "00000000-0000-0000-0000-0000000000a1", Username: "reader", Email: "reader@example.com", Role: "READER", IsActive: true}
	testJournalist = &model.User{ID: "00000000-0000-0000-0000-0000000000a2", Username: "journo", Email: "journo@example.com", Role: "JOURNALIST", IsActive: true}
	testStaff      = &model.User{ID: "00000000-0000-0000-0000-0000000000a3", Username: "staff", Email: "staff@example.com", Role: "STAFF", IsActive: true, IsStaff: true}
)

// newJSONRequest はJSONボディ付きのリクエストを生成する。principalがnilなら匿名。
func newJSONRequest(method, target, body string, principal *model.User) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if principal != nil {
		req = req.WithContext(middleware.ContextWithPrincipal(req.Context(), principal))
	}
	return req
}

// serveRoutes はchiルーターにマウントしたハンドラーへリクエストを送る。
func serveRoutes(mount func(r chi.Router), req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	mount(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v (body=%q)", err, w.Body.String())
	}
	return v
}

// assertError はステータスとエラーコードを検証する。
func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d (body=%s)", w.Code, status, w.Body.String())
	}
	body := decodeBody[middleware.ErrorResponseBody](t, w)
	if body.Code != code {
		t.Errorf("code = %q, want %q", body.Code, code)
	}
}
