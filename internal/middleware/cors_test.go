package middleware

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func corsRequest(method, origin string) *http.Request {
	req := httptest.NewRequest(method, "/api/books", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

func TestParseAllowedOrigins(t *testing.T) {
	got := ParseAllowedOrigins(" https://app.example.com/ ,,http://localhost:3000")
	want := []string{"https://app.example.com", "http://localhost:3000"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("origins = %v, want %v", got, want)
	}
	if got := ParseAllowedOrigins(""); len(got) != 0 {
		t.Errorf("origins = %v, want empty", got)
	}
}

func TestCORSMiddleware_AllowedOrigin(t *testing.T) {
	handler := NewCORSMiddleware("http://localhost:3000, https://app.example.com")(okHandler())

	for _, origin := range []string{"http://localhost:3000", "https://app.example.com"} {
		t.Run(origin, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, corsRequest(http.MethodGet, origin))

			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
			}
			want := map[string]string{
				"Access-Control-Allow-Origin":      origin,
				"Access-Control-Allow-Methods":     corsAllowMethods,
				"Access-Control-Allow-Headers":     corsAllowHeaders,
				"Access-Control-Allow-Credentials": "true",
				"Vary":                             "Origin",
			}
			for header, value := range want {
				if got := w.Header().Get(header); got != value {
					t.Errorf("%s = %q, want %q", header, got, value)
				}
			}
		})
	}
}

func TestCORSMiddleware_UnknownOrigin_NoCORSHeaders(t *testing.T) {
	handler := NewCORSMiddleware("http://localhost:3000")(okHandler())

	for _, origin := range []string{"https://evil.example.com", ""} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, corsRequest(http.MethodPost, origin))

		if w.Code != http.StatusOK {
			t.Errorf("origin %q: status = %d, want %d", origin, w.Code, http.StatusOK)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("origin %q: Access-Control-Allow-Origin = %q, want empty", origin, got)
		}
		if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "" {
			t.Errorf("origin %q: Access-Control-Allow-Credentials = %q, want empty", origin, got)
		}
	}
}

func TestCORSMiddleware_Preflight_Returns204(t *testing.T) {
	called := false
	handler := NewCORSMiddleware("http://localhost:3000")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := corsRequest(http.MethodOptions, "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if called {
		t.Error("next handler should not be called for preflight")
	}
	if got := w.Header().Get("Access-Control-Max-Age"); got != corsMaxAge {
		t.Errorf("Access-Control-Max-Age = %q, want %q", got, corsMaxAge)
	}
}

func TestCORSMiddleware_PlainOptions_PassesThrough(t *testing.T) {
	called := false
	handler := NewCORSMiddleware("http://localhost:3000")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, corsRequest(http.MethodOptions, ""))

	if !called {
		t.Error("OPTIONS without preflight headers should reach the handler")
	}
}
