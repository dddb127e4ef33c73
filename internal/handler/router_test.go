package handler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/insighthub/internal/metrics"
	"github.com/hitoshi/insighthub/internal/middleware"
)

func newTestRouter(t *testing.T, limiter middleware.RateLimiterConfig) (http.Handler, *prometheus.Registry) {
	t.Helper()

	rl := middleware.NewRateLimiter(limiter)
	t.Cleanup(rl.Stop)

	reg := prometheus.NewRegistry()
	router := NewRouter(&RouterDeps{
		Logger:            slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)),
		CORSAllowedOrigin: "*",
		RateLimiter:       rl,
		Metrics:           metrics.NewCollector(reg),
		NewsService: &mockNewsService{
			listPageFn: func(ctx context.Context, rawCursor string) ([]articleResponse, error) {
				return []articleResponse{{Title: "A", Link: "https://example.com/a", Published: "2024-05-01T10:00:00Z"}}, nil
			},
		},
		AccountService: &mockAccountService{},
		DB:             &mockPinger{},
		MetricsHandler: metrics.Handler(reg),
	})
	return router, reg
}

func TestNewRouter_Routes(t *testing.T) {
	router, _ := newTestRouter(t, middleware.NewRateLimiterConfig(600))

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"記事一覧", http.MethodGet, "/api/news", "", http.StatusOK},
		{"ユーザー登録", http.MethodPost, "/register", `{"username":"a","password":"b"}`, http.StatusCreated},
		{"ログイン", http.MethodPost, "/login", `{"username":"a","password":"b"}`, http.StatusOK},
		{"ヘルスチェック", http.MethodGet, "/health", "", http.StatusOK},
		{"メトリクス", http.MethodGet, "/metrics", "", http.StatusOK},
		{"未定義のパス", http.MethodGet, "/api/feeds", "", http.StatusNotFound},
		{"メソッド違い", http.MethodGet, "/login", "", http.StatusMethodNotAllowed},
		{"プリフライト", http.MethodOptions, "/register", "", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("%s %s: status = %d, want %d", tt.method, tt.path, w.Code, tt.wantStatus)
			}
		})
	}
}

func TestNewRouter_AppliesMiddlewareChain(t *testing.T) {
	router, reg := newTestRouter(t, middleware.NewRateLimiterConfig(600))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/news", nil))

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "*")
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want %q", got, "nosniff")
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() != "insighthub_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "route" && lp.GetValue() == "/api/news" {
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("expected insighthub_http_requests_total with route=/api/news")
	}
}

func TestNewRouter_RateLimitExcludesHealth(t *testing.T) {
	router, _ := newTestRouter(t, middleware.RateLimiterConfig{Rate: 0.01, Burst: 1, CleanupInterval: time.Minute})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/news", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first request: status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/news", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second request: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("health: status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestNewRouter_RealIPSeparatesClients(t *testing.T) {
	router, _ := newTestRouter(t, middleware.RateLimiterConfig{Rate: 0.01, Burst: 1, CleanupInterval: time.Minute})

	for _, ip := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest(http.MethodGet, "/api/news", nil)
		req.Header.Set("X-Real-IP", ip)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("client %s: status = %d, want %d", ip, w.Code, http.StatusOK)
		}
	}
}
