package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sourcetrader/internal/config"
	"sourcetrader/internal/models"
	"sourcetrader/internal/service"
	"sourcetrader/internal/telegram"
	"sourcetrader/pkg/utils"
)

type stubSignals struct{ ingested int }

func (s *stubSignals) Ingest(ctx context.Context, req service.IngestRequest) (*service.IngestResult, error) {
	s.ingested++
	return &service.IngestResult{ID: int64(s.ingested)}, nil
}

func (s *stubSignals) Recent(ctx context.Context, limit int) ([]*models.Signal, error) {
	return nil, nil
}

type stubStats struct{}

func (stubStats) Backfill(ctx context.Context) (int, error) { return 0, nil }

func (stubStats) GetWindowStats(ctx context.Context, days int) (*models.WindowStats, error) {
	return &models.WindowStats{Days: days}, nil
}

func (stubStats) GetPerformance(ctx context.Context) (*models.Performance, error) {
	return &models.Performance{}, nil
}

type stubSummary struct{}

func (stubSummary) Trigger(ctx context.Context) (*models.SummaryResult, error) {
	return &models.SummaryResult{Status: models.SummaryTooEarly}, nil
}

type stubBot struct{}

func (stubBot) HandleUpdate(ctx context.Context, update *telegram.Update) error { return nil }

func newTestRouter() http.Handler {
	return SetupRoutes(&Dependencies{
		SignalService:  &stubSignals{},
		StatsService:   stubStats{},
		SummaryService: stubSummary{},
		BotService:     stubBot{},
		Security: config.SecurityConfig{
			WebhookSecret: "hook",
			CronToken:     "cron",
			AdminToken:    "admin",
		},
		Logger: utils.NewNopLogger(),
	})
}

func TestSetupRoutes(t *testing.T) {
	router := newTestRouter()

	tests := []struct {
		name         string
		method       string
		target       string
		body         string
		expectStatus int
		expectBody   string
	}{
		{"health", http.MethodGet, "/health", "", http.StatusOK, "ok"},
		{"health head", http.MethodHead, "/health", "", http.StatusOK, ""},
		{"root not found", http.MethodGet, "/", "", http.StatusNotFound, "not found"},
		{"webhook", http.MethodPost, "/tv", `{"symbol":"BTCUSDT","side":"LONG","price":1,"time":"2024-01-15T10:00:00Z","secret":"hook"}`, http.StatusOK, `"ok":true`},
		{"webhook api alias", http.MethodPost, "/api/v1/webhook", `{"secret":"hook"}`, http.StatusOK, `"ok":true`},
		{"webhook wrong method", http.MethodGet, "/tv", "", http.StatusMethodNotAllowed, ""},
		{"cron ok", http.MethodGet, "/cron?token=cron", "", http.StatusOK, "too_early"},
		{"cron head", http.MethodHead, "/cron?token=cron", "", http.StatusOK, ""},
		{"cron admin token rejected", http.MethodGet, "/cron?token=admin", "", http.StatusForbidden, "forbidden"},
		{"admin page", http.MethodGet, "/admin?token=admin", "", http.StatusOK, "Latest signals"},
		{"admin forbidden", http.MethodGet, "/admin?token=x", "", http.StatusForbidden, "<h3>Forbidden</h3>"},
		{"stats without token", http.MethodGet, "/api/v1/stats", "", http.StatusForbidden, "forbidden"},
		{"stats with token", http.MethodGet, "/api/v1/stats?token=admin", "", http.StatusOK, "day"},
		{"window with token", http.MethodGet, "/api/v1/stats/window?days=7&token=admin", "", http.StatusOK, `"days":7`},
		{"signals with token", http.MethodGet, "/api/v1/signals?token=admin", "", http.StatusOK, "[]"},
		{"telegram", http.MethodPost, "/tg/webhook", `{"update_id":1}`, http.StatusOK, `"ok":true`},
		{"metrics", http.MethodGet, "/metrics", "", http.StatusOK, "sourcetrader_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.expectStatus {
				t.Fatalf("%s %s: expected status %d, got %d (%s)", tt.method, tt.target, tt.expectStatus, w.Code, w.Body.String())
			}
			if tt.expectBody != "" && !strings.Contains(w.Body.String(), tt.expectBody) {
				t.Errorf("%s %s: body %q missing %q", tt.method, tt.target, w.Body.String(), tt.expectBody)
			}
		})
	}
}

func TestSetupRoutes_NilDependencies(t *testing.T) {
	router := SetupRoutes(nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("health: expected status %d, got %d", http.StatusOK, w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/tv", strings.NewReader("{}")))
	if w.Code != http.StatusNotFound {
		t.Errorf("webhook without service: expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestSetupRoutes_CORS(t *testing.T) {
	router := SetupRoutes(&Dependencies{
		StatsService: stubStats{},
		Security:     config.SecurityConfig{AdminToken: "admin", AllowedOrigins: []string{"https://admin.example.com"}},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats?token=admin", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://admin.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
