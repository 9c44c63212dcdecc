package api

import (
	"net/http"
	"time"

	"sourcetrader/internal/api/handlers"
	"sourcetrader/internal/api/middleware"
	"sourcetrader/internal/config"
	"sourcetrader/internal/metrics"
	"sourcetrader/internal/service"
	"sourcetrader/internal/websocket"
	"sourcetrader/pkg/utils"

	"github.com/gorilla/mux"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	SignalService  service.SignalServiceInterface
	StatsService   service.StatsServiceInterface
	SummaryService service.SummaryServiceInterface
	BotService     service.BotServiceInterface
	Hub            *websocket.Hub
	DB             handlers.Pinger
	Security       config.SecurityConfig
	Location       *time.Location // часовой пояс дат в админке
	Logger         *utils.Logger
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
//	├── POST /tv - сигнал от источника (secret в теле)
//	├── GET|HEAD /cron?token= - backfill PnL и дневная сводка (CRON_TOKEN)
//	├── GET /admin?token= - HTML с последними сигналами (ADMIN_PANEL_TOKEN)
//	├── POST /tg/webhook - обновления Telegram
//	├── GET|HEAD /health
//	├── GET /metrics
//	└── GET /ws/stream?token= - live-лента (ADMIN_PANEL_TOKEN)
//
// /api/v1/ (ADMIN_PANEL_TOKEN, кроме webhook)
//
//	├── POST /webhook - то же, что /tv
//	├── /stats/
//	│   ├── GET / - день, неделя, месяц
//	│   └── GET /window?days=N - произвольное окно
//	└── GET /signals?limit=N - последние сигналы
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. TokenAuth (только для защищенных маршрутов)
func SetupRoutes(deps *Dependencies) *mux.Router {
	if deps == nil {
		deps = &Dependencies{}
	}

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(handlers.NotFound)

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.Logging(deps.Logger))
	router.Use(middleware.CORS(deps.Security.AllowedOrigins))

	adminAuth := middleware.TokenAuth(deps.Security.AdminToken, nil)

	// Создание handlers с внедрением зависимостей
	var webhookHandler *handlers.WebhookHandler
	var signalsHandler *handlers.SignalsHandler
	var adminHandler *handlers.AdminHandler
	if deps.SignalService != nil {
		webhookHandler = handlers.NewWebhookHandler(deps.SignalService, deps.Security.WebhookSecret, deps.Logger)
		signalsHandler = handlers.NewSignalsHandler(deps.SignalService)
		adminHandler = handlers.NewAdminHandler(deps.SignalService, deps.Location)
	}

	var statsHandler *handlers.StatsHandler
	if deps.StatsService != nil {
		statsHandler = handlers.NewStatsHandler(deps.StatsService)
	}

	var cronHandler *handlers.CronHandler
	if deps.StatsService != nil && deps.SummaryService != nil {
		cronHandler = handlers.NewCronHandler(deps.StatsService, deps.SummaryService, deps.Logger)
	}

	var telegramHandler *handlers.TelegramHandler
	if deps.BotService != nil {
		telegramHandler = handlers.NewTelegramHandler(deps.BotService, deps.Security.TelegramWebhookSecret, deps.Logger)
	}

	// Webhook источника сигналов
	if webhookHandler != nil {
		router.HandleFunc("/tv", webhookHandler.Receive).Methods("POST")
	}

	// Cron
	if cronHandler != nil {
		cron := router.Path("/cron").Subrouter()
		cron.Use(middleware.TokenAuth(deps.Security.CronToken, nil))
		cron.Methods("GET", "HEAD").HandlerFunc(cronHandler.Run)
	}

	// Admin page
	if adminHandler != nil {
		admin := router.Path("/admin").Subrouter()
		admin.Use(middleware.TokenAuth(deps.Security.AdminToken, handlers.AdminForbidden))
		admin.Methods("GET").HandlerFunc(adminHandler.Page)
	}

	// Telegram webhook
	if telegramHandler != nil {
		router.HandleFunc("/tg/webhook", telegramHandler.Receive).Methods("POST")
	}

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	// Webhook проверяет secret сам, поэтому живет вне защищенной группы
	if webhookHandler != nil {
		api.HandleFunc("/webhook", webhookHandler.Receive).Methods("POST")
	}

	protected := api.NewRoute().Subrouter()
	protected.Use(adminAuth)

	// Stats routes
	if statsHandler != nil {
		protected.HandleFunc("/stats", statsHandler.GetStats).Methods("GET")
		protected.HandleFunc("/stats/window", statsHandler.GetWindow).Methods("GET")
	}

	// Signals routes
	if signalsHandler != nil {
		protected.HandleFunc("/signals", signalsHandler.GetSignals).Methods("GET")
	}

	// WebSocket route
	if deps.Hub != nil {
		origins := websocket.NewOriginChecker(deps.Security.AllowedOrigins)
		router.Handle("/ws/stream", adminAuth(deps.Hub.Handler(origins))).Methods("GET")
	}

	// Метрики Prometheus
	router.Handle("/metrics", metrics.Handler()).Methods("GET")

	// Health check endpoint
	healthHandler := handlers.NewHealthHandler(deps.DB)
	router.HandleFunc("/health", healthHandler.Check).Methods("GET", "HEAD")

	return router
}
