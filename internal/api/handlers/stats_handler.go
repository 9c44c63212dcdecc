package handlers

import (
	"net/http"
	"strconv"

	"sourcetrader/internal/service"
)

// StatsHandler обрабатывает HTTP запросы статистики закрытых сделок.
//
// Endpoints:
// - GET /api/v1/stats - окна 1, 7 и 30 дней
// - GET /api/v1/stats/window?days=N - произвольное окно (1..90)
//
// Перед расчетом сервис досчитывает пропущенные PnL.
type StatsHandler struct {
	statsService service.StatsServiceInterface
}

// NewStatsHandler создает новый StatsHandler с внедрением зависимостей.
func NewStatsHandler(statsService service.StatsServiceInterface) *StatsHandler {
	return &StatsHandler{
		statsService: statsService,
	}
}

// GetStats возвращает статистику за день, неделю и месяц.
//
// GET /api/v1/stats
//
// Response 200 OK:
//
//	{
//	  "day":   {"days": 1, "total": 3, "wins": 2, "losses": 1, "winrate_pct": 66.7, "sum_positive_pct": 14},
//	  "week":  {...},
//	  "month": {...}
//	}
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if h.statsService == nil {
		writeError(w, http.StatusInternalServerError, "", "stats service not initialized", nil)
		return
	}

	perf, err := h.statsService.GetPerformance(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", "failed to get stats", err)
		return
	}

	writeJSON(w, http.StatusOK, perf)
}

// GetWindow возвращает статистику за последние N дней.
// Значение days вне 1..90 приводится к границам.
//
// GET /api/v1/stats/window?days=7
func (h *StatsHandler) GetWindow(w http.ResponseWriter, r *http.Request) {
	if h.statsService == nil {
		writeError(w, http.StatusInternalServerError, "", "stats service not initialized", nil)
		return
	}

	days := 1
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_days", "days must be an integer", nil)
			return
		}
		days = parsed
	}

	stats, err := h.statsService.GetWindowStats(r.Context(), days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", "failed to get stats", err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
