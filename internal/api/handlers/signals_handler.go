package handlers

import (
	"net/http"
	"strconv"

	"sourcetrader/internal/models"
	"sourcetrader/internal/service"
	"sourcetrader/pkg/utils"
)

const (
	defaultSignalsLimit = 50
	maxSignalsLimit     = 500
)

// SignalsHandler отдает последние сигналы.
//
// Endpoints:
// - GET /api/v1/signals?limit=N
type SignalsHandler struct {
	signalService service.SignalServiceInterface
}

// NewSignalsHandler создает SignalsHandler
func NewSignalsHandler(signalService service.SignalServiceInterface) *SignalsHandler {
	return &SignalsHandler{signalService: signalService}
}

// parseLimit читает limit из query; пустое значение = defaultSignalsLimit
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultSignalsLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	return utils.ClampInt(limit, 1, maxSignalsLimit), nil
}

// GetSignals возвращает последние сигналы, новые первыми.
//
// GET /api/v1/signals?limit=20
func (h *SignalsHandler) GetSignals(w http.ResponseWriter, r *http.Request) {
	if h.signalService == nil {
		writeError(w, http.StatusInternalServerError, "", "signal service not initialized", nil)
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer", nil)
		return
	}

	signals, err := h.signalService.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", "failed to get signals", err)
		return
	}

	// Пустой список отдаем как [], а не null
	if signals == nil {
		signals = []*models.Signal{}
	}

	writeJSON(w, http.StatusOK, signals)
}
