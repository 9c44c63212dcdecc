package handlers

import (
	"net/http"

	"sourcetrader/internal/models"
	"sourcetrader/internal/service"
	"sourcetrader/pkg/utils"
)

// CronHandler - внешний планировщик дергает его раз в несколько минут.
// Каждый вызов досчитывает пропущенные PnL и пробует отправить дневную сводку.
//
// Endpoints:
// - GET /cron?token=...
// - HEAD /cron?token=...
type CronHandler struct {
	statsService   service.StatsServiceInterface
	summaryService service.SummaryServiceInterface
	logger         *utils.Logger
}

// NewCronHandler создает CronHandler
func NewCronHandler(
	statsService service.StatsServiceInterface,
	summaryService service.SummaryServiceInterface,
	logger *utils.Logger,
) *CronHandler {
	if logger == nil {
		logger = utils.L()
	}
	return &CronHandler{
		statsService:   statsService,
		summaryService: summaryService,
		logger:         logger.WithComponent("cron"),
	}
}

// CronResponse - итог одного запуска
type CronResponse struct {
	OK            bool                  `json:"ok"`
	Backfilled    int                   `json:"backfilled"`
	BackfillError string                `json:"backfill_error,omitempty"`
	Summary       *models.SummaryResult `json:"summary,omitempty"`
}

// Run выполняет backfill и проверку сводки.
// Ошибка backfill не мешает сводке, ошибка сводки дает 500.
func (h *CronHandler) Run(w http.ResponseWriter, r *http.Request) {
	if h.statsService == nil || h.summaryService == nil {
		writeError(w, http.StatusInternalServerError, "", "cron services not initialized", nil)
		return
	}

	resp := CronResponse{OK: true}

	updated, err := h.statsService.Backfill(r.Context())
	if err != nil {
		h.logger.Warn("backfill failed", utils.Err(err))
		resp.BackfillError = err.Error()
	}
	resp.Backfilled = updated

	summary, err := h.summaryService.Trigger(r.Context())
	if err != nil {
		h.logger.Error("daily summary failed", utils.Err(err))
		writeError(w, http.StatusInternalServerError, "summary_failed", "failed to run daily summary", err)
		return
	}
	resp.Summary = summary

	writeJSON(w, http.StatusOK, resp)
}
