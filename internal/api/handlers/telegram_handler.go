package handlers

import (
	"crypto/subtle"
	"net/http"

	"sourcetrader/internal/service"
	"sourcetrader/internal/telegram"
	"sourcetrader/pkg/utils"
)

// secretTokenHeader - заголовок, которым Telegram подписывает вызовы вебхука
const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// TelegramHandler принимает обновления бота.
//
// Endpoints:
// - POST /tg/webhook
//
// После проверки секрета всегда отвечает 200: иначе Telegram
// будет повторять то же обновление.
type TelegramHandler struct {
	botService service.BotServiceInterface
	secret     string
	logger     *utils.Logger
}

// NewTelegramHandler создает TelegramHandler. Пустой secret отключает проверку.
func NewTelegramHandler(botService service.BotServiceInterface, secret string, logger *utils.Logger) *TelegramHandler {
	if logger == nil {
		logger = utils.L()
	}
	return &TelegramHandler{
		botService: botService,
		secret:     secret,
		logger:     logger.WithComponent("telegram_webhook"),
	}
}

// Receive обрабатывает одно обновление
func (h *TelegramHandler) Receive(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" {
		got := r.Header.Get(secretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			writeError(w, http.StatusForbidden, "", "forbidden", nil)
			return
		}
	}

	if h.botService == nil {
		writeError(w, http.StatusInternalServerError, "", "bot service not initialized", nil)
		return
	}

	var update telegram.Update
	if err := decodeBody(w, r, &update); err != nil {
		h.logger.Warn("malformed telegram update", utils.Err(err))
		writeJSON(w, http.StatusOK, WebhookResponse{OK: true})
		return
	}

	if err := h.botService.HandleUpdate(r.Context(), &update); err != nil {
		h.logger.Error("telegram update failed",
			utils.Int64("update_id", update.UpdateID),
			utils.Err(err),
		)
	}

	writeJSON(w, http.StatusOK, WebhookResponse{OK: true})
}
