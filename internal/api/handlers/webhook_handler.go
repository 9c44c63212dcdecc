package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"sourcetrader/internal/service"
	"sourcetrader/pkg/utils"
)

// WebhookHandler принимает сигналы от источника (алерты TradingView).
//
// Endpoints:
// - POST /tv
// - POST /api/v1/webhook
//
// Ответы:
// - 200 {"ok":true,"id":N} - сигнал сохранен
// - 200 {"ok":true,"ignored":"symbol not allowed"} - символ вне списка, ничего не сохранено
// - 400 - некорректный JSON или поля сигнала
// - 403 - неверный secret
// - 500 - ошибка хранилища
type WebhookHandler struct {
	signalService service.SignalServiceInterface
	secret        string
	logger        *utils.Logger
}

// NewWebhookHandler создает WebhookHandler.
// Пустой secret отключает проверку.
func NewWebhookHandler(signalService service.SignalServiceInterface, secret string, logger *utils.Logger) *WebhookHandler {
	if logger == nil {
		logger = utils.L()
	}
	return &WebhookHandler{
		signalService: signalService,
		secret:        secret,
		logger:        logger.WithComponent("webhook"),
	}
}

// WebhookPayload - тело запроса источника сигналов
type WebhookPayload struct {
	Strategy  string     `json:"strategy"`
	Symbol    string     `json:"symbol"`
	Side      string     `json:"side"`
	Price     FlexFloat  `json:"price"`
	Time      FlexString `json:"time"`
	Secret    string     `json:"secret"`
	Ref       *int64     `json:"ref"`
	RefOpenID *int64     `json:"ref_open_id"`
}

// WebhookResponse - ответ на принятый или проигнорированный сигнал
type WebhookResponse struct {
	OK      bool   `json:"ok"`
	ID      int64  `json:"id,omitempty"`
	Ignored string `json:"ignored,omitempty"`
}

// Receive обрабатывает входящий сигнал.
//
// POST /tv
//
// Request body:
//
//	{
//	  "symbol": "BTCUSDT",
//	  "side": "CLOSE_LONG",
//	  "price": 43120.5,
//	  "time": "2024-01-15T10:00:00Z",
//	  "secret": "...",
//	  "ref_open_id": 41
//	}
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	if h.signalService == nil {
		writeError(w, http.StatusInternalServerError, "", "signal service not initialized", nil)
		return
	}

	var payload WebhookPayload
	if err := decodeBody(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "invalid request body", err)
		return
	}

	if h.secret != "" && subtle.ConstantTimeCompare([]byte(payload.Secret), []byte(h.secret)) != 1 {
		h.logger.Warn("webhook secret mismatch", utils.String("remote", r.RemoteAddr))
		writeError(w, http.StatusForbidden, "", "invalid secret", nil)
		return
	}

	result, err := h.signalService.Ingest(r.Context(), service.IngestRequest{
		Symbol:    payload.Symbol,
		Side:      payload.Side,
		Price:     float64(payload.Price),
		Time:      string(payload.Time),
		Ref:       payload.Ref,
		RefOpenID: payload.RefOpenID,
		Strategy:  payload.Strategy,
	})
	if err != nil {
		var verr *service.ValidationError
		switch {
		case errors.Is(err, service.ErrSymbolNotAllowed):
			writeJSON(w, http.StatusOK, WebhookResponse{OK: true, Ignored: service.ErrSymbolNotAllowed.Error()})
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   verr.Reason,
				Code:    "invalid_" + verr.Field,
				Details: verr.Field,
			})
		default:
			h.logger.Error("signal ingest failed", utils.Symbol(payload.Symbol), utils.Err(err))
			writeError(w, http.StatusInternalServerError, "", "failed to store signal", nil)
		}
		return
	}

	writeJSON(w, http.StatusOK, WebhookResponse{OK: true, ID: result.ID})
}
