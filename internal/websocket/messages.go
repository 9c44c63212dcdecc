package websocket

import (
	"time"

	"sourcetrader/internal/models"
)

// MessageType определяет тип сообщения live-ленты
type MessageType string

// Типы сообщений
const (
	// MessageTypeSignal - новый сигнал (открытие или закрытие с PnL)
	MessageTypeSignal MessageType = "signal"

	// MessageTypeStats - статистика по окнам день/неделя/месяц
	// Отправляется после закрытия сделки и после бэкфилла
	MessageTypeStats MessageType = "stats"

	// MessageTypeSummary - результат запуска дневной сводки
	MessageTypeSummary MessageType = "summary"
)

// BaseMessage - общие поля всех сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// SignalMessage - сигнал в том виде, в каком он сохранен
type SignalMessage struct {
	BaseMessage
	Data *models.Signal `json:"data"`
}

// StatsMessage - агрегаты по трем окнам
type StatsMessage struct {
	BaseMessage
	Data *models.Performance `json:"data"`
}

// SummaryMessage - итог запуска сводки
type SummaryMessage struct {
	BaseMessage
	Data *models.SummaryResult `json:"data"`
}

// NewSignalMessage создает сообщение о сигнале
func NewSignalMessage(signal *models.Signal) *SignalMessage {
	return &SignalMessage{
		BaseMessage: BaseMessage{Type: MessageTypeSignal, Timestamp: time.Now().UTC()},
		Data:        signal,
	}
}

// NewStatsMessage создает сообщение со статистикой
func NewStatsMessage(perf *models.Performance) *StatsMessage {
	return &StatsMessage{
		BaseMessage: BaseMessage{Type: MessageTypeStats, Timestamp: time.Now().UTC()},
		Data:        perf,
	}
}

// NewSummaryMessage создает сообщение об итоге сводки
func NewSummaryMessage(result *models.SummaryResult) *SummaryMessage {
	return &SummaryMessage{
		BaseMessage: BaseMessage{Type: MessageTypeSummary, Timestamp: time.Now().UTC()},
		Data:        result,
	}
}
