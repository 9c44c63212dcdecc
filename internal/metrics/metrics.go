package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ============================================================
// Prometheus метрики жизненного цикла сигналов
// ============================================================
//
// - Счетчики принятых/отклоненных сигналов
// - Результаты поиска открытия и расчета PnL
// - Доставка сообщений подписчикам
// - Латентность HTTP-обработчиков

const namespace = "sourcetrader"

// ============ Сигналы ============

// SignalsIngested - принятые сигналы по символу и стороне
var SignalsIngested = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "signals",
		Name:      "ingested_total",
		Help:      "Total number of persisted signals",
	},
	[]string{"symbol", "side"},
)

// SignalsRejected - отклоненные сигналы по причине
var SignalsRejected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "signals",
		Name:      "rejected_total",
		Help:      "Total number of rejected or ignored signals",
	},
	[]string{"reason"}, // secret, symbol, side, price, time, not_allowed
)

// Resolutions - результат поиска открытия для закрытия
var Resolutions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "signals",
		Name:      "resolutions_total",
		Help:      "Close-to-open resolution outcomes",
	},
	[]string{"result"}, // hint, latest, miss, error
)

// WriteFailures - сбои записи после сохранения сигнала; строка остается частичной
var WriteFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "signals",
		Name:      "write_failures_total",
		Help:      "Post-insert lifecycle writes that failed and were left for backfill",
	},
	[]string{"step"}, // ext_ref, resolve, reference, closed_at, pnl
)

// PnlComputed - результат расчета PnL
var PnlComputed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pnl",
		Name:      "computed_total",
		Help:      "PnL computation outcomes",
	},
	[]string{"result"}, // written, skipped, already_set
)

// PnlObserved - распределение рассчитанного PnL в процентах
var PnlObserved = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pnl",
		Name:      "observed_percent",
		Help:      "Distribution of computed PnL percentages",
		Buckets:   []float64{-10, -5, -2, -1, 0, 1, 2, 5, 10},
	},
)

// BackfillUpdated - строки, исправленные бэкфиллом
var BackfillUpdated = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pnl",
		Name:      "backfill_updated_total",
		Help:      "Rows whose PnL was written by backfill",
	},
)

// ============ Доставка ============

// Dispatches - результаты доставки сообщений по типу
var Dispatches = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "messages_total",
		Help:      "Outbound chat messages by kind and result",
	},
	[]string{"kind", "result"}, // kind: signal, summary, reply; result: ok, failed
)

// SummaryTriggers - запуски дневной сводки по статусу
var SummaryTriggers = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "summary",
		Name:      "triggers_total",
		Help:      "Daily summary trigger outcomes",
	},
	[]string{"status"},
)

// ActiveSubscribers - количество подписчиков в последней рассылке
var ActiveSubscribers = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "active_subscribers",
		Help:      "Recipients of the most recent fan-out",
	},
)

// ============ HTTP ============

// HTTPRequestDuration - латентность HTTP-запросов
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_ms",
		Help:      "HTTP request latency in milliseconds",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	},
	[]string{"method", "route", "status"},
)

// WebsocketClients - подключенные клиенты live-ленты
var WebsocketClients = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "websocket",
		Name:      "clients",
		Help:      "Connected live feed clients",
	},
)

// ============ Вспомогательные функции ============

// RecordSignal записывает принятый сигнал
func RecordSignal(symbol, side string) {
	SignalsIngested.WithLabelValues(symbol, side).Inc()
}

// RecordRejection записывает отклоненный сигнал
func RecordRejection(reason string) {
	SignalsRejected.WithLabelValues(reason).Inc()
}

// RecordResolution записывает результат поиска открытия
func RecordResolution(result string) {
	Resolutions.WithLabelValues(result).Inc()
}

// RecordWriteFailure записывает сбой записи на шаге жизненного цикла
func RecordWriteFailure(step string) {
	WriteFailures.WithLabelValues(step).Inc()
}

// RecordPnl записывает результат расчета PnL; значение учитывается только для записанных
func RecordPnl(result string, pnl float64) {
	PnlComputed.WithLabelValues(result).Inc()
	if result == "written" {
		PnlObserved.Observe(pnl)
	}
}

// RecordBackfill добавляет количество исправленных строк
func RecordBackfill(updated int) {
	if updated > 0 {
		BackfillUpdated.Add(float64(updated))
	}
}

// RecordDispatch записывает результат отправки одного сообщения
func RecordDispatch(kind string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	Dispatches.WithLabelValues(kind, result).Inc()
}

// RecordSummary записывает статус запуска сводки
func RecordSummary(status string) {
	SummaryTriggers.WithLabelValues(status).Inc()
}

// SetActiveSubscribers обновляет число получателей
func SetActiveSubscribers(count int) {
	ActiveSubscribers.Set(float64(count))
}

// RecordHTTPRequest записывает латентность запроса
func RecordHTTPRequest(method, route, status string, latencyMs float64) {
	HTTPRequestDuration.WithLabelValues(method, route, status).Observe(latencyMs)
}

// Handler возвращает обработчик /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
