package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"sourcetrader/internal/config"
	"sourcetrader/internal/metrics"
	"sourcetrader/internal/models"
	"sourcetrader/internal/tracing"
	"sourcetrader/pkg/utils"
)

var (
	// ErrSymbolNotAllowed - символ не входит в список разрешенных; сигнал игнорируется
	ErrSymbolNotAllowed = errors.New("symbol not allowed")
	// ErrInvalidSignal - входящий сигнал не прошел проверку
	ErrInvalidSignal = errors.New("invalid signal")
)

// ValidationError - отказ в приеме сигнала; ничего не сохраняется
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IngestRequest - входящий сигнал после разбора JSON
type IngestRequest struct {
	Symbol    string
	Side      string
	Price     float64
	Time      string
	Ref       *int64 // метка источника для открытий, пишется в ext_ref
	RefOpenID *int64 // подсказка источника для закрытий
	Strategy  string
}

// IngestResult - сохраненный сигнал
type IngestResult struct {
	ID     int64
	Signal *models.Signal
}

// ============================================================
// Проверка входящих сигналов
// ============================================================

// SignalValidator проверяет сигнал и строит модель для записи
type SignalValidator struct {
	rules config.SignalsConfig
}

// NewSignalValidator создает валидатор по правилам из конфигурации
func NewSignalValidator(rules config.SignalsConfig) *SignalValidator {
	return &SignalValidator{rules: rules}
}

// Validate возвращает *ValidationError при любой ошибке.
// Список разрешенных символов проверяется после формата полей.
func (v *SignalValidator) Validate(req IngestRequest) (*models.Signal, error) {
	var errs utils.ValidationErrors

	symbol := utils.NormalizeSymbol(req.Symbol)
	errs.AddError("symbol", utils.ValidateSymbol(req.Symbol))

	side, err := models.ParseSide(req.Side)
	errs.AddError("side", err)

	errs.AddError("price", utils.ValidatePrice(req.Price))

	t, err := ParseSignalTime(req.Time)
	if err == nil {
		err = utils.ValidateSignalTime(t)
	}
	errs.AddError("time", err)

	if errs.HasErrors() {
		return nil, &ValidationError{Field: errs[0].Field, Reason: errs.Error(), Err: ErrInvalidSignal}
	}

	if !v.rules.IsSymbolAllowed(symbol) {
		return nil, &ValidationError{Field: "symbol", Reason: ErrSymbolNotAllowed.Error(), Err: ErrSymbolNotAllowed}
	}

	return &models.Signal{
		Symbol: symbol,
		Side:   side,
		Price:  req.Price,
		Time:   t.UTC(),
	}, nil
}

// Форматы времени, которые присылает источник
var signalTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseSignalTime разбирает ISO-8601 (без пояса = UTC) или unix-время в секундах/миллисекундах
func ParseSignalTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, utils.ErrInvalidTime
	}

	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}

	for _, layout := range signalTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time format %q", raw)
}

// ============================================================
// Прием сигналов
// ============================================================

// SignalService принимает сигналы и ведет их жизненный цикл.
//
// Открытие: запись, метка ext_ref, рассылка.
// Закрытие: запись, поиск открытия, closed_at, PnL (один раз), рассылка.
// После вставки сбои записи не влияют на ответ источнику: строка остается
// частичной (без ссылки, closed_at или PnL), рассылка идет как обычно.
// Рассылка подписчикам, live-лента и Kafka не влияют на ответ источнику.
type SignalService struct {
	signals   SignalRepositoryInterface
	validator *SignalValidator
	resolver  *ReferenceResolver
	notifier  *NotificationService
	stats     *StatsService
	events    EventPublisher
	wsHub     LiveBroadcaster
	logger    *utils.Logger
	now       func() time.Time

	background sync.WaitGroup
}

// NewSignalService создает сервис приема сигналов
func NewSignalService(
	signals SignalRepositoryInterface,
	validator *SignalValidator,
	resolver *ReferenceResolver,
	notifier *NotificationService,
	stats *StatsService,
	logger *utils.Logger,
) *SignalService {
	if logger == nil {
		logger = utils.L()
	}
	return &SignalService{
		signals:   signals,
		validator: validator,
		resolver:  resolver,
		notifier:  notifier,
		stats:     stats,
		logger:    logger.WithComponent("signals"),
		now:       time.Now,
	}
}

// SetWebSocketHub устанавливает live-ленту
func (s *SignalService) SetWebSocketHub(hub LiveBroadcaster) {
	s.wsHub = hub
}

// SetEventPublisher включает публикацию событий в Kafka
func (s *SignalService) SetEventPublisher(publisher EventPublisher) {
	s.events = publisher
}

// Ingest проверяет и сохраняет сигнал, затем ведет его по жизненному циклу
func (s *SignalService) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	ctx, span := tracing.StartSpan(ctx, "signal.ingest")
	defer span.End()

	signal, err := s.validator.Validate(req)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			reason := verr.Field
			if errors.Is(err, ErrSymbolNotAllowed) {
				reason = "not_allowed"
			}
			metrics.RecordRejection(reason)
		}
		return nil, err
	}

	if err := s.signals.Insert(ctx, signal); err != nil {
		return nil, fmt.Errorf("failed to insert signal: %w", err)
	}
	metrics.RecordSignal(signal.Symbol, string(signal.Side))
	span.SetAttributes(
		attribute.Int64("signal.id", signal.ID),
		attribute.String("signal.symbol", signal.Symbol),
		attribute.String("signal.side", string(signal.Side)),
	)

	log := s.logger.WithSignalID(signal.ID).With(utils.Symbol(signal.Symbol), utils.Side(string(signal.Side)))

	switch signal.Event().(type) {
	case models.OpenEvent:
		if req.Ref != nil {
			if err := s.signals.SetExternalRef(ctx, signal.ID, req.Ref); err != nil {
				s.writeFailed(log, "ext_ref", err)
			} else {
				signal.ExternalRef = req.Ref
			}
		}
	case models.CloseEvent:
		s.closePosition(ctx, signal, req.RefOpenID, log)
	}

	log.Info("signal accepted", utils.Price(signal.Price), utils.String("strategy", req.Strategy))
	s.publish(signal)

	return &IngestResult{ID: signal.ID, Signal: signal}, nil
}

// closePosition связывает закрытие с открытием, ставит closed_at и пишет PnL.
// Промах поиска не является ошибкой: закрытие остается без ссылки и PnL.
// Сбой любой записи оставляет поле пустым; PnL со ссылкой дописывает бэкфилл.
func (s *SignalService) closePosition(ctx context.Context, signal *models.Signal, hint *int64, log *utils.Logger) {
	open, err := s.resolver.Resolve(ctx, signal, hint)
	switch {
	case errors.Is(err, ErrResolutionMiss):
		log.Info("close left unresolved: no matching open")
		open = nil
	case err != nil:
		s.writeFailed(log, "resolve", err)
		open = nil
	default:
		if err := s.signals.SetReference(ctx, signal.ID, &open.ID); err != nil {
			s.writeFailed(log.With(utils.RefOpenID(open.ID)), "reference", err)
			open = nil
		} else {
			ref := open.ID
			signal.RefOpenID = &ref
		}
	}

	closedAt := s.now().UTC()
	if err := s.signals.MarkClosed(ctx, signal.ID, closedAt); err != nil {
		s.writeFailed(log, "closed_at", err)
	} else {
		signal.ClosedAt = &closedAt
	}

	if open == nil {
		return
	}

	pnl, ok := utils.CalculatePnlPct(open.Price, signal.Price, string(signal.Side))
	if !ok {
		metrics.RecordPnl("skipped", 0)
		log.Warn("pnl computation skipped", utils.RefOpenID(open.ID), utils.Price(open.Price))
		return
	}

	written, err := s.signals.SetPnl(ctx, signal.ID, pnl)
	if err != nil {
		s.writeFailed(log.With(utils.RefOpenID(open.ID)), "pnl", err)
		return
	}
	if !written {
		metrics.RecordPnl("already_set", pnl)
		return
	}
	metrics.RecordPnl("written", pnl)
	signal.PnlPct = &pnl
	log.Info("close priced", utils.RefOpenID(open.ID), utils.PNL(pnl))
}

// writeFailed логирует и считает сбой записи после вставки
func (s *SignalService) writeFailed(log *utils.Logger, step string, err error) {
	metrics.RecordWriteFailure(step)
	log.Warn("signal write failed, row left partial", utils.String("step", step), utils.Err(err))
}

// publish раздает сигнал подписчикам, в live-ленту и в Kafka
func (s *SignalService) publish(signal *models.Signal) {
	if s.notifier != nil {
		s.notifier.DispatchSignal(signal)
	}

	if s.wsHub != nil {
		s.wsHub.BroadcastSignal(signal)
	}

	snapshot := *signal
	if s.events != nil {
		s.background.Add(1)
		go func() {
			defer s.background.Done()
			if err := s.events.PublishSignal(context.Background(), &snapshot); err != nil {
				s.logger.Warn("event publish failed", utils.SignalID(snapshot.ID), utils.Err(err))
			}
		}()
	}

	if s.wsHub != nil && s.stats != nil && snapshot.PnlPct != nil {
		s.background.Add(1)
		go func() {
			defer s.background.Done()
			s.stats.PublishPerformance(context.Background())
		}()
	}
}

// Recent возвращает последние сигналы (id по убыванию)
func (s *SignalService) Recent(ctx context.Context, limit int) ([]*models.Signal, error) {
	return s.signals.Recent(ctx, limit)
}

// Wait ждет фоновые публикации и рассылки или отмену ctx
func (s *SignalService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if s.notifier != nil {
		return s.notifier.Wait(ctx)
	}
	return nil
}
