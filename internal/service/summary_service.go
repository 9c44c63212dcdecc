package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sourcetrader/internal/config"
	"sourcetrader/internal/metrics"
	"sourcetrader/internal/models"
	"sourcetrader/internal/repository"
	"sourcetrader/internal/tracing"
	"sourcetrader/pkg/utils"
)

// DigestProvider - источник данных для дневной сводки
type DigestProvider interface {
	Digest(ctx context.Context) (*models.WindowStats, *models.BestTrade, error)
}

// Broadcaster - синхронная рассылка всем активным подписчикам
type Broadcaster interface {
	Broadcast(ctx context.Context, kind, text string) (*DispatchReport, error)
}

// Рассылка и маркер не зависят от отмены запроса /cron
const (
	digestDispatchTimeout = 10 * time.Minute
	markerWriteTimeout    = 10 * time.Second
)

var _ DigestProvider = (*StatsService)(nil)
var _ Broadcaster = (*NotificationService)(nil)

// SummaryService отправляет дневную сводку не чаще раза в локальные сутки.
//
// Запуск приходит извне (/cron). До начала окна - too_early,
// если маркер уже равен сегодняшней дате - already_sent.
// Маркер пишется после рассылки; два одновременных запуска
// могут оба отправить сводку. Начатая рассылка всегда завершается
// записью маркера, даже если клиент /cron отключился или батч прервался.
type SummaryService struct {
	digest    DigestProvider
	notifier  Broadcaster
	state     StateRepositoryInterface
	formatter *MessageFormatter
	loc       *time.Location
	start     utils.Clock
	wsHub     LiveBroadcaster
	logger    *utils.Logger
	now       func() time.Time

	dispatchTimeout time.Duration
}

// NewSummaryService создает планировщик сводки
func NewSummaryService(
	digest DigestProvider,
	notifier Broadcaster,
	state StateRepositoryInterface,
	formatter *MessageFormatter,
	cfg config.SummaryConfig,
	logger *utils.Logger,
) *SummaryService {
	if logger == nil {
		logger = utils.L()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &SummaryService{
		digest:    digest,
		notifier:  notifier,
		state:     state,
		formatter: formatter,
		loc:       loc,
		start:     cfg.WindowStart,
		logger:    logger.WithComponent("summary"),
		now:       time.Now,

		dispatchTimeout: digestDispatchTimeout,
	}
}

// SetWebSocketHub устанавливает live-ленту для публикации итогов
func (s *SummaryService) SetWebSocketHub(hub LiveBroadcaster) {
	s.wsHub = hub
}

// Trigger проверяет окно и маркер, при необходимости отправляет сводку
func (s *SummaryService) Trigger(ctx context.Context) (*models.SummaryResult, error) {
	ctx, span := tracing.StartSpan(ctx, "summary.trigger")
	defer span.End()

	now := s.now()
	local := now.In(s.loc)
	today := local.Format(utils.DateLayout)

	result := &models.SummaryResult{
		LocalDate: today,
		LocalTime: local.Format("15:04"),
	}

	if !s.start.Reached(now, s.loc) {
		result.Status = models.SummaryTooEarly
		result.Reason = fmt.Sprintf("summary window opens at %s %s", s.start, s.loc)
		metrics.RecordSummary(string(result.Status))
		return result, nil
	}

	lastSent, err := s.state.Get(ctx, repository.StateKeyDailySummaryLastSent)
	if err != nil && !errors.Is(err, repository.ErrStateNotFound) {
		return nil, fmt.Errorf("failed to read summary marker: %w", err)
	}
	if lastSent == today {
		result.Status = models.SummaryAlreadySent
		result.Reason = "summary already sent for " + today
		metrics.RecordSummary(string(result.Status))
		return result, nil
	}

	stats, best, err := s.digest.Digest(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build digest: %w", err)
	}

	detached := context.WithoutCancel(ctx)

	dispatchCtx, cancelDispatch := context.WithTimeout(detached, s.dispatchTimeout)
	report, err := s.notifier.Broadcast(dispatchCtx, DispatchSummary, s.formatter.FormatDigest(*stats, best))
	cancelDispatch()
	if err != nil {
		if report == nil {
			return nil, fmt.Errorf("failed to dispatch digest: %w", err)
		}
		// часть получателей уже получила сводку; повтор разослал бы ее им еще раз
		s.logger.Warn("digest batch interrupted",
			utils.Recipients(report.Recipients),
			utils.Int("delivered", report.Delivered),
			utils.Err(err),
		)
	}

	// маркер пишется и при нуле получателей: сводка за день считается отправленной
	markerCtx, cancelMarker := context.WithTimeout(detached, markerWriteTimeout)
	defer cancelMarker()
	if err := s.state.Set(markerCtx, repository.StateKeyDailySummaryLastSent, today); err != nil {
		return nil, fmt.Errorf("failed to persist summary marker: %w", err)
	}

	result.Status = models.SummarySent
	result.Recipients = report.Recipients
	result.Delivered = report.Delivered
	result.Stats = stats
	metrics.RecordSummary(string(result.Status))

	s.logger.Info("daily summary sent",
		utils.String("local_date", today),
		utils.Recipients(report.Recipients),
		utils.Int("delivered", report.Delivered),
	)

	if s.wsHub != nil {
		s.wsHub.BroadcastSummary(result)
	}
	return result, nil
}
