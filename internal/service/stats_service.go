package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"sourcetrader/internal/metrics"
	"sourcetrader/internal/models"
	"sourcetrader/pkg/utils"
)

// Границы окна статистики в днях
const (
	MinWindowDays = 1
	MaxWindowDays = 90
)

// Окна для /stats и GET /api/v1/stats
const (
	DayWindow   = 1
	WeekWindow  = 7
	MonthWindow = 30
)

// ClampWindowDays приводит окно к [1, 90]
func ClampWindowDays(days int) int {
	return utils.ClampInt(days, MinWindowDays, MaxWindowDays)
}

// AggregateWindow считает статистику по закрытым сделкам.
// PnL = 0 считается убытком; сумма включает только положительные PnL.
func AggregateWindow(days int, trades []models.ClosedTrade) models.WindowStats {
	stats := models.WindowStats{Days: days, Total: len(trades)}

	sum := decimal.Zero
	for _, t := range trades {
		if t.PnlPct > 0 {
			stats.Wins++
			sum = sum.Add(decimal.NewFromFloat(t.PnlPct))
		} else {
			stats.Losses++
		}
	}

	stats.WinRatePct = utils.WinRatePct(stats.Wins, stats.Total)
	stats.SumPositivePct = sum.Round(2).InexactFloat64()
	return stats
}

// PickBestTrade возвращает сделку с максимальным PnL или nil
func PickBestTrade(trades []models.ClosedTrade) *models.BestTrade {
	var best *models.ClosedTrade
	for i := range trades {
		if best == nil || trades[i].PnlPct > best.PnlPct {
			best = &trades[i]
		}
	}
	if best == nil {
		return nil
	}
	return &models.BestTrade{
		Symbol:   best.Symbol,
		Side:     best.Side,
		PnlPct:   best.PnlPct,
		ClosedAt: best.ClosedAt,
	}
}

// StatsService предоставляет статистику по закрытым сделкам.
//
// Функции:
// - Backfill: дописать PnL закрытиям, у которых найдено открытие, но PnL пуст
// - GetWindowStats: статистика за последние N дней
// - GetPerformance: окна 1/7/30 дней
// - Digest: статистика и лучшая сделка за сутки для дневной сводки
//
// WebSocket интеграция:
// - PublishPerformance отправляет свежие окна в live-ленту
type StatsService struct {
	signals SignalRepositoryInterface
	wsHub   LiveBroadcaster
	logger  *utils.Logger
	now     func() time.Time
}

// NewStatsService создает новый экземпляр StatsService
func NewStatsService(signals SignalRepositoryInterface, logger *utils.Logger) *StatsService {
	if logger == nil {
		logger = utils.L()
	}
	return &StatsService{
		signals: signals,
		logger:  logger.WithComponent("stats"),
		now:     time.Now,
	}
}

// SetWebSocketHub устанавливает live-ленту для публикации статистики
func (s *StatsService) SetWebSocketHub(hub LiveBroadcaster) {
	s.wsHub = hub
}

// Backfill пересчитывает PnL для закрытий без PnL.
// Каждая строка пишется не более одного раза (условный UPDATE),
// поэтому повторный и параллельный вызовы безопасны.
// Возвращает количество обновленных строк.
func (s *StatsService) Backfill(ctx context.Context) (int, error) {
	rows, err := s.signals.ListUnpricedCloses(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list unpriced closes: %w", err)
	}

	updated := 0
	for _, row := range rows {
		pnl, ok := utils.CalculatePnlPct(row.OpenPrice, row.Price, string(row.Side))
		if !ok {
			metrics.RecordPnl("skipped", 0)
			continue
		}

		written, err := s.signals.SetPnl(ctx, row.ID, pnl)
		if err != nil {
			metrics.RecordBackfill(updated)
			return updated, fmt.Errorf("failed to write pnl for signal %d: %w", row.ID, err)
		}
		if !written {
			metrics.RecordPnl("already_set", pnl)
			continue
		}
		metrics.RecordPnl("written", pnl)
		updated++
	}

	metrics.RecordBackfill(updated)
	if updated > 0 {
		s.logger.Info("pnl backfill completed", utils.Int("updated", updated), utils.Int("candidates", len(rows)))
	}
	return updated, nil
}

// backfillQuietly - ошибка бэкфилла не мешает отдать статистику
func (s *StatsService) backfillQuietly(ctx context.Context) {
	if _, err := s.Backfill(ctx); err != nil {
		s.logger.Warn("backfill before stats failed", utils.Err(err))
	}
}

// closedTrades возвращает закрытые сделки за последние days дней (нижняя граница включена)
func (s *StatsService) closedTrades(ctx context.Context, days int) ([]models.ClosedTrade, error) {
	window := utils.GetLastNDays(s.now(), days)
	trades, err := s.signals.ListClosedInRange(ctx, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("failed to list closed trades for %d days: %w", days, err)
	}
	return trades, nil
}

func (s *StatsService) window(ctx context.Context, days int) (*models.WindowStats, error) {
	days = ClampWindowDays(days)
	trades, err := s.closedTrades(ctx, days)
	if err != nil {
		return nil, err
	}
	stats := AggregateWindow(days, trades)
	s.logger.Debug("window aggregated", utils.WindowDays(days), utils.Int("closes", stats.Total))
	return &stats, nil
}

// GetWindowStats возвращает статистику за окно (окно приводится к [1, 90])
func (s *StatsService) GetWindowStats(ctx context.Context, days int) (*models.WindowStats, error) {
	s.backfillQuietly(ctx)
	return s.window(ctx, days)
}

// GetPerformance возвращает окна день/неделя/месяц после одного бэкфилла
func (s *StatsService) GetPerformance(ctx context.Context) (*models.Performance, error) {
	s.backfillQuietly(ctx)

	perf := &models.Performance{}
	targets := []struct {
		days int
		dst  *models.WindowStats
	}{
		{DayWindow, &perf.Day},
		{WeekWindow, &perf.Week},
		{MonthWindow, &perf.Month},
	}
	for _, t := range targets {
		w, err := s.window(ctx, t.days)
		if err != nil {
			return nil, err
		}
		*t.dst = *w
	}
	return perf, nil
}

// Digest возвращает статистику и лучшую сделку за последние сутки
func (s *StatsService) Digest(ctx context.Context) (*models.WindowStats, *models.BestTrade, error) {
	trades, err := s.closedTrades(ctx, DayWindow)
	if err != nil {
		return nil, nil, err
	}
	stats := AggregateWindow(DayWindow, trades)
	return &stats, PickBestTrade(trades), nil
}

// PublishPerformance отправляет окна в live-ленту, если она подключена
func (s *StatsService) PublishPerformance(ctx context.Context) {
	if s.wsHub == nil {
		return
	}
	perf, err := s.GetPerformance(ctx)
	if err != nil {
		s.logger.Warn("failed to refresh live stats", utils.Err(err))
		return
	}
	s.wsHub.BroadcastStats(perf)
}
