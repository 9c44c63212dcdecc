package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sourcetrader/internal/models"
	"sourcetrader/pkg/utils"
)

func pnlPtr(v float64) *float64 { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func newTestStatsService(signals *MockSignalRepository, now time.Time) *StatsService {
	s := NewStatsService(signals, utils.NewNopLogger())
	s.now = func() time.Time { return now }
	return s
}

// ============================================================
// Чистые функции
// ============================================================

func TestClampWindowDays(t *testing.T) {
	tests := []struct {
		in       int
		expected int
	}{
		{0, 1},
		{-5, 1},
		{1, 1},
		{7, 7},
		{90, 90},
		{91, 90},
		{1000, 90},
	}

	for _, tt := range tests {
		if got := ClampWindowDays(tt.in); got != tt.expected {
			t.Errorf("ClampWindowDays(%d) = %d, want %d", tt.in, got, tt.expected)
		}
	}
}

func TestAggregateWindow(t *testing.T) {
	tests := []struct {
		name      string
		pnls      []float64
		total     int
		wins      int
		losses    int
		winRate   float64
		sumPosPct float64
	}{
		{"empty", nil, 0, 0, 0, 0, 0},
		{"zero counts as loss", []float64{0}, 1, 0, 1, 0, 0},
		{"only positives summed", []float64{10, -5, 2.5}, 3, 2, 1, 66.7, 12.5},
		{"all losses", []float64{-1, -2}, 2, 0, 2, 0, 0},
		{"float sum rounded", []float64{0.1, 0.2}, 2, 2, 0, 100, 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trades := make([]models.ClosedTrade, 0, len(tt.pnls))
			for i, p := range tt.pnls {
				trades = append(trades, models.ClosedTrade{ID: int64(i + 1), PnlPct: p})
			}

			got := AggregateWindow(7, trades)
			if got.Days != 7 {
				t.Errorf("Days = %d, want 7", got.Days)
			}
			if got.Total != tt.total || got.Wins != tt.wins || got.Losses != tt.losses {
				t.Errorf("counts = %d/%d/%d, want %d/%d/%d",
					got.Total, got.Wins, got.Losses, tt.total, tt.wins, tt.losses)
			}
			if got.WinRatePct != tt.winRate {
				t.Errorf("WinRatePct = %v, want %v", got.WinRatePct, tt.winRate)
			}
			if got.SumPositivePct != tt.sumPosPct {
				t.Errorf("SumPositivePct = %v, want %v", got.SumPositivePct, tt.sumPosPct)
			}
		})
	}
}

func TestPickBestTrade(t *testing.T) {
	if PickBestTrade(nil) != nil {
		t.Error("PickBestTrade(nil) should be nil")
	}

	trades := []models.ClosedTrade{
		{ID: 1, Symbol: "BTCUSDT", PnlPct: -3},
		{ID: 2, Symbol: "ETHUSDT", PnlPct: 4.2},
		{ID: 3, Symbol: "SOLUSDT", PnlPct: 1},
	}
	best := PickBestTrade(trades)
	if best == nil || best.Symbol != "ETHUSDT" || best.PnlPct != 4.2 {
		t.Errorf("PickBestTrade() = %+v, want ETHUSDT 4.2", best)
	}

	// лучшая из убыточных
	best = PickBestTrade([]models.ClosedTrade{{Symbol: "A", PnlPct: -5}, {Symbol: "B", PnlPct: -1}})
	if best == nil || best.Symbol != "B" {
		t.Errorf("PickBestTrade() = %+v, want B", best)
	}
}

// ============================================================
// Бэкфилл
// ============================================================

func seedPair(repo *MockSignalRepository, symbol string, openSide, closeSide models.Side, openPrice, closePrice float64, closedAt time.Time, pnl *float64) (open, closing *models.Signal) {
	open = repo.seed(models.Signal{Symbol: symbol, Side: openSide, Price: openPrice, Time: closedAt})
	ref := open.ID
	closing = repo.seed(models.Signal{
		Symbol:    symbol,
		Side:      closeSide,
		Price:     closePrice,
		Time:      closedAt,
		RefOpenID: &ref,
		ClosedAt:  timePtr(closedAt),
		PnlPct:    pnl,
	})
	return open, closing
}

func TestBackfill(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	repo := NewMockSignalRepository()

	_, unpricedLong := seedPair(repo, "BTCUSDT", models.SideLong, models.SideCloseLong, 100, 110, now.Add(-time.Hour), nil)
	_, unpricedShort := seedPair(repo, "ETHUSDT", models.SideShort, models.SideCloseShort, 50, 45, now.Add(-time.Hour), nil)
	_, priced := seedPair(repo, "SOLUSDT", models.SideLong, models.SideCloseLong, 10, 11, now.Add(-time.Hour), pnlPtr(3))
	orphan := repo.seed(models.Signal{Symbol: "BTCUSDT", Side: models.SideCloseShort, Price: 90, ClosedAt: timePtr(now)})

	svc := newTestStatsService(repo, now)

	updated, err := svc.Backfill(context.Background())
	if err != nil {
		t.Fatalf("Backfill() error = %v", err)
	}
	if updated != 2 {
		t.Fatalf("Backfill() updated = %d, want 2", updated)
	}

	if got := repo.get(unpricedLong.ID).PnlPct; got == nil || *got != 10 {
		t.Errorf("long close PnlPct = %v, want 10", got)
	}
	if got := repo.get(unpricedShort.ID).PnlPct; got == nil || *got != 10 {
		t.Errorf("short close PnlPct = %v, want 10", got)
	}
	if got := repo.get(priced.ID).PnlPct; *got != 3 {
		t.Errorf("existing PnlPct overwritten: %v", *got)
	}
	if repo.get(orphan.ID).PnlPct != nil {
		t.Error("close without open must stay unpriced")
	}

	// повторный запуск ничего не меняет
	updated, err = svc.Backfill(context.Background())
	if err != nil || updated != 0 {
		t.Errorf("second Backfill() = %d, %v; want 0, nil", updated, err)
	}
}

func TestBackfillConcurrent(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	repo := NewMockSignalRepository()
	for i := 0; i < 20; i++ {
		seedPair(repo, "BTCUSDT", models.SideLong, models.SideCloseLong, 100, 105, now, nil)
	}
	svc := newTestStatsService(repo, now)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := svc.Backfill(context.Background())
			if err != nil {
				t.Errorf("Backfill() error = %v", err)
				return
			}
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	if total != 20 {
		t.Errorf("rows written across concurrent runs = %d, want 20", total)
	}
}

func TestBackfillErrors(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	t.Run("list error", func(t *testing.T) {
		repo := NewMockSignalRepository()
		repo.listErr = errors.New("db down")
		if _, err := newTestStatsService(repo, now).Backfill(context.Background()); err == nil {
			t.Error("Backfill() expected error")
		}
	})

	t.Run("write error", func(t *testing.T) {
		repo := NewMockSignalRepository()
		seedPair(repo, "BTCUSDT", models.SideLong, models.SideCloseLong, 100, 110, now, nil)
		repo.setPnlErr = errors.New("db down")
		if _, err := newTestStatsService(repo, now).Backfill(context.Background()); err == nil {
			t.Error("Backfill() expected error")
		}
	})

	t.Run("invalid open price skipped", func(t *testing.T) {
		repo := NewMockSignalRepository()
		seedPair(repo, "BTCUSDT", models.SideLong, models.SideCloseLong, 0, 110, now, nil)
		updated, err := newTestStatsService(repo, now).Backfill(context.Background())
		if err != nil || updated != 0 {
			t.Errorf("Backfill() = %d, %v; want 0, nil", updated, err)
		}
	})
}

// ============================================================
// Окна статистики
// ============================================================

func TestGetWindowStats(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	repo := NewMockSignalRepository()

	seedPair(repo, "BTCUSDT", models.SideLong, models.SideCloseLong, 100, 110, now.Add(-2*time.Hour), pnlPtr(10))
	seedPair(repo, "ETHUSDT", models.SideShort, models.SideCloseShort, 50, 51, now.Add(-3*24*time.Hour), pnlPtr(-2))
	// ровно на границе суточного окна
	seedPair(repo, "SOLUSDT", models.SideLong, models.SideCloseLong, 10, 10, now.Add(-24*time.Hour), pnlPtr(0))
	// на микросекунду старше границы: в суточное окно не попадает
	seedPair(repo, "ETHUSDT", models.SideLong, models.SideCloseLong, 100, 107, now.Add(-24*time.Hour-time.Microsecond), pnlPtr(7))
	// за пределами месяца
	seedPair(repo, "BTCUSDT", models.SideLong, models.SideCloseLong, 100, 150, now.Add(-40*24*time.Hour), pnlPtr(50))
	// закрытие без PnL, которое бэкфилл досчитает
	seedPair(repo, "BTCUSDT", models.SideLong, models.SideCloseLong, 100, 104, now.Add(-time.Hour), nil)

	svc := newTestStatsService(repo, now)

	tests := []struct {
		days      int
		wantDays  int
		total     int
		wins      int
		sumPosPct float64
	}{
		{0, 1, 3, 2, 14},
		{1, 1, 3, 2, 14},
		{7, 7, 5, 3, 21},
		{1000, 90, 6, 4, 71},
	}

	for _, tt := range tests {
		stats, err := svc.GetWindowStats(context.Background(), tt.days)
		if err != nil {
			t.Fatalf("GetWindowStats(%d) error = %v", tt.days, err)
		}
		if stats.Days != tt.wantDays {
			t.Errorf("GetWindowStats(%d).Days = %d, want %d", tt.days, stats.Days, tt.wantDays)
		}
		if stats.Total != tt.total || stats.Wins != tt.wins {
			t.Errorf("GetWindowStats(%d) total/wins = %d/%d, want %d/%d", tt.days, stats.Total, stats.Wins, tt.total, tt.wins)
		}
		if stats.SumPositivePct != tt.sumPosPct {
			t.Errorf("GetWindowStats(%d).SumPositivePct = %v, want %v", tt.days, stats.SumPositivePct, tt.sumPosPct)
		}
	}
}

func TestGetPerformance(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	repo := NewMockSignalRepository()
	seedPair(repo, "BTCUSDT", models.SideLong, models.SideCloseLong, 100, 110, now.Add(-time.Hour), nil)
	seedPair(repo, "ETHUSDT", models.SideLong, models.SideCloseLong, 100, 95, now.Add(-5*24*time.Hour), pnlPtr(-5))
	seedPair(repo, "SOLUSDT", models.SideLong, models.SideCloseLong, 100, 120, now.Add(-20*24*time.Hour), pnlPtr(20))

	svc := newTestStatsService(repo, now)
	hub := &MockLiveBroadcaster{}
	svc.SetWebSocketHub(hub)

	perf, err := svc.GetPerformance(context.Background())
	if err != nil {
		t.Fatalf("GetPerformance() error = %v", err)
	}

	if perf.Day.Total != 1 || perf.Week.Total != 2 || perf.Month.Total != 3 {
		t.Errorf("totals = %d/%d/%d, want 1/2/3", perf.Day.Total, perf.Week.Total, perf.Month.Total)
	}
	if perf.Day.WinRatePct != 100 || perf.Week.WinRatePct != 50 {
		t.Errorf("win rates = %v/%v, want 100/50", perf.Day.WinRatePct, perf.Week.WinRatePct)
	}
	if perf.Month.SumPositivePct != 30 {
		t.Errorf("Month.SumPositivePct = %v, want 30", perf.Month.SumPositivePct)
	}

	svc.PublishPerformance(context.Background())
	if _, stats, _ := hub.counts(); stats != 1 {
		t.Errorf("live stats = %d, want 1", stats)
	}
}

func TestGetPerformanceRangeError(t *testing.T) {
	repo := NewMockSignalRepository()
	repo.rangeErr = errors.New("db down")
	svc := newTestStatsService(repo, time.Now())

	if _, err := svc.GetPerformance(context.Background()); err == nil {
		t.Error("GetPerformance() expected error")
	}

	hub := &MockLiveBroadcaster{}
	svc.SetWebSocketHub(hub)
	svc.PublishPerformance(context.Background())
	if _, stats, _ := hub.counts(); stats != 0 {
		t.Error("failed refresh must not reach the live feed")
	}
}

func TestDigest(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	repo := NewMockSignalRepository()
	seedPair(repo, "BTCUSDT", models.SideLong, models.SideCloseLong, 100, 103, now.Add(-time.Hour), pnlPtr(3))
	seedPair(repo, "ETHUSDT", models.SideShort, models.SideCloseShort, 100, 92, now.Add(-2*time.Hour), pnlPtr(8))
	seedPair(repo, "SOLUSDT", models.SideLong, models.SideCloseLong, 100, 150, now.Add(-48*time.Hour), pnlPtr(50))

	stats, best, err := newTestStatsService(repo, now).Digest(context.Background())
	if err != nil {
		t.Fatalf("Digest() error = %v", err)
	}
	if stats.Total != 2 || stats.SumPositivePct != 11 {
		t.Errorf("stats = %+v, want total 2 sum 11", stats)
	}
	if best == nil || best.Symbol != "ETHUSDT" || best.Side != models.SideCloseShort {
		t.Errorf("best = %+v, want ETHUSDT CLOSE_SHORT", best)
	}
}
