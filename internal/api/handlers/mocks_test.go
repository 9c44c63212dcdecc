package handlers

import (
	"context"
	"errors"
	"sync"

	"sourcetrader/internal/models"
	"sourcetrader/internal/service"
	"sourcetrader/internal/telegram"
)

// ErrMockDatabase - ошибка хранилища в моках
var ErrMockDatabase = errors.New("mock database error")

// ============ Mock Signal Service ============

// MockSignalService мок для SignalServiceInterface
type MockSignalService struct {
	mu        sync.Mutex
	requests  []service.IngestRequest
	nextID    int64
	ingestErr error
	signals   []*models.Signal
	recentErr error
	lastLimit int
}

// NewMockSignalService создает мок сервиса сигналов
func NewMockSignalService() *MockSignalService {
	return &MockSignalService{nextID: 1}
}

func (m *MockSignalService) Ingest(ctx context.Context, req service.IngestRequest) (*service.IngestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if m.ingestErr != nil {
		return nil, m.ingestErr
	}

	id := m.nextID
	m.nextID++
	return &service.IngestResult{ID: id, Signal: &models.Signal{ID: id, Symbol: req.Symbol}}, nil
}

func (m *MockSignalService) Recent(ctx context.Context, limit int) ([]*models.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastLimit = limit
	if m.recentErr != nil {
		return nil, m.recentErr
	}
	if len(m.signals) > limit {
		return m.signals[:limit], nil
	}
	return m.signals, nil
}

// Requests возвращает принятые запросы
func (m *MockSignalService) Requests() []service.IngestRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]service.IngestRequest(nil), m.requests...)
}

// ============ Mock Stats Service ============

// MockStatsService мок для StatsServiceInterface
type MockStatsService struct {
	perf        *models.Performance
	backfilled  int
	backfillErr error
	windowErr   error
	perfErr     error
	lastDays    int
	calls       int
}

// NewMockStatsService создает мок сервиса статистики
func NewMockStatsService() *MockStatsService {
	return &MockStatsService{perf: &models.Performance{
		Day:   models.WindowStats{Days: 1},
		Week:  models.WindowStats{Days: 7},
		Month: models.WindowStats{Days: 30},
	}}
}

func (m *MockStatsService) Backfill(ctx context.Context) (int, error) {
	m.calls++
	return m.backfilled, m.backfillErr
}

func (m *MockStatsService) GetWindowStats(ctx context.Context, days int) (*models.WindowStats, error) {
	m.lastDays = days
	if m.windowErr != nil {
		return nil, m.windowErr
	}
	return &models.WindowStats{Days: service.ClampWindowDays(days), Total: 2, Wins: 1, Losses: 1, WinRatePct: 50}, nil
}

func (m *MockStatsService) GetPerformance(ctx context.Context) (*models.Performance, error) {
	if m.perfErr != nil {
		return nil, m.perfErr
	}
	return m.perf, nil
}

// ============ Mock Summary Service ============

// MockSummaryService мок для SummaryServiceInterface
type MockSummaryService struct {
	result *models.SummaryResult
	err    error
	calls  int
}

func (m *MockSummaryService) Trigger(ctx context.Context) (*models.SummaryResult, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return &models.SummaryResult{Status: models.SummaryTooEarly, LocalDate: "2024-01-15", LocalTime: "12:00"}, nil
	}
	return m.result, nil
}

// ============ Mock Bot Service ============

// MockBotService мок для BotServiceInterface
type MockBotService struct {
	updates []*telegram.Update
	err     error
}

func (m *MockBotService) HandleUpdate(ctx context.Context, update *telegram.Update) error {
	m.updates = append(m.updates, update)
	return m.err
}

// ============ Mock Pinger ============

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error {
	return m.err
}
