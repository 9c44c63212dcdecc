package service

import (
	"context"
	"time"

	"sourcetrader/internal/models"
	"sourcetrader/internal/repository"
	"sourcetrader/internal/telegram"
)

// SignalRepositoryInterface определяет интерфейс хранилища сигналов
type SignalRepositoryInterface interface {
	Insert(ctx context.Context, s *models.Signal) error
	SetReference(ctx context.Context, id int64, refOpenID *int64) error
	SetExternalRef(ctx context.Context, id int64, ref *int64) error
	MarkClosed(ctx context.Context, id int64, closedAt time.Time) error
	SetPnl(ctx context.Context, id int64, pnl float64) (bool, error)
	GetByID(ctx context.Context, id int64) (*models.Signal, error)
	LatestOpen(ctx context.Context, symbol string, side models.Side, beforeID int64) (*models.Signal, error)
	Recent(ctx context.Context, limit int) ([]*models.Signal, error)
	ListUnpricedCloses(ctx context.Context) ([]models.UnpricedClose, error)
	ListClosedInRange(ctx context.Context, from, to time.Time) ([]models.ClosedTrade, error)
	Count(ctx context.Context) (int, error)
}

// SubscriberRepositoryInterface определяет интерфейс хранилища подписчиков
type SubscriberRepositoryInterface interface {
	Ensure(ctx context.Context, id, chatID int64) (*models.Subscriber, error)
	GetByID(ctx context.Context, id int64) (*models.Subscriber, error)
	ActiveChatIDs(ctx context.Context, now time.Time) ([]int64, error)
	ActivateTrial(ctx context.Context, id int64, until time.Time) (bool, error)
	SetAwaitingTx(ctx context.Context, id int64, awaiting bool) error
	Extend(ctx context.Context, id int64, until time.Time) error
	CountActive(ctx context.Context, now time.Time) (int, error)
}

// StateRepositoryInterface определяет интерфейс хранилища служебных значений
type StateRepositoryInterface interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Проверяем, что реальные репозитории реализуют интерфейсы
var _ SignalRepositoryInterface = (*repository.SignalRepository)(nil)
var _ SubscriberRepositoryInterface = (*repository.SubscriberRepository)(nil)
var _ StateRepositoryInterface = (*repository.StateRepository)(nil)

// ============ Внешние получатели ============

// MessageSender - доставка сообщений в чат
type MessageSender = telegram.Sender

// EventPublisher - публикация событий сигналов во внешнюю шину
type EventPublisher interface {
	PublishSignal(ctx context.Context, s *models.Signal) error
}

// LiveBroadcaster - live-лента для админки
type LiveBroadcaster interface {
	BroadcastSignal(signal *models.Signal)
	BroadcastStats(perf *models.Performance)
	BroadcastSummary(result *models.SummaryResult)
}

// ============ Интерфейсы сервисов для Dependency Injection ============

// SignalServiceInterface определяет интерфейс приема сигналов
type SignalServiceInterface interface {
	Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error)
	Recent(ctx context.Context, limit int) ([]*models.Signal, error)
}

// StatsServiceInterface определяет интерфейс сервиса статистики
type StatsServiceInterface interface {
	Backfill(ctx context.Context) (int, error)
	GetWindowStats(ctx context.Context, days int) (*models.WindowStats, error)
	GetPerformance(ctx context.Context) (*models.Performance, error)
}

// SummaryServiceInterface определяет интерфейс планировщика сводки
type SummaryServiceInterface interface {
	Trigger(ctx context.Context) (*models.SummaryResult, error)
}

// BotServiceInterface определяет интерфейс обработчика команд бота
type BotServiceInterface interface {
	HandleUpdate(ctx context.Context, update *telegram.Update) error
}

// Проверяем, что реальные сервисы реализуют интерфейсы
var _ SignalServiceInterface = (*SignalService)(nil)
var _ StatsServiceInterface = (*StatsService)(nil)
var _ SummaryServiceInterface = (*SummaryService)(nil)
var _ BotServiceInterface = (*BotService)(nil)
