package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"sourcetrader/internal/config"
	"sourcetrader/internal/metrics"
	"sourcetrader/internal/models"
	"sourcetrader/internal/telegram"
	"sourcetrader/pkg/utils"
)

// Виды исходящих сообщений (метка в метриках)
const (
	DispatchSignal  = "signal"
	DispatchSummary = "summary"
	DispatchReply   = "reply"
)

// DispatchReport - итог рассылки
type DispatchReport struct {
	Recipients int
	Delivered  int
}

// NotificationService рассылает сообщения подписчикам.
//
// Функции:
// - DispatchSignal: асинхронная рассылка сигнала всем активным подписчикам
// - Broadcast: синхронная рассылка (дневная сводка)
// - Reply: ответ в один чат с клавиатурой
//
// Ошибка доставки одному получателю логируется и учитывается в метриках,
// но не прерывает рассылку. Темп ограничен rate.Limiter.
type NotificationService struct {
	sender      MessageSender
	subscribers SubscriberRepositoryInterface
	formatter   *MessageFormatter
	limiter     *rate.Limiter
	logger      *utils.Logger
	now         func() time.Time

	wg sync.WaitGroup
}

// NewNotificationService создает сервис рассылки
func NewNotificationService(
	sender MessageSender,
	subscribers SubscriberRepositoryInterface,
	formatter *MessageFormatter,
	cfg config.TelegramConfig,
	logger *utils.Logger,
) *NotificationService {
	if logger == nil {
		logger = utils.L()
	}
	limit := rate.Limit(cfg.RatePerSecond)
	if cfg.RatePerSecond <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &NotificationService{
		sender:      sender,
		subscribers: subscribers,
		formatter:   formatter,
		limiter:     rate.NewLimiter(limit, burst),
		logger:      logger.WithComponent("notifier"),
		now:         time.Now,
	}
}

// DispatchSignal запускает рассылку сигнала в фоне.
// Сигнал копируется: вызывающий может менять исходную структуру.
func (s *NotificationService) DispatchSignal(signal *models.Signal) {
	snapshot := *signal
	text := s.formatter.FormatSignal(&snapshot)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		report, err := s.broadcast(context.Background(), DispatchSignal, text, telegram.DefaultKeyboard())
		if err != nil {
			s.logger.Error("signal fan-out failed", utils.SignalID(snapshot.ID), utils.Err(err))
			return
		}
		s.logger.Info("signal fan-out finished",
			utils.SignalID(snapshot.ID),
			utils.Symbol(snapshot.Symbol),
			utils.Recipients(report.Recipients),
			utils.Int("delivered", report.Delivered),
		)
	}()
}

// Broadcast синхронно отправляет текст всем активным подписчикам
func (s *NotificationService) Broadcast(ctx context.Context, kind, text string) (*DispatchReport, error) {
	return s.broadcast(ctx, kind, text, nil)
}

func (s *NotificationService) broadcast(ctx context.Context, kind, text string, keyboard *telegram.ReplyKeyboardMarkup) (*DispatchReport, error) {
	chatIDs, err := s.subscribers.ActiveChatIDs(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to load active subscribers: %w", err)
	}
	metrics.SetActiveSubscribers(len(chatIDs))

	report := &DispatchReport{Recipients: len(chatIDs)}
	for _, chatID := range chatIDs {
		if err := s.limiter.Wait(ctx); err != nil {
			return report, fmt.Errorf("fan-out interrupted: %w", err)
		}
		if err := s.send(ctx, kind, chatID, text, keyboard); err == nil {
			report.Delivered++
		}
	}
	return report, nil
}

// Reply отправляет ответ в один чат с основной клавиатурой
func (s *NotificationService) Reply(ctx context.Context, chatID int64, text string) error {
	return s.send(ctx, DispatchReply, chatID, text, telegram.DefaultKeyboard())
}

func (s *NotificationService) send(ctx context.Context, kind string, chatID int64, text string, keyboard *telegram.ReplyKeyboardMarkup) error {
	err := s.sender.SendMessage(ctx, telegram.OutgoingMessage{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             telegram.ParseModeMarkdown,
		DisableWebPagePreview: true,
		ReplyMarkup:           keyboard,
	})
	metrics.RecordDispatch(kind, err == nil)
	if err != nil {
		s.logger.Warn("message delivery failed",
			utils.ChatID(chatID),
			utils.String("kind", kind),
			utils.Err(err),
		)
	}
	return err
}

// Wait ждет завершения фоновых рассылок или отмены ctx
func (s *NotificationService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
