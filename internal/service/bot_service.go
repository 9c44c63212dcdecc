package service

import (
	"context"
	"strings"
	"time"

	"sourcetrader/internal/models"
	"sourcetrader/internal/telegram"
	"sourcetrader/pkg/utils"
)

// Количество сигналов в ответе на /last
const recentSignalsInBot = 5

type botCommand int

const (
	cmdNone botCommand = iota
	cmdStart
	cmdHelp
	cmdSupport
	cmdStats
	cmdLast
	cmdSubscribe
	cmdStatus
)

// команды и кнопки клавиатуры
var botCommands = map[string]botCommand{
	"/start":                 cmdStart,
	"/help":                  cmdHelp,
	"/support":               cmdSupport,
	"/stats":                 cmdStats,
	"/last":                  cmdLast,
	"/subscribe":             cmdSubscribe,
	"/status":                cmdStatus,
	telegram.ButtonHelp:      cmdHelp,
	telegram.ButtonSupport:   cmdSupport,
	telegram.ButtonStats:     cmdStats,
	telegram.ButtonLast:      cmdLast,
	telegram.ButtonSubscribe: cmdSubscribe,
}

// parseCommand распознает команду; "/stats@bot_name" равно "/stats"
func parseCommand(text string) botCommand {
	if cmd, ok := botCommands[text]; ok {
		return cmd
	}
	if strings.HasPrefix(text, "/") {
		name := strings.Fields(text)[0]
		if at := strings.IndexByte(name, '@'); at > 0 {
			name = name[:at]
		}
		return botCommands[strings.ToLower(name)]
	}
	return cmdNone
}

// Replier - ответ в один чат
type Replier interface {
	Reply(ctx context.Context, chatID int64, text string) error
}

var _ Replier = (*NotificationService)(nil)

// RecentSignalsProvider - последние сигналы для /last
type RecentSignalsProvider interface {
	Recent(ctx context.Context, limit int) ([]*models.Signal, error)
}

// BotService обрабатывает обновления Telegram.
//
// Команды: /start (пробный период), /stats, /last, /subscribe, /status, /help, поддержка.
// После /subscribe следующий произвольный текст считается идентификатором транзакции.
// Неизвестный текст получает справку.
type BotService struct {
	subscriptions *SubscriptionService
	stats         StatsServiceInterface
	signals       RecentSignalsProvider
	replier       Replier
	formatter     *MessageFormatter
	logger        *utils.Logger
	now           func() time.Time
}

// NewBotService создает обработчик команд
func NewBotService(
	subscriptions *SubscriptionService,
	stats StatsServiceInterface,
	signals RecentSignalsProvider,
	replier Replier,
	formatter *MessageFormatter,
	logger *utils.Logger,
) *BotService {
	if logger == nil {
		logger = utils.L()
	}
	return &BotService{
		subscriptions: subscriptions,
		stats:         stats,
		signals:       signals,
		replier:       replier,
		formatter:     formatter,
		logger:        logger.WithComponent("bot"),
		now:           time.Now,
	}
}

// HandleUpdate обрабатывает одно обновление.
// Ответ уходит через Reply: сбой доставки логируется и считается в метриках
// внутри NotificationService, а HandleUpdate возвращает nil, чтобы Telegram
// не повторял обновление. Ошибку возвращают только регистрация и команды.
func (b *BotService) HandleUpdate(ctx context.Context, update *telegram.Update) error {
	msg := update.IncomingMessage()
	if msg == nil || msg.From == nil {
		return nil
	}

	userID := msg.From.ID
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	sub, err := b.subscriptions.Register(ctx, userID, chatID)
	if err != nil {
		return err
	}

	reply, err := b.route(ctx, sub, text)
	if err != nil {
		return err
	}

	b.replier.Reply(ctx, chatID, reply)
	return nil
}

func (b *BotService) route(ctx context.Context, sub *models.Subscriber, text string) (string, error) {
	switch parseCommand(text) {
	case cmdHelp:
		return b.formatter.HelpText(), nil

	case cmdSupport:
		return b.formatter.SupportText(), nil

	case cmdStats:
		perf, err := b.stats.GetPerformance(ctx)
		if err != nil {
			b.logger.Warn("stats for bot failed", utils.Err(err))
			return b.formatter.StatsUnavailable(), nil
		}
		return b.formatter.FormatStats(perf), nil

	case cmdLast:
		signals, err := b.signals.Recent(ctx, recentSignalsInBot)
		if err != nil {
			return "", err
		}
		return b.formatter.FormatRecent(signals), nil

	case cmdSubscribe:
		if err := b.subscriptions.RequestPayment(ctx, sub.ID); err != nil {
			return "", err
		}
		return b.formatter.SubscribePrompt(), nil

	case cmdStart:
		updated, _, err := b.subscriptions.StartTrial(ctx, sub.ID)
		if err != nil {
			return "", err
		}
		return b.formatter.FormatWelcome(updated, b.now()), nil

	case cmdStatus:
		return b.formatter.FormatStatus(sub, b.now()), nil
	}

	if sub.AwaitingTx && text != "" {
		until, err := b.subscriptions.ConfirmPayment(ctx, sub, text)
		if err != nil {
			return "", err
		}
		return b.formatter.FormatPaymentAccepted(until), nil
	}

	return b.formatter.HelpText(), nil
}
