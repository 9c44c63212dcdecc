package service

import (
	"fmt"
	"math"
	"strings"
	"time"

	"sourcetrader/internal/config"
	"sourcetrader/internal/models"
	"sourcetrader/pkg/utils"
)

// ============================================================
// Тексты сообщений бота (Markdown)
// ============================================================

const (
	dateTimeLayout = "2006/01/02 - 15:04"
	dateLayout     = "2006/01/02"
	emptyMark      = "—"
	winRateBlocks  = 10
)

const riskNote = "ℹ️ Stop-loss and target levels are suggestions for risk management only.\n" +
	"The strategy may send a smart close signal before either level is reached.\n" +
	"Position sizing and the final decision to hold or close are always yours."

const statsFootnote = "ℹ️ The profit sum adds up positive trades only; losses are not subtracted."

const digestFootnote = "_Based on trades closed during the last 24 hours._"

// MessageFormatter строит тексты сообщений.
// Время выводится в часовом поясе сводки.
type MessageFormatter struct {
	signals config.SignalsConfig
	loc     *time.Location
	support string
}

// NewMessageFormatter создает форматтер
func NewMessageFormatter(signals config.SignalsConfig, loc *time.Location, support string) *MessageFormatter {
	if loc == nil {
		loc = time.UTC
	}
	return &MessageFormatter{signals: signals, loc: loc, support: support}
}

// FormatDateTime - дата и время в локальном поясе
func (f *MessageFormatter) FormatDateTime(t time.Time) string {
	return t.In(f.loc).Format(dateTimeLayout)
}

// FormatDate - дата в локальном поясе, "—" для nil
func (f *MessageFormatter) FormatDate(t *time.Time) string {
	if t == nil {
		return emptyMark
	}
	return t.In(f.loc).Format(dateLayout)
}

func sideIcon(side models.Side) string {
	switch side {
	case models.SideLong:
		return "🟢"
	case models.SideShort:
		return "🔴"
	}
	return "⚪️"
}

// FixedLevels возвращает SL и TP от цены открытия
func FixedLevels(side models.Side, price, slPct, tpPct float64) (sl, tp float64, ok bool) {
	switch side {
	case models.SideLong:
		return price * (1 - slPct), price * (1 + tpPct), true
	case models.SideShort:
		return price * (1 + slPct), price * (1 - tpPct), true
	}
	return 0, 0, false
}

// FormatSignal - сообщение о новом сигнале.
// Для открытий добавляются фиксированные SL/TP (если включены), для закрытий - PnL.
func (f *MessageFormatter) FormatSignal(s *models.Signal) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s *New signal*\n", sideIcon(s.Side))
	fmt.Fprintf(&b, "Symbol: `%s`\n", s.Symbol)
	fmt.Fprintf(&b, "Side: *%s*\n", s.Side.Label())
	fmt.Fprintf(&b, "Price: *%s*\n", utils.FormatPrice(s.Price))
	fmt.Fprintf(&b, "Time: `%s`\n", f.FormatDateTime(s.Time))

	if f.signals.ShowFixedSLTP {
		if sl, tp, ok := FixedLevels(s.Side, s.Price, f.signals.FixedSLPct, f.signals.FixedTPPct); ok {
			fmt.Fprintf(&b, "\nStop-loss: `%s`\n", utils.FormatPrice(sl))
			fmt.Fprintf(&b, "Target: `%s`\n", utils.FormatPrice(tp))
		}
	}

	if s.Side.IsClose() && s.PnlPct != nil {
		fmt.Fprintf(&b, "\nResult: *%s%%*\n", signedPct(*s.PnlPct, 2))
	}

	b.WriteString("\n")
	b.WriteString(riskNote)
	return b.String()
}

// WinRateBar - полоса из 10 блоков, по одному на каждые 10%
func WinRateBar(winRate float64) string {
	winRate = utils.Clamp(winRate, 0, 100)
	filled := int(math.Round(winRate / 10))
	return strings.Repeat("█", filled) + strings.Repeat("░", winRateBlocks-filled)
}

func signedPct(v float64, places int32) string {
	r := utils.RoundTo(v, places)
	if r > 0 {
		return fmt.Sprintf("+%v", r)
	}
	return fmt.Sprintf("%v", r)
}

func statsBlock(title string, w models.WindowStats) string {
	return fmt.Sprintf("• %s:\n"+
		"  ├─ Trades: %d\n"+
		"  ├─ Wins: %d  |  Losses: %d\n"+
		"  ├─ WinRate: %v%%  %s\n"+
		"  └─ Sum of profits: +%v%%\n",
		title, w.Total, w.Wins, w.Losses, w.WinRatePct, WinRateBar(w.WinRatePct), w.SumPositivePct)
}

// FormatStats - ответ на /stats по трем окнам
func (f *MessageFormatter) FormatStats(perf *models.Performance) string {
	return "📊 *Signal performance*\n" +
		"Computed from closed trades only.\n\n" +
		statsBlock("Today", perf.Day) + "\n" +
		statsBlock("Last week", perf.Week) + "\n" +
		statsBlock("Last month", perf.Month) + "\n" +
		statsFootnote
}

// FormatDigest - дневная сводка
func (f *MessageFormatter) FormatDigest(day models.WindowStats, best *models.BestTrade) string {
	bestLine := emptyMark
	if best != nil {
		bestLine = fmt.Sprintf("%s | %s | %s%%", best.Symbol, best.Side.Label(), signedPct(best.PnlPct, 2))
	}

	return "🟢 *Daily signal summary*\n" +
		fmt.Sprintf("• Closed trades: %d\n", day.Total) +
		fmt.Sprintf("• WinRate: %v%%\n", day.WinRatePct) +
		fmt.Sprintf("• Best trade of the day: %s\n", bestLine) +
		fmt.Sprintf("• Cumulative profit if all were taken: +%v%%\n", day.SumPositivePct) +
		digestFootnote
}

// FormatRecent - ответ на /last
func (f *MessageFormatter) FormatRecent(signals []*models.Signal) string {
	if len(signals) == 0 {
		return "No signals recorded yet."
	}
	lines := make([]string, 0, len(signals)+1)
	lines = append(lines, "🕒 Last signals:")
	for _, s := range signals {
		lines = append(lines, fmt.Sprintf("- %s | %s | %s | %s",
			s.Symbol, s.Side.Label(), utils.FormatPrice(s.Price), f.FormatDateTime(s.Time)))
	}
	return strings.Join(lines, "\n")
}

// FormatStatus - состояние подписки
func (f *MessageFormatter) FormatStatus(sub *models.Subscriber, now time.Time) string {
	state := "⛔️ inactive"
	if sub != nil && sub.IsActive(now) {
		state = "✅ active"
	}
	var expires *time.Time
	if sub != nil {
		expires = sub.ExpiresAt
	}
	return fmt.Sprintf("Subscription: %s\nExpires: %s", state, f.FormatDate(expires))
}

// FormatWelcome - ответ на /start
func (f *MessageFormatter) FormatWelcome(sub *models.Subscriber, now time.Time) string {
	return "Welcome 👋\n" + f.FormatStatus(sub, now)
}

// FormatPaymentAccepted - подтверждение продления
func (f *MessageFormatter) FormatPaymentAccepted(until time.Time) string {
	return fmt.Sprintf("✅ Payment received. Subscription is active until %s.", f.FormatDate(&until))
}

// SubscribePrompt - запрос идентификатора транзакции
func (f *MessageFormatter) SubscribePrompt() string {
	return "To activate a subscription, send the crypto transaction hash or link right here.\n" +
		"The subscription is activated once it is received."
}

// SupportText - контакт поддержки
func (f *MessageFormatter) SupportText() string {
	return "For support and questions: " + f.support
}

// StatsUnavailable - текст при ошибке расчета статистики
func (f *MessageFormatter) StatsUnavailable() string {
	return "❗️ Statistics are unavailable right now. Please try again later."
}

// HelpText - справка по командам
func (f *MessageFormatter) HelpText() string {
	return "ℹ️ Help\n\n" +
		"Welcome to SourceTrader!\n" +
		"— Signals are delivered automatically from the strategy.\n" +
		fmt.Sprintf("— Times are shown in %s.\n\n", f.loc.String()) +
		"Commands:\n" +
		"• /start — start and show subscription status\n" +
		"• /subscribe — request a subscription (manual confirmation)\n" +
		"• /last — show the latest signals\n" +
		"• /stats — today/week/month stats (wins, losses, WinRate, sum of profits)\n" +
		"• /status — subscription status\n" +
		"• /help — this page\n\n" +
		"Support: " + f.support
}
