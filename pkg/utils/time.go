package utils

import (
	"fmt"
	"time"
)

// time.go - утилиты для работы со временем
//
// Назначение:
// Вспомогательные функции для окон статистики и расписания дневной сводки.
//
// Функции:
// - LoadLocationOrFixed: часовой пояс по имени с запасным фиксированным смещением
// - ParseClock: разбор времени суток "HH:MM"
// - LocalDate: календарная дата в указанном поясе ("2006-01-02")
// - GetLastNDays: скользящее окно [now - n×24h, now]
// - FormatDuration: человекочитаемая продолжительность

// DateLayout - формат календарной даты для маркеров и отображения
const DateLayout = "2006-01-02"

// LoadLocationOrFixed загружает часовой пояс по имени IANA.
// Если база tzdata недоступна, возвращает фиксированный пояс со смещением fallbackOffset.
func LoadLocationOrFixed(name string, fallbackOffset time.Duration) *time.Location {
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	return time.FixedZone(name, int(fallbackOffset.Seconds()))
}

// Clock - время суток с точностью до минуты
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock разбирает строку "HH:MM"
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, fmt.Errorf("invalid time of day %q: expected HH:MM", s)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// String возвращает время в формате "HH:MM"
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On возвращает момент c в день, соответствующий t в поясе loc
func (c Clock) On(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), c.Hour, c.Minute, 0, 0, loc)
}

// Reached проверяет, наступило ли время c в текущих локальных сутках t
func (c Clock) Reached(t time.Time, loc *time.Location) bool {
	return !t.Before(c.On(t, loc))
}

// LocalDate возвращает календарную дату t в поясе loc
func LocalDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// TimeRange представляет временной диапазон
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains проверяет, попадает ли время в диапазон (границы включены)
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && !t.After(tr.End)
}

// Duration возвращает продолжительность диапазона
func (tr TimeRange) Duration() time.Duration {
	return tr.End.Sub(tr.Start)
}

// GetLastNDays возвращает скользящее окно последних n×24 часов до now.
// n <= 0 трактуется как 1.
func GetLastNDays(now time.Time, n int) TimeRange {
	if n <= 0 {
		n = 1
	}
	return TimeRange{
		Start: now.Add(-time.Duration(n) * 24 * time.Hour),
		End:   now,
	}
}

// DaysUntil возвращает количество полных суток до t (0, если t в прошлом)
func DaysUntil(now, t time.Time) int {
	if !t.After(now) {
		return 0
	}
	return int(t.Sub(now).Hours() / 24)
}

// FormatDuration форматирует продолжительность в человекочитаемый формат
//
// Примеры:
//   - "45s"
//   - "5m30s"
//   - "2h15m"
//   - "3d5h"
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}

	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case days > 0:
		if hours > 0 {
			return fmt.Sprintf("%dd%dh", days, hours)
		}
		return fmt.Sprintf("%dd", days)
	case hours > 0:
		if minutes > 0 {
			return fmt.Sprintf("%dh%dm", hours, minutes)
		}
		return fmt.Sprintf("%dh", hours)
	case minutes > 0:
		if seconds > 0 {
			return fmt.Sprintf("%dm%ds", minutes, seconds)
		}
		return fmt.Sprintf("%dm", minutes)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
