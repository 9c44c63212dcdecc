package utils

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// math.go - математические утилиты для расчета результатов сигналов
//
// Назначение:
// Вспомогательные функции расчета PnL и округления статистики.
// Все функции являются чистыми (pure functions) без побочных эффектов.
//
// Функции:
// - CalculatePnlPct: процент прибыли/убытка закрытия относительно открытия
// - RoundTo: округление до N знаков (decimal, half away from zero)
// - WinRatePct: доля прибыльных сделок в процентах
// - FormatPrice: компактное отображение цены

// PnlPrecision - количество знаков после запятой для хранения pnl_pct
const PnlPrecision = 4

// Стороны закрытия, для которых определен PnL
const (
	closeLong  = "CLOSE_LONG"
	closeShort = "CLOSE_SHORT"
)

var hundred = decimal.NewFromInt(100)

// CalculatePnlPct рассчитывает процентный результат закрытия.
//
// Формулы:
//   - CLOSE_LONG:  (close - open) / open × 100
//   - CLOSE_SHORT: (open - close) / open × 100
//
// Результат округляется до PnlPrecision знаков.
//
// Возвращает ok=false (расчет пропущен), если:
//   - openPrice <= 0 или цены не конечны
//   - closeSide не является стороной закрытия
func CalculatePnlPct(openPrice, closePrice float64, closeSide string) (float64, bool) {
	if !isFinite(openPrice) || !isFinite(closePrice) || openPrice <= 0 {
		return 0, false
	}

	open := decimal.NewFromFloat(openPrice)
	closing := decimal.NewFromFloat(closePrice)

	var diff decimal.Decimal
	switch strings.ToUpper(closeSide) {
	case closeLong:
		diff = closing.Sub(open)
	case closeShort:
		diff = open.Sub(closing)
	default:
		return 0, false
	}

	pct := diff.Mul(hundred).Div(open).Round(PnlPrecision)
	return pct.InexactFloat64(), true
}

// RoundTo округляет значение до places знаков после запятой
func RoundTo(value float64, places int32) float64 {
	if !isFinite(value) {
		return value
	}
	return decimal.NewFromFloat(value).Round(places).InexactFloat64()
}

// WinRatePct возвращает wins/total×100 с округлением до 1 знака; 0 при total == 0
func WinRatePct(wins, total int) float64 {
	if total <= 0 {
		return 0
	}
	rate := decimal.NewFromInt(int64(wins)).Mul(hundred).Div(decimal.NewFromInt(int64(total)))
	return rate.Round(1).InexactFloat64()
}

// FormatPrice форматирует цену: точность зависит от величины, хвостовые нули убираются.
//
// Пример: 65000.5 -> "65000.5", 1.23400 -> "1.234", 0.000123 -> "0.00012"
func FormatPrice(p float64) string {
	var s string
	switch {
	case p >= 100:
		s = strconv.FormatFloat(p, 'f', 2, 64)
	case p >= 1:
		s = strconv.FormatFloat(p, 'f', 4, 64)
	default:
		s = strconv.FormatFloat(p, 'f', 5, 64)
	}
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}

// ClampInt ограничивает значение диапазоном [min, max]
func ClampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// Clamp ограничивает значение диапазоном [min, max]
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
