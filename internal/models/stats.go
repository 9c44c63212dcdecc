package models

import "time"

// WindowStats - статистика закрытых сделок за скользящее окно.
//
// Wins - сделки с pnl > 0, Losses - с pnl <= 0. WinRatePct округляется
// до 1 знака, SumPositivePct (сумма только положительных PnL) до 2 знаков.
type WindowStats struct {
	Days           int     `json:"days"`
	Total          int     `json:"total"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	WinRatePct     float64 `json:"winrate_pct"`
	SumPositivePct float64 `json:"sum_positive_pct"`
}

// Performance - статистика за день, неделю и месяц
type Performance struct {
	Day   WindowStats `json:"day"`
	Week  WindowStats `json:"week"`
	Month WindowStats `json:"month"`
}

// BestTrade - лучшая сделка окна для дневной сводки
type BestTrade struct {
	Symbol   string    `json:"symbol"`
	Side     Side      `json:"side"`
	PnlPct   float64   `json:"pnl_pct"`
	ClosedAt time.Time `json:"closed_at"`
}
