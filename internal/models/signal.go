package models

import (
	"fmt"
	"strings"
	"time"
)

// Side - сторона сигнала в том виде, в котором ее присылает источник
type Side string

// Стороны сигнала
const (
	SideLong       Side = "LONG"
	SideShort      Side = "SHORT"
	SideCloseLong  Side = "CLOSE_LONG"
	SideCloseShort Side = "CLOSE_SHORT"
)

// ParseSide нормализует регистр и отклоняет неизвестные значения
func ParseSide(s string) (Side, error) {
	side := Side(strings.ToUpper(strings.TrimSpace(s)))
	switch side {
	case SideLong, SideShort, SideCloseLong, SideCloseShort:
		return side, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

// IsOpen - LONG или SHORT
func (s Side) IsOpen() bool {
	return s == SideLong || s == SideShort
}

// IsClose - CLOSE_LONG или CLOSE_SHORT
func (s Side) IsClose() bool {
	return s == SideCloseLong || s == SideCloseShort
}

// Direction возвращает направление позиции
func (s Side) Direction() Direction {
	switch s {
	case SideShort, SideCloseShort:
		return DirectionShort
	default:
		return DirectionLong
	}
}

// OpenSide возвращает сторону открытия, которую закрывает s.
// Для открытий возвращает s.
func (s Side) OpenSide() Side {
	switch s {
	case SideCloseLong:
		return SideLong
	case SideCloseShort:
		return SideShort
	}
	return s
}

// Label - человекочитаемое название стороны
func (s Side) Label() string {
	switch s {
	case SideLong:
		return "Long"
	case SideShort:
		return "Short"
	case SideCloseLong:
		return "Close Long"
	case SideCloseShort:
		return "Close Short"
	}
	return string(s)
}

// Event переводит сторону в вариант события.
// resolvedRef передается только для закрытий.
func (s Side) Event(resolvedRef *int64) Event {
	if s.IsClose() {
		return CloseEvent{Dir: s.Direction(), ResolvedRef: resolvedRef}
	}
	return OpenEvent{Dir: s.Direction()}
}

// Direction - направление позиции
type Direction string

// Направления позиции
const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// OpenSide возвращает сторону открытия для направления
func (d Direction) OpenSide() Side {
	if d == DirectionShort {
		return SideShort
	}
	return SideLong
}

// CloseSide возвращает сторону закрытия для направления
func (d Direction) CloseSide() Side {
	if d == DirectionShort {
		return SideCloseShort
	}
	return SideCloseLong
}

// Event - событие жизненного цикла сигнала: OpenEvent или CloseEvent
type Event interface {
	Direction() Direction
	isEvent()
}

// OpenEvent - открытие позиции
type OpenEvent struct {
	Dir Direction
}

// Direction возвращает направление открытия
func (e OpenEvent) Direction() Direction { return e.Dir }
func (OpenEvent) isEvent() {}

// CloseEvent - закрытие позиции; ResolvedRef заполняется после поиска открытия
type CloseEvent struct {
	Dir         Direction
	ResolvedRef *int64
}

// Direction возвращает направление закрываемой позиции
func (e CloseEvent) Direction() Direction { return e.Dir }
func (CloseEvent) isEvent() {}

// Signal представляет сохраненный сигнал.
//
// RefOpenID, PnlPct и ClosedAt заполняются только у закрытий;
// PnlPct записывается один раз. ExternalRef - метка источника у открытий.
type Signal struct {
	ID          int64      `json:"id" db:"id"`
	Symbol      string     `json:"symbol" db:"symbol"`
	Side        Side       `json:"side" db:"side"`
	Price       float64    `json:"price" db:"price"`
	Time        time.Time  `json:"time" db:"time"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	RefOpenID   *int64     `json:"ref_open_id,omitempty" db:"ref_open_id"`
	PnlPct      *float64   `json:"pnl_pct,omitempty" db:"pnl_pct"`
	ClosedAt    *time.Time `json:"closed_at,omitempty" db:"closed_at"`
	ExternalRef *int64     `json:"ext_ref,omitempty" db:"ext_ref"`
}

// Event возвращает вариант события сигнала
func (s *Signal) Event() Event {
	return s.Side.Event(s.RefOpenID)
}

// IsWin - закрытие с положительным PnL. Нулевой PnL считается убытком.
func (s *Signal) IsWin() bool {
	return s.PnlPct != nil && *s.PnlPct > 0
}

// UnpricedClose - закрытие с найденным открытием, но без PnL
type UnpricedClose struct {
	ID        int64   `json:"id"`
	Side      Side    `json:"side"`
	Price     float64 `json:"price"`
	RefOpenID int64   `json:"ref_open_id"`
	OpenPrice float64 `json:"open_price"`
}

// ClosedTrade - закрытие с рассчитанным PnL, входные данные статистики
type ClosedTrade struct {
	ID       int64     `json:"id"`
	Symbol   string    `json:"symbol"`
	Side     Side      `json:"side"`
	PnlPct   float64   `json:"pnl_pct"`
	ClosedAt time.Time `json:"closed_at"`
}
