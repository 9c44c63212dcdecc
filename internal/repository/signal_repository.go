package repository

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"sourcetrader/internal/models"
)

// Ошибки репозитория сигналов
var (
	ErrSignalNotFound = errors.New("signal not found")
	ErrInvalidSignal  = errors.New("invalid signal")
)

const signalColumns = `id, symbol, side, price, time, created_at, ref_open_id, pnl_pct, closed_at, ext_ref`

// SignalRepository - работа с таблицей signals.
//
// Запись создается один раз, затем к закрытию привязывается открытие
// и проставляются closed_at и pnl_pct. Записи не удаляются.
type SignalRepository struct {
	db *sql.DB
}

// NewSignalRepository создает новый экземпляр репозитория
func NewSignalRepository(db *sql.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// Insert сохраняет сигнал и заполняет ID и CreatedAt
func (r *SignalRepository) Insert(ctx context.Context, s *models.Signal) error {
	if s.Price <= 0 || math.IsNaN(s.Price) || math.IsInf(s.Price, 0) {
		return ErrInvalidSignal
	}

	query := `
		INSERT INTO signals (symbol, side, price, time)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	return r.db.QueryRowContext(ctx, query,
		s.Symbol,
		string(s.Side),
		s.Price,
		s.Time,
	).Scan(&s.ID, &s.CreatedAt)
}

// SetReference привязывает закрытие к открытию. nil - ничего не делает.
func (r *SignalRepository) SetReference(ctx context.Context, id int64, refOpenID *int64) error {
	if refOpenID == nil {
		return nil
	}
	query := `UPDATE signals SET ref_open_id = $1 WHERE id = $2`
	return r.execExpectRow(ctx, query, *refOpenID, id)
}

// SetExternalRef сохраняет метку источника для открытия. nil - ничего не делает.
func (r *SignalRepository) SetExternalRef(ctx context.Context, id int64, ref *int64) error {
	if ref == nil {
		return nil
	}
	query := `UPDATE signals SET ext_ref = $1 WHERE id = $2`
	return r.execExpectRow(ctx, query, *ref, id)
}

// MarkClosed проставляет closed_at временем приложения, тем же, от которого
// считаются окна статистики. Повторный вызов не меняет запись.
func (r *SignalRepository) MarkClosed(ctx context.Context, id int64, closedAt time.Time) error {
	query := `UPDATE signals SET closed_at = $1 WHERE id = $2 AND closed_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, closedAt, id)
	return err
}

// SetPnl записывает pnl_pct, только если он еще не задан.
// Возвращает true, если запись изменилась.
func (r *SignalRepository) SetPnl(ctx context.Context, id int64, pnl float64) (bool, error) {
	query := `UPDATE signals SET pnl_pct = $1 WHERE id = $2 AND pnl_pct IS NULL`

	result, err := r.db.ExecContext(ctx, query, pnl, id)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

// GetByID возвращает сигнал по ID
func (r *SignalRepository) GetByID(ctx context.Context, id int64) (*models.Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals WHERE id = $1`

	s, err := scanSignal(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSignalNotFound
		}
		return nil, err
	}
	return s, nil
}

// LatestOpen возвращает самое свежее открытие символа с указанной стороной.
// beforeID > 0 ограничивает поиск записями с id < beforeID.
func (r *SignalRepository) LatestOpen(ctx context.Context, symbol string, side models.Side, beforeID int64) (*models.Signal, error) {
	query := `
		SELECT ` + signalColumns + `
		FROM signals
		WHERE symbol = $1 AND side = $2 AND ($3::BIGINT = 0 OR id < $3::BIGINT)
		ORDER BY id DESC
		LIMIT 1`

	s, err := scanSignal(r.db.QueryRowContext(ctx, query, symbol, string(side), beforeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSignalNotFound
		}
		return nil, err
	}
	return s, nil
}

// Recent возвращает последние limit сигналов (новые первыми)
func (r *SignalRepository) Recent(ctx context.Context, limit int) ([]*models.Signal, error) {
	if limit <= 0 {
		return []*models.Signal{}, nil
	}

	query := `
		SELECT ` + signalColumns + `
		FROM signals
		ORDER BY id DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	signals := make([]*models.Signal, 0, limit)
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, s)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return signals, nil
}

// ListUnpricedCloses возвращает закрытия с найденным открытием, но без PnL,
// вместе с ценой открытия
func (r *SignalRepository) ListUnpricedCloses(ctx context.Context) ([]models.UnpricedClose, error) {
	query := `
		SELECT c.id, c.side, c.price, c.ref_open_id, o.price
		FROM signals c
		JOIN signals o ON o.id = c.ref_open_id
		WHERE c.side IN ('CLOSE_LONG', 'CLOSE_SHORT')
		  AND c.pnl_pct IS NULL
		  AND c.ref_open_id IS NOT NULL
		ORDER BY c.id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.UnpricedClose
	for rows.Next() {
		var (
			c    models.UnpricedClose
			side string
		)
		if err := rows.Scan(&c.ID, &side, &c.Price, &c.RefOpenID, &c.OpenPrice); err != nil {
			return nil, err
		}
		c.Side = models.Side(side)
		result = append(result, c)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// ListClosedInRange возвращает закрытия с PnL, у которых closed_at в [from, to]
func (r *SignalRepository) ListClosedInRange(ctx context.Context, from, to time.Time) ([]models.ClosedTrade, error) {
	query := `
		SELECT id, symbol, side, pnl_pct, closed_at
		FROM signals
		WHERE side IN ('CLOSE_LONG', 'CLOSE_SHORT')
		  AND pnl_pct IS NOT NULL
		  AND closed_at >= $1
		  AND closed_at <= $2
		ORDER BY closed_at`

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []models.ClosedTrade
	for rows.Next() {
		var (
			t    models.ClosedTrade
			side string
		)
		if err := rows.Scan(&t.ID, &t.Symbol, &side, &t.PnlPct, &t.ClosedAt); err != nil {
			return nil, err
		}
		t.Side = models.Side(side)
		trades = append(trades, t)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return trades, nil
}

// Count возвращает общее количество сигналов
func (r *SignalRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM signals`).Scan(&count)
	return count, err
}

// execExpectRow выполняет UPDATE и возвращает ErrSignalNotFound, если строка не найдена
func (r *SignalRepository) execExpectRow(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrSignalNotFound
	}

	return nil
}

// rowScanner - общий интерфейс *sql.Row и *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSignal(row rowScanner) (*models.Signal, error) {
	var (
		s        models.Signal
		side     string
		refOpen  sql.NullInt64
		pnl      sql.NullFloat64
		closedAt sql.NullTime
		extRef   sql.NullInt64
	)

	err := row.Scan(
		&s.ID,
		&s.Symbol,
		&side,
		&s.Price,
		&s.Time,
		&s.CreatedAt,
		&refOpen,
		&pnl,
		&closedAt,
		&extRef,
	)
	if err != nil {
		return nil, err
	}

	s.Side = models.Side(side)
	if refOpen.Valid {
		v := refOpen.Int64
		s.RefOpenID = &v
	}
	if pnl.Valid {
		v := pnl.Float64
		s.PnlPct = &v
	}
	if closedAt.Valid {
		v := closedAt.Time
		s.ClosedAt = &v
	}
	if extRef.Valid {
		v := extRef.Int64
		s.ExternalRef = &v
	}

	return &s, nil
}
