package repository

import (
	"context"
	"database/sql"
	"errors"
)

// Ошибки репозитория состояния
var (
	ErrStateNotFound = errors.New("state key not found")
)

// Ключи app_state
const (
	StateKeyDailySummaryLastSent = "daily_summary_last_sent"
)

// StateRepository - хранилище служебных значений в таблице app_state
type StateRepository struct {
	db *sql.DB
}

// NewStateRepository создает новый экземпляр репозитория
func NewStateRepository(db *sql.DB) *StateRepository {
	return &StateRepository{db: db}
}

// Get возвращает значение по ключу или ErrStateNotFound
func (r *StateRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM app_state WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrStateNotFound
		}
		return "", err
	}
	return value, nil
}

// Set сохраняет значение (upsert)
func (r *StateRepository) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO app_state (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`

	_, err := r.db.ExecContext(ctx, query, key, value)
	return err
}
