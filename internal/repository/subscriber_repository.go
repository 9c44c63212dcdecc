package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"sourcetrader/internal/models"
)

// Ошибки репозитория подписчиков
var (
	ErrSubscriberNotFound = errors.New("subscriber not found")
)

const subscriberColumns = `id, chat_id, expires_at, awaiting_tx, trial_started_at, created_at`

// SubscriberRepository - работа с таблицей subscribers
type SubscriberRepository struct {
	db *sql.DB
}

// NewSubscriberRepository создает новый экземпляр репозитория
func NewSubscriberRepository(db *sql.DB) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

// Ensure создает подписчика при первом обращении и обновляет чат доставки
func (r *SubscriberRepository) Ensure(ctx context.Context, id, chatID int64) (*models.Subscriber, error) {
	query := `
		INSERT INTO subscribers (id, chat_id)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET chat_id = EXCLUDED.chat_id
		RETURNING ` + subscriberColumns

	return scanSubscriber(r.db.QueryRowContext(ctx, query, id, chatID))
}

// GetByID возвращает подписчика по ID пользователя
func (r *SubscriberRepository) GetByID(ctx context.Context, id int64) (*models.Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE id = $1`

	s, err := scanSubscriber(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubscriberNotFound
		}
		return nil, err
	}
	return s, nil
}

// ActiveChatIDs возвращает чаты подписчиков с expires_at >= now
func (r *SubscriberRepository) ActiveChatIDs(ctx context.Context, now time.Time) ([]int64, error) {
	query := `
		SELECT chat_id
		FROM subscribers
		WHERE expires_at IS NOT NULL AND expires_at >= $1
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}

// ActivateTrial выдает пробный период до until.
// Пробный период выдается один раз и не сокращает более длинную оплаченную подписку.
// Возвращает true, если период был выдан.
func (r *SubscriberRepository) ActivateTrial(ctx context.Context, id int64, until time.Time) (bool, error) {
	query := `
		UPDATE subscribers
		SET expires_at = $1, trial_started_at = NOW()
		WHERE id = $2
		  AND trial_started_at IS NULL
		  AND (expires_at IS NULL OR expires_at < $1)`

	result, err := r.db.ExecContext(ctx, query, until, id)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

// SetAwaitingTx включает или выключает ожидание идентификатора платежа
func (r *SubscriberRepository) SetAwaitingTx(ctx context.Context, id int64, awaiting bool) error {
	query := `UPDATE subscribers SET awaiting_tx = $1 WHERE id = $2`
	return r.execExpectRow(ctx, query, awaiting, id)
}

// Extend продлевает подписку до until и сбрасывает ожидание платежа
func (r *SubscriberRepository) Extend(ctx context.Context, id int64, until time.Time) error {
	query := `UPDATE subscribers SET expires_at = $1, awaiting_tx = FALSE WHERE id = $2`
	return r.execExpectRow(ctx, query, until, id)
}

// CountActive возвращает количество активных подписчиков на момент now
func (r *SubscriberRepository) CountActive(ctx context.Context, now time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM subscribers WHERE expires_at IS NOT NULL AND expires_at >= $1`
	err := r.db.QueryRowContext(ctx, query, now).Scan(&count)
	return count, err
}

func (r *SubscriberRepository) execExpectRow(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrSubscriberNotFound
	}

	return nil
}

func scanSubscriber(row rowScanner) (*models.Subscriber, error) {
	var (
		s            models.Subscriber
		expiresAt    sql.NullTime
		trialStarted sql.NullTime
	)

	err := row.Scan(
		&s.ID,
		&s.ChatID,
		&expiresAt,
		&s.AwaitingTx,
		&trialStarted,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if expiresAt.Valid {
		v := expiresAt.Time
		s.ExpiresAt = &v
	}
	if trialStarted.Valid {
		v := trialStarted.Time
		s.TrialStartedAt = &v
	}

	return &s, nil
}
