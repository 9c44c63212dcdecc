package models

import "time"

// Subscriber представляет подписчика Telegram-бота.
// ID - идентификатор пользователя Telegram, ChatID - чат доставки.
type Subscriber struct {
	ID             int64      `json:"id" db:"id"`
	ChatID         int64      `json:"chat_id" db:"chat_id"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	AwaitingTx     bool       `json:"awaiting_tx" db:"awaiting_tx"`
	TrialStartedAt *time.Time `json:"trial_started_at,omitempty" db:"trial_started_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// IsActive - подписка не истекла на момент now
func (s *Subscriber) IsActive(now time.Time) bool {
	return s.ExpiresAt != nil && !now.After(*s.ExpiresAt)
}
