package service

import (
	"context"
	"fmt"
	"time"

	"sourcetrader/internal/config"
	"sourcetrader/internal/models"
	"sourcetrader/pkg/utils"
)

// SubscriptionService управляет сроком подписки.
//
// - пробный период выдается один раз и не сокращает уже оплаченный срок
// - оплата продлевает подписку от более поздней из дат: сейчас или текущее окончание
type SubscriptionService struct {
	repo             SubscriberRepositoryInterface
	trialDays        int
	subscriptionDays int
	logger           *utils.Logger
	now              func() time.Time
}

// NewSubscriptionService создает сервис подписок
func NewSubscriptionService(repo SubscriberRepositoryInterface, cfg config.SignalsConfig, logger *utils.Logger) *SubscriptionService {
	if logger == nil {
		logger = utils.L()
	}
	return &SubscriptionService{
		repo:             repo,
		trialDays:        cfg.TrialDays,
		subscriptionDays: cfg.SubscriptionDays,
		logger:           logger.WithComponent("subscriptions"),
		now:              time.Now,
	}
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

// Register создает подписчика при первом сообщении и обновляет чат
func (s *SubscriptionService) Register(ctx context.Context, userID, chatID int64) (*models.Subscriber, error) {
	sub, err := s.repo.Ensure(ctx, userID, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to register subscriber %d: %w", userID, err)
	}
	return sub, nil
}

// StartTrial выдает пробный период, если он еще не использовался.
// Возвращает актуальное состояние подписчика и признак активации.
func (s *SubscriptionService) StartTrial(ctx context.Context, userID int64) (*models.Subscriber, bool, error) {
	activated := false
	if s.trialDays > 0 {
		until := s.now().Add(days(s.trialDays))
		ok, err := s.repo.ActivateTrial(ctx, userID, until)
		if err != nil {
			return nil, false, fmt.Errorf("failed to activate trial for %d: %w", userID, err)
		}
		activated = ok
	}

	sub, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load subscriber %d: %w", userID, err)
	}
	if activated {
		s.logger.Info("trial activated", utils.Int64("user_id", userID), utils.Int("days", s.trialDays))
	}
	return sub, activated, nil
}

// Status возвращает подписчика
func (s *SubscriptionService) Status(ctx context.Context, userID int64) (*models.Subscriber, error) {
	return s.repo.GetByID(ctx, userID)
}

// RequestPayment переводит подписчика в ожидание идентификатора транзакции
func (s *SubscriptionService) RequestPayment(ctx context.Context, userID int64) error {
	if err := s.repo.SetAwaitingTx(ctx, userID, true); err != nil {
		return fmt.Errorf("failed to request payment for %d: %w", userID, err)
	}
	return nil
}

// ConfirmPayment принимает идентификатор транзакции и продлевает подписку.
// Возвращает новую дату окончания.
func (s *SubscriptionService) ConfirmPayment(ctx context.Context, sub *models.Subscriber, txRef string) (time.Time, error) {
	base := s.now()
	if sub.ExpiresAt != nil && sub.ExpiresAt.After(base) {
		base = *sub.ExpiresAt
	}
	until := base.Add(days(s.subscriptionDays))

	if err := s.repo.Extend(ctx, sub.ID, until); err != nil {
		return time.Time{}, fmt.Errorf("failed to extend subscription for %d: %w", sub.ID, err)
	}

	s.logger.Info("subscription extended",
		utils.Int64("user_id", sub.ID),
		utils.String("tx_ref", txRef),
		utils.String("until", until.UTC().Format(time.RFC3339)),
	)
	return until, nil
}

// ActiveCount - количество активных подписчиков
func (s *SubscriptionService) ActiveCount(ctx context.Context) (int, error) {
	return s.repo.CountActive(ctx, s.now())
}
