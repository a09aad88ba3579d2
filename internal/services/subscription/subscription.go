// Package subscription отвечает за жизненный цикл подписок: оценку срока
// действия, сверку кэшированных полей с биллингом и фоновую очистку
// истёкших подписок с публикацией уведомлений.
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/viqihq/viqi-backend/internal/lib/rabbitmq"
	"github.com/viqihq/viqi-backend/internal/lib/sl"
	"github.com/viqihq/viqi-backend/internal/models"
	"github.com/viqihq/viqi-backend/internal/services/metering"
)

// Статусы срока действия подписки для ответа пользователю.
const (
	StatusNoSubscription      = "no_subscription"
	StatusExpired             = "expired"
	StatusExpiringSoon        = "expiring_soon"
	StatusExpiringWithinMonth = "expiring_within_month"
	StatusActive              = "active"
)

// ExpiryStatus — оценка срока действия подписки пользователя.
// ActionNeeded истинно, когда пользователю стоит продлить подписку.
type ExpiryStatus struct {
	Status       string     `json:"status"`
	Plan         *string    `json:"plan,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	DaysLeft     int        `json:"days_left"`
	ActionNeeded bool       `json:"action_needed"`
}

// UserRepository описывает контракт хранилища пользователей для сверки подписок.
type UserRepository interface {
	UserByUID(ctx context.Context, uid string) (*models.User, error)
	ListUsersForSubscriptionCheck(ctx context.Context) ([]*models.User, error)
	UpdateUserSubscription(ctx context.Context, uid string, subscriptionID, status, plan *string, expiresAt *time.Time) error
	ExpireUserSubscription(ctx context.Context, uid string) error
}

// Biller описывает контракт биллинга для получения сведений о подписке.
type Biller interface {
	SubscriptionInfoForEmail(ctx context.Context, email string) (*metering.SubscriptionInfo, error)
}

// Service отвечает за сверку и очистку подписок.
type Service struct {
	repo   UserRepository
	biller Biller
	log    *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo UserRepository, biller Biller, log *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		biller: biller,
		log:    log,
	}
}

// CheckExpiry оценивает срок действия подписки пользователя: до семи дней
// включительно — expiring_soon, до тридцати — expiring_within_month.
// Истёкшие и отсутствующие подписки требуют действия пользователя.
func CheckExpiry(user *models.User, now time.Time) ExpiryStatus {
	if user.SubscriptionExpiresAt == nil || user.SubscriptionStatus == nil {
		return ExpiryStatus{Status: StatusNoSubscription, ActionNeeded: true}
	}

	expiresAt := *user.SubscriptionExpiresAt
	status := ExpiryStatus{
		Plan:      user.SubscriptionPlan,
		ExpiresAt: &expiresAt,
	}

	if !expiresAt.After(now) {
		status.Status = StatusExpired
		status.ActionNeeded = true
		return status
	}

	daysLeft := int(expiresAt.Sub(now).Hours() / 24)
	status.DaysLeft = daysLeft

	switch {
	case daysLeft <= 7:
		status.Status = StatusExpiringSoon
		status.ActionNeeded = true
	case daysLeft <= 30:
		status.Status = StatusExpiringWithinMonth
	default:
		status.Status = StatusActive
	}
	return status
}

// StatusForUser возвращает оценку срока действия подписки по UID.
func (s *Service) StatusForUser(ctx context.Context, uid string) (*ExpiryStatus, error) {
	const op = "subscription.StatusForUser"

	user, err := s.repo.UserByUID(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	status := CheckExpiry(user, time.Now().UTC())
	return &status, nil
}

// SyncFromStripe сверяет кэшированные поля подписки пользователя с биллингом
// и обновляет их как в базе, так и в переданной структуре. Если биллинг
// подписки не находит, а в базе она числится, подписка помечается истёкшей.
func (s *Service) SyncFromStripe(ctx context.Context, user *models.User) error {
	const op = "subscription.SyncFromStripe"

	info, err := s.biller.SubscriptionInfoForEmail(ctx, user.Email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if info == nil {
		if user.StripeSubscriptionID != nil {
			if err := s.repo.ExpireUserSubscription(ctx, user.UID); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
			expired := models.SubscriptionStatusExpired
			user.StripeSubscriptionID = nil
			user.SubscriptionStatus = &expired
			user.SubscriptionPlan = nil
			user.SubscriptionExpiresAt = nil
		}
		return nil
	}

	expiresAt := info.ExpiresAt
	if err := s.repo.UpdateUserSubscription(ctx, user.UID,
		&info.SubscriptionID, &info.Status, &info.Plan, &expiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	user.StripeSubscriptionID = &info.SubscriptionID
	user.SubscriptionStatus = &info.Status
	user.SubscriptionPlan = &info.Plan
	user.SubscriptionExpiresAt = &expiresAt
	return nil
}

// RunCleanup выполняет один проход сверки. Сначала срок оценивается по
// локальным полям: здоровые подписки биллинг не дёргают. Истёкшие и скоро
// истекающие сверяются с биллингом и переоцениваются по свежим данным,
// чтобы продлённая в Stripe подписка не была погашена по устаревшей записи.
// Ошибка по одному пользователю не прерывает проход.
func (s *Service) RunCleanup(ctx context.Context, channel *amqp.Channel) {
	s.log.Info("starting subscription cleanup run")

	users, err := s.repo.ListUsersForSubscriptionCheck(ctx)
	if err != nil {
		s.log.Error("failed to list users for subscription check", sl.Err(err))
		return
	}
	if len(users) == 0 {
		s.log.Info("no subscriptions to check")
		return
	}
	s.log.Info("checking subscriptions", "count", len(users))

	now := time.Now().UTC()
	for _, user := range users {
		status := CheckExpiry(user, now)
		if status.Status != StatusExpired && status.Status != StatusExpiringSoon {
			continue
		}

		if err := s.SyncFromStripe(ctx, user); err != nil {
			s.log.Error("failed to sync subscription",
				slog.String("user_uid", user.UID), sl.Err(err))
			// Недоступный биллинг не отменяет гашение подписки,
			// срок которой в базе уже вышел.
			if status.Status != StatusExpired {
				continue
			}
		} else if user.SubscriptionStatus != nil && *user.SubscriptionStatus == models.SubscriptionStatusExpired {
			// Биллинг подписку не нашёл, sync уже погасил её в базе.
			status.Status = StatusExpired
			status.ActionNeeded = true
			s.publish(channel, "expired", user, status)
			continue
		} else {
			status = CheckExpiry(user, now)
		}

		switch status.Status {
		case StatusExpired:
			if err := s.repo.ExpireUserSubscription(ctx, user.UID); err != nil {
				s.log.Error("failed to expire subscription",
					slog.String("user_uid", user.UID), sl.Err(err))
				continue
			}
			s.publish(channel, "expired", user, status)
		case StatusExpiringSoon:
			s.publish(channel, "expiring", user, status)
		}
	}
}

func (s *Service) publish(channel *amqp.Channel, routingKey string, user *models.User, status ExpiryStatus) {
	if channel == nil {
		return
	}
	notification := models.ExpiryNotification{
		UserUID:  user.UID,
		Email:    user.Email,
		Username: user.Username,
		Status:   status.Status,
	}
	if status.ExpiresAt != nil {
		notification.ExpiresAt = *status.ExpiresAt
	}
	if err := rabbitmq.PublishMessage(channel, "subscriptions", routingKey, notification); err != nil {
		s.log.Error("failed to publish subscription notification", sl.Err(err))
	}
}
