// Package credits собирает сводку кредитного баланса пользователя:
// авторитетный баланс из базы и, для подписчиков, проекцию из биллинга.
package credits

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/viqihq/viqi-backend/internal/lib/sl"
	"github.com/viqihq/viqi-backend/internal/models"
	"github.com/viqihq/viqi-backend/internal/services/metering"
)

// Repository описывает контракт хранилища пользователей.
type Repository interface {
	UserByUID(ctx context.Context, uid string) (*models.User, error)
}

// Biller описывает контракт биллинга для построения проекции баланса.
type Biller interface {
	SubscriptionInfoForEmail(ctx context.Context, email string) (*metering.SubscriptionInfo, error)
	UsageSummaryForItem(ctx context.Context, meteredItemID string) (metering.UsageSummary, error)
}

// Balance — сводка баланса пользователя. Projection заполняется только
// для подписчиков с метрируемой позицией; недоступность биллинга сводку
// не ломает, проекция тогда опускается.
type Balance struct {
	CreditsBalance int                        `json:"credits_balance"`
	Subscribed     bool                       `json:"subscribed"`
	Plan           *string                    `json:"plan,omitempty"`
	Projection     *metering.CreditProjection `json:"projection,omitempty"`
}

// Service отвечает за сводку кредитного баланса.
type Service struct {
	repo   Repository
	biller Biller
	log    *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo Repository, biller Biller, log *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		biller: biller,
		log:    log,
	}
}

// Balance возвращает сводку баланса пользователя. Авторитетным остаётся
// credits_balance из базы; проекция биллинга носит справочный характер.
func (s *Service) Balance(ctx context.Context, userUID string) (*Balance, error) {
	const op = "credits.Balance"

	user, err := s.repo.UserByUID(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	balance := &Balance{
		CreditsBalance: user.CreditsBalance,
		Subscribed:     user.IsSubscribed(time.Now().UTC()),
		Plan:           user.SubscriptionPlan,
	}
	if !balance.Subscribed || s.biller == nil {
		return balance, nil
	}

	info, err := s.biller.SubscriptionInfoForEmail(ctx, user.Email)
	if err != nil {
		s.log.Warn("billing unavailable, serving balance without projection", sl.Err(err))
		return balance, nil
	}
	if info == nil || info.MeteredItemID == "" {
		return balance, nil
	}

	summary, err := s.biller.UsageSummaryForItem(ctx, info.MeteredItemID)
	if err != nil {
		s.log.Warn("usage summary unavailable, serving balance without projection", sl.Err(err))
		return balance, nil
	}

	projection := metering.ProjectCreditBalances(info.IncludedCredits, summary, 0)
	balance.Projection = &projection
	return balance, nil
}
