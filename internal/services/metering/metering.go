// Package metering связывает приложение с биллингом Stripe: поиск подписки
// пользователя, отправка usage records по метрируемым позициям и построение
// проекции кредитного баланса. Источником истины по кредитам остаётся поле
// credits_balance пользователя; Stripe даёт сведения о подписке и учёте
// использования.
package metering

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/viqihq/viqi-backend/internal/cache"
	"github.com/viqihq/viqi-backend/internal/lib/sl"
)

// TTL кэшированных снимков биллинга. Снимок устаревает быстро: баланс
// меняется при каждом раскрытии.
const snapshotTTL = 2 * time.Minute

// SubscriptionInfo — сведения об активной подписке пользователя в Stripe.
type SubscriptionInfo struct {
	SubscriptionID  string    `json:"subscription_id"`
	Status          string    `json:"status"`
	Plan            string    `json:"plan"`
	ExpiresAt       time.Time `json:"expires_at"`
	MeteredItemID   string    `json:"metered_item_id"`
	IncludedCredits int       `json:"included_credits"`
}

// UsageSummary — снимок учёта по метрируемой позиции: всё записанное
// использование и его ещё не выставленная в счёт часть.
type UsageSummary struct {
	Used    int `json:"used"`
	Pending int `json:"pending"`
}

// CreditProjection — проекция кредитного баланса с учётом ещё не
// выставленного в счёт использования.
type CreditProjection struct {
	Included           int `json:"included"`
	Used               int `json:"used"`
	Remaining          int `json:"remaining"`
	PendingUsage       int `json:"pending_usage"`
	ProjectedUsed      int `json:"projected_used"`
	ProjectedRemaining int `json:"projected_remaining"`
}

// Service инкапсулирует клиент Stripe и кэш снимков.
type Service struct {
	sc    *client.API
	cache *cache.Cache
	log   *slog.Logger
}

// New создает новый экземпляр Service с клиентом Stripe.
func New(secretKey string, c *cache.Cache, log *slog.Logger) *Service {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &Service{
		sc:    sc,
		cache: c,
		log:   log,
	}
}

// SubscriptionInfoForEmail ищет клиента Stripe по почте и возвращает сведения
// о его подписке с метрируемой позицией. Возвращает nil без ошибки, если
// клиента или подходящей подписки нет.
func (s *Service) SubscriptionInfoForEmail(ctx context.Context, email string) (*SubscriptionInfo, error) {
	const op = "metering.SubscriptionInfoForEmail"

	cacheKey := "billing:subscription:" + email
	var cached SubscriptionInfo
	if s.cache != nil {
		found, err := s.cache.Get(ctx, cacheKey, &cached)
		if err != nil {
			s.log.Warn("failed to read billing cache", sl.Err(err))
		}
		if found {
			return &cached, nil
		}
	}

	customerParams := &stripe.CustomerListParams{
		Email: stripe.String(email),
	}
	customerParams.Context = ctx
	customerIter := s.sc.Customers.List(customerParams)

	var customerID string
	if customerIter.Next() {
		customerID = customerIter.Customer().ID
	}
	if err := customerIter.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if customerID == "" {
		return nil, nil
	}

	subParams := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
	}
	subParams.Context = ctx
	subParams.AddExpand("data.items.data.price")
	subIter := s.sc.Subscriptions.List(subParams)

	var subscriptions []*stripe.Subscription
	for subIter.Next() {
		subscriptions = append(subscriptions, subIter.Subscription())
	}
	if err := subIter.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	info := pickMeteredSubscription(subscriptions, time.Now().UTC())
	if info == nil {
		return nil, nil
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, info, snapshotTTL); err != nil {
			s.log.Warn("failed to write billing cache", sl.Err(err))
		}
	}
	return info, nil
}

// pickMeteredSubscription выбирает среди подписок клиента первую с
// метрируемой позицией. Учитываются только статусы active и trialing
// с неистёкшим оплаченным периодом: past_due и прочие статусы права
// на метрируемый доступ не дают.
func pickMeteredSubscription(subscriptions []*stripe.Subscription, now time.Time) *SubscriptionInfo {
	preferred := []stripe.SubscriptionStatus{
		stripe.SubscriptionStatusActive,
		stripe.SubscriptionStatusTrialing,
	}
	for _, status := range preferred {
		for _, sub := range subscriptions {
			if sub.Status != status || sub.CurrentPeriodEnd <= now.Unix() {
				continue
			}
			info := subscriptionInfoFrom(sub)
			if info != nil {
				return info
			}
		}
	}
	return nil
}

func subscriptionInfoFrom(sub *stripe.Subscription) *SubscriptionInfo {
	if sub.Items == nil {
		return nil
	}
	for _, item := range sub.Items.Data {
		if item.Price == nil || item.Price.Recurring == nil {
			continue
		}
		if item.Price.Recurring.UsageType != stripe.PriceRecurringUsageTypeMetered {
			continue
		}
		info := &SubscriptionInfo{
			SubscriptionID: sub.ID,
			Status:         string(sub.Status),
			Plan:           item.Price.Nickname,
			ExpiresAt:      time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
			MeteredItemID:  item.ID,
		}
		if raw, ok := item.Price.Metadata["included_credits"]; ok {
			var included int
			if _, err := fmt.Sscanf(raw, "%d", &included); err == nil {
				info.IncludedCredits = included
			}
		}
		return info
	}
	return nil
}

// RecordUsage отправляет в Stripe инкремент использования по метрируемой
// позиции подписки. Вызывается после фиксации раскрытия в базе; отказ
// биллинга не откатывает раскрытие, решение об ошибке принимает вызывающий.
func (s *Service) RecordUsage(ctx context.Context, meteredItemID string, quantity int64) error {
	const op = "metering.RecordUsage"

	params := &stripe.UsageRecordParams{
		SubscriptionItem: stripe.String(meteredItemID),
		Quantity:         stripe.Int64(quantity),
		Timestamp:        stripe.Int64(time.Now().Unix()),
		Action:           stripe.String("increment"),
	}
	params.Context = ctx
	if _, err := s.sc.UsageRecords.New(params); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UsageSummaryForItem возвращает сводку учёта по метрируемой позиции:
// Used — всё записанное использование, Pending — сводки без привязанного
// инвойса, то есть ещё не выставленная в счёт часть.
func (s *Service) UsageSummaryForItem(ctx context.Context, meteredItemID string) (UsageSummary, error) {
	const op = "metering.UsageSummaryForItem"

	params := &stripe.UsageRecordSummaryListParams{
		SubscriptionItem: stripe.String(meteredItemID),
	}
	params.Context = ctx
	iter := s.sc.UsageRecordSummaries.List(params)

	var summary UsageSummary
	for iter.Next() {
		record := iter.UsageRecordSummary()
		summary.Used += int(record.TotalUsage)
		if record.Invoice == "" {
			summary.Pending += int(record.TotalUsage)
		}
	}
	if err := iter.Err(); err != nil {
		return UsageSummary{}, fmt.Errorf("%s: %w", op, err)
	}
	return summary, nil
}

// ProjectCreditBalances строит проекцию баланса: сколько кредитов включено
// в план, сколько уже использовано и каким станет остаток, если учесть
// стоимость текущего запроса (additional) как уже записанную. Остатки не
// уходят ниже нуля.
func ProjectCreditBalances(included int, summary UsageSummary, additional int) CreditProjection {
	if additional < 0 {
		additional = 0
	}
	projection := CreditProjection{
		Included:      included,
		Used:          summary.Used,
		Remaining:     included - summary.Used,
		PendingUsage:  summary.Pending + additional,
		ProjectedUsed: summary.Used + additional,
	}
	if projection.Remaining < 0 {
		projection.Remaining = 0
	}
	projection.ProjectedRemaining = included - projection.ProjectedUsed
	if projection.ProjectedRemaining < 0 {
		projection.ProjectedRemaining = 0
	}
	return projection
}
