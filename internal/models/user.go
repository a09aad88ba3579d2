// Package models содержит доменные структуры приложения: пользователей,
// матчи с результатами, кандидатов и журнал использования.
// Структуры используются в бизнес‑логике и при работе с хранилищем.
package models

import "time"

// User представляет зарегистрированного пользователя системы
// вместе с полями, от которых зависит допуск к раскрытию контактов:
// баланс кредитов и кэшированное состояние подписки Stripe.
type User struct {
	UID                   string     // Уникальный идентификатор пользователя
	Email                 string     // Электронная почта
	Username              string     // Имя пользователя (уникальное)
	PasswordHash          string     // Хэш пароля пользователя
	Role                  string     // Роль пользователя, admin или user
	CreditsBalance        int        // Баланс кредитов, никогда не опускается ниже нуля
	StripeCustomerID      *string    // Идентификатор покупателя в Stripe
	StripeSubscriptionID  *string    // Идентификатор подписки в Stripe
	SubscriptionStatus    *string    // Статус подписки: active, trialing, past_due и т.д.
	SubscriptionPlan      *string    // Название тарифного плана
	SubscriptionExpiresAt *time.Time // Дата истечения оплаченного периода
	CreatedAt             time.Time
}

// Статусы подписки, встречающиеся в кэшированном поле SubscriptionStatus.
const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusCanceled = "canceled"
	SubscriptionStatusInactive = "inactive"
	SubscriptionStatusExpired  = "expired"
)

// IsSubscribed сообщает, действует ли подписка пользователя на момент now:
// статус active или trialing и срок действия ещё не истёк.
func (u *User) IsSubscribed(now time.Time) bool {
	if u.SubscriptionStatus == nil || u.SubscriptionExpiresAt == nil {
		return false
	}
	switch *u.SubscriptionStatus {
	case SubscriptionStatusActive, SubscriptionStatusTrialing:
		return u.SubscriptionExpiresAt.After(now)
	default:
		return false
	}
}
