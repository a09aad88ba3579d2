package models

import "time"

// Виды событий журнала использования.
const (
	UsageKindAPICall             = "api_call"
	UsageKindContactReveal       = "contact_reveal"
	UsageKindCreditPurchase      = "credit_purchase"
	UsageKindSubscriptionRenewal = "subscription_renewal"
	UsageKindCreditAdjustment    = "credit_adjustment"
	UsageKindQuery               = "query"
)

// UsageLog — запись журнала использования. Журнал только дописывается и
// служит для агрегации на дашборде; источником истины по балансу остаётся
// поле CreditsBalance пользователя.
type UsageLog struct {
	ID               int
	UserUID          string
	Kind             string
	Amount           int
	TokensPrompt     int
	TokensCompletion int
	LLMModel         string
	DedupeKey        string // UUID, защита от повторной записи одного события
	CreatedAt        time.Time
}
