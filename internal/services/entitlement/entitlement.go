// Package entitlement решает, чем пользователь платит за раскрытие контактов:
// активной подпиской или кредитами. Здесь же оценивается стоимость запроса
// в кредитах.
package entitlement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/viqihq/viqi-backend/internal/config"
	"github.com/viqihq/viqi-backend/internal/lib/sl"
	"github.com/viqihq/viqi-backend/internal/models"
)

// Способы оплаты раскрытия.
const (
	MethodSubscription = "subscription"
	MethodCredits      = "credits"
)

// Decision — выбранный способ оплаты раскрытия. DeductCredits истинно
// только для оплаты кредитами: подписка не списывает баланс.
type Decision struct {
	Method        string
	DeductCredits bool
}

// DeniedError возвращается, когда пользователю нечем оплатить раскрытие.
// Hint подсказывает клиенту, какое действие предложить пользователю.
type DeniedError struct {
	Reason string
	Hint   string
}

func (e *DeniedError) Error() string {
	return e.Reason
}

// Evaluate выбирает способ оплаты раскрытия матча. Подписка имеет приоритет
// над кредитами; при отказе причина уточняется по статусу подписки.
func Evaluate(user *models.User, cost int, now time.Time) (Decision, error) {
	if user.IsSubscribed(now) {
		return Decision{Method: MethodSubscription}, nil
	}
	if user.CreditsBalance >= cost {
		return Decision{Method: MethodCredits, DeductCredits: true}, nil
	}

	denied := &DeniedError{
		Reason: fmt.Sprintf("insufficient credits: need %d, have %d", cost, user.CreditsBalance),
		Hint:   "buy credits or subscribe",
	}
	if user.SubscriptionStatus != nil {
		switch *user.SubscriptionStatus {
		case models.SubscriptionStatusPastDue:
			denied.Hint = "update payment method to restore subscription"
		case models.SubscriptionStatusCanceled, models.SubscriptionStatusExpired:
			denied.Hint = "resubscribe or buy credits"
		}
	}
	return Decision{}, denied
}

// LLMClient описывает контракт клиента LLM для оценки стоимости.
type LLMClient interface {
	Complete(ctx context.Context, system, user string) (string, models.TokenUsage, error)
}

// CostAssessor оценивает стоимость запроса в кредитах через LLM с
// детерминированным фолбэком.
type CostAssessor struct {
	llm LLMClient
	cfg config.Matching
	log *slog.Logger
}

// NewCostAssessor создает новый экземпляр CostAssessor.
func NewCostAssessor(llm LLMClient, cfg config.Matching, log *slog.Logger) *CostAssessor {
	return &CostAssessor{
		llm: llm,
		cfg: cfg,
		log: log,
	}
}

const costSystemPrompt = "You estimate how complex an industry matchmaking query is. " +
	"Respond with a single digit from 1 to 5, where 1 is a simple lookup and 5 is a " +
	"multi-territory, multi-criteria search. Respond with the digit only."

// AssessCreditCost возвращает стоимость запроса в кредитах. Ответ LLM
// сводится к первой цифре и приводится в границы [MinCreditCost,
// MaxCreditCost]; при недоступности LLM или нечитаемом ответе используется
// эвристика по длине запроса. Ошибки не возвращаются: стоимость есть всегда.
func (a *CostAssessor) AssessCreditCost(ctx context.Context, query string) int {
	answer, _, err := a.llm.Complete(ctx, costSystemPrompt, query)
	if err != nil {
		a.log.Warn("cost assessment fell back to heuristic", sl.Err(err))
		return a.heuristicCost(query)
	}

	cost, ok := firstDigit(answer)
	if !ok {
		a.log.Warn("cost assessment answer had no digit",
			slog.String("answer", strings.TrimSpace(answer)))
		return a.heuristicCost(query)
	}
	return a.clamp(cost)
}

// heuristicCost оценивает стоимость по длине запроса: каждый полный блок
// в 120 символов добавляет кредит к базовой стоимости.
func (a *CostAssessor) heuristicCost(query string) int {
	cost := len(query) / 120
	if cost < a.cfg.DefaultCreditCost {
		cost = a.cfg.DefaultCreditCost
	}
	return a.clamp(cost)
}

func (a *CostAssessor) clamp(cost int) int {
	if cost < a.cfg.MinCreditCost {
		return a.cfg.MinCreditCost
	}
	if cost > a.cfg.MaxCreditCost {
		return a.cfg.MaxCreditCost
	}
	return cost
}

func firstDigit(text string) (int, bool) {
	for _, r := range text {
		if unicode.IsDigit(r) {
			return int(r - '0'), true
		}
	}
	return 0, false
}
