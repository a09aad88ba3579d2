package models

import "time"

// Статусы матча. Переход разрешён только вперёд: preview -> revealed.
const (
	MatchStatusPreview  = "preview"
	MatchStatusRevealed = "revealed"
)

// Match представляет один запрос пользователя на подбор контактов.
// CreditCost фиксируется в момент создания и больше не пересчитывается.
// Записи не удаляются: история матчей хранится для аудита.
type Match struct {
	ID              int
	UserUID         string
	QueryText       string
	LLMModel        string
	TokenPrompt     int
	TokenCompletion int
	TokenTotal      int
	CreditCost      int    // Стоимость раскрытия в кредитах, >= 1
	Currency        string // Валюта учёта, по умолчанию "credits"
	Status          string // preview или revealed
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MatchResult представляет одного кандидата, предложенного в рамках матча.
// EmailPlain хранится всегда, в том числе до раскрытия, но наружу до
// перехода матча в revealed отдаётся только EmailMasked.
type MatchResult struct {
	ID          int
	MatchID     int
	PersonID    int
	CompanyID   int
	Score       float64 // В диапазоне [0, 1]
	Reason      string
	EmailDraft  string
	EmailMasked string
	EmailPlain  string
	RevealedAt  *time.Time
}

// DummyMatchRequest используется для приёма данных из JSON-запроса на подбор.
type DummyMatchRequest struct {
	Query      string `json:"query" validate:"required"`           // Запрос на естественном языке
	MaxResults int    `json:"max_results" validate:"gte=0,lte=10"` // Сколько кандидатов вернуть, 0 = по умолчанию
}

// PersonPreview — замаскированное представление кандидата до оплаты.
type PersonPreview struct {
	ID                int     `json:"id"`
	Name              string  `json:"name"`
	Title             string  `json:"title"`
	CompanyName       string  `json:"company_name"`
	CompanyBlurred    bool    `json:"company_blurred"`
	EmailMasked       string  `json:"email_masked"`
	Reason            string  `json:"reason"`
	EmailDraftBlurred bool    `json:"email_draft_blurred"`
	Score             float64 `json:"score"`
}

// PersonRevealed — полное представление кандидата после раскрытия.
type PersonRevealed struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Title       string  `json:"title"`
	CompanyName string  `json:"company_name"`
	CompanyID   int     `json:"company_id"`
	Email       string  `json:"email"`
	Reason      string  `json:"reason"`
	EmailDraft  string  `json:"email_draft"`
	Score       float64 `json:"score"`
}

// MatchResponse — ответ на создание матча: превью плюс стоимость раскрытия.
type MatchResponse struct {
	MatchID    int             `json:"match_id"`
	Results    []PersonPreview `json:"results"`
	CreditCost int             `json:"credit_cost"`
	TokenUsage TokenUsage      `json:"token_usage"`
	Status     string          `json:"status"`
}

// RevealResponse — ответ на раскрытие матча.
type RevealResponse struct {
	MatchID int              `json:"match_id"`
	Results []PersonRevealed `json:"results"`
}

// MatchResultDetail — результат матча вместе с данными персоны и компании,
// как он достаётся из хранилища одним соединением.
type MatchResultDetail struct {
	Result      MatchResult
	PersonName  string
	PersonTitle string
	CompanyName string
}

// MatchHistoryItem — одна запись истории матчей пользователя.
type MatchHistoryItem struct {
	ID          int        `json:"id"`
	Query       string     `json:"query"`
	Status      string     `json:"status"`
	ResultCount int        `json:"result_count"`
	CreditCost  int        `json:"credit_cost"`
	CreatedAt   time.Time  `json:"created_at"`
	RevealedAt  *time.Time `json:"revealed_at"`
}

// TokenUsage — количество токенов, потраченных LLM на запрос.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}
