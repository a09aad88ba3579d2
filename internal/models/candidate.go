package models

import "time"

// Company представляет компанию киноиндустрии, к которой привязаны кандидаты.
type Company struct {
	ID          int
	Name        string
	Domain      *string
	Website     *string
	City        *string
	Country     *string
	Description *string
	Tags        *string // JSON, сериализованный в текст
	CreatedAt   time.Time
}

// Person представляет специалиста индустрии, которого можно рекомендовать.
// EmailMasked вычисляется заранее и хранится рядом с EmailPlain.
type Person struct {
	ID              int
	FullName        string
	Title           *string
	CompanyID       int
	RoleTags        *string // Список через запятую
	Territories     *string // Список через запятую
	EmailPlain      *string
	EmailMasked     *string
	IsDecisionMaker bool
	CreatedAt       time.Time
}

// Candidate — денормализованное представление пары человек+компания,
// которое передаётся LLM при подборе. Теги и территории уже разобраны
// из строк с разделителем-запятой.
type Candidate struct {
	ID                 int
	FullName           string
	Title              string // "Professional", если у персоны нет должности
	CompanyID          int
	CompanyName        string
	RoleTags           []string
	Territories        []string
	IsDecisionMaker    bool
	CompanyDescription string
	EmailPlain         string
}

// Recommendation — проверенная рекомендация LLM по одному кандидату.
// Числовые поля приведены в допустимые границы на этапе валидации.
type Recommendation struct {
	PersonID     int     `json:"person_id"`
	CompanyID    int     `json:"company_id"`
	Reason       string  `json:"reason"`
	EmailDraft   string  `json:"email_draft"`
	Score        float64 `json:"score"`
	EmailAddress string  `json:"email_address"`
}
