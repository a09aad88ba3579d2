// Package match реализует основной сценарий продукта: подбор контактов
// индустрии по запросу на естественном языке, выдачу замаскированного
// превью и раскрытие контактов после оплаты.
package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/viqihq/viqi-backend/internal/config"
	"github.com/viqihq/viqi-backend/internal/lib/mask"
	"github.com/viqihq/viqi-backend/internal/lib/sl"
	"github.com/viqihq/viqi-backend/internal/llm"
	"github.com/viqihq/viqi-backend/internal/metrics"
	"github.com/viqihq/viqi-backend/internal/models"
	"github.com/viqihq/viqi-backend/internal/services/entitlement"
	"github.com/viqihq/viqi-backend/internal/services/metering"
	"github.com/viqihq/viqi-backend/internal/storage/repository"
)

// Пределы, в которые приводятся поля рекомендаций LLM.
const (
	maxReasonLen     = 500
	maxEmailDraftLen = 1000
	previewWordLimit = 12
)

// Фиксированная оценка добранных из пула рекомендаций: заведомо ниже
// оценок, которые проставляет LLM живым совпадениям.
const backfillScore = 0.6

// ErrNoCandidates возвращается, когда в базе нет кандидатов для подбора.
var ErrNoCandidates = errors.New("no candidates available")

// Repository описывает контракт хранилища для сценариев матчинга.
type Repository interface {
	ListCandidates(ctx context.Context, limit int) ([]models.Candidate, error)
	CreateMatchWithResults(ctx context.Context, match models.Match, results []models.MatchResult, usage models.UsageLog) (int, error)
	MatchByID(ctx context.Context, id int, userUID string) (*models.Match, error)
	ListMatchResults(ctx context.Context, matchID int) ([]models.MatchResultDetail, error)
	RevealMatch(ctx context.Context, matchID int, userUID string, cost int, deductCredits bool, dedupeKey string) error
	ListMatchHistory(ctx context.Context, userUID string, limit int) ([]models.MatchHistoryItem, error)
	UserByUID(ctx context.Context, uid string) (*models.User, error)
	InsertUsageLog(ctx context.Context, usage models.UsageLog) error
}

// LLMClient описывает контракт клиента LLM для генерации рекомендаций.
type LLMClient interface {
	Complete(ctx context.Context, system, user string) (string, models.TokenUsage, error)
	Model() string
}

// CostAssessor описывает контракт оценщика стоимости запроса.
type CostAssessor interface {
	AssessCreditCost(ctx context.Context, query string) int
}

// Meterer описывает контракт биллинга для учёта раскрытий по подписке.
type Meterer interface {
	SubscriptionInfoForEmail(ctx context.Context, email string) (*metering.SubscriptionInfo, error)
	RecordUsage(ctx context.Context, meteredItemID string, quantity int64) error
}

// Service отвечает за создание матчей, их раскрытие и историю.
type Service struct {
	repo     Repository
	llm      LLMClient
	assessor CostAssessor
	meterer  Meterer
	cfg      config.Matching
	log      *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo Repository, llmClient LLMClient, assessor CostAssessor, meterer Meterer, cfg config.Matching, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		llm:      llmClient,
		assessor: assessor,
		meterer:  meterer,
		cfg:      cfg,
		log:      log,
	}
}

// Create подбирает кандидатов под запрос пользователя и сохраняет матч
// в статусе preview. Наружу уходят только замаскированные контакты;
// стоимость раскрытия фиксируется в момент создания.
func (s *Service) Create(ctx context.Context, userUID string, req models.DummyMatchRequest) (*models.MatchResponse, error) {
	const op = "match.Create"

	candidates, err := s.repo.ListCandidates(ctx, s.cfg.CandidatePoolSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrNoCandidates)
	}

	cost := s.assessor.AssessCreditCost(ctx, req.Query)

	maxResults := req.MaxResults
	if maxResults == 0 || maxResults > s.cfg.DefaultMaxResults {
		maxResults = s.cfg.DefaultMaxResults
	}

	recommendations, usage := s.recommend(ctx, req.Query, candidates, maxResults)

	match := models.Match{
		UserUID:         userUID,
		QueryText:       req.Query,
		LLMModel:        s.llm.Model(),
		TokenPrompt:     usage.Prompt,
		TokenCompletion: usage.Completion,
		TokenTotal:      usage.Total,
		CreditCost:      cost,
		Currency:        "credits",
	}

	byID := candidatesByID(candidates)
	results := make([]models.MatchResult, 0, len(recommendations))
	for _, rec := range recommendations {
		candidate := byID[rec.PersonID]
		results = append(results, models.MatchResult{
			PersonID:    rec.PersonID,
			CompanyID:   candidate.CompanyID,
			Score:       rec.Score,
			Reason:      rec.Reason,
			EmailDraft:  rec.EmailDraft,
			EmailMasked: mask.Email(candidate.EmailPlain),
			EmailPlain:  candidate.EmailPlain,
		})
	}

	matchID, err := s.repo.CreateMatchWithResults(ctx, match, results, models.UsageLog{
		UserUID:          userUID,
		Kind:             models.UsageKindQuery,
		TokensPrompt:     usage.Prompt,
		TokensCompletion: usage.Completion,
		LLMModel:         s.llm.Model(),
		DedupeKey:        uuid.New().String(),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.MatchesCreated.Inc()

	previews := make([]models.PersonPreview, 0, len(results))
	for i, r := range results {
		candidate := byID[r.PersonID]
		previews = append(previews, models.PersonPreview{
			ID:                recommendations[i].PersonID,
			Name:              candidate.FullName,
			Title:             candidate.Title,
			CompanyName:       mask.CompanyName(candidate.CompanyName),
			CompanyBlurred:    true,
			EmailMasked:       r.EmailMasked,
			Reason:            mask.BlurText(r.Reason, previewWordLimit),
			EmailDraftBlurred: true,
			Score:             r.Score,
		})
	}

	return &models.MatchResponse{
		MatchID:    matchID,
		Results:    previews,
		CreditCost: cost,
		TokenUsage: usage,
		Status:     models.MatchStatusPreview,
	}, nil
}

// Reveal раскрывает контакты матча. Повторное раскрытие идемпотентно:
// уже раскрытый матч отдаётся без повторного списания. Способ оплаты
// выбирается по подписке и балансу кредитов; списание и смена статуса
// происходят в одной транзакции хранилища.
func (s *Service) Reveal(ctx context.Context, userUID string, matchID int) (*models.RevealResponse, error) {
	const op = "match.Reveal"

	match, err := s.repo.MatchByID(ctx, matchID, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if match.Status == models.MatchStatusRevealed {
		return s.revealedResponse(ctx, matchID)
	}

	user, err := s.repo.UserByUID(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	decision, err := entitlement.Evaluate(user, match.CreditCost, time.Now().UTC())
	if err != nil {
		metrics.EntitlementDenied.Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	err = s.repo.RevealMatch(ctx, matchID, userUID, match.CreditCost,
		decision.DeductCredits, uuid.New().String())
	if errors.Is(err, repository.ErrAlreadyRevealed) {
		// Конкурентный запрос успел раскрыть матч первым.
		return s.revealedResponse(ctx, matchID)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.Reveals.WithLabelValues(decision.Method).Inc()

	if decision.Method == entitlement.MethodSubscription {
		s.recordSubscriptionUsage(ctx, user, match.CreditCost)
	}

	return s.revealedResponse(ctx, matchID)
}

// recordSubscriptionUsage отражает раскрытие по подписке в журнале и в
// биллинге. Раскрытие уже зафиксировано, поэтому ошибки учёта только
// логируются.
func (s *Service) recordSubscriptionUsage(ctx context.Context, user *models.User, cost int) {
	if err := s.repo.InsertUsageLog(ctx, models.UsageLog{
		UserUID:   user.UID,
		Kind:      models.UsageKindContactReveal,
		Amount:    cost,
		DedupeKey: uuid.New().String(),
	}); err != nil {
		s.log.Error("failed to log subscription reveal", sl.Err(err))
	}

	if s.meterer == nil {
		return
	}
	info, err := s.meterer.SubscriptionInfoForEmail(ctx, user.Email)
	if err != nil {
		s.log.Error("failed to resolve metered subscription", sl.Err(err))
		return
	}
	if info == nil || info.MeteredItemID == "" {
		return
	}
	if err := s.meterer.RecordUsage(ctx, info.MeteredItemID, int64(cost)); err != nil {
		s.log.Error("failed to record subscription usage", sl.Err(err))
	}
}

func (s *Service) revealedResponse(ctx context.Context, matchID int) (*models.RevealResponse, error) {
	const op = "match.revealedResponse"

	details, err := s.repo.ListMatchResults(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	results := make([]models.PersonRevealed, 0, len(details))
	for _, d := range details {
		results = append(results, models.PersonRevealed{
			ID:          d.Result.PersonID,
			Name:        d.PersonName,
			Title:       d.PersonTitle,
			CompanyName: d.CompanyName,
			CompanyID:   d.Result.CompanyID,
			Email:       d.Result.EmailPlain,
			Reason:      d.Result.Reason,
			EmailDraft:  d.Result.EmailDraft,
			Score:       d.Result.Score,
		})
	}
	return &models.RevealResponse{
		MatchID: matchID,
		Results: results,
	}, nil
}

// History возвращает последние матчи пользователя.
func (s *Service) History(ctx context.Context, userUID string) ([]models.MatchHistoryItem, error) {
	const op = "match.History"

	history, err := s.repo.ListMatchHistory(ctx, userUID, 50)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return history, nil
}

const recommendSystemPrompt = "You are a matchmaking assistant for the film and TV industry. " +
	"Given a user query and a roster of candidates, pick the best matches. " +
	"Respond with a JSON array only, no prose. Each element must have the fields: " +
	"person_id (int, from the roster), company_id (int, from the roster), " +
	"reason (string, why this person fits), email_draft (string, a short outreach email), " +
	"score (float in [0,1])."

type rosterEntry struct {
	PersonID        int      `json:"person_id"`
	FullName        string   `json:"full_name"`
	Title           string   `json:"title"`
	CompanyID       int      `json:"company_id"`
	CompanyName     string   `json:"company_name"`
	CompanyAbout    string   `json:"company_about,omitempty"`
	RoleTags        []string `json:"role_tags,omitempty"`
	Territories     []string `json:"territories,omitempty"`
	IsDecisionMaker bool     `json:"is_decision_maker"`
}

// recommend запрашивает у LLM рекомендации по запросу пользователя.
// Недоступность LLM или нечитаемый ответ — штатная ситуация: тогда
// возвращаются запасные рекомендации из пула кандидатов с нулевым
// расходом токенов.
func (s *Service) recommend(ctx context.Context, query string, candidates []models.Candidate, maxResults int) ([]models.Recommendation, models.TokenUsage) {
	roster := make([]rosterEntry, 0, len(candidates))
	for _, c := range candidates {
		roster = append(roster, rosterEntry{
			PersonID:        c.ID,
			FullName:        c.FullName,
			Title:           c.Title,
			CompanyID:       c.CompanyID,
			CompanyName:     c.CompanyName,
			CompanyAbout:    c.CompanyDescription,
			RoleTags:        c.RoleTags,
			Territories:     c.Territories,
			IsDecisionMaker: c.IsDecisionMaker,
		})
	}
	rosterJSON, err := json.Marshal(roster)
	if err != nil {
		s.log.Error("failed to marshal candidate roster", sl.Err(err))
		metrics.LLMFallbacks.Inc()
		return fallbackRecommendations(candidates, maxResults), models.TokenUsage{}
	}

	userPrompt := fmt.Sprintf("Query: %s\n\nReturn at most %d matches.\n\nRoster:\n%s",
		query, maxResults, rosterJSON)

	answer, usage, err := s.llm.Complete(ctx, recommendSystemPrompt, userPrompt)
	if err != nil {
		s.log.Warn("llm unavailable, serving fallback recommendations", sl.Err(err))
		metrics.LLMFallbacks.Inc()
		return fallbackRecommendations(candidates, maxResults), models.TokenUsage{}
	}

	var raw []models.Recommendation
	if err := llm.ParseJSONArray(answer, &raw); err != nil {
		s.log.Warn("llm answer unparseable, serving fallback recommendations", sl.Err(err))
		metrics.LLMFallbacks.Inc()
		return fallbackRecommendations(candidates, maxResults), models.TokenUsage{}
	}

	validated := validateRecommendations(raw, candidates, maxResults)
	if len(validated) == 0 {
		metrics.LLMFallbacks.Inc()
	}
	if len(validated) < maxResults && len(validated) < len(candidates) {
		s.log.Warn("llm returned fewer usable recommendations than requested",
			slog.Int("validated", len(validated)), slog.Int("requested", maxResults))
		validated = backfillRecommendations(validated, candidates, maxResults)
	}
	return validated, usage
}

// validateRecommendations отбрасывает рекомендации с неизвестными ID,
// дубликаты по персоне, приводит числовые поля в границы и усекает
// длинные тексты. Порядок рекомендаций LLM сохраняется.
func validateRecommendations(raw []models.Recommendation, candidates []models.Candidate, maxResults int) []models.Recommendation {
	byID := candidatesByID(candidates)
	seen := make(map[int]bool, len(raw))

	result := make([]models.Recommendation, 0, maxResults)
	for _, rec := range raw {
		candidate, ok := byID[rec.PersonID]
		if !ok || seen[rec.PersonID] {
			continue
		}
		seen[rec.PersonID] = true

		// ID компании не доверяем: берём из пула кандидатов.
		rec.CompanyID = candidate.CompanyID
		rec.EmailAddress = candidate.EmailPlain

		if rec.Score < 0 {
			rec.Score = 0
		}
		if rec.Score > 1 {
			rec.Score = 1
		}
		rec.Reason = truncate(strings.TrimSpace(rec.Reason), maxReasonLen)
		rec.EmailDraft = truncate(strings.TrimSpace(rec.EmailDraft), maxEmailDraftLen)

		result = append(result, rec)
		if len(result) == maxResults {
			break
		}
	}
	return result
}

// backfillRecommendations добирает список до maxResults из ещё не
// использованных кандидатов пула, когда пригодных рекомендаций LLM
// оказалось меньше запрошенного. Добранные записи шаблонные, с
// фиксированной низкой оценкой; порядок пула сохраняется.
func backfillRecommendations(validated []models.Recommendation, candidates []models.Candidate, maxResults int) []models.Recommendation {
	used := make(map[int]bool, len(validated))
	for _, rec := range validated {
		used[rec.PersonID] = true
	}

	for _, c := range candidates {
		if len(validated) == maxResults {
			break
		}
		if used[c.ID] {
			continue
		}
		validated = append(validated, models.Recommendation{
			PersonID:  c.ID,
			CompanyID: c.CompanyID,
			Reason: fmt.Sprintf("Experienced professional at %s with relevant industry expertise "+
				"and a strong track record in film and TV projects.", c.CompanyName),
			EmailDraft: fmt.Sprintf("Hi %s,\n\nI came across your profile at %s and was impressed "+
				"by your experience in the film and TV industry. Would you be open to a brief "+
				"conversation about a potential collaboration?\n\nBest regards", c.FullName, c.CompanyName),
			Score:        backfillScore,
			EmailAddress: c.EmailPlain,
		})
	}
	return validated
}

// fallbackRecommendations строит рекомендации без LLM: берёт первых
// кандидатов пула (лица, принимающие решения, идут первыми) с шаблонными
// текстами и убывающими оценками.
func fallbackRecommendations(candidates []models.Candidate, maxResults int) []models.Recommendation {
	if maxResults > len(candidates) {
		maxResults = len(candidates)
	}

	result := make([]models.Recommendation, 0, maxResults)
	for i, c := range candidates[:maxResults] {
		firstName := c.FullName
		if name, _, found := strings.Cut(c.FullName, " "); found {
			firstName = name
		}
		result = append(result, models.Recommendation{
			PersonID:  c.ID,
			CompanyID: c.CompanyID,
			Reason: fmt.Sprintf("%s works at %s as %s and may be relevant to your search.",
				c.FullName, c.CompanyName, c.Title),
			EmailDraft: fmt.Sprintf("Hi %s,\n\nI came across your work at %s and would love "+
				"to connect about a potential collaboration.\n\nBest regards", firstName, c.CompanyName),
			Score:        0.75 - 0.05*float64(i),
			EmailAddress: c.EmailPlain,
		})
	}
	return result
}

func candidatesByID(candidates []models.Candidate) map[int]models.Candidate {
	byID := make(map[int]models.Candidate, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}
	return byID
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
