package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/viqihq/viqi-backend/internal/models"
)

// CreateMatchWithResults вставляет матч со статусом preview, все его
// результаты и запись журнала использования одной транзакцией.
// Возвращает ID созданного матча.
func (s *Storage) CreateMatchWithResults(ctx context.Context, match models.Match, results []models.MatchResult, usage models.UsageLog) (int, error) {
	const op = "storage.CreateMatchWithResults"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO matches (user_uid, query_text, llm_model, token_prompt,
			      token_completion, token_total, credit_cost, currency, status)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			  RETURNING id`
	var matchID int
	err = tx.QueryRowContext(ctx, query,
		match.UserUID, match.QueryText, match.LLMModel, match.TokenPrompt,
		match.TokenCompletion, match.TokenTotal, match.CreditCost, match.Currency,
		models.MatchStatusPreview).Scan(&matchID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	resultQuery := `INSERT INTO match_results (match_id, person_id, company_id, score,
			      reason, email_draft, email_masked, email_plain)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for _, r := range results {
		if _, err := tx.ExecContext(ctx, resultQuery,
			matchID, r.PersonID, r.CompanyID, r.Score,
			r.Reason, r.EmailDraft, r.EmailMasked, r.EmailPlain); err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := insertUsageLog(ctx, tx, usage); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return matchID, nil
}

// MatchByID возвращает матч по ID при условии, что он принадлежит
// пользователю userUID. Чужой матч неотличим от несуществующего.
func (s *Storage) MatchByID(ctx context.Context, id int, userUID string) (*models.Match, error) {
	const op = "storage.MatchByID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_uid, query_text, llm_model, token_prompt, token_completion,
			      token_total, credit_cost, currency, status, created_at, updated_at
			  FROM matches WHERE id = $1 AND user_uid = $2`
	row := s.DB.QueryRowContext(ctx, query, id, userUID)

	var m models.Match
	err := row.Scan(&m.ID, &m.UserUID, &m.QueryText, &m.LLMModel, &m.TokenPrompt,
		&m.TokenCompletion, &m.TokenTotal, &m.CreditCost, &m.Currency, &m.Status,
		&m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &m, nil
}

// ListMatchResults возвращает результаты матча вместе с персонами и компаниями.
func (s *Storage) ListMatchResults(ctx context.Context, matchID int) ([]models.MatchResultDetail, error) {
	const op = "storage.ListMatchResults"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT mr.id, mr.match_id, mr.person_id, mr.company_id, mr.score,
			      mr.reason, mr.email_draft, mr.email_masked, mr.email_plain, mr.revealed_at,
			      p.full_name, COALESCE(p.title, 'Professional'), c.name
			  FROM match_results mr
			  JOIN people p ON p.id = mr.person_id
			  JOIN companies c ON c.id = mr.company_id
			  WHERE mr.match_id = $1
			  ORDER BY mr.score DESC, mr.id`
	rows, err := s.DB.QueryContext(ctx, query, matchID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []models.MatchResultDetail
	for rows.Next() {
		var item models.MatchResultDetail
		if err := rows.Scan(&item.Result.ID, &item.Result.MatchID, &item.Result.PersonID,
			&item.Result.CompanyID, &item.Result.Score, &item.Result.Reason,
			&item.Result.EmailDraft, &item.Result.EmailMasked, &item.Result.EmailPlain,
			&item.Result.RevealedAt, &item.PersonName, &item.PersonTitle,
			&item.CompanyName); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// RevealMatch атомарно переводит матч из preview в revealed.
//
// Переход выполняется compare-and-swap обновлением по статусу: из двух
// конкурентных раскрытий одного матча только одно увидит status = preview,
// спишет кредиты и проставит revealed_at; второе получит ErrAlreadyRevealed.
// При deductCredits списание происходит в той же транзакции и только если
// на балансе достаточно средств, иначе транзакция откатывается целиком и
// матч остаётся в preview.
func (s *Storage) RevealMatch(ctx context.Context, matchID int, userUID string, cost int, deductCredits bool, dedupeKey string) error {
	const op = "storage.RevealMatch"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	casQuery := `UPDATE matches
			  SET status = $1, updated_at = now()
			  WHERE id = $2 AND user_uid = $3 AND status = $4`
	result, err := tx.ExecContext(ctx, casQuery,
		models.MatchStatusRevealed, matchID, userUID, models.MatchStatusPreview)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		var status string
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM matches WHERE id = $1 AND user_uid = $2`,
			matchID, userUID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return fmt.Errorf("%s: %w", op, ErrAlreadyRevealed)
	}

	if deductCredits {
		deductQuery := `UPDATE users
				  SET credits_balance = credits_balance - $1
				  WHERE uid = $2 AND credits_balance >= $1`
		result, err := tx.ExecContext(ctx, deductQuery, cost, userUID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if rowsAffected == 0 {
			return fmt.Errorf("%s: %w", op, ErrInsufficientCredits)
		}

		if err := insertUsageLog(ctx, tx, models.UsageLog{
			UserUID:   userUID,
			Kind:      models.UsageKindContactReveal,
			Amount:    cost,
			DedupeKey: dedupeKey,
		}); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE match_results SET revealed_at = now() WHERE match_id = $1`,
		matchID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListMatchHistory возвращает последние матчи пользователя с количеством
// результатов в каждом.
func (s *Storage) ListMatchHistory(ctx context.Context, userUID string, limit int) ([]models.MatchHistoryItem, error) {
	const op = "storage.ListMatchHistory"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT m.id, m.query_text, m.status, m.credit_cost, m.created_at,
			      COUNT(mr.id), MIN(mr.revealed_at)
			  FROM matches m
			  LEFT JOIN match_results mr ON mr.match_id = m.id
			  WHERE m.user_uid = $1
			  GROUP BY m.id
			  ORDER BY m.created_at DESC
			  LIMIT $2`
	rows, err := s.DB.QueryContext(ctx, query, userUID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []models.MatchHistoryItem
	for rows.Next() {
		var item models.MatchHistoryItem
		if err := rows.Scan(&item.ID, &item.Query, &item.Status, &item.CreditCost,
			&item.CreatedAt, &item.ResultCount, &item.RevealedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
