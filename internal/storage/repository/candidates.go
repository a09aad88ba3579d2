package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/viqihq/viqi-backend/internal/models"
)

// ListCandidates возвращает пул кандидатов: людей вместе с их компаниями.
// Поля-списки (теги ролей, территории) хранятся строками через запятую
// и разбираются здесь; пустая должность заменяется на "Professional".
func (s *Storage) ListCandidates(ctx context.Context, limit int) ([]models.Candidate, error) {
	const op = "storage.ListCandidates"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT p.id, p.full_name, p.title, p.role_tags, p.territories,
			      p.is_decision_maker, p.email_plain,
			      c.id, c.name, c.description
			  FROM people p
			  JOIN companies c ON c.id = p.company_id
			  ORDER BY p.is_decision_maker DESC, p.id
			  LIMIT $1`
	rows, err := s.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []models.Candidate
	for rows.Next() {
		var (
			item        models.Candidate
			title       sql.NullString
			roleTags    sql.NullString
			territories sql.NullString
			email       sql.NullString
			description sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.FullName, &title, &roleTags, &territories,
			&item.IsDecisionMaker, &email,
			&item.CompanyID, &item.CompanyName, &description); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		item.Title = "Professional"
		if title.Valid && title.String != "" {
			item.Title = title.String
		}
		item.RoleTags = splitCSV(roleTags.String)
		item.Territories = splitCSV(territories.String)
		item.EmailPlain = email.String
		item.CompanyDescription = description.String

		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// splitCSV разбирает строку со значениями через запятую, отбрасывая пустые.
func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
