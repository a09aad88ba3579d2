package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/viqihq/viqi-backend/internal/models"
)

// execer покрывает *sql.DB и *sql.Tx, чтобы журнал можно было дописывать
// как отдельно, так и внутри транзакции раскрытия.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertUsageLog(ctx context.Context, db execer, usage models.UsageLog) error {
	query := `INSERT INTO usage_logs (user_uid, kind, amount, tokens_prompt,
			      tokens_completion, llm_model, dedupe_key)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := db.ExecContext(ctx, query,
		usage.UserUID, usage.Kind, usage.Amount, usage.TokensPrompt,
		usage.TokensCompletion, usage.LLMModel, usage.DedupeKey)
	return err
}

// InsertUsageLog дописывает запись журнала использования.
// Журнал только растёт; записи никогда не изменяются.
func (s *Storage) InsertUsageLog(ctx context.Context, usage models.UsageLog) error {
	const op = "storage.InsertUsageLog"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if err := insertUsageLog(ctx, s.DB, usage); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
