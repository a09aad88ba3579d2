package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/viqihq/viqi-backend/internal/models"
)

const userColumns = `uid, email, username, password_hash, role, credits_balance,
		stripe_customer_id, stripe_subscription_id, subscription_status,
		subscription_plan, subscription_expires_at, created_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.UID, &u.Email, &u.Username, &u.PasswordHash, &u.Role,
		&u.CreditsBalance, &u.StripeCustomerID, &u.StripeSubscriptionID,
		&u.SubscriptionStatus, &u.SubscriptionPlan, &u.SubscriptionExpiresAt,
		&u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser вставляет нового пользователя и возвращает его UID.
func (s *Storage) CreateUser(ctx context.Context, user models.User) (string, error) {
	const op = "storage.CreateUser"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO users (uid, email, username, password_hash, role, credits_balance)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING uid`
	var uid string
	err := s.DB.QueryRowContext(ctx, query,
		user.UID, user.Email, user.Username, user.PasswordHash, user.Role,
		user.CreditsBalance).Scan(&uid)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return uid, nil
}

// UserByUID возвращает пользователя по его UID.
func (s *Storage) UserByUID(ctx context.Context, uid string) (*models.User, error) {
	const op = "storage.UserByUID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE uid = $1`
	user, err := scanUser(s.DB.QueryRowContext(ctx, query, uid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// UserByUsername возвращает пользователя по имени (для логина).
func (s *Storage) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	const op = "storage.UserByUsername"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	user, err := scanUser(s.DB.QueryRowContext(ctx, query, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// UpdateUserSubscription перезаписывает кэшированные поля подписки пользователя.
func (s *Storage) UpdateUserSubscription(ctx context.Context, uid string, subscriptionID, status, plan *string, expiresAt *time.Time) error {
	const op = "storage.UpdateUserSubscription"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET stripe_subscription_id = $1, subscription_status = $2,
			      subscription_plan = $3, subscription_expires_at = $4
			  WHERE uid = $5`
	result, err := s.DB.ExecContext(ctx, query, subscriptionID, status, plan, expiresAt, uid)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// ExpireUserSubscription помечает подписку истёкшей и очищает её идентификаторы.
func (s *Storage) ExpireUserSubscription(ctx context.Context, uid string) error {
	const op = "storage.ExpireUserSubscription"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET subscription_status = $1, stripe_subscription_id = NULL,
			      subscription_plan = NULL, subscription_expires_at = NULL
			  WHERE uid = $2`
	_, err := s.DB.ExecContext(ctx, query, models.SubscriptionStatusExpired, uid)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListUsersForSubscriptionCheck возвращает пользователей с непустым сроком
// подписки и статусом, требующим периодической сверки.
func (s *Storage) ListUsersForSubscriptionCheck(ctx context.Context) ([]*models.User, error) {
	const op = "storage.ListUsersForSubscriptionCheck"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE subscription_expires_at IS NOT NULL
			    AND subscription_status IN ($1, $2, $3)
			  ORDER BY subscription_expires_at`
	rows, err := s.DB.QueryContext(ctx, query,
		models.SubscriptionStatusActive, models.SubscriptionStatusTrialing,
		models.SubscriptionStatusPastDue)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
