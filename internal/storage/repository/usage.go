package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/subscription-manager/internal/lifecycle"
)

// GetCurrentUsage читает текущее потребление. Отсутствие строки означает ноль.
// Любая ошибка базы сообщается как ErrDependencyUnavailable, чтобы проверка
// понижения тарифа отказала, а не пропустила проверку.
func (s *Storage) GetCurrentUsage(ctx context.Context, subscriptionID uuid.UUID) (int64, error) {
	const op = "storage.GetCurrentUsage"
	if err := ctxDone(ctx, op); err != nil {
		return 0, errors.Join(lifecycle.ErrDependencyUnavailable, err)
	}

	var usage int64
	err := s.DB.QueryRowContext(ctx,
		`SELECT current_usage FROM subscription_usage WHERE subscription_id = $1`, subscriptionID).Scan(&usage)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("%s: %w", op, errors.Join(lifecycle.ErrDependencyUnavailable, err))
	}
	return usage, nil
}

// SetUsage записывает текущее потребление подписки.
func (s *Storage) SetUsage(ctx context.Context, subscriptionID uuid.UUID, usage int64) error {
	const op = "storage.SetUsage"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}

	query := `INSERT INTO subscription_usage (subscription_id, current_usage, updated_at)
			  VALUES ($1, $2, now())
			  ON CONFLICT (subscription_id)
			  DO UPDATE SET current_usage = EXCLUDED.current_usage, updated_at = now()`
	if _, err := s.DB.ExecContext(ctx, query, subscriptionID, usage); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
