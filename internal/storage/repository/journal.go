package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/subscription-manager/internal/models"
)

// Append добавляет запись в журнал жизненного цикла. Метаданные хранятся в JSONB.
func (s *Storage) Append(ctx context.Context, entry models.LifecycleLogEntry) error {
	const op = "storage.AppendLifecycleLog"
	if err := ctxDone(ctx, op); err != nil {
		return err
	}

	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("%s: marshal metadata: %w", op, err)
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	query := `INSERT INTO subscription_lifecycle_log (id, subscription_id, action, metadata, created_at)
			  VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.DB.ExecContext(ctx, query,
		entry.ID, entry.SubscriptionID, string(entry.Action), meta, entry.CreatedAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// History возвращает журнал подписки в хронологическом порядке.
func (s *Storage) History(ctx context.Context, subscriptionID uuid.UUID) ([]models.LifecycleLogEntry, error) {
	const op = "storage.LifecycleHistory"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT id, subscription_id, action, metadata, created_at
			  FROM subscription_lifecycle_log
			  WHERE subscription_id = $1
			  ORDER BY created_at, id`
	rows, err := s.DB.QueryContext(ctx, query, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var entries []models.LifecycleLogEntry
	for rows.Next() {
		var (
			e    models.LifecycleLogEntry
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.SubscriptionID, &e.Action, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return nil, fmt.Errorf("%s: unmarshal metadata: %w", op, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return entries, nil
}
