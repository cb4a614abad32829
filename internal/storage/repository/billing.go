package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/subscription-manager/internal/models"
)

// CreateBillingRecord сохраняет запись биллинга. Повтор с тем же
// (subscription_id, billing_date, kind) игнорируется, и возвращается false.
func (s *Storage) CreateBillingRecord(ctx context.Context, rec models.BillingRecord) (bool, error) {
	const op = "storage.CreateBillingRecord"
	if err := ctxDone(ctx, op); err != nil {
		return false, err
	}

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = models.BillingStatusPending
	}

	query := `INSERT INTO billing_records (id, subscription_id, kind, amount, billing_date,
				  next_billing_date, status, note)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			  ON CONFLICT (subscription_id, billing_date, kind) DO NOTHING
			  RETURNING id`
	var id uuid.UUID
	err := s.DB.QueryRowContext(ctx, query, rec.ID, rec.SubscriptionID, string(rec.Kind), rec.Amount,
		rec.BillingDate, rec.NextBillingDate, string(rec.Status), rec.Note).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// ListBillingRecords возвращает записи биллинга подписки, последние первыми.
func (s *Storage) ListBillingRecords(ctx context.Context, subscriptionID uuid.UUID) ([]*models.BillingRecord, error) {
	const op = "storage.ListBillingRecords"
	if err := ctxDone(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT id, subscription_id, kind, amount, billing_date, next_billing_date, status, note, created_at
			  FROM billing_records
			  WHERE subscription_id = $1
			  ORDER BY billing_date DESC, kind`
	rows, err := s.DB.QueryContext(ctx, query, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var records []*models.BillingRecord
	for rows.Next() {
		var r models.BillingRecord
		if err := rows.Scan(&r.ID, &r.SubscriptionID, &r.Kind, &r.Amount, &r.BillingDate,
			&r.NextBillingDate, &r.Status, &r.Note, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return records, nil
}
